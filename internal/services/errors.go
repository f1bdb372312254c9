package services

import (
	"errors"
	"strconv"
)

// ErrorCode stable numeric identifier of a ledger error kind
type ErrorCode uint32

// LedgerError a precondition violation callers can match on with errors.Is
type LedgerError struct {
	Code    ErrorCode
	Message string
}

func (e *LedgerError) Error() string {
	return e.Message
}

// Codes 8 and 12 are unused and stay reserved.
var (
	ErrMissionNotFound           = &LedgerError{Code: 1, Message: "mission not found"}
	ErrMissionFull               = &LedgerError{Code: 2, Message: "mission has no reward slots left"}
	ErrInvalidMaxParticipants    = &LedgerError{Code: 3, Message: "max participants must be positive"}
	ErrDuplicateSubmission       = &LedgerError{Code: 4, Message: "hunter already submitted to this mission"}
	ErrInvalidMetadata           = &LedgerError{Code: 5, Message: "invalid metadata"}
	ErrMissionNotPaused          = &LedgerError{Code: 6, Message: "mission is not paused"}
	ErrInvalidReward             = &LedgerError{Code: 7, Message: "reward amount must be positive"}
	ErrAlreadyResolved           = &LedgerError{Code: 9, Message: "submission already resolved"}
	ErrMissionNotOpen            = &LedgerError{Code: 10, Message: "mission is not open"}
	ErrSubmissionNotFound        = &LedgerError{Code: 11, Message: "submission not found"}
	ErrInvalidStakeAmount        = &LedgerError{Code: 13, Message: "amount must be positive"}
	ErrTreasuryNotSet            = &LedgerError{Code: 14, Message: "treasury not set"}
	ErrStakeNotFound             = &LedgerError{Code: 15, Message: "stake not found"}
	ErrInsufficientGatingBalance = &LedgerError{Code: 16, Message: "insufficient gating balance"}
	ErrAmountOverflow            = &LedgerError{Code: 17, Message: "amount overflows"}
)

// CodeOf extracts the ledger error code from err; ok is false for infrastructure errors
func CodeOf(err error) (code ErrorCode, ok bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code, true
	}
	return 0, false
}

// codeLabel metric label for err: "0" for success, "internal" for non-ledger errors
func codeLabel(err error) string {
	if err == nil {
		return "0"
	}
	if code, ok := CodeOf(err); ok {
		return strconv.FormatUint(uint64(code), 10)
	}
	return "internal"
}
