package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Quid-proquo/Quid/internal/models"
	"github.com/Quid-proquo/Quid/internal/repository"
)

// SubmitRequest a hunter's submission and the stake backing it
type SubmitRequest struct {
	MissionID   uint64
	Hunter      string
	ContentID   string
	StakeToken  string
	StakeAmount int64
}

// PayoutResult funds released by a payout
type PayoutResult struct {
	Mission     *models.Mission
	Submission  *models.Submission
	Reward      int64
	StakeToken  string
	StakeRefund int64 // zero when the stake was slashed earlier
}

// SlashResult stake forwarded to the treasury
type SlashResult struct {
	Treasury string
	Token    string
	Amount   int64
}

// SweepResult pending submissions removed by a cancellation
type SweepResult struct {
	Submissions int
	Refunds     []Movement
}

// SubmissionLedger submissions and the stake escrow attached to them
type SubmissionLedger struct {
	missions *MissionRegistry
	gate     AssetGate
	treasury TreasuryRegistry
	limits   Limits
}

// NewSubmissionLedger creates a new SubmissionLedger
func NewSubmissionLedger(missions *MissionRegistry, limits Limits) *SubmissionLedger {
	return &SubmissionLedger{missions: missions, limits: limits.withinColumns()}
}

// Submit escrows the hunter's stake and records a pending submission
func (l *SubmissionLedger) Submit(ctx context.Context, inv *Invocation, req SubmitRequest) (*models.Submission, error) {
	mission, err := l.missions.Get(ctx, inv.Store, req.MissionID)
	if err != nil {
		return nil, err
	}
	if mission.Status != models.MissionStatusOpen {
		return nil, ErrMissionNotOpen
	}
	if req.StakeAmount <= 0 {
		return nil, ErrInvalidStakeAmount
	}
	if err := validatePrincipal("hunter", req.Hunter, inv.Escrow()); err != nil {
		return nil, err
	}
	if err := validateToken("stake token", req.StakeToken); err != nil {
		return nil, err
	}
	if err := l.validateContentID(req.ContentID); err != nil {
		return nil, err
	}

	_, err = inv.Store.GetSubmission(ctx, req.MissionID, req.Hunter)
	switch {
	case err == nil:
		return nil, ErrDuplicateSubmission
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}

	allowed, err := l.gate.Allows(ctx, inv.Tokens, mission, req.Hunter)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrInsufficientGatingBalance
	}

	if err := inv.Move(ctx, DirectionStake, req.StakeToken, req.Hunter, inv.Escrow(), req.StakeAmount); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	submission := &models.Submission{
		MissionID:   req.MissionID,
		Hunter:      req.Hunter,
		ContentID:   req.ContentID,
		StakeToken:  req.StakeToken,
		StakeAmount: req.StakeAmount,
		Status:      models.SubmissionStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := inv.Store.SaveSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("failed to save submission: %w", err)
	}
	stake := &models.Stake{
		MissionID: req.MissionID,
		Hunter:    req.Hunter,
		Token:     req.StakeToken,
		Amount:    req.StakeAmount,
		CreatedAt: now,
	}
	if err := inv.Store.SaveStake(ctx, stake); err != nil {
		return nil, fmt.Errorf("failed to save stake: %w", err)
	}
	return submission, nil
}

// Update replaces the content of a pending submission on an open mission
func (l *SubmissionLedger) Update(ctx context.Context, inv *Invocation, missionID uint64, hunter, contentID string) (*models.Submission, error) {
	mission, err := l.missions.Get(ctx, inv.Store, missionID)
	if err != nil {
		return nil, err
	}
	if mission.Status != models.MissionStatusOpen {
		return nil, ErrMissionNotOpen
	}
	submission, err := l.load(ctx, inv.Store, missionID, hunter)
	if err != nil {
		return nil, err
	}
	if submission.Status != models.SubmissionStatusPending {
		return nil, ErrAlreadyResolved
	}
	if err := l.validateContentID(contentID); err != nil {
		return nil, err
	}

	submission.ContentID = contentID
	submission.UpdatedAt = time.Now().UTC()
	if err := inv.Store.SaveSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("failed to save submission: %w", err)
	}
	return submission, nil
}

// Payout pays one reward slot to the hunter and refunds the stake if it was not slashed.
// Allowed on paused missions; cancelled missions fail with ErrMissionNotOpen.
func (l *SubmissionLedger) Payout(ctx context.Context, inv *Invocation, missionID uint64, hunter string) (*PayoutResult, error) {
	mission, err := l.missions.Get(ctx, inv.Store, missionID)
	if err != nil {
		return nil, err
	}
	if mission.Status == models.MissionStatusCancelled {
		return nil, ErrMissionNotOpen
	}
	submission, err := l.load(ctx, inv.Store, missionID, hunter)
	if err != nil {
		return nil, err
	}
	if submission.Status != models.SubmissionStatusPending {
		return nil, ErrAlreadyResolved
	}
	if err := l.missions.RecordPayout(ctx, inv, mission); err != nil {
		return nil, err
	}

	if err := inv.Move(ctx, DirectionPayout, mission.RewardToken, inv.Escrow(), hunter, mission.RewardAmount); err != nil {
		return nil, err
	}

	result := &PayoutResult{
		Mission:    mission,
		Submission: submission,
		Reward:     mission.RewardAmount,
		StakeToken: submission.StakeToken,
	}
	stake, err := l.loadStake(ctx, inv.Store, missionID, hunter)
	switch {
	case err == nil:
		if err := inv.Move(ctx, DirectionRefund, stake.Token, inv.Escrow(), hunter, stake.Amount); err != nil {
			return nil, err
		}
		if err := inv.Store.DeleteStake(ctx, missionID, hunter); err != nil {
			return nil, fmt.Errorf("failed to delete stake: %w", err)
		}
		result.StakeRefund = stake.Amount
	case errors.Is(err, ErrStakeNotFound):
		// slashed earlier: reward only
	default:
		return nil, err
	}

	now := time.Now().UTC()
	submission.Status = models.SubmissionStatusPaid
	submission.PaidAt = &now
	submission.UpdatedAt = now
	if err := inv.Store.SaveSubmission(ctx, submission); err != nil {
		return nil, fmt.Errorf("failed to save submission: %w", err)
	}
	return result, nil
}

// Slash forwards the whole stake to the treasury and drops the stake record.
// The submission itself stays and may still be paid out, without refund.
func (l *SubmissionLedger) Slash(ctx context.Context, inv *Invocation, missionID uint64, hunter, stakeToken string) (*SlashResult, error) {
	treasury, err := l.treasury.Get(ctx, inv.Store)
	if err != nil {
		return nil, err
	}
	stake, err := l.loadStake(ctx, inv.Store, missionID, hunter)
	if err != nil {
		return nil, err
	}
	if stake.Token != stakeToken {
		return nil, fmt.Errorf("stake is held in %s, not %s: %w", stake.Token, stakeToken, ErrStakeNotFound)
	}

	if err := inv.Move(ctx, DirectionSlash, stake.Token, inv.Escrow(), treasury, stake.Amount); err != nil {
		return nil, err
	}
	if err := inv.Store.DeleteStake(ctx, missionID, hunter); err != nil {
		return nil, fmt.Errorf("failed to delete stake: %w", err)
	}
	return &SlashResult{Treasury: treasury, Token: stake.Token, Amount: stake.Amount}, nil
}

// Sweep refunds live stakes of pending submissions and removes them.
// Paid submissions stay as history.
func (l *SubmissionLedger) Sweep(ctx context.Context, inv *Invocation, mission *models.Mission) (SweepResult, error) {
	var result SweepResult
	submissions, err := inv.Store.ListSubmissions(ctx, mission.ID)
	if err != nil {
		return result, fmt.Errorf("failed to list submissions: %w", err)
	}

	for _, submission := range submissions {
		if submission.Status != models.SubmissionStatusPending {
			continue
		}
		stake, err := l.loadStake(ctx, inv.Store, mission.ID, submission.Hunter)
		switch {
		case err == nil:
			if err := inv.Move(ctx, DirectionRefund, stake.Token, inv.Escrow(), stake.Hunter, stake.Amount); err != nil {
				return result, err
			}
			if err := inv.Store.DeleteStake(ctx, mission.ID, stake.Hunter); err != nil {
				return result, fmt.Errorf("failed to delete stake: %w", err)
			}
			result.Refunds = append(result.Refunds, Movement{
				Direction: DirectionRefund,
				Token:     stake.Token,
				From:      inv.Escrow(),
				To:        stake.Hunter,
				Amount:    stake.Amount,
			})
		case !errors.Is(err, ErrStakeNotFound):
			return result, err
		}
		if err := inv.Store.DeleteSubmission(ctx, mission.ID, submission.Hunter); err != nil {
			return result, fmt.Errorf("failed to delete submission: %w", err)
		}
		result.Submissions++
	}
	return result, nil
}

// Get returns one submission; the mission must exist
func (l *SubmissionLedger) Get(ctx context.Context, store repository.Store, missionID uint64, hunter string) (*models.Submission, error) {
	if _, err := l.missions.Get(ctx, store, missionID); err != nil {
		return nil, err
	}
	return l.load(ctx, store, missionID, hunter)
}

// List returns every submission of a mission, paid ones included
func (l *SubmissionLedger) List(ctx context.Context, store repository.Store, missionID uint64) ([]*models.Submission, error) {
	if _, err := l.missions.Get(ctx, store, missionID); err != nil {
		return nil, err
	}
	submissions, err := store.ListSubmissions(ctx, missionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, nil
}

func (l *SubmissionLedger) load(ctx context.Context, store repository.SubmissionRepository, missionID uint64, hunter string) (*models.Submission, error) {
	submission, err := store.GetSubmission(ctx, missionID, hunter)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	return submission, nil
}

func (l *SubmissionLedger) loadStake(ctx context.Context, store repository.StakeRepository, missionID uint64, hunter string) (*models.Stake, error) {
	stake, err := store.GetStake(ctx, missionID, hunter)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrStakeNotFound
		}
		return nil, fmt.Errorf("failed to load stake: %w", err)
	}
	return stake, nil
}

func (l *SubmissionLedger) validateContentID(contentID string) error {
	if strings.TrimSpace(contentID) == "" {
		return fmt.Errorf("content id is empty: %w", ErrInvalidMetadata)
	}
	if len(contentID) > l.limits.MaxContentIDLength {
		return fmt.Errorf("content id exceeds %d bytes: %w", l.limits.MaxContentIDLength, ErrInvalidMetadata)
	}
	return nil
}
