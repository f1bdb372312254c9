package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/Quid-proquo/Quid/internal/clients"
	"github.com/Quid-proquo/Quid/internal/events"
	"github.com/Quid-proquo/Quid/internal/interfaces"
	"github.com/Quid-proquo/Quid/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	testEscrow   = "quid-escrow"
	testToken    = "USDC"
	testOwner    = "owner"
	testTreasury = "treasury"
)

type harness struct {
	t         *testing.T
	ctx       context.Context
	ledger    *clients.MemoryTokenLedger // memory backend only
	store     *repository.MemoryStore   // memory backend only
	credit    func(ctx context.Context, token, account string, amount int64) error
	balances  interfaces.TokenGateway
	publisher *events.MemoryPublisher
	engine    *EscrowEngine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ledger := clients.NewMemoryTokenLedger()
	store := repository.NewMemoryStore()
	h := buildHarness(t, repository.NewMemoryTransactor(store, ledger), ledger,
		func(_ context.Context, token, account string, amount int64) error {
			return ledger.Mint(token, account, amount)
		})
	h.ledger = ledger
	h.store = store
	return h
}

func buildHarness(
	t *testing.T,
	transactor repository.Transactor,
	balances interfaces.TokenGateway,
	credit func(ctx context.Context, token, account string, amount int64) error,
) *harness {
	t.Helper()
	publisher := &events.MemoryPublisher{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	engine := NewEscrowEngine(transactor, testEscrow, DefaultLimits(), publisher, logger)
	engine.SetAuditor(NewEscrowAuditor(transactor, balances, testEscrow, 2, logger))

	return &harness{
		t:         t,
		ctx:       context.Background(),
		credit:    credit,
		balances:  balances,
		publisher: publisher,
		engine:    engine,
	}
}

func (h *harness) mint(token, account string, amount int64) {
	h.t.Helper()
	if err := h.credit(h.ctx, token, account, amount); err != nil {
		h.t.Fatalf("mint %d %s to %s: %v", amount, token, account, err)
	}
}

func (h *harness) balance(token, account string) int64 {
	h.t.Helper()
	b, err := h.balances.BalanceOf(h.ctx, token, account)
	if err != nil {
		h.t.Fatalf("balance of %s: %v", account, err)
	}
	return b
}

func (h *harness) missionRequest(reward int64, slots uint32) CreateMissionRequest {
	return CreateMissionRequest{
		Owner:           testOwner,
		Title:           "Find bugs",
		Description:     "Report reproducible bugs in the checkout flow",
		RewardToken:     testToken,
		RewardAmount:    reward,
		MaxParticipants: slots,
	}
}

// createMission funds the owner with exactly the pool and opens the mission
func (h *harness) createMission(reward int64, slots uint32) uint64 {
	h.t.Helper()
	h.mint(testToken, testOwner, reward*int64(slots))
	id, err := h.engine.CreateMission(h.ctx, h.missionRequest(reward, slots))
	if err != nil {
		h.t.Fatalf("create mission: %v", err)
	}
	return id
}

// submit funds the hunter with exactly the stake and submits
func (h *harness) submit(missionID uint64, hunter string, stake int64) {
	h.t.Helper()
	h.mint(testToken, hunter, stake)
	err := h.engine.SubmitFeedback(h.ctx, SubmitRequest{
		MissionID:   missionID,
		Hunter:      hunter,
		ContentID:   "ipfs://" + hunter,
		StakeToken:  testToken,
		StakeAmount: stake,
	})
	if err != nil {
		h.t.Fatalf("submit %s: %v", hunter, err)
	}
}

func (h *harness) payout(missionID uint64, hunter string) *PayoutResult {
	h.t.Helper()
	result, err := h.engine.PayoutParticipant(h.ctx, missionID, hunter)
	if err != nil {
		h.t.Fatalf("payout %s: %v", hunter, err)
	}
	return result
}

func (h *harness) setTreasury() {
	h.t.Helper()
	if err := h.engine.SetTreasury(h.ctx, testTreasury); err != nil {
		h.t.Fatalf("set treasury: %v", err)
	}
}

// requireAudit asserts the escrow account matches the records
func (h *harness) requireAudit() *AuditReport {
	h.t.Helper()
	report, err := h.engine.Audit(h.ctx)
	if err != nil {
		h.t.Fatalf("audit: %v", err)
	}
	if !report.OK {
		h.t.Fatalf("audit failed: %+v", report)
	}
	return report
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
