package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/Quid-proquo/Quid/internal/clients"
	"github.com/Quid-proquo/Quid/internal/models"
	"github.com/Quid-proquo/Quid/internal/repository"

	"github.com/sirupsen/logrus"
)

func TestAuditAfterMixedScenario(t *testing.T) {
	h := newHarness(t)
	h.setTreasury()

	first := h.createMission(100, 3)
	h.submit(first, "alice", 10)
	h.submit(first, "bob", 20)
	h.payout(first, "alice")
	if _, err := h.engine.SlashHunterStake(h.ctx, first, "bob", testToken); err != nil {
		t.Fatalf("slash: %v", err)
	}

	h.mint("EURC", testOwner, 500)
	req := h.missionRequest(50, 10)
	req.RewardToken = "EURC"
	second, err := h.engine.CreateMission(h.ctx, req)
	if err != nil {
		t.Fatalf("create EURC mission: %v", err)
	}
	h.submit(second, "carol", 7)
	if _, err := h.engine.CancelMission(h.ctx, second); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	report := h.requireAudit()
	if report.Missions != 2 || report.Stakes != 0 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	usdc, ok := report.Token(testToken)
	if !ok {
		t.Fatalf("expected a %s line", testToken)
	}
	// two slots left on the first mission, no live stakes
	if usdc.Rewards != 200 || usdc.Stakes != 0 || usdc.Actual != 200 {
		t.Fatalf("unexpected %s line: %+v", testToken, usdc)
	}
	eurc, ok := report.Token("EURC")
	if !ok || eurc.Expected != 0 || eurc.Actual != 0 {
		t.Fatalf("expected cancelled EURC mission to hold nothing: %+v", eurc)
	}
}

func TestAuditDetectsStrayFunds(t *testing.T) {
	h := newHarness(t)
	id := h.createMission(100, 2)
	h.submit(id, "hunter", 15)
	h.mint(testToken, testEscrow, 3)

	report, err := h.engine.Audit(h.ctx)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if report.OK {
		t.Fatalf("expected audit to flag the surplus")
	}
	line, _ := report.Token(testToken)
	if line.Expected != 215 || line.Actual != 218 || line.Difference != 3 || line.OK {
		t.Fatalf("unexpected line: %+v", line)
	}
}

func TestAuditFlagsCapacityViolation(t *testing.T) {
	store := repository.NewMemoryStore()
	ledger := clients.NewMemoryTokenLedger()
	transactor := repository.NewMemoryTransactor(store, ledger)
	ctx := context.Background()

	broken := &models.Mission{
		ID:                1,
		Owner:             testOwner,
		Title:             "broken",
		RewardToken:       testToken,
		RewardAmount:      10,
		MaxParticipants:   1,
		ParticipantsCount: 2,
		Status:            models.MissionStatusOpen,
	}
	if err := store.SaveMission(ctx, broken); err != nil {
		t.Fatalf("save: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	report, err := NewEscrowAuditor(transactor, ledger, testEscrow, 1, logger).Audit(ctx)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if report.OK || len(report.CapacityViolations) != 1 || report.CapacityViolations[0] != 1 {
		t.Fatalf("expected mission 1 flagged, got %+v", report)
	}
}

func TestAuditPropagatesBalanceErrors(t *testing.T) {
	h := newHarness(t)
	h.createMission(100, 1)

	transactor := repository.NewMemoryTransactor(h.store, h.ledger)
	auditor := NewEscrowAuditor(transactor, brokenGateway{}, testEscrow, 2, nil)
	if _, err := auditor.Audit(h.ctx); err == nil {
		t.Fatalf("expected balance error to abort the audit")
	}
}

func TestAuditWithoutAuditor(t *testing.T) {
	engine := NewEscrowEngine(repository.NewMemoryTransactor(repository.NewMemoryStore(), clients.NewMemoryTokenLedger()), testEscrow, DefaultLimits(), nil, nil)
	if _, err := engine.Audit(context.Background()); !errors.Is(err, errAuditorNotConfigured) {
		t.Fatalf("expected errAuditorNotConfigured, got %v", err)
	}
}
