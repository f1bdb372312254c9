package services

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/Quid-proquo/Quid/internal/clients"
	"github.com/Quid-proquo/Quid/internal/config"
	"github.com/Quid-proquo/Quid/internal/db"
	"github.com/Quid-proquo/Quid/internal/interfaces"
	"github.com/Quid-proquo/Quid/internal/models"
	"github.com/Quid-proquo/Quid/internal/repository"
)

// newGormHarness runs the engine on postgres in its own schema, emptied per test
func newGormHarness(t *testing.T) *harness {
	t.Helper()
	dsn := os.Getenv("QUID_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("QUID_TEST_DATABASE_DSN not set")
	}

	conn, err := db.Open(config.DatabaseConfig{DSN: dsn, Schema: "quid_services_test", MaxOpenConns: 8, MaxIdleConns: 2})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := conn.Exec(`TRUNCATE missions, submissions, stakes, token_balances, ledger_settings`).Error; err != nil {
		t.Fatalf("truncate: %v", err)
	}
	// reseed the mission counter
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	gateway := clients.NewLedgerTokenGateway(conn)
	transactor := repository.NewGormTransactor(conn, clients.GatewayFactory)
	return buildHarness(t, transactor, gateway, gateway.Credit)
}

type backendScenario struct {
	name string
	run  func(t *testing.T, h *harness)
}

var backendScenarios = []backendScenario{
	{"create submit payout", func(t *testing.T, h *harness) {
		id := h.createMission(100, 3)
		if id != 1 {
			t.Fatalf("expected first mission id 1, got %d", id)
		}
		h.submit(id, "hunter", 50)
		result := h.payout(id, "hunter")
		if result.Reward != 100 || result.StakeRefund != 50 {
			t.Fatalf("unexpected payout: %+v", result)
		}
		if got := h.balance(testToken, "hunter"); got != 150 {
			t.Fatalf("expected hunter 150, got %d", got)
		}
		if got := h.balance(testToken, testEscrow); got != 200 {
			t.Fatalf("expected escrow 200, got %d", got)
		}
		submission, err := h.engine.GetSubmission(h.ctx, id, "hunter")
		if err != nil || submission.Status != models.SubmissionStatusPaid || submission.PaidAt == nil {
			t.Fatalf("expected paid submission, got %+v (%v)", submission, err)
		}
		expectErr(t, func() error { _, err := h.engine.PayoutParticipant(h.ctx, id, "hunter"); return err }(), ErrAlreadyResolved)
		h.requireAudit()
	}},
	{"ids increase", func(t *testing.T, h *harness) {
		first := h.createMission(10, 1)
		second := h.createMission(10, 1)
		if second != first+1 {
			t.Fatalf("expected consecutive ids, got %d then %d", first, second)
		}
	}},
	{"capacity", func(t *testing.T, h *harness) {
		id := h.createMission(100, 1)
		h.submit(id, "a", 10)
		h.submit(id, "b", 10)
		h.payout(id, "a")
		_, err := h.engine.PayoutParticipant(h.ctx, id, "b")
		expectErr(t, err, ErrMissionFull)
		if got := h.balance(testToken, "b"); got != 0 {
			t.Fatalf("full mission moved funds to b: %d", got)
		}
		h.requireAudit()
	}},
	{"duplicate submission", func(t *testing.T, h *harness) {
		id := h.createMission(100, 2)
		h.submit(id, "hunter", 10)
		h.mint(testToken, "hunter", 10)
		err := h.engine.SubmitFeedback(h.ctx, SubmitRequest{
			MissionID: id, Hunter: "hunter", ContentID: "cid-2", StakeToken: testToken, StakeAmount: 10,
		})
		expectErr(t, err, ErrDuplicateSubmission)
		if got := h.balance(testToken, "hunter"); got != 10 {
			t.Fatalf("duplicate moved funds: hunter holds %d", got)
		}
	}},
	{"failed transfer rolls back", func(t *testing.T, h *harness) {
		id := h.createMission(100, 2)
		h.mint(testToken, "hunter", 5)
		err := h.engine.SubmitFeedback(h.ctx, SubmitRequest{
			MissionID: id, Hunter: "hunter", ContentID: "cid", StakeToken: testToken, StakeAmount: 10,
		})
		expectErr(t, err, interfaces.ErrInsufficientBalance)
		if _, err := h.engine.GetSubmission(h.ctx, id, "hunter"); !errors.Is(err, ErrSubmissionNotFound) {
			t.Fatalf("expected no submission after failed transfer, got %v", err)
		}
		if got := h.balance(testToken, "hunter"); got != 5 {
			t.Fatalf("expected hunter balance untouched, got %d", got)
		}
		h.requireAudit()
	}},
	{"create without funds consumes no id", func(t *testing.T, h *harness) {
		h.mint(testToken, testOwner, 50)
		_, err := h.engine.CreateMission(h.ctx, h.missionRequest(100, 1))
		expectErr(t, err, interfaces.ErrInsufficientBalance)
		id := h.createMission(10, 1)
		if id != 1 {
			t.Fatalf("expected id 1 after rolled back create, got %d", id)
		}
	}},
	{"slash then payout then cancel", func(t *testing.T, h *harness) {
		h.setTreasury()
		id := h.createMission(100, 3)
		h.submit(id, "a", 10)
		h.submit(id, "b", 20)
		h.submit(id, "c", 30)
		if _, err := h.engine.SlashHunterStake(h.ctx, id, "a", testToken); err != nil {
			t.Fatalf("slash a: %v", err)
		}
		result := h.payout(id, "a")
		if result.StakeRefund != 0 {
			t.Fatalf("slashed stake refunded: %+v", result)
		}
		if _, err := h.engine.SlashHunterStake(h.ctx, id, "b", testToken); err != nil {
			t.Fatalf("slash b: %v", err)
		}

		cancel, err := h.engine.CancelMission(h.ctx, id)
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if cancel.PoolRefund != 200 || cancel.Sweep.Submissions != 2 || len(cancel.Sweep.Refunds) != 1 {
			t.Fatalf("unexpected cancel result: %+v", cancel)
		}
		submissions, err := h.engine.ListSubmissions(h.ctx, id)
		if err != nil || len(submissions) != 1 || submissions[0].Hunter != "a" {
			t.Fatalf("expected only the paid tombstone, got %d (%v)", len(submissions), err)
		}

		balances := map[string]int64{"a": 100, "b": 0, "c": 30, testTreasury: 30, testOwner: 200, testEscrow: 0}
		for account, want := range balances {
			if got := h.balance(testToken, account); got != want {
				t.Fatalf("%s: expected %d, got %d", account, want, got)
			}
		}
		h.requireAudit()
	}},
	{"pause resume and treasury", func(t *testing.T, h *harness) {
		id := h.createMission(100, 1)
		if err := h.engine.PauseMission(h.ctx, id); err != nil {
			t.Fatalf("pause: %v", err)
		}
		expectErr(t, h.engine.PauseMission(h.ctx, id), ErrMissionNotOpen)
		if err := h.engine.ResumeMission(h.ctx, id); err != nil {
			t.Fatalf("resume: %v", err)
		}
		expectErr(t, h.engine.ResumeMission(h.ctx, id), ErrMissionNotPaused)

		_, err := h.engine.GetTreasury(h.ctx)
		expectErr(t, err, ErrTreasuryNotSet)
		h.setTreasury()
		if err := h.engine.SetTreasury(h.ctx, "treasury-2"); err != nil {
			t.Fatalf("overwrite treasury: %v", err)
		}
		got, err := h.engine.GetTreasury(h.ctx)
		if err != nil || got != "treasury-2" {
			t.Fatalf("expected treasury-2, got %q (%v)", got, err)
		}

		missions, err := h.engine.ListMissions(h.ctx, repository.MissionFilter{Owner: testOwner, Status: models.MissionStatusOpen})
		if err != nil || len(missions) != 1 {
			t.Fatalf("expected one open mission, got %d (%v)", len(missions), err)
		}
	}},
}

func TestBackendScenariosMemory(t *testing.T) {
	for _, sc := range backendScenarios {
		t.Run(sc.name, func(t *testing.T) {
			sc.run(t, newHarness(t))
		})
	}
}

func TestBackendScenariosPostgres(t *testing.T) {
	for _, sc := range backendScenarios {
		t.Run(sc.name, func(t *testing.T) {
			sc.run(t, newGormHarness(t))
		})
	}
}

func TestLedgerGatewayCreditAccumulates(t *testing.T) {
	h := newGormHarness(t)
	ctx := context.Background()
	gateway := h.balances.(*clients.LedgerTokenGateway)

	for i := 0; i < 3; i++ {
		if err := gateway.Credit(ctx, "CRD", "alice", 7); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	if got := h.balance("CRD", "alice"); got != 21 {
		t.Fatalf("expected upserted balance 21, got %d", got)
	}
	if err := gateway.Transfer(ctx, "CRD", "alice", "bob", 22); !errors.Is(err, interfaces.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := gateway.Transfer(ctx, "CRD", "alice", "bob", 21); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if a, b := h.balance("CRD", "alice"), h.balance("CRD", "bob"); a != 0 || b != 21 {
		t.Fatalf("expected alice 0 bob 21, got %d %d", a, b)
	}
}
