package app

import (
	"context"
	"testing"

	"github.com/Quid-proquo/Quid/internal/config"
	"github.com/Quid-proquo/Quid/internal/services"

	"github.com/sirupsen/logrus"
)

func TestNewContainerInMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"

	c, err := NewContainer(cfg, nil)
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	defer c.Cleanup()

	if c.MemoryLedger == nil || c.Engine == nil || c.Auditor == nil {
		t.Fatalf("container not fully wired: %+v", c)
	}
	if c.Engine.EscrowAccount() != "quid-escrow" {
		t.Fatalf("unexpected escrow account %q", c.Engine.EscrowAccount())
	}

	ctx := context.Background()
	if err := c.MemoryLedger.Mint("USDC", "owner", 500); err != nil {
		t.Fatalf("mint: %v", err)
	}
	id, err := c.Engine.CreateMission(ctx, services.CreateMissionRequest{
		Owner:           "owner",
		Title:           "Translate docs",
		RewardToken:     "USDC",
		RewardAmount:    100,
		MaxParticipants: 5,
	})
	if err != nil {
		t.Fatalf("create mission: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}

	report, err := c.Engine.Audit(ctx)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if !report.OK {
		t.Fatalf("expected clean audit, got %+v", report)
	}
}

func TestNewContainerUsesConfiguredLimits(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Escrow.MaxTitleLength = 5

	c, err := NewContainer(cfg, nil)
	if err != nil {
		t.Fatalf("new container: %v", err)
	}
	_ = c.MemoryLedger.Mint("USDC", "owner", 100)

	_, err = c.Engine.CreateMission(context.Background(), services.CreateMissionRequest{
		Owner:           "owner",
		Title:           "too long a title",
		RewardToken:     "USDC",
		RewardAmount:    100,
		MaxParticipants: 1,
	})
	if code, _ := services.CodeOf(err); code != services.ErrInvalidMetadata.Code {
		t.Fatalf("expected InvalidMetadata, got %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected JSON formatter, got %T", logger.Formatter)
	}

	if _, err := NewLogger(config.LogConfig{Level: "chatty"}); err == nil {
		t.Fatalf("expected invalid level error")
	}
}
