package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/Quid-proquo/Quid/internal/interfaces"
	"github.com/Quid-proquo/Quid/internal/metrics"
	"github.com/Quid-proquo/Quid/internal/models"
	"github.com/Quid-proquo/Quid/internal/repository"

	gmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var errAuditorNotConfigured = errors.New("escrow auditor not configured")

// TokenAudit expected versus actual escrow of one token
type TokenAudit struct {
	Token      string `json:"token"`
	Rewards    int64  `json:"rewards"` // remaining pools of non-cancelled missions
	Stakes     int64  `json:"stakes"`  // live stake records
	Expected   int64  `json:"expected"`
	Actual     int64  `json:"actual"`
	Difference int64  `json:"difference"` // actual - expected
	OK         bool   `json:"ok"`
}

// AuditReport result of replaying every mission and stake
type AuditReport struct {
	Tokens             []TokenAudit `json:"tokens"`
	CapacityViolations []uint64     `json:"capacity_violations,omitempty"` // missions with count > max
	Missions           int          `json:"missions"`
	Stakes             int          `json:"stakes"`
	OK                 bool         `json:"ok"`
	CheckedAt          time.Time    `json:"checked_at"`
}

// Token returns the audit line for token
func (r *AuditReport) Token(token string) (TokenAudit, bool) {
	for _, t := range r.Tokens {
		if t.Token == token {
			return t, true
		}
	}
	return TokenAudit{}, false
}

// EscrowAuditor checks that the escrow account holds exactly what the records say
type EscrowAuditor struct {
	transactor  repository.Transactor
	balances    interfaces.TokenGateway
	escrow      string
	concurrency int
	logger      *logrus.Logger
}

// NewEscrowAuditor creates an auditor.
// balances must be usable concurrently and outside any transaction.
func NewEscrowAuditor(transactor repository.Transactor, balances interfaces.TokenGateway, escrow string, concurrency int, logger *logrus.Logger) *EscrowAuditor {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &EscrowAuditor{
		transactor:  transactor,
		balances:    balances,
		escrow:      escrow,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Audit replays the records in one transaction, then reads the escrow balance of every token
func (a *EscrowAuditor) Audit(ctx context.Context) (*AuditReport, error) {
	expected := make(map[string]*TokenAudit)
	line := func(token string) *TokenAudit {
		t, ok := expected[token]
		if !ok {
			t = &TokenAudit{Token: token}
			expected[token] = t
		}
		return t
	}

	report := &AuditReport{CheckedAt: time.Now().UTC()}
	err := a.transactor.InTransaction(ctx, func(ctx context.Context, s repository.Session) error {
		missions, err := s.Store.ListMissions(ctx, repository.MissionFilter{})
		if err != nil {
			return fmt.Errorf("failed to list missions: %w", err)
		}
		stakes, err := s.Store.ListStakes(ctx)
		if err != nil {
			return fmt.Errorf("failed to list stakes: %w", err)
		}
		report.Missions = len(missions)
		report.Stakes = len(stakes)

		for _, m := range missions {
			t := line(m.RewardToken)
			if m.ParticipantsCount > m.MaxParticipants {
				report.CapacityViolations = append(report.CapacityViolations, m.ID)
				continue
			}
			if m.Status == models.MissionStatusCancelled {
				continue
			}
			pool, overflow := gmath.SafeMul(uint64(m.RewardAmount), uint64(m.RemainingSlots()))
			if overflow {
				return fmt.Errorf("mission %d pool: %w", m.ID, ErrAmountOverflow)
			}
			if t.Rewards, err = addAmount(t.Rewards, pool); err != nil {
				return fmt.Errorf("token %s rewards: %w", m.RewardToken, err)
			}
		}
		for _, st := range stakes {
			t := line(st.Token)
			if t.Stakes, err = addAmount(t.Stakes, uint64(st.Amount)); err != nil {
				return fmt.Errorf("token %s stakes: %w", st.Token, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(expected))
	for token := range expected {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	actual := make([]int64, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, token := range tokens {
		g.Go(func() error {
			balance, err := a.balances.BalanceOf(gctx, token, a.escrow)
			if err != nil {
				return fmt.Errorf("failed to read escrow balance of %s: %w", token, err)
			}
			actual[i] = balance
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.OK = len(report.CapacityViolations) == 0
	for i, token := range tokens {
		t := expected[token]
		expectedTotal, err := addAmount(t.Rewards, uint64(t.Stakes))
		if err != nil {
			return nil, fmt.Errorf("token %s expected: %w", token, err)
		}
		t.Expected = expectedTotal
		t.Actual = actual[i]
		t.Difference = t.Actual - t.Expected
		t.OK = t.Difference == 0
		if !t.OK {
			report.OK = false
		}
		metrics.EscrowDifference.WithLabelValues(token).Set(float64(t.Difference))
		report.Tokens = append(report.Tokens, *t)
	}

	entry := a.logger.WithFields(logrus.Fields{
		"tokens":   len(report.Tokens),
		"missions": report.Missions,
		"stakes":   report.Stakes,
	})
	if report.OK {
		entry.Info("escrow audit passed")
	} else {
		entry.WithField("capacity_violations", report.CapacityViolations).Warn("escrow audit found discrepancies")
	}
	return report, nil
}

func addAmount(total int64, amount uint64) (int64, error) {
	sum, overflow := gmath.SafeAdd(uint64(total), amount)
	if overflow || sum > math.MaxInt64 {
		return 0, ErrAmountOverflow
	}
	return int64(sum), nil
}
