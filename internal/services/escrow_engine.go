// Package services implements the mission escrow engine
package services

import (
	"context"
	"strconv"
	"time"

	"github.com/Quid-proquo/Quid/internal/events"
	"github.com/Quid-proquo/Quid/internal/metrics"
	"github.com/Quid-proquo/Quid/internal/models"
	"github.com/Quid-proquo/Quid/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Quid-proquo/Quid/internal/services"

// EscrowEngine public entry point of the ledger.
// Every operation runs in one transaction; events are published only after commit.
type EscrowEngine struct {
	transactor  repository.Transactor
	escrow      string
	missions    *MissionRegistry
	submissions *SubmissionLedger
	treasury    TreasuryRegistry
	auditor     *EscrowAuditor
	publisher   events.Publisher
	logger      *logrus.Logger
	tracer      trace.Tracer
}

// NewEscrowEngine creates a new EscrowEngine
func NewEscrowEngine(
	transactor repository.Transactor,
	escrow string,
	limits Limits,
	publisher events.Publisher,
	logger *logrus.Logger,
) *EscrowEngine {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	missions := NewMissionRegistry(limits)
	return &EscrowEngine{
		transactor:  transactor,
		escrow:      escrow,
		missions:    missions,
		submissions: NewSubmissionLedger(missions, limits),
		publisher:   publisher,
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
	}
}

// SetAuditor enables Audit
func (e *EscrowEngine) SetAuditor(auditor *EscrowAuditor) {
	e.auditor = auditor
}

// EscrowAccount account holding escrowed funds
func (e *EscrowEngine) EscrowAccount() string {
	return e.escrow
}

// operation body: returns the events to publish once committed
type operation func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error)

func (e *EscrowEngine) run(ctx context.Context, name string, attrs []attribute.KeyValue, op operation) error {
	ctx, span := e.tracer.Start(ctx, "escrow."+name, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	correlationID := uuid.NewString()
	fields := logrus.Fields{"operation": name, "correlation_id": correlationID}
	for _, a := range attrs {
		fields[string(a.Key)] = a.Value.Emit()
	}

	var (
		pending   []events.LedgerEvent
		movements []Movement
	)
	err := e.transactor.InTransaction(ctx, func(ctx context.Context, s repository.Session) error {
		inv := NewInvocation(s, e.escrow)
		evts, err := op(ctx, inv)
		if err != nil {
			return err
		}
		pending = evts
		movements = inv.Movements()
		return nil
	})
	metrics.EngineOperationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.EngineOperations.WithLabelValues(name, "error", codeLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry := e.logger.WithFields(fields).WithError(err)
		if _, ok := CodeOf(err); ok {
			entry.Info("operation rejected")
		} else {
			entry.Error("operation failed")
		}
		return err
	}

	metrics.EngineOperations.WithLabelValues(name, "ok", codeLabel(nil)).Inc()
	for _, m := range movements {
		metrics.TokenMovements.WithLabelValues(m.Direction, m.Token).Inc()
		metrics.TokenVolume.WithLabelValues(m.Direction, m.Token).Add(float64(m.Amount))
	}
	if len(movements) > 0 {
		e.logger.WithFields(fields).WithField("movements", len(movements)).Info("operation committed")
	} else {
		e.logger.WithFields(fields).Debug("operation committed")
	}

	e.publish(ctx, correlationID, pending)
	return nil
}

// publish failures are logged, the committed state stands
func (e *EscrowEngine) publish(ctx context.Context, correlationID string, pending []events.LedgerEvent) {
	for _, event := range pending {
		event.CorrelationID = correlationID
		if err := e.publisher.Publish(ctx, event); err != nil {
			e.logger.WithFields(logrus.Fields{
				"event_id":       event.ID,
				"event_type":     event.Type,
				"correlation_id": correlationID,
			}).WithError(err).Warn("failed to publish ledger event")
		}
	}
}

func missionAttr(id uint64) attribute.KeyValue {
	return attribute.Int64("mission_id", int64(id))
}

// CreateMission escrows reward*max from the owner and opens a mission
func (e *EscrowEngine) CreateMission(ctx context.Context, req CreateMissionRequest) (uint64, error) {
	var id uint64
	attrs := []attribute.KeyValue{
		attribute.String("owner", req.Owner),
		attribute.String("reward_token", req.RewardToken),
	}
	err := e.run(ctx, "create_mission", attrs, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		mission, err := e.missions.Create(ctx, inv, req)
		if err != nil {
			return nil, err
		}
		id = mission.ID
		event := events.NewLedgerEvent(events.EventMissionCreated, "")
		event.MissionID = mission.ID
		event.Actor = mission.Owner
		event.Token = mission.RewardToken
		event.Amount = mission.RewardAmount * int64(mission.MaxParticipants)
		return []events.LedgerEvent{event}, nil
	})
	return id, err
}

// GetMission returns a mission snapshot
func (e *EscrowEngine) GetMission(ctx context.Context, id uint64) (*models.Mission, error) {
	var mission *models.Mission
	err := e.run(ctx, "get_mission", []attribute.KeyValue{missionAttr(id)}, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		var err error
		mission, err = e.missions.Get(ctx, inv.Store, id)
		return nil, err
	})
	return mission, err
}

// ListMissions lists missions by owner and status
func (e *EscrowEngine) ListMissions(ctx context.Context, filter repository.MissionFilter) ([]*models.Mission, error) {
	var missions []*models.Mission
	err := e.run(ctx, "list_missions", nil, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		var err error
		missions, err = e.missions.List(ctx, inv.Store, filter)
		return nil, err
	})
	return missions, err
}

// PauseMission stops submissions and updates; payouts continue
func (e *EscrowEngine) PauseMission(ctx context.Context, id uint64) error {
	return e.run(ctx, "pause_mission", []attribute.KeyValue{missionAttr(id)}, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		mission, err := e.missions.Pause(ctx, inv, id)
		if err != nil {
			return nil, err
		}
		event := events.NewLedgerEvent(events.EventMissionPaused, "")
		event.MissionID = mission.ID
		return []events.LedgerEvent{event}, nil
	})
}

// ResumeMission reopens a paused mission
func (e *EscrowEngine) ResumeMission(ctx context.Context, id uint64) error {
	return e.run(ctx, "resume_mission", []attribute.KeyValue{missionAttr(id)}, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		mission, err := e.missions.Resume(ctx, inv, id)
		if err != nil {
			return nil, err
		}
		event := events.NewLedgerEvent(events.EventMissionResumed, "")
		event.MissionID = mission.ID
		return []events.LedgerEvent{event}, nil
	})
}

// CancelMission refunds the unallocated pool and every pending stake
func (e *EscrowEngine) CancelMission(ctx context.Context, id uint64) (*CancelResult, error) {
	var result *CancelResult
	err := e.run(ctx, "cancel_mission", []attribute.KeyValue{missionAttr(id)}, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		var err error
		result, err = e.missions.Cancel(ctx, inv, id, e.submissions)
		if err != nil {
			return nil, err
		}
		event := events.NewLedgerEvent(events.EventMissionCancelled, "")
		event.MissionID = id
		event.Actor = result.Mission.Owner
		event.Token = result.Mission.RewardToken
		event.Refunded = result.PoolRefund
		event.Detail = "pending submissions removed: " + strconv.Itoa(result.Sweep.Submissions)
		return []events.LedgerEvent{event}, nil
	})
	return result, err
}

// SubmitFeedback records a submission and escrows its stake
func (e *EscrowEngine) SubmitFeedback(ctx context.Context, req SubmitRequest) error {
	attrs := []attribute.KeyValue{missionAttr(req.MissionID), attribute.String("hunter", req.Hunter)}
	return e.run(ctx, "submit_feedback", attrs, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		submission, err := e.submissions.Submit(ctx, inv, req)
		if err != nil {
			return nil, err
		}
		event := events.NewLedgerEvent(events.EventSubmissionCreated, "")
		event.MissionID = submission.MissionID
		event.Hunter = submission.Hunter
		event.Token = submission.StakeToken
		event.Amount = submission.StakeAmount
		event.Detail = submission.ContentID
		return []events.LedgerEvent{event}, nil
	})
}

// UpdateSubmission replaces the content of a pending submission
func (e *EscrowEngine) UpdateSubmission(ctx context.Context, missionID uint64, hunter, contentID string) error {
	attrs := []attribute.KeyValue{missionAttr(missionID), attribute.String("hunter", hunter)}
	return e.run(ctx, "update_submission", attrs, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		submission, err := e.submissions.Update(ctx, inv, missionID, hunter, contentID)
		if err != nil {
			return nil, err
		}
		event := events.NewLedgerEvent(events.EventSubmissionUpdated, "")
		event.MissionID = submission.MissionID
		event.Hunter = submission.Hunter
		event.Detail = submission.ContentID
		return []events.LedgerEvent{event}, nil
	})
}

// GetSubmission returns one submission
func (e *EscrowEngine) GetSubmission(ctx context.Context, missionID uint64, hunter string) (*models.Submission, error) {
	var submission *models.Submission
	attrs := []attribute.KeyValue{missionAttr(missionID), attribute.String("hunter", hunter)}
	err := e.run(ctx, "get_submission", attrs, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		var err error
		submission, err = e.submissions.Get(ctx, inv.Store, missionID, hunter)
		return nil, err
	})
	return submission, err
}

// ListSubmissions returns a mission's submissions
func (e *EscrowEngine) ListSubmissions(ctx context.Context, missionID uint64) ([]*models.Submission, error) {
	var submissions []*models.Submission
	err := e.run(ctx, "list_submissions", []attribute.KeyValue{missionAttr(missionID)}, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		var err error
		submissions, err = e.submissions.List(ctx, inv.Store, missionID)
		return nil, err
	})
	return submissions, err
}

// PayoutParticipant pays one reward slot and refunds the stake
func (e *EscrowEngine) PayoutParticipant(ctx context.Context, missionID uint64, hunter string) (*PayoutResult, error) {
	var result *PayoutResult
	attrs := []attribute.KeyValue{missionAttr(missionID), attribute.String("hunter", hunter)}
	err := e.run(ctx, "payout_participant", attrs, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		var err error
		result, err = e.submissions.Payout(ctx, inv, missionID, hunter)
		if err != nil {
			return nil, err
		}
		event := events.NewLedgerEvent(events.EventParticipantPaid, "")
		event.MissionID = missionID
		event.Hunter = hunter
		event.Token = result.Mission.RewardToken
		event.Amount = result.Reward
		event.Refunded = result.StakeRefund
		return []events.LedgerEvent{event}, nil
	})
	return result, err
}

// SlashHunterStake forwards a stake to the treasury
func (e *EscrowEngine) SlashHunterStake(ctx context.Context, missionID uint64, hunter, stakeToken string) (*SlashResult, error) {
	var result *SlashResult
	attrs := []attribute.KeyValue{missionAttr(missionID), attribute.String("hunter", hunter)}
	err := e.run(ctx, "slash_hunter_stake", attrs, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		var err error
		result, err = e.submissions.Slash(ctx, inv, missionID, hunter, stakeToken)
		if err != nil {
			return nil, err
		}
		event := events.NewLedgerEvent(events.EventStakeSlashed, "")
		event.MissionID = missionID
		event.Hunter = hunter
		event.Token = result.Token
		event.Amount = result.Amount
		event.Detail = result.Treasury
		return []events.LedgerEvent{event}, nil
	})
	return result, err
}

// SetTreasury overwrites the treasury address
func (e *EscrowEngine) SetTreasury(ctx context.Context, address string) error {
	return e.run(ctx, "set_treasury", nil, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		if err := e.treasury.Set(ctx, inv, address, "engine"); err != nil {
			return nil, err
		}
		event := events.NewLedgerEvent(events.EventTreasurySet, "")
		event.Detail = address
		return []events.LedgerEvent{event}, nil
	})
}

// GetTreasury returns the treasury or ErrTreasuryNotSet
func (e *EscrowEngine) GetTreasury(ctx context.Context) (string, error) {
	var address string
	err := e.run(ctx, "get_treasury", nil, func(ctx context.Context, inv *Invocation) ([]events.LedgerEvent, error) {
		var err error
		address, err = e.treasury.Get(ctx, inv.Store)
		return nil, err
	})
	return address, err
}

// Audit reconciles the escrow account against the records
func (e *EscrowEngine) Audit(ctx context.Context) (*AuditReport, error) {
	if e.auditor == nil {
		return nil, errAuditorNotConfigured
	}
	ctx, span := e.tracer.Start(ctx, "escrow.audit")
	defer span.End()

	report, err := e.auditor.Audit(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("ok", report.OK))
	return report, nil
}
