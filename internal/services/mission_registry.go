package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Quid-proquo/Quid/internal/models"
	"github.com/Quid-proquo/Quid/internal/repository"

	gmath "github.com/ethereum/go-ethereum/common/math"
)

// Limits bounds on caller supplied text, in bytes
type Limits struct {
	MaxTitleLength       int
	MaxDescriptionLength int
	MaxContentIDLength   int
}

// DefaultLimits limits used when none are configured
func DefaultLimits() Limits {
	return Limits{
		MaxTitleLength:       200,
		MaxDescriptionLength: 4096,
		MaxContentIDLength:   256,
	}
}

// withinColumns caps limits at the widths of the stored columns
func (l Limits) withinColumns() Limits {
	if l.MaxTitleLength <= 0 || l.MaxTitleLength > models.TitleSize {
		l.MaxTitleLength = models.TitleSize
	}
	if l.MaxContentIDLength <= 0 || l.MaxContentIDLength > models.ContentIDSize {
		l.MaxContentIDLength = models.ContentIDSize
	}
	if l.MaxDescriptionLength <= 0 {
		l.MaxDescriptionLength = DefaultLimits().MaxDescriptionLength
	}
	return l
}

// CreateMissionRequest parameters of a new mission
type CreateMissionRequest struct {
	Owner           string
	Title           string
	Description     string
	RewardToken     string
	RewardAmount    int64 // per slot
	MaxParticipants uint32
	MinAssetToken   *string // nil or empty disables gating
	MinAssetAmount  int64
}

// CancelResult what a cancellation returned to depositors
type CancelResult struct {
	Mission    *models.Mission
	PoolRefund int64
	Sweep      SweepResult
}

// StakeSweeper reconciles the pending submissions of a cancelled mission
type StakeSweeper interface {
	Sweep(ctx context.Context, inv *Invocation, mission *models.Mission) (SweepResult, error)
}

// MissionRegistry mission lifecycle and reward pool escrow
type MissionRegistry struct {
	limits Limits
}

// NewMissionRegistry creates a new MissionRegistry
func NewMissionRegistry(limits Limits) *MissionRegistry {
	return &MissionRegistry{limits: limits.withinColumns()}
}

// Create validates the request, escrows reward*max from the owner and stores an open mission
func (r *MissionRegistry) Create(ctx context.Context, inv *Invocation, req CreateMissionRequest) (*models.Mission, error) {
	if req.RewardAmount <= 0 {
		return nil, ErrInvalidReward
	}
	if req.MaxParticipants == 0 {
		return nil, ErrInvalidMaxParticipants
	}
	gated := req.MinAssetToken != nil && *req.MinAssetToken != ""
	if gated && req.MinAssetAmount <= 0 {
		return nil, fmt.Errorf("gating threshold %d: %w", req.MinAssetAmount, ErrInvalidStakeAmount)
	}
	if err := r.validateMissionText(req, inv.Escrow()); err != nil {
		return nil, err
	}
	if gated {
		if err := validateToken("gating token", *req.MinAssetToken); err != nil {
			return nil, err
		}
	}

	pool, overflow := gmath.SafeMul(uint64(req.RewardAmount), uint64(req.MaxParticipants))
	if overflow || pool > math.MaxInt64 {
		return nil, fmt.Errorf("reward pool %d x %d: %w", req.RewardAmount, req.MaxParticipants, ErrAmountOverflow)
	}

	if err := inv.Move(ctx, DirectionDeposit, req.RewardToken, req.Owner, inv.Escrow(), int64(pool)); err != nil {
		return nil, err
	}

	id, err := inv.Store.NextMissionID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate mission id: %w", err)
	}

	now := time.Now().UTC()
	mission := &models.Mission{
		ID:              id,
		Owner:           req.Owner,
		Title:           req.Title,
		Description:     req.Description,
		RewardToken:     req.RewardToken,
		RewardAmount:    req.RewardAmount,
		MaxParticipants: req.MaxParticipants,
		Status:          models.MissionStatusOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if gated {
		token := *req.MinAssetToken
		mission.MinAssetToken = &token
		mission.MinAssetAmount = req.MinAssetAmount
	}
	if err := inv.Store.SaveMission(ctx, mission); err != nil {
		return nil, fmt.Errorf("failed to save mission: %w", err)
	}
	return mission, nil
}

func (r *MissionRegistry) validateMissionText(req CreateMissionRequest, escrow string) error {
	if err := validatePrincipal("owner", req.Owner, escrow); err != nil {
		return err
	}
	if err := validateToken("reward token", req.RewardToken); err != nil {
		return err
	}
	switch {
	case strings.TrimSpace(req.Title) == "":
		return fmt.Errorf("title is empty: %w", ErrInvalidMetadata)
	case len(req.Title) > r.limits.MaxTitleLength:
		return fmt.Errorf("title exceeds %d bytes: %w", r.limits.MaxTitleLength, ErrInvalidMetadata)
	case len(req.Description) > r.limits.MaxDescriptionLength:
		return fmt.Errorf("description exceeds %d bytes: %w", r.limits.MaxDescriptionLength, ErrInvalidMetadata)
	}
	return nil
}

// Get returns the mission or ErrMissionNotFound
func (r *MissionRegistry) Get(ctx context.Context, missions repository.MissionRepository, id uint64) (*models.Mission, error) {
	mission, err := missions.GetMission(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMissionNotFound
		}
		return nil, fmt.Errorf("failed to load mission %d: %w", id, err)
	}
	return mission, nil
}

// List returns missions matching filter ordered by id
func (r *MissionRegistry) List(ctx context.Context, missions repository.MissionRepository, filter repository.MissionFilter) ([]*models.Mission, error) {
	list, err := missions.ListMissions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}
	return list, nil
}

// Pause Open -> Paused
func (r *MissionRegistry) Pause(ctx context.Context, inv *Invocation, id uint64) (*models.Mission, error) {
	mission, err := r.Get(ctx, inv.Store, id)
	if err != nil {
		return nil, err
	}
	if mission.Status != models.MissionStatusOpen {
		return nil, ErrMissionNotOpen
	}
	return mission, r.setStatus(ctx, inv, mission, models.MissionStatusPaused)
}

// Resume Paused -> Open
func (r *MissionRegistry) Resume(ctx context.Context, inv *Invocation, id uint64) (*models.Mission, error) {
	mission, err := r.Get(ctx, inv.Store, id)
	if err != nil {
		return nil, err
	}
	switch mission.Status {
	case models.MissionStatusPaused:
	case models.MissionStatusOpen:
		return nil, ErrMissionNotPaused
	default:
		return nil, ErrMissionNotOpen
	}
	return mission, r.setStatus(ctx, inv, mission, models.MissionStatusOpen)
}

func (r *MissionRegistry) setStatus(ctx context.Context, inv *Invocation, mission *models.Mission, status models.MissionStatus) error {
	mission.Status = status
	mission.UpdatedAt = time.Now().UTC()
	if err := inv.Store.SaveMission(ctx, mission); err != nil {
		return fmt.Errorf("failed to save mission %d: %w", mission.ID, err)
	}
	return nil
}

// Cancel terminal transition from Open or Paused.
// Refunds the unallocated pool to the owner, then hands pending submissions to sweeper.
func (r *MissionRegistry) Cancel(ctx context.Context, inv *Invocation, id uint64, sweeper StakeSweeper) (*CancelResult, error) {
	mission, err := r.Get(ctx, inv.Store, id)
	if err != nil {
		return nil, err
	}
	if mission.Status == models.MissionStatusCancelled {
		return nil, ErrMissionNotOpen
	}

	// bounded by the pool escrowed at creation, so no overflow
	refund := mission.RewardAmount * int64(mission.RemainingSlots())
	if err := inv.Move(ctx, DirectionRefund, mission.RewardToken, inv.Escrow(), mission.Owner, refund); err != nil {
		return nil, err
	}

	sweep, err := sweeper.Sweep(ctx, inv, mission)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	mission.CancelledAt = &now
	if err := r.setStatus(ctx, inv, mission, models.MissionStatusCancelled); err != nil {
		return nil, err
	}
	return &CancelResult{Mission: mission, PoolRefund: refund, Sweep: sweep}, nil
}

// RecordPayout consumes one reward slot or fails with ErrMissionFull
func (r *MissionRegistry) RecordPayout(ctx context.Context, inv *Invocation, mission *models.Mission) error {
	if mission.ParticipantsCount >= mission.MaxParticipants {
		return ErrMissionFull
	}
	mission.ParticipantsCount++
	mission.UpdatedAt = time.Now().UTC()
	if err := inv.Store.SaveMission(ctx, mission); err != nil {
		return fmt.Errorf("failed to save mission %d: %w", mission.ID, err)
	}
	return nil
}
