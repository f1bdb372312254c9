// Package repository provides data access interfaces and implementations
package repository

import (
	"context"
	"errors"

	"github.com/Quid-proquo/Quid/internal/interfaces"
	"github.com/Quid-proquo/Quid/internal/models"
)

// ErrNotFound returned by every repository when the keyed record is absent
var ErrNotFound = errors.New("record not found")

// MissionFilter narrows ListMissions; zero values match everything
type MissionFilter struct {
	Owner  string
	Status models.MissionStatus
}

// MissionRepository defines the interface for Mission data access
type MissionRepository interface {
	// NextMissionID increments the mission counter and returns the new value
	NextMissionID(ctx context.Context) (uint64, error)
	GetMission(ctx context.Context, id uint64) (*models.Mission, error)
	SaveMission(ctx context.Context, mission *models.Mission) error
	ListMissions(ctx context.Context, filter MissionFilter) ([]*models.Mission, error)
}

// SubmissionRepository defines the interface for Submission data access
type SubmissionRepository interface {
	GetSubmission(ctx context.Context, missionID uint64, hunter string) (*models.Submission, error)
	SaveSubmission(ctx context.Context, submission *models.Submission) error
	DeleteSubmission(ctx context.Context, missionID uint64, hunter string) error
	ListSubmissions(ctx context.Context, missionID uint64) ([]*models.Submission, error)
}

// StakeRepository defines the interface for Stake escrow records
type StakeRepository interface {
	GetStake(ctx context.Context, missionID uint64, hunter string) (*models.Stake, error)
	SaveStake(ctx context.Context, stake *models.Stake) error
	DeleteStake(ctx context.Context, missionID uint64, hunter string) error
	ListStakes(ctx context.Context) ([]*models.Stake, error)
}

// SettingRepository defines the interface for process-wide singletons
type SettingRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value, updatedBy string) error
}

// Store is everything one invocation can read or write
type Store interface {
	MissionRepository
	SubmissionRepository
	StakeRepository
	SettingRepository
}

// Session is the unit of work handed to an invocation.
// Writes through Store and Tokens commit or roll back together.
type Session struct {
	Store  Store
	Tokens interfaces.TokenGateway
}

// Transactor runs fn as one atomic invocation.
// If fn returns an error (or panics) nothing it did through the session survives.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context, s Session) error) error
}
