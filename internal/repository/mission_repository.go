package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Quid-proquo/Quid/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// missionRepository implements MissionRepository
type missionRepository struct {
	db *gorm.DB
}

// NewMissionRepository creates a new MissionRepository instance
func NewMissionRepository(db *gorm.DB) MissionRepository {
	return &missionRepository{db: db}
}

// NextMissionID increments the counter row under a row lock
func (r *missionRepository) NextMissionID(ctx context.Context) (uint64, error) {
	var setting models.LedgerSetting
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("config_key = ?", models.SettingMissionCounter).
		First(&setting).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	var current uint64
	if err == nil {
		current, err = strconv.ParseUint(setting.ConfigValue, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt mission counter %q: %w", setting.ConfigValue, err)
		}
	} else {
		setting = models.LedgerSetting{
			ConfigKey:   models.SettingMissionCounter,
			Description: "Last allocated mission id",
		}
	}

	next := current + 1
	setting.ConfigValue = strconv.FormatUint(next, 10)
	setting.UpdatedBy = "system"
	if err := r.db.WithContext(ctx).Save(&setting).Error; err != nil {
		return 0, err
	}
	return next, nil
}

// GetMission retrieves a mission by ID and locks the row for the rest of the transaction
func (r *missionRepository) GetMission(ctx context.Context, id uint64) (*models.Mission, error) {
	var mission models.Mission
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&mission).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &mission, nil
}

// SaveMission inserts or updates a mission
func (r *missionRepository) SaveMission(ctx context.Context, mission *models.Mission) error {
	return r.db.WithContext(ctx).Save(mission).Error
}

// ListMissions finds missions by owner and status
func (r *missionRepository) ListMissions(ctx context.Context, filter MissionFilter) ([]*models.Mission, error) {
	var missions []*models.Mission
	query := r.db.WithContext(ctx)
	if filter.Owner != "" {
		query = query.Where("owner = ?", filter.Owner)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	err := query.Order("id ASC").Find(&missions).Error
	return missions, err
}
