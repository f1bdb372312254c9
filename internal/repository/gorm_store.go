package repository

import (
	"context"
	"errors"

	"github.com/Quid-proquo/Quid/internal/interfaces"
	"github.com/Quid-proquo/Quid/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// settingRepository implements SettingRepository over the ledger_settings table
type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new SettingRepository instance
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

// GetSetting returns the value stored under key
func (r *settingRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var setting models.LedgerSetting
	err := r.db.WithContext(ctx).Where("config_key = ?", key).First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return setting.ConfigValue, nil
}

// PutSetting upserts key; last write wins
func (r *settingRepository) PutSetting(ctx context.Context, key, value, updatedBy string) error {
	setting := models.LedgerSetting{
		ConfigKey:   key,
		ConfigValue: value,
		UpdatedBy:   updatedBy,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "config_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"config_value", "updated_by", "updated_at"}),
		}).
		Create(&setting).Error
}

// gormStore binds every repository to one *gorm.DB (usually a transaction)
type gormStore struct {
	MissionRepository
	*submissionRepository
	SettingRepository
}

// NewGormStore creates a Store whose repositories share db
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{
		MissionRepository:    NewMissionRepository(db),
		submissionRepository: newSubmissionRepository(db),
		SettingRepository:    NewSettingRepository(db),
	}
}

// TokenGatewayFactory binds a token gateway to the transaction of one invocation.
// Gateways living in the same database join the transaction; external ones may ignore tx.
type TokenGatewayFactory func(tx *gorm.DB) interfaces.TokenGateway

// GormTransactor runs invocations inside database transactions
type GormTransactor struct {
	db     *gorm.DB
	tokens TokenGatewayFactory
}

// NewGormTransactor creates a transactor over db
func NewGormTransactor(db *gorm.DB, tokens TokenGatewayFactory) *GormTransactor {
	return &GormTransactor{db: db, tokens: tokens}
}

// InTransaction runs fn inside db.Transaction; gorm rolls back on error or panic
func (t *GormTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context, s Session) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, Session{
			Store:  NewGormStore(tx),
			Tokens: t.tokens(tx),
		})
	})
}
