package db

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/Quid-proquo/Quid/internal/config"
	"github.com/Quid-proquo/Quid/internal/metrics"
	"github.com/Quid-proquo/Quid/internal/models"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB connects using config.AppConfig and migrates the ledger schema
func InitDB() error {
	if config.AppConfig == nil || config.AppConfig.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	conn, err := Open(config.AppConfig.Database)
	if err != nil {
		return err
	}
	if err := Migrate(conn); err != nil {
		return err
	}
	DB = conn
	return nil
}

// Open connects to postgres and sizes the pool
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.Driver != "" && cfg.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if cfg.Schema != "" {
		if err := ensureSchema(cfg); err != nil {
			return nil, err
		}
	}

	conn, err := gorm.Open(postgres.Open(SchemaDSN(cfg)), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt:                              true,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	if err := sqlDB.Ping(); err != nil {
		metrics.DBConnectionStatus.Set(0)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	metrics.DBConnectionStatus.Set(1)
	metrics.DBConnectionPoolSize.Set(float64(cfg.MaxOpenConns))
	log.Println("✅ Database connected successfully")
	return conn, nil
}

// SchemaDSN returns the DSN with search_path pinned to cfg.Schema
func SchemaDSN(cfg config.DatabaseConfig) string {
	if cfg.Schema == "" {
		return cfg.DSN
	}
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		sep := "?"
		if strings.Contains(cfg.DSN, "?") {
			sep = "&"
		}
		return cfg.DSN + sep + "search_path=" + url.QueryEscape(cfg.Schema)
	}
	return cfg.DSN + " search_path=" + cfg.Schema
}

// ensureSchema creates cfg.Schema through a plain connection on the base DSN
func ensureSchema(cfg config.DatabaseConfig) error {
	sqlDB, err := OpenSQL(config.DatabaseConfig{DSN: cfg.DSN})
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	if _, err := sqlDB.Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(cfg.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", cfg.Schema, err)
	}
	return nil
}

// Migrate creates the ledger tables and seeds the settings rows
func Migrate(conn *gorm.DB) error {
	log.Println("🚀 Starting database schema migration with GORM AutoMigrate...")

	if err := conn.AutoMigrate(
		&models.Mission{},
		&models.Submission{},
		&models.Stake{},
		&models.LedgerSetting{},
		&models.TokenBalance{},
	); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}

	if err := initLedgerSettings(conn); err != nil {
		return err
	}

	log.Println("✅ Database schema migrated successfully")
	return nil
}

// initLedgerSettings creates the mission counter row if not exists.
// The treasury stays unset until an administrator configures it.
func initLedgerSettings(conn *gorm.DB) error {
	counter := models.LedgerSetting{
		ConfigKey:   models.SettingMissionCounter,
		ConfigValue: "0",
		Description: "Last allocated mission id",
		UpdatedBy:   "system",
	}
	if err := conn.Where("config_key = ?", models.SettingMissionCounter).FirstOrCreate(&counter).Error; err != nil {
		return fmt.Errorf("failed to seed mission counter: %w", err)
	}
	log.Printf("✅ Ledger setting %s = %s", models.SettingMissionCounter, counter.ConfigValue)
	return nil
}
