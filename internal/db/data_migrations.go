package db

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/Quid-proquo/Quid/internal/config"

	// registers the "postgres" database/sql driver used by the maintenance paths
	_ "github.com/lib/pq"
)

// DataMigration represents a data migration
type DataMigration struct {
	Version     string
	Description string
	Up          func(*sql.DB) error
}

// GetDataMigrations return all data migrations in apply order
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Add balance, amount and capacity check constraints",
			Up:          addLedgerCheckConstraints,
		},
		{
			Version:     "data_002",
			Description: "Realign mission counter with the highest mission id",
			Up:          realignMissionCounter,
		},
	}
}

// OpenSQL opens a plain database/sql handle through lib/pq
func OpenSQL(cfg config.DatabaseConfig) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", SchemaDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return sqlDB, nil
}

// RunDataMigrations applies every migration not yet recorded in data_migrations
func RunDataMigrations(sqlDB *sql.DB) (int, error) {
	if _, err := sqlDB.Exec(`
		CREATE TABLE IF NOT EXISTS data_migrations (
			version     VARCHAR(50) PRIMARY KEY,
			description VARCHAR(200) NOT NULL,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return 0, fmt.Errorf("failed to create data_migrations table: %w", err)
	}

	applied := 0
	for _, m := range GetDataMigrations() {
		var exists bool
		if err := sqlDB.QueryRow(`SELECT EXISTS (SELECT 1 FROM data_migrations WHERE version = $1)`, m.Version).Scan(&exists); err != nil {
			return applied, fmt.Errorf("failed to check migration %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		log.Printf("🔄 Applying data migration %s: %s", m.Version, m.Description)
		if err := m.Up(sqlDB); err != nil {
			return applied, fmt.Errorf("data migration %s failed: %w", m.Version, err)
		}
		if _, err := sqlDB.Exec(`INSERT INTO data_migrations (version, description) VALUES ($1, $2)`, m.Version, m.Description); err != nil {
			return applied, fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		applied++
	}
	return applied, nil
}

// ledgerChecks constraints AutoMigrate cannot express through struct tags
var ledgerChecks = []struct {
	table, name, expr string
}{
	{"token_balances", "chk_token_balances_amount", "amount >= 0"},
	{"stakes", "chk_stakes_amount", "amount > 0"},
	{"missions", "chk_missions_reward", "reward_amount > 0"},
	{"missions", "chk_missions_capacity", "participants_count <= max_participants"},
}

func addLedgerCheckConstraints(sqlDB *sql.DB) error {
	for _, c := range ledgerChecks {
		stmt := fmt.Sprintf(
			`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s, ADD CONSTRAINT %s CHECK (%s)`,
			c.table, c.name, c.name, c.expr,
		)
		if _, err := sqlDB.Exec(stmt); err != nil {
			return fmt.Errorf("constraint %s on %s: %w", c.name, c.table, err)
		}
	}
	log.Printf("✅ Added %d ledger check constraints", len(ledgerChecks))
	return nil
}

func realignMissionCounter(sqlDB *sql.DB) error {
	result, err := sqlDB.Exec(`
		UPDATE ledger_settings
		SET config_value = sub.max_id::text, updated_by = 'data_migration', updated_at = NOW()
		FROM (SELECT COALESCE(MAX(id), 0) AS max_id FROM missions) sub
		WHERE config_key = 'mission_counter' AND config_value::bigint < sub.max_id
	`)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		log.Printf("⚠️ Mission counter was behind the highest mission id and has been realigned")
	}
	return nil
}
