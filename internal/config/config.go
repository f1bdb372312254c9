package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Quid-proquo/Quid/internal/models"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Escrow   EscrowConfig   `yaml:"escrow"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig Database configuration
type DatabaseConfig struct {
	DSN          string `yaml:"dsn" env:"DATABASE_DSN"`
	Schema       string `yaml:"schema" env:"DATABASE_SCHEMA"` // optional postgres schema, created on connect
	Driver       string `yaml:"driver" env:"DATABASE_DRIVER"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
}

// NATSConfig ledger event publishing; an empty URL disables publishing
type NATSConfig struct {
	URL           string `yaml:"url" env:"NATS_URL"`
	Timeout       int    `yaml:"timeout" env:"NATS_TIMEOUT"` // seconds
	ReconnectWait int    `yaml:"reconnect_wait" env:"NATS_RECONNECT_WAIT"`
	MaxReconnects int    `yaml:"max_reconnects" env:"NATS_MAX_RECONNECTS"`
	Stream        string `yaml:"stream" env:"NATS_STREAM"`
	SubjectPrefix string `yaml:"subject_prefix" env:"NATS_SUBJECT_PREFIX"`
}

// EscrowConfig engine limits and the account holding escrowed funds
type EscrowConfig struct {
	Account              string `yaml:"account" env:"ESCROW_ACCOUNT"`
	MaxTitleLength       int    `yaml:"max_title_length" env:"ESCROW_MAX_TITLE_LENGTH"`
	MaxDescriptionLength int    `yaml:"max_description_length" env:"ESCROW_MAX_DESCRIPTION_LENGTH"`
	MaxContentIDLength   int    `yaml:"max_content_id_length" env:"ESCROW_MAX_CONTENT_ID_LENGTH"`
	AuditConcurrency     int    `yaml:"audit_concurrency" env:"ESCROW_AUDIT_CONCURRENCY"`
}

// LogConfig logrus level and formatter
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"` // text | json
}

// EnvPrefix prefix of every environment override
const EnvPrefix = "QUID_"

var AppConfig *Config

// LoadConfig Load configuration file, then .env and QUID_* environment overrides.
// A missing file is not an error: defaults and environment still apply.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Printf("✅ [%s] Loading configuration from %s", time.Now().Format("2006-01-02 15:04:05"), configPath)
	case os.IsNotExist(err):
		log.Printf("⚠️ Config file %s not found, using defaults and environment", configPath)
	default:
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// .env only fills variables that are not already set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if err := overrideFromEnv(&config); err != nil {
		return err
	}
	applyDefaults(&config)
	if err := config.Validate(); err != nil {
		return err
	}

	log.Printf("📋 [Config] escrow account=%s, nats=%t, log level=%s", config.Escrow.Account, config.NATS.URL != "", config.Log.Level)

	AppConfig = &config
	return nil
}

// overrideFromEnv overlays QUID_* variables; unset variables keep the file values
func overrideFromEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func applyDefaults(config *Config) {
	if config.Database.Driver == "" {
		config.Database.Driver = "postgres"
	}
	if config.Database.MaxOpenConns <= 0 {
		config.Database.MaxOpenConns = 20
	}
	if config.Database.MaxIdleConns <= 0 {
		config.Database.MaxIdleConns = 5
	}

	if config.NATS.Timeout <= 0 {
		config.NATS.Timeout = 10
	}
	if config.NATS.ReconnectWait <= 0 {
		config.NATS.ReconnectWait = 5
	}
	if config.NATS.MaxReconnects == 0 {
		config.NATS.MaxReconnects = -1
	}
	if config.NATS.Stream == "" {
		config.NATS.Stream = "QUID_ESCROW"
	}
	if config.NATS.SubjectPrefix == "" {
		config.NATS.SubjectPrefix = "quid.escrow"
	}

	if config.Escrow.Account == "" {
		config.Escrow.Account = "quid-escrow"
	}
	if config.Escrow.MaxTitleLength <= 0 {
		config.Escrow.MaxTitleLength = 200
	}
	if config.Escrow.MaxDescriptionLength <= 0 {
		config.Escrow.MaxDescriptionLength = 4096
	}
	if config.Escrow.MaxContentIDLength <= 0 {
		config.Escrow.MaxContentIDLength = 256
	}
	if config.Escrow.AuditConcurrency <= 0 {
		config.Escrow.AuditConcurrency = 4
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// Validate rejects values the engine cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Escrow.Account) == "" {
		return fmt.Errorf("escrow.account must not be blank")
	}
	if len(c.Escrow.Account) > models.PrincipalSize {
		return fmt.Errorf("escrow.account exceeds %d bytes", models.PrincipalSize)
	}
	if c.Escrow.MaxTitleLength > models.TitleSize {
		return fmt.Errorf("escrow.max_title_length %d exceeds the title column (%d)", c.Escrow.MaxTitleLength, models.TitleSize)
	}
	if c.Escrow.MaxContentIDLength > models.ContentIDSize {
		return fmt.Errorf("escrow.max_content_id_length %d exceeds the content_id column (%d)", c.Escrow.MaxContentIDLength, models.ContentIDSize)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Default returns a configuration with every default applied and nothing loaded
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}
