package app

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/Quid-proquo/Quid/internal/clients"
	"github.com/Quid-proquo/Quid/internal/config"
	"github.com/Quid-proquo/Quid/internal/db"
	"github.com/Quid-proquo/Quid/internal/events"
	"github.com/Quid-proquo/Quid/internal/interfaces"
	"github.com/Quid-proquo/Quid/internal/repository"
	"github.com/Quid-proquo/Quid/internal/services"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer wires storage, token ledger, publisher and the engine
type ServiceContainer struct {
	// Database; nil for the in-memory backend
	DB *gorm.DB

	Logger *logrus.Logger

	// Storage
	Transactor repository.Transactor
	// Balances reads outside transactions (audit)
	Balances interfaces.TokenGateway
	// MemoryLedger is set for the in-memory backend only
	MemoryLedger *clients.MemoryTokenLedger

	// Events
	Publisher events.Publisher

	// Core Services
	Engine  *services.EscrowEngine
	Auditor *services.EscrowAuditor
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the global container from config.AppConfig and db.DB
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		log.Println("🚀 Initializing Service Container...")
		if config.AppConfig == nil {
			initErr = fmt.Errorf("configuration not loaded")
			return
		}

		container, err := NewContainer(config.AppConfig, db.DB)
		if err != nil {
			initErr = err
			return
		}

		Container = container
		log.Println("✅ Service Container initialized successfully")
	})

	return Container, initErr
}

// NewContainer wires a container over conn, or over process memory when conn is nil
func NewContainer(cfg *config.Config, conn *gorm.DB) (*ServiceContainer, error) {
	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	c := &ServiceContainer{DB: conn, Logger: logger}
	c.initRepositories()

	publisher, err := events.InitPublisher(cfg.NATS)
	if err != nil {
		// publishing is best effort, the ledger runs without it
		logger.WithError(err).Warn("ledger events disabled")
		publisher = events.NoopPublisher{}
	}
	c.Publisher = publisher

	c.initCoreServices(cfg)
	return c, nil
}

// initRepositories picks the gorm or the in-memory backend
func (c *ServiceContainer) initRepositories() {
	if c.DB != nil {
		c.Transactor = repository.NewGormTransactor(c.DB, clients.GatewayFactory)
		c.Balances = clients.NewLedgerTokenGateway(c.DB)
		c.Logger.Info("📦 Using postgres ledger storage")
		return
	}

	ledger := clients.NewMemoryTokenLedger()
	c.MemoryLedger = ledger
	c.Balances = ledger
	c.Transactor = repository.NewMemoryTransactor(repository.NewMemoryStore(), ledger)
	c.Logger.Info("📦 Using in-memory ledger storage")
}

func (c *ServiceContainer) initCoreServices(cfg *config.Config) {
	limits := services.Limits{
		MaxTitleLength:       cfg.Escrow.MaxTitleLength,
		MaxDescriptionLength: cfg.Escrow.MaxDescriptionLength,
		MaxContentIDLength:   cfg.Escrow.MaxContentIDLength,
	}
	c.Engine = services.NewEscrowEngine(c.Transactor, cfg.Escrow.Account, limits, c.Publisher, c.Logger)
	c.Auditor = services.NewEscrowAuditor(c.Transactor, c.Balances, cfg.Escrow.Account, cfg.Escrow.AuditConcurrency, c.Logger)
	c.Engine.SetAuditor(c.Auditor)

	c.Logger.WithFields(logrus.Fields{
		"escrow_account": cfg.Escrow.Account,
	}).Info("✅ Escrow engine initialized")
}

// NewLogger builds a logrus logger from the log section
func NewLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(parsed)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// Cleanup closes the NATS connection and the database pool
func (c *ServiceContainer) Cleanup() {
	events.ClosePublisher()
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
