package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/Quid-proquo/Quid/internal/app"
	"github.com/Quid-proquo/Quid/internal/clients"
	"github.com/Quid-proquo/Quid/internal/config"
	"github.com/Quid-proquo/Quid/internal/db"
	"github.com/Quid-proquo/Quid/internal/models"
	"github.com/Quid-proquo/Quid/internal/repository"
	"github.com/Quid-proquo/Quid/internal/services"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "quid-admin",
	Short: "Operator tooling for the Quid escrow ledger",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(configPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the ledger tables and run pending data migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("🔧 Migrating ledger schema...")
		conn, err := db.Open(config.AppConfig.Database)
		if err != nil {
			return err
		}
		if err := db.Migrate(conn); err != nil {
			return err
		}

		sqlDB, err := db.OpenSQL(config.AppConfig.Database)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		applied, err := db.RunDataMigrations(sqlDB)
		if err != nil {
			return err
		}
		fmt.Printf("✅ Schema up to date, %d data migration(s) applied\n", applied)
		return nil
	},
}

var crossCheckSQL bool

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check the escrow account holds exactly the open pools plus live stakes",
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := openContainer()
		if err != nil {
			return err
		}
		defer container.Cleanup()

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		report, err := container.Engine.Audit(ctx)
		if err != nil {
			return err
		}
		if err := printJSON(report); err != nil {
			return err
		}

		ok := report.OK
		if crossCheckSQL {
			sqlOK, err := crossCheck(ctx, report.Tokens)
			if err != nil {
				return err
			}
			ok = ok && sqlOK
		}
		if !ok {
			return fmt.Errorf("escrow audit failed")
		}
		fmt.Println("✅ Escrow audit passed")
		return nil
	},
}

var treasuryCmd = &cobra.Command{
	Use:   "treasury [address]",
	Short: "Show the treasury, or set it when an address is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := openContainer()
		if err != nil {
			return err
		}
		defer container.Cleanup()

		ctx := cmd.Context()
		if len(args) == 1 {
			if err := container.Engine.SetTreasury(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("✅ Treasury set to %s\n", args[0])
			return nil
		}

		treasury, err := container.Engine.GetTreasury(ctx)
		if err != nil {
			return err
		}
		fmt.Println(treasury)
		return nil
	},
}

var creditCmd = &cobra.Command{
	Use:   "credit <token> <account> <amount>",
	Short: "Credit an account in the ledger balances table",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[2], err)
		}
		container, err := openContainer()
		if err != nil {
			return err
		}
		defer container.Cleanup()

		gateway := clients.NewLedgerTokenGateway(container.DB)
		if err := gateway.Credit(cmd.Context(), args[0], args[1], amount); err != nil {
			return err
		}
		balance, err := gateway.BalanceOf(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("✅ %s balance of %s: %d\n", args[0], args[1], balance)
		return nil
	},
}

var (
	missionOwner  string
	missionStatus string
)

var missionsCmd = &cobra.Command{
	Use:   "missions",
	Short: "List missions",
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := openContainer()
		if err != nil {
			return err
		}
		defer container.Cleanup()

		missions, err := container.Engine.ListMissions(cmd.Context(), repository.MissionFilter{
			Owner:  missionOwner,
			Status: models.MissionStatus(missionStatus),
		})
		if err != nil {
			return err
		}
		return printJSON(missions)
	},
}

// openContainer connects to postgres and wires the engine over it
func openContainer() (*app.ServiceContainer, error) {
	if config.AppConfig.Database.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if err := db.InitDB(); err != nil {
		return nil, err
	}
	return app.InitializeContainer()
}

// crossCheck compares the audit against totals recomputed in plain SQL
func crossCheck(ctx context.Context, tokens []services.TokenAudit) (bool, error) {
	sqlDB, err := db.OpenSQL(config.AppConfig.Database)
	if err != nil {
		return false, err
	}
	defer sqlDB.Close()

	totals, err := db.ReadEscrowTotals(ctx, sqlDB)
	if err != nil {
		return false, err
	}

	ok := true
	names := make([]string, 0, len(totals))
	for token := range totals {
		names = append(names, token)
	}
	sort.Strings(names)

	byToken := make(map[string]services.TokenAudit, len(tokens))
	for _, t := range tokens {
		byToken[t.Token] = t
	}
	for _, token := range names {
		sqlTotal := totals[token]
		audited, found := byToken[token]
		if !found || audited.Expected != sqlTotal.Expected() {
			ok = false
			log.Printf("❌ %s: audit expected %d, SQL expected %d", token, audited.Expected, sqlTotal.Expected())
			continue
		}
		fmt.Printf("📋 %s: SQL totals match (rewards %d, stakes %d)\n", token, sqlTotal.Rewards, sqlTotal.Stakes)
	}
	for _, t := range tokens {
		if _, found := totals[t.Token]; !found && t.Expected != 0 {
			ok = false
			log.Printf("❌ %s: audit expected %d, SQL has no escrow", t.Token, t.Expected)
		}
	}
	return ok, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	auditCmd.Flags().BoolVar(&crossCheckSQL, "sql", false, "cross-check expected totals with plain SQL")
	missionsCmd.Flags().StringVar(&missionOwner, "owner", "", "only missions of this owner")
	missionsCmd.Flags().StringVar(&missionStatus, "status", "", "open, paused or cancelled")

	rootCmd.AddCommand(migrateCmd, auditCmd, treasuryCmd, creditCmd, missionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("❌ %v", err)
		os.Exit(1)
	}
}
