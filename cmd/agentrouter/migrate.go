package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/BaSui01/agentrouter/internal/migration"
)

// =============================================================================
// 🗄️ 审计库迁移命令
// =============================================================================

// runMigrate 处理 migrate 子命令：up / down / status / version / goto N / force N
func runMigrate(args []string) error {
	if len(args) < 1 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printMigrateUsage()
		return nil
	}

	sub := args[0]
	fs := flag.NewFlagSet("migrate "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args[1:])

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	m, err := migration.FromDatabaseConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	return migration.NewCLI(m).Run(context.Background(), sub, fs.Args()...)
}

func printMigrateUsage() {
	fmt.Println(`Audit Database Migration Commands

Usage:
  agentrouter migrate <subcommand> [--config <path>] [args]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  status      Show migration status
  version     Show current migration version
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)

The database is taken from the 'database' section of the config
(or AGENTROUTER_DATABASE_* environment variables).`)
}
