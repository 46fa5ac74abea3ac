// Command migrate manages the postgres schema.
//
//	migrate [--env=path/to/.env] up|status|down
package main

import (
	"context"
	"os"
	"strings"

	"github.com/warp/savings-engine/internal/config"
	"github.com/warp/savings-engine/pkg/logger"
	"github.com/warp/savings-engine/store/postgres"
)

func main() {
	defer logger.Sync()

	envPath, command := parseArgs(os.Args[1:])
	if err := config.Load(envPath); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Get()

	target := postgres.Config{
		User:     cfg.PostgresWriteUser,
		Host:     cfg.PostgresWriteHost,
		Port:     cfg.PostgresWritePort,
		Password: cfg.PostgresWritePassword,
		Database: cfg.PostgresWriteDatabase,
	}

	ctx := context.Background()
	var err error
	switch command {
	case "up":
		err = postgres.Migrate(ctx, target)
	case "status":
		err = postgres.MigrationStatus(ctx, target)
	case "down":
		err = postgres.Rollback(ctx, target)
	default:
		logger.Error("unknown command, want up, status or down", "command", command)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("migration failed", "command", command, "error", err)
		os.Exit(1)
	}
}

// parseArgs returns the --env= path and the command, which defaults to up.
func parseArgs(args []string) (envPath, command string) {
	command = "up"
	for _, a := range args {
		if strings.HasPrefix(a, "--env=") {
			envPath = strings.TrimPrefix(a, "--env=")
			continue
		}
		command = a
	}
	return envPath, command
}
