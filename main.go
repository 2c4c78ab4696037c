package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"settlement/cmd"
	"settlement/config"
	"settlement/database"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

func main() {
	config.LoadDotEnv()
	if os.Getenv("LOG_LEVEL") == "debug" {
		log.SetLevel(log.DebugLevel)
	}

	// Check for migration subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(); err != nil {
			log.Fatal("Migration error: ", err)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) > 1 && os.Args[1] == "payout" {
		if err := handlePayoutCommand(ctx, os.Args[2:]); err != nil {
			log.Fatal("Payout error: ", err)
		}
		return
	}

	if err := cmd.Run(ctx); err != nil {
		log.Fatal("Application error: ", err)
	}
}

func handlePayoutCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("payout", flag.ContinueOnError)
	distributionID := fs.Int64("distribution-id", 0, "APPROVED distribution to execute, or to simulate with --dry-run")
	dryRun := fs.Bool("dry-run", false, "Simulate every transfer without calling the stablecoin adapter")
	batchSize := fs.Int("batch-size", 0, "Receipts per batch for --dry-run (0 = PAYOUT_BATCH_SIZE)")
	retryRun := fs.Int64("retry-run", 0, "Retry the FAILED and undispatched receipts of this payout run")
	initiatedBy := fs.String("initiated-by", "cli", "Operator recorded on the payout run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return cmd.RunPayout(ctx, cmd.PayoutOptions{
		DistributionID: *distributionID,
		RetryRunID:     *retryRun,
		DryRun:         *dryRun,
		BatchSize:      *batchSize,
		InitiatedBy:    *initiatedBy,
	}, os.Stdout)
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: settlement migrate [up|down|status] [args...]")
	}

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
