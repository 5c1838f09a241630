package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/packetfeed/internal/indexing/rescan"
	"github.com/vietddude/packetfeed/internal/infra/redis"
	"github.com/vietddude/packetfeed/internal/infra/session"
	"github.com/vietddude/packetfeed/internal/infra/storage/postgres"
)

var rescanRunID string

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Retry sequences earlier runs could not recover",
	Long: `rescan reads the sequences queued in redis by earlier runs, requests each
one again and stores the packets that come back in the database.`,
	Run: runRescan,
}

func init() {
	rescanCmd.Flags().StringVar(&rescanRunID, "run", "", "only rescan this run")
	rootCmd.AddCommand(rescanCmd)
}

func runRescan(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Redis.URL == "" || cfg.Database.URL == "" {
		slog.Error("rescan needs both redis.url and database.url")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	worker := rescan.NewWorker(
		redis.NewUnrecoveredRepo(client, cfg.Redis.TTL),
		session.New(cfg.Server),
		rescan.WithSinks(postgres.NewRecordRepo(db)),
		rescan.WithRunRepository(postgres.NewRunRepo(db)),
	)

	var summary rescan.Summary
	if rescanRunID != "" {
		summary, err = worker.RunOne(ctx, rescanRunID)
	} else {
		summary, err = worker.Run(ctx)
	}
	if err != nil {
		slog.Error("Rescan failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("rescanned %d runs: %d of %d sequences recovered\n", summary.Runs, summary.Recovered, summary.Attempted)
}
