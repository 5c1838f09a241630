package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/packetfeed/internal/core/config"
	"github.com/vietddude/packetfeed/internal/core/worker"
	"github.com/vietddude/packetfeed/internal/indexing/health"
	"github.com/vietddude/packetfeed/internal/indexing/recovery"
	"github.com/vietddude/packetfeed/internal/infra/redis"
	"github.com/vietddude/packetfeed/internal/infra/routing"
	"github.com/vietddude/packetfeed/internal/infra/session"
	"github.com/vietddude/packetfeed/internal/infra/storage/jsonfile"
	"github.com/vietddude/packetfeed/internal/infra/storage/postgres"
)

var (
	cfgPath   string
	isDebug   bool
	host      string
	port      int
	outputDir string
)

var rootCmd = &cobra.Command{
	Use:   "packetfeed",
	Short: "Fetch every packet from the exchange server",
	Long: `packetfeed streams all packets from the exchange server, re-requests any
sequence missing from the stream and writes the ordered result to a JSON file.`,
	Run: runFetch,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&host, "host", "", "exchange server host (overrides config)")
	rootCmd.PersistentFlags().IntVar(&port, "port", 0, "exchange server port (overrides config)")
	rootCmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for the output file (overrides config)")
}

// loadConfig reads the config file, applies flag overrides and sets up logging.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if host != "" {
		cfg.Server.Host = host
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	if cfg.Logging.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
	} else {
		stylelog.InitDefault(&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	}
	return cfg
}

func runFetch(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Exhaustion is recorded here and acted on once the run has written its
	// output, so an empty artifact and report still get persisted.
	exitCode := 0
	policy := routing.NewPolicy("stream_all", cfg.Retry, routing.WithExiter(func(code int) {
		exitCode = code
	}))

	var pruner *worker.Pruner
	sink := jsonfile.NewSink(cfg.Output)
	opts := []recovery.Option{recovery.WithSinks(sink)}

	if cfg.Database.URL != "" {
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
		runRepo := postgres.NewRunRepo(db)
		opts = append(opts,
			recovery.WithSinks(postgres.NewRecordRepo(db)),
			recovery.WithRunRepository(runRepo),
		)
		pruner = worker.NewPruner(cfg.Database.Retention, runRepo)
	}

	if cfg.Redis.URL != "" {
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = client.Close()
		}()
		opts = append(opts, recovery.WithUnrecoveredRepository(redis.NewUnrecoveredRepo(client, cfg.Redis.TTL)))
	}

	var server *health.Server
	if cfg.Metrics.Port > 0 {
		monitor := health.NewMonitor()
		server = health.NewServer(monitor, cfg.Metrics.Port)
		opts = append(opts, recovery.WithObserver(monitor))
	}

	sess := session.New(cfg.Server)
	coordinator := recovery.NewCoordinator(sess, policy, opts...)

	slog.Info("Starting fetch", "server", cfg.Server.Addr(), "output_dir", cfg.Output.Dir)

	var result *recovery.Result
	g, gctx := errgroup.WithContext(ctx)
	if server != nil {
		g.Go(server.Start)
	}
	g.Go(func() error {
		var err error
		result, err = coordinator.Run(gctx)
		if server != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = server.Stop(shutdownCtx)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		slog.Error("Fetch aborted", "error", err)
		os.Exit(1)
	}

	if pruner != nil {
		pruner.Prune(ctx)
	}

	report := result.Report
	fmt.Printf("run %s: %s, %d packets (%d recovered, %d unrecoverable) -> %s\n",
		report.RunID,
		report.Status(),
		report.Total,
		report.Recovered,
		len(report.Unrecoverable),
		sink.Path(report.RunID),
	)

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
