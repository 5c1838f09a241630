package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/packetfeed/internal/simulator"
)

var (
	serveRecords     int
	serveDrop        []int32
	serveUnavailable []int32
	serveGarbage     bool
	serveHoldOpen    time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local exchange server for testing",
	Long: `serve starts a TCP server speaking the exchange protocol on the configured
host and port. Sequences can be dropped from the stream or refused on resend
to exercise gap recovery.`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&serveRecords, "records", 14, "number of packets to serve")
	serveCmd.Flags().Int32SliceVar(&serveDrop, "drop", nil, "sequences left out of the stream")
	serveCmd.Flags().Int32SliceVar(&serveUnavailable, "unavailable", nil, "sequences refused on resend")
	serveCmd.Flags().BoolVar(&serveGarbage, "garbage", false, "append an invalid packet to every stream")
	serveCmd.Flags().DurationVar(&serveHoldOpen, "hold-open", 0, "keep stream connections open for this long")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := simulator.New(simulator.Config{
		Records:        simulator.SampleRecords(serveRecords),
		DropFromStream: serveDrop,
		Unavailable:    serveUnavailable,
		Garbage:        serveGarbage,
		HoldOpen:       serveHoldOpen,
	})
	if err := srv.Listen(cfg.Server.Addr()); err != nil {
		slog.Error("Failed to start server", "error", err)
		os.Exit(1)
	}

	slog.Info("Serving packets", "addr", srv.Addr().String(), "records", serveRecords, "dropped", serveDrop)
	if err := srv.Serve(ctx); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
