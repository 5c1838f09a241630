package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/packetfeed/internal/infra/storage"
)

// Pruner deletes old runs based on retention policy.
type Pruner struct {
	retention time.Duration
	runs      storage.RunPruner
	now       func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, runs storage.RunPruner) *Pruner {
	return &Pruner{
		retention: retention,
		runs:      runs,
		now:       time.Now,
	}
}

// Prune deletes runs older than the retention period and returns how many
// were removed. Failures are logged.
func (p *Pruner) Prune(ctx context.Context) int {
	if p.retention <= 0 {
		return 0
	}

	threshold := p.now().Add(-p.retention)
	n, err := p.runs.DeleteBefore(ctx, threshold)
	if err != nil {
		slog.Error("Failed to prune runs", "before", threshold, "error", err)
		return 0
	}
	if n > 0 {
		slog.Info("Pruned old runs", "count", n, "before", threshold)
	}
	return n
}
