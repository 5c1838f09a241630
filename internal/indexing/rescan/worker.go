// Package rescan drains sequences that earlier runs could not recover. Each
// queued sequence gets one more resend; recovered packets are written to the
// sinks under their original run ID and removed from the queue.
package rescan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/vietddude/packetfeed/internal/core/domain"
	"github.com/vietddude/packetfeed/internal/infra/storage"
)

// Resender requests a single packet. *session.Session satisfies it.
type Resender interface {
	Resend(ctx context.Context, seq int32) (domain.Record, bool, error)
}

// Summary counts what a pass did.
type Summary struct {
	Runs      int
	Attempted int
	Recovered int
}

// Worker processes the rescan queue.
type Worker struct {
	queue    storage.RescanQueue
	resender Resender
	sinks    []storage.RecordSink
	runs     storage.RunRepository
	log      *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithSinks adds sinks that receive recovered packets.
func WithSinks(sinks ...storage.RecordSink) Option {
	return func(w *Worker) {
		w.sinks = append(w.sinks, sinks...)
	}
}

// WithRunRepository keeps stored run reports in step with what a rescan
// recovers.
func WithRunRepository(repo storage.RunRepository) Option {
	return func(w *Worker) {
		w.runs = repo
	}
}

// NewWorker creates a new rescan worker.
func NewWorker(queue storage.RescanQueue, resender Resender, opts ...Option) *Worker {
	w := &Worker{
		queue:    queue,
		resender: resender,
		log:      slog.Default().With("component", "rescan"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run makes one pass over every queued run.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	runIDs, err := w.queue.Runs(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list queued runs: %w", err)
	}

	var total Summary
	for _, runID := range runIDs {
		s, err := w.RunOne(ctx, runID)
		total.Runs += s.Runs
		total.Attempted += s.Attempted
		total.Recovered += s.Recovered
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// RunOne retries the queued sequences of a single run. A run with nothing
// left pending, for example because its queue expired, is dropped from the
// queue and not counted.
func (w *Worker) RunOne(ctx context.Context, runID string) (Summary, error) {
	log := w.log.With("run_id", runID)
	var summary Summary

	pending, err := w.queue.Pending(ctx, runID)
	if err != nil {
		return summary, fmt.Errorf("failed to read queue for run %s: %w", runID, err)
	}
	if len(pending) == 0 {
		if err := w.queue.Forget(ctx, runID); err != nil {
			return summary, fmt.Errorf("failed to drop empty run %s: %w", runID, err)
		}
		log.Debug("Dropped run with nothing pending")
		return summary, nil
	}
	summary.Runs = 1
	log.Info("Processing queued sequences", "count", len(pending))

	var recovered []domain.Record
	for _, seq := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Attempted++

		r, ok, err := w.resender.Resend(ctx, seq)
		switch {
		case err != nil:
			log.Warn("Resend failed", "sequence", seq, "error", err)
			continue
		case !ok:
			log.Debug("Packet still unavailable", "sequence", seq)
			continue
		case r.Sequence != seq:
			log.Warn("Resend returned a different sequence", "sequence", seq, "got", r.Sequence)
			continue
		}
		recovered = append(recovered, r)
	}

	if len(recovered) == 0 {
		return summary, nil
	}

	// Only dequeue what reached every sink.
	for _, sink := range w.sinks {
		if err := sink.Write(ctx, runID, recovered); err != nil {
			return summary, fmt.Errorf("failed to write recovered packets for run %s: %w", runID, err)
		}
	}
	for _, r := range recovered {
		if err := w.queue.Resolve(ctx, runID, r.Sequence); err != nil {
			return summary, fmt.Errorf("failed to resolve sequence %d: %w", r.Sequence, err)
		}
	}

	summary.Recovered = len(recovered)
	w.updateReport(ctx, log, runID, recovered)
	log.Info("Rescan completed", "recovered", summary.Recovered, "still_missing", len(pending)-summary.Recovered)
	return summary, nil
}

// updateReport moves recovered sequences out of the stored report's
// unrecoverable list. Failures are logged; the packets are already stored.
func (w *Worker) updateReport(ctx context.Context, log *slog.Logger, runID string, recovered []domain.Record) {
	if w.runs == nil {
		return
	}

	report, err := w.runs.Get(ctx, runID)
	if errors.Is(err, storage.ErrRunNotFound) {
		return
	}
	if err != nil {
		log.Warn("Failed to load run report", "error", err)
		return
	}

	for _, r := range recovered {
		if i := slices.Index(report.Unrecoverable, r.Sequence); i >= 0 {
			report.Unrecoverable = slices.Delete(report.Unrecoverable, i, i+1)
			report.Recovered++
			report.Total++
		}
	}
	if err := w.runs.Save(ctx, report); err != nil {
		log.Warn("Failed to update run report", "error", err)
	}
}
