package recovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/packetfeed/internal/core/domain"
	"github.com/vietddude/packetfeed/internal/indexing/metrics"
	"github.com/vietddude/packetfeed/internal/infra/routing"
	"github.com/vietddude/packetfeed/internal/infra/storage"
)

// Coordinator owns the ResultSet of a run. Network calls are strictly
// sequential: the stream finishes before the first resend, and resends go out
// one at a time in ascending order.
type Coordinator struct {
	fetcher     Fetcher
	policy      *routing.Policy
	sinks       []storage.RecordSink
	runs        storage.RunRepository
	unrecovered storage.UnrecoveredRepository
	observers   []Observer
	log         *slog.Logger
	newRunID    func() string
	now         func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSinks adds record sinks that receive the ordered output.
func WithSinks(sinks ...storage.RecordSink) Option {
	return func(c *Coordinator) {
		c.sinks = append(c.sinks, sinks...)
	}
}

// WithRunRepository persists run reports.
func WithRunRepository(repo storage.RunRepository) Option {
	return func(c *Coordinator) {
		c.runs = repo
	}
}

// WithUnrecoveredRepository queues sequences that could not be recovered.
func WithUnrecoveredRepository(repo storage.UnrecoveredRepository) Option {
	return func(c *Coordinator) {
		c.unrecovered = repo
	}
}

// WithObserver registers a run observer.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observers = append(c.observers, o)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = l
	}
}

// WithRunID overrides run ID generation.
func WithRunID(fn func() string) Option {
	return func(c *Coordinator) {
		c.newRunID = fn
	}
}

// NewCoordinator creates a coordinator. policy wraps the initial fetch only.
func NewCoordinator(fetcher Fetcher, policy *routing.Policy, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher:  fetcher,
		policy:   policy,
		log:      slog.Default(),
		newRunID: uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs one full recovery. The only error it returns is context
// cancellation; connection failures end up as an empty or partial result.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	report := domain.RunReport{
		RunID:     c.newRunID(),
		StartedAt: c.now(),
	}
	log := c.log.With("run_id", report.RunID)
	set := domain.NewResultSet()

	records, err := routing.WithRetry(ctx, c.policy, c.fetcher.StreamAll)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		report.Exhausted = errors.Is(err, routing.ErrExhausted)
		log.Error("Initial fetch failed, nothing to recover", "error", err)
		return c.finish(ctx, log, set, &report), nil
	}

	for _, r := range records {
		set.Put(r)
	}
	report.Received = set.Len()
	if dupes := len(records) - set.Len(); dupes > 0 {
		log.Debug("Duplicate sequences overwritten", "count", dupes)
	}

	missing := set.Missing()
	report.Missing = missing
	if len(missing) == 0 {
		log.Info("Stream complete, no gaps", "records", set.Len())
		return c.finish(ctx, log, set, &report), nil
	}

	lo, hi, _ := set.Bounds()
	log.Info("Gaps detected",
		"records", set.Len(),
		"min_seq", lo,
		"max_seq", hi,
		"missing", len(missing),
		"gaps", domain.FormatGaps(domain.Gaps(missing)),
	)

	for _, seq := range missing {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.resend(ctx, log, set, seq) {
			report.Recovered++
		} else {
			report.Unrecoverable = append(report.Unrecoverable, seq)
		}
	}

	return c.finish(ctx, log, set, &report), nil
}

// resend makes one best-effort attempt for seq. Failures leave seq missing.
func (c *Coordinator) resend(ctx context.Context, log *slog.Logger, set *domain.ResultSet, seq int32) bool {
	if !domain.Addressable(seq) {
		log.Warn("Sequence does not fit the one-byte resend field, request is ambiguous",
			"sequence", seq,
			"wire_byte", byte(seq),
		)
	}

	r, ok, err := c.fetcher.Resend(ctx, seq)
	switch {
	case err != nil:
		metrics.ResendsTotal.WithLabelValues("failed").Inc()
		log.Warn("Resend failed", "sequence", seq, "error", err)
		return false
	case !ok:
		metrics.ResendsTotal.WithLabelValues("unavailable").Inc()
		log.Warn("Packet unavailable", "sequence", seq)
		return false
	case r.Sequence != seq:
		metrics.ResendsTotal.WithLabelValues("mismatch").Inc()
		log.Warn("Resend returned a different sequence", "sequence", seq, "got", r.Sequence)
		return false
	}

	set.Put(r)
	metrics.ResendsTotal.WithLabelValues("recovered").Inc()
	log.Debug("Recovered packet", "sequence", seq)
	return true
}

func (c *Coordinator) finish(
	ctx context.Context,
	log *slog.Logger,
	set *domain.ResultSet,
	report *domain.RunReport,
) *Result {
	ordered := set.Ordered()
	report.Total = len(ordered)
	report.FinishedAt = c.now()
	metrics.MissingSequences.Set(float64(len(report.Unrecoverable)))

	c.persist(ctx, log, ordered, report)

	for _, o := range c.observers {
		o.ObserveRun(*report)
	}

	log.Info("Run finished",
		"status", report.Status(),
		"total", report.Total,
		"received", report.Received,
		"recovered", report.Recovered,
		"unrecoverable", len(report.Unrecoverable),
		"duration", report.Duration(),
	)
	return &Result{Records: ordered, Report: *report}
}

// persist hands the output to every sink and repository. Storage failures are
// logged; they never fail the run.
func (c *Coordinator) persist(
	ctx context.Context,
	log *slog.Logger,
	ordered []domain.Record,
	report *domain.RunReport,
) {
	var g errgroup.Group
	for _, sink := range c.sinks {
		sink := sink
		g.Go(func() error {
			return sink.Write(ctx, report.RunID, ordered)
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("Failed to write records", "error", err)
	}

	if c.runs != nil {
		if err := c.runs.Save(ctx, report); err != nil {
			log.Error("Failed to save run report", "error", err)
		}
	}

	if c.unrecovered != nil && len(report.Unrecoverable) > 0 {
		if err := c.unrecovered.Add(ctx, report.RunID, report.Unrecoverable); err != nil {
			log.Error("Failed to queue unrecoverable sequences", "error", err)
		}
	}
}
