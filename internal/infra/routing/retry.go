// Package routing wraps session calls with the retry policy.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/packetfeed/internal/indexing/metrics"
	"github.com/vietddude/packetfeed/internal/infra/session"
)

// ErrExhausted is returned once every attempt has failed with a transient error.
var ErrExhausted = errors.New("retries exhausted")

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"` // attempts after the first
	Delay            time.Duration `yaml:"delay"`        // fixed wait between attempts
	ExitOnExhaustion bool          `yaml:"exit_on_exhaustion"`
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	Delay:       2 * time.Second,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

func (a ErrorAction) String() string {
	if a == ActionRetry {
		return "retry"
	}
	return "fatal"
}

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionFatal
	}

	// Dial and read timeouts match context.DeadlineExceeded through errors.Is,
	// so the session's own marker has to win over the context sentinels.
	if errors.Is(err, session.ErrTransient) {
		return ActionRetry
	}

	// context.DeadlineExceeded also satisfies net.Error, check it before net.Error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ActionRetry
	}

	return ActionFatal
}

// Exiter terminates the process with the given status code.
type Exiter func(code int)

// Policy applies a RetryConfig to named operations.
type Policy struct {
	name string
	cfg  RetryConfig
	exit Exiter
	log  *slog.Logger
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithExiter replaces os.Exit, used when ExitOnExhaustion is set.
func WithExiter(exit Exiter) PolicyOption {
	return func(p *Policy) {
		p.exit = exit
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PolicyOption {
	return func(p *Policy) {
		p.log = l
	}
}

// NewPolicy creates a policy for the operation called name.
func NewPolicy(name string, cfg RetryConfig, opts ...PolicyOption) *Policy {
	p := &Policy{
		name: name,
		cfg:  cfg,
		exit: os.Exit,
		log:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the policy's retry configuration.
func (p *Policy) Config() RetryConfig {
	return p.cfg
}

func (p *Policy) backoff() retry.Backoff {
	delay := p.cfg.Delay
	if delay <= 0 {
		delay = time.Nanosecond
	}
	return retry.WithMaxRetries(uint64(max(p.cfg.MaxAttempts, 0)), retry.NewConstant(delay))
}

// WithRetry runs op, retrying transient failures up to MaxAttempts more times
// with a fixed delay. Non-transient errors are returned at once. When every
// attempt fails the returned error wraps ErrExhausted and, if the policy has
// ExitOnExhaustion set, the process is terminated.
func WithRetry[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var (
		result  T
		attempt int
	)

	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		v, err := op(ctx)
		if err == nil {
			result = v
			return nil
		}
		if ClassifyError(err) == ActionFatal {
			return err
		}

		metrics.RetryAttempts.WithLabelValues(p.name, "failed").Inc()
		p.log.Warn("Attempt failed",
			"operation", p.name,
			"attempt", attempt,
			"max_attempts", p.cfg.MaxAttempts+1,
			"error", err,
		)
		return retry.RetryableError(err)
	})
	if err == nil {
		return result, nil
	}

	var zero T
	if ClassifyError(err) == ActionFatal {
		return zero, err
	}

	metrics.RetryAttempts.WithLabelValues(p.name, "exhausted").Inc()
	exhausted := fmt.Errorf("%w: %s failed after %d attempts: %w", ErrExhausted, p.name, attempt, err)
	if p.cfg.ExitOnExhaustion {
		p.log.Error("Giving up, terminating", "operation", p.name, "error", err)
		p.exit(1)
	}
	return zero, exhausted
}
