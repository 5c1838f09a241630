// Package recovery drives a complete fetch: stream every packet, find the
// sequence gaps, re-request each missing packet and hand the ordered result
// to the configured sinks.
//
// Only gaps strictly between the lowest and highest observed sequence can be
// detected; the protocol gives no signal of the true range.
//
// # Usage
//
//	sess := session.New(cfg.Server)
//	policy := routing.NewPolicy("stream_all", cfg.Retry)
//	coord := recovery.NewCoordinator(sess, policy, recovery.WithSinks(sink))
//	result, err := coord.Run(ctx)
package recovery

import (
	"context"

	"github.com/vietddude/packetfeed/internal/core/domain"
)

// Fetcher performs the two protocol round trips.
type Fetcher interface {
	// StreamAll returns every packet the server sends for a stream-all request
	StreamAll(ctx context.Context) ([]domain.Record, error)

	// Resend returns one packet, ok=false when the server has nothing for it
	Resend(ctx context.Context, seq int32) (domain.Record, bool, error)
}

// Observer is notified once per finished run.
type Observer interface {
	ObserveRun(report domain.RunReport)
}

// Result is the outcome of one run.
type Result struct {
	Records []domain.Record
	Report  domain.RunReport
}
