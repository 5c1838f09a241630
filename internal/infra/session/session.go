// Package session performs single request/response round trips against the
// exchange server. Every call dials a fresh connection and closes it before
// returning.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/vietddude/packetfeed/internal/core/domain"
	"github.com/vietddude/packetfeed/internal/indexing/metrics"
	"github.com/vietddude/packetfeed/internal/protocol"
)

// ErrTransient marks connection failures that are worth retrying: refused or
// timed out dials, and I/O errors while writing or reading.
var ErrTransient = errors.New("transient connection failure")

// Defaults applied by New when a timeout is not positive. Every read and dial
// is bounded.
const (
	DefaultReadTimeout = 5 * time.Second
	DefaultDialTimeout = 5 * time.Second
)

// Config holds server address and timeouts.
type Config struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	ReadTimeout time.Duration `yaml:"read_timeout"` // idle read timeout, doubles as end-of-stream
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dialer opens connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Session talks to one server. It holds no connection state between calls.
type Session struct {
	cfg    Config
	dialer Dialer
	log    *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithDialer replaces the default net.Dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) {
		s.dialer = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// New creates a session for cfg.
func New(cfg Config, opts ...Option) *Session {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	s := &Session{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: cfg.DialTimeout},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StreamAll requests every packet and reads until the server closes the
// connection or stays silent for ReadTimeout. The reply has no length or
// terminator, so a timeout ends the stream and whatever arrived is decoded.
func (s *Session) StreamAll(ctx context.Context) ([]domain.Record, error) {
	req := domain.StreamAllRequest()
	buf, err := s.roundTrip(ctx, req, 0)
	if err != nil {
		return nil, err
	}

	records, stats := protocol.DecodeStreamStats(buf)
	metrics.RecordsReceived.Add(float64(len(records)))
	metrics.InvalidChunks.Add(float64(stats.Invalid))
	s.log.Debug("Stream received",
		"bytes", len(buf),
		"records", len(records),
		"invalid", stats.Invalid,
		"trailing_bytes", stats.Trailing,
	)
	return records, nil
}

// Resend requests a single packet. A reply shorter than one packet, or one
// that fails validation, means the packet is unavailable and is reported as
// ok=false with a nil error.
func (s *Session) Resend(ctx context.Context, seq int32) (domain.Record, bool, error) {
	req := domain.ResendRequest(seq)
	buf, err := s.roundTrip(ctx, req, protocol.RecordSize)
	if err != nil {
		return domain.Record{}, false, err
	}
	if len(buf) < protocol.RecordSize {
		s.log.Debug("Short resend reply", "sequence", seq, "bytes", len(buf))
		return domain.Record{}, false, nil
	}
	r, ok := protocol.Decode(buf[:protocol.RecordSize])
	return r, ok, nil
}

func (s *Session) roundTrip(ctx context.Context, req domain.Request, limit int) ([]byte, error) {
	start := time.Now()
	defer func() {
		metrics.SessionLatency.WithLabelValues(req.Type.String()).Observe(time.Since(start).Seconds())
	}()

	dialCtx := ctx
	if s.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.cfg.DialTimeout)
		defer cancel()
	}

	addr := s.cfg.Addr()
	conn, err := s.dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.SessionErrors.WithLabelValues(req.Type.String(), "dial").Inc()
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransient, addr, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	if s.cfg.ReadTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	if _, err := conn.Write(protocol.Encode(req)); err != nil {
		metrics.SessionErrors.WithLabelValues(req.Type.String(), "write").Inc()
		return nil, fmt.Errorf("%w: write %s request: %w", ErrTransient, req.Type, err)
	}

	buf, err := readUntilIdle(conn, s.cfg.ReadTimeout, limit)
	if err != nil {
		metrics.SessionErrors.WithLabelValues(req.Type.String(), "read").Inc()
		return nil, fmt.Errorf("%w: read %s reply: %w", ErrTransient, req.Type, err)
	}
	return buf, nil
}

// readUntilIdle reads until EOF, an idle timeout, or limit bytes (limit <= 0
// means no limit). EOF and timeouts end the read without error.
func readUntilIdle(conn net.Conn, idle time.Duration, limit int) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 4096)

	for limit <= 0 || buf.Len() < limit {
		if idle > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
				return nil, err
			}
		}

		want := chunk
		if limit > 0 {
			want = chunk[:min(len(chunk), limit-buf.Len())]
		}

		n, err := conn.Read(want)
		buf.Write(want[:n])
		if err == nil {
			if n == 0 {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
			break
		}
		return nil, err
	}
	return buf.Bytes(), nil
}
