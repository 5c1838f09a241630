package session

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/packetfeed/internal/core/domain"
	"github.com/vietddude/packetfeed/internal/protocol"
	"github.com/vietddude/packetfeed/internal/simulator"
)

func startSimulator(t *testing.T, cfg simulator.Config) Config {
	t.Helper()
	srv := simulator.New(cfg)
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("failed to start simulator: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	host, portStr, _ := net.SplitHostPort(srv.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return Config{
		Host:        host,
		Port:        port,
		ReadTimeout: 500 * time.Millisecond,
		DialTimeout: time.Second,
	}
}

// =============================================================================
// Fakes
// =============================================================================

type failingDialer struct {
	calls int
}

func (d *failingDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d.calls++
	return nil, errors.New("connection refused")
}

type trackedConn struct {
	net.Conn
	closed *atomic.Bool
}

func (c trackedConn) Close() error {
	c.closed.Store(true)
	return c.Conn.Close()
}

// pipeDialer hands out one end of a net.Pipe and runs serve on the other.
type pipeDialer struct {
	serve  func(conn net.Conn)
	closed atomic.Bool
}

func (d *pipeDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		d.serve(server)
	}()
	return trackedConn{Conn: client, closed: &d.closed}, nil
}

func readRequest(conn net.Conn) domain.Request {
	var hdr [protocol.RequestSize]byte
	_, _ = io.ReadFull(conn, hdr[:])
	return domain.Request{Type: domain.RequestType(hdr[0]), Sequence: hdr[1]}
}

// =============================================================================
// StreamAll
// =============================================================================

func TestStreamAll_ReadsUntilPeerCloses(t *testing.T) {
	cfg := startSimulator(t, simulator.Config{
		Records:        simulator.SampleRecords(5),
		DropFromStream: []int32{3},
	})

	records, err := New(cfg).StreamAll(context.Background())
	if err != nil {
		t.Fatalf("StreamAll failed: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	if records[2].Sequence != 4 {
		t.Errorf("expected third record to be sequence 4, got %d", records[2].Sequence)
	}
}

func TestStreamAll_IdleTimeoutEndsStream(t *testing.T) {
	cfg := startSimulator(t, simulator.Config{
		Records:  simulator.SampleRecords(3),
		HoldOpen: 3 * time.Second,
	})
	cfg.ReadTimeout = 200 * time.Millisecond

	start := time.Now()
	records, err := New(cfg).StreamAll(context.Background())
	if err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 records, got %d", len(records))
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("expected idle timeout to end the read early, took %v", elapsed)
	}
}

func TestStreamAll_SkipsInvalidPackets(t *testing.T) {
	cfg := startSimulator(t, simulator.Config{
		Records: simulator.SampleRecords(2),
		Garbage: true,
	})

	records, err := New(cfg).StreamAll(context.Background())
	if err != nil {
		t.Fatalf("StreamAll failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("expected garbage packet to be dropped, got %d records", len(records))
	}
}

func TestStreamAll_DropsTrailingPartialPacket(t *testing.T) {
	full := protocol.EncodeRecord(simulator.SampleRecords(1)[0])
	d := &pipeDialer{serve: func(conn net.Conn) {
		readRequest(conn)
		_, _ = conn.Write(full)
		_, _ = conn.Write(full[:10])
	}}

	records, err := New(Config{ReadTimeout: time.Second}, WithDialer(d)).StreamAll(context.Background())
	if err != nil {
		t.Fatalf("StreamAll failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}
	if !d.closed.Load() {
		t.Error("connection was not closed")
	}
}

func TestStreamAll_DialFailureIsTransient(t *testing.T) {
	d := &failingDialer{}
	_, err := New(Config{Host: "127.0.0.1", Port: 1}, WithDialer(d)).StreamAll(context.Background())
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if d.calls != 1 {
		t.Errorf("session must not retry on its own, dialed %d times", d.calls)
	}
}

func TestStreamAll_RefusedConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	cfg := Config{Host: "127.0.0.1", Port: port, ReadTimeout: time.Second, DialTimeout: time.Second}
	if _, err := New(cfg).StreamAll(context.Background()); !errors.Is(err, ErrTransient) {
		t.Errorf("expected ErrTransient for refused connection, got %v", err)
	}
}

func TestStreamAll_CancelledContextIsNotTransient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{Host: "127.0.0.1", Port: 1}, WithDialer(&failingDialer{})).StreamAll(ctx)
	if errors.Is(err, ErrTransient) {
		t.Error("cancellation should surface as a context error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// =============================================================================
// Resend
// =============================================================================

func TestResend_ReturnsRequestedPacket(t *testing.T) {
	cfg := startSimulator(t, simulator.Config{Records: simulator.SampleRecords(5)})

	r, ok, err := New(cfg).Resend(context.Background(), 4)
	if err != nil {
		t.Fatalf("Resend failed: %v", err)
	}
	if !ok || r.Sequence != 4 {
		t.Errorf("expected sequence 4, got %+v (ok=%v)", r, ok)
	}
}

func TestResend_UnavailableIsNotAnError(t *testing.T) {
	cfg := startSimulator(t, simulator.Config{
		Records:     simulator.SampleRecords(5),
		Unavailable: []int32{2},
	})

	_, ok, err := New(cfg).Resend(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected unavailable record")
	}
}

func TestResend_ShortReadIsUnavailable(t *testing.T) {
	cfg := startSimulator(t, simulator.Config{
		Records:        simulator.SampleRecords(5),
		TruncateResend: 16,
	})

	_, ok, err := New(cfg).Resend(context.Background(), 1)
	if err != nil {
		t.Fatalf("short read must not be an error: %v", err)
	}
	if ok {
		t.Error("expected short read to be unavailable")
	}
}

func TestResend_StopsAfterOnePacket(t *testing.T) {
	records := simulator.SampleRecords(2)
	var got domain.Request
	d := &pipeDialer{serve: func(conn net.Conn) {
		got = readRequest(conn)
		_, _ = conn.Write(protocol.EncodeRecord(records[0]))
		// A second packet on the same connection must be ignored; the write
		// blocks on the pipe until the client closes its end.
		_, _ = conn.Write(protocol.EncodeRecord(records[1]))
	}}

	r, ok, err := New(Config{ReadTimeout: time.Second}, WithDialer(d)).Resend(context.Background(), 1)
	if err != nil || !ok {
		t.Fatalf("Resend failed: ok=%v err=%v", ok, err)
	}
	if r.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", r.Sequence)
	}
	if got.Type != domain.RequestResend || got.Sequence != 1 {
		t.Errorf("unexpected request on the wire: %+v", got)
	}
	if !d.closed.Load() {
		t.Error("connection was not closed")
	}
}

func TestResend_TruncatesSequenceOnTheWire(t *testing.T) {
	reqs := make(chan domain.Request, 1)
	d := &pipeDialer{serve: func(conn net.Conn) {
		reqs <- readRequest(conn)
	}}

	_, ok, err := New(Config{ReadTimeout: 200 * time.Millisecond}, WithDialer(d)).Resend(context.Background(), 257)
	if err != nil || ok {
		t.Fatalf("expected empty reply, got ok=%v err=%v", ok, err)
	}
	if got := <-reqs; got.Sequence != 1 {
		t.Errorf("expected 257 to go out as byte 1, got %d", got.Sequence)
	}
}

func TestConfig_Addr(t *testing.T) {
	if got := (Config{Host: "127.0.0.1", Port: 3000}).Addr(); got != "127.0.0.1:3000" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestNew_BoundsEveryRead(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		read time.Duration
		dial time.Duration
	}{
		{"zero", Config{}, DefaultReadTimeout, DefaultDialTimeout},
		{"negative", Config{ReadTimeout: -1, DialTimeout: -1}, DefaultReadTimeout, DefaultDialTimeout},
		{"explicit", Config{ReadTimeout: time.Second, DialTimeout: 2 * time.Second}, time.Second, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.cfg)
			if s.cfg.ReadTimeout != tt.read || s.cfg.DialTimeout != tt.dial {
				t.Errorf("got read=%v dial=%v, want read=%v dial=%v",
					s.cfg.ReadTimeout, s.cfg.DialTimeout, tt.read, tt.dial)
			}
		})
	}
}
