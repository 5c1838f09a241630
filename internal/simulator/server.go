// Package simulator serves the exchange wire protocol from an in-memory
// packet set. It backs the `serve` command and the network tests.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/vietddude/packetfeed/internal/core/domain"
	"github.com/vietddude/packetfeed/internal/protocol"
)

// Config controls what the server hands out.
type Config struct {
	Records []domain.Record

	// DropFromStream lists sequences omitted from stream-all replies.
	DropFromStream []int32
	// Unavailable lists sequences a resend will not return.
	Unavailable []int32
	// TruncateResend, when > 0, cuts resend replies to that many bytes.
	TruncateResend int
	// Garbage appends an invalid packet after every stream-all reply.
	Garbage bool
	// HoldOpen keeps the connection open after a stream-all reply so the
	// client has to rely on its idle timeout.
	HoldOpen time.Duration
}

// Server is a single-listener TCP server.
type Server struct {
	cfg      Config
	dropped  map[int32]bool
	refused  map[int32]bool
	listener net.Listener
	cancel   context.CancelFunc
	log      *slog.Logger

	mu       sync.Mutex
	requests []domain.Request

	wg sync.WaitGroup
}

// New creates a server for cfg.
func New(cfg Config) *Server {
	return &Server{
		cfg:     cfg,
		dropped: toSet(cfg.DropFromStream),
		refused: toSet(cfg.Unavailable),
		log:     slog.Default().With("component", "simulator"),
	}
}

// Listen binds the server to addr. Use "127.0.0.1:0" for an ephemeral port.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or the listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// Start listens on addr and serves in the background. Stop with Close.
func (s *Server) Start(addr string) error {
	if err := s.Listen(addr); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		if err := s.Serve(ctx); err != nil {
			s.log.Error("Serve stopped", "error", err)
		}
	}()
	return nil
}

// Close stops accepting connections and ends a Serve started by Start.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.listener.Close()
}

// Requests returns every request received so far, in arrival order.
func (s *Server) Requests() []domain.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) handle(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var hdr [protocol.RequestSize]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		s.log.Debug("Failed to read request", "error", err)
		return
	}
	req := domain.Request{Type: domain.RequestType(hdr[0]), Sequence: hdr[1]}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	switch req.Type {
	case domain.RequestStreamAll:
		s.streamAll(conn)
	case domain.RequestResend:
		s.resend(conn, req.Sequence)
	default:
		s.log.Warn("Unknown call type", "type", hdr[0])
	}
}

func (s *Server) streamAll(conn net.Conn) {
	for _, r := range s.cfg.Records {
		if s.dropped[r.Sequence] {
			continue
		}
		if _, err := conn.Write(protocol.EncodeRecord(r)); err != nil {
			s.log.Debug("Write failed", "error", err)
			return
		}
	}
	if s.cfg.Garbage {
		junk := protocol.EncodeRecord(domain.Record{Symbol: "JUNK", Side: '?', Quantity: 1, Sequence: 1})
		_, _ = conn.Write(junk)
	}
	if s.cfg.HoldOpen > 0 {
		time.Sleep(s.cfg.HoldOpen)
	}
}

func (s *Server) resend(conn net.Conn, seq byte) {
	for _, r := range s.cfg.Records {
		if byte(r.Sequence) != seq || s.refused[r.Sequence] {
			continue
		}
		payload := protocol.EncodeRecord(r)
		if n := s.cfg.TruncateResend; n > 0 && n < len(payload) {
			payload = payload[:n]
		}
		_, _ = conn.Write(payload)
		return
	}
}

// SampleRecords builds n deterministic packets with sequences 1..n.
func SampleRecords(n int) []domain.Record {
	symbols := []string{"MSFT", "AAPL", "AMZN", "META"}
	records := make([]domain.Record, n)
	for i := range records {
		side := domain.SideBuy
		if i%3 == 2 {
			side = domain.SideSell
		}
		records[i] = domain.Record{
			Symbol:   symbols[i%len(symbols)],
			Side:     side,
			Quantity: int32(10 * (i%7 + 1)),
			Price:    int32(10000 + 25*i),
			Sequence: int32(i + 1),
		}
	}
	return records
}

func toSet(seqs []int32) map[int32]bool {
	set := make(map[int32]bool, len(seqs))
	for _, seq := range seqs {
		set[seq] = true
	}
	return set
}
