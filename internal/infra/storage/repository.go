package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/packetfeed/internal/core/domain"
)

var (
	// ErrRunNotFound is returned when a run report doesn't exist
	ErrRunNotFound = errors.New("run not found")
)

// RecordSink persists the ordered output of a run.
type RecordSink interface {
	// Write stores records, already ordered by sequence, under runID
	Write(ctx context.Context, runID string, records []domain.Record) error
}

// RunRepository handles run report storage operations
type RunRepository interface {
	// Save saves a run report
	Save(ctx context.Context, report *domain.RunReport) error

	// Get retrieves a run report by ID
	Get(ctx context.Context, runID string) (*domain.RunReport, error)

	// List returns the most recent reports, newest first
	List(ctx context.Context, limit int) ([]*domain.RunReport, error)
}

// RunPruner removes old runs and their records.
type RunPruner interface {
	// DeleteBefore deletes runs started before the given time and returns how many
	DeleteBefore(ctx context.Context, before time.Time) (int, error)
}

// UnrecoveredRepository queues sequences a run could not recover
type UnrecoveredRepository interface {
	// Add queues the given sequences for runID
	Add(ctx context.Context, runID string, seqs []int32) error

	// Pending returns the queued sequences for runID, ascending
	Pending(ctx context.Context, runID string) ([]int32, error)
}

// RescanQueue is an UnrecoveredRepository that can be drained.
type RescanQueue interface {
	UnrecoveredRepository

	// Runs lists run IDs that still have queued sequences
	Runs(ctx context.Context) ([]string, error)

	// Resolve removes a sequence that has since been recovered
	Resolve(ctx context.Context, runID string, seq int32) error

	// Forget drops runID and whatever is still queued for it
	Forget(ctx context.Context, runID string) error
}

// ExportRecord is the persisted shape of a record.
type ExportRecord struct {
	Symbol           string `json:"Symbol"           db:"symbol"`
	BuySellIndicator string `json:"BuySellIndicator" db:"buy_sell_indicator"`
	Quantity         int32  `json:"Quantity"         db:"quantity"`
	Price            int32  `json:"Price"            db:"price"`
	PacketSequence   int32  `json:"PacketSequence"   db:"packet_sequence"`
}

// ToExport converts a record to its persisted shape.
func ToExport(r domain.Record) ExportRecord {
	return ExportRecord{
		Symbol:           r.Symbol,
		BuySellIndicator: r.Side.Indicator(),
		Quantity:         r.Quantity,
		Price:            r.Price,
		PacketSequence:   r.Sequence,
	}
}

// FromExport converts a persisted record back to a domain record.
func FromExport(e ExportRecord) domain.Record {
	var side domain.Side
	if len(e.BuySellIndicator) == 1 {
		side = domain.Side(e.BuySellIndicator[0])
	}
	return domain.Record{
		Symbol:   e.Symbol,
		Side:     side,
		Quantity: e.Quantity,
		Price:    e.Price,
		Sequence: e.PacketSequence,
	}
}
