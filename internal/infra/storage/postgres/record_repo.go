package postgres

import (
	"context"
	"fmt"

	"github.com/vietddude/packetfeed/internal/core/domain"
	"github.com/vietddude/packetfeed/internal/infra/storage"
)

// batchSize keeps each multi-row INSERT well under the bind parameter limit.
const batchSize = 500

// RecordRepo implements storage.RecordSink using PostgreSQL.
type RecordRepo struct {
	db *DB
}

// NewRecordRepo creates a new PostgreSQL record sink.
func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

type packetRow struct {
	RunID string `db:"run_id"`
	storage.ExportRecord
}

// Write stores all records of a run in a single transaction.
func (r *RecordRepo) Write(ctx context.Context, runID string, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		rows := make([]packetRow, 0, end-start)
		for _, rec := range records[start:end] {
			rows = append(rows, packetRow{RunID: runID, ExportRecord: storage.ToExport(rec)})
		}

		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO packets (run_id, packet_sequence, symbol, buy_sell_indicator, quantity, price)
			VALUES (:run_id, :packet_sequence, :symbol, :buy_sell_indicator, :quantity, :price)
			ON CONFLICT (run_id, packet_sequence) DO NOTHING`,
			rows,
		)
		if err != nil {
			return fmt.Errorf("failed to insert packets: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit packets: %w", err)
	}
	return nil
}

// Records reads back the stored records of a run, ordered by sequence.
func (r *RecordRepo) Records(ctx context.Context, runID string) ([]domain.Record, error) {
	var rows []storage.ExportRecord
	err := r.db.SelectContext(ctx, &rows, `
		SELECT packet_sequence, symbol, buy_sell_indicator, quantity, price
		FROM packets WHERE run_id = $1 ORDER BY packet_sequence`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to read packets: %w", err)
	}

	records := make([]domain.Record, len(rows))
	for i, row := range rows {
		records[i] = storage.FromExport(row)
	}
	return records, nil
}
