package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/packetfeed/internal/core/domain"
	"github.com/vietddude/packetfeed/internal/infra/storage"
)

// RunRepo implements storage.RunRepository using PostgreSQL.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new PostgreSQL run repository.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

type runRow struct {
	RunID         string        `db:"run_id"`
	StartedAt     time.Time     `db:"started_at"`
	FinishedAt    time.Time     `db:"finished_at"`
	Received      int           `db:"received"`
	Recovered     int           `db:"recovered"`
	Total         int           `db:"total"`
	Missing       pq.Int32Array `db:"missing"`
	Unrecoverable pq.Int32Array `db:"unrecoverable"`
	Exhausted     bool          `db:"exhausted"`
}

func newRunRow(r *domain.RunReport) runRow {
	return runRow{
		RunID:         r.RunID,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		Received:      r.Received,
		Recovered:     r.Recovered,
		Total:         r.Total,
		Missing:       pq.Int32Array(nonNil(r.Missing)),
		Unrecoverable: pq.Int32Array(nonNil(r.Unrecoverable)),
		Exhausted:     r.Exhausted,
	}
}

func (row runRow) toDomain() *domain.RunReport {
	return &domain.RunReport{
		RunID:         row.RunID,
		StartedAt:     row.StartedAt,
		FinishedAt:    row.FinishedAt,
		Received:      row.Received,
		Recovered:     row.Recovered,
		Total:         row.Total,
		Missing:       []int32(row.Missing),
		Unrecoverable: []int32(row.Unrecoverable),
		Exhausted:     row.Exhausted,
	}
}

func nonNil(seqs []int32) []int32 {
	if seqs == nil {
		return []int32{}
	}
	return seqs
}

// Arrays are read back as text so pq.Int32Array can parse them regardless of driver.
const selectRuns = `
	SELECT run_id, started_at, finished_at, received, recovered, total,
	       missing::text AS missing, unrecoverable::text AS unrecoverable, exhausted
	FROM runs`

// Save inserts or replaces a run report.
func (r *RunRepo) Save(ctx context.Context, report *domain.RunReport) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at, received, recovered, total, missing, unrecoverable, exhausted)
		VALUES (:run_id, :started_at, :finished_at, :received, :recovered, :total, :missing, :unrecoverable, :exhausted)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			received = EXCLUDED.received,
			recovered = EXCLUDED.recovered,
			total = EXCLUDED.total,
			missing = EXCLUDED.missing,
			unrecoverable = EXCLUDED.unrecoverable,
			exhausted = EXCLUDED.exhausted`,
		newRunRow(report),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", report.RunID, err)
	}
	return nil
}

// Get retrieves a run report by ID.
func (r *RunRepo) Get(ctx context.Context, runID string) (*domain.RunReport, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, selectRuns+` WHERE run_id = $1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return row.toDomain(), nil
}

// List returns the most recent reports, newest first.
func (r *RunRepo) List(ctx context.Context, limit int) ([]*domain.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, selectRuns+` ORDER BY started_at DESC LIMIT $1`, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	reports := make([]*domain.RunReport, len(rows))
	for i, row := range rows {
		reports[i] = row.toDomain()
	}
	return reports, nil
}

// DeleteBefore removes runs started before the given time together with their
// packets.
func (r *RunRepo) DeleteBefore(ctx context.Context, before time.Time) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM packets WHERE run_id IN (SELECT run_id FROM runs WHERE started_at < $1)`, before); err != nil {
		return 0, fmt.Errorf("failed to delete packets: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return int(n), nil
}

var (
	_ storage.RunRepository = (*RunRepo)(nil)
	_ storage.RunPruner     = (*RunRepo)(nil)
)
