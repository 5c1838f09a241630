package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/packetfeed/internal/core/domain"
	"github.com/vietddude/packetfeed/internal/infra/storage"
)

type MemoryStorage struct {
	records     map[string][]domain.Record
	runs        map[string]*domain.RunReport
	unrecovered map[string]map[int32]struct{}
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records:     make(map[string][]domain.Record),
		runs:        make(map[string]*domain.RunReport),
		unrecovered: make(map[string]map[int32]struct{}),
	}
}

// -----------------------------------------------------------------------------
// Record Sink
// -----------------------------------------------------------------------------

func (s *MemoryStorage) Write(ctx context.Context, runID string, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Later writes for the same run add to it, as a rescan does.
	existing := s.records[runID]
	merged := make([]domain.Record, 0, len(existing)+len(records))
	merged = append(merged, existing...)
	merged = append(merged, records...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Sequence < merged[j].Sequence })
	s.records[runID] = merged
	return nil
}

// Records returns what was written for runID.
func (s *MemoryStorage) Records(runID string) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[runID]
}

// -----------------------------------------------------------------------------
// Run Repository
// -----------------------------------------------------------------------------

type RunRepo struct {
	store *MemoryStorage
}

func NewRunRepo(store *MemoryStorage) *RunRepo {
	return &RunRepo{store: store}
}

func (r *RunRepo) Save(ctx context.Context, report *domain.RunReport) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *report
	r.store.runs[report.RunID] = &cp
	return nil
}

func (r *RunRepo) Get(ctx context.Context, runID string) (*domain.RunReport, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	report, ok := r.store.runs[runID]
	if !ok {
		return nil, storage.ErrRunNotFound
	}
	cp := *report
	return &cp, nil
}

func (r *RunRepo) List(ctx context.Context, limit int) ([]*domain.RunReport, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.RunReport, 0, len(r.store.runs))
	for _, report := range r.store.runs {
		cp := *report
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RunRepo) DeleteBefore(ctx context.Context, before time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n := 0
	for runID, report := range r.store.runs {
		if report.StartedAt.Before(before) {
			delete(r.store.runs, runID)
			delete(r.store.records, runID)
			n++
		}
	}
	return n, nil
}

// -----------------------------------------------------------------------------
// Unrecovered Repository
// -----------------------------------------------------------------------------

type UnrecoveredRepo struct {
	store *MemoryStorage
}

func NewUnrecoveredRepo(store *MemoryStorage) *UnrecoveredRepo {
	return &UnrecoveredRepo{store: store}
}

func (r *UnrecoveredRepo) Add(ctx context.Context, runID string, seqs []int32) error {
	if len(seqs) == 0 {
		return nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	set, ok := r.store.unrecovered[runID]
	if !ok {
		set = make(map[int32]struct{})
		r.store.unrecovered[runID] = set
	}
	for _, seq := range seqs {
		set[seq] = struct{}{}
	}
	return nil
}

func (r *UnrecoveredRepo) Pending(ctx context.Context, runID string) ([]int32, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]int32, 0, len(r.store.unrecovered[runID]))
	for seq := range r.store.unrecovered[runID] {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *UnrecoveredRepo) Runs(ctx context.Context) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]string, 0, len(r.store.unrecovered))
	for runID := range r.store.unrecovered {
		out = append(out, runID)
	}
	sort.Strings(out)
	return out, nil
}

func (r *UnrecoveredRepo) Resolve(ctx context.Context, runID string, seq int32) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	set := r.store.unrecovered[runID]
	delete(set, seq)
	if len(set) == 0 {
		delete(r.store.unrecovered, runID)
	}
	return nil
}

func (r *UnrecoveredRepo) Forget(ctx context.Context, runID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.unrecovered, runID)
	return nil
}

var (
	_ storage.RecordSink    = (*MemoryStorage)(nil)
	_ storage.RunRepository = (*RunRepo)(nil)
	_ storage.RunPruner     = (*RunRepo)(nil)
	_ storage.RescanQueue   = (*UnrecoveredRepo)(nil)
)
