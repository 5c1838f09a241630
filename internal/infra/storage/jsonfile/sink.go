// Package jsonfile writes each run's records to its own JSON file.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vietddude/packetfeed/internal/core/domain"
	"github.com/vietddude/packetfeed/internal/infra/storage"
)

// Config controls where artifacts land.
type Config struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
}

// Sink implements storage.RecordSink.
type Sink struct {
	cfg Config
}

// NewSink creates a sink writing under cfg.Dir.
func NewSink(cfg Config) *Sink {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "packets"
	}
	return &Sink{cfg: cfg}
}

// Path returns the artifact path for runID.
func (s *Sink) Path(runID string) string {
	return filepath.Join(s.cfg.Dir, fmt.Sprintf("%s_%s.json", s.cfg.Prefix, runID))
}

// Write creates the artifact for runID. An existing file is never overwritten.
func (s *Sink) Write(ctx context.Context, runID string, records []domain.Record) error {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	out := make([]storage.ExportRecord, len(records))
	for i, r := range records {
		out[i] = storage.ToExport(r)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}

	path := s.Path(runID)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
