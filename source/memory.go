// Package source provides upstream compressed scans: an in-memory scan, a
// builder that compresses rows into batches, and a parquet store that
// persists batches in files or serves them over HTTP.
package source

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
)

// MemorySource replays a fixed list of batches.
type MemorySource struct {
	batches []*columnar.Batch
	pos     int
	pulls   int
	rescans int
	closed  bool
}

func NewMemorySource(batches ...*columnar.Batch) *MemorySource {
	return &MemorySource{batches: batches}
}

// Append adds batches to the end of the scan.
func (s *MemorySource) Append(batches ...*columnar.Batch) {
	s.batches = append(s.batches, batches...)
}

func (s *MemorySource) Next(ctx context.Context) (*columnar.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, errors.New("memory source is closed")
	}
	s.pulls++
	if s.pos >= len(s.batches) {
		return nil, io.EOF
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}

func (s *MemorySource) Rescan(ctx context.Context) error {
	s.pos = 0
	s.rescans++
	return nil
}

func (s *MemorySource) Close() error {
	s.closed = true
	return nil
}

// Pulls is the number of Next calls, including the one that hit the end.
func (s *MemorySource) Pulls() int { return s.pulls }

func (s *MemorySource) Rescans() int { return s.rescans }

func (s *MemorySource) Closed() bool { return s.closed }
