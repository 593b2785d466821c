// Package localstore keeps the full record set in a flat tabular file
// (.csv or .xlsx). Every write rewrites the whole file atomically.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/google/uuid"
	"github.com/moby/sys/atomicwriter"
)

// DefaultSheet is the worksheet used for .xlsx ledgers.
const DefaultSheet = "Expenses"

// Store reads and writes the ledger file. It is safe for concurrent use;
// no two writes interleave and readers never see a partial file.
type Store struct {
	path  string
	codec codec
	newID func() string

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator overrides the generator used to repair missing ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New creates a store for path. The format follows the file extension;
// sheet names the worksheet for .xlsx files.
func New(path, sheet string, opts ...Option) (*Store, error) {
	c, err := codecFor(path, sheet)
	if err != nil {
		return nil, fmt.Errorf("localstore.New: %w", err)
	}

	s := &Store{
		path:  path,
		codec: c,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the ledger file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads every record. A missing file is an empty ledger. Rows without
// an id get one and the repaired file is written back before returning.
func (s *Store) Load(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Load: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	rows, err := s.codec.decode(data)
	if err != nil {
		return nil, fmt.Errorf("Load: decode %s: %w", s.path, err)
	}

	recs, issues := decodeRows(rows)
	for _, issue := range issues {
		log.Warn().
			Err(domain.ErrMalformedRecord).
			Str("file", s.path).
			Str("cell", issue.String()).
			Msg("Repaired unparseable cell")
	}

	repaired := 0
	for i := range recs {
		if recs[i].ID == "" {
			recs[i].ID = s.newID()
			repaired++
		}
	}

	if repaired > 0 || len(issues) > 0 {
		if err := s.write(recs); err != nil {
			return nil, fmt.Errorf("Load: persist repaired rows: %w", err)
		}
		log.Info().
			Str("file", s.path).
			Int("ids_assigned", repaired).
			Int("cells_repaired", len(issues)).
			Msg("Repaired ledger file")
	}

	return recs, nil
}

// Replace rewrites the file with exactly recs.
func (s *Store) Replace(ctx context.Context, recs []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(recs); err != nil {
		return fmt.Errorf("Replace: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("file", s.path).
		Int("records", len(recs)).
		Msg("Wrote ledger file")
	return nil
}

// write must be called with s.mu held.
func (s *Store) write(recs []domain.Record) error {
	prev, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	data, err := s.codec.encode(prev, encodeRows(recs))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := atomicwriter.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
