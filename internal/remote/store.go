// Package remote defines the remote record store boundary and the retry
// policy wrapped around every remote call.
package remote

import (
	"context"
	"errors"

	"github.com/dvloznov/expense-ledger/internal/domain"
)

// ErrStoreUnavailable marks a remote failure that persisted through retries.
// A cycle that sees it degrades to local-only and keeps its pending changes.
var ErrStoreUnavailable = errors.New("remote store unavailable")

// Store is the remote side of reconciliation. Implementations upsert and
// delete by record id; deleting an absent id is not an error.
// This interface enables mocking and alternate backends.
type Store interface {
	ListAll(ctx context.Context) ([]domain.Record, error)
	Upsert(ctx context.Context, recs []domain.Record) error
	Delete(ctx context.Context, id string) error
}

// Transient wraps err so the retry decorator retries it. Backends use it
// for failures that may succeed on a later attempt (timeouts, 5xx, rate limits).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }
