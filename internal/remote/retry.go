package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/sethvargo/go-retry"
)

// RetryConfig bounds the exponential backoff around remote calls.
type RetryConfig struct {
	MaxRetries  uint64
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// CallTimeout bounds a single attempt. Zero means no per-attempt limit.
	CallTimeout time.Duration
}

// DefaultRetryConfig is used for zero-valued fields.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:  4,
	BaseDelay:   200 * time.Millisecond,
	MaxDelay:    5 * time.Second,
	CallTimeout: 30 * time.Second,
}

// RetryingStore retries transient failures of the wrapped store with
// bounded exponential backoff. Failures that survive every attempt, and
// transient failures in general, are reported as ErrStoreUnavailable.
type RetryingStore struct {
	next Store
	cfg  RetryConfig
}

// WithRetry wraps next with the retry policy.
func WithRetry(next Store, cfg RetryConfig) *RetryingStore {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultRetryConfig.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	return &RetryingStore{next: next, cfg: cfg}
}

// ListAll implements Store.
func (s *RetryingStore) ListAll(ctx context.Context) ([]domain.Record, error) {
	var out []domain.Record
	err := s.do(ctx, "ListAll", func(ctx context.Context) error {
		recs, err := s.next.ListAll(ctx)
		if err != nil {
			return err
		}
		out = recs
		return nil
	})
	return out, err
}

// Upsert implements Store.
func (s *RetryingStore) Upsert(ctx context.Context, recs []domain.Record) error {
	if len(recs) == 0 {
		return nil
	}
	return s.do(ctx, "Upsert", func(ctx context.Context) error {
		return s.next.Upsert(ctx, recs)
	})
}

// Delete implements Store.
func (s *RetryingStore) Delete(ctx context.Context, id string) error {
	return s.do(ctx, "Delete", func(ctx context.Context) error {
		return s.next.Delete(ctx, id)
	})
}

func (s *RetryingStore) backoff() retry.Backoff {
	b := retry.NewExponential(s.cfg.BaseDelay)
	b = retry.WithCappedDuration(s.cfg.MaxDelay, b)
	return retry.WithMaxRetries(s.cfg.MaxRetries, b)
}

func (s *RetryingStore) do(ctx context.Context, op string, fn func(context.Context) error) error {
	log := logger.FromContext(ctx)
	attempt := 0

	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		attempt++
		callCtx := ctx
		if s.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
		}

		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if IsTransient(err) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
			log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("Remote call failed, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}

	if IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrStoreUnavailable, attempt, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Ensure RetryingStore implements Store.
var _ Store = (*RetryingStore)(nil)
