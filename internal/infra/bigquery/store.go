package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/dvloznov/expense-ledger/internal/remote"
	"google.golang.org/api/googleapi"
)

// RecordStore is the BigQuery implementation of remote.Store. It holds a
// shared BigQuery client to avoid creating a new connection for each operation.
type RecordStore struct {
	client *bigquery.Client
	table  TableRef
}

// NewRecordStore creates a store for projectID.dataset.table. Empty dataset
// and table fall back to DefaultDataset and DefaultTable.
func NewRecordStore(ctx context.Context, projectID, dataset, table string) (*RecordStore, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	if table == "" {
		table = DefaultTable
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRecordStore: creating client: %w", err)
	}
	return &RecordStore{
		client: client,
		table:  TableRef{ProjectID: projectID, Dataset: dataset, Table: table},
	}, nil
}

// Close closes the BigQuery client connection.
func (s *RecordStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ListAll implements remote.Store. Rows without an id are repaired first.
func (s *RecordStore) ListAll(ctx context.Context) ([]domain.Record, error) {
	repaired, err := RepairRecordIDsWithClient(ctx, s.client, s.table)
	if err != nil {
		return nil, classify(err)
	}
	if repaired > 0 {
		log := logger.FromContext(ctx)
		log.Info().
			Int64("rows", repaired).
			Str("table", s.table.Table).
			Msg("Assigned ids to remote rows without one")
	}

	rows, err := ListRecordsWithClient(ctx, s.client, s.table)
	if err != nil {
		return nil, classify(err)
	}

	recs := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.ToRecord())
	}
	return recs, nil
}

// Upsert implements remote.Store.
func (s *RecordStore) Upsert(ctx context.Context, recs []domain.Record) error {
	now := nowUTC()
	params := make([]recordParam, 0, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("Upsert: record id is required")
		}
		params = append(params, toParam(rec, now))
	}
	return classify(UpsertRecordsWithClient(ctx, s.client, s.table, params))
}

// Delete implements remote.Store.
func (s *RecordStore) Delete(ctx context.Context, id string) error {
	return classify(DeleteRecordWithClient(ctx, s.client, s.table, id))
}

// classify marks rate limits, server errors and timeouts as transient so
// the retry decorator retries them.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return remote.Transient(err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return remote.Transient(err)
	}
	return err
}

// Ensure RecordStore implements remote.Store.
var _ remote.Store = (*RecordStore)(nil)
