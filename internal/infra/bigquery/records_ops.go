package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

const (
	// DefaultDataset and DefaultTable match migrations/bigquery.
	DefaultDataset = "expenses"
	DefaultTable   = "expense_records"

	// upsertBatchSize bounds the @rows array of a single MERGE.
	upsertBatchSize = 500
)

// TableRef identifies the expense_records table.
type TableRef struct {
	ProjectID string
	Dataset   string
	Table     string
}

// FQN returns the backtick-quoted fully qualified table name.
func (t TableRef) FQN() string {
	return "`" + t.ProjectID + "." + t.Dataset + "." + t.Table + "`"
}

// ListRecordsWithClient reads every row of the table.
func ListRecordsWithClient(ctx context.Context, client *bigquery.Client, t TableRef) ([]*ExpenseRecordRow, error) {
	q := client.Query(`
		SELECT
			id,
			date,
			category,
			description,
			vendor,
			amount,
			receipt_url,
			created_ts,
			updated_ts
		FROM ` + t.FQN() + `
		ORDER BY created_ts, id
	`)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecords: query read: %w", err)
	}

	var rows []*ExpenseRecordRow
	for {
		var r ExpenseRecordRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecords: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}

// RepairRecordIDsWithClient assigns a UUID to rows without an id so they
// can be upserted and deleted by id like every other row.
func RepairRecordIDsWithClient(ctx context.Context, client *bigquery.Client, t TableRef) (int64, error) {
	q := client.Query(`
		UPDATE ` + t.FQN() + `
		SET id = GENERATE_UUID(),
		    updated_ts = CURRENT_TIMESTAMP()
		WHERE id IS NULL OR TRIM(id) = ''
	`)

	status, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("RepairRecordIDs: %w", err)
	}

	var affected int64
	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			affected = stats.NumDMLAffectedRows
		}
	}
	return affected, nil
}

// upsertSQL inserts new ids and replaces every field of existing ones.
func upsertSQL(t TableRef) string {
	return `
		MERGE ` + t.FQN() + ` T
		USING UNNEST(@rows) S
		ON T.id = S.id
		WHEN MATCHED THEN UPDATE SET
			date = SAFE.PARSE_DATE('%Y-%m-%d', NULLIF(S.date, '')),
			category = S.category,
			description = S.description,
			vendor = S.vendor,
			amount = S.amount,
			receipt_url = S.receipt_url,
			updated_ts = CURRENT_TIMESTAMP()
		WHEN NOT MATCHED THEN INSERT
			(id, date, category, description, vendor, amount, receipt_url, created_ts)
		VALUES
			(S.id, SAFE.PARSE_DATE('%Y-%m-%d', NULLIF(S.date, '')), S.category, S.description,
			 S.vendor, S.amount, S.receipt_url, S.created_ts)
	`
}

// UpsertRecordsWithClient merges params into the table by id.
func UpsertRecordsWithClient(ctx context.Context, client *bigquery.Client, t TableRef, params []recordParam) error {
	for start := 0; start < len(params); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(params) {
			end = len(params)
		}

		q := client.Query(upsertSQL(t))
		q.Parameters = []bigquery.QueryParameter{
			{Name: "rows", Value: params[start:end]},
		}

		if _, err := runDML(ctx, q); err != nil {
			return fmt.Errorf("UpsertRecords: batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// DeleteRecordWithClient deletes the row with id. Deleting an absent id
// affects no rows and is not an error.
func DeleteRecordWithClient(ctx context.Context, client *bigquery.Client, t TableRef, id string) error {
	q := client.Query(`
		DELETE FROM ` + t.FQN() + `
		WHERE id = @id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: id},
	}

	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("DeleteRecord: %w", err)
	}
	return nil
}

func runDML(ctx context.Context, q *bigquery.Query) (*bigquery.JobStatus, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("job error: %w", err)
	}

	return status, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
