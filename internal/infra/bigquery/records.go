package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-ledger/internal/domain"
)

// ExpenseRecordRow mirrors one row of the expense_records table.
type ExpenseRecordRow struct {
	ID bigquery.NullString `bigquery:"id"` // NULLABLE so rows inserted by other tools can be repaired

	Date        bigquery.NullDate   `bigquery:"date"`        // NULLABLE
	Category    bigquery.NullString `bigquery:"category"`    // NULLABLE
	Description bigquery.NullString `bigquery:"description"` // NULLABLE
	Vendor      bigquery.NullString `bigquery:"vendor"`      // NULLABLE
	Amount      bigquery.NullInt64  `bigquery:"amount"`      // NULLABLE INT64
	ReceiptURL  bigquery.NullString `bigquery:"receipt_url"` // NULLABLE

	CreatedTS bigquery.NullTimestamp `bigquery:"created_ts"` // NULLABLE (default CURRENT_TIMESTAMP)
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

// recordParam is the STRUCT element of the @rows array used by MERGE.
// Dates travel as YYYY-MM-DD strings; "" means unset.
type recordParam struct {
	ID          string    `bigquery:"id"`
	Date        string    `bigquery:"date"`
	Category    string    `bigquery:"category"`
	Description string    `bigquery:"description"`
	Vendor      string    `bigquery:"vendor"`
	Amount      int64     `bigquery:"amount"`
	ReceiptURL  string    `bigquery:"receipt_url"`
	CreatedTS   time.Time `bigquery:"created_ts"`
}

// ToRecord converts a row into a normalized domain record. NULL text reads
// as unset; a NULL or negative amount reads as zero.
func (r *ExpenseRecordRow) ToRecord() domain.Record {
	rec := domain.Record{
		ID:          r.ID.StringVal,
		Category:    r.Category.StringVal,
		Description: r.Description.StringVal,
		Vendor:      r.Vendor.StringVal,
		ReceiptRef:  r.ReceiptURL.StringVal,
	}
	if r.Date.Valid {
		rec.Date = r.Date.Date
	}
	if r.Amount.Valid {
		rec.Amount = r.Amount.Int64
	}
	if r.CreatedTS.Valid {
		rec.CreatedAt = r.CreatedTS.Timestamp
	}
	return rec.Normalize()
}

func toParam(rec domain.Record, now time.Time) recordParam {
	rec = rec.Normalize()
	p := recordParam{
		ID:          rec.ID,
		Category:    rec.Category,
		Description: rec.Description,
		Vendor:      rec.Vendor,
		Amount:      rec.Amount,
		ReceiptURL:  rec.ReceiptRef,
		CreatedTS:   rec.CreatedAt.UTC(),
	}
	if rec.HasDate() {
		p.Date = rec.Date.String()
	}
	if rec.CreatedAt.IsZero() {
		p.CreatedTS = now.UTC()
	}
	return p
}
