package localstore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/expense-ledger/internal/domain"
)

// Column names written to the ledger file, in order.
var Columns = []string{"id", "date", "category", "description", "vendor", "amount", "receipt_ref", "created_at"}

// columnAliases maps accepted header spellings to column names. The legacy
// spreadsheet used title-case headers and a bare "Receipt" column.
var columnAliases = map[string]string{
	"id":          "id",
	"date":        "date",
	"category":    "category",
	"description": "description",
	"vendor":      "vendor",
	"amount":      "amount",
	"receipt_ref": "receipt_ref",
	"receipt":     "receipt_ref",
	"receipt_url": "receipt_ref",
	"created_at":  "created_at",
}

// cellIssue describes one repaired cell.
type cellIssue struct {
	Row    int
	Column string
	Value  string
}

func (c cellIssue) String() string {
	return fmt.Sprintf("row %d column %s: %q", c.Row, c.Column, c.Value)
}

// decodeRows converts a table (header first) into records. Columns missing
// from the header read as unset. Unparseable cells are replaced by unset or
// zero and reported as issues.
func decodeRows(rows [][]string) ([]domain.Record, []cellIssue) {
	if len(rows) == 0 {
		return nil, nil
	}

	index := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if col, ok := columnAliases[key]; ok {
			if _, seen := index[col]; !seen {
				index[col] = i
			}
		}
	}

	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var (
		recs   []domain.Record
		issues []cellIssue
	)
	for n, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		rowNum := n + 2

		rec := domain.Record{
			ID:          strings.TrimSpace(cell(row, "id")),
			Category:    cell(row, "category"),
			Description: cell(row, "description"),
			Vendor:      cell(row, "vendor"),
			ReceiptRef:  cell(row, "receipt_ref"),
		}
		if domain.IsUnset(rec.ID) {
			rec.ID = ""
		}

		if raw := cell(row, "date"); !domain.IsUnset(raw) {
			d, ok := domain.ParseDate(raw)
			if !ok {
				issues = append(issues, cellIssue{Row: rowNum, Column: "date", Value: raw})
			}
			rec.Date = d
		}

		if raw := cell(row, "amount"); !domain.IsUnset(raw) {
			amount, ok := parseAmount(raw)
			if !ok {
				issues = append(issues, cellIssue{Row: rowNum, Column: "amount", Value: raw})
			}
			rec.Amount = amount
		}

		if raw := cell(row, "created_at"); !domain.IsUnset(raw) {
			if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw)); err == nil {
				rec.CreatedAt = ts
			} else {
				issues = append(issues, cellIssue{Row: rowNum, Column: "created_at", Value: raw})
			}
		}

		recs = append(recs, rec.Normalize())
	}

	return recs, issues
}

// encodeRows converts records into a table with the header first.
func encodeRows(recs []domain.Record) [][]string {
	rows := make([][]string, 0, len(recs)+1)
	rows = append(rows, append([]string(nil), Columns...))
	for _, rec := range recs {
		rec = rec.Normalize()
		createdAt := domain.Unset
		if !rec.CreatedAt.IsZero() {
			createdAt = rec.CreatedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			rec.ID,
			rec.DateString(),
			rec.Category,
			rec.Description,
			rec.Vendor,
			strconv.FormatInt(rec.Amount, 10),
			rec.ReceiptRef,
			createdAt,
		})
	}
	return rows
}

// parseAmount accepts integers, spreadsheet floats such as "5000.0" and
// thousands separators. Fractions are rounded; negative or unparseable
// values yield zero and ok == false.
func parseAmount(raw string) (int64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, false
		}
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return int64(math.Round(f)), true
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
