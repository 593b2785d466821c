// Package receipts reads vendor, date and total from a receipt image so
// the record builder can prefill fields the user left empty.
package receipts

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-ledger/internal/domain"
)

// DefaultModelName is the default Gemini model used for receipt scanning.
const DefaultModelName = "gemini-2.5-flash"

// Scanner provides an interface for receipt extraction.
// This interface enables mocking and testing of the AI call.
type Scanner interface {
	Scan(ctx context.Context, data []byte, mimeType string) (Extraction, error)
}

// Extraction holds what a scanner read from a receipt. Unknown fields are
// left at their zero value or Unset.
type Extraction struct {
	Date     civil.Date
	Vendor   string
	Amount   int64
	Category string
}

// Apply fills unset fields of rec from e. Fields the user set are kept.
func (e Extraction) Apply(rec domain.Record) domain.Record {
	if !rec.HasDate() && e.Date.IsValid() {
		rec.Date = e.Date
	}
	if domain.IsUnset(rec.Vendor) && !domain.IsUnset(e.Vendor) {
		rec.Vendor = e.Vendor
	}
	if rec.Amount == 0 && e.Amount > 0 {
		rec.Amount = e.Amount
	}
	if domain.IsUnset(rec.Category) && !domain.IsUnset(e.Category) {
		rec.Category = e.Category
	}
	return rec.Normalize()
}

// modelReceipt is the JSON object the model is asked to return.
type modelReceipt struct {
	Date     *string  `json:"date"`
	Vendor   *string  `json:"vendor"`
	Total    *float64 `json:"total"`
	Category *string  `json:"category"`
}

// parseExtraction decodes a model reply into an Extraction.
func parseExtraction(raw string) (Extraction, error) {
	var m modelReceipt
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &m); err != nil {
		return Extraction{}, fmt.Errorf("parseExtraction: unmarshal JSON: %w\nraw response: %s", err, raw)
	}

	e := Extraction{Vendor: domain.Unset, Category: domain.Unset}
	if m.Date != nil {
		if d, ok := domain.ParseDate(*m.Date); ok {
			e.Date = d
		}
	}
	if m.Vendor != nil {
		e.Vendor = domain.NormalizeText(*m.Vendor)
	}
	if m.Total != nil && *m.Total > 0 && !math.IsInf(*m.Total, 0) {
		e.Amount = int64(math.Round(*m.Total))
	}
	if m.Category != nil {
		e.Category = domain.NormalizeText(*m.Category)
	}
	return e, nil
}

// cleanModelJSON strips Markdown fences and any text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
