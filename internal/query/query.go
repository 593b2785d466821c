// Package query filters and summarizes an in-memory record set.
// Nothing here performs I/O or keeps state between calls.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/expense-ledger/internal/domain"
)

// All selects every month or every category in a View.
const All = ""

// View is the filter state a caller is looking at. Callers pass it in
// explicitly; nothing global remembers it.
type View struct {
	// Month is YYYY-MM or All.
	Month string
	// Category is a category name or All. Matching ignores case.
	Category string
}

// Field is a grouping key for GroupSum.
type Field string

const (
	ByCategory Field = "category"
	ByMonth    Field = "month"
	ByVendor   Field = "vendor"
)

// ParseField parses a grouping key.
func ParseField(s string) (Field, error) {
	switch f := Field(strings.ToLower(strings.TrimSpace(s))); f {
	case ByCategory, ByMonth, ByVendor:
		return f, nil
	case "":
		return ByCategory, nil
	}
	return "", fmt.Errorf("unknown summary field %q (use category, month or vendor)", s)
}

// Filter returns the records matching v, in input order.
func Filter(recs []domain.Record, v View) []domain.Record {
	out := make([]domain.Record, 0, len(recs))
	for _, rec := range recs {
		if v.Month != All && rec.Month() != v.Month {
			continue
		}
		if v.Category != All && !strings.EqualFold(rec.Category, strings.TrimSpace(v.Category)) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Group is one row of a summary.
type Group struct {
	Key   string `json:"key"`
	Total int64  `json:"total"`
	Count int    `json:"count"`
}

// GroupSum totals amounts per key of field.
func GroupSum(recs []domain.Record, field Field) map[string]int64 {
	out := make(map[string]int64)
	for _, rec := range recs {
		out[key(rec, field)] += rec.Amount
	}
	return out
}

// Summarize returns GroupSum as rows. Months sort newest first; other keys
// sort by descending total, then name.
func Summarize(recs []domain.Record, field Field) []Group {
	byKey := make(map[string]*Group)
	for _, rec := range recs {
		k := key(rec, field)
		g, ok := byKey[k]
		if !ok {
			g = &Group{Key: k}
			byKey[k] = g
		}
		g.Total += rec.Amount
		g.Count++
	}

	out := make([]Group, 0, len(byKey))
	for _, g := range byKey {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if field == ByMonth {
			return out[i].Key > out[j].Key
		}
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Total sums every amount.
func Total(recs []domain.Record) int64 {
	var sum int64
	for _, rec := range recs {
		sum += rec.Amount
	}
	return sum
}

// Months lists the distinct months present, newest first. Undated
// records are not listed.
func Months(recs []domain.Record) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range recs {
		m := rec.Month()
		if m == domain.Unset {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// Categories lists the distinct categories present, sorted.
func Categories(recs []domain.Record) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range recs {
		if domain.IsUnset(rec.Category) {
			continue
		}
		if _, ok := seen[rec.Category]; ok {
			continue
		}
		seen[rec.Category] = struct{}{}
		out = append(out, rec.Category)
	}
	sort.Strings(out)
	return out
}

func key(rec domain.Record, field Field) string {
	switch field {
	case ByMonth:
		return rec.Month()
	case ByVendor:
		return domain.NormalizeText(rec.Vendor)
	}
	return domain.NormalizeText(rec.Category)
}
