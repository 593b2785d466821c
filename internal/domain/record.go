package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Unset is the explicit marker stored for an empty text field.
// Stores never persist an absent value; they persist Unset.
const Unset = "-"

// Record is one expense entry as both stores see it.
// The zero civil.Date means the date is unset.
type Record struct {
	ID          string
	Date        civil.Date
	Category    string
	Description string
	Vendor      string
	Amount      int64
	ReceiptRef  string
	CreatedAt   time.Time // tie-breaker only, never compared during merge
}

// NormalizeText maps blank and spreadsheet null spellings to Unset.
func NormalizeText(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", Unset, "nan", "none", "null", "nat", "<na>":
		return Unset
	}
	return s
}

// IsUnset reports whether a text field carries no value.
func IsUnset(s string) bool {
	return NormalizeText(s) == Unset
}

// Normalize returns a copy with every text field normalized and
// negative amounts clamped to zero.
func (r Record) Normalize() Record {
	r.ID = strings.TrimSpace(r.ID)
	r.Category = NormalizeText(r.Category)
	r.Description = NormalizeText(r.Description)
	r.Vendor = NormalizeText(r.Vendor)
	r.ReceiptRef = NormalizeText(r.ReceiptRef)
	if r.Amount < 0 {
		r.Amount = 0
	}
	if !r.Date.IsValid() {
		r.Date = civil.Date{}
	}
	return r
}

// HasDate reports whether the record carries a calendar date.
func (r Record) HasDate() bool {
	return r.Date.IsValid()
}

// DateString renders the date as YYYY-MM-DD, or Unset.
func (r Record) DateString() string {
	if !r.HasDate() {
		return Unset
	}
	return r.Date.String()
}

// Month renders the date as YYYY-MM, or Unset.
func (r Record) Month() string {
	if !r.HasDate() {
		return Unset
	}
	return r.Date.String()[:7]
}

// IsDefective reports whether the row has no meaningful content: every
// user-facing field unset and a zero amount. Amount alone never qualifies.
func (r Record) IsDefective() bool {
	return !r.HasDate() &&
		IsUnset(r.Category) &&
		IsUnset(r.Description) &&
		IsUnset(r.Vendor) &&
		IsUnset(r.ReceiptRef) &&
		r.Amount == 0
}

// Equal compares every field except CreatedAt.
func (r Record) Equal(o Record) bool {
	a, b := r.Normalize(), o.Normalize()
	return a.ID == b.ID &&
		a.Date == b.Date &&
		a.Category == b.Category &&
		a.Description == b.Description &&
		a.Vendor == b.Vendor &&
		a.Amount == b.Amount &&
		a.ReceiptRef == b.ReceiptRef
}

// FillFrom returns r with every unset field taken from o.
// Amount is never filled: zero is a legitimate value.
func (r Record) FillFrom(o Record) Record {
	if !r.HasDate() {
		r.Date = o.Date
	}
	if IsUnset(r.Category) {
		r.Category = o.Category
	}
	if IsUnset(r.Description) {
		r.Description = o.Description
	}
	if IsUnset(r.Vendor) {
		r.Vendor = o.Vendor
	}
	if IsUnset(r.ReceiptRef) {
		r.ReceiptRef = o.ReceiptRef
	}
	r.CreatedAt = EarliestTime(r.CreatedAt, o.CreatedAt)
	return r.Normalize()
}

// EarliestTime returns the earlier of two timestamps, ignoring zero values.
func EarliestTime(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	}
	return a
}

// ParseDate accepts the date layouts spreadsheets and the remote table
// produce. An unparseable value yields ok == false.
func ParseDate(s string) (civil.Date, bool) {
	s = strings.TrimSpace(s)
	if IsUnset(s) {
		return civil.Date{}, true
	}
	if d, err := civil.ParseDate(s); err == nil {
		return d, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), true
		}
	}
	return civil.Date{}, false
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"02/01/2006",
}
