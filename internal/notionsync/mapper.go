package notionsync

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the Expenses database.
const (
	PropDescription = "Description"
	PropID          = "Record ID"
	PropDate        = "Date"
	PropCategory    = "Category"
	PropVendor      = "Vendor"
	PropAmount      = "Amount"
	PropReceipt     = "Receipt"
	PropCreated     = "Created"
)

// RecordToNotionProperties converts a record to Notion page properties.
// Unset text fields are written as empty rich text so updates clear them.
func RecordToNotionProperties(rec domain.Record) notionapi.Properties {
	rec = rec.Normalize()

	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: richText(rec.Description),
		},
		PropID: notionapi.RichTextProperty{
			RichText: richText(rec.ID),
		},
		PropVendor: notionapi.RichTextProperty{
			RichText: richText(rec.Vendor),
		},
		PropReceipt: notionapi.RichTextProperty{
			RichText: richText(rec.ReceiptRef),
		},
		PropAmount: notionapi.NumberProperty{
			Number: float64(rec.Amount),
		},
		PropDate: notionapi.DateProperty{
			Date: dateObject(rec),
		},
	}

	// Notion rejects an empty select option, so an unset category is omitted.
	if !domain.IsUnset(rec.Category) {
		props[PropCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{
				Name: rec.Category,
			},
		}
	}

	if !rec.CreatedAt.IsZero() {
		created := notionapi.Date(rec.CreatedAt.UTC())
		props[PropCreated] = notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &created},
		}
	}

	return props
}

// PageToRecord converts a database page back to a record. The page's own
// creation time stands in when the Created property is empty.
func PageToRecord(page notionapi.Page) domain.Record {
	rec := domain.Record{
		ID:          textOf(page.Properties[PropID]),
		Description: textOf(page.Properties[PropDescription]),
		Vendor:      textOf(page.Properties[PropVendor]),
		ReceiptRef:  textOf(page.Properties[PropReceipt]),
		Category:    selectOf(page.Properties[PropCategory]),
		Amount:      numberOf(page.Properties[PropAmount]),
	}

	if rec.ID == domain.Unset {
		rec.ID = ""
	}
	if t, ok := dateOf(page.Properties[PropDate]); ok {
		rec.Date = civil.DateOf(t)
	}
	if t, ok := dateOf(page.Properties[PropCreated]); ok {
		rec.CreatedAt = t.UTC()
	} else if !page.CreatedTime.IsZero() {
		rec.CreatedAt = page.CreatedTime.UTC()
	}

	return rec.Normalize()
}

func richText(s string) []notionapi.RichText {
	if domain.IsUnset(s) {
		return []notionapi.RichText{}
	}
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: s,
			},
		},
	}
}

func dateObject(rec domain.Record) *notionapi.DateObject {
	if !rec.HasDate() {
		return nil
	}
	d := notionapi.Date(time.Date(rec.Date.Year, rec.Date.Month, rec.Date.Day, 0, 0, 0, 0, time.UTC))
	return &notionapi.DateObject{Start: &d}
}

// Pages read from the API carry pointer properties while locally built
// ones carry values, so the readers accept both.

func textOf(prop notionapi.Property) string {
	var parts []notionapi.RichText
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		parts = p.Title
	case notionapi.TitleProperty:
		parts = p.Title
	case *notionapi.RichTextProperty:
		parts = p.RichText
	case notionapi.RichTextProperty:
		parts = p.RichText
	}

	var b strings.Builder
	for _, rt := range parts {
		switch {
		case rt.PlainText != "":
			b.WriteString(rt.PlainText)
		case rt.Text != nil:
			b.WriteString(rt.Text.Content)
		}
	}
	return domain.NormalizeText(b.String())
}

func selectOf(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.SelectProperty:
		return domain.NormalizeText(p.Select.Name)
	case notionapi.SelectProperty:
		return domain.NormalizeText(p.Select.Name)
	}
	return domain.Unset
}

func numberOf(prop notionapi.Property) int64 {
	var n float64
	switch p := prop.(type) {
	case *notionapi.NumberProperty:
		n = p.Number
	case notionapi.NumberProperty:
		n = p.Number
	}
	if n < 0 {
		return 0
	}
	return int64(n + 0.5)
}

func dateOf(prop notionapi.Property) (time.Time, bool) {
	var obj *notionapi.DateObject
	switch p := prop.(type) {
	case *notionapi.DateProperty:
		obj = p.Date
	case notionapi.DateProperty:
		obj = p.Date
	}
	if obj == nil || obj.Start == nil {
		return time.Time{}, false
	}
	return time.Time(*obj.Start), true
}
