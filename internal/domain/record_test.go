package domain

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", Unset},
		{"   ", Unset},
		{"nan", Unset},
		{"NaN", Unset},
		{"None", Unset},
		{"-", Unset},
		{" Taxi ", "Taxi"},
		{"Nancy", "Nancy"},
	}

	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecord_IsDefective(t *testing.T) {
	blank := Record{ID: "x", Category: Unset, Description: Unset, Vendor: Unset, ReceiptRef: Unset}

	tests := []struct {
		name   string
		record Record
		want   bool
	}{
		{name: "all unset and zero amount", record: blank, want: true},
		{name: "empty strings count as unset", record: Record{ID: "x"}, want: true},
		{name: "zero amount with description survives", record: withDesc(blank, "Coffee"), want: false},
		{name: "amount alone survives", record: withAmount(blank, 5000), want: false},
		{name: "date alone survives", record: withDate(blank, civil.Date{Year: 2024, Month: 3, Day: 1}), want: false},
		{name: "receipt alone survives", record: withReceipt(blank, "gs://b/r.png"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.IsDefective(); got != tt.want {
				t.Errorf("IsDefective() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecord_EqualIgnoresCreatedAt(t *testing.T) {
	a := Record{ID: "a", Amount: 5000, Description: "Taxi", CreatedAt: time.Now()}
	b := a
	b.CreatedAt = a.CreatedAt.Add(time.Hour)
	b.Vendor = ""

	if !a.Equal(b) {
		t.Error("expected records differing only in CreatedAt and unset spelling to be equal")
	}

	b.Amount = 6000
	if a.Equal(b) {
		t.Error("expected records with different amounts to differ")
	}
}

func TestRecord_FillFrom(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	local := Record{ID: "a", Description: "Taxi", Amount: 0, CreatedAt: early.Add(time.Hour)}
	remote := Record{
		ID:          "a",
		Date:        civil.Date{Year: 2024, Month: 1, Day: 2},
		Description: "Cab",
		Vendor:      "Bluebird",
		Amount:      5000,
		CreatedAt:   early,
	}

	got := local.FillFrom(remote)

	if got.Description != "Taxi" {
		t.Errorf("Description = %q, want local value kept", got.Description)
	}
	if got.Vendor != "Bluebird" {
		t.Errorf("Vendor = %q, want remote value filled", got.Vendor)
	}
	if got.Date != remote.Date {
		t.Errorf("Date = %v, want %v", got.Date, remote.Date)
	}
	if got.Amount != 0 {
		t.Errorf("Amount = %d, want local zero kept", got.Amount)
	}
	if !got.CreatedAt.Equal(early) {
		t.Errorf("CreatedAt = %v, want earliest %v", got.CreatedAt, early)
	}
}

func TestParseDate(t *testing.T) {
	want := civil.Date{Year: 2024, Month: 5, Day: 17}
	for _, in := range []string{"2024-05-17", "2024-05-17 00:00:00", "2024-05-17T00:00:00Z", "2024/05/17"} {
		got, ok := ParseDate(in)
		if !ok || got != want {
			t.Errorf("ParseDate(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}

	if d, ok := ParseDate("-"); !ok || d.IsValid() {
		t.Errorf("ParseDate(-) = %v, %v; want unset date", d, ok)
	}
	if _, ok := ParseDate("yesterday"); ok {
		t.Error("expected unparseable date to report ok=false")
	}
}

func TestRecord_Month(t *testing.T) {
	r := Record{Date: civil.Date{Year: 2024, Month: 11, Day: 3}}
	if got := r.Month(); got != "2024-11" {
		t.Errorf("Month() = %q, want 2024-11", got)
	}
	if got := (Record{}).Month(); got != Unset {
		t.Errorf("Month() on undated record = %q, want %q", got, Unset)
	}
}

func TestCategoryValidator_Canonical(t *testing.T) {
	v := NewCategoryValidator(nil)

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "Meals", want: "Meals"},
		{in: "  office   supply ", want: "Office Supply"},
		{in: "etc", want: "ETC"},
		{in: "Groceries", wantErr: true},
	}

	for _, tt := range tests {
		got, err := v.Canonical(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Canonical(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Canonical(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if n := len(v.Names()); n != len(DefaultCategories) {
		t.Errorf("Names() returned %d categories, want %d", n, len(DefaultCategories))
	}
}

func withDesc(r Record, s string) Record      { r.Description = s; return r }
func withAmount(r Record, a int64) Record     { r.Amount = a; return r }
func withDate(r Record, d civil.Date) Record  { r.Date = d; return r }
func withReceipt(r Record, s string) Record   { r.ReceiptRef = s; return r }
