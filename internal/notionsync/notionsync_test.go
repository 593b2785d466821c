package notionsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/remote"
	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNotion is an in-memory Notion database. Queries page through the
// results pageSize at a time to exercise cursor handling.
type fakeNotion struct {
	mu       sync.Mutex
	pages    []notionapi.Page
	next     int
	pageSize int

	creates, updates, deletes int
	failCreate                error
}

func newFakeNotion() *fakeNotion {
	return &fakeNotion{pageSize: 2}
}

func (f *fakeNotion) seed(props notionapi.Properties) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := "page-" + strconv.Itoa(f.next)
	f.pages = append(f.pages, notionapi.Page{
		ID:          notionapi.ObjectID(id),
		CreatedTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Properties:  props,
	})
	return id
}

func (f *fakeNotion) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	if f.failCreate != nil {
		return nil, f.failCreate
	}
	id := f.seed(properties)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	return &notionapi.Page{ID: notionapi.ObjectID(id)}, nil
}

func (f *fakeNotion) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.pages {
		if string(f.pages[i].ID) == pageID {
			merged := notionapi.Properties{}
			for k, v := range f.pages[i].Properties {
				merged[k] = v
			}
			for k, v := range properties {
				merged[k] = v
			}
			f.pages[i].Properties = merged
			f.updates++
			return &f.pages[i], nil
		}
	}
	return nil, &notionapi.Error{Status: http.StatusNotFound, Message: "page not found"}
}

func (f *fakeNotion) QueryDatabase(ctx context.Context, databaseID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	start := 0
	if req.StartCursor != "" {
		start, _ = strconv.Atoi(string(req.StartCursor))
	}
	end := start + f.pageSize
	if end > len(f.pages) {
		end = len(f.pages)
	}

	resp := &notionapi.DatabaseQueryResponse{
		Results: append([]notionapi.Page(nil), f.pages[start:end]...),
		HasMore: end < len(f.pages),
	}
	if resp.HasMore {
		resp.NextCursor = notionapi.Cursor(strconv.Itoa(end))
	}
	return resp, nil
}

func (f *fakeNotion) DeletePage(ctx context.Context, pageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.pages {
		if string(f.pages[i].ID) == pageID {
			f.pages = append(f.pages[:i], f.pages[i+1:]...)
			f.deletes++
			return nil
		}
	}
	return nil
}

func (f *fakeNotion) records() []domain.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Record, 0, len(f.pages))
	for _, p := range f.pages {
		out = append(out, PageToRecord(p))
	}
	return out
}

func sampleRecord(id string) domain.Record {
	return domain.Record{
		ID:          id,
		Date:        civil.Date{Year: 2024, Month: 6, Day: 1},
		Category:    "Meals",
		Description: "Lunch " + id,
		Vendor:      "Cafe",
		Amount:      12000,
		ReceiptRef:  domain.Unset,
		CreatedAt:   time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestMapper_RoundTrip(t *testing.T) {
	rec := sampleRecord("a")

	page := notionapi.Page{Properties: RecordToNotionProperties(rec)}
	got := PageToRecord(page)

	assert.True(t, got.Equal(rec), "got %+v", got)
	assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
}

func TestMapper_UnsetFields(t *testing.T) {
	rec := domain.Record{ID: "b", Amount: 5}.Normalize()

	props := RecordToNotionProperties(rec)
	_, hasCategory := props[PropCategory]
	assert.False(t, hasCategory, "unset category must be omitted")
	assert.Nil(t, props[PropDate].(notionapi.DateProperty).Date)

	created := time.Date(2023, 3, 3, 0, 0, 0, 0, time.UTC)
	got := PageToRecord(notionapi.Page{Properties: props, CreatedTime: created})
	assert.Equal(t, domain.Unset, got.Category)
	assert.Equal(t, domain.Unset, got.Vendor)
	assert.False(t, got.HasDate())
	assert.True(t, got.CreatedAt.Equal(created), "page creation time is the fallback")
}

func TestMapper_PointerProperties(t *testing.T) {
	d := notionapi.Date(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))
	page := notionapi.Page{Properties: notionapi.Properties{
		PropID:          &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: " x1 "}}},
		PropDescription: &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: "Taxi"}}},
		PropCategory:    &notionapi.SelectProperty{Select: notionapi.Option{Name: "Transportation"}},
		PropAmount:      &notionapi.NumberProperty{Number: 4999.6},
		PropDate:        &notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}},
	}}

	got := PageToRecord(page)

	assert.Equal(t, "x1", got.ID)
	assert.Equal(t, "Taxi", got.Description)
	assert.Equal(t, "Transportation", got.Category)
	assert.Equal(t, int64(5000), got.Amount)
	assert.Equal(t, civil.Date{Year: 2024, Month: 2, Day: 29}, got.Date)
}

func TestRecordStore_UpsertListDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFakeNotion()
	store := NewRecordStore(fake, "db")

	recs := []domain.Record{sampleRecord("a"), sampleRecord("b"), sampleRecord("c")}
	require.NoError(t, store.Upsert(ctx, recs))
	assert.Equal(t, 3, fake.creates)

	changed := sampleRecord("b")
	changed.Amount = 99
	require.NoError(t, store.Upsert(ctx, []domain.Record{changed}))
	assert.Equal(t, 3, fake.creates, "existing id must update, not create")
	assert.Equal(t, 1, fake.updates)

	got, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(99), got[1].Amount)

	require.NoError(t, store.Delete(ctx, "a"))
	require.NoError(t, store.Delete(ctx, "missing"))
	assert.Equal(t, 1, fake.deletes)
	assert.Len(t, fake.records(), 2)
}

func TestRecordStore_UpsertFindsPagesFromOtherWriters(t *testing.T) {
	ctx := context.Background()
	fake := newFakeNotion()
	fake.seed(RecordToNotionProperties(sampleRecord("a")))
	store := NewRecordStore(fake, "db")

	changed := sampleRecord("a")
	changed.Vendor = "Deli"
	require.NoError(t, store.Upsert(ctx, []domain.Record{changed}))

	assert.Equal(t, 0, fake.creates)
	assert.Equal(t, "Deli", fake.records()[0].Vendor)
}

func TestRecordStore_ListAllRepairsMissingIDs(t *testing.T) {
	ctx := context.Background()
	fake := newFakeNotion()
	noID := sampleRecord("")
	fake.seed(RecordToNotionProperties(noID))

	store := NewRecordStore(fake, "db")
	store.newID = func() string { return "fresh" }

	got, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)
	assert.Equal(t, "fresh", fake.records()[0].ID, "id must be written back")
}

func TestClassify(t *testing.T) {
	assert.True(t, remote.IsTransient(classify(&notionapi.Error{Status: http.StatusTooManyRequests})))
	assert.True(t, remote.IsTransient(classify(fmt.Errorf("wrapped: %w", &notionapi.Error{Status: 502}))))
	assert.False(t, remote.IsTransient(classify(&notionapi.Error{Status: http.StatusBadRequest})))
	assert.True(t, remote.IsTransient(classify(context.DeadlineExceeded)))
	assert.False(t, remote.IsTransient(classify(errors.New("boom"))))
}

func TestMirror_Push(t *testing.T) {
	ctx := context.Background()
	fake := newFakeNotion()
	fake.seed(RecordToNotionProperties(sampleRecord("keep")))
	fake.seed(RecordToNotionProperties(sampleRecord("stale")))
	fake.seed(RecordToNotionProperties(sampleRecord(""))) // no record id
	changed := sampleRecord("edit")
	fake.seed(RecordToNotionProperties(changed))
	changed.Amount = 1

	mirror := NewMirror(fake, "db", false)
	err := mirror.Push(ctx, []domain.Record{sampleRecord("keep"), changed, sampleRecord("new")})
	require.NoError(t, err)

	assert.Equal(t, MirrorStats{Created: 1, Updated: 1, Deleted: 2, Skipped: 1}, mirror.Stats())

	ids := map[string]int64{}
	for _, rec := range fake.records() {
		ids[rec.ID] = rec.Amount
	}
	assert.Equal(t, map[string]int64{"keep": 12000, "edit": 1, "new": 12000}, ids)
}

func TestMirror_DryRunChangesNothing(t *testing.T) {
	ctx := context.Background()
	fake := newFakeNotion()
	fake.seed(RecordToNotionProperties(sampleRecord("stale")))

	mirror := NewMirror(fake, "db", true)
	require.NoError(t, mirror.Push(ctx, []domain.Record{sampleRecord("new")}))

	assert.Equal(t, MirrorStats{Created: 1, Deleted: 1}, mirror.Stats())
	assert.Zero(t, fake.creates+fake.updates+fake.deletes)
}

func TestMirror_ReportsFailedPages(t *testing.T) {
	fake := newFakeNotion()
	fake.failCreate = errors.New("validation_error")

	err := NewMirror(fake, "db", false).Push(context.Background(), []domain.Record{sampleRecord("a")})
	assert.Error(t, err)
}
