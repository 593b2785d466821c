package notionsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/dvloznov/expense-ledger/internal/remote"
	"github.com/google/uuid"
	"github.com/jomei/notionapi"
)

// queryPageSize is the largest page size the Notion API accepts.
const queryPageSize = 100

// RecordStore keeps expense records in a Notion database, one page per
// record keyed by the Record ID property. It implements remote.Store.
type RecordStore struct {
	client     NotionService
	databaseID string
	newID      func() string

	mu    sync.Mutex
	pages map[string]string // record id -> page id
}

// NewRecordStore creates a store over databaseID.
func NewRecordStore(client NotionService, databaseID string) *RecordStore {
	return &RecordStore{
		client:     client,
		databaseID: databaseID,
		newID:      uuid.NewString,
		pages:      make(map[string]string),
	}
}

// ListAll implements remote.Store. Pages without a record id get one
// written back so they can be addressed like every other record.
func (s *RecordStore) ListAll(ctx context.Context) ([]domain.Record, error) {
	log := logger.FromContext(ctx)

	pages, err := queryAllNotionPages(ctx, s.client, s.databaseID)
	if err != nil {
		return nil, fmt.Errorf("ListAll: %w", err)
	}

	index := make(map[string]string, len(pages))
	recs := make([]domain.Record, 0, len(pages))
	for _, page := range pages {
		rec := PageToRecord(page)
		if rec.ID == "" {
			rec.ID = s.newID()
			if _, err := s.client.UpdatePage(ctx, string(page.ID), RecordToNotionProperties(rec)); err != nil {
				return nil, fmt.Errorf("ListAll: assigning id to page %s: %w", page.ID, err)
			}
			log.Info().
				Str("record_id", rec.ID).
				Str("page_id", string(page.ID)).
				Msg("Assigned id to Notion page without one")
		}
		if _, dup := index[rec.ID]; !dup {
			index[rec.ID] = string(page.ID)
		}
		recs = append(recs, rec)
	}

	s.mu.Lock()
	s.pages = index
	s.mu.Unlock()

	return recs, nil
}

// Upsert implements remote.Store.
func (s *RecordStore) Upsert(ctx context.Context, recs []domain.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := s.ensureIndex(ctx, recs); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("Upsert: record id is required")
		}
		props := RecordToNotionProperties(rec)

		if pageID, ok := s.pageID(rec.ID); ok {
			if _, err := s.client.UpdatePage(ctx, pageID, props); err != nil {
				return fmt.Errorf("Upsert: %s: %w", rec.ID, err)
			}
			continue
		}

		page, err := s.client.CreatePage(ctx, s.databaseID, props)
		if err != nil {
			return fmt.Errorf("Upsert: %s: %w", rec.ID, err)
		}
		s.setPageID(rec.ID, string(page.ID))
	}
	return nil
}

// Delete implements remote.Store. The page is archived, which Notion
// treats as deletion. Unknown ids are not an error.
func (s *RecordStore) Delete(ctx context.Context, id string) error {
	pageID, ok := s.pageID(id)
	if !ok {
		if _, err := s.ListAll(ctx); err != nil {
			return fmt.Errorf("Delete: %w", err)
		}
		if pageID, ok = s.pageID(id); !ok {
			return nil
		}
	}

	if err := s.client.DeletePage(ctx, pageID); err != nil {
		return fmt.Errorf("Delete: %s: %w", id, err)
	}

	s.mu.Lock()
	delete(s.pages, id)
	s.mu.Unlock()
	return nil
}

// ensureIndex reloads the page index when any record is missing from it,
// so records created by another writer are updated instead of duplicated.
func (s *RecordStore) ensureIndex(ctx context.Context, recs []domain.Record) error {
	for _, rec := range recs {
		if _, ok := s.pageID(rec.ID); !ok {
			_, err := s.ListAll(ctx)
			return err
		}
	}
	return nil
}

func (s *RecordStore) pageID(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pageID, ok := s.pages[id]
	return pageID, ok
}

func (s *RecordStore) setPageID(id, pageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[id] = pageID
}

func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: queryPageSize,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}

// Ensure RecordStore implements remote.Store.
var _ remote.Store = (*RecordStore)(nil)
