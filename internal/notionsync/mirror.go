package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/logger"
	"github.com/jomei/notionapi"
)

// MirrorStats counts the page operations of one Push.
type MirrorStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
}

// Mirror keeps a Notion database as a read-only copy of the merged view.
// Pages whose record is gone or that carry no record id are archived;
// unchanged pages are left alone.
type Mirror struct {
	client     NotionService
	databaseID string
	dryRun     bool

	last MirrorStats
}

// NewMirror creates a mirror into databaseID. With dryRun set, Push only
// logs what it would do.
func NewMirror(client NotionService, databaseID string, dryRun bool) *Mirror {
	return &Mirror{client: client, databaseID: databaseID, dryRun: dryRun}
}

// Stats returns the counts of the last Push.
func (m *Mirror) Stats() MirrorStats {
	return m.last
}

// Push makes the database match recs.
func (m *Mirror) Push(ctx context.Context, recs []domain.Record) error {
	log := logger.FromContext(ctx)

	log.Info().
		Int("records", len(recs)).
		Bool("dry_run", m.dryRun).
		Msg("Starting mirror to Notion")

	pages, err := queryAllNotionPages(ctx, m.client, m.databaseID)
	if err != nil {
		return fmt.Errorf("Push: %w", err)
	}

	want := make(map[string]domain.Record, len(recs))
	for _, rec := range recs {
		if rec.ID != "" {
			want[rec.ID] = rec
		}
	}

	var stats MirrorStats
	existing := make(map[string]notionapi.Page, len(pages))
	for _, page := range pages {
		id := PageToRecord(page).ID
		_, keep := want[id]
		_, seen := existing[id]
		if id != "" && keep && !seen {
			existing[id] = page
			continue
		}

		if m.dryRun {
			log.Info().
				Str("record_id", id).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would delete stale Notion page")
			stats.Deleted++
			continue
		}
		if err := m.client.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("record_id", id).
				Str("page_id", string(page.ID)).
				Msg("Failed to delete stale Notion page")
			continue
		}
		stats.Deleted++
	}

	var failed int
	for _, rec := range recs {
		if rec.ID == "" {
			continue
		}
		page, ok := existing[rec.ID]
		if ok && PageToRecord(page).Equal(rec.Normalize()) {
			stats.Skipped++
			continue
		}

		if m.dryRun {
			if ok {
				log.Info().Str("record_id", rec.ID).Msg("[DRY RUN] Would update Notion page")
				stats.Updated++
			} else {
				log.Info().Str("record_id", rec.ID).Msg("[DRY RUN] Would create Notion page")
				stats.Created++
			}
			continue
		}

		props := RecordToNotionProperties(rec)
		if ok {
			if _, err := m.client.UpdatePage(ctx, string(page.ID), props); err != nil {
				log.Warn().Err(err).Str("record_id", rec.ID).Msg("Failed to update Notion page")
				failed++
				continue
			}
			stats.Updated++
			continue
		}

		if _, err := m.client.CreatePage(ctx, m.databaseID, props); err != nil {
			log.Warn().Err(err).Str("record_id", rec.ID).Msg("Failed to create Notion page")
			failed++
			continue
		}
		stats.Created++
	}

	m.last = stats

	log.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("deleted", stats.Deleted).
		Int("skipped", stats.Skipped).
		Int("failed", failed).
		Msg("Mirror to Notion completed")

	if failed > 0 {
		return fmt.Errorf("Push: %d of %d pages failed", failed, len(recs))
	}
	return nil
}
