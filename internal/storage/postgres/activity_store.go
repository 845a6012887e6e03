package postgres

import (
	"context"
	"fmt"

	"github.com/calyptra/serialhub/internal/catalog"
)

// ActivityStore implements catalog.ActivityStore. The event log is
// append-only; rows are never updated or deleted.
type ActivityStore struct {
	pool dbPool
	ids  catalog.IDGenerator
}

// NewActivityStore constructs an ActivityStore on the shared pool.
func NewActivityStore(pool dbPool, ids catalog.IDGenerator) *ActivityStore {
	return &ActivityStore{pool: pool, ids: ids}
}

// InsertEvents appends a batch of events.
func (s *ActivityStore) InsertEvents(ctx context.Context, events []catalog.ActivityEvent) error {
	query := `
		INSERT INTO activity_events (id, series_id, event_type, weight, occurred_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	for _, ev := range events {
		id := ev.ID
		if id == "" {
			var err error
			if id, err = s.ids.NewID(); err != nil {
				return fmt.Errorf("generate event id: %w", err)
			}
		}
		if _, err := s.pool.Exec(ctx, query, id, ev.SeriesID, ev.Type, ev.Weight, ev.OccurredAt); err != nil {
			return fmt.Errorf("insert activity event: %w", translateErr(err))
		}
	}
	return nil
}

// ListEvents returns all events for a series in occurrence order.
func (s *ActivityStore) ListEvents(ctx context.Context, seriesID string) ([]catalog.ActivityEvent, error) {
	query := `
		SELECT id, series_id, event_type, weight, occurred_at
		FROM activity_events
		WHERE series_id = $1
		ORDER BY occurred_at ASC, id ASC;
	`
	rows, err := s.pool.Query(ctx, query, seriesID)
	if err != nil {
		return nil, fmt.Errorf("list activity events: %w", translateErr(err))
	}
	defer rows.Close()

	var out []catalog.ActivityEvent
	for rows.Next() {
		var ev catalog.ActivityEvent
		if err := rows.Scan(&ev.ID, &ev.SeriesID, &ev.Type, &ev.Weight, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan activity event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
