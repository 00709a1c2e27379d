package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/bugtracker/internal/types"
)

// AddEvent appends an audit trail entry
func (s *PostgresStorage) AddEvent(ctx context.Context, event *types.Event) error {
	if !event.Type.IsValid() {
		return fmt.Errorf("invalid event type: %q", event.Type)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO bug_events (bug_id, event_type, actor, old_value, new_value, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, event.BugID, string(event.Type), event.Actor, event.OldValue, event.NewValue, event.Comment, event.CreatedAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to add event: %w", err)
	}
	return nil
}

// GetEvents returns the audit trail for a bug, oldest first
func (s *PostgresStorage) GetEvents(ctx context.Context, bugID string, limit int) ([]*types.Event, error) {
	query := `
		SELECT id, bug_id, event_type, actor, old_value, new_value, comment, created_at
		FROM bug_events
		WHERE bug_id = $1
		ORDER BY id ASC
	`
	args := []any{bugID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var event types.Event
		var eventType string
		if err := rows.Scan(
			&event.ID, &event.BugID, &eventType, &event.Actor,
			&event.OldValue, &event.NewValue, &event.Comment, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Type = types.EventType(eventType)
		events = append(events, &event)
	}
	return events, rows.Err()
}
