package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/steveyegge/bugtracker/internal/types"
)

// AddEvent appends an entry to a bug's audit trail
func (s *SQLiteStorage) AddEvent(ctx context.Context, event *types.Event) error {
	if !event.Type.IsValid() {
		return fmt.Errorf("invalid event type: %q", event.Type)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO bug_events (bug_id, event_type, actor, old_value, new_value, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.BugID, event.Type, event.Actor, event.OldValue, event.NewValue, event.Comment, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add event: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// GetEvents returns a bug's events, oldest first. limit <= 0 returns all.
func (s *SQLiteStorage) GetEvents(ctx context.Context, bugID string, limit int) ([]*types.Event, error) {
	query := `
		SELECT id, bug_id, event_type, actor, old_value, new_value, comment, created_at
		FROM bug_events
		WHERE bug_id = ?
		ORDER BY id ASC`
	args := []any{bugID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var event types.Event
		var oldValue, newValue, comment sql.NullString
		err := rows.Scan(&event.ID, &event.BugID, &event.Type, &event.Actor,
			&oldValue, &newValue, &comment, &event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if oldValue.Valid {
			event.OldValue = &oldValue.String
		}
		if newValue.Valid {
			event.NewValue = &newValue.String
		}
		if comment.Valid {
			event.Comment = &comment.String
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
