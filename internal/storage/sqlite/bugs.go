package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/bugtracker/internal/types"
)

const bugColumns = `id, title, description, summary, category, tags, severity, status,
	reports, reporters, test_url, screenshot, embedding, created_at, updated_at, closed_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// CreateBug inserts a new bug and records a creation event in the same transaction
func (s *SQLiteStorage) CreateBug(ctx context.Context, bug *types.Bug, actor string) error {
	if bug.ID == "" {
		bug.ID = uuid.NewString()
	}
	now := time.Now()
	bug.CreatedAt = now
	bug.UpdatedAt = now

	// Validate after defaults so callers may leave ID/timestamps empty
	if err := bug.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	args, err := bugArgs(bug)
	if err != nil {
		return err
	}
	eventData, err := json.Marshal(bug)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	return s.withTx(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO bugs (`+bugColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, args...)
		if err != nil {
			return fmt.Errorf("failed to insert bug: %w", err)
		}

		_, err = conn.ExecContext(ctx, `
			INSERT INTO bug_events (bug_id, event_type, actor, new_value, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, bug.ID, types.EventCreated, actor, string(eventData), now)
		if err != nil {
			return fmt.Errorf("failed to record event: %w", err)
		}
		return nil
	})
}

// GetBug retrieves a bug by ID. Returns (nil, nil) when the bug does not exist.
func (s *SQLiteStorage) GetBug(ctx context.Context, id string) (*types.Bug, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bugColumns+` FROM bugs WHERE id = ?`, id)
	bug, err := scanBug(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bug: %w", err)
	}
	return bug, nil
}

// UpdateBug replaces every mutable column of an existing bug
func (s *SQLiteStorage) UpdateBug(ctx context.Context, bug *types.Bug) error {
	bug.UpdatedAt = time.Now()
	if err := bug.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tags, err := encodeList(bug.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	reporters, err := encodeList(bug.Reporters)
	if err != nil {
		return fmt.Errorf("failed to encode reporters: %w", err)
	}
	embedding, err := encodeList(bug.Embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE bugs SET
			title = ?, description = ?, summary = ?, category = ?, tags = ?,
			severity = ?, status = ?, reports = ?, reporters = ?, test_url = ?,
			screenshot = ?, embedding = ?, updated_at = ?, closed_at = ?
		WHERE id = ?
	`,
		bug.Title, bug.Description, bug.Summary, bug.Category, tags,
		bug.Severity, bug.Status, bug.Reports, reporters, bug.TestURL,
		bug.Screenshot, embedding, bug.UpdatedAt, nullTime(bug.ClosedAt),
		bug.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bug: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("bug %s not found", bug.ID)
	}
	return nil
}

// ListBugs returns bugs matching the filter, newest first unless filter.Oldest is set
func (s *SQLiteStorage) ListBugs(ctx context.Context, filter types.BugFilter) ([]*types.Bug, error) {
	var where []string
	var args []any

	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *filter.Status)
	}
	if filter.Severity != nil {
		where = append(where, "severity = ?")
		args = append(args, *filter.Severity)
	}
	if filter.TestURL != nil {
		where = append(where, "test_url = ?")
		args = append(args, *filter.TestURL)
	}
	if filter.Category != nil {
		where = append(where, "category = ?")
		args = append(args, *filter.Category)
	}

	query := `SELECT ` + bugColumns + ` FROM bugs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// rowid breaks ties between bugs created within the same clock tick
	if filter.Oldest {
		query += " ORDER BY created_at ASC, rowid ASC"
	} else {
		query += " ORDER BY created_at DESC, rowid DESC"
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bugs: %w", err)
	}
	defer rows.Close()

	var bugs []*types.Bug
	for rows.Next() {
		bug, err := scanBug(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bug: %w", err)
		}
		bugs = append(bugs, bug)
	}
	return bugs, rows.Err()
}

func bugArgs(bug *types.Bug) ([]any, error) {
	tags, err := encodeList(bug.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	reporters, err := encodeList(bug.Reporters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode reporters: %w", err)
	}
	embedding, err := encodeList(bug.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %w", err)
	}
	return []any{
		bug.ID, bug.Title, bug.Description, bug.Summary, bug.Category, tags,
		bug.Severity, bug.Status, bug.Reports, reporters, bug.TestURL,
		bug.Screenshot, embedding, bug.CreatedAt, bug.UpdatedAt, nullTime(bug.ClosedAt),
	}, nil
}

func scanBug(row rowScanner) (*types.Bug, error) {
	var bug types.Bug
	var tags, reporters, embedding string
	var closedAt sql.NullTime

	err := row.Scan(
		&bug.ID, &bug.Title, &bug.Description, &bug.Summary, &bug.Category, &tags,
		&bug.Severity, &bug.Status, &bug.Reports, &reporters, &bug.TestURL,
		&bug.Screenshot, &embedding, &bug.CreatedAt, &bug.UpdatedAt, &closedAt,
	)
	if err != nil {
		return nil, err
	}

	if bug.Tags, err = decodeList[string](tags); err != nil {
		return nil, fmt.Errorf("corrupt tags for bug %s: %w", bug.ID, err)
	}
	if bug.Reporters, err = decodeList[string](reporters); err != nil {
		return nil, fmt.Errorf("corrupt reporters for bug %s: %w", bug.ID, err)
	}
	vec, err := decodeList[float32](embedding)
	if err != nil {
		return nil, fmt.Errorf("corrupt embedding for bug %s: %w", bug.ID, err)
	}
	if len(vec) > 0 {
		bug.Embedding = vec
	}
	if closedAt.Valid {
		bug.ClosedAt = &closedAt.Time
	}
	return &bug, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
