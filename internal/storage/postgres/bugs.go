package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/steveyegge/bugtracker/internal/types"
)

const bugColumns = `id, title, description, summary, category, tags, severity, status,
	reports, reporters, test_url, screenshot, embedding, created_at, updated_at, closed_at`

// CreateBug inserts a new bug and records a creation event in the same transaction
func (s *PostgresStorage) CreateBug(ctx context.Context, bug *types.Bug, actor string) error {
	if bug.ID == "" {
		bug.ID = uuid.NewString()
	}
	now := time.Now()
	bug.CreatedAt = now
	bug.UpdatedAt = now

	if err := bug.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	eventData, err := json.Marshal(bug)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO bugs (`+bugColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		bug.ID, bug.Title, bug.Description, bug.Summary, bug.Category, nonNil(bug.Tags),
		string(bug.Severity), string(bug.Status), bug.Reports, nonNil(bug.Reporters), bug.TestURL,
		bug.Screenshot, bug.Embedding, bug.CreatedAt, bug.UpdatedAt, bug.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bug: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bug_events (bug_id, event_type, actor, new_value, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, bug.ID, string(types.EventCreated), actor, string(eventData), now)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	return tx.Commit(ctx)
}

// GetBug retrieves a bug by ID. Returns (nil, nil) when the bug does not exist.
func (s *PostgresStorage) GetBug(ctx context.Context, id string) (*types.Bug, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+bugColumns+` FROM bugs WHERE id = $1`, id)
	bug, err := scanBug(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bug: %w", err)
	}
	return bug, nil
}

// UpdateBug replaces every mutable column of an existing bug
func (s *PostgresStorage) UpdateBug(ctx context.Context, bug *types.Bug) error {
	bug.UpdatedAt = time.Now()
	if err := bug.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE bugs SET
			title = $1, description = $2, summary = $3, category = $4, tags = $5,
			severity = $6, status = $7, reports = $8, reporters = $9, test_url = $10,
			screenshot = $11, embedding = $12, updated_at = $13, closed_at = $14
		WHERE id = $15
	`,
		bug.Title, bug.Description, bug.Summary, bug.Category, nonNil(bug.Tags),
		string(bug.Severity), string(bug.Status), bug.Reports, nonNil(bug.Reporters), bug.TestURL,
		bug.Screenshot, bug.Embedding, bug.UpdatedAt, bug.ClosedAt,
		bug.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update bug: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bug %s not found", bug.ID)
	}
	return nil
}

// ListBugs returns bugs matching the filter, newest first unless filter.Oldest is set
func (s *PostgresStorage) ListBugs(ctx context.Context, filter types.BugFilter) ([]*types.Bug, error) {
	var where []string
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if filter.Severity != nil {
		add("severity = $%d", string(*filter.Severity))
	}
	if filter.TestURL != nil {
		add("test_url = $%d", *filter.TestURL)
	}
	if filter.Category != nil {
		add("category = $%d", *filter.Category)
	}

	query := `SELECT ` + bugColumns + ` FROM bugs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.Oldest {
		query += " ORDER BY seq ASC"
	} else {
		query += " ORDER BY seq DESC"
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
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

func scanBug(row pgx.Row) (*types.Bug, error) {
	var bug types.Bug
	var severity, status string

	err := row.Scan(
		&bug.ID, &bug.Title, &bug.Description, &bug.Summary, &bug.Category, &bug.Tags,
		&severity, &status, &bug.Reports, &bug.Reporters, &bug.TestURL,
		&bug.Screenshot, &bug.Embedding, &bug.CreatedAt, &bug.UpdatedAt, &bug.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	bug.Severity = types.Severity(severity)
	bug.Status = types.Status(status)
	if len(bug.Embedding) == 0 {
		bug.Embedding = nil
	}
	return &bug, nil
}
