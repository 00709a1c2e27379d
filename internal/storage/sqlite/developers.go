package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/bugtracker/internal/types"
)

// CreateDeveloper inserts a developer. A taken e-mail returns types.ErrDuplicate.
func (s *SQLiteStorage) CreateDeveloper(ctx context.Context, dev *types.Developer) error {
	if err := dev.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if dev.ID == "" {
		dev.ID = uuid.NewString()
	}
	dev.Email = types.NormalizeEmail(dev.Email)
	now := time.Now()
	dev.CreatedAt = now
	dev.UpdatedAt = now

	urls, err := encodeList(dev.AssignedURLs)
	if err != nil {
		return fmt.Errorf("failed to encode assigned urls: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO developers (id, name, email, assigned_urls, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, dev.ID, dev.Name, dev.Email, urls, dev.CreatedAt, dev.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("developer %s: %w", dev.Email, types.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert developer: %w", err)
	}
	if dev.AssignedURLs == nil {
		dev.AssignedURLs = []string{}
	}
	return nil
}

// GetDeveloper retrieves a developer by ID. Returns (nil, nil) when not found.
func (s *SQLiteStorage) GetDeveloper(ctx context.Context, id string) (*types.Developer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, assigned_urls, created_at, updated_at
		FROM developers WHERE id = ?
	`, id)
	return s.developerFromRow(row)
}

// GetDeveloperByEmail retrieves a developer by e-mail, ignoring case
func (s *SQLiteStorage) GetDeveloperByEmail(ctx context.Context, email string) (*types.Developer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, assigned_urls, created_at, updated_at
		FROM developers WHERE email = ?
	`, types.NormalizeEmail(email))
	return s.developerFromRow(row)
}

// ListDevelopers returns all developers ordered by e-mail
func (s *SQLiteStorage) ListDevelopers(ctx context.Context) ([]*types.Developer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, assigned_urls, created_at, updated_at
		FROM developers ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list developers: %w", err)
	}
	defer rows.Close()

	var devs []*types.Developer
	for rows.Next() {
		dev, err := scanDeveloper(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan developer: %w", err)
		}
		devs = append(devs, dev)
	}
	return devs, rows.Err()
}

func (s *SQLiteStorage) developerFromRow(row *sql.Row) (*types.Developer, error) {
	dev, err := scanDeveloper(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get developer: %w", err)
	}
	return dev, nil
}

func scanDeveloper(row rowScanner) (*types.Developer, error) {
	var dev types.Developer
	var urls string
	if err := row.Scan(&dev.ID, &dev.Name, &dev.Email, &urls, &dev.CreatedAt, &dev.UpdatedAt); err != nil {
		return nil, err
	}
	list, err := decodeList[string](urls)
	if err != nil {
		return nil, fmt.Errorf("corrupt assigned urls for developer %s: %w", dev.ID, err)
	}
	dev.AssignedURLs = list
	return &dev, nil
}
