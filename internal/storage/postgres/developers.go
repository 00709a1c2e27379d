package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/steveyegge/bugtracker/internal/types"
)

const developerColumns = `id, name, email, assigned_urls, created_at, updated_at`

// CreateDeveloper inserts a developer; a taken e-mail yields types.ErrDuplicate
func (s *PostgresStorage) CreateDeveloper(ctx context.Context, dev *types.Developer) error {
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO developers (`+developerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, dev.ID, dev.Name, dev.Email, nonNil(dev.AssignedURLs), dev.CreatedAt, dev.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("developer %s: %w", dev.Email, types.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert developer: %w", err)
	}
	return nil
}

// GetDeveloper retrieves a developer by ID. Returns (nil, nil) when missing.
func (s *PostgresStorage) GetDeveloper(ctx context.Context, id string) (*types.Developer, error) {
	return s.getDeveloper(ctx, "id", id)
}

// GetDeveloperByEmail looks a developer up case-insensitively. Returns (nil, nil) when missing.
func (s *PostgresStorage) GetDeveloperByEmail(ctx context.Context, email string) (*types.Developer, error) {
	return s.getDeveloper(ctx, "email", types.NormalizeEmail(email))
}

func (s *PostgresStorage) getDeveloper(ctx context.Context, column, value string) (*types.Developer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+developerColumns+` FROM developers WHERE `+column+` = $1`, value)
	dev, err := scanDeveloper(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get developer: %w", err)
	}
	return dev, nil
}

// ListDevelopers returns all developers ordered by e-mail
func (s *PostgresStorage) ListDevelopers(ctx context.Context) ([]*types.Developer, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+developerColumns+` FROM developers ORDER BY email`)
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

func scanDeveloper(row pgx.Row) (*types.Developer, error) {
	var dev types.Developer
	err := row.Scan(&dev.ID, &dev.Name, &dev.Email, &dev.AssignedURLs, &dev.CreatedAt, &dev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &dev, nil
}
