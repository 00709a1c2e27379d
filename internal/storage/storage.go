package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/bugtracker/internal/storage/postgres"
	"github.com/steveyegge/bugtracker/internal/storage/sqlite"
	"github.com/steveyegge/bugtracker/internal/types"
)

// ErrDuplicate is returned when a unique key (developer e-mail) already exists
var ErrDuplicate = types.ErrDuplicate

// Storage defines the interface for bug storage backends
type Storage interface {
	// Bugs
	CreateBug(ctx context.Context, bug *types.Bug, actor string) error
	GetBug(ctx context.Context, id string) (*types.Bug, error)
	UpdateBug(ctx context.Context, bug *types.Bug) error
	ListBugs(ctx context.Context, filter types.BugFilter) ([]*types.Bug, error)

	// Developers
	CreateDeveloper(ctx context.Context, dev *types.Developer) error
	GetDeveloper(ctx context.Context, id string) (*types.Developer, error)
	GetDeveloperByEmail(ctx context.Context, email string) (*types.Developer, error)
	ListDevelopers(ctx context.Context) ([]*types.Developer, error)

	// Events
	AddEvent(ctx context.Context, event *types.Event) error
	GetEvents(ctx context.Context, bugID string, limit int) ([]*types.Event, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Config holds database configuration
type Config struct {
	// Backend is "sqlite" (default) or "postgres"
	Backend string

	// Path is the SQLite database file path
	// Default: ".bugtracker/bugs.db"
	Path string

	// DSN is the PostgreSQL connection string
	DSN string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: "sqlite",
		Path:    ".bugtracker/bugs.db",
	}
}

// NewStorage opens the configured backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = DefaultConfig().Path
		}
		return sqlite.New(path)
	case "postgres":
		pgCfg := postgres.DefaultConfig()
		pgCfg.DSN = cfg.DSN
		return postgres.New(ctx, pgCfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
