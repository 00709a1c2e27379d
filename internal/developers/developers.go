// Package developers is the developer controller: developer accounts are an
// e-mail identity plus the base URLs the developer owns, and a developer's
// bugs are the ones reported against those origins.
package developers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/steveyegge/bugtracker/internal/storage"
	"github.com/steveyegge/bugtracker/internal/types"
)

var (
	// ErrNotFound is returned when a developer does not exist
	ErrNotFound = errors.New("developer not found")

	// ErrInvalid wraps developer validation failures
	ErrInvalid = errors.New("invalid developer")

	// ErrDuplicate is returned when the e-mail is already registered
	ErrDuplicate = storage.ErrDuplicate
)

// Store is the slice of storage the service needs
type Store interface {
	CreateDeveloper(ctx context.Context, dev *types.Developer) error
	GetDeveloper(ctx context.Context, id string) (*types.Developer, error)
	GetDeveloperByEmail(ctx context.Context, email string) (*types.Developer, error)
	ListDevelopers(ctx context.Context) ([]*types.Developer, error)
	ListBugs(ctx context.Context, filter types.BugFilter) ([]*types.Bug, error)
}

// Service manages developers
type Service struct {
	store  Store
	logger *zap.Logger
}

// New creates a Service
func New(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger.Named("developers")}
}

// Create registers a developer. The e-mail is stored lower-cased.
func (s *Service) Create(ctx context.Context, dev types.Developer) (*types.Developer, error) {
	dev.Email = types.NormalizeEmail(dev.Email)
	dev.Name = strings.TrimSpace(dev.Name)
	urls := make([]string, 0, len(dev.AssignedURLs))
	for _, u := range dev.AssignedURLs {
		urls = append(urls, strings.TrimSpace(u))
	}
	dev.AssignedURLs = urls

	if err := dev.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.store.CreateDeveloper(ctx, &dev); err != nil {
		return nil, err
	}
	s.logger.Info("developer created",
		zap.String("developer_id", dev.ID),
		zap.String("email", dev.Email),
		zap.Strings("assigned_urls", dev.AssignedURLs))
	return &dev, nil
}

// Get returns a developer by id
func (s *Service) Get(ctx context.Context, id string) (*types.Developer, error) {
	dev, err := s.store.GetDeveloper(ctx, id)
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return dev, nil
}

// GetByEmail looks a developer up by e-mail, ignoring case
func (s *Service) GetByEmail(ctx context.Context, email string) (*types.Developer, error) {
	dev, err := s.store.GetDeveloperByEmail(ctx, types.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	return dev, nil
}

// List returns every developer
func (s *Service) List(ctx context.Context) ([]*types.Developer, error) {
	devs, err := s.store.ListDevelopers(ctx)
	if err != nil {
		return nil, err
	}
	if devs == nil {
		devs = []*types.Developer{}
	}
	return devs, nil
}

// BugsFor returns the bugs whose page shares an origin with one of the
// developer's assigned URLs, newest first. Paths are ignored.
func (s *Service) BugsFor(ctx context.Context, developerID string) ([]*types.Bug, error) {
	dev, err := s.Get(ctx, developerID)
	if err != nil {
		return nil, err
	}

	bases := make(map[string]struct{}, len(dev.AssignedURLs))
	for _, raw := range dev.AssignedURLs {
		if origin, ok := Origin(raw); ok {
			bases[origin] = struct{}{}
		} else {
			bases[raw] = struct{}{}
		}
	}

	all, err := s.store.ListBugs(ctx, types.BugFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list bugs: %w", err)
	}
	out := []*types.Bug{}
	for _, bug := range all {
		origin, ok := Origin(bug.TestURL)
		if !ok {
			continue
		}
		if _, mine := bases[origin]; mine {
			out = append(out, bug)
		}
	}
	return out, nil
}

// Origin reduces a URL to scheme://host[:port] with the scheme and host
// lower-cased and default ports dropped. ok is false for URLs without a
// scheme or host.
func Origin(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host, true
}
