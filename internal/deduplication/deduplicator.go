package deduplication

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/steveyegge/bugtracker/internal/ai"
	"github.com/steveyegge/bugtracker/internal/types"
)

// BugLister is the slice of storage the detector needs
type BugLister interface {
	ListBugs(ctx context.Context, filter types.BugFilter) ([]*types.Bug, error)
}

// Candidate is an incoming report after enrichment
type Candidate struct {
	Title     string
	Summary   string
	Category  string
	TestURL   string
	Embedding []float32
}

// Rule identifies which check produced a match
type Rule string

const (
	RuleCategory   Rule = "category"
	RuleSimilarity Rule = "similarity"
	RuleSemantic   Rule = "semantic"
)

// Match is an existing bug judged equivalent to a candidate
type Match struct {
	Bug   *types.Bug
	Rule  Rule
	Score float64
}

// Detector finds existing bugs that an incoming report duplicates
type Detector struct {
	store  BugLister
	config Config
	logger *zap.Logger
}

// NewDetector creates a detector. The config is validated up front.
func NewDetector(store BugLister, cfg Config, logger *zap.Logger) (*Detector, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deduplication config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{store: store, config: cfg, logger: logger.Named("dedup")}, nil
}

// Config returns the detector's configuration
func (d *Detector) Config() Config {
	return d.config
}

// FindDuplicate runs the category, similarity and semantic rules in order.
// Returns (nil, nil) when nothing matches.
func (d *Detector) FindDuplicate(ctx context.Context, c Candidate) (*Match, error) {
	m, err := d.byCategory(ctx, c)
	if err != nil || m != nil {
		return m, err
	}

	bugs, err := d.candidates(ctx, c.TestURL)
	if err != nil {
		return nil, err
	}

	if m := d.bySimilarity(c, bugs); m != nil {
		return m, nil
	}
	if d.config.SemanticEnabled && len(c.Embedding) > 0 {
		if m := d.bySemantic(c, bugs); m != nil {
			return m, nil
		}
	}
	return nil, nil
}

func (d *Detector) byCategory(ctx context.Context, c Candidate) (*Match, error) {
	status := types.StatusOpen
	testURL := c.TestURL
	category := c.Category
	bugs, err := d.store.ListBugs(ctx, types.BugFilter{
		Status:   &status,
		TestURL:  &testURL,
		Category: &category,
		Oldest:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bugs for category match: %w", err)
	}
	title := strings.TrimSpace(c.Title)
	for _, b := range bugs {
		if strings.EqualFold(strings.TrimSpace(b.Title), title) {
			d.logger.Debug("category match", zap.String("bug_id", b.ID))
			return &Match{Bug: b, Rule: RuleCategory, Score: 1}, nil
		}
	}
	return nil, nil
}

// candidates returns up to MaxCandidates of the most recent bugs, oldest
// first, scoped to testURL when one is given.
func (d *Detector) candidates(ctx context.Context, testURL string) ([]*types.Bug, error) {
	filter := types.BugFilter{Limit: d.config.MaxCandidates}
	if testURL != "" {
		filter.TestURL = &testURL
	}
	bugs, err := d.store.ListBugs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list duplicate candidates: %w", err)
	}
	slices.Reverse(bugs)
	return bugs, nil
}

func (d *Detector) bySimilarity(c Candidate, bugs []*types.Bug) *Match {
	text := c.Title + " " + c.Summary
	for _, b := range bugs {
		if c.TestURL != "" && b.TestURL != c.TestURL {
			continue
		}
		score := KeywordOverlap(text, b.Title+" "+b.Summary)
		if score >= d.config.SimilarityThreshold {
			d.logger.Debug("similarity match",
				zap.String("bug_id", b.ID), zap.Float64("score", score))
			return &Match{Bug: b, Rule: RuleSimilarity, Score: score}
		}
	}
	return nil
}

func (d *Detector) bySemantic(c Candidate, bugs []*types.Bug) *Match {
	var best *Match
	for _, b := range bugs {
		if b.TestURL != c.TestURL || len(b.Embedding) == 0 {
			continue
		}
		score := ai.CosineSimilarity(c.Embedding, b.Embedding)
		if score < d.config.SemanticThreshold {
			continue
		}
		if best == nil || score > best.Score {
			best = &Match{Bug: b, Rule: RuleSemantic, Score: score}
		}
	}
	if best != nil {
		d.logger.Debug("semantic match",
			zap.String("bug_id", best.Bug.ID), zap.Float64("score", best.Score))
	}
	return best
}
