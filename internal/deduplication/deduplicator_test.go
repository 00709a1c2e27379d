package deduplication

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/steveyegge/bugtracker/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memStore holds bugs in insertion order and applies BugFilter like the
// storage backends do.
type memStore struct {
	bugs    []*types.Bug
	err     error
	filters []types.BugFilter
}

func (m *memStore) add(b types.Bug) *types.Bug {
	if b.Status == "" {
		b.Status = types.StatusOpen
	}
	bug := &b
	m.bugs = append(m.bugs, bug)
	return bug
}

func (m *memStore) ListBugs(ctx context.Context, f types.BugFilter) ([]*types.Bug, error) {
	m.filters = append(m.filters, f)
	if m.err != nil {
		return nil, m.err
	}
	var out []*types.Bug
	for _, b := range m.bugs {
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		if f.TestURL != nil && b.TestURL != *f.TestURL {
			continue
		}
		if f.Category != nil && b.Category != *f.Category {
			continue
		}
		out = append(out, b)
	}
	if !f.Oldest {
		slices.Reverse(out)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

const checkoutURL = "https://shop.example.com/checkout"

func newDetector(t *testing.T, store BugLister, cfg Config) *Detector {
	t.Helper()
	d, err := NewDetector(store, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return d
}

func TestNewDetectorValidates(t *testing.T) {
	_, err := NewDetector(nil, DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.SimilarityThreshold = 2
	_, err = NewDetector(&memStore{}, cfg, nil)
	assert.ErrorContains(t, err, "invalid deduplication config")
}

func TestCategoryRule(t *testing.T) {
	store := &memStore{}
	store.add(types.Bug{ID: "closed", Title: "Pay button", Category: "Backend", TestURL: checkoutURL, Status: types.StatusClosed})
	open := store.add(types.Bug{ID: "open", Title: "Pay button", Category: "Backend", TestURL: checkoutURL})
	d := newDetector(t, store, DefaultConfig())

	m, err := d.FindDuplicate(context.Background(), Candidate{
		Title:    "  pay BUTTON ",
		Summary:  "nothing in common",
		Category: "Backend",
		TestURL:  checkoutURL,
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Same(t, open, m.Bug)
	assert.Equal(t, RuleCategory, m.Rule)
	assert.Equal(t, 1.0, m.Score)
}

func TestCategoryRuleNeedsAllThree(t *testing.T) {
	tests := []struct {
		name string
		c    Candidate
	}{
		{"different category", Candidate{Title: "Pay button", Category: "UI Bug", TestURL: checkoutURL}},
		{"different url", Candidate{Title: "Pay button", Category: "Backend", TestURL: "https://shop.example.com/cart"}},
		{"different title", Candidate{Title: "Zip code field", Category: "Backend", TestURL: checkoutURL}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			store.add(types.Bug{ID: "b1", Title: "Pay button", Category: "Backend", TestURL: checkoutURL})
			m, err := newDetector(t, store, DefaultConfig()).FindDuplicate(context.Background(), tt.c)
			require.NoError(t, err)
			if m != nil {
				assert.NotEqual(t, RuleCategory, m.Rule)
			}
		})
	}
}

func TestSimilarityRuleFirstMatchInInsertionOrder(t *testing.T) {
	store := &memStore{}
	store.add(types.Bug{ID: "other-page", Title: "Customers charged twice", TestURL: "https://other.example.com"})
	first := store.add(types.Bug{ID: "first", Title: "Card charged twice", Summary: "payment duplicated", TestURL: checkoutURL})
	store.add(types.Bug{ID: "second", Title: "Customers charged twice at checkout", TestURL: checkoutURL})
	d := newDetector(t, store, DefaultConfig())

	m, err := d.FindDuplicate(context.Background(), Candidate{
		Title:    "Customer charges doubled",
		Summary:  "card charged double",
		Category: "Security",
		TestURL:  checkoutURL,
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Same(t, first, m.Bug)
	assert.Equal(t, RuleSimilarity, m.Rule)
	assert.GreaterOrEqual(t, m.Score, 0.5)
}

func TestSimilarityRuleWithoutURLScansEverything(t *testing.T) {
	store := &memStore{}
	target := store.add(types.Bug{ID: "b1", Title: "Search returns nothing", TestURL: "https://a.example.com"})
	d := newDetector(t, store, DefaultConfig())

	m, err := d.FindDuplicate(context.Background(), Candidate{Title: "search nothing", Category: "Backend"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Same(t, target, m.Bug)

	last := store.filters[len(store.filters)-1]
	assert.Nil(t, last.TestURL)
	assert.Equal(t, DefaultConfig().MaxCandidates, last.Limit)
}

func TestSimilarityRuleMatchesClosedBugs(t *testing.T) {
	store := &memStore{}
	closed := store.add(types.Bug{ID: "b1", Title: "Logo blurry", TestURL: checkoutURL, Status: types.StatusClosed})
	m, err := newDetector(t, store, DefaultConfig()).FindDuplicate(context.Background(), Candidate{
		Title: "blurry logo", Category: "UI Bug", TestURL: checkoutURL,
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Same(t, closed, m.Bug)
	assert.Equal(t, RuleSimilarity, m.Rule)
}

func TestSimilarityBelowThreshold(t *testing.T) {
	store := &memStore{}
	store.add(types.Bug{ID: "b1", Title: "login button misaligned", TestURL: checkoutURL})
	m, err := newDetector(t, store, DefaultConfig()).FindDuplicate(context.Background(), Candidate{
		Title: "checkout total wrong", Summary: "tax missing", TestURL: checkoutURL,
	})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMaxCandidatesKeepsNewest(t *testing.T) {
	store := &memStore{}
	store.add(types.Bug{ID: "old", Title: "header overlaps menu", TestURL: checkoutURL})
	store.add(types.Bug{ID: "mid", Title: "unrelated footer", TestURL: checkoutURL})
	newest := store.add(types.Bug{ID: "new", Title: "header overlaps menu again", TestURL: checkoutURL})

	cfg := DefaultConfig()
	cfg.MaxCandidates = 2
	m, err := newDetector(t, store, cfg).FindDuplicate(context.Background(), Candidate{
		Title: "Header overlaps menu", Category: "UI Bug", TestURL: checkoutURL,
	})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Same(t, newest, m.Bug, "the oldest bug falls outside the window")
}

func TestSimilarityReachesOldestBugUnderCap(t *testing.T) {
	store := &memStore{}
	oldest := store.add(types.Bug{ID: "b-0", Title: "header overlaps menu", TestURL: checkoutURL})
	for i := 1; i < 50; i++ {
		store.add(types.Bug{ID: fmt.Sprintf("b-%d", i), Title: fmt.Sprintf("footer link %d broken", i), TestURL: checkoutURL})
	}
	candidate := Candidate{Title: "Header overlaps menu", Category: "UI Bug", TestURL: checkoutURL}

	for _, limit := range []int{DefaultConfig().MaxCandidates, 50} {
		cfg := DefaultConfig()
		cfg.MaxCandidates = limit
		m, err := newDetector(t, store, cfg).FindDuplicate(context.Background(), candidate)
		require.NoError(t, err)
		require.NotNil(t, m, "max candidates %d", limit)
		assert.Same(t, oldest, m.Bug)
		assert.Equal(t, RuleSimilarity, m.Rule)
	}
}

func TestSemanticRule(t *testing.T) {
	store := &memStore{}
	store.add(types.Bug{ID: "far", Title: "alpha", TestURL: checkoutURL, Embedding: []float32{0, 1}})
	store.add(types.Bug{ID: "close", Title: "beta", TestURL: checkoutURL, Embedding: []float32{0.9, 0.1}})
	best := store.add(types.Bug{ID: "closest", Title: "gamma", TestURL: checkoutURL, Embedding: []float32{1, 0.01}})
	store.add(types.Bug{ID: "elsewhere", Title: "delta", TestURL: "https://x.example.com", Embedding: []float32{1, 0}})

	candidate := Candidate{Title: "omega", TestURL: checkoutURL, Embedding: []float32{1, 0}}

	m, err := newDetector(t, store, DefaultConfig()).FindDuplicate(context.Background(), candidate)
	require.NoError(t, err)
	assert.Nil(t, m, "semantic rule is off by default")

	cfg := DefaultConfig()
	cfg.SemanticEnabled = true
	m, err = newDetector(t, store, cfg).FindDuplicate(context.Background(), candidate)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Same(t, best, m.Bug)
	assert.Equal(t, RuleSemantic, m.Rule)
	assert.Greater(t, m.Score, 0.99)
}

func TestFindDuplicateStorageError(t *testing.T) {
	store := &memStore{err: errors.New("disk on fire")}
	_, err := newDetector(t, store, DefaultConfig()).FindDuplicate(context.Background(), Candidate{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}
