package enrich

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/steveyegge/bugtracker/internal/metrics"
	"github.com/steveyegge/bugtracker/internal/types"
)

const checkoutBug = "Clicking Pay charges customers twice on the checkout page."

// fakeCompleter answers by operation name
type fakeCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	seen    []string
}

func (f *fakeCompleter) Complete(ctx context.Context, operation, prompt string, maxTokens int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, operation)
	if err := f.errs[operation]; err != nil {
		return "", err
	}
	return f.replies[operation], nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func TestPrompts(t *testing.T) {
	g := goldie.New(t)
	g.Assert(t, "summary_prompt", []byte(buildSummaryPrompt(checkoutBug)))
	g.Assert(t, "tags_prompt", []byte(buildTagsPrompt(checkoutBug, DefaultLabels)))
	g.Assert(t, "category_prompt", []byte(buildCategoryPrompt(checkoutBug, DefaultLabels)))
	g.Assert(t, "severity_prompt", []byte(buildSeverityPrompt(checkoutBug)))
}

func TestClipBoundsDescription(t *testing.T) {
	long := strings.Repeat("x", maxDescriptionChars+100)
	assert.Len(t, clip(long), maxDescriptionChars)
	assert.Equal(t, "short", clip("  short \n"))

	wide := clip(strings.Repeat("漢", maxDescriptionChars))
	assert.True(t, utf8.ValidString(wide), "cut on a rune boundary")
	assert.Len(t, wide, maxDescriptionChars-maxDescriptionChars%3)
}

func TestEnrichAllFields(t *testing.T) {
	fc := &fakeCompleter{replies: map[string]string{
		"summarize": "  Payment is taken twice at checkout.  ",
		"tags":      "```json\n[\"backend\", \"Security\", \"Made Up\", \"Backend\"]\n```",
		"category":  "**Backend**",
		"severity":  "High.",
	}}
	e := New(fc, Options{
		Embedder: &fakeEmbedder{vec: []float32{0.1, 0.2}},
		Logger:   zaptest.NewLogger(t),
	})

	got := e.Enrich(context.Background(), checkoutBug)
	assert.Equal(t, "Payment is taken twice at checkout.", got.Summary)
	assert.Equal(t, []string{"Backend", "Security"}, got.Tags)
	assert.Equal(t, "Backend", got.Category)
	assert.Equal(t, types.SeverityHigh, got.Severity)
	assert.Equal(t, []float32{0.1, 0.2}, got.Embedding)
	assert.ElementsMatch(t, []string{"summarize", "tags", "category", "severity"}, fc.seen)
}

func TestEnrichDegradesPerField(t *testing.T) {
	m := metrics.New()
	fc := &fakeCompleter{
		replies: map[string]string{
			"tags":     "I think this is a backend issue",
			"category": "Networking",
			"severity": "Low",
		},
		errs: map[string]error{"summarize": errors.New("503 service unavailable")},
	}
	e := New(fc, Options{
		Embedder: &fakeEmbedder{err: errors.New("quota")},
		Metrics:  m,
	})

	got := e.Enrich(context.Background(), checkoutBug)
	assert.Equal(t, checkoutBug, got.Summary, "summary falls back to the description")
	assert.Equal(t, []string{}, got.Tags)
	assert.Equal(t, DefaultCategory, got.Category)
	assert.Equal(t, types.SeverityLow, got.Severity, "severity succeeded independently")
	assert.Nil(t, got.Embedding)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentFailures.WithLabelValues(FieldSummary)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentFailures.WithLabelValues(FieldTags)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentFailures.WithLabelValues(FieldCategory)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EnrichmentFailures.WithLabelValues(FieldSeverity)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EnrichmentFailures.WithLabelValues(FieldEmbedding)))
}

func TestEnrichUnknownSeverity(t *testing.T) {
	fc := &fakeCompleter{replies: map[string]string{"severity": "Critical"}}
	got := New(fc, Options{}).Enrich(context.Background(), checkoutBug)
	assert.Equal(t, types.SeverityMedium, got.Severity)
}

func TestEnrichWithoutAI(t *testing.T) {
	got := New(nil, Options{}).Enrich(context.Background(), "  Logo is blurry  ")
	require.Equal(t, Defaults("Logo is blurry"), got)
	assert.Equal(t, "Logo is blurry", got.Summary)
	assert.Equal(t, DefaultCategory, got.Category)
	assert.Equal(t, types.DefaultSeverity, got.Severity)
}

func TestCustomLabels(t *testing.T) {
	fc := &fakeCompleter{replies: map[string]string{"category": "billing"}}
	e := New(fc, Options{Labels: []string{"Billing", "Search"}})
	assert.Equal(t, []string{"Billing", "Search"}, e.Labels())
	assert.Equal(t, "Billing", e.Enrich(context.Background(), checkoutBug).Category)
}

func TestCleanWord(t *testing.T) {
	tests := map[string]string{
		"High":                "High",
		"  \"Medium\"  ":      "Medium",
		"`Low`.":              "Low",
		"**UI Bug**":          "UI Bug",
		"Backend\nBecause...": "Backend",
		"Category: ":          "Category",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanWord(in), "input %q", in)
	}
}
