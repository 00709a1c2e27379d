// Package enrich derives a summary, tags, a category and a severity for a bug
// report using an AI completer. Every field degrades to a default on failure;
// enrichment never fails a report.
package enrich

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/bugtracker/internal/ai"
	"github.com/steveyegge/bugtracker/internal/metrics"
	"github.com/steveyegge/bugtracker/internal/types"
)

// DefaultCategory is used when no category could be derived
const DefaultCategory = "Uncategorized"

// DefaultLabels are the candidate tags and categories
var DefaultLabels = []string{
	"UI Bug",
	"Backend",
	"Database",
	"Security",
	"Performance",
	"Developer",
	"Internet Error",
}

// Field names used in logs and enrichment_failures_total
const (
	FieldSummary   = "summary"
	FieldTags      = "tags"
	FieldCategory  = "category"
	FieldSeverity  = "severity"
	FieldEmbedding = "embedding"
)

// Enrichment is the AI-derived metadata for a report
type Enrichment struct {
	Summary   string
	Tags      []string
	Category  string
	Severity  types.Severity
	Embedding []float32
}

// Defaults returns the enrichment used when no AI is available
func Defaults(description string) Enrichment {
	return Enrichment{
		Summary:  strings.TrimSpace(description),
		Tags:     []string{},
		Category: DefaultCategory,
		Severity: types.DefaultSeverity,
	}
}

// Options configures an Enricher
type Options struct {
	Labels   []string    // Candidate labels (default: DefaultLabels)
	Embedder ai.Embedder // Optional; nil skips embeddings
	Timeout  time.Duration
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Enricher runs the four classification calls concurrently
type Enricher struct {
	completer ai.Completer
	embedder  ai.Embedder
	labels    []string
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// New creates an Enricher. A nil completer yields defaults for every report.
func New(completer ai.Completer, opts Options) *Enricher {
	labels := opts.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		completer: completer,
		embedder:  opts.Embedder,
		labels:    labels,
		timeout:   opts.Timeout,
		logger:    logger.Named("enrich"),
		metrics:   opts.Metrics,
	}
}

// Labels returns the candidate label set
func (e *Enricher) Labels() []string {
	return e.labels
}

// Enrich never returns an error: each field that cannot be derived keeps its
// default and the failure is logged and counted.
func (e *Enricher) Enrich(ctx context.Context, description string) Enrichment {
	out := Defaults(description)
	if e.completer == nil && e.embedder == nil {
		return out
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// Each goroutine owns exactly one field of out
	var g errgroup.Group
	if e.completer != nil {
		g.Go(func() error {
			if s, err := e.summarize(ctx, description); err != nil {
				e.fail(FieldSummary, err)
			} else {
				out.Summary = s
			}
			return nil
		})
		g.Go(func() error {
			if tags, err := e.tags(ctx, description); err != nil {
				e.fail(FieldTags, err)
			} else {
				out.Tags = tags
			}
			return nil
		})
		g.Go(func() error {
			if c, err := e.category(ctx, description); err != nil {
				e.fail(FieldCategory, err)
			} else {
				out.Category = c
			}
			return nil
		})
		g.Go(func() error {
			if sev, err := e.severity(ctx, description); err != nil {
				e.fail(FieldSeverity, err)
			} else {
				out.Severity = sev
			}
			return nil
		})
	}
	if e.embedder != nil {
		g.Go(func() error {
			vec, err := e.embedder.Embed(ctx, clip(description))
			if err != nil {
				e.fail(FieldEmbedding, err)
				return nil
			}
			out.Embedding = vec
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (e *Enricher) fail(field string, err error) {
	e.logger.Warn("enrichment failed, using default", zap.String("field", field), zap.Error(err))
	e.metrics.EnrichmentFailure(field)
}

func (e *Enricher) summarize(ctx context.Context, description string) (string, error) {
	resp, err := e.completer.Complete(ctx, "summarize", buildSummaryPrompt(description), 200)
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp)
	if summary == "" {
		return "", errEmpty
	}
	return summary, nil
}

func (e *Enricher) tags(ctx context.Context, description string) ([]string, error) {
	resp, err := e.completer.Complete(ctx, "tags", buildTagsPrompt(description, e.labels), 100)
	if err != nil {
		return nil, err
	}
	result := ai.Parse[[]string](resp, ai.ParseOptions{Context: "tags"})
	if !result.Success {
		return nil, parseError(result.Error)
	}
	return e.filterLabels(result.Data), nil
}

func (e *Enricher) category(ctx context.Context, description string) (string, error) {
	resp, err := e.completer.Complete(ctx, "category", buildCategoryPrompt(description, e.labels), 20)
	if err != nil {
		return "", err
	}
	label, ok := e.matchLabel(resp)
	if !ok {
		return "", parseError("category " + quote(resp) + " is not a known label")
	}
	return label, nil
}

func (e *Enricher) severity(ctx context.Context, description string) (types.Severity, error) {
	resp, err := e.completer.Complete(ctx, "severity", buildSeverityPrompt(description), 5)
	if err != nil {
		return "", err
	}
	return types.ParseSeverity(cleanWord(resp))
}

// filterLabels keeps known labels in the model's order, canonically cased and
// without repeats.
func (e *Enricher) filterLabels(raw []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, r := range raw {
		label, ok := e.matchLabel(r)
		if !ok || seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}

func (e *Enricher) matchLabel(raw string) (string, bool) {
	word := cleanWord(raw)
	for _, l := range e.labels {
		if strings.EqualFold(l, word) {
			return l, true
		}
	}
	return "", false
}

// cleanWord strips the quotes, punctuation and markdown a model may wrap a
// single-word answer in.
func cleanWord(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.Trim(s, " \t\"'`*.:")
}
