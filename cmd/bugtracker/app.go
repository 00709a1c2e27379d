package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/steveyegge/bugtracker/internal/ai"
	"github.com/steveyegge/bugtracker/internal/config"
	"github.com/steveyegge/bugtracker/internal/deduplication"
	"github.com/steveyegge/bugtracker/internal/developers"
	"github.com/steveyegge/bugtracker/internal/enrich"
	"github.com/steveyegge/bugtracker/internal/metrics"
	"github.com/steveyegge/bugtracker/internal/notify"
	"github.com/steveyegge/bugtracker/internal/pageanalysis"
	"github.com/steveyegge/bugtracker/internal/storage"
	"github.com/steveyegge/bugtracker/internal/tracker"
)

// app holds the services every command shares
type app struct {
	metrics    *metrics.Metrics
	aiClient   *ai.Client // nil when the provider is "none"
	enricher   *enrich.Enricher
	detector   *deduplication.Detector
	nats       *notify.NATSNotifier // nil when notices are only logged
	tracker    *tracker.Service
	developers *developers.Service
	analyzer   *pageanalysis.Analyzer

	closers []func()
}

// newApp wires the services on top of an open store
func newApp(ctx context.Context, cfg *config.Config, store storage.Storage, logger *zap.Logger) (*app, error) {
	a := &app{metrics: metrics.New()}

	var completer ai.Completer
	if !strings.EqualFold(cfg.AI.Provider, "none") {
		provider, err := ai.NewProvider(ctx, cfg.AI.Provider, cfg.AI.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create AI provider: %w", err)
		}
		retry := ai.DefaultRetryConfig()
		retry.Timeout = cfg.AI.Timeout
		retry.MaxConcurrentCalls = cfg.AI.MaxConcurrentCalls
		retry.RequestsPerSecond = cfg.AI.RequestsPerSecond

		client, err := ai.NewClient(provider, ai.Config{
			Model:  cfg.AI.Model,
			Retry:  retry,
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AI client: %w", err)
		}
		a.aiClient = client
		completer = client
	} else {
		logger.Info("AI provider disabled; reports get default enrichment")
	}

	var embedder ai.Embedder
	if cfg.AI.Embeddings {
		// APIKey belongs to the completion provider; reuse it only for Gemini
		key := ""
		if strings.EqualFold(cfg.AI.Provider, "gemini") {
			key = cfg.AI.APIKey
		}
		e, err := ai.NewGeminiEmbedder(ctx, key, cfg.AI.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		embedder = e
	}

	a.enricher = enrich.New(completer, enrich.Options{
		Embedder: embedder,
		Timeout:  cfg.AI.Timeout,
		Logger:   logger,
		Metrics:  a.metrics,
	})

	dedupCfg, err := deduplication.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if embedder != nil {
		dedupCfg.SemanticEnabled = true
	}
	a.detector, err = deduplication.NewDetector(store, dedupCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create duplicate detector: %w", err)
	}
	logger.Debug("duplicate detection", zap.Stringer("config", dedupCfg))

	var notifier notify.Notifier
	if cfg.Notify.NATSURL != "" {
		n, err := notify.DialNATS(cfg.Notify.NATSURL, cfg.Notify.Subject, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n.Close)
		a.nats = n
		notifier = n
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	a.tracker, err = tracker.New(tracker.Config{
		Store:    store,
		Enricher: a.enricher,
		Detector: a.detector,
		Notifier: notifier,
		Metrics:  a.metrics,
		Logger:   logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.developers = developers.New(store, logger)

	var capturer pageanalysis.Capturer
	if cfg.Browser.Enabled {
		capturer = pageanalysis.NewRodCapturer(cfg.Browser.Bin, cfg.Browser.NavigationTimeout, logger)
	} else {
		capturer = pageanalysis.NewHTTPCapturer(cfg.Browser.NavigationTimeout)
	}
	a.analyzer = pageanalysis.NewAnalyzer(capturer, completer, logger)

	return a, nil
}

// Close releases connections opened by newApp. The store is owned by the caller.
func (a *app) Close() {
	for _, c := range a.closers {
		c()
	}
}
