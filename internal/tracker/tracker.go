// Package tracker is the bug controller: it turns incoming reports into new
// bugs or merges them into existing ones, escalates severity as reports pile
// up, and resolves bugs on behalf of developers.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steveyegge/bugtracker/internal/deduplication"
	"github.com/steveyegge/bugtracker/internal/enrich"
	"github.com/steveyegge/bugtracker/internal/metrics"
	"github.com/steveyegge/bugtracker/internal/notify"
	"github.com/steveyegge/bugtracker/internal/storage"
	"github.com/steveyegge/bugtracker/internal/types"
)

// Outcome describes what Report did with a report
type Outcome string

const (
	OutcomeCreated        Outcome = "created"
	OutcomeMergedCategory Outcome = "merged_category"
	OutcomeMergedSimilar  Outcome = "merged_similar"

	// Metric-only outcomes
	outcomeAlreadyResolved = "already_resolved"
	outcomeRejected        = "rejected"
)

// Messages returned alongside merged reports
const (
	MergedCategoryMessage = "Duplicate bug for same URL + category. Updated report count."
	MergedSimilarMessage  = "Duplicate bug found (same URL), updated report count & severity"
	ResolvedMessage       = "Bug marked as resolved"
)

// anonymous is the event actor for reports without an e-mail
const anonymous = "anonymous"

// Enricher derives AI metadata for a description
type Enricher interface {
	Enrich(ctx context.Context, description string) enrich.Enrichment
}

// DuplicateFinder matches a report against existing bugs
type DuplicateFinder interface {
	FindDuplicate(ctx context.Context, c deduplication.Candidate) (*deduplication.Match, error)
}

// ReportRequest is a tester's bug submission
type ReportRequest struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	ReporterEmail string `json:"reporterEmail,omitempty"`
	TestURL       string `json:"testUrl,omitempty"`
	Screenshot    string `json:"screenshot,omitempty"`
}

// Validate checks required fields and the page URL
func (r *ReportRequest) Validate() error {
	if err := types.ValidateTitle(r.Title); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalid)
	}
	if err := types.ValidateTestURL(r.TestURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// ReportResult is the bug a report created or merged into
type ReportResult struct {
	Outcome Outcome
	Message string
	Bug     *types.Bug
	Match   *deduplication.Match
}

// ResolveOptions controls Resolve
type ResolveOptions struct {
	SendMail bool
	Actor    string
}

// ResolveResult reports what Resolve did
type ResolveResult struct {
	Bug           *types.Bug
	Notified      bool
	AlreadyClosed bool
}

// Config wires a Service
type Config struct {
	Store    storage.Storage
	Enricher Enricher
	Detector DuplicateFinder
	Notifier notify.Notifier // Optional; nil disables resolution notices
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Service is the bug controller
type Service struct {
	store    storage.Storage
	enricher Enricher
	detector DuplicateFinder
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// mu serializes the find-then-write step of Report so concurrent
	// duplicates don't lose report counts
	mu sync.Mutex
}

// New creates a Service
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Enricher == nil {
		return nil, fmt.Errorf("enricher is required")
	}
	if cfg.Detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    cfg.Store,
		enricher: cfg.Enricher,
		detector: cfg.Detector,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		logger:   logger.Named("tracker"),
	}, nil
}

// Report enriches a submission, then merges it into a duplicate or files a
// new bug. A report that duplicates a closed bug fails with *ResolvedError.
func (s *Service) Report(ctx context.Context, req ReportRequest) (*ReportResult, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.ReporterEmail = strings.TrimSpace(req.ReporterEmail)
	req.TestURL = strings.TrimSpace(req.TestURL)
	if err := req.Validate(); err != nil {
		s.metrics.Report(outcomeRejected)
		return nil, err
	}

	e := s.enricher.Enrich(ctx, req.Description)

	s.mu.Lock()
	defer s.mu.Unlock()

	match, err := s.detector.FindDuplicate(ctx, deduplication.Candidate{
		Title:     req.Title,
		Summary:   e.Summary,
		Category:  e.Category,
		TestURL:   req.TestURL,
		Embedding: e.Embedding,
	})
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}

	var result *ReportResult
	switch {
	case match == nil:
		result, err = s.create(ctx, req, e)
	case match.Rule == deduplication.RuleCategory:
		result, err = s.merge(ctx, req, match, match.Bug.Severity, OutcomeMergedCategory, MergedCategoryMessage)
	case !match.Bug.IsOpen():
		s.metrics.Report(outcomeAlreadyResolved)
		s.logger.Info("report duplicates a resolved bug",
			zap.String("bug_id", match.Bug.ID),
			zap.String("rule", string(match.Rule)))
		return nil, newResolvedError(match.Bug)
	default:
		base := types.MaxSeverity(match.Bug.Severity, e.Severity)
		result, err = s.merge(ctx, req, match, base, OutcomeMergedSimilar, MergedSimilarMessage)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.Report(string(result.Outcome))
	s.logger.Info("bug reported",
		zap.String("bug_id", result.Bug.ID),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("reports", result.Bug.Reports),
		zap.String("severity", string(result.Bug.Severity)))
	return result, nil
}

func (s *Service) create(ctx context.Context, req ReportRequest, e enrich.Enrichment) (*ReportResult, error) {
	bug := &types.Bug{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Summary:     e.Summary,
		Category:    e.Category,
		Tags:        e.Tags,
		Severity:    e.Severity,
		Status:      types.StatusOpen,
		Reports:     1,
		Reporters:   []string{},
		TestURL:     req.TestURL,
		Screenshot:  req.Screenshot,
		Embedding:   e.Embedding,
	}
	if bug.Tags == nil {
		bug.Tags = []string{}
	}
	bug.AddReporter(req.ReporterEmail)

	if err := s.store.CreateBug(ctx, bug, actorFor(req.ReporterEmail)); err != nil {
		return nil, fmt.Errorf("failed to create bug: %w", err)
	}
	return &ReportResult{Outcome: OutcomeCreated, Bug: bug}, nil
}

// merge folds a report into an existing bug. base is the severity escalation
// starts from.
func (s *Service) merge(ctx context.Context, req ReportRequest, match *deduplication.Match, base types.Severity, outcome Outcome, message string) (*ReportResult, error) {
	bug := match.Bug
	oldSeverity := bug.Severity

	bug.Reports++
	bug.AddReporter(req.ReporterEmail)
	if req.Screenshot != "" {
		bug.Screenshot = req.Screenshot
	}
	bug.Severity = Escalate(base, bug.Reports)

	if err := s.store.UpdateBug(ctx, bug); err != nil {
		return nil, fmt.Errorf("failed to update duplicate bug: %w", err)
	}

	actor := actorFor(req.ReporterEmail)
	s.record(ctx, &types.Event{
		BugID:    bug.ID,
		Type:     types.EventReportedAgain,
		Actor:    actor,
		NewValue: types.StrPtr(strconv.Itoa(bug.Reports)),
		Comment:  types.StrPtr(fmt.Sprintf("matched by %s rule (score %.2f)", match.Rule, match.Score)),
	})
	if bug.Severity != oldSeverity {
		s.record(ctx, severityEvent(bug.ID, actor, oldSeverity, bug.Severity, "escalated by report count"))
	}

	return &ReportResult{Outcome: outcome, Message: message, Bug: bug, Match: match}, nil
}

// Resolve closes a bug and, when asked, notifies its reporters. Resolving a
// closed bug changes nothing and sends nothing. A failed notice is logged and
// reported through ResolveResult.Notified; it never fails the resolve.
func (s *Service) Resolve(ctx context.Context, id string, opts ResolveOptions) (*ResolveResult, error) {
	bug, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !bug.IsOpen() {
		return &ResolveResult{Bug: bug, AlreadyClosed: true}, nil
	}

	actor := opts.Actor
	if actor == "" {
		actor = anonymous
	}

	now := time.Now().UTC()
	bug.Status = types.StatusClosed
	bug.ClosedAt = &now
	if err := s.store.UpdateBug(ctx, bug); err != nil {
		return nil, fmt.Errorf("failed to resolve bug: %w", err)
	}
	s.record(ctx, &types.Event{
		BugID:    bug.ID,
		Type:     types.EventResolved,
		Actor:    actor,
		OldValue: types.StrPtr(string(types.StatusOpen)),
		NewValue: types.StrPtr(string(types.StatusClosed)),
	})
	s.logger.Info("bug resolved", zap.String("bug_id", bug.ID), zap.String("actor", actor))

	result := &ResolveResult{Bug: bug}
	if opts.SendMail && len(bug.Reporters) > 0 && s.notifier != nil {
		result.Notified = s.notify(ctx, bug, actor)
	}
	return result, nil
}

func (s *Service) notify(ctx context.Context, bug *types.Bug, actor string) bool {
	notice := notify.NewResolutionNotice(bug)
	if err := s.notifier.NotifyResolved(ctx, notice); err != nil {
		s.metrics.Notification("failed")
		s.logger.Warn("resolution notice failed", zap.String("bug_id", bug.ID), zap.Error(err))
		return false
	}
	s.metrics.Notification("sent")
	s.record(ctx, &types.Event{
		BugID:    bug.ID,
		Type:     types.EventNotified,
		Actor:    actor,
		NewValue: types.StrPtr(strings.Join(notice.To, ",")),
	})
	return true
}

// SetSeverity overrides a bug's severity from the dashboard
func (s *Service) SetSeverity(ctx context.Context, id string, severity types.Severity, actor string) (*types.Bug, error) {
	if !severity.IsValid() {
		return nil, fmt.Errorf("%w: invalid severity %q", ErrInvalid, severity)
	}
	bug, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if bug.Severity == severity {
		return bug, nil
	}
	if actor == "" {
		actor = anonymous
	}

	old := bug.Severity
	bug.Severity = severity
	if err := s.store.UpdateBug(ctx, bug); err != nil {
		return nil, fmt.Errorf("failed to update severity: %w", err)
	}
	s.record(ctx, severityEvent(bug.ID, actor, old, severity, ""))
	return bug, nil
}

// Get returns a bug or ErrNotFound
func (s *Service) Get(ctx context.Context, id string) (*types.Bug, error) {
	bug, err := s.store.GetBug(ctx, id)
	if err != nil {
		return nil, err
	}
	if bug == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return bug, nil
}

// List returns bugs matching filter, newest first
func (s *Service) List(ctx context.Context, filter types.BugFilter) ([]*types.Bug, error) {
	bugs, err := s.store.ListBugs(ctx, filter)
	if err != nil {
		return nil, err
	}
	if bugs == nil {
		bugs = []*types.Bug{}
	}
	return bugs, nil
}

// Events returns the audit trail of a bug, oldest first
func (s *Service) Events(ctx context.Context, id string, limit int) ([]*types.Event, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.store.GetEvents(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*types.Event{}
	}
	return events, nil
}

// record writes an audit event. The bug write already succeeded, so a failed
// event is only logged.
func (s *Service) record(ctx context.Context, event *types.Event) {
	if err := s.store.AddEvent(ctx, event); err != nil {
		s.logger.Warn("failed to record event",
			zap.String("bug_id", event.BugID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

func severityEvent(bugID, actor string, old, updated types.Severity, comment string) *types.Event {
	e := &types.Event{
		BugID:    bugID,
		Type:     types.EventSeverityChanged,
		Actor:    actor,
		OldValue: types.StrPtr(string(old)),
		NewValue: types.StrPtr(string(updated)),
	}
	if comment != "" {
		e.Comment = types.StrPtr(comment)
	}
	return e
}

func actorFor(email string) string {
	if email == "" {
		return anonymous
	}
	return email
}

// IsNotFound reports whether err is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
