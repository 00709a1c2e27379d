// Package notify hands resolution notices to whatever delivers them to
// testers. The backend never speaks SMTP itself: notices are published on a
// NATS subject for a mailer to pick up, or logged when no bus is configured.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/steveyegge/bugtracker/internal/types"
)

// DefaultSubject is the NATS subject resolution notices are published on
const DefaultSubject = "bugs.resolved"

// ResolutionNotice tells the reporters of a bug that it was fixed
type ResolutionNotice struct {
	BugID   string    `json:"bugId"`
	To      []string  `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sentAt"`
}

// Notifier delivers resolution notices
type Notifier interface {
	NotifyResolved(ctx context.Context, notice ResolutionNotice) error
}

// NewResolutionNotice builds the notice for a closed bug, addressed to every
// reporter.
func NewResolutionNotice(bug *types.Bug) ResolutionNotice {
	testURL := bug.TestURL
	if testURL == "" {
		testURL = "N/A"
	}

	var b strings.Builder
	b.WriteString("Hello Tester,\n\n")
	b.WriteString("The bug you reported has been marked as resolved:\n")
	fmt.Fprintf(&b, "Title: %s\n", bug.Title)
	fmt.Fprintf(&b, "URL: %s\n", testURL)
	fmt.Fprintf(&b, "Severity: %s\n\n", bug.Severity)
	b.WriteString("Description:\n")
	b.WriteString(bug.Description)
	b.WriteString("\n\nThank you for helping improve the system!\n\n- Bug Tracker\n")

	return ResolutionNotice{
		BugID:   bug.ID,
		To:      append([]string(nil), bug.Reporters...),
		Subject: "Bug Resolved: " + bug.Title,
		Body:    b.String(),
	}
}

// publisher is the part of *nats.Conn the notifier uses
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSNotifier publishes notices as JSON on a NATS subject
type NATSNotifier struct {
	conn    publisher
	close   func()
	subject string
	logger  *zap.Logger
}

// DialNATS connects to url and returns a notifier publishing on subject
// (DefaultSubject when empty). Close releases the connection.
func DialNATS(url, subject string, logger *zap.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url, nats.Name("bugtracker"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	n := newNATSNotifier(conn, subject, logger)
	n.close = conn.Close
	return n, nil
}

func newNATSNotifier(conn publisher, subject string, logger *zap.Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSNotifier{conn: conn, subject: subject, logger: logger.Named("notify")}
}

// Subject returns the subject notices are published on
func (n *NATSNotifier) Subject() string {
	return n.subject
}

// NotifyResolved publishes the notice and waits for the server to
// acknowledge it, bounded by ctx.
func (n *NATSNotifier) NotifyResolved(ctx context.Context, notice ResolutionNotice) error {
	if notice.SentAt.IsZero() {
		notice.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to encode notice: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", n.subject, err)
	}
	n.logger.Info("resolution notice published",
		zap.String("bug_id", notice.BugID),
		zap.Int("recipients", len(notice.To)))
	return nil
}

// Close closes the underlying connection
func (n *NATSNotifier) Close() {
	if n.close != nil {
		n.close()
	}
}

// LogNotifier writes notices to the structured log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

// NotifyResolved logs the notice and never fails
func (l *LogNotifier) NotifyResolved(ctx context.Context, notice ResolutionNotice) error {
	l.logger.Info("resolution notice",
		zap.String("bug_id", notice.BugID),
		zap.Strings("to", notice.To),
		zap.String("subject", notice.Subject),
		zap.String("body", notice.Body))
	return nil
}
