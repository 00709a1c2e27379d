package types

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength caps bug titles, counted in characters
const MaxTitleLength = 500

// ValidateTitle checks that a title is present and within MaxTitleLength
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title is required")
	}
	if n := utf8.RuneCountInString(title); n > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, n)
	}
	return nil
}

// Bug represents a reported defect on a page under test.
//
// JSON field names follow the web client's contract (camelCase, `_id`).
type Bug struct {
	ID          string     `json:"_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Summary     string     `json:"summary,omitempty"`
	Category    string     `json:"category,omitempty"`
	Tags        []string   `json:"tags"`
	Severity    Severity   `json:"severity"`
	Status      Status     `json:"status"`
	Reports     int        `json:"reports"`
	Reporters   []string   `json:"reporters"`
	TestURL     string     `json:"testUrl,omitempty"`
	Screenshot  string     `json:"screenshot,omitempty"`
	Embedding   []float32  `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
}

// Validate checks if the bug has valid field values
func (b *Bug) Validate() error {
	if err := ValidateTitle(b.Title); err != nil {
		return err
	}
	if strings.TrimSpace(b.Description) == "" {
		return fmt.Errorf("description is required")
	}
	if !b.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %q", b.Severity)
	}
	if !b.Status.IsValid() {
		return fmt.Errorf("invalid status: %q", b.Status)
	}
	if b.Reports < 1 {
		return fmt.Errorf("reports must be at least 1 (got %d)", b.Reports)
	}
	if b.Status == StatusClosed && b.ClosedAt == nil {
		return fmt.Errorf("closed bugs must have closed_at set")
	}
	return nil
}

// AddReporter records a reporter e-mail once. Empty addresses are ignored.
// Returns true if the reporter list changed.
func (b *Bug) AddReporter(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, r := range b.Reporters {
		if strings.EqualFold(r, email) {
			return false
		}
	}
	b.Reporters = append(b.Reporters, email)
	return true
}

// IsOpen reports whether the bug still needs attention
func (b *Bug) IsOpen() bool {
	return b.Status == StatusOpen
}

// Severity is the impact tier of a bug. Tiers are ordered Low < Medium < High.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// DefaultSeverity is used whenever no prediction is available
const DefaultSeverity = SeverityMedium

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Rank orders severities; unknown values rank below Low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	}
	return 0
}

// ParseSeverity accepts any casing and surrounding whitespace ("high", " LOW ").
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	}
	return "", fmt.Errorf("unknown severity %q (want Low, Medium or High)", s)
}

// MaxSeverity returns the higher of two severities
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Status represents the current state of a bug
type Status string

const (
	StatusOpen   Status = "Open"
	StatusClosed Status = "Closed"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	return s == StatusOpen || s == StatusClosed
}

// ParseStatus accepts any casing
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return StatusOpen, nil
	case "closed":
		return StatusClosed, nil
	}
	return "", fmt.Errorf("unknown status %q (want Open or Closed)", s)
}

// Developer maps an e-mail identity to the base URLs the developer owns
type Developer struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email"`
	AssignedURLs []string  `json:"assignedUrls"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate checks if the developer has valid field values
func (d *Developer) Validate() error {
	if strings.TrimSpace(d.Email) == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(d.Email); err != nil {
		return fmt.Errorf("invalid email %q: %w", d.Email, err)
	}
	for _, u := range d.AssignedURLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("assigned urls cannot contain empty entries")
		}
	}
	return nil
}

// NormalizeEmail lower-cases and trims an e-mail so lookups are case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Event represents an audit trail entry for a bug
type Event struct {
	ID        int64     `json:"id"`
	BugID     string    `json:"bugId"`
	Type      EventType `json:"type"`
	Actor     string    `json:"actor"`
	OldValue  *string   `json:"oldValue,omitempty"`
	NewValue  *string   `json:"newValue,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventType categorizes audit trail events
type EventType string

const (
	EventCreated         EventType = "created"
	EventReportedAgain   EventType = "reported_again"
	EventSeverityChanged EventType = "severity_changed"
	EventResolved        EventType = "resolved"
	EventNotified        EventType = "notified"
)

// IsValid checks if the event type value is valid
func (e EventType) IsValid() bool {
	switch e {
	case EventCreated, EventReportedAgain, EventSeverityChanged, EventResolved, EventNotified:
		return true
	}
	return false
}

// BugFilter is used to filter bug queries. Zero values match everything.
type BugFilter struct {
	Status   *Status
	Severity *Severity
	TestURL  *string
	Category *string
	Limit    int

	// Oldest returns bugs in insertion order instead of newest first
	Oldest bool
}

// ValidateTestURL checks that a reported page URL is absolute.
// An empty URL is allowed; reports without a page are still accepted.
func ValidateTestURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid test url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("test url %q must be absolute (scheme://host/...)", raw)
	}
	return nil
}

// StrPtr is a small helper for optional event fields
func StrPtr(s string) *string {
	return &s
}
