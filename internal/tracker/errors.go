package tracker

import (
	"errors"
	"time"

	"github.com/steveyegge/bugtracker/internal/types"
)

var (
	// ErrNotFound is returned when a bug id does not exist
	ErrNotFound = errors.New("bug not found")

	// ErrInvalid wraps request validation failures
	ErrInvalid = errors.New("invalid request")

	// ErrAlreadyResolved is matched by *ResolvedError via errors.Is
	ErrAlreadyResolved = errors.New("bug already resolved")
)

// AlreadyResolvedMessage is shown to a tester who re-reports a fixed bug
const AlreadyResolvedMessage = "This bug has already been resolved. Please verify the fix before reporting again."

// ResolvedInfo describes the closed bug a report duplicated
type ResolvedInfo struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	ResolvedAt time.Time      `json:"resolvedAt"`
	Severity   types.Severity `json:"severity"`
}

// ResolvedError rejects a report that duplicates a closed bug
type ResolvedError struct {
	Info ResolvedInfo
}

func (e *ResolvedError) Error() string {
	return AlreadyResolvedMessage
}

func (e *ResolvedError) Unwrap() error {
	return ErrAlreadyResolved
}

func newResolvedError(bug *types.Bug) *ResolvedError {
	at := bug.UpdatedAt
	if bug.ClosedAt != nil {
		at = *bug.ClosedAt
	}
	return &ResolvedError{Info: ResolvedInfo{
		ID:         bug.ID,
		Title:      bug.Title,
		ResolvedAt: at,
		Severity:   bug.Severity,
	}}
}
