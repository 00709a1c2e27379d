package types

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBug() Bug {
	now := time.Now()
	return Bug{
		ID:          "b-1",
		Title:       "Login Button",
		Description: "Clicking login does nothing",
		Severity:    SeverityMedium,
		Status:      StatusOpen,
		Reports:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestBugValidate(t *testing.T) {
	closedAt := time.Now()
	tests := []struct {
		name     string
		mutate   func(b *Bug)
		errorMsg string
	}{
		{name: "valid", mutate: func(b *Bug) {}},
		{name: "missing title", mutate: func(b *Bug) { b.Title = "  " }, errorMsg: "title is required"},
		{name: "long title", mutate: func(b *Bug) { b.Title = strings.Repeat("x", 501) }, errorMsg: "500 characters or less (got 501)"},
		{name: "title at limit", mutate: func(b *Bug) { b.Title = strings.Repeat("x", MaxTitleLength) }},
		{name: "multibyte title counts characters", mutate: func(b *Bug) { b.Title = strings.Repeat("漢", 200) }},
		{name: "long multibyte title", mutate: func(b *Bug) { b.Title = strings.Repeat("漢", 501) }, errorMsg: "(got 501)"},
		{name: "missing description", mutate: func(b *Bug) { b.Description = "" }, errorMsg: "description is required"},
		{name: "bad severity", mutate: func(b *Bug) { b.Severity = "Critical" }, errorMsg: "invalid severity"},
		{name: "bad status", mutate: func(b *Bug) { b.Status = "In Progress" }, errorMsg: "invalid status"},
		{name: "zero reports", mutate: func(b *Bug) { b.Reports = 0 }, errorMsg: "reports must be at least 1"},
		{name: "closed without timestamp", mutate: func(b *Bug) { b.Status = StatusClosed }, errorMsg: "closed_at"},
		{name: "closed with timestamp", mutate: func(b *Bug) {
			b.Status = StatusClosed
			b.ClosedAt = &closedAt
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBug()
			tt.mutate(&b)
			err := b.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestAddReporter(t *testing.T) {
	b := validBug()

	assert.True(t, b.AddReporter("a@example.com"))
	assert.False(t, b.AddReporter("A@Example.com"), "reporters are unique regardless of case")
	assert.False(t, b.AddReporter("   "), "blank reporters are ignored")
	assert.True(t, b.AddReporter("b@example.com"))

	assert.Equal(t, []string{"a@example.com", "b@example.com"}, b.Reporters)
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"low", SeverityLow, false},
		{" Medium ", SeverityMedium, false},
		{"HIGH", SeverityHigh, false},
		{"critical", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeverity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, SeverityHigh, MaxSeverity(SeverityLow, SeverityHigh))
	assert.Equal(t, SeverityHigh, MaxSeverity(SeverityHigh, SeverityMedium))
	assert.Equal(t, SeverityMedium, MaxSeverity(SeverityMedium, SeverityMedium))
	assert.Equal(t, SeverityLow, MaxSeverity(SeverityLow, "bogus"))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("closed")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, s)

	_, err = ParseStatus("In Progress")
	assert.Error(t, err)
}

func TestDeveloperValidate(t *testing.T) {
	d := Developer{Email: "dev@example.com", AssignedURLs: []string{"https://app.example.com"}}
	assert.NoError(t, d.Validate())

	d.Email = "not-an-email"
	assert.Error(t, d.Validate())

	d.Email = ""
	assert.ErrorContains(t, d.Validate(), "email is required")

	d = Developer{Email: "dev@example.com", AssignedURLs: []string{""}}
	assert.ErrorContains(t, d.Validate(), "empty entries")
}

func TestValidateTestURL(t *testing.T) {
	assert.NoError(t, ValidateTestURL(""))
	assert.NoError(t, ValidateTestURL("https://shop.example.com/checkout"))
	assert.Error(t, ValidateTestURL("shop.example.com/checkout"))
	assert.Error(t, ValidateTestURL("://bad"))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "dev@example.com", NormalizeEmail("  Dev@Example.COM "))
}
