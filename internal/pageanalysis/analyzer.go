// Package pageanalysis drafts a bug report from a live page: it captures the
// page, asks the AI to name one UI element that looks broken, and returns a
// title, a description and a screenshot the tester can submit.
package pageanalysis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/steveyegge/bugtracker/internal/ai"
)

// FallbackTitle is used when the AI reply is not the JSON we asked for
const FallbackTitle = "Possible Issue Detected"

// maxPageChars bounds how much page text is sent to the model
const maxPageChars = 12000

var (
	// ErrURLRequired is returned for an empty website URL
	ErrURLRequired = errors.New("websiteUrl is required")

	// ErrInvalidURL is returned for URLs that are not absolute http(s)
	ErrInvalidURL = errors.New("websiteUrl must be an absolute http(s) URL")

	// ErrNoAI is returned when no AI provider is configured
	ErrNoAI = errors.New("AI provider not configured")
)

// Result is a drafted report
type Result struct {
	Title            string `json:"aiTitle"`
	Description      string `json:"aiDescription"`
	ScreenshotBase64 string `json:"screenshotBase64,omitempty"`
}

// Screenshot decodes ScreenshotBase64; it is empty when nothing was captured
func (r *Result) Screenshot() ([]byte, error) {
	if r.ScreenshotBase64 == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(r.ScreenshotBase64)
}

type draft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Analyzer drafts reports from pages
type Analyzer struct {
	capturer  Capturer
	completer ai.Completer
	logger    *zap.Logger
}

// NewAnalyzer creates an Analyzer. A nil completer makes every Analyze fail
// with ErrNoAI.
func NewAnalyzer(capturer Capturer, completer ai.Completer, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{capturer: capturer, completer: completer, logger: logger.Named("pageanalysis")}
}

// Analyze captures websiteURL and drafts a report for it
func (a *Analyzer) Analyze(ctx context.Context, websiteURL string) (*Result, error) {
	websiteURL = strings.TrimSpace(websiteURL)
	if websiteURL == "" {
		return nil, ErrURLRequired
	}
	u, err := url.Parse(websiteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, websiteURL)
	}
	if a.completer == nil {
		return nil, ErrNoAI
	}

	page, err := a.capturer.Capture(ctx, websiteURL)
	if err != nil {
		return nil, fmt.Errorf("capture page: %w", err)
	}

	resp, err := a.completer.Complete(ctx, "page_analysis", buildPrompt(page), 1024)
	if err != nil {
		return nil, fmt.Errorf("analyze page: %w", err)
	}

	result := &Result{}
	parsed := ai.Parse[draft](resp, ai.ParseOptions{Context: "page analysis"})
	if parsed.Success && strings.TrimSpace(parsed.Data.Title) != "" {
		result.Title = strings.TrimSpace(parsed.Data.Title)
		result.Description = strings.TrimSpace(parsed.Data.Description)
	} else {
		a.logger.Warn("page analysis reply was not JSON", zap.String("url", websiteURL), zap.String("error", parsed.Error))
		result.Title = FallbackTitle
		result.Description = strings.TrimSpace(resp)
	}
	if len(page.Screenshot) > 0 {
		result.ScreenshotBase64 = base64.StdEncoding.EncodeToString(page.Screenshot)
	}

	a.logger.Info("page analyzed", zap.String("url", websiteURL), zap.String("title", result.Title))
	return result, nil
}

func buildPrompt(page *Page) string {
	text := strings.TrimSpace(page.Text)
	if len(text) > maxPageChars {
		cut := maxPageChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	var sb strings.Builder
	sb.WriteString(`You are an expert UI inspector. Read the website content and find a specific UI element that likely has an issue.

IMPORTANT:
- "title" must ONLY contain the exact UI element name.
- Do NOT write generic titles like "Issue Detected".
- The title should look like a UI label, e.g. "Login Button", "Sidebar Menu", "Checkout Form".
- "description" must contain the bug details and an explanation of the issue.

Return STRICT JSON like:
{
  "title": "UI element name only",
  "description": "detailed explanation of the issue"
}

`)
	fmt.Fprintf(&sb, "Website: %s\n", page.URL)
	if page.Title != "" {
		fmt.Fprintf(&sb, "Page title: %s\n", page.Title)
	}
	sb.WriteString("\nWebsite content:\n")
	sb.WriteString(text)
	sb.WriteString("\n")
	return sb.String()
}
