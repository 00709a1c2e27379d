package pageanalysis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// DefaultNavigationTimeout bounds a page load
const DefaultNavigationTimeout = 30 * time.Second

// Page is a captured web page
type Page struct {
	URL        string
	Title      string
	Text       string
	Screenshot []byte // PNG; nil when the capturer cannot render
}

// Capturer loads a page and extracts its visible text
type Capturer interface {
	Capture(ctx context.Context, url string) (*Page, error)
}

// RodCapturer renders pages in headless Chrome. Each capture launches its own
// browser and tears it down afterwards.
type RodCapturer struct {
	bin     string
	timeout time.Duration
	logger  *zap.Logger
}

// NewRodCapturer creates a capturer. bin may be empty to let rod find or
// download a browser.
func NewRodCapturer(bin string, timeout time.Duration, logger *zap.Logger) *RodCapturer {
	if timeout <= 0 {
		timeout = DefaultNavigationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodCapturer{bin: bin, timeout: timeout, logger: logger.Named("rod")}
}

// Capture navigates to url, waits for load, then grabs body text and a PNG
// screenshot of the viewport.
func (c *RodCapturer) Capture(ctx context.Context, url string) (*Page, error) {
	l := launcher.New().Headless(true).NoSandbox(true)
	if c.bin != "" {
		l = l.Bin(c.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	defer l.Cleanup()
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			c.logger.Debug("browser close failed", zap.Error(err))
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	page = page.Timeout(c.timeout)

	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait for %s: %w", url, err)
	}

	text, err := page.Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return nil, fmt.Errorf("read page text: %w", err)
	}
	title, err := page.Eval(`() => document.title`)
	if err != nil {
		return nil, fmt.Errorf("read page title: %w", err)
	}
	shot, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}

	c.logger.Debug("page captured", zap.String("url", url), zap.Int("screenshot_bytes", len(shot)))
	return &Page{
		URL:        url,
		Title:      title.Value.Str(),
		Text:       text.Value.Str(),
		Screenshot: shot,
	}, nil
}

// HTTPCapturer fetches pages without a browser and converts the HTML to
// markdown text. It produces no screenshot.
type HTTPCapturer struct {
	client    *http.Client
	converter *md.Converter
	maxBytes  int64
}

// NewHTTPCapturer creates a capturer with the given request timeout
func NewHTTPCapturer(timeout time.Duration) *HTTPCapturer {
	if timeout <= 0 {
		timeout = DefaultNavigationTimeout
	}
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &HTTPCapturer{
		client:    &http.Client{Timeout: timeout},
		converter: converter,
		maxBytes:  5 << 20,
	}
}

// Capture fetches url and returns its title and body as markdown
func (c *HTTPCapturer) Capture(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "bugtracker-page-analysis/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	title := findTitle(doc)
	stripElements(doc, "script", "style", "noscript", "template")

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	text, err := c.converter.ConvertString(sb.String())
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}

	return &Page{URL: url, Title: title, Text: strings.TrimSpace(text)}, nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func stripElements(n *html.Node, tags ...string) {
	drop := make(map[string]bool, len(tags))
	for _, t := range tags {
		drop[t] = true
	}
	var remove []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && drop[node.Data] {
			remove = append(remove, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	for _, node := range remove {
		node.Parent.RemoveChild(node)
	}
}
