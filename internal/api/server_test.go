package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/steveyegge/bugtracker/internal/ai"
	"github.com/steveyegge/bugtracker/internal/deduplication"
	"github.com/steveyegge/bugtracker/internal/developers"
	"github.com/steveyegge/bugtracker/internal/enrich"
	"github.com/steveyegge/bugtracker/internal/metrics"
	"github.com/steveyegge/bugtracker/internal/notify"
	"github.com/steveyegge/bugtracker/internal/pageanalysis"
	"github.com/steveyegge/bugtracker/internal/storage"
	"github.com/steveyegge/bugtracker/internal/tracker"
	"github.com/steveyegge/bugtracker/internal/types"
)

type fakeNotifier struct {
	notices []notify.ResolutionNotice
}

func (f *fakeNotifier) NotifyResolved(ctx context.Context, n notify.ResolutionNotice) error {
	f.notices = append(f.notices, n)
	return nil
}

type fakeCapturer struct{ err error }

func (f fakeCapturer) Capture(ctx context.Context, url string) (*pageanalysis.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &pageanalysis.Page{URL: url, Text: "Login", Screenshot: []byte("png")}, nil
}

type fakeCompleter struct{ reply string }

func (f fakeCompleter) Complete(ctx context.Context, op, prompt string, maxTokens int) (string, error) {
	return f.reply, nil
}

type fakeAI struct {
	state ai.CircuitState
	err   error
}

func (f fakeAI) Model() string                         { return "fake-model" }
func (f fakeAI) CircuitState() ai.CircuitState         { return f.state }
func (f fakeAI) HealthCheck(ctx context.Context) error { return f.err }

type harness struct {
	srv      *Server
	handler  http.Handler
	store    storage.Storage
	metrics  *metrics.Metrics
	notifier *fakeNotifier
}

type harnessOpts struct {
	capturer pageanalysis.Capturer
	aiStatus AIStatus
	maxBody  int64
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	logger := zaptest.NewLogger(t)

	store, err := storage.NewStorage(ctx, &storage.Config{Backend: "sqlite", Path: filepath.Join(dir, "bugs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	detector, err := deduplication.NewDetector(store, deduplication.DefaultConfig(), logger)
	require.NoError(t, err)
	n := &fakeNotifier{}
	trk, err := tracker.New(tracker.Config{
		Store:    store,
		Enricher: enrich.New(nil, enrich.Options{Metrics: m}),
		Detector: detector,
		Notifier: n,
		Metrics:  m,
		Logger:   logger,
	})
	require.NoError(t, err)

	capturer := opts.capturer
	if capturer == nil {
		capturer = fakeCapturer{}
	}
	analyzer := pageanalysis.NewAnalyzer(capturer,
		fakeCompleter{reply: `{"title": "Login Button", "description": "Does nothing on click."}`}, logger)

	srv, err := New(Config{
		Tracker:      trk,
		Developers:   developers.New(store, logger),
		Analyzer:     analyzer,
		Store:        store,
		AI:           opts.aiStatus,
		Metrics:      m,
		Logger:       logger,
		UploadsDir:   filepath.Join(dir, "uploads"),
		MaxBodyBytes: opts.maxBody,
	})
	require.NoError(t, err)
	return &harness{srv: srv, handler: srv.Handler(), store: store, metrics: m, notifier: n}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func report(title string) map[string]string {
	return map[string]string{
		"title":         title,
		"description":   "steps for " + title,
		"reporterEmail": "qa@example.com",
		"testUrl":       "https://app.example.com/login",
	}
}

func TestRootAndHealth(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	rec := h.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "running")

	rec = h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	health := decode[healthResponse](t, rec)
	assert.Equal(t, healthResponse{Status: "ok", Storage: "ok", AI: "disabled"}, health)

	h = newHarness(t, harnessOpts{aiStatus: fakeAI{}})
	health = decode[healthResponse](t, h.do(t, http.MethodGet, "/healthz", nil))
	assert.Equal(t, healthResponse{Status: "ok", Storage: "ok", AI: "CLOSED", Model: "fake-model"}, health)

	h = newHarness(t, harnessOpts{aiStatus: fakeAI{state: ai.CircuitOpen, err: ai.ErrCircuitOpen}})
	rec = h.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "an open breaker degrades but does not fail")
	health = decode[healthResponse](t, rec)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "OPEN", health.AI)
	assert.Equal(t, ai.ErrCircuitOpen.Error(), health.AIError)
}

func TestReportLifecycle(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	rec := h.do(t, http.MethodPost, "/api/bugs", report("Login Button"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	id, _ := created["_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "Medium", created["severity"])
	assert.Equal(t, "Open", created["status"])
	assert.NotContains(t, created, "embedding")

	rec = h.do(t, http.MethodPost, "/api/bugs", report("login button"))
	require.Equal(t, http.StatusOK, rec.Code)
	merged := decode[struct {
		Message string    `json:"message"`
		Bug     types.Bug `json:"bug"`
	}](t, rec)
	assert.Equal(t, tracker.MergedCategoryMessage, merged.Message)
	assert.Equal(t, id, merged.Bug.ID)
	assert.Equal(t, 2, merged.Bug.Reports)

	rec = h.do(t, http.MethodGet, "/api/bugs/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[types.Bug](t, rec).Reports)

	rec = h.do(t, http.MethodPatch, "/api/bugs/"+id+"/severity", map[string]string{"severity": "high"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, types.SeverityHigh, decode[types.Bug](t, rec).Severity)

	rec = h.do(t, http.MethodPut, "/api/bugs/"+id+"/resolve", map[string]bool{"sendMail": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decode[resolveResponse](t, rec)
	assert.Equal(t, "Bug marked as resolved", resolved.Message)
	assert.True(t, resolved.Notified)
	assert.Equal(t, types.StatusClosed, resolved.Bug.Status)
	require.Len(t, h.notifier.notices, 1)

	rec = h.do(t, http.MethodPost, "/api/bugs", report("Login Button"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	rejected := decode[alreadyResolvedResponse](t, rec)
	assert.Equal(t, tracker.AlreadyResolvedMessage, rejected.Message)
	assert.Equal(t, id, rejected.ResolvedInfo.ID)
	assert.Equal(t, types.SeverityHigh, rejected.ResolvedInfo.Severity)

	rec = h.do(t, http.MethodGet, "/api/bugs/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decode[[]types.Event](t, rec)
	var kinds []types.EventType
	for _, e := range events {
		kinds = append(kinds, e.Type)
	}
	assert.Equal(t, []types.EventType{
		types.EventCreated, types.EventReportedAgain, types.EventSeverityChanged,
		types.EventResolved, types.EventNotified,
	}, kinds)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.HTTPRequests.WithLabelValues("POST /api/bugs", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.HTTPRequests.WithLabelValues("POST /api/bugs", "400")))
}

func TestReportValidationErrors(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing title", `{"description": "x"}`, "title is required"},
		{"bad url", `{"title": "x", "description": "y", "testUrl": "checkout"}`, "must be absolute"},
		{"long title", `{"title": "` + strings.Repeat("x", types.MaxTitleLength+1) + `", "description": "y"}`, "500 characters or less"},
		{"long multibyte title", `{"title": "` + strings.Repeat("漢", types.MaxTitleLength+1) + `", "description": "y"}`, "500 characters or less"},
		{"bad json", `{"title":`, "invalid JSON"},
		{"empty body", ``, "request body is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/bugs", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[errorResponse](t, rec).Error, tt.want)
		})
	}
}

func multipartReport(t *testing.T, fields map[string]string, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("screenshot", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/bugs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestMultipartScreenshotUpload(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, multipartReport(t, report("Logo"), "shot.PNG", []byte("fake png bytes")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	bug := decode[types.Bug](t, rec)
	require.True(t, strings.HasPrefix(bug.Screenshot, "/uploads/"), bug.Screenshot)
	assert.True(t, strings.HasSuffix(bug.Screenshot, ".png"))

	rec = h.do(t, http.MethodGet, bug.Screenshot, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fake png bytes", rec.Body.String())

	rec = h.do(t, http.MethodGet, "/uploads/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no directory listing")

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, multipartReport(t, report("Logo"), "payload.exe", []byte("MZ")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func uploadedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRejectedReportRemovesScreenshot(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	invalid := report("Logo")
	invalid["title"] = ""
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, multipartReport(t, invalid, "shot.png", []byte("png")))
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Empty(t, uploadedFiles(t, h.srv.uploadsDir))

	// Re-reporting a resolved bug is rejected too
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, multipartReport(t, report("Logo"), "shot.png", []byte("png")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bug := decode[types.Bug](t, rec)
	require.Len(t, uploadedFiles(t, h.srv.uploadsDir), 1)

	rec = h.do(t, http.MethodPut, "/api/bugs/"+bug.ID+"/resolve", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, multipartReport(t, report("Logo"), "again.png", []byte("png")))
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "resolvedInfo")
	assert.Equal(t, []string{filepath.Base(bug.Screenshot)}, uploadedFiles(t, h.srv.uploadsDir))
}

func TestBodyLimit(t *testing.T) {
	h := newHarness(t, harnessOpts{maxBody: 64})
	body := report(strings.Repeat("x", 200))
	rec := h.do(t, http.MethodPost, "/api/bugs", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestListBugsFilters(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/bugs", report("Login Button")).Code)
	other := report("Footer links")
	other["testUrl"] = "https://other.example.com/"
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/bugs", other).Code)

	rec := h.do(t, http.MethodGet, "/api/bugs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]types.Bug](t, rec), 2)

	rec = h.do(t, http.MethodGet, "/api/bugs?testUrl=https://other.example.com/&status=open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bugs := decode[[]types.Bug](t, rec)
	require.Len(t, bugs, 1)
	assert.Equal(t, "Footer links", bugs[0].Title)

	rec = h.do(t, http.MethodGet, "/api/bugs?severity=critical", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/bugs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/bugs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Bug not found", decode[errorResponse](t, rec).Error)

	rec = h.do(t, http.MethodPut, "/api/bugs/nope/resolve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDevelopers(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/bugs", report("Login Button")).Code)

	rec := h.do(t, http.MethodGet, "/api/developers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/developers", map[string]any{
		"name":         "Ada",
		"email":        "Ada@Example.com",
		"assignedUrls": []string{"https://app.example.com"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dev := decode[types.Developer](t, rec)
	assert.Equal(t, "ada@example.com", dev.Email)

	rec = h.do(t, http.MethodGet, "/api/developers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]types.Developer](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, dev.ID, listed[0].ID)

	rec = h.do(t, http.MethodPost, "/api/developers", map[string]any{"email": "ada@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/developers", map[string]any{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/developers/email/ADA@example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dev.ID, decode[types.Developer](t, rec).ID)

	rec = h.do(t, http.MethodGet, "/api/developers/email/ghost@example.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Developer not found", decode[errorResponse](t, rec).Error)

	rec = h.do(t, http.MethodGet, "/api/developers/"+dev.ID+"/bugs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bugs := decode[[]types.Bug](t, rec)
	require.Len(t, bugs, 1)
	assert.Equal(t, "Login Button", bugs[0].Title)

	rec = h.do(t, http.MethodGet, "/api/developers/missing/bugs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/developers/"+dev.ID+"/other", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyze(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	rec := h.do(t, http.MethodPost, "/api/ai/analyze", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "websiteUrl is required", decode[errorResponse](t, rec).Error)

	rec = h.do(t, http.MethodPost, "/api/ai/analyze", map[string]string{"websiteUrl": "https://app.example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[map[string]string](t, rec)
	assert.Equal(t, "Login Button", res["aiTitle"])
	assert.Equal(t, "Does nothing on click.", res["aiDescription"])
	assert.NotEmpty(t, res["screenshotBase64"])

	h = newHarness(t, harnessOpts{capturer: fakeCapturer{err: errors.New("chrome not found")}})
	rec = h.do(t, http.MethodPost, "/api/ai/analyze", map[string]string{"websiteUrl": "https://app.example.com"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	failed := decode[errorResponse](t, rec)
	assert.Equal(t, "AI analysis failed", failed.Error)
	assert.Contains(t, failed.Details, "chrome not found")
}

func TestCORSAndMetrics(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	rec := h.do(t, http.MethodOptions, "/api/bugs", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = h.do(t, http.MethodGet, "/api/bugs", nil)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{code="200",route="GET /api/bugs"} 1`)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
