package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steveyegge/bugtracker/internal/tracker"
	"github.com/steveyegge/bugtracker/internal/types"
)

// screenshotExts are the accepted upload types
var screenshotExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

type alreadyResolvedResponse struct {
	Message      string               `json:"message"`
	ResolvedInfo tracker.ResolvedInfo `json:"resolvedInfo"`
}

type resolveRequest struct {
	SendMail bool   `json:"sendMail"`
	Actor    string `json:"actor,omitempty"`
}

type resolveResponse struct {
	Message  string     `json:"message"`
	Bug      *types.Bug `json:"bug"`
	Notified bool       `json:"notified"`
}

type severityRequest struct {
	Severity string `json:"severity"`
	Actor    string `json:"actor,omitempty"`
}

// handleReport accepts JSON or multipart/form-data with an optional
// `screenshot` file.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	req, err := s.readReport(r)
	if err != nil {
		s.fail(w, err, "", "failed to save screenshot")
		return
	}
	uploaded := req.Screenshot
	if !isMultipart(r) {
		uploaded = ""
	}

	res, err := s.tracker.Report(r.Context(), req)
	if err != nil {
		if uploaded != "" {
			s.discardUpload(uploaded)
		}
		var resolved *tracker.ResolvedError
		if errors.As(err, &resolved) {
			writeJSON(w, http.StatusBadRequest, alreadyResolvedResponse{
				Message:      resolved.Error(),
				ResolvedInfo: resolved.Info,
			})
			return
		}
		s.fail(w, err, "", "failed to create bug")
		return
	}

	if res.Outcome == tracker.OutcomeCreated {
		writeJSON(w, http.StatusCreated, res.Bug)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: res.Message, Bug: res.Bug})
}

func (s *Server) readReport(r *http.Request) (tracker.ReportRequest, error) {
	var req tracker.ReportRequest
	if !isMultipart(r) {
		err := decodeJSON(r, &req, false)
		return req, err
	}

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, err
		}
		return req, fmt.Errorf("%w: invalid multipart form: %v", errBadRequest, err)
	}
	defer r.MultipartForm.RemoveAll()

	req.Title = r.FormValue("title")
	req.Description = r.FormValue("description")
	req.ReporterEmail = r.FormValue("reporterEmail")
	req.TestURL = r.FormValue("testUrl")

	file, header, err := r.FormFile("screenshot")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return req, fmt.Errorf("%w: invalid screenshot: %v", errBadRequest, err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !screenshotExts[ext] {
		return req, fmt.Errorf("%w: screenshot must be an image (png, jpg, gif or webp)", errBadRequest)
	}
	path, err := s.saveUpload(file, ext)
	if err != nil {
		return req, err
	}
	req.Screenshot = path
	return req, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "multipart/form-data"
}

// discardUpload removes a screenshot saved for a report that was rejected
func (s *Server) discardUpload(public string) {
	name := filepath.Base(strings.TrimPrefix(public, "/uploads/"))
	if err := os.Remove(filepath.Join(s.uploadsDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove rejected upload", zap.String("name", name), zap.Error(err))
	}
}

// saveUpload stores an uploaded screenshot and returns its public path
func (s *Server) saveUpload(src io.Reader, ext string) (string, error) {
	if err := os.MkdirAll(s.uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}
	name := strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + uuid.NewString()[:8] + ext
	dst, err := os.Create(filepath.Join(s.uploadsDir, name))
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	s.logger.Debug("screenshot saved", zap.String("name", name))
	return "/uploads/" + name, nil
}

// handleListBugs supports status, severity, testUrl and category filters
func (s *Server) handleListBugs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter types.BugFilter

	if v := q.Get("status"); v != "" {
		status, err := types.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = &status
	}
	if v := q.Get("severity"); v != "" {
		sev, err := types.ParseSeverity(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Severity = &sev
	}
	if v := q.Get("testUrl"); v != "" {
		filter.TestURL = &v
	}
	if v := q.Get("category"); v != "" {
		filter.Category = &v
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 1000 {
			writeError(w, http.StatusBadRequest, "invalid limit: must be 1-1000")
			return
		}
		filter.Limit = limit
	}

	bugs, err := s.tracker.List(r.Context(), filter)
	if err != nil {
		s.fail(w, err, "", "failed to list bugs")
		return
	}
	writeJSON(w, http.StatusOK, bugs)
}

func (s *Server) handleGetBug(w http.ResponseWriter, r *http.Request) {
	bug, err := s.tracker.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "Bug not found", "failed to get bug")
		return
	}
	writeJSON(w, http.StatusOK, bug)
}

func (s *Server) handleBugEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.tracker.Events(r.Context(), r.PathValue("id"), 0)
	if err != nil {
		s.fail(w, err, "Bug not found", "failed to get events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleSetSeverity(w http.ResponseWriter, r *http.Request) {
	var req severityRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, err, "", "failed to read request")
		return
	}
	sev, err := types.ParseSeverity(req.Severity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bug, err := s.tracker.SetSeverity(r.Context(), r.PathValue("id"), sev, req.Actor)
	if err != nil {
		s.fail(w, err, "Bug not found", "failed to update severity")
		return
	}
	writeJSON(w, http.StatusOK, bug)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.fail(w, err, "", "failed to read request")
		return
	}
	res, err := s.tracker.Resolve(r.Context(), r.PathValue("id"), tracker.ResolveOptions{
		SendMail: req.SendMail,
		Actor:    req.Actor,
	})
	if err != nil {
		s.fail(w, err, "Bug not found", "Failed to resolve bug")
		return
	}
	writeJSON(w, http.StatusOK, resolveResponse{
		Message:  tracker.ResolvedMessage,
		Bug:      res.Bug,
		Notified: res.Notified,
	})
}
