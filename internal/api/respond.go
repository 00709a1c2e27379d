package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/steveyegge/bugtracker/internal/developers"
	"github.com/steveyegge/bugtracker/internal/pageanalysis"
	"github.com/steveyegge/bugtracker/internal/tracker"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
	Bug     any    `json:"bug,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case tracker.IsNotFound(err), errors.Is(err, developers.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracker.ErrInvalid),
		errors.Is(err, tracker.ErrAlreadyResolved),
		errors.Is(err, developers.ErrInvalid),
		errors.Is(err, developers.ErrDuplicate),
		errors.Is(err, pageanalysis.ErrURLRequired),
		errors.Is(err, pageanalysis.ErrInvalidURL),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. notFound replaces the message on
// 404s; server errors are logged and hidden behind internal.
func (s *Server) fail(w http.ResponseWriter, err error, notFound, internal string) {
	status := statusFor(err)
	switch {
	case status == http.StatusNotFound && notFound != "":
		writeError(w, status, notFound)
	case status >= http.StatusInternalServerError:
		s.logger.Error(internal, zap.Error(err))
		writeError(w, status, internal)
	default:
		writeError(w, status, err.Error())
	}
}

var errBadRequest = errors.New("bad request")

// decodeJSON reads a JSON body into v. An empty body leaves v untouched when
// allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	if errors.Is(err, io.EOF) {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: request body is required", errBadRequest)
	}
	return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
}
