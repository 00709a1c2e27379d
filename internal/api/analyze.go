package api

import (
	"net/http"

	"go.uber.org/zap"
)

type analyzeRequest struct {
	WebsiteURL string `json:"websiteUrl"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.fail(w, err, "", "failed to read request")
		return
	}
	res, err := s.analyzer.Analyze(r.Context(), req.WebsiteURL)
	if err != nil {
		if status := statusFor(err); status < http.StatusInternalServerError {
			writeError(w, status, err.Error())
			return
		}
		s.logger.Warn("page analysis failed", zap.String("url", req.WebsiteURL), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "AI analysis failed",
			Details: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
