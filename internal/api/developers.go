package api

import (
	"net/http"

	"github.com/steveyegge/bugtracker/internal/types"
)

type createDeveloperRequest struct {
	Name         string   `json:"name"`
	Email        string   `json:"email"`
	AssignedURLs []string `json:"assignedUrls"`
}

func (s *Server) handleCreateDeveloper(w http.ResponseWriter, r *http.Request) {
	var req createDeveloperRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, err, "", "failed to read request")
		return
	}
	dev, err := s.developers.Create(r.Context(), types.Developer{
		Name:         req.Name,
		Email:        req.Email,
		AssignedURLs: req.AssignedURLs,
	})
	if err != nil {
		s.fail(w, err, "", "failed to create developer")
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

func (s *Server) handleListDevelopers(w http.ResponseWriter, r *http.Request) {
	devs, err := s.developers.List(r.Context())
	if err != nil {
		s.fail(w, err, "", "failed to list developers")
		return
	}
	writeJSON(w, http.StatusOK, devs)
}

// handleDeveloperLookup serves GET /api/developers/email/{email} and
// GET /api/developers/{id}/bugs.
func (s *Server) handleDeveloperLookup(w http.ResponseWriter, r *http.Request) {
	first, second := r.PathValue("first"), r.PathValue("second")
	switch {
	case first == "email":
		dev, err := s.developers.GetByEmail(r.Context(), second)
		if err != nil {
			s.fail(w, err, "Developer not found", "failed to get developer")
			return
		}
		writeJSON(w, http.StatusOK, dev)
	case second == "bugs":
		bugs, err := s.developers.BugsFor(r.Context(), first)
		if err != nil {
			s.fail(w, err, "Developer not found", "failed to get developer bugs")
			return
		}
		writeJSON(w, http.StatusOK, bugs)
	default:
		http.NotFound(w, r)
	}
}
