package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/luxbind/wiz-core/internal/flow"
	"github.com/luxbind/wiz-core/internal/homeconfig"
)

// importHomeConfigRequest is the request body for POST /home-config/import.
type importHomeConfigRequest struct {
	Link string `json:"link"`
}

// handleGetHomeConfig returns the stored home configuration, if any.
func (s *Server) handleGetHomeConfig(w http.ResponseWriter, r *http.Request) {
	stored, err := s.home.Load(r.Context())
	if err != nil {
		if errors.Is(err, homeconfig.ErrNoConfig) {
			writeJSON(w, http.StatusOK, map[string]any{"configured": false})
			return
		}
		s.logger.Error("failed to load home config", "error", err)
		writeInternalError(w, "failed to load home config")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"configured": true,
		"source":     stored.Source,
		"fetched_at": stored.FetchedAt,
		"config":     stored.Config,
	})
}

// handleImportHomeConfig downloads a home document from the given link,
// stores it, and renames existing entries to match.
func (s *Server) handleImportHomeConfig(w http.ResponseWriter, r *http.Request) {
	var req importHomeConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Link == "" {
		writeBadRequest(w, "link is required")
		return
	}

	if err := s.flows.ImportHomeConfig(r.Context(), req.Link); err != nil {
		switch {
		case errors.Is(err, flow.ErrLinkNotAllowed):
			writeBadRequest(w, "link is not an allowed home-config source")
		case errors.Is(err, homeconfig.ErrFetchFailed):
			writeError(w, http.StatusBadGateway, "fetch_failed", "failed to download home config")
		case errors.Is(err, homeconfig.ErrInvalidDocument):
			writeBadRequest(w, "home config document is invalid")
		default:
			s.logger.Error("home config import failed", "error", err)
			writeInternalError(w, "failed to import home config")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"imported": true})
}

// handleClearHomeConfig removes the stored home configuration.
func (s *Server) handleClearHomeConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.ClearHomeConfig(r.Context()); err != nil {
		s.logger.Error("failed to clear home config", "error", err)
		writeInternalError(w, "failed to clear home config")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
