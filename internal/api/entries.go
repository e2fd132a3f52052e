package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/luxbind/wiz-core/internal/identity"
)

// handleListEntries returns all committed binding entries.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.entries.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list binding entries", "error", err)
		writeInternalError(w, "failed to list entries")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleDeleteEntry removes a binding entry by its unique ID (MAC address).
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.entries.Remove(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidMAC):
			writeBadRequest(w, "invalid MAC address")
		case errors.Is(err, identity.ErrEntryNotFound):
			writeNotFound(w, "entry not found")
		default:
			s.logger.Error("failed to delete binding entry", "id", id, "error", err)
			writeInternalError(w, "failed to delete entry")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
