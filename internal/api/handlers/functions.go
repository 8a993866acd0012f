package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/feirinha/checkin-module/internal/api/errors"
)

// ListSectors handles GET /functions.
func (h *APIHandler) ListSectors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Sectors())
}

// ListRoles handles GET /functions/{sector}.
func (h *APIHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, ok := h.registry.Roles(chi.URLParam(r, "sector"))
	if !ok {
		apierrors.NotFound(w, msgSectorNotFound)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}
