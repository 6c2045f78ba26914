package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/citevault/citevault/internal/services"
)

// TeamHandler exposes the tenancy ledger to the control plane.
type TeamHandler struct {
	tenancy *services.TenancyService
}

func NewTeamHandler(tenancy *services.TenancyService) *TeamHandler {
	return &TeamHandler{tenancy: tenancy}
}

type nameRequest struct {
	Name string `json:"name"`
}

func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	team, err := h.tenancy.CreateTeam(r.Context(), req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	team, err := h.tenancy.GetTeam(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	project, err := h.tenancy.CreateProject(r.Context(), chi.URLParam(r, "teamID"), req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// IssueAPIKey returns the raw secret exactly once; only its hash survives.
func (h *TeamHandler) IssueAPIKey(w http.ResponseWriter, r *http.Request) {
	raw, key, err := h.tenancy.IssueAPIKey(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"api_key": key,
		"secret":  raw,
	})
}

func (h *TeamHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	if err := h.tenancy.RevokeAPIKey(r.Context(), chi.URLParam(r, "keyID")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
