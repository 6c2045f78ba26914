package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/citevault/citevault/internal/config"
	"github.com/citevault/citevault/internal/core/ingestion_engine"
	"github.com/citevault/citevault/internal/services"
)

// DocumentHandler handles upload, registration and (re-)ingestion of documents.
type DocumentHandler struct {
	registry *services.RegistryService
	engine   *ingestion_engine.JobEngine
	ingestor *ingestion_engine.DocumentIngestor
	cfg      *config.Config
}

func NewDocumentHandler(registry *services.RegistryService, engine *ingestion_engine.JobEngine, ingestor *ingestion_engine.DocumentIngestor, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{registry: registry, engine: engine, ingestor: ingestor, cfg: cfg}
}

// UploadDocument stores the file, registers the document and enqueues the
// first ingestion job.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(52 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	teamID := r.FormValue("team_id")
	projectID := r.FormValue("project_id")
	if teamID == "" || projectID == "" {
		http.Error(w, "team_id and project_id required", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	doc, err := h.registry.UploadAndRegister(r.Context(), teamID, projectID, header.Filename, contentType, file)
	if err != nil {
		writeErr(w, err)
		return
	}

	job, err := h.engine.Enqueue(r.Context(), doc.ID, h.cfg.EmbedModel)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.ingestor.Enqueue(job.ID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"document": doc,
		"job":      job,
	})
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.registry.Get(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		http.Error(w, "project_id required", http.StatusBadRequest)
		return
	}

	docs, err := h.registry.ListByProject(r.Context(), projectID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// ListJobs returns the document's append-only job history, newest first.
func (h *DocumentHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.registry.ListJobs(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// Reingest enqueues a fresh job after a terminal one. An active job yields 409.
func (h *DocumentHandler) Reingest(w http.ResponseWriter, r *http.Request) {
	job, err := h.engine.Retry(r.Context(), chi.URLParam(r, "documentID"), h.cfg.EmbedModel)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.ingestor.Enqueue(job.ID)
	writeJSON(w, http.StatusAccepted, job)
}
