package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/citevault/citevault/internal/api/middlewares"
	"github.com/citevault/citevault/internal/config"
	"github.com/citevault/citevault/internal/core"
	"github.com/citevault/citevault/internal/models"
	"github.com/citevault/citevault/internal/services"
)

// QueryHandler answers retrieval-augmented questions on the data plane and
// records the evidence trail for each answer.
type QueryHandler struct {
	dbclient core.DbClient
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	audit    *services.AuditService
	cfg      *config.Config
}

func NewQueryHandler(dbclient core.DbClient, emb core.EmbeddingProvider, llm core.LLMProvider, audit *services.AuditService, cfg *config.Config) *QueryHandler {
	return &QueryHandler{dbclient: dbclient, embedder: emb, llm: llm, audit: audit, cfg: cfg}
}

type queryRequest struct {
	ProjectID string `json:"project_id"`
	Question  string `json:"question"`
	TopK      int    `json:"top_k"`
	UseRAG    *bool  `json:"use_rag"`
}

type citationResponse struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	Preview    string  `json:"preview"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, ok := middleware.APIKeyFrom(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question required", http.StatusBadRequest)
		return
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}
	useRAG := req.UseRAG == nil || *req.UseRAG

	// The project must belong to the key's team; a foreign project is
	// indistinguishable from a missing one.
	project, err := h.dbclient.GetProjectByID(ctx, req.ProjectID)
	if err != nil || project.TeamID != key.TeamID {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}

	start := time.Now()

	var retrieved []models.ScoredChunk
	if useRAG {
		vecs, err := h.embedder.EmbedTexts(ctx, []string{req.Question})
		if err != nil || len(vecs) == 0 {
			writeErr(w, fmt.Errorf("%w: embed question: %v", models.ErrTransientDependency, err))
			return
		}
		retrieved, err = h.dbclient.SearchChunks(ctx, req.ProjectID, vecs[0], req.TopK)
		if err != nil {
			writeErr(w, fmt.Errorf("search failed: %w", err))
			return
		}
	}

	answer, err := h.generate(ctx, req.Question, retrieved)
	if err != nil {
		writeErr(w, fmt.Errorf("%w: generate: %v", models.ErrTransientDependency, err))
		return
	}

	latency := int(time.Since(start).Milliseconds())
	citations := make([]citationResponse, len(retrieved))
	refs := make([]models.QueryCitation, len(retrieved))
	for i, sc := range retrieved {
		citations[i] = citationResponse{
			ChunkID:    sc.ID,
			DocumentID: sc.DocumentID,
			ChunkIndex: sc.ChunkIndex,
			Rank:       i + 1,
			Score:      sc.Score,
			Preview:    preview(sc.Content, 240),
		}
		refs[i] = models.QueryCitation{ChunkID: sc.ID, Rank: i + 1, Score: sc.Score}
	}

	// Audit writes are evidence, not gating: failures are logged and the
	// answer goes out regardless.
	h.recordAudit(r, key, req, useRAG, answer, latency, refs)

	writeJSON(w, http.StatusOK, map[string]any{
		"answer":    answer.Text,
		"used_rag":  useRAG,
		"citations": citations,
	})
}

func (h *QueryHandler) generate(ctx context.Context, question string, retrieved []models.ScoredChunk) (*core.GenerateResult, error) {
	if len(retrieved) == 0 {
		return h.llm.Generate(ctx, "You are a helpful assistant.", question)
	}

	var sb strings.Builder
	for _, sc := range retrieved {
		sb.WriteString(sc.Content)
		sb.WriteString("\n---\n")
	}
	systemPrompt := "You are an assistant answering based only on the given document content. If unsure, say 'I cannot find this in the documents.'"
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", sb.String(), question)
	return h.llm.Generate(ctx, systemPrompt, userPrompt)
}

func (h *QueryHandler) recordAudit(r *http.Request, key *models.APIKey, req queryRequest, usedRAG bool, answer *core.GenerateResult, latencyMs int, refs []models.QueryCitation) {
	ctx := r.Context()

	keyID := key.ID
	qlog, err := h.audit.RecordQuery(ctx, services.QueryRecord{
		TeamID:           key.TeamID,
		ProjectID:        req.ProjectID,
		APIKeyID:         &keyID,
		Question:         req.Question,
		UsedRAG:          usedRAG,
		TopK:             req.TopK,
		Model:            h.cfg.GenModel,
		LatencyMs:        latencyMs,
		PromptTokens:     answer.PromptTokens,
		CompletionTokens: answer.CompletionTokens,
	})
	if err != nil {
		log.Printf("QueryHandler: audit query log failed: %v", err)
		return
	}

	if len(refs) == 0 {
		return
	}
	if err := h.audit.RecordCitations(ctx, qlog.ID, refs); err != nil {
		// The query log stands with zero citations.
		log.Printf("QueryHandler: audit citations failed for query %s: %v", qlog.ID, err)
	}
}

// GetCitations resolves a query's recorded citations, surviving re-ingestion.
func (h *QueryHandler) GetCitations(w http.ResponseWriter, r *http.Request) {
	resolved, err := h.audit.ResolveCitations(r.Context(), chi.URLParam(r, "queryID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
