package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/citevault/citevault/internal/core"
	"github.com/citevault/citevault/internal/models"
)

// ChunkHandler exposes read access to a document's current chunk generation.
type ChunkHandler struct {
	dbclient core.DbClient
}

func NewChunkHandler(dbclient core.DbClient) *ChunkHandler {
	return &ChunkHandler{dbclient: dbclient}
}

type chunkResponse struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Generation int    `json:"generation"`
	ChunkIndex int    `json:"chunk_index"`
	Preview    string `json:"preview"`
	CharStart  *int   `json:"char_start,omitempty"`
	CharEnd    *int   `json:"char_end,omitempty"`
	TokenCount int    `json:"token_count"`
}

// ListCurrent returns the current generation in index order; empty when the
// document has never completed a successful ingestion.
func (h *ChunkHandler) ListCurrent(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.dbclient.ListCurrentChunks(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		writeErr(w, err)
		return
	}

	out := make([]chunkResponse, len(chunks))
	for i, ch := range chunks {
		out[i] = toChunkResponse(ch)
	}
	writeJSON(w, http.StatusOK, out)
}

func toChunkResponse(ch models.Chunk) chunkResponse {
	return chunkResponse{
		ID:         ch.ID,
		DocumentID: ch.DocumentID,
		Generation: ch.Generation,
		ChunkIndex: ch.ChunkIndex,
		Preview:    preview(ch.Content, 240),
		CharStart:  ch.CharStart,
		CharEnd:    ch.CharEnd,
		TokenCount: ch.TokenCount,
	}
}
