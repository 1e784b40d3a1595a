package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/transport/http/middleware"
	"gopherai-docqa/internal/transport/http/response"
)

type ChunkHandler struct {
	chunks *app.ChunkService
}

type CreateChunkRequest struct {
	ChunkIndex *int                      `json:"chunk_index" binding:"required"`
	Content    string                    `json:"content" binding:"required"`
	Metadata   *model.StructuralMetadata `json:"metadata"`
}

func NewChunkHandler(chunks *app.ChunkService) *ChunkHandler {
	return &ChunkHandler{chunks: chunks}
}

// Create stores one chunk for a document. Repeating a create with the same
// index and content is harmless.
func (h *ChunkHandler) Create(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing owner")
		return
	}
	var req CreateChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	chunk, err := h.chunks.CreateChunk(c.Request.Context(), app.CreateChunkInput{
		OwnerID:    ownerID,
		DocumentID: c.Param("id"),
		Index:      *req.ChunkIndex,
		Content:    req.Content,
		Metadata:   req.Metadata,
	})
	if err != nil {
		response.FromError(c, err, "create chunk failed")
		return
	}
	response.OK(c, chunk)
}

// UpdateStructure applies a partial structural backfill. Keys that are
// absent stay untouched; an explicit null clears the field.
func (h *ChunkHandler) UpdateStructure(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing owner")
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	var patch app.StructuralPatch
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&patch); err != nil || patch == nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	chunk, err := h.chunks.UpdateStructuralMetadata(c.Request.Context(), ownerID, c.Param("id"), patch)
	if err != nil {
		response.FromError(c, err, "update chunk structure failed")
		return
	}
	response.OK(c, chunk)
}
