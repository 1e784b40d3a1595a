package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/transport/http/middleware"
	"gopherai-docqa/internal/transport/http/response"
)

type DocumentHandler struct {
	documents *app.DocumentService
	chunks    *app.ChunkService
	lifecycle *app.LifecycleService
}

type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

func NewDocumentHandler(documents *app.DocumentService, chunks *app.ChunkService, lifecycle *app.LifecycleService) *DocumentHandler {
	return &DocumentHandler{documents: documents, chunks: chunks, lifecycle: lifecycle}
}

// Upload accepts a multipart form with "file" (PDF), extracts its structure
// and queues ingestion.
func (h *DocumentHandler) Upload(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing owner")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > app.MaxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large (max 32MB)")
		return
	}
	if ext := strings.ToLower(filepath.Ext(file.Filename)); ext != ".pdf" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only PDF files are allowed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, app.MaxUploadBytes+1))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	doc, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		OwnerID:  ownerID,
		Filename: file.Filename,
		MimeType: file.Header.Get("Content-Type"),
		Data:     data,
	})
	if err != nil {
		response.FromError(c, err, "upload failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing owner")
		return
	}
	docs, err := h.documents.List(c.Request.Context(), ownerID)
	if err != nil {
		response.FromError(c, err, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing owner")
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		response.FromError(c, err, "get document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing owner")
		return
	}
	id := c.Param("id")
	if err := h.documents.Delete(c.Request.Context(), ownerID, id); err != nil {
		response.FromError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted_document_id": id})
}

func (h *DocumentHandler) Transition(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing owner")
		return
	}
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	doc, err := h.lifecycle.Transition(c.Request.Context(), ownerID, c.Param("id"), model.DocumentStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		response.FromError(c, err, "update status failed")
		return
	}
	response.OK(c, doc)
}

// Chunks lists a document's chunks. element_type narrows by type ("null"
// selects unclassified chunks); page narrows by page. Both together are
// ANDed.
func (h *DocumentHandler) Chunks(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing owner")
		return
	}
	ctx := c.Request.Context()
	docID := c.Param("id")

	var (
		chunks []model.Chunk
		err    error
	)
	rawType, hasType := c.GetQuery("element_type")
	rawPage, hasPage := c.GetQuery("page")

	var pageNo int
	if hasPage {
		pageNo, err = strconv.Atoi(rawPage)
		if err != nil || pageNo < 1 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "page must be an integer >= 1")
			return
		}
	}

	switch {
	case hasType:
		et, ok := model.ParseElementType(rawType)
		if !ok {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unknown element_type")
			return
		}
		chunks, err = h.chunks.GetChunksByElementType(ctx, ownerID, docID, et)
		if err == nil && hasPage {
			chunks = filterPage(chunks, pageNo)
		}
	case hasPage:
		chunks, err = h.chunks.GetChunksByPage(ctx, ownerID, docID, pageNo)
	default:
		chunks, err = h.chunks.GetChunksOrdered(ctx, ownerID, docID)
	}
	if err != nil {
		response.FromError(c, err, "list chunks failed")
		return
	}
	response.OK(c, chunks)
}

func filterPage(chunks []model.Chunk, pageNo int) []model.Chunk {
	out := chunks[:0]
	for _, ch := range chunks {
		if ch.PageNumber != nil && *ch.PageNumber == pageNo {
			out = append(out, ch)
		}
	}
	return out
}

func (h *DocumentHandler) Facets(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing owner")
		return
	}
	facets, err := h.documents.Facets(c.Request.Context(), ownerID, c.Param("id"))
	if err != nil {
		response.FromError(c, err, "count facets failed")
		return
	}
	response.OK(c, facets)
}

func (h *DocumentHandler) CorpusFacets(c *gin.Context) {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing owner")
		return
	}
	facets, err := h.documents.CorpusFacets(c.Request.Context(), ownerID)
	if err != nil {
		response.FromError(c, err, "count facets failed")
		return
	}
	response.OK(c, facets)
}
