package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/transport/http/middleware"
	"gopherai-docqa/internal/transport/http/response"
)

type QueryHandler struct {
	query *app.QueryService
	ask   *app.AskService
}

func NewQueryHandler(query *app.QueryService, ask *app.AskService) *QueryHandler {
	return &QueryHandler{query: query, ask: ask}
}

func (h *QueryHandler) bind(c *gin.Context) (app.QueryRequest, bool) {
	var req app.QueryRequest
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing owner")
		return req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return req, false
	}
	req.OwnerID = ownerID
	return req, true
}

// Query returns the assembled context for a question without generating an
// answer.
func (h *QueryHandler) Query(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	res, err := h.query.Query(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err, "query failed")
		return
	}
	response.OK(c, res)
}

func (h *QueryHandler) Ask(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	res, err := h.ask.Ask(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, err, "ask failed")
		return
	}
	response.OK(c, res)
}
