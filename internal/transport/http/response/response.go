package response

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherai-docqa/internal/app"
)

const (
	CodeOK                   = 0
	CodeBadRequest           = 40000
	CodeUnauthorized         = 40100
	CodeNotFound             = 40400
	CodeChunkIndexConflict   = 40900
	CodeInvalidTransition    = 40901
	CodeDimensionMismatch    = 42200
	CodeInternalServer       = 50000
	CodeEmbeddingUnavailable = 50300
	CodeIngestUnavailable    = 50301
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// FromError maps service errors onto the envelope. Unknown errors are logged
// and reported with the generic fallback message only.
func FromError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		Error(c, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrNotFound):
		Error(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, app.ErrChunkIndexConflict):
		Error(c, http.StatusConflict, CodeChunkIndexConflict, err.Error())
	case errors.Is(err, app.ErrInvalidTransition):
		Error(c, http.StatusConflict, CodeInvalidTransition, err.Error())
	case errors.Is(err, app.ErrDimensionMismatch):
		Error(c, http.StatusUnprocessableEntity, CodeDimensionMismatch, err.Error())
	case errors.Is(err, app.ErrEmbeddingUnavailable):
		Error(c, http.StatusServiceUnavailable, CodeEmbeddingUnavailable, err.Error())
	case errors.Is(err, app.ErrIngestEnqueue):
		Error(c, http.StatusServiceUnavailable, CodeIngestUnavailable, err.Error())
	default:
		log.Printf("http: %s %s: %s: %v", c.Request.Method, c.FullPath(), fallback, err)
		Error(c, http.StatusInternalServerError, CodeInternalServer, fallback)
	}
}
