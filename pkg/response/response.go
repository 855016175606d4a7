package response

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Envelope is the success body: {message, data}
type Envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ListEnvelope is the paginated body: {message, metadata, pagination, data}
type ListEnvelope struct {
	Message    string      `json:"message"`
	Metadata   any         `json:"metadata,omitempty"`
	Pagination *Pagination `json:"pagination"`
	Data       any         `json:"data"`
}

// Pagination describes a page of a list result
type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious bool  `json:"hasPrevious"`
}

// NewPagination derives hasNext / hasPrevious from page, limit and total
func NewPagination(page, limit int, total int64) *Pagination {
	return &Pagination{
		Page:        page,
		Limit:       limit,
		Total:       total,
		HasNext:     int64(page*limit) < total,
		HasPrevious: page > 1,
	}
}

// ErrorBody is the error body: {message, code, path?, details?}
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Details any    `json:"details,omitempty"`
}

func Success(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Envelope{Message: message, Data: data})
}

func Created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, Envelope{Message: message, Data: data})
}

func List(c *gin.Context, message string, metadata any, p *Pagination, data any) {
	c.JSON(http.StatusOK, ListEnvelope{Message: message, Metadata: metadata, Pagination: p, Data: data})
}

func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorBody{Message: message, Code: code})
}

// ErrorWithPath reports a validation failure at a machine-readable path
func ErrorWithPath(c *gin.Context, status int, code, message, path string) {
	c.JSON(status, ErrorBody{Message: message, Code: code, Path: path})
}

func ErrorWithDetails(c *gin.Context, status int, code, message string, details any) {
	c.JSON(status, ErrorBody{Message: message, Code: code, Details: details})
}

// RetryLater sets Retry-After before writing the error body
func RetryLater(c *gin.Context, status int, code, message string, after time.Duration) {
	secs := int(after.Seconds())
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	Error(c, status, code, message)
}

func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, "NOT_FOUND", message)
}
