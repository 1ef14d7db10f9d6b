package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UUIDParam parses a path parameter, writing a 400 when it is malformed
func UUIDParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondJSON(c, "error", http.StatusBadRequest, "Invalid "+label+" ID", nil, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// PaginationMeta is attached to list responses
type PaginationMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
}

func NewPaginationMeta(page, limit int, total int64) PaginationMeta {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return PaginationMeta{Page: page, Limit: limit, TotalCount: total, TotalPages: pages}
}
