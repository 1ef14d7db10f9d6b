package policies

import (
	"net/http"

	"kitchenhub/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

func locationID(ctx *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid location ID", nil, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// GetPolicy handles GET /api/v1/locations/:id/policy
func (c *Controller) GetPolicy(ctx *gin.Context) {
	id, ok := locationID(ctx)
	if !ok {
		return
	}
	p, err := c.service.Resolve(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, "Failed to get location policy", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Location policy retrieved successfully", p)
}

// UpsertPolicy handles PUT /api/v1/locations/:id/policy
func (c *Controller) UpsertPolicy(ctx *gin.Context) {
	id, ok := locationID(ctx)
	if !ok {
		return
	}
	var req UpsertPolicyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	p, err := c.service.Upsert(ctx.Request.Context(), id, req)
	if err != nil {
		response.RespondError(ctx, "Failed to update location policy", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Location policy updated successfully", p)
}

// ResetPolicy handles DELETE /api/v1/locations/:id/policy
func (c *Controller) ResetPolicy(ctx *gin.Context) {
	id, ok := locationID(ctx)
	if !ok {
		return
	}
	if err := c.service.Reset(ctx.Request.Context(), id); err != nil {
		response.RespondError(ctx, "Failed to reset location policy", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Location policy reset to defaults", nil)
}
