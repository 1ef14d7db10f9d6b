package extensions

import (
	"net/http"

	"kitchenhub/internal/shared/middleware"
	"kitchenhub/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// RequestExtension handles POST /api/v1/storage-bookings/:id/extensions
func (c *Controller) RequestExtension(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	storageID, ok := response.UUIDParam(ctx, "id", "storage booking")
	if !ok {
		return
	}
	var req CreateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	ext, err := c.service.Request(ctx.Request.Context(), identity, storageID, req)
	if err != nil {
		response.RespondError(ctx, "Failed to request extension", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusCreated, "Extension requested; pay to submit it for review", ext)
}

// ListExtensions handles GET /api/v1/storage-bookings/:id/extensions
func (c *Controller) ListExtensions(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	storageID, ok := response.UUIDParam(ctx, "id", "storage booking")
	if !ok {
		return
	}

	exts, err := c.service.ListByStorage(ctx.Request.Context(), storageID)
	if err != nil {
		response.RespondError(ctx, "Failed to list extensions", err)
		return
	}
	if identity.IsChef() {
		for _, ext := range exts {
			if ext.ChefID != identity.UserID {
				response.RespondJSON(ctx, "error", http.StatusForbidden, "Access denied", nil, nil)
				return
			}
		}
	}
	response.RespondSuccess(ctx, http.StatusOK, "Extensions retrieved successfully", exts)
}

// GetExtension handles GET /api/v1/extensions/:id
func (c *Controller) GetExtension(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "extension")
	if !ok {
		return
	}

	ext, err := c.service.Get(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, "Failed to get extension", err)
		return
	}
	if identity.IsChef() && ext.ChefID != identity.UserID {
		response.RespondJSON(ctx, "error", http.StatusForbidden, "Access denied", nil, nil)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Extension retrieved successfully", ext)
}

// PayExtension handles POST /api/v1/extensions/:id/pay
func (c *Controller) PayExtension(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "extension")
	if !ok {
		return
	}

	ext, err := c.service.Pay(ctx.Request.Context(), identity, id)
	if err != nil {
		response.RespondError(ctx, "Failed to pay extension", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Extension paid; awaiting manager review", ext)
}

// ApproveExtension handles POST /api/v1/extensions/:id/approve
func (c *Controller) ApproveExtension(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "extension")
	if !ok {
		return
	}

	ext, err := c.service.Approve(ctx.Request.Context(), identity, id)
	if err != nil {
		response.RespondError(ctx, "Failed to approve extension", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Extension approved", ext)
}

// RejectExtension handles POST /api/v1/extensions/:id/reject
func (c *Controller) RejectExtension(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "extension")
	if !ok {
		return
	}
	var req RejectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	ext, err := c.service.Reject(ctx.Request.Context(), identity, id, req.Reason)
	if err != nil {
		response.RespondError(ctx, "Failed to reject extension", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Extension rejected", ext)
}
