package checkout

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

// RequestCheckout handles POST /api/v1/storage-bookings/:id/checkout
func (c *Controller) RequestCheckout(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "storage booking")
	if !ok {
		return
	}
	var req CheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	sb, err := c.service.Request(ctx.Request.Context(), identity, id, req)
	if err != nil {
		response.RespondError(ctx, "Failed to request checkout", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Checkout requested successfully", sb)
}

// ApproveCheckout handles POST /api/v1/storage-bookings/:id/checkout/approve
func (c *Controller) ApproveCheckout(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "storage booking")
	if !ok {
		return
	}

	sb, err := c.service.Approve(ctx.Request.Context(), identity, id)
	if err != nil {
		response.RespondError(ctx, "Failed to approve checkout", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Checkout approved successfully", sb)
}

// RejectCheckout handles POST /api/v1/storage-bookings/:id/checkout/reject
func (c *Controller) RejectCheckout(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "storage booking")
	if !ok {
		return
	}
	var req RejectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	sb, err := c.service.Reject(ctx.Request.Context(), identity, id, req.Reason)
	if err != nil {
		response.RespondError(ctx, "Failed to reject checkout", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Checkout rejected", sb)
}

// FileClaim handles POST /api/v1/storage-bookings/:id/checkout/claim
func (c *Controller) FileClaim(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "storage booking")
	if !ok {
		return
	}
	var req ClaimRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	sb, err := c.service.FileClaim(ctx.Request.Context(), identity, id, req.Notes)
	if err != nil {
		response.RespondError(ctx, "Failed to file claim", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Claim filed successfully", sb)
}
