package cancellation

import (
	"net/http"

	"kitchenhub/internal/shared/middleware"
	"kitchenhub/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Controller handles HTTP requests for cancellations
type Controller struct {
	service Service
}

// NewController creates a new cancellation controller
func NewController(service Service) *Controller {
	return &Controller{service: service}
}

// CancelGroup handles POST /api/v1/booking-groups/:id/cancellation
func (c *Controller) CancelGroup(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "booking")
	if !ok {
		return
	}
	var req CancelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && ctx.Request.ContentLength > 0 {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	result, err := c.service.CancelGroup(ctx.Request.Context(), identity, id, req.Reason)
	if err != nil {
		response.RespondError(ctx, "Failed to cancel booking", err)
		return
	}
	respondResult(ctx, result)
}

// EvaluateGroup handles GET /api/v1/booking-groups/:id/cancellation/evaluate?storage_booking_id=
func (c *Controller) EvaluateGroup(ctx *gin.Context) {
	id, ok := response.UUIDParam(ctx, "id", "booking")
	if !ok {
		return
	}
	var storageID *uuid.UUID
	if raw := ctx.Query("storage_booking_id"); raw != "" {
		sid, err := uuid.Parse(raw)
		if err != nil {
			response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid storage booking ID", nil, err.Error())
			return
		}
		storageID = &sid
	}

	ev, err := c.service.Evaluate(ctx.Request.Context(), id, storageID)
	if err != nil {
		response.RespondError(ctx, "Cancellation not allowed", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Cancellation allowed", ev)
}

// CancelStorage handles POST /api/v1/storage-bookings/:id/cancellation
func (c *Controller) CancelStorage(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "storage booking")
	if !ok {
		return
	}
	var req CancelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && ctx.Request.ContentLength > 0 {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	result, err := c.service.CancelStorage(ctx.Request.Context(), identity, id, req.Reason)
	if err != nil {
		response.RespondError(ctx, "Failed to cancel storage booking", err)
		return
	}
	respondResult(ctx, result)
}

func respondResult(ctx *gin.Context, result *Result) {
	if result.Tier == TierRequest {
		response.RespondSuccess(ctx, http.StatusAccepted, "Cancellation request submitted for review", result)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Booking cancelled successfully", result)
}

// ListRequests handles GET /api/v1/cancellation-requests
func (c *Controller) ListRequests(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	var query ListQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}
	if identity.IsChef() {
		query.RequestedBy = &identity.UserID
	}
	for name, dst := range map[string]**uuid.UUID{
		"booking_group_id": &query.BookingGroupID,
		"location_id":      &query.LocationID,
	} {
		raw := ctx.Query(name)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid "+name, nil, err.Error())
			return
		}
		*dst = &id
	}

	reqs, total, err := c.service.List(ctx.Request.Context(), query)
	if err != nil {
		response.RespondError(ctx, "Failed to list cancellation requests", err)
		return
	}
	q := query.normalized()
	response.RespondSuccess(ctx, http.StatusOK, "Cancellation requests retrieved successfully", gin.H{
		"requests":   reqs,
		"pagination": response.NewPaginationMeta(q.Page, q.Limit, total),
	})
}

// GetRequest handles GET /api/v1/cancellation-requests/:id
func (c *Controller) GetRequest(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "cancellation request")
	if !ok {
		return
	}

	req, err := c.service.Get(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, "Failed to get cancellation request", err)
		return
	}
	if identity.IsChef() && req.RequestedBy != identity.UserID {
		response.RespondJSON(ctx, "error", http.StatusForbidden, "Access denied", nil, nil)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Cancellation request retrieved successfully", req)
}

// ResolveRequest handles POST /api/v1/cancellation-requests/:id/resolve
func (c *Controller) ResolveRequest(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "cancellation request")
	if !ok {
		return
	}
	var req ResolveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	result, err := c.service.Resolve(ctx.Request.Context(), identity, id, req)
	if err != nil {
		response.RespondError(ctx, "Failed to resolve cancellation request", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Cancellation request "+string(req.Outcome), result)
}
