package overstay

import (
	"net/http"

	"kitchenhub/internal/shared/middleware"
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

// ListPenalties handles GET /api/v1/penalties
func (c *Controller) ListPenalties(ctx *gin.Context) {
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
		query.ChefID = &identity.UserID
	}
	for name, dst := range map[string]**uuid.UUID{
		"storage_booking_id": &query.StorageBookingID,
		"location_id":        &query.LocationID,
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

	records, total, err := c.service.List(ctx.Request.Context(), query)
	if err != nil {
		response.RespondError(ctx, "Failed to list penalties", err)
		return
	}
	q := query.normalized()
	response.RespondSuccess(ctx, http.StatusOK, "Penalties retrieved successfully", gin.H{
		"penalties":  records,
		"pagination": response.NewPaginationMeta(q.Page, q.Limit, total),
	})
}

// GetPenalty handles GET /api/v1/penalties/:id
func (c *Controller) GetPenalty(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "penalty")
	if !ok {
		return
	}

	rec, err := c.service.Get(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, "Failed to get penalty", err)
		return
	}
	if identity.IsChef() && rec.ChefID != identity.UserID {
		response.RespondJSON(ctx, "error", http.StatusForbidden, "Access denied", nil, nil)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Penalty retrieved successfully", rec)
}

// ListEvents handles GET /api/v1/penalties/:id/events
func (c *Controller) ListEvents(ctx *gin.Context) {
	id, ok := response.UUIDParam(ctx, "id", "penalty")
	if !ok {
		return
	}

	events, err := c.service.Events(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, "Failed to get penalty history", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Penalty history retrieved successfully", events)
}

// ApprovePenalty handles POST /api/v1/penalties/:id/approve
func (c *Controller) ApprovePenalty(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "penalty")
	if !ok {
		return
	}
	var req ApproveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && ctx.Request.ContentLength > 0 {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	rec, err := c.service.Approve(ctx.Request.Context(), identity, id, req)
	if err != nil {
		response.RespondError(ctx, "Failed to approve penalty", err)
		return
	}
	if rec.Status == StatusEscalated {
		response.RespondSuccess(ctx, http.StatusOK, "Penalty approved but the charge failed; escalated for follow-up", rec)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Penalty approved and charged", rec)
}

// WaivePenalty handles POST /api/v1/penalties/:id/waive
func (c *Controller) WaivePenalty(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "penalty")
	if !ok {
		return
	}
	var req WaiveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	rec, err := c.service.Waive(ctx.Request.Context(), identity, id, req.Reason)
	if err != nil {
		response.RespondError(ctx, "Failed to waive penalty", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Penalty waived", rec)
}

// ResolvePenalty handles POST /api/v1/penalties/:id/resolve
func (c *Controller) ResolvePenalty(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "penalty")
	if !ok {
		return
	}
	var req ResolveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	rec, err := c.service.Resolve(ctx.Request.Context(), identity, id, req.Note)
	if err != nil {
		response.RespondError(ctx, "Failed to resolve penalty", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Penalty resolved", rec)
}
