package bookings

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

// CreateGroup handles POST /api/v1/booking-groups
func (c *Controller) CreateGroup(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	var req CreateGroupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	g, err := c.service.CreateGroup(ctx.Request.Context(), identity, req)
	if err != nil {
		response.RespondError(ctx, "Failed to create booking", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusCreated, "Booking created successfully", g)
}

// ListGroups handles GET /api/v1/booking-groups. Chefs only see their own.
func (c *Controller) ListGroups(ctx *gin.Context) {
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
	if raw := ctx.Query("location_id"); raw != "" {
		loc, err := uuid.Parse(raw)
		if err != nil {
			response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid location ID", nil, err.Error())
			return
		}
		query.LocationID = &loc
	}

	groups, total, err := c.service.ListGroups(ctx.Request.Context(), query)
	if err != nil {
		response.RespondError(ctx, "Failed to list bookings", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Bookings retrieved successfully", NewGroupListResponse(groups, total, query))
}

// GetGroup handles GET /api/v1/booking-groups/:id
func (c *Controller) GetGroup(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "booking")
	if !ok {
		return
	}

	g, err := c.service.GetGroup(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, "Failed to get booking", err)
		return
	}
	if identity.IsChef() && !g.OwnedBy(identity.UserID) {
		response.RespondJSON(ctx, "error", http.StatusForbidden, "Access denied", nil, nil)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Booking retrieved successfully", g)
}

// GetStorage handles GET /api/v1/storage-bookings/:id
func (c *Controller) GetStorage(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "storage booking")
	if !ok {
		return
	}

	sb, err := c.service.GetStorage(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, "Failed to get storage booking", err)
		return
	}
	if identity.IsChef() && sb.ChefID != identity.UserID {
		response.RespondJSON(ctx, "error", http.StatusForbidden, "Access denied", nil, nil)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Storage booking retrieved successfully", sb)
}

// AttachAddon handles POST /api/v1/booking-groups/:id/addons
func (c *Controller) AttachAddon(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "booking")
	if !ok {
		return
	}
	var req AddonRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	g, err := c.service.AttachAddon(ctx.Request.Context(), identity, id, req)
	if err != nil {
		response.RespondError(ctx, "Failed to attach add-on", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Add-on attached successfully", g)
}

// ApproveGroup handles POST /api/v1/booking-groups/:id/approve
func (c *Controller) ApproveGroup(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "booking")
	if !ok {
		return
	}

	g, err := c.service.ApproveGroup(ctx.Request.Context(), identity, id)
	if err != nil {
		response.RespondError(ctx, "Failed to approve booking", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Booking approved successfully", g)
}

// RejectGroup handles POST /api/v1/booking-groups/:id/reject
func (c *Controller) RejectGroup(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "booking")
	if !ok {
		return
	}
	var req RejectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	g, err := c.service.RejectGroup(ctx.Request.Context(), identity, id, req.Reason)
	if err != nil {
		response.RespondError(ctx, "Failed to reject booking", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Booking rejected successfully", g)
}

// CompleteGroup handles POST /api/v1/booking-groups/:id/complete
func (c *Controller) CompleteGroup(ctx *gin.Context) {
	identity, ok := middleware.RequireIdentity(ctx)
	if !ok {
		return
	}
	id, ok := response.UUIDParam(ctx, "id", "booking")
	if !ok {
		return
	}

	g, err := c.service.CompleteGroup(ctx.Request.Context(), identity, id)
	if err != nil {
		response.RespondError(ctx, "Failed to complete booking", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Booking completed successfully", g)
}

// Transition handles POST /api/v1/booking-groups/:id/transition
func (c *Controller) Transition(ctx *gin.Context) {
	id, ok := response.UUIDParam(ctx, "id", "booking")
	if !ok {
		return
	}
	var req TransitionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	g, err := c.service.Transition(ctx.Request.Context(), id, req.From, req.To)
	if err != nil {
		response.RespondError(ctx, "Failed to transition booking", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Booking status updated successfully", g)
}
