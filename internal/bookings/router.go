package bookings

import (
	"kitchenhub/internal/shared/middleware"
	"kitchenhub/internal/users"

	"github.com/gin-gonic/gin"
)

// SetupBookingRoutes configures booking group and storage booking routes
func SetupBookingRoutes(rg *gin.RouterGroup, controller *Controller) {
	everyone := middleware.RequireRoles(users.RoleChef, users.RoleManager, users.RoleAdmin)
	chefs := middleware.RequireRoles(users.RoleChef, users.RoleAdmin)
	reviewers := middleware.RequireRoles(users.RoleManager, users.RoleAdmin)

	groups := rg.Group("/booking-groups")
	groups.Use(middleware.JWTAuth())
	{
		groups.POST("", middleware.RequireRoles(users.RoleChef), controller.CreateGroup) // POST /api/v1/booking-groups
		groups.GET("", everyone, controller.ListGroups)                                  // GET /api/v1/booking-groups
		groups.GET("/:id", everyone, controller.GetGroup)                                // GET /api/v1/booking-groups/:id
		groups.POST("/:id/addons", chefs, controller.AttachAddon)                        // POST /api/v1/booking-groups/:id/addons
		groups.POST("/:id/approve", reviewers, controller.ApproveGroup)                  // POST /api/v1/booking-groups/:id/approve
		groups.POST("/:id/reject", reviewers, controller.RejectGroup)                    // POST /api/v1/booking-groups/:id/reject
		groups.POST("/:id/complete", reviewers, controller.CompleteGroup)                // POST /api/v1/booking-groups/:id/complete
		groups.POST("/:id/transition", middleware.RequireAdmin(), controller.Transition) // POST /api/v1/booking-groups/:id/transition
	}

	storage := rg.Group("/storage-bookings")
	storage.Use(middleware.JWTAuth(), everyone)
	{
		storage.GET("/:id", controller.GetStorage) // GET /api/v1/storage-bookings/:id
	}
}

// Route definitions for reference:
//
// BOOKING GROUPS
// POST   /api/v1/booking-groups                   - Book a kitchen with add-ons, authorizes one hold
// GET    /api/v1/booking-groups?status=&page=     - Chefs see their own, managers filter by location_id
// POST   /api/v1/booking-groups/:id/addons        - Attach storage or equipment while pending
//
// MANAGER REVIEW
// POST   /api/v1/booking-groups/:id/approve       - pending -> confirmed, captures the active total
// POST   /api/v1/booking-groups/:id/reject        - pending -> cancelled, voids the hold
// POST   /api/v1/booking-groups/:id/complete      - confirmed -> completed
