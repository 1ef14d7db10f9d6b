package checkout

import (
	"kitchenhub/internal/shared/middleware"
	"kitchenhub/internal/users"

	"github.com/gin-gonic/gin"
)

func SetupCheckoutRoutes(rg *gin.RouterGroup, controller *Controller) {
	chefs := middleware.RequireRoles(users.RoleChef, users.RoleAdmin)
	reviewers := middleware.RequireRoles(users.RoleManager, users.RoleAdmin)

	storage := rg.Group("/storage-bookings")
	storage.Use(middleware.JWTAuth())
	{
		storage.POST("/:id/checkout", chefs, controller.RequestCheckout)             // POST /api/v1/storage-bookings/:id/checkout
		storage.POST("/:id/checkout/approve", reviewers, controller.ApproveCheckout) // POST /api/v1/storage-bookings/:id/checkout/approve
		storage.POST("/:id/checkout/reject", reviewers, controller.RejectCheckout)   // POST /api/v1/storage-bookings/:id/checkout/reject
		storage.POST("/:id/checkout/claim", reviewers, controller.FileClaim)         // POST /api/v1/storage-bookings/:id/checkout/claim
	}
}
