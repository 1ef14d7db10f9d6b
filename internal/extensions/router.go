package extensions

import (
	"kitchenhub/internal/shared/middleware"
	"kitchenhub/internal/users"

	"github.com/gin-gonic/gin"
)

func SetupExtensionRoutes(rg *gin.RouterGroup, controller *Controller) {
	everyone := middleware.RequireRoles(users.RoleChef, users.RoleManager, users.RoleAdmin)
	chefs := middleware.RequireRoles(users.RoleChef, users.RoleAdmin)
	reviewers := middleware.RequireRoles(users.RoleManager, users.RoleAdmin)

	storage := rg.Group("/storage-bookings")
	storage.Use(middleware.JWTAuth())
	{
		storage.POST("/:id/extensions", chefs, controller.RequestExtension) // POST /api/v1/storage-bookings/:id/extensions
		storage.GET("/:id/extensions", everyone, controller.ListExtensions) // GET /api/v1/storage-bookings/:id/extensions
	}

	extensions := rg.Group("/extensions")
	extensions.Use(middleware.JWTAuth())
	{
		extensions.GET("/:id", everyone, controller.GetExtension)               // GET /api/v1/extensions/:id
		extensions.POST("/:id/pay", chefs, controller.PayExtension)             // POST /api/v1/extensions/:id/pay
		extensions.POST("/:id/approve", reviewers, controller.ApproveExtension) // POST /api/v1/extensions/:id/approve
		extensions.POST("/:id/reject", reviewers, controller.RejectExtension)   // POST /api/v1/extensions/:id/reject
	}
}
