package policies

import (
	"kitchenhub/internal/shared/middleware"
	"kitchenhub/internal/users"

	"github.com/gin-gonic/gin"
)

// SetupPolicyRoutes configures location policy routes (managers and admins)
func SetupPolicyRoutes(rg *gin.RouterGroup, controller *Controller) {
	locations := rg.Group("/locations")
	locations.Use(middleware.JWTAuth(), middleware.RequireRoles(users.RoleManager, users.RoleAdmin))
	{
		locations.GET("/:id/policy", controller.GetPolicy)                                 // GET /api/v1/locations/:id/policy
		locations.PUT("/:id/policy", controller.UpsertPolicy)                              // PUT /api/v1/locations/:id/policy
		locations.DELETE("/:id/policy", middleware.RequireAdmin(), controller.ResetPolicy) // DELETE /api/v1/locations/:id/policy
	}
}
