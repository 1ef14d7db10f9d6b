package overstay

import (
	"kitchenhub/internal/shared/middleware"
	"kitchenhub/internal/users"

	"github.com/gin-gonic/gin"
)

func SetupOverstayRoutes(rg *gin.RouterGroup, controller *Controller) {
	everyone := middleware.RequireRoles(users.RoleChef, users.RoleManager, users.RoleAdmin)
	reviewers := middleware.RequireRoles(users.RoleManager, users.RoleAdmin)

	penalties := rg.Group("/penalties")
	penalties.Use(middleware.JWTAuth())
	{
		penalties.GET("", everyone, controller.ListPenalties)                                // GET /api/v1/penalties
		penalties.GET("/:id", everyone, controller.GetPenalty)                               // GET /api/v1/penalties/:id
		penalties.GET("/:id/events", reviewers, controller.ListEvents)                       // GET /api/v1/penalties/:id/events
		penalties.POST("/:id/approve", reviewers, controller.ApprovePenalty)                 // POST /api/v1/penalties/:id/approve
		penalties.POST("/:id/waive", reviewers, controller.WaivePenalty)                     // POST /api/v1/penalties/:id/waive
		penalties.POST("/:id/resolve", middleware.RequireAdmin(), controller.ResolvePenalty) // POST /api/v1/penalties/:id/resolve
	}
}
