package cancellation

import (
	"kitchenhub/internal/shared/middleware"
	"kitchenhub/internal/users"

	"github.com/gin-gonic/gin"
)

func SetupCancellationRoutes(rg *gin.RouterGroup, controller *Controller) {
	everyone := middleware.RequireRoles(users.RoleChef, users.RoleManager, users.RoleAdmin)
	chefs := middleware.RequireRoles(users.RoleChef, users.RoleAdmin)
	reviewers := middleware.RequireRoles(users.RoleManager, users.RoleAdmin)

	groups := rg.Group("/booking-groups")
	groups.Use(middleware.JWTAuth())
	{
		groups.POST("/:id/cancellation", chefs, controller.CancelGroup)              // POST /api/v1/booking-groups/:id/cancellation
		groups.GET("/:id/cancellation/evaluate", everyone, controller.EvaluateGroup) // GET /api/v1/booking-groups/:id/cancellation/evaluate
	}

	storage := rg.Group("/storage-bookings")
	storage.Use(middleware.JWTAuth(), chefs)
	{
		storage.POST("/:id/cancellation", controller.CancelStorage) // POST /api/v1/storage-bookings/:id/cancellation
	}

	requests := rg.Group("/cancellation-requests")
	requests.Use(middleware.JWTAuth())
	{
		requests.GET("", everyone, controller.ListRequests)                 // GET /api/v1/cancellation-requests
		requests.GET("/:id", everyone, controller.GetRequest)               // GET /api/v1/cancellation-requests/:id
		requests.POST("/:id/resolve", reviewers, controller.ResolveRequest) // POST /api/v1/cancellation-requests/:id/resolve
	}
}
