package jobs

import (
	"kitchenhub/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupJobRoutes(rg *gin.RouterGroup, controller *Controller) {
	admin := rg.Group("/admin")
	admin.Use(middleware.JWTAuth(), middleware.RequireAdmin())
	{
		admin.GET("/jobs", controller.GetJobStatus)      // GET /api/v1/admin/jobs
		admin.POST("/sweeps/:name", controller.RunSweep) // POST /api/v1/admin/sweeps/:name
	}
}
