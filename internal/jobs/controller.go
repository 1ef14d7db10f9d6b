package jobs

import (
	"errors"
	"net/http"

	"kitchenhub/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	scheduler *Scheduler
}

func NewController(scheduler *Scheduler) *Controller {
	return &Controller{scheduler: scheduler}
}

// GetJobStatus handles GET /api/v1/admin/jobs
func (c *Controller) GetJobStatus(ctx *gin.Context) {
	response.RespondSuccess(ctx, http.StatusOK, "Job status retrieved successfully", gin.H{
		"running": c.scheduler.Running(),
		"jobs":    c.scheduler.Status(),
	})
}

// RunSweep handles POST /api/v1/admin/sweeps/:name
func (c *Controller) RunSweep(ctx *gin.Context) {
	name := ctx.Param("name")
	out, err := c.scheduler.RunNow(ctx.Request.Context(), name)
	if errors.Is(err, ErrLocked) {
		response.RespondJSON(ctx, "error", http.StatusConflict, "Sweep is already running", nil, nil)
		return
	}
	if err != nil {
		response.RespondError(ctx, "Failed to run sweep", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Sweep completed", gin.H{
		"job":     name,
		"outcome": out,
	})
}
