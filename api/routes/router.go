// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"kitchenhub/internal/bookings"
	"kitchenhub/internal/cancellation"
	"kitchenhub/internal/checkout"
	"kitchenhub/internal/extensions"
	"kitchenhub/internal/jobs"
	"kitchenhub/internal/overstay"
	"kitchenhub/internal/payments"
	"kitchenhub/internal/policies"
	"kitchenhub/internal/shared/config"
	"kitchenhub/internal/shared/database"

	_ "kitchenhub/docs"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Router holds all route dependencies
type Router struct {
	config   *config.Config
	db       *database.DB
	services *Services
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, services *Services) *Router {
	return &Router{
		config:   cfg,
		db:       db,
		services: services,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	if r.config.IsDevelopment() {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupPolicyRoutes(api)
		r.setupPaymentRoutes(api)
		r.setupBookingRoutes(api)
		r.setupCancellationRoutes(api)
		r.setupCheckoutRoutes(api)
		r.setupOverstayRoutes(api)
		r.setupExtensionRoutes(api)
		r.setupJobRoutes(api)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "kitchenhub-backend",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "kitchenhub-backend",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":           "operational",
			"api_version":      r.config.APIVersion,
			"sandbox_payments": r.services.Sandbox,
			"sweeps_running":   r.services.Scheduler.Running(),
			"timestamp":        time.Now(),
		})
	})
}

func (r *Router) setupPolicyRoutes(rg *gin.RouterGroup) {
	policies.SetupPolicyRoutes(rg, policies.NewController(r.services.Policies))
}

// setupPaymentRoutes also mounts the processor webhooks
func (r *Router) setupPaymentRoutes(rg *gin.RouterGroup) {
	verifier := payments.NewStripeWebhookVerifier(r.config.Stripe.WebhookSecret)
	payments.SetupPaymentRoutes(rg, payments.NewController(r.services.Payments, verifier), r.services.Sandbox)
}

func (r *Router) setupBookingRoutes(rg *gin.RouterGroup) {
	bookings.SetupBookingRoutes(rg, bookings.NewController(r.services.Bookings))
}

func (r *Router) setupCancellationRoutes(rg *gin.RouterGroup) {
	cancellation.SetupCancellationRoutes(rg, cancellation.NewController(r.services.Cancellation))
}

func (r *Router) setupCheckoutRoutes(rg *gin.RouterGroup) {
	checkout.SetupCheckoutRoutes(rg, checkout.NewController(r.services.Checkout))
}

func (r *Router) setupOverstayRoutes(rg *gin.RouterGroup) {
	overstay.SetupOverstayRoutes(rg, overstay.NewController(r.services.Overstay))
}

func (r *Router) setupExtensionRoutes(rg *gin.RouterGroup) {
	extensions.SetupExtensionRoutes(rg, extensions.NewController(r.services.Extensions))
}

func (r *Router) setupJobRoutes(rg *gin.RouterGroup) {
	jobs.SetupJobRoutes(rg, jobs.NewController(r.services.Scheduler))
}
