package payments

import (
	"kitchenhub/internal/shared/middleware"
	"kitchenhub/internal/users"

	"github.com/gin-gonic/gin"
)

// SetupPaymentRoutes configures payment queries, manual commands and webhooks.
// Webhook routes carry no JWT: Stripe requests are authenticated by signature.
func SetupPaymentRoutes(rg *gin.RouterGroup, controller *Controller, sandbox bool) {
	payments := rg.Group("/payments")
	payments.Use(middleware.JWTAuth(), middleware.RequireRoles(users.RoleManager, users.RoleAdmin))
	{
		payments.GET("/:id", controller.GetPayment)                                // GET /api/v1/payments/:id
		payments.POST("/:id/reconcile", controller.Reconcile)                      // POST /api/v1/payments/:id/reconcile
		payments.POST("/:id/refund", middleware.RequireAdmin(), controller.Refund) // POST /api/v1/payments/:id/refund
	}

	groups := rg.Group("/booking-groups")
	groups.Use(middleware.JWTAuth(), middleware.RequireRoles(users.RoleManager, users.RoleAdmin))
	{
		groups.GET("/:id/payments", controller.ListGroupPayments) // GET /api/v1/booking-groups/:id/payments
	}

	webhooks := rg.Group("/webhooks")
	{
		webhooks.POST("/stripe", controller.StripeWebhook) // POST /api/v1/webhooks/stripe
		if sandbox {
			webhooks.POST("/payments", controller.SandboxWebhook) // POST /api/v1/webhooks/payments
		}
	}
}
