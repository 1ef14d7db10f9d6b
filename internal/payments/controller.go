package payments

import (
	"errors"
	"net/http"

	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/utils/response"
	"kitchenhub/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxWebhookBytes caps the body read from the processor
const maxWebhookBytes = 64 << 10

type Controller struct {
	service  Service
	verifier *StripeWebhookVerifier
	log      *logger.Logger
}

func NewController(service Service, verifier *StripeWebhookVerifier) *Controller {
	return &Controller{service: service, verifier: verifier, log: logger.GetDefault().WithComponent("payments")}
}

func parseID(ctx *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid payment authorization ID", nil, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// GetPayment handles GET /api/v1/payments/:id
func (c *Controller) GetPayment(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	a, err := c.service.Get(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, "Failed to get payment authorization", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Payment authorization retrieved successfully", a)
}

// ListGroupPayments handles GET /api/v1/booking-groups/:id/payments
func (c *Controller) ListGroupPayments(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	list, err := c.service.ListByGroup(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, "Failed to list payments", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Payments retrieved successfully", list)
}

// Reconcile handles POST /api/v1/payments/:id/reconcile
func (c *Controller) Reconcile(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	a, err := c.service.Reconcile(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, "Failed to reconcile payment", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Payment reconciled successfully", a)
}

// Refund handles POST /api/v1/payments/:id/refund
func (c *Controller) Refund(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	var req RefundRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}

	a, err := c.service.Refund(ctx.Request.Context(), RefundCommand{
		AuthorizationID: id,
		AmountCents:     req.AmountCents,
		Reason:          req.Reason,
		IdempotencyKey:  "manual:" + req.IdempotencyKey,
	})
	if err != nil {
		response.RespondError(ctx, "Failed to refund payment", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Refund issued successfully", a)
}

// StripeWebhook handles POST /api/v1/webhooks/stripe
func (c *Controller) StripeWebhook(ctx *gin.Context) {
	if c.verifier == nil {
		response.RespondJSON(ctx, "error", http.StatusNotFound, "Stripe webhooks are not configured", nil, nil)
		return
	}

	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxWebhookBytes)
	payload, err := ctx.GetRawData()
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Failed to read webhook body", nil, err.Error())
		return
	}

	ev, err := c.verifier.Parse(payload, ctx.GetHeader("Stripe-Signature"))
	if errors.Is(err, ErrUnhandledEvent) {
		response.RespondSuccess(ctx, http.StatusOK, "Event ignored", nil)
		return
	}
	if err != nil {
		c.log.WarnContext(ctx.Request.Context(), "Rejected stripe webhook", "error", err.Error())
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid webhook", nil, err.Error())
		return
	}

	c.apply(ctx, ev)
}

// SandboxWebhook handles POST /api/v1/webhooks/payments. Only mounted when
// the sandbox processor is active.
func (c *Controller) SandboxWebhook(ctx *gin.Context) {
	var ev WebhookEvent
	if err := ctx.ShouldBindJSON(&ev); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid webhook", nil, err.Error())
		return
	}
	c.apply(ctx, ev)
}

func (c *Controller) apply(ctx *gin.Context, ev WebhookEvent) {
	a, applied, err := c.service.ApplyEvent(ctx.Request.Context(), ev)
	if errors.Is(err, apperr.ErrNotFound) {
		// Intents created outside this service are acknowledged so the processor stops retrying
		response.RespondSuccess(ctx, http.StatusAccepted, "Event ignored", WebhookAck{EventID: ev.EventID})
		return
	}
	if err != nil {
		response.RespondError(ctx, "Failed to apply webhook event", err)
		return
	}
	response.RespondSuccess(ctx, http.StatusOK, "Event processed", WebhookAck{EventID: ev.EventID, Applied: applied, Status: a.Status})
}
