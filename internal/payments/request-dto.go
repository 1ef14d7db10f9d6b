package payments

// RefundRequest is the manual refund body for managers and admins
type RefundRequest struct {
	AmountCents    int64  `json:"amount_cents" binding:"required,gt=0"`
	Reason         string `json:"reason" binding:"max=500"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,max=200"`
}

// WebhookAck is the body returned to the processor
type WebhookAck struct {
	EventID string `json:"event_id"`
	Applied bool   `json:"applied"`
	Status  Status `json:"status,omitempty"`
}
