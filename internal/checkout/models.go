package checkout

import "time"

// CheckoutRequest is the chef's evidence that the storage unit was emptied
type CheckoutRequest struct {
	PhotoURLs []string `json:"photo_urls" binding:"omitempty,max=20,dive,url"`
	Notes     string   `json:"notes" binding:"omitempty,max=1000"`
}

// RejectRequest sends a checkout back to active
type RejectRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// ClaimRequest records damage or leftover items found on inspection
type ClaimRequest struct {
	Notes string `json:"notes" binding:"required,min=3,max=2000"`
}

// SweepResult summarizes one review-deadline sweep
type SweepResult struct {
	Scanned  int           `json:"scanned"`
	Advanced int           `json:"advanced"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}
