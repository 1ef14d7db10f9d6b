package constants

import (
	"time"
)

// Redis keys used by the service.
// Pattern: kitchenhub:{module}:{purpose}:{identifier}

const (
	CACHE_PREFIX = "kitchenhub"
)

// ================== TTL DURATIONS ==================

const (
	TTL_POLICY_DEFAULT = 10 * time.Minute
	TTL_SWEEP_LOCK     = 2 * time.Minute
)

// ================== POLICIES MODULE ==================

const (
	CACHE_KEY_LOCATION_POLICY = CACHE_PREFIX + ":policies:location:uuid:" // + location-id

	PATTERN_INVALIDATE_POLICIES_ALL = CACHE_PREFIX + ":policies:*"
)

// ================== JOBS MODULE ==================

const (
	LOCK_KEY_SWEEP = CACHE_PREFIX + ":jobs:sweep:" // + sweep-name
)

// ================== RATE LIMITING ==================

const (
	RATE_LIMIT_PREFIX = CACHE_PREFIX + ":rate_limit"
)

// ================== HELPER FUNCTIONS ==================

func BuildLocationPolicyKey(locationID string) string {
	return CACHE_KEY_LOCATION_POLICY + locationID
}

func BuildSweepLockKey(sweep string) string {
	return LOCK_KEY_SWEEP + sweep
}
