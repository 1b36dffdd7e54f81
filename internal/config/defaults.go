// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined
// here. This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// UPSTREAM API
// =============================================================================

// DefaultBaseURL is the hosted Taiga API.
const DefaultBaseURL = "https://api.taiga.io/api/v1"

// DefaultTimeout is the overall per-call deadline, covering rate-limit waits,
// retries and network time.
const DefaultTimeout = 30 * time.Second

// =============================================================================
// AUTHENTICATION
// =============================================================================

// DefaultTokenTTL is the client-side lifetime assigned to obtained tokens.
// The upstream does not report expiry; hosted Taiga rotates tokens daily, so
// eight hours leaves a wide safety margin.
const DefaultTokenTTL = 8 * time.Hour

// DefaultRefreshMargin is how long before expiry a token is refreshed.
const DefaultRefreshMargin = 60 * time.Second

// =============================================================================
// RETRIES
// =============================================================================

// DefaultMaxAttempts is the total attempt budget for idempotent calls.
// Mutations get a single attempt unless their descriptor opts in.
const DefaultMaxAttempts = 3

// =============================================================================
// RESPONSE CACHE
// =============================================================================

// DefaultCacheTTL suits interactive use: short enough that board state stays
// current, long enough to absorb bursts of repeated reads within one tool
// conversation.
const DefaultCacheTTL = 60 * time.Second

// DefaultCacheMaxEntries bounds the cache; past it the least-recently-used
// entry is evicted.
const DefaultCacheMaxEntries = 512

// =============================================================================
// RATE LIMITING
// =============================================================================

// DefaultRateLimitRPS keeps the client at ~80% of the hosted service's
// published write throttle, so legitimate callers rarely see a 429 at all.
const DefaultRateLimitRPS = 8.0

// DefaultBucketCapacity is the burst allowance of the client-side bucket.
const DefaultBucketCapacity = 5
