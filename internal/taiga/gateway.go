// The per-call state machine: CacheCheck → RateLimitWait → TokenResolve →
// Send (retry loop) → CacheUpdate/Invalidate → Done.
//
// DESIGN:
//   - Cache hits return before any rate-limit token is consumed.
//   - The cache is only touched after a confirmed upstream success; a failed
//     mutation never evicts a still-valid entry.
//   - A 401 triggers exactly one forced token refresh and one replay. A second
//     401 is surfaced as an authentication failure.
package taiga

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/taigabridge/taiga-bridge/internal/cache"
)

// TokenSource supplies bearer tokens per auth context. Implemented by
// auth.Store.
type TokenSource interface {
	// Token returns a currently valid token, refreshing if needed.
	Token(ctx context.Context, authContextKey string) (string, error)
	// ForceRefresh discards the cached token and obtains a fresh one.
	ForceRefresh(ctx context.Context, authContextKey string) (string, error)
}

// Limiter paces outgoing calls. Implemented by ratelimit.Limiter.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// CachedResponse is the cache value for one GET: the raw payload plus the
// pagination sidecar captured from the original response headers.
type CachedResponse struct {
	Body []byte
	Page *PageInfo
}

// Result is the successful outcome of one gateway call.
type Result struct {
	// Payload is the raw JSON response body.
	Payload []byte
	// Page carries pagination headers for list responses, nil otherwise.
	Page *PageInfo
	// StatusCode is the upstream status, 0 when served from cache.
	StatusCode int
	// FromCache reports that no network call was made.
	FromCache bool
}

// CallStats describes one completed gateway call for observability.
type CallStats struct {
	Method    string
	Path      string
	CacheHit  bool
	Attempts  int
	Replayed  bool
	Status    int
	ErrorKind Kind
	Duration  time.Duration
}

// Gateway executes descriptors against the upstream with caching, client-side
// rate limiting, token management and bounded retries. One instance is shared
// by all tool handlers; all methods are safe for concurrent use.
type Gateway struct {
	transport Sender
	tokens    TokenSource
	limiter   Limiter
	cache     *cache.Cache[CachedResponse]
	policy    Policy
	timeout   time.Duration
	observe   func(CallStats)
}

// GatewayOption configures the Gateway.
type GatewayOption func(*Gateway)

// WithCache enables response caching for GET descriptors.
func WithCache(c *cache.Cache[CachedResponse]) GatewayOption {
	return func(g *Gateway) {
		g.cache = c
	}
}

// WithLimiter enables client-side rate limiting.
func WithLimiter(l Limiter) GatewayOption {
	return func(g *Gateway) {
		g.limiter = l
	}
}

// WithPolicy overrides the retry policy.
func WithPolicy(p Policy) GatewayOption {
	return func(g *Gateway) {
		g.policy = p
	}
}

// WithCallTimeout sets the overall per-call deadline applied to every
// Execute, covering rate-limit waits, backoff sleeps and network time.
func WithCallTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.timeout = d
	}
}

// WithObserver registers a callback invoked after every call completes,
// success or failure. Used by the telemetry tracker.
func WithObserver(fn func(CallStats)) GatewayOption {
	return func(g *Gateway) {
		g.observe = fn
	}
}

// NewGateway creates a Gateway. Transport and tokens are required; cache and
// limiter are optional (absent means no caching / no client-side pacing).
func NewGateway(transport Sender, tokens TokenSource, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		transport: transport,
		tokens:    tokens,
		policy:    DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Execute runs one descriptor to completion and returns the payload or a
// typed *Error. This is the single entry point for the tool layer.
func (g *Gateway) Execute(ctx context.Context, d Descriptor, authContextKey string) (*Result, error) {
	start := time.Now()
	stats := CallStats{Method: d.Method(), Path: d.Path()}

	res, err := g.execute(ctx, d, authContextKey, &stats)

	stats.Duration = time.Since(start)
	if res != nil {
		stats.CacheHit = res.FromCache
		stats.Status = res.StatusCode
	}
	if err != nil {
		stats.ErrorKind = KindOf(err)
	}
	if g.observe != nil {
		g.observe(stats)
	}
	return res, err
}

func (g *Gateway) execute(ctx context.Context, d Descriptor, authContextKey string, stats *CallStats) (*Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	cacheKey := d.CacheKey()

	// CacheCheck: a hit costs no network call and no rate-limit token.
	if !d.IsMutation() && g.cache != nil {
		if v, ok := g.cache.Get(cacheKey); ok {
			return &Result{Payload: v.Body, Page: v.Page, FromCache: true}, nil
		}
	}

	// RateLimitWait.
	if g.limiter != nil {
		if err := g.limiter.Acquire(ctx); err != nil {
			return nil, &Error{Kind: KindTimeout, Err: err}
		}
	}

	// TokenResolve: failure here is fatal, no retry.
	token, err := g.tokens.Token(ctx, authContextKey)
	if err != nil {
		return nil, asError(ctx, err)
	}

	// Send, with one forced-refresh-and-replay on 401.
	resp, err := g.sendWithRetry(ctx, d, token, stats)
	if err != nil && isUnauthorized(err) {
		stats.Replayed = true
		token, err = g.tokens.ForceRefresh(ctx, authContextKey)
		if err != nil {
			return nil, asError(ctx, err)
		}
		resp, err = g.sendWithRetry(ctx, d, token, stats)
		if err != nil && isUnauthorized(err) {
			// The replayed request was rejected with a fresh token; the
			// credentials themselves are bad.
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	// CacheUpdate/Invalidate: only after confirmed success.
	page := pageInfoFrom(resp.Header)
	if g.cache != nil {
		if d.IsMutation() {
			for _, prefix := range d.InvalidationPrefixes() {
				if n := g.cache.InvalidatePrefix(prefix); n > 0 {
					log.Debug().Str("prefix", prefix).Int("evicted", n).Msg("gateway: cache invalidated")
				}
			}
		} else {
			g.cache.Put(cacheKey, CachedResponse{Body: resp.Body, Page: page})
		}
	}

	return &Result{Payload: resp.Body, Page: page, StatusCode: resp.StatusCode}, nil
}

// sendWithRetry runs the transport exchange under the retry policy.
// Retryable classes: connection faults, 5xx, and 429 (honoring Retry-After).
// Everything else is permanent and surfaces immediately.
func (g *Gateway) sendWithRetry(ctx context.Context, d Descriptor, token string, stats *CallStats) (*Response, error) {
	op := func() (*Response, error) {
		stats.Attempts++

		resp, err := g.transport.Send(ctx, d, token)
		if err != nil {
			var te *Error
			if errors.As(err, &te) && te.Kind == KindTimeout {
				return nil, backoff.Permanent(te)
			}
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		e := classifyStatus(resp.StatusCode, resp.Body)
		switch e.Kind {
		case KindServer:
			return nil, e
		case KindRateLimited:
			if delay, ok := retryAfterDelay(resp.Header); ok {
				// The wrapped RetryAfterError overrides the backoff delay;
				// if the budget runs out, the caller still sees the typed
				// rate-limited error.
				e.Err = &backoff.RetryAfterError{Duration: delay}
			}
			return nil, e
		default:
			return nil, backoff.Permanent(e)
		}
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(g.policy.newBackOff()),
		backoff.WithMaxTries(g.policy.attemptsFor(d)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			log.Debug().
				Err(err).
				Str("method", d.Method()).
				Str("path", d.Path()).
				Dur("delay", delay).
				Msg("gateway: retrying")
		}),
	)
	if err != nil {
		return nil, asError(ctx, err)
	}
	return resp, nil
}

// retryAfterDelay extracts the server-requested delay from a 429 response.
// Retry-After (seconds) wins; X-Throttle-Reset is the fallback.
func retryAfterDelay(h http.Header) (time.Duration, bool) {
	for _, name := range []string{"Retry-After", headerThrottleReset} {
		if v := h.Get(name); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second, true
			}
		}
	}
	return 0, false
}

// isUnauthorized reports a 401-classified failure eligible for the single
// refresh-and-replay.
func isUnauthorized(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == KindAuthentication && te.StatusCode == 401
}

// asError normalizes any failure leaving the gateway into the closed *Error
// taxonomy. Context expiry maps to Timeout regardless of where it struck.
func asError(ctx context.Context, err error) error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}
