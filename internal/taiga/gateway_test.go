package taiga

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taigabridge/taiga-bridge/internal/cache"
)

// step is one scripted transport outcome.
type step struct {
	resp *Response
	err  error
}

// fakeSender replays a script of outcomes and records every exchange.
type fakeSender struct {
	mu     sync.Mutex
	script []step
	calls  int
	tokens []string
}

func (f *fakeSender) Send(_ context.Context, _ Descriptor, token string) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tokens = append(f.tokens, token)

	i := f.calls - 1
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	s := f.script[i]
	return s.resp, s.err
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeTokens hands out a fixed token and counts forced refreshes.
type fakeTokens struct {
	token      string
	refreshed  string
	tokenErr   error
	refreshErr error

	mu        sync.Mutex
	refreshes int
}

func (f *fakeTokens) Token(context.Context, string) (string, error) {
	return f.token, f.tokenErr
}

func (f *fakeTokens) ForceRefresh(context.Context, string) (string, error) {
	f.mu.Lock()
	f.refreshes++
	f.mu.Unlock()
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return f.refreshed, nil
}

func ok(body string, header http.Header) *Response {
	if header == nil {
		header = http.Header{}
	}
	return &Response{StatusCode: 200, Header: header, Body: []byte(body)}
}

func status(code int, body string, header http.Header) *Response {
	if header == nil {
		header = http.Header{}
	}
	return &Response{StatusCode: code, Header: header, Body: []byte(body)}
}

// fastPolicy keeps retry sleeps negligible in tests.
func fastPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		MutationAttempts: 1,
		InitialInterval:  time.Millisecond,
		MaxInterval:      5 * time.Millisecond,
	}
}

func newTestGateway(sender Sender, tokens TokenSource, opts ...GatewayOption) *Gateway {
	opts = append([]GatewayOption{WithPolicy(fastPolicy())}, opts...)
	return NewGateway(sender, tokens, opts...)
}

func getProjects(t *testing.T) Descriptor {
	t.Helper()
	return NewRequest(http.MethodGet, "/projects").MustBuild()
}

func TestGateway_GetSuccess(t *testing.T) {
	sender := &fakeSender{script: []step{{resp: ok(`[{"id":1}]`, nil)}}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	res, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)

	assert.Equal(t, `[{"id":1}]`, string(res.Payload))
	assert.Equal(t, 200, res.StatusCode)
	assert.False(t, res.FromCache)
	assert.Equal(t, []string{"tok"}, sender.tokens)
}

func TestGateway_CacheHitSkipsNetwork(t *testing.T) {
	sender := &fakeSender{script: []step{{resp: ok(`[]`, nil)}}}
	c := cache.New[CachedResponse](16, time.Minute)
	gw := newTestGateway(sender, &fakeTokens{token: "tok"}, WithCache(c))

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	require.Equal(t, 1, sender.callCount())

	res, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 0, res.StatusCode)
	assert.Equal(t, 1, sender.callCount(), "cache hit must not touch the network")
}

func TestGateway_CacheExpiryRefetches(t *testing.T) {
	sender := &fakeSender{script: []step{{resp: ok(`[]`, nil)}}}
	c := cache.New[CachedResponse](16, 30*time.Millisecond)
	gw := newTestGateway(sender, &fakeTokens{token: "tok"}, WithCache(c))

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	res, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 2, sender.callCount())
}

func TestGateway_MutationInvalidatesAfterSuccess(t *testing.T) {
	sender := &fakeSender{script: []step{
		{resp: ok(`[]`, nil)},                 // GET fills the cache
		{resp: status(201, `{"id":5}`, nil)},  // successful POST
		{resp: ok(`[{"id":5}]`, nil)},         // refetch after invalidation
	}}
	c := cache.New[CachedResponse](16, time.Minute)
	gw := newTestGateway(sender, &fakeTokens{token: "tok"}, WithCache(c))

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)

	create := NewRequest(http.MethodPost, "/projects").
		Body([]byte(`{"name":"new"}`)).
		Invalidates(GetKey("/projects")).
		MustBuild()
	_, err = gw.Execute(context.Background(), create, "default")
	require.NoError(t, err)

	res, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	assert.False(t, res.FromCache, "write must evict the stale list")
	assert.Equal(t, 3, sender.callCount())
}

func TestGateway_FailedMutationKeepsCache(t *testing.T) {
	sender := &fakeSender{script: []step{
		{resp: ok(`[]`, nil)},
		{resp: status(409, `{"_error_message":"version mismatch"}`, nil)},
	}}
	c := cache.New[CachedResponse](16, time.Minute)
	gw := newTestGateway(sender, &fakeTokens{token: "tok"}, WithCache(c))

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)

	update := NewRequest(http.MethodPatch, "/projects/1").
		Body([]byte(`{"version":1}`)).
		Invalidates(GetKey("/projects")).
		MustBuild()
	_, err = gw.Execute(context.Background(), update, "default")
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))

	res, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	assert.True(t, res.FromCache, "failed write must not evict a valid entry")
}

func TestGateway_RetriesServerErrors(t *testing.T) {
	sender := &fakeSender{script: []step{
		{resp: status(503, ``, nil)},
		{resp: status(500, ``, nil)},
		{resp: ok(`[]`, nil)},
	}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	res, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, 3, sender.callCount())
}

func TestGateway_RetryBudgetExhausted(t *testing.T) {
	sender := &fakeSender{script: []step{{resp: status(500, ``, nil)}}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.Error(t, err)
	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, 3, sender.callCount(), "attempt budget is K, not K+1")
}

func TestGateway_MutationNotRetried(t *testing.T) {
	sender := &fakeSender{script: []step{{resp: status(502, ``, nil)}}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	create := NewRequest(http.MethodPost, "/tasks").Body([]byte(`{}`)).MustBuild()
	_, err := gw.Execute(context.Background(), create, "default")
	require.Error(t, err)
	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, 1, sender.callCount(), "a blind POST replay can double-create")
}

func TestGateway_RetrySafeMutationRetried(t *testing.T) {
	sender := &fakeSender{script: []step{
		{resp: status(500, ``, nil)},
		{resp: ok(`{}`, nil)},
	}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	put := NewRequest(http.MethodPut, "/wiki/1").
		Body([]byte(`{}`)).
		RetrySafe().
		MustBuild()
	_, err := gw.Execute(context.Background(), put, "default")
	require.NoError(t, err)
	assert.Equal(t, 2, sender.callCount())
}

func TestGateway_ConflictNeverRetried(t *testing.T) {
	sender := &fakeSender{script: []step{{resp: status(409, ``, nil)}}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	// Even a retry-safe mutation must surface a version conflict immediately.
	put := NewRequest(http.MethodPut, "/userstories/1").
		Body([]byte(`{"version":3}`)).
		RetrySafe().
		MustBuild()
	_, err := gw.Execute(context.Background(), put, "default")
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, 1, sender.callCount())
}

func TestGateway_ValidationNeverRetried(t *testing.T) {
	sender := &fakeSender{script: []step{{resp: status(400, ``, nil)}}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, 1, sender.callCount())
}

func TestGateway_RateLimitedHonorsRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "0")
	sender := &fakeSender{script: []step{
		{resp: status(429, ``, h)},
		{resp: ok(`[]`, nil)},
	}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	assert.Equal(t, 2, sender.callCount())
}

func TestGateway_RetryAfterDelaysNextAttempt(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	h := http.Header{}
	h.Set("Retry-After", "1")
	sender := &fakeSender{script: []step{
		{resp: status(429, ``, h)},
		{resp: ok(`[]`, nil)},
	}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	start := time.Now()
	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), time.Second, "server-requested delay must be honored")
}

func TestGateway_RateLimitedExhaustedSurfacesTyped(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "0")
	sender := &fakeSender{script: []step{{resp: status(429, ``, h)}}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.Error(t, err)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.Equal(t, 3, sender.callCount())
}

func TestGateway_NetworkErrorRetried(t *testing.T) {
	sender := &fakeSender{script: []step{
		{err: &Error{Kind: KindNetwork, Err: errors.New("connection reset")}},
		{resp: ok(`[]`, nil)},
	}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	assert.Equal(t, 2, sender.callCount())
}

func TestGateway_TimeoutIsPermanent(t *testing.T) {
	sender := &fakeSender{script: []step{
		{err: &Error{Kind: KindTimeout, Err: context.DeadlineExceeded}},
	}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, 1, sender.callCount(), "no point retrying inside an expired deadline")
}

func TestGateway_UnauthorizedTriggersOneReplay(t *testing.T) {
	sender := &fakeSender{script: []step{
		{resp: status(401, ``, nil)},
		{resp: ok(`[]`, nil)},
	}}
	tokens := &fakeTokens{token: "stale", refreshed: "fresh"}
	gw := newTestGateway(sender, tokens)

	res, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, 1, tokens.refreshes)
	assert.Equal(t, []string{"stale", "fresh"}, sender.tokens)
}

func TestGateway_SecondUnauthorizedIsFatal(t *testing.T) {
	sender := &fakeSender{script: []step{{resp: status(401, ``, nil)}}}
	tokens := &fakeTokens{token: "stale", refreshed: "fresh"}
	gw := newTestGateway(sender, tokens)

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.Error(t, err)
	assert.Equal(t, KindAuthentication, KindOf(err))
	assert.Equal(t, 1, tokens.refreshes, "exactly one forced refresh per call")
	assert.Equal(t, 2, sender.callCount())
}

func TestGateway_RefreshFailureSurfaces(t *testing.T) {
	sender := &fakeSender{script: []step{{resp: status(401, ``, nil)}}}
	tokens := &fakeTokens{
		token:      "stale",
		refreshErr: &Error{Kind: KindAuthentication, Message: "token refresh failed"},
	}
	gw := newTestGateway(sender, tokens)

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.Error(t, err)
	assert.Equal(t, KindAuthentication, KindOf(err))
	assert.Equal(t, 1, sender.callCount(), "no replay without a fresh token")
}

func TestGateway_TokenResolveFailureIsFatal(t *testing.T) {
	sender := &fakeSender{script: []step{{resp: ok(`[]`, nil)}}}
	tokens := &fakeTokens{tokenErr: &Error{Kind: KindAuthentication, Message: "no credentials configured"}}
	gw := newTestGateway(sender, tokens)

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.Error(t, err)
	assert.Equal(t, KindAuthentication, KindOf(err))
	assert.Equal(t, 0, sender.callCount())
}

// blockedLimiter never grants a token.
type blockedLimiter struct{}

func (blockedLimiter) Acquire(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestGateway_LimiterTimeout(t *testing.T) {
	sender := &fakeSender{script: []step{{resp: ok(`[]`, nil)}}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"},
		WithLimiter(blockedLimiter{}),
		WithCallTimeout(20*time.Millisecond))

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, 0, sender.callCount())
}

func TestGateway_ObserverSeesEveryCall(t *testing.T) {
	sender := &fakeSender{script: []step{
		{resp: ok(`[]`, nil)},
		{resp: status(404, ``, nil)},
	}}

	var mu sync.Mutex
	var seen []CallStats
	gw := newTestGateway(sender, &fakeTokens{token: "tok"},
		WithObserver(func(s CallStats) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		}))

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	_, err = gw.Execute(context.Background(), NewRequest(http.MethodGet, "/projects/9").MustBuild(), "default")
	require.Error(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, 200, seen[0].Status)
	assert.Equal(t, 1, seen[0].Attempts)
	assert.Empty(t, string(seen[0].ErrorKind))
	assert.Equal(t, KindNotFound, seen[1].ErrorKind)
}

func TestGateway_PaginationInResult(t *testing.T) {
	h := http.Header{}
	h.Set("X-Pagination-Count", "120")
	h.Set("X-Pagination-Current", "2")
	h.Set("X-Pagination-Next", "https://api.example.com/v1/tasks?page=3")
	sender := &fakeSender{script: []step{{resp: ok(`[]`, h)}}}
	gw := newTestGateway(sender, &fakeTokens{token: "tok"})

	res, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	require.NotNil(t, res.Page)
	assert.Equal(t, 120, res.Page.Count)
	assert.Equal(t, 2, res.Page.Current)
	assert.NotEmpty(t, res.Page.Next)
}

func TestGateway_CachedPaginationSurvives(t *testing.T) {
	h := http.Header{}
	h.Set("X-Pagination-Count", "7")
	sender := &fakeSender{script: []step{{resp: ok(`[]`, h)}}}
	c := cache.New[CachedResponse](16, time.Minute)
	gw := newTestGateway(sender, &fakeTokens{token: "tok"}, WithCache(c))

	_, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)

	res, err := gw.Execute(context.Background(), getProjects(t), "default")
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.NotNil(t, res.Page)
	assert.Equal(t, 7, res.Page.Count)
}

func TestRetryAfterDelay(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "3")
	d, found := retryAfterDelay(h)
	require.True(t, found)
	assert.Equal(t, 3*time.Second, d)

	h = http.Header{}
	h.Set(headerThrottleReset, "5")
	d, found = retryAfterDelay(h)
	require.True(t, found)
	assert.Equal(t, 5*time.Second, d)

	_, found = retryAfterDelay(http.Header{})
	assert.False(t, found)

	h = http.Header{}
	h.Set("Retry-After", "soon")
	_, found = retryAfterDelay(h)
	assert.False(t, found)
}
