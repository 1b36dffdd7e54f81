// Package auth manages upstream credentials: login, expiry tracking and
// coalesced token refresh.
//
// FILES:
//   - store.go:  Token store with per-context records and singleflight refresh
//   - client.go: The /auth and /auth/refresh exchanges
//
// DESIGN: records are replaced as a unit, never partially updated. At most
// one refresh is in flight per auth context; concurrent callers wait on the
// shared result instead of issuing duplicate refreshes. The refresh itself
// runs on a detached context so one waiter giving up does not abort it for
// the others.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/taigabridge/taiga-bridge/internal/taiga"
)

// Record holds the credential set for one auth context. ExpiresAt is computed
// client-side at creation: the upstream does not report token lifetimes.
type Record struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// API performs the credential exchanges. Implemented by Client.
type API interface {
	Login(ctx context.Context, username, password string) (Record, error)
	Refresh(ctx context.Context, refreshToken string) (Record, error)
}

// Store hands out valid bearer tokens per auth context, logging in at
// bootstrap and silently refreshing near expiry. Safe for concurrent use.
type Store struct {
	api      API
	username string
	password string

	staticToken    string
	margin         time.Duration
	refreshTimeout time.Duration

	mu      sync.Mutex
	records map[string]Record
	flight  singleflight.Group
}

// StoreOption configures the Store.
type StoreOption func(*Store)

// WithRefreshMargin sets how long before expiry a token is refreshed.
func WithRefreshMargin(d time.Duration) StoreOption {
	return func(s *Store) {
		s.margin = d
	}
}

// WithStaticToken bypasses login/refresh entirely with a pre-provisioned
// application token.
func WithStaticToken(token string) StoreOption {
	return func(s *Store) {
		s.staticToken = token
	}
}

// WithRefreshTimeout bounds the detached credential exchange.
func WithRefreshTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.refreshTimeout = d
	}
}

// NewStore creates a Store that logs in with the given credentials on first
// use of each auth context.
func NewStore(api API, username, password string, opts ...StoreOption) *Store {
	s := &Store{
		api:            api,
		username:       username,
		password:       password,
		margin:         time.Minute,
		refreshTimeout: 30 * time.Second,
		records:        make(map[string]Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns a currently valid access token for the auth context,
// triggering a coalesced login or refresh when none is held or expiry is
// within the safety margin.
func (s *Store) Token(ctx context.Context, authContextKey string) (string, error) {
	if s.staticToken != "" {
		return s.staticToken, nil
	}

	s.mu.Lock()
	rec, ok := s.records[authContextKey]
	s.mu.Unlock()
	if ok && s.fresh(rec) {
		return rec.AccessToken, nil
	}

	return s.await(ctx, authContextKey)
}

// ForceRefresh discards the current token's validity and obtains a fresh one.
// Used by the gateway's single 401 replay. Concurrent forced refreshes for
// the same context coalesce into one upstream call.
func (s *Store) ForceRefresh(ctx context.Context, authContextKey string) (string, error) {
	if s.staticToken != "" {
		return "", &taiga.Error{
			Kind:    taiga.KindAuthentication,
			Message: "static token rejected by upstream",
		}
	}

	s.mu.Lock()
	if rec, ok := s.records[authContextKey]; ok {
		rec.ExpiresAt = time.Time{}
		s.records[authContextKey] = rec
	}
	s.mu.Unlock()

	return s.await(ctx, authContextKey)
}

// Login performs an explicit full login for the auth context, replacing any
// held record. Used at bootstrap and after irrecoverable refresh failure.
func (s *Store) Login(ctx context.Context, authContextKey string) (Record, error) {
	rec, err := s.api.Login(ctx, s.username, s.password)
	if err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	s.records[authContextKey] = rec
	s.mu.Unlock()
	return rec, nil
}

// fresh reports whether a record is still comfortably inside its lifetime.
func (s *Store) fresh(rec Record) bool {
	return rec.AccessToken != "" && time.Until(rec.ExpiresAt) > s.margin
}

// await joins (or starts) the coalesced credential exchange for the context.
// If ctx expires while waiting, the exchange keeps running for the other
// waiters and this caller gets a timeout.
func (s *Store) await(ctx context.Context, key string) (string, error) {
	ch := s.flight.DoChan(key, func() (any, error) {
		return s.obtain(key)
	})

	select {
	case <-ctx.Done():
		return "", &taiga.Error{Kind: taiga.KindTimeout, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(Record).AccessToken, nil
	}
}

// obtain runs inside the singleflight: refresh when a record with a refresh
// token is held, full login otherwise. Runs on a detached context so caller
// cancellation cannot abort it mid-exchange.
func (s *Store) obtain(key string) (Record, error) {
	s.mu.Lock()
	rec, ok := s.records[key]
	if ok && s.fresh(rec) {
		// Another caller already replaced the record while this one was
		// queueing for the flight.
		s.mu.Unlock()
		return rec, nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()

	if ok && rec.RefreshToken != "" {
		fresh, err := s.api.Refresh(ctx, rec.RefreshToken)
		if err != nil {
			var te *taiga.Error
			if errors.As(err, &te) && te.Retryable() {
				// Transient upstream trouble. Keep the record so the next
				// attempt can still refresh instead of re-authenticating.
				return Record{}, te
			}
			// Expired or revoked refresh token: clear the record so the next
			// caller performs a full login.
			s.mu.Lock()
			delete(s.records, key)
			s.mu.Unlock()
			log.Warn().Str("auth_context", key).Err(err).Msg("auth: token refresh rejected")
			return Record{}, &taiga.Error{Kind: taiga.KindAuthentication, Message: "token refresh failed", Err: err}
		}
		s.mu.Lock()
		s.records[key] = fresh
		s.mu.Unlock()
		log.Debug().Str("auth_context", key).Time("expires_at", fresh.ExpiresAt).Msg("auth: token refreshed")
		return fresh, nil
	}

	if s.username == "" {
		return Record{}, &taiga.Error{Kind: taiga.KindAuthentication, Message: "no credentials configured"}
	}
	fresh, err := s.api.Login(ctx, s.username, s.password)
	if err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	s.records[key] = fresh
	s.mu.Unlock()
	log.Debug().Str("auth_context", key).Msg("auth: logged in")
	return fresh, nil
}
