// The /auth and /auth/refresh exchanges.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/taigabridge/taiga-bridge/internal/taiga"
)

// Client performs the credential endpoints over the shared transport.
// These calls bypass the gateway on purpose: they carry no bearer token,
// must never be cached, and their failures have auth semantics.
type Client struct {
	sender   taiga.Sender
	tokenTTL time.Duration
}

// NewClient creates a credential client. tokenTTL is the client-side lifetime
// assigned to obtained tokens — the upstream reports none.
func NewClient(sender taiga.Sender, tokenTTL time.Duration) *Client {
	return &Client{sender: sender, tokenTTL: tokenTTL}
}

// Login exchanges username/password for a token pair (POST /auth).
func (c *Client) Login(ctx context.Context, username, password string) (Record, error) {
	payload := struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		Password string `json:"password"`
	}{
		Type:     "normal",
		Username: username,
		Password: password,
	}
	return c.exchange(ctx, "/auth", payload)
}

// Refresh exchanges a refresh token for a new pair (POST /auth/refresh).
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Record, error) {
	payload := struct {
		Refresh string `json:"refresh"`
	}{
		Refresh: refreshToken,
	}
	return c.exchange(ctx, "/auth/refresh", payload)
}

func (c *Client) exchange(ctx context.Context, path string, payload any) (Record, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshaling credentials: %w", err)
	}

	d, err := taiga.NewRequest(http.MethodPost, path).Body(body).Build()
	if err != nil {
		return Record{}, fmt.Errorf("building auth request: %w", err)
	}

	resp, err := c.sender.Send(ctx, d, "")
	if err != nil {
		return Record{}, err
	}
	if e := taiga.ClassifyResponse(resp); e != nil {
		// Rejected credentials come back as 400 or 401 depending on the
		// endpoint; both mean the same thing to callers.
		if e.StatusCode < 500 {
			e.Kind = taiga.KindAuthentication
		}
		return Record{}, e
	}

	token := gjson.GetBytes(resp.Body, "auth_token").String()
	if token == "" {
		return Record{}, &taiga.Error{
			Kind:    taiga.KindAuthentication,
			Message: "auth response carried no auth_token",
		}
	}

	return Record{
		AccessToken:  token,
		RefreshToken: gjson.GetBytes(resp.Body, "refresh").String(),
		ExpiresAt:    time.Now().Add(c.tokenTTL),
	}, nil
}
