// The actual HTTP exchange against the upstream API.
//
// Transport is deliberately thin: URL assembly, standard headers, bearer
// injection, bounded body read. Everything clever (cache, retries, rate
// limiting, token refresh) lives in the Gateway on top of it.
package taiga

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MaxResponseSize bounds upstream response bodies (10MB). Unpaginated project
// exports can get large, but anything past this is a misbehaving upstream.
const MaxResponseSize = 10 * 1024 * 1024

// userAgent identifies this client to the upstream.
const userAgent = "taiga-bridge/1.0"

// Response is the raw outcome of one HTTP exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Sender performs one HTTP exchange for a descriptor. Implemented by
// Transport; tests substitute fakes.
type Sender interface {
	Send(ctx context.Context, d Descriptor, token string) (*Response, error)
}

// Transport sends descriptors over a standard HTTP client.
type Transport struct {
	baseURL string
	client  *http.Client
}

// TransportOption configures the Transport.
type TransportOption func(*Transport)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *Transport) {
		t.client = c
	}
}

// NewTransport creates a Transport for the given base URL
// (e.g. "https://api.taiga.io/api/v1"). The timeout is a hard per-exchange
// cap; per-call deadlines arrive via context.
func NewTransport(baseURL string, timeout time.Duration, opts ...TransportOption) *Transport {
	t := &Transport{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send performs the exchange. Connection-level failures come back as typed
// network or timeout errors; any HTTP response, success or not, is returned
// as a Response for the caller to classify.
func (t *Transport) Send(ctx context.Context, d Descriptor, token string) (*Response, error) {
	var bodyReader io.Reader
	if d.Body() != nil {
		bodyReader = bytes.NewReader(d.Body())
	}

	req, err := http.NewRequestWithContext(ctx, d.Method(), t.buildURL(d), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if d.Body() != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if d.DisablesPagination() {
		req.Header.Set(headerDisablePagination, "True")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, connectionError(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, connectionError(ctx, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (t *Transport) buildURL(d Descriptor) string {
	u := t.baseURL + d.Path()
	q := d.Query()
	if len(q) == 0 {
		return u
	}
	var sb strings.Builder
	sb.WriteString(u)
	sb.WriteByte('?')
	for i, p := range q {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	return sb.String()
}

// connectionError classifies a failure that produced no HTTP response.
// Deadline expiry is Timeout; everything else is a transient network fault.
func connectionError(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}
