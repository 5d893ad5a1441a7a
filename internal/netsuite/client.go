package netsuite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
)

// UserAgent identifies this integration to the RESTlet.
const UserAgent = "SalesReportingApi/1.0 (Language=Go)"

// Result is the outcome of a signed call. Failures of any kind are folded
// into Success=false with a message; Send never returns a Go error.
type Result struct {
	Success bool            `json:"success"`
	Content json.RawMessage `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client performs signed calls against NetSuite RESTlets.
type Client struct {
	httpClient *http.Client
	noncer     oauth1.Noncer
	logger     *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithNonce fixes the nonce used for signing.
func WithNonce(nonce func() string) Option {
	return func(c *Client) { c.noncer = NonceFunc(nonce) }
}

// NewClient configures a client with sane defaults. Requests are signed by
// the transport wrapped around the configured http.Client.
func NewClient(creds Credentials, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = NewSigner(creds, c.noncer).Wrap(c.httpClient)
	return c
}

// Send serialises body as JSON and performs a signed request. A response
// whose "error" field is truthy counts as a failure even on HTTP 200.
func (c *Client) Send(ctx context.Context, rawURL, method string, body any) Result {
	res, err := c.send(ctx, rawURL, method, body)
	if err != nil {
		c.logger.Error("netsuite request failed", "url", rawURL, "method", method, "error", err)
		return Result{Success: false, Error: err.Error()}
	}
	return res
}

func (c *Client) send(ctx context.Context, rawURL, method string, body any) (Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Result{}, fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	if obj, ok := decoded.(map[string]any); ok {
		if appErr := obj["error"]; truthy(appErr) {
			c.logger.Warn("netsuite returned an application error", "url", rawURL, "status", resp.StatusCode)
			return Result{Success: false, Error: errorText(appErr)}, nil
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, fmt.Errorf("netsuite responded with %s", resp.Status)
	}
	return Result{Success: true, Content: raw}, nil
}

// truthy reports whether an "error" value marks a failure. null, false, 0
// and "" do not.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	}
	return true
}

func errorText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
