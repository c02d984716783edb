// Package auth implements the four-stage authentication chain that turns an
// upstream Microsoft account into a launch-ready game identity:
//
//	identity provider (MSAL) -> Xbox Live -> XSTS -> Minecraft services
//
// Each stage is a pure function of the previous stage's token, so the full
// chain (AuthStream) and single-stage renewal share the same code paths.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Default upstream endpoints. Overridable for tests only.
const (
	defaultXboxLiveURL         = "https://user.auth.xboxlive.com/user/authenticate"
	defaultXSTSURL             = "https://xsts.auth.xboxlive.com/xsts/authorize"
	defaultMinecraftAuthURL    = "https://api.minecraftservices.com/authentication/login_with_xbox"
	defaultMinecraftProfileURL = "https://api.minecraftservices.com/minecraft/profile"
)

// httpTimeout bounds every upstream exchange. The pipeline never retries;
// the next maintenance pass is the retry.
const httpTimeout = 30 * time.Second

// maxResponseBytes caps how much of an upstream response body is read.
const maxResponseBytes = 1 << 20

// Endpoints holds the upstream URLs the pipeline posts to.
type Endpoints struct {
	XboxLive         string
	XSTS             string
	MinecraftAuth    string
	MinecraftProfile string
}

// DefaultEndpoints returns the production upstream endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		XboxLive:         defaultXboxLiveURL,
		XSTS:             defaultXSTSURL,
		MinecraftAuth:    defaultMinecraftAuthURL,
		MinecraftProfile: defaultMinecraftProfileURL,
	}
}

// Client performs the platform and game stages of the chain (S2-S5). The
// identity-provider stage lives on Provider since it goes through MSAL
// rather than plain HTTPS.
type Client struct {
	http      *http.Client
	endpoints Endpoints
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoints overrides the upstream endpoint URLs.
func WithEndpoints(e Endpoints) Option {
	return func(c *Client) {
		c.endpoints = e
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a pipeline client for the production endpoints.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Timeout:   httpTimeout,
			Transport: &validatingTransport{transport: http.DefaultTransport},
		},
		endpoints: DefaultEndpoints(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// validatingTransport rejects any request that is not HTTPS before it
// leaves the process. Test clients bypass it via WithHTTPClient.
type validatingTransport struct {
	transport http.RoundTripper
}

func (t *validatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	parsedURL, err := url.Parse(req.URL.String())
	if err != nil {
		return nil, fmt.Errorf("the supplied URL %s is malformed", req.URL.String())
	}
	if parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("the supplied URL %s is not HTTPS scheme", req.URL.String())
	}
	return t.transport.RoundTrip(req)
}

// postJSON posts a JSON envelope and returns the response body. A non-2xx
// status is a stage failure; the body is still read so the status error can
// quote upstream's diagnostic.
func (c *Client) postJSON(ctx context.Context, endpoint string, envelope any) ([]byte, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request for %s: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

// getJSON performs a bearer-authenticated GET and returns the response body.
func (c *Client) getJSON(ctx context.Context, endpoint, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.URL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d: %s",
			ErrMalformedUpstream, req.URL, resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
