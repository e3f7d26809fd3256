// Package emailfinder wraps the email verification provider. The provider
// throttles per organization domain, so the client keeps one rate limiter
// per domain and waits on it before every call.
package emailfinder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

const defaultBaseURL = "https://api.mailsleuth.example.com/v2"

// Verification levels reported by the provider.
const (
	StatusVerified   = "verified"
	StatusUnverified = "unverified"
	StatusNotFound   = "not_found"
)

// Client looks up and verifies work email addresses.
type Client interface {
	// Find looks up the email address for a person at a domain.
	Find(ctx context.Context, first, last, domain string) (*Result, error)
	// DomainInfo returns what the provider knows about a domain. Called
	// once per domain before individual lookups; a dead domain short
	// circuits the per-person calls.
	DomainInfo(ctx context.Context, domain string) (*Domain, error)
}

// Result is the outcome of a single address lookup.
type Result struct {
	Email  string `json:"email"`
	Status string `json:"status"`
	// Score is the provider's deliverability confidence, 0 to 100.
	Score int `json:"score"`
}

// Domain describes a mail domain the provider has indexed.
type Domain struct {
	Domain string `json:"domain"`
	// Pattern is the dominant address pattern, e.g. "{first}.{last}".
	Pattern string `json:"pattern,omitempty"`
	// Reachable is false for parked or dead domains.
	Reachable bool `json:"reachable"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the per-domain request rate and burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.rps = rate.Limit(rps)
		c.burst = burst
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client

	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates an email-finder client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		rps:      rate.Limit(1),
		burst:    2,
		limiters: map[string]*rate.Limiter{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) limiter(domain string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[domain]
	if !ok {
		lim = rate.NewLimiter(c.rps, c.burst)
		c.limiters[domain] = lim
	}
	return lim
}

func (c *httpClient) Find(ctx context.Context, first, last, domain string) (*Result, error) {
	if err := c.limiter(domain).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "emailfinder: rate limit wait")
	}

	q := url.Values{}
	q.Set("first_name", first)
	q.Set("last_name", last)
	q.Set("domain", domain)

	var result Result
	if err := c.get(ctx, "/email/find?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) DomainInfo(ctx context.Context, domain string) (*Domain, error) {
	if err := c.limiter(domain).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "emailfinder: rate limit wait")
	}

	var info Domain
	if err := c.get(ctx, "/domain/"+url.PathEscape(domain), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "emailfinder: create request")
	}
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "emailfinder: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "emailfinder: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("emailfinder: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.RetryableStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, fmt.Sprintf("emailfinder: unmarshal %T", out))
	}
	return nil
}
