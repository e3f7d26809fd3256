// Package peoplesearch wraps the people-search provider API.
package peoplesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

const defaultBaseURL = "https://api.peopledatalookup.com/v1"

// Client performs person searches against the provider.
type Client interface {
	// Search returns one page of results. Pass an empty cursor for the
	// first page; a nil NextCursor in the response means no more results.
	Search(ctx context.Context, q Query, cursor string) (*Page, error)
}

// Query is the search criteria for a person search.
type Query struct {
	Role         string `json:"role"`
	Organization string `json:"organization,omitempty"`
	Location     string `json:"location,omitempty"`
	PageSize     int    `json:"page_size"`
}

// Position is one work-history entry on a person record.
type Position struct {
	Title        string `json:"title,omitempty"`
	Organization string `json:"organization,omitempty"`
	StartYear    int    `json:"start_year,omitempty"`
	EndYear      int    `json:"end_year,omitempty"`
}

// Record is a raw person record from the provider.
type Record struct {
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Title        string     `json:"title,omitempty"`
	Organization string     `json:"organization,omitempty"`
	OrgDomain    string     `json:"org_domain,omitempty"`
	Location     string     `json:"location,omitempty"`
	Email        string     `json:"email,omitempty"`
	ProfileURL   string     `json:"profile_url,omitempty"`
	WorkHistory  []Position `json:"work_history,omitempty"`
}

// Page is one page of search results.
type Page struct {
	Records    []Record `json:"records"`
	NextCursor string   `json:"next_cursor,omitempty"`
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

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a people-search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchRequest struct {
	Query
	Cursor string `json:"cursor,omitempty"`
}

func (c *httpClient) Search(ctx context.Context, q Query, cursor string) (*Page, error) {
	body, err := json.Marshal(searchRequest{Query: q, Cursor: cursor})
	if err != nil {
		return nil, eris.Wrap(err, "peoplesearch: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/person/search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "peoplesearch: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "peoplesearch: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "peoplesearch: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("peoplesearch: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var page Page
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, eris.Wrap(err, "peoplesearch: unmarshal response")
	}

	return &page, nil
}
