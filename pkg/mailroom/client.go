// Package mailroom wraps the mail provider's draft API. Drafts are
// created in batches; the provider reports success or failure per item
// so one bad address never sinks the rest of the batch.
package mailroom

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

const defaultBaseURL = "https://api.mailroom.example.com/v1"

// Client creates email drafts in the user's mailbox.
type Client interface {
	// CreateDrafts submits a batch of drafts. The returned slice has the
	// same length and order as items; result i reports the outcome for
	// item i.
	CreateDrafts(ctx context.Context, items []DraftItem) ([]ItemResult, error)
}

// DraftItem is one draft to create.
type DraftItem struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ItemResult is the per-item outcome of a batch call.
type ItemResult struct {
	Index   int    `json:"index"`
	DraftID string `json:"draft_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK reports whether the item was created.
func (r ItemResult) OK() bool {
	return r.Error == "" && r.DraftID != ""
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

// NewClient creates a mailroom client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type batchRequest struct {
	Items []DraftItem `json:"items"`
}

type batchResponse struct {
	Results []ItemResult `json:"results"`
}

func (c *httpClient) CreateDrafts(ctx context.Context, items []DraftItem) ([]ItemResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(batchRequest{Items: items})
	if err != nil {
		return nil, eris.Wrap(err, "mailroom: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/drafts/batch", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "mailroom: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "mailroom: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "mailroom: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("mailroom: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var batch batchResponse
	if err := json.Unmarshal(respBody, &batch); err != nil {
		return nil, eris.Wrap(err, "mailroom: unmarshal response")
	}

	if len(batch.Results) != len(items) {
		return nil, eris.Errorf("mailroom: got %d results for %d items", len(batch.Results), len(items))
	}

	return batch.Results, nil
}
