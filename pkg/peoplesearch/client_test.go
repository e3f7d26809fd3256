package peoplesearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/resilience"
)

func TestSearch(t *testing.T) {
	var gotReq searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/person/search", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(Page{
			Records: []Record{
				{FirstName: "Ada", LastName: "Lovelace", Organization: "Analytical Engines", OrgDomain: "engines.example.com"},
				{FirstName: "Grace", LastName: "Hopper", Organization: "Navy Labs"},
			},
			NextCursor: "cursor-2",
		})
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	page, err := client.Search(context.Background(), Query{Role: "engineer", PageSize: 25}, "")
	require.NoError(t, err)

	assert.Equal(t, "engineer", gotReq.Role)
	assert.Equal(t, 25, gotReq.PageSize)
	assert.Empty(t, gotReq.Cursor)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "Ada", page.Records[0].FirstName)
	assert.Equal(t, "cursor-2", page.NextCursor)
}

func TestSearch_CursorForwarded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cursor-2", req.Cursor)
		json.NewEncoder(w).Encode(Page{})
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	page, err := client.Search(context.Background(), Query{Role: "engineer"}, "cursor-2")
	require.NoError(t, err)
	assert.Empty(t, page.NextCursor)
	assert.Empty(t, page.Records)
}

func TestSearch_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.Search(context.Background(), Query{Role: "engineer"}, "")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.True(t, resilience.IsRateLimited(err))
}

func TestSearch_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.Search(context.Background(), Query{Role: "engineer"}, "")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.False(t, resilience.IsRateLimited(err))
}

func TestSearch_BadRequestNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient("test-key", WithBaseURL(server.URL))
	_, err := client.Search(context.Background(), Query{Role: "engineer"}, "")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}
