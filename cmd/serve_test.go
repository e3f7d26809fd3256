package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// fakeRunStore serves the read-only endpoints in router tests.
type fakeRunStore struct {
	runs map[string]*model.Run
}

func (f *fakeRunStore) CreateRun(ctx context.Context, req model.SearchRequest) (*model.Run, error) {
	return nil, eris.New("not implemented")
}

func (f *fakeRunStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	return nil
}

func (f *fakeRunStore) UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error {
	return nil
}

func (f *fakeRunStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	if run, ok := f.runs[runID]; ok {
		return run, nil
	}
	return nil, eris.Errorf("store: run %s not found", runID)
}

func (f *fakeRunStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	return nil, nil
}

func (f *fakeRunStore) CreateStage(ctx context.Context, runID, name string) (*model.RunStage, error) {
	return nil, nil
}

func (f *fakeRunStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	return nil
}

func (f *fakeRunStore) UpsertContacts(ctx context.Context, accountID string, contacts []model.EnrichedContact) error {
	return nil
}

func (f *fakeRunStore) ListContactKeys(ctx context.Context, accountID string) (map[string]struct{}, error) {
	return nil, nil
}

func (f *fakeRunStore) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	return nil, nil
}

func (f *fakeRunStore) DeductCredits(ctx context.Context, accountID string, amount int, key string) (*model.CreditTransaction, error) {
	return nil, nil
}

func (f *fakeRunStore) Migrate(ctx context.Context) error { return nil }
func (f *fakeRunStore) Close() error                      { return nil }

func newTestRouter(st store.Store) http.Handler {
	cfg = &config.Config{Server: config.ServerConfig{AllowedOrigins: []string{"*"}}}
	return newRouter(&pipelineEnv{Store: st})
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(&fakeRunStore{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestOutreach_InvalidBody(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(&fakeRunStore{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/outreach", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOutreach_MissingFields(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(&fakeRunStore{}))
	defer srv.Close()

	// No account or role; validation rejects before the pipeline runs.
	resp, err := http.Post(srv.URL+"/api/outreach", "application/json", strings.NewReader(`{"count": 5}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRun(t *testing.T) {
	st := &fakeRunStore{runs: map[string]*model.Run{
		"run-1": {
			ID:     "run-1",
			Status: model.RunStatusComplete,
			Request: model.SearchRequest{
				ID: "req-1", AccountID: "acct-1", Role: "vp sales", Count: 5,
			},
			CreatedAt: time.Now(),
		},
	}}
	srv := httptest.NewServer(newTestRouter(st))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs/run-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/runs/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
