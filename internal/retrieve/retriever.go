// Package retrieve pages through the people-search provider, dedupes
// candidates by identity key and drops excluded contacts, over-fetching
// so downstream losses still leave enough to fill the request.
package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/exclusion"
	"github.com/sells-group/outreach-cli/internal/identity"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/peoplesearch"
)

// ErrProviderUnavailable means the search provider failed before any
// page was retrieved. There is nothing to build a run from.
var ErrProviderUnavailable = eris.New("retrieve: search provider unavailable")

// Candidate is a deduplicated, non-excluded candidate and its key.
type Candidate struct {
	Record model.CandidateRecord
	Key    string
}

// Result is the retriever's output. Candidates preserves provider
// relevance order.
type Result struct {
	Candidates   []Candidate
	RawFetched   int
	PagesFetched int
	CacheHit     bool
	Warnings     []model.Warning
}

// Config tunes the retriever.
type Config struct {
	// PageSize is the per-page record count asked of the provider.
	PageSize int
	// OverfetchMultiplier scales the requested count into the raw fetch
	// target, absorbing dedup and enrichment losses.
	OverfetchMultiplier float64
	// MaxPages caps pagination regardless of yield.
	MaxPages int
	CacheTTL time.Duration
	Retry    resilience.RetryConfig
}

// Retriever fetches and filters candidates for a search request.
type Retriever struct {
	client  peoplesearch.Client
	cache   cache.Cache
	breaker *resilience.CircuitBreaker
	cfg     Config
}

// New creates a Retriever. The cache and breaker may be nil.
func New(client peoplesearch.Client, c cache.Cache, breaker *resilience.CircuitBreaker, cfg Config) *Retriever {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	if cfg.OverfetchMultiplier < 1 {
		cfg.OverfetchMultiplier = 3.0
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.Retry.MaxAttempts == 0 {
		// One retry per page; persistent failures surface fast.
		cfg.Retry = resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.25,
			ShouldRetry:    resilience.IsTransient,
		}
	}
	return &Retriever{client: client, cache: c, breaker: breaker, cfg: cfg}
}

// Target returns the raw fetch ceiling for a requested contact count.
func (r *Retriever) Target(count int) int {
	return int(math.Ceil(float64(count) * r.cfg.OverfetchMultiplier))
}

// Retrieve fetches up to Target(req.Count) raw records, filtering each
// page through the identity keyer and the exclusion snapshot. Paging
// stops as soon as the surviving candidates cover req.Count; the raw
// target only governs how far a dedup-heavy supply is chased. A failure
// on the first page is fatal; on later pages the partial result is kept
// and the failure becomes a warning.
func (r *Retriever) Retrieve(ctx context.Context, req model.SearchRequest, excluded *exclusion.Set) (*Result, error) {
	target := r.Target(req.Count)
	query := peoplesearch.Query{
		Role:         req.Role,
		Organization: req.Organization,
		Location:     req.Location,
	}

	if res, ok := r.fromCache(query, req.Count, target, excluded); ok {
		return res, nil
	}

	result := &Result{}
	seen := map[string]struct{}{}
	var raw []model.CandidateRecord
	cursor := ""

	for page := 0; page < r.cfg.MaxPages; page++ {
		if result.RawFetched >= target || len(result.Candidates) >= req.Count {
			break
		}

		query.PageSize = min(r.cfg.PageSize, target-result.RawFetched)
		p, err := r.fetchPage(ctx, query, cursor)
		if err != nil {
			if page == 0 {
				return nil, eris.Wrap(ErrProviderUnavailable, err.Error())
			}
			zap.L().Warn("retrieve: page fetch failed, keeping partial results",
				zap.Int("page", page),
				zap.Error(err),
			)
			result.Warnings = append(result.Warnings, model.Warning{
				Stage:   "retrieve",
				Message: fmt.Sprintf("page %d failed: %v", page+1, err),
			})
			break
		}
		result.PagesFetched++

		for _, rec := range p.Records {
			record := toModel(rec)
			raw = append(raw, record)
			result.RawFetched++
			r.admit(record, excluded, seen, target, result)
		}

		cursor = p.NextCursor
		if cursor == "" {
			break
		}
	}

	if r.cache != nil && len(raw) > 0 {
		if data, err := json.Marshal(raw); err == nil {
			r.cache.Set(cacheKey(query), data, r.cfg.CacheTTL)
		}
	}

	zap.L().Info("retrieve: done",
		zap.Int("requested", req.Count),
		zap.Int("target", target),
		zap.Int("raw_fetched", result.RawFetched),
		zap.Int("candidates", len(result.Candidates)),
		zap.Int("pages", result.PagesFetched),
	)
	return result, nil
}

// admit applies dedup and exclusion to one record, appending it to the
// result when it survives and the target has headroom.
func (r *Retriever) admit(record model.CandidateRecord, excluded *exclusion.Set, seen map[string]struct{}, target int, result *Result) {
	if len(result.Candidates) >= target {
		return
	}
	key, ok := identity.Key(record)
	if !ok {
		// Unkeyable records fail open: kept, never deduped.
		result.Candidates = append(result.Candidates, Candidate{Record: record})
		return
	}
	if _, dup := seen[key]; dup {
		return
	}
	if excluded != nil && excluded.Contains(key) {
		return
	}
	seen[key] = struct{}{}
	result.Candidates = append(result.Candidates, Candidate{Record: record, Key: key})
}

// fromCache replays a cached raw fetch through the current exclusion
// snapshot. Used only when the filtered yield still covers the request;
// a thin cache entry falls through to a fresh fetch.
func (r *Retriever) fromCache(query peoplesearch.Query, count, target int, excluded *exclusion.Set) (*Result, bool) {
	if r.cache == nil {
		return nil, false
	}
	data, ok := r.cache.Get(cacheKey(query))
	if !ok {
		return nil, false
	}
	var raw []model.CandidateRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}

	result := &Result{CacheHit: true, RawFetched: len(raw)}
	seen := map[string]struct{}{}
	for _, record := range raw {
		r.admit(record, excluded, seen, target, result)
	}
	if len(result.Candidates) < count {
		return nil, false
	}
	zap.L().Debug("retrieve: cache hit",
		zap.Int("raw", len(raw)),
		zap.Int("candidates", len(result.Candidates)),
	)
	return result, true
}

func (r *Retriever) fetchPage(ctx context.Context, query peoplesearch.Query, cursor string) (*peoplesearch.Page, error) {
	return resilience.DoVal(ctx, r.cfg.Retry, func(ctx context.Context) (*peoplesearch.Page, error) {
		if r.breaker != nil {
			return resilience.ExecuteVal(ctx, r.breaker, func(ctx context.Context) (*peoplesearch.Page, error) {
				return r.client.Search(ctx, query, cursor)
			})
		}
		return r.client.Search(ctx, query, cursor)
	})
}

func toModel(rec peoplesearch.Record) model.CandidateRecord {
	positions := make([]model.Position, 0, len(rec.WorkHistory))
	for _, p := range rec.WorkHistory {
		positions = append(positions, model.Position{
			Title:        p.Title,
			Organization: p.Organization,
			StartYear:    p.StartYear,
			EndYear:      p.EndYear,
		})
	}
	return model.CandidateRecord{
		FirstName:    rec.FirstName,
		LastName:     rec.LastName,
		Title:        rec.Title,
		Organization: rec.Organization,
		OrgDomain:    rec.OrgDomain,
		Location:     rec.Location,
		RawEmail:     rec.Email,
		ProfileURL:   rec.ProfileURL,
		WorkHistory:  positions,
	}
}

func cacheKey(q peoplesearch.Query) string {
	return "search:" + strings.ToLower(strings.Join([]string{q.Role, q.Organization, q.Location}, "|"))
}
