// Package enrich resolves work emails for retrieved candidates. Lookups
// are grouped by organization domain so the finder's per-domain rate
// limits are respected, with one exploratory domain probe ahead of the
// per-person calls.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/emailfinder"
)

// Config tunes the enricher.
type Config struct {
	// Workers bounds concurrent domain groups in flight.
	Workers int
	// Timeout bounds each finder call.
	Timeout time.Duration
}

// Result is the enrichment outcome. Contacts preserves the input order
// and length; a failed lookup yields ConfidenceNone, never a dropped
// contact.
type Result struct {
	Contacts []model.EnrichedContact
	Verified int
	Warnings []model.Warning
}

// Enricher fills in emails and confidence tiers.
type Enricher struct {
	finder emailfinder.Client
	cfg    Config
}

// New creates an Enricher.
func New(finder emailfinder.Client, cfg Config) *Enricher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Enricher{finder: finder, cfg: cfg}
}

// Enrich resolves an email for every contact. Input contacts carry the
// candidate record and identity key; Enrich fills Email and Confidence
// in place, index for index. Concurrency is the configured worker count
// clamped to the requesting tier's ceiling.
func (e *Enricher) Enrich(ctx context.Context, req model.SearchRequest, contacts []model.EnrichedContact) *Result {
	res := &Result{Contacts: contacts}
	var mu sync.Mutex

	warn := func(msg string) {
		mu.Lock()
		res.Warnings = append(res.Warnings, model.Warning{Stage: "enrich", Message: msg})
		mu.Unlock()
	}

	// Records that arrived with an address skip the finder entirely.
	groups := map[string][]int{}
	for i := range contacts {
		c := &contacts[i]
		if c.Candidate.RawEmail != "" {
			c.Email = c.Candidate.RawEmail
			c.Confidence = model.ConfidencePDL
			continue
		}
		domain := strings.ToLower(strings.TrimSpace(c.Candidate.OrgDomain))
		if domain == "" {
			c.Confidence = model.ConfidenceNone
			warn(fmt.Sprintf("%s: no organization domain, skipping lookup", c.Candidate.FullName()))
			continue
		}
		groups[domain] = append(groups[domain], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(e.cfg.Workers, req.Tier.MaxWorkers()))
	for domain, idxs := range groups {
		g.Go(func() error {
			e.enrichDomain(gctx, domain, idxs, contacts, warn)
			return nil
		})
	}
	// Workers only record outcomes; nothing to propagate.
	_ = g.Wait()

	for i := range contacts {
		if contacts[i].Confidence == "" {
			contacts[i].Confidence = model.ConfidenceNone
		}
		if contacts[i].Confidence == model.ConfidenceVerified {
			res.Verified++
		}
	}

	zap.L().Info("enrich: done",
		zap.Int("contacts", len(contacts)),
		zap.Int("verified", res.Verified),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res
}

// enrichDomain probes the domain once, then looks up each member. A
// dead or unknown domain settles the whole group without per-person
// calls.
func (e *Enricher) enrichDomain(ctx context.Context, domain string, idxs []int, contacts []model.EnrichedContact, warn func(string)) {
	info, err := e.domainInfo(ctx, domain)
	if err != nil {
		warn(fmt.Sprintf("domain %s: lookup failed: %v", domain, err))
		for _, i := range idxs {
			contacts[i].Confidence = model.ConfidenceNone
		}
		return
	}
	if !info.Reachable {
		zap.L().Debug("enrich: domain unreachable", zap.String("domain", domain))
		for _, i := range idxs {
			contacts[i].Confidence = model.ConfidenceNone
		}
		return
	}

	for _, i := range idxs {
		c := &contacts[i]
		result, err := e.find(ctx, c.Candidate.FirstName, c.Candidate.LastName, domain)
		if err != nil {
			warn(fmt.Sprintf("%s: email lookup failed: %v", c.Candidate.FullName(), err))
			c.Confidence = model.ConfidenceNone
			continue
		}
		switch result.Status {
		case emailfinder.StatusVerified:
			c.Email = result.Email
			c.Confidence = model.ConfidenceVerified
		case emailfinder.StatusUnverified:
			c.Email = result.Email
			c.Confidence = model.ConfidenceUnverified
		default:
			c.Confidence = model.ConfidenceNone
		}
	}
}

func (e *Enricher) domainInfo(ctx context.Context, domain string) (*emailfinder.Domain, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	return e.finder.DomainInfo(ctx, domain)
}

func (e *Enricher) find(ctx context.Context, first, last, domain string) (*emailfinder.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	return e.finder.Find(ctx, first, last, domain)
}
