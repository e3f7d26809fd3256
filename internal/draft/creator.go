// Package draft files generated messages with the mail provider in
// bounded, chunked batches. Each contact's draft moves to drafted or
// draft_failed; a failed item is still valid pipeline output.
package draft

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/mailroom"
)

// Config tunes the creator.
type Config struct {
	// BatchSize is the per-call item ceiling.
	BatchSize int
	// Workers bounds concurrent provider calls.
	Workers int
	Retry   resilience.RetryConfig
}

// Result summarizes one creation pass. Contact order is untouched; the
// per-contact outcome lives on each contact's draft.
type Result struct {
	Created  int
	Failed   int
	Warnings []model.Warning
}

// Creator files drafts through the mail provider.
type Creator struct {
	client mailroom.Client
	cfg    Config
}

// New creates a Creator.
func New(client mailroom.Client, cfg Config) *Creator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.25,
			ShouldRetry:    resilience.IsTransient,
		}
	}
	return &Creator{client: client, cfg: cfg}
}

// chunk is one provider batch; indexes point back into contacts.
type chunk struct {
	indexes []int
	items   []mailroom.DraftItem
}

// Create files one draft per contact that has an address and a generated
// draft. Contacts without a deliverable email are failed locally without
// a provider call. Never returns an error: a batch-level transport
// failure fails its chunk's items and surfaces as a warning. Concurrent
// provider calls are bounded by the requesting tier's worker ceiling.
func (c *Creator) Create(ctx context.Context, req model.SearchRequest, contacts []model.EnrichedContact) *Result {
	res := &Result{}

	chunks := c.buildChunks(contacts, res)
	if len(chunks) == 0 {
		return res
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(min(c.cfg.Workers, req.Tier.MaxWorkers()))
	for _, ch := range chunks {
		g.Go(func() error {
			results, err := resilience.DoVal(ctx, c.cfg.Retry, func(ctx context.Context) ([]mailroom.ItemResult, error) {
				return c.client.CreateDrafts(ctx, ch.items)
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.L().Warn("draft: batch failed",
					zap.Int("items", len(ch.items)),
					zap.Error(err),
				)
				for _, idx := range ch.indexes {
					c.fail(contacts[idx].Draft, "batch submission failed", res)
				}
				res.Warnings = append(res.Warnings, model.Warning{
					Stage:   "draft",
					Message: fmt.Sprintf("batch of %d failed: %v", len(ch.items), err),
				})
				return nil
			}

			for i, r := range results {
				d := contacts[ch.indexes[i]].Draft
				if r.OK() {
					if err := d.MarkDrafted(r.DraftID); err == nil {
						res.Created++
					}
					continue
				}
				msg := r.Error
				if msg == "" {
					msg = "draft not created"
				}
				c.fail(d, msg, res)
			}
			return nil
		})
	}
	_ = g.Wait() // workers report through res, never through errors

	zap.L().Info("draft: done",
		zap.Int("contacts", len(contacts)),
		zap.Int("created", res.Created),
		zap.Int("failed", res.Failed),
	)
	return res
}

// buildChunks partitions eligible contacts into provider batches,
// failing the ineligible ones in place.
func (c *Creator) buildChunks(contacts []model.EnrichedContact, res *Result) []chunk {
	var chunks []chunk
	current := chunk{}
	for i := range contacts {
		d := contacts[i].Draft
		if d == nil || d.State != model.DraftGenerated {
			continue
		}
		if contacts[i].Email == "" {
			c.fail(d, "no deliverable email address", res)
			continue
		}

		current.indexes = append(current.indexes, i)
		current.items = append(current.items, mailroom.DraftItem{
			To:      contacts[i].Email,
			Subject: d.Subject,
			Body:    d.Body,
		})
		if len(current.items) == c.cfg.BatchSize {
			chunks = append(chunks, current)
			current = chunk{}
		}
	}
	if len(current.items) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func (c *Creator) fail(d *model.OutreachDraft, msg string, res *Result) {
	if err := d.MarkFailed(msg); err == nil {
		res.Failed++
	}
}
