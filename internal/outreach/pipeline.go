// Package outreach orchestrates one discovery run: retrieve candidates,
// resolve emails, generate drafts, file them with the mail provider and
// charge the account last, so an aborted run costs the user nothing.
package outreach

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/credit"
	"github.com/sells-group/outreach-cli/internal/draft"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/exclusion"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/personalize"
	"github.com/sells-group/outreach-cli/internal/retrieve"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Stage dependencies, narrowed to what the orchestrator calls so tests
// can stand in for whole subsystems.
type exclusionSource interface {
	Load(ctx context.Context, accountID string) (*exclusion.Set, []model.Warning)
}

type candidateSource interface {
	Retrieve(ctx context.Context, req model.SearchRequest, excluded *exclusion.Set) (*retrieve.Result, error)
}

type emailEnricher interface {
	Enrich(ctx context.Context, req model.SearchRequest, contacts []model.EnrichedContact) *enrich.Result
}

type draftGenerator interface {
	Personalize(ctx context.Context, req model.SearchRequest, sender personalize.Sender, contacts []model.EnrichedContact) *personalize.Result
}

type draftFiler interface {
	Create(ctx context.Context, req model.SearchRequest, contacts []model.EnrichedContact) *draft.Result
}

type ledger interface {
	CheckBalance(ctx context.Context, accountID string, count int) error
	Charge(ctx context.Context, req model.SearchRequest, contacts, verifiedEmails, drafts int) (int, error)
}

// Pipeline runs the outreach stages in order against one request.
type Pipeline struct {
	store        store.Store
	exclusions   exclusionSource
	retriever    candidateSource
	enricher     emailEnricher
	personalizer draftGenerator
	filer        draftFiler
	ledger       ledger
	sender       personalize.Sender
	budget       time.Duration
	nowFunc      func() time.Time
}

// New creates a Pipeline. budget bounds the run's wall clock; once it is
// spent no new stage starts and the completed work is returned.
func New(
	st store.Store,
	exclusions exclusionSource,
	retriever candidateSource,
	enricher emailEnricher,
	personalizer draftGenerator,
	filer draftFiler,
	led ledger,
	sender personalize.Sender,
	budget time.Duration,
) *Pipeline {
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	return &Pipeline{
		store:        st,
		exclusions:   exclusions,
		retriever:    retriever,
		enricher:     enricher,
		personalizer: personalizer,
		filer:        filer,
		ledger:       led,
		sender:       sender,
		budget:       budget,
		nowFunc:      time.Now,
	}
}

// WithNow overrides the pipeline clock. Test hook.
func (p *Pipeline) WithNow(now func() time.Time) *Pipeline {
	p.nowFunc = now
	return p
}

// Run executes the full pipeline for one request. The charge happens
// last and covers only delivered work; a run that dies early charges
// nothing. A fatal error still returns the result assembled so far.
func (p *Pipeline) Run(ctx context.Context, req model.SearchRequest) (*model.PipelineResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("request_id", req.ID),
		zap.String("account_id", req.AccountID),
	)
	log.Info("pipeline: starting run",
		zap.String("role", req.Role),
		zap.Int("count", req.Count),
		zap.String("tier", string(req.Tier)),
	)

	start := p.nowFunc()
	deadline := start.Add(p.budget)
	result := &model.PipelineResult{RequestID: req.ID}

	run, err := p.store.CreateRun(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	result.RunID = run.ID

	setStatus := func(status model.RunStatus) {
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}
	warn := func(stage, format string, args ...any) {
		result.Warnings = append(result.Warnings, model.Warning{
			Stage:   stage,
			Message: fmt.Sprintf(format, args...),
		})
	}

	trackStage := func(name string, fn func() (map[string]any, error)) error {
		stage, stageErr := p.store.CreateStage(ctx, run.ID, name)
		if stageErr != nil {
			log.Warn("pipeline: failed to create stage", zap.String("stage", name), zap.Error(stageErr))
		}

		stageStart := time.Now()
		meta, fnErr := fn()
		sr := &model.StageResult{
			Name:     name,
			Duration: time.Since(stageStart).Milliseconds(),
			Metadata: meta,
		}
		if fnErr != nil {
			sr.Status = model.StageStatusFailed
			sr.Error = fnErr.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", sr.Duration),
				zap.Error(fnErr),
			)
		} else {
			sr.Status = model.StageStatusComplete
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", sr.Duration),
			)
		}

		if stage != nil {
			_ = p.store.CompleteStage(ctx, stage.ID, sr)
		}
		result.Stages = append(result.Stages, *sr)
		return fnErr
	}
	skipStage := func(name string) {
		log.Warn("pipeline: time budget spent, skipping stage", zap.String("stage", name))
		result.Stages = append(result.Stages, model.StageResult{
			Name:     name,
			Status:   model.StageStatusSkipped,
			Metadata: map[string]any{"reason": "time budget exhausted"},
		})
		warn("pipeline", "%s skipped: time budget exhausted", name)
	}
	withinBudget := func() bool { return p.nowFunc().Before(deadline) }

	// Worst-case balance check before any provider spend. Advisory only:
	// the authoritative check is the atomic deduction at the end, and a
	// short balance still earns the caller the computed preview.
	if err := p.ledger.CheckBalance(ctx, req.AccountID, req.Count); err != nil {
		if errors.Is(err, credit.ErrInsufficientCredit) {
			log.Warn("pipeline: balance below worst-case quote", zap.Error(err))
			warn("credit", "balance below worst-case quote, run continues as preview: %v", err)
		} else {
			// A broken balance check must not block a paying user.
			log.Warn("pipeline: balance check unavailable", zap.Error(err))
			warn("credit", "balance check unavailable: %v", err)
		}
	}

	// ===== Retrieval =====
	setStatus(model.RunStatusRetrieving)

	var excluded *exclusion.Set
	_ = trackStage("exclusion", func() (map[string]any, error) {
		var ws []model.Warning
		excluded, ws = p.exclusions.Load(ctx, req.AccountID)
		result.Warnings = append(result.Warnings, ws...)
		return map[string]any{"excluded_keys": excluded.Len()}, nil
	})

	var retrieved *retrieve.Result
	retrieveErr := trackStage("retrieve", func() (map[string]any, error) {
		var rErr error
		retrieved, rErr = p.retriever.Retrieve(ctx, req, excluded)
		if rErr != nil {
			return nil, rErr
		}
		result.Warnings = append(result.Warnings, retrieved.Warnings...)
		return map[string]any{
			"raw_fetched": retrieved.RawFetched,
			"candidates":  len(retrieved.Candidates),
			"pages":       retrieved.PagesFetched,
			"cache_hit":   retrieved.CacheHit,
		}, nil
	})
	if retrieveErr != nil {
		p.finish(ctx, run.ID, model.RunStatusFailed, req, result, 0, retrieveErr.Error())
		return result, retrieveErr
	}

	contacts := make([]model.EnrichedContact, len(retrieved.Candidates))
	for i, c := range retrieved.Candidates {
		contacts[i] = model.EnrichedContact{Candidate: c.Record, IdentityKey: c.Key}
	}

	// ===== Enrichment =====
	if withinBudget() {
		setStatus(model.RunStatusEnriching)
		_ = trackStage("enrich", func() (map[string]any, error) {
			er := p.enricher.Enrich(ctx, req, contacts)
			result.Warnings = append(result.Warnings, er.Warnings...)
			return map[string]any{"verified": er.Verified}, nil
		})
	} else {
		skipStage("enrich")
		for i := range contacts {
			if contacts[i].Confidence == "" {
				contacts[i].Confidence = model.ConfidenceNone
			}
		}
	}

	contacts = selectTop(contacts, req.Count)
	verified := countVerified(contacts)
	result.Contacts = contacts

	if err := p.store.UpsertContacts(ctx, req.AccountID, contacts); err != nil {
		log.Warn("pipeline: failed to persist contacts", zap.Error(err))
		warn("store", "contacts not persisted: %v", err)
	}

	// ===== Personalization =====
	if withinBudget() {
		setStatus(model.RunStatusPersonalizing)
		_ = trackStage("personalize", func() (map[string]any, error) {
			pr := p.personalizer.Personalize(ctx, req, p.sender, contacts)
			for i := range contacts {
				contacts[i].Draft = pr.Drafts[i]
			}
			result.Warnings = append(result.Warnings, pr.Warnings...)
			return map[string]any{
				"fallbacks":     pr.Fallbacks,
				"input_tokens":  pr.Usage.InputTokens,
				"output_tokens": pr.Usage.OutputTokens,
				"usd_cost":      pr.CostUSD,
			}, nil
		})
	} else {
		skipStage("personalize")
	}

	// ===== Draft creation =====
	draftsCreated := 0
	if withinBudget() {
		setStatus(model.RunStatusDrafting)
		_ = trackStage("draft", func() (map[string]any, error) {
			dr := p.filer.Create(ctx, req, contacts)
			draftsCreated = dr.Created
			result.Warnings = append(result.Warnings, dr.Warnings...)
			return map[string]any{"created": dr.Created, "failed": dr.Failed}, nil
		})
	} else {
		skipStage("draft")
	}

	// ===== Charge, always last =====
	setStatus(model.RunStatusCharging)
	var charged int
	chargeErr := trackStage("charge", func() (map[string]any, error) {
		var cErr error
		charged, cErr = p.ledger.Charge(ctx, req, len(contacts), verified, draftsCreated)
		if cErr != nil {
			return nil, cErr
		}
		return map[string]any{"credits": charged}, nil
	})
	if chargeErr != nil {
		if errors.Is(chargeErr, credit.ErrInsufficientCredit) {
			// The balance ran down mid-run. The work is returned as an
			// unpaid preview rather than thrown away.
			result.InsufficientCredit = true
			warn("credit", "balance exhausted, results returned without charge")
			p.finish(ctx, run.ID, model.RunStatusComplete, req, result, 0, "")
			return result, nil
		}
		p.finish(ctx, run.ID, model.RunStatusFailed, req, result, 0, chargeErr.Error())
		return result, eris.Wrap(chargeErr, "pipeline: charge")
	}
	result.CreditsCharged = charged

	p.finish(ctx, run.ID, model.RunStatusComplete, req, result, draftsCreated, "")

	log.Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.Int("contacts", len(result.Contacts)),
		zap.Int("verified", verified),
		zap.Int("drafts", draftsCreated),
		zap.Int("credits", charged),
		zap.Duration("elapsed", p.nowFunc().Sub(start)),
	)
	return result, nil
}

// finish persists the terminal run record.
func (p *Pipeline) finish(ctx context.Context, runID string, status model.RunStatus, req model.SearchRequest, result *model.PipelineResult, draftsCreated int, errMsg string) {
	rr := &model.RunResult{
		ContactsRequested:  req.Count,
		ContactsReturned:   len(result.Contacts),
		DraftsCreated:      draftsCreated,
		CreditsCharged:     result.CreditsCharged,
		InsufficientCredit: result.InsufficientCredit,
		Stages:             result.Stages,
		Warnings:           result.Warnings,
		Error:              errMsg,
	}
	if err := p.store.UpdateRunResult(ctx, runID, status, rr); err != nil {
		zap.L().Warn("pipeline: failed to save run result",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}

// selectTop keeps the count best contacts, preferring higher email
// confidence and preserving provider relevance order within a tier.
func selectTop(contacts []model.EnrichedContact, count int) []model.EnrichedContact {
	if len(contacts) <= count {
		return contacts
	}

	idx := make([]int, len(contacts))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return contacts[idx[a]].Confidence.Rank() > contacts[idx[b]].Confidence.Rank()
	})

	keep := idx[:count]
	sort.Ints(keep)
	out := make([]model.EnrichedContact, 0, count)
	for _, i := range keep {
		out = append(out, contacts[i])
	}
	return out
}

func countVerified(contacts []model.EnrichedContact) int {
	n := 0
	for _, c := range contacts {
		if c.Confidence == model.ConfidenceVerified {
			n++
		}
	}
	return n
}
