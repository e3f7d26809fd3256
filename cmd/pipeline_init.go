package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/cache"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/credit"
	"github.com/sells-group/outreach-cli/internal/draft"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/exclusion"
	"github.com/sells-group/outreach-cli/internal/outreach"
	"github.com/sells-group/outreach-cli/internal/personalize"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/retrieve"
	"github.com/sells-group/outreach-cli/internal/store"
	anthropicpkg "github.com/sells-group/outreach-cli/pkg/anthropic"
	"github.com/sells-group/outreach-cli/pkg/emailfinder"
	"github.com/sells-group/outreach-cli/pkg/mailroom"
	"github.com/sells-group/outreach-cli/pkg/notion"
	"github.com/sells-group/outreach-cli/pkg/peoplesearch"
)

// pipelineEnv holds the initialized store, clients and pipeline shared
// by the run and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *outreach.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, all API clients and the pipeline.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var searchOpts []peoplesearch.Option
	if cfg.PeopleSearch.BaseURL != "" {
		searchOpts = append(searchOpts, peoplesearch.WithBaseURL(cfg.PeopleSearch.BaseURL))
	}
	searchClient := peoplesearch.NewClient(cfg.PeopleSearch.Key, searchOpts...)

	finderOpts := []emailfinder.Option{
		emailfinder.WithRateLimit(cfg.EmailFinder.PerDomainRPS, cfg.EmailFinder.Burst),
	}
	if cfg.EmailFinder.BaseURL != "" {
		finderOpts = append(finderOpts, emailfinder.WithBaseURL(cfg.EmailFinder.BaseURL))
	}
	finderClient := emailfinder.NewClient(cfg.EmailFinder.Key, finderOpts...)

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	var mailroomOpts []mailroom.Option
	if cfg.Mailroom.BaseURL != "" {
		mailroomOpts = append(mailroomOpts, mailroom.WithBaseURL(cfg.Mailroom.BaseURL))
	}
	mailroomClient := mailroom.NewClient(cfg.Mailroom.Key, mailroomOpts...)

	// The suppression list source is optional.
	var notionClient notion.Client
	if cfg.Notion.Token != "" {
		notionClient = notion.NewClient(cfg.Notion.Token)
	} else {
		zap.L().Debug("notion not configured, suppression list disabled")
	}

	rules, err := personalize.LoadRules(cfg.Personalize.RulesPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	retriever := retrieve.New(
		searchClient,
		cache.NewMemory(),
		resilience.NewCircuitBreaker(resilience.CircuitConfig{}),
		retrieve.Config{
			PageSize:            cfg.PeopleSearch.PageSize,
			OverfetchMultiplier: cfg.Retrieve.OverfetchMultiplier,
			MaxPages:            cfg.Retrieve.MaxPages,
			CacheTTL:            time.Duration(cfg.Retrieve.CacheTTLMinutes) * time.Minute,
		},
	)

	enricher := enrich.New(finderClient, enrich.Config{
		Workers: cfg.Enrich.Workers,
		Timeout: time.Duration(cfg.Enrich.TimeoutSecs) * time.Second,
	})

	engine := personalize.New(anthropicClient, rules, personalize.Config{
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
		Timeout:   time.Duration(cfg.Personalize.TimeoutSecs) * time.Second,
		Rates:     cfg.Pricing,
	})

	creator := draft.New(mailroomClient, draft.Config{
		BatchSize: cfg.Draft.BatchSize,
		Workers:   cfg.Draft.Workers,
	})

	ledger := credit.New(st, cost.NewCalculator(cfg.Pricing))
	exclusions := exclusion.NewLoader(st, notionClient, cfg.Notion.SuppressionDB)

	sender := personalize.Sender{
		Name:         cfg.Sender.Name,
		Organization: cfg.Sender.Organization,
		PriorOrgs:    cfg.Sender.PriorOrgs,
		Location:     cfg.Sender.Location,
		ResumeLine:   cfg.Sender.ResumeLine,
	}

	p := outreach.New(
		st, exclusions, retriever, enricher, engine, creator, ledger,
		sender,
		time.Duration(cfg.Pipeline.WallClockBudgetSecs)*time.Second,
	)

	return &pipelineEnv{Store: st, Pipeline: p}, nil
}
