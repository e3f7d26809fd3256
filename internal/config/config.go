package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/outreach-cli/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	PeopleSearch PeopleSearchConfig `yaml:"people_search" mapstructure:"people_search"`
	EmailFinder  EmailFinderConfig  `yaml:"email_finder" mapstructure:"email_finder"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Mailroom     MailroomConfig     `yaml:"mailroom" mapstructure:"mailroom"`
	Notion       NotionConfig       `yaml:"notion" mapstructure:"notion"`
	Retrieve     RetrieveConfig     `yaml:"retrieve" mapstructure:"retrieve"`
	Enrich       EnrichConfig       `yaml:"enrich" mapstructure:"enrich"`
	Personalize  PersonalizeConfig  `yaml:"personalize" mapstructure:"personalize"`
	Draft        DraftConfig        `yaml:"draft" mapstructure:"draft"`
	Pipeline     PipelineConfig     `yaml:"pipeline" mapstructure:"pipeline"`
	Sender       SenderConfig       `yaml:"sender" mapstructure:"sender"`
	Pricing      cost.Rates         `yaml:"pricing" mapstructure:"pricing"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PeopleSearchConfig holds people-search provider API settings.
type PeopleSearchConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	PageSize int    `yaml:"page_size" mapstructure:"page_size"`
}

// EmailFinderConfig holds email-finder service settings. The finder rate
// limits per organization domain, hence the per-domain RPS knob.
type EmailFinderConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	PerDomainRPS float64 `yaml:"per_domain_rps" mapstructure:"per_domain_rps"`
	Burst        int     `yaml:"burst" mapstructure:"burst"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// MailroomConfig holds mail provider API settings.
type MailroomConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds the optional Notion suppression-list source.
type NotionConfig struct {
	Token         string `yaml:"token" mapstructure:"token"`
	SuppressionDB string `yaml:"suppression_db" mapstructure:"suppression_db"`
}

// RetrieveConfig tunes the candidate retriever.
type RetrieveConfig struct {
	// OverfetchMultiplier is the ratio of raw candidates requested versus
	// the count ultimately needed; losses to dedup and failed enrichment
	// are absorbed by the surplus.
	OverfetchMultiplier float64 `yaml:"overfetch_multiplier" mapstructure:"overfetch_multiplier"`
	// MaxPages caps pagination so sparse queries cannot run up cost.
	MaxPages        int `yaml:"max_pages" mapstructure:"max_pages"`
	CacheTTLMinutes int `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
	TimeoutSecs     int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// EnrichConfig tunes the email enrichment engine.
type EnrichConfig struct {
	Workers     int `yaml:"workers" mapstructure:"workers"`
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PersonalizeConfig tunes the personalization engine.
type PersonalizeConfig struct {
	RulesPath   string `yaml:"rules_path" mapstructure:"rules_path"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// DraftConfig tunes the draft batch creator.
type DraftConfig struct {
	BatchSize   int `yaml:"batch_size" mapstructure:"batch_size"`
	Workers     int `yaml:"workers" mapstructure:"workers"`
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig bounds the whole run.
type PipelineConfig struct {
	WallClockBudgetSecs int `yaml:"wall_clock_budget_secs" mapstructure:"wall_clock_budget_secs"`
}

// SenderConfig is the profile drafts are written on behalf of.
type SenderConfig struct {
	Name         string   `yaml:"name" mapstructure:"name"`
	Organization string   `yaml:"organization" mapstructure:"organization"`
	PriorOrgs    []string `yaml:"prior_orgs" mapstructure:"prior_orgs"`
	Location     string   `yaml:"location" mapstructure:"location"`
	// ResumeLine is one sentence of background cited when a draft has a
	// strong hook.
	ResumeLine string `yaml:"resume_line" mapstructure:"resume_line"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("people_search.page_size", 25)
	v.SetDefault("email_finder.per_domain_rps", 1.0)
	v.SetDefault("email_finder.burst", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("retrieve.overfetch_multiplier", 3.0)
	v.SetDefault("retrieve.max_pages", 5)
	v.SetDefault("retrieve.cache_ttl_minutes", 60)
	v.SetDefault("retrieve.timeout_secs", 20)
	v.SetDefault("enrich.workers", 4)
	v.SetDefault("enrich.timeout_secs", 10)
	v.SetDefault("personalize.timeout_secs", 60)
	v.SetDefault("draft.batch_size", 20)
	v.SetDefault("draft.workers", 3)
	v.SetDefault("draft.timeout_secs", 15)
	v.SetDefault("pipeline.wall_clock_budget_secs", 300)
	v.SetDefault("pricing.credits.per_contact", 1)
	v.SetDefault("pricing.credits.per_verified_email", 1)
	v.SetDefault("pricing.credits.per_draft", 1)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Pricing.Anthropic) == 0 {
		cfg.Pricing.Anthropic = cost.DefaultRates().Anthropic
	}

	return &cfg, nil
}

// Validate checks that the fields required for the given mode are set.
// Modes: "run" (one-shot pipeline), "serve" (HTTP server), "migrate".
func (c *Config) Validate(mode string) error {
	var problems []string

	requireStore := func() {
		// SQLite falls back to a local file path when the URL is empty.
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "run", "serve":
		requireStore()
		if c.PeopleSearch.Key == "" {
			problems = append(problems, "people_search.key is required")
		}
		if c.EmailFinder.Key == "" {
			problems = append(problems, "email_finder.key is required")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Mailroom.Key == "" {
			problems = append(problems, "mailroom.key is required")
		}
		if c.Retrieve.OverfetchMultiplier < 1 {
			problems = append(problems, "retrieve.overfetch_multiplier must be >= 1")
		}
		if c.Retrieve.MaxPages < 1 {
			problems = append(problems, "retrieve.max_pages must be >= 1")
		}
		if c.Enrich.Workers < 1 || c.Enrich.Workers > 16 {
			problems = append(problems, "enrich.workers must be between 1 and 16")
		}
		if c.Draft.BatchSize < 1 || c.Draft.BatchSize > 100 {
			problems = append(problems, "draft.batch_size must be between 1 and 100")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "migrate":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
