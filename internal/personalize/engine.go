// Package personalize turns enriched contacts into outreach drafts. The
// whole batch is generated with a single model call; anything the model
// fails to produce falls back to a deterministic template, so every
// contact always leaves with a draft.
package personalize

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// Config tunes the engine.
type Config struct {
	Model     string
	MaxTokens int64
	// Timeout bounds the generation call. On expiry the whole batch
	// falls back to templates.
	Timeout time.Duration
	// Rates prices token usage. Empty Anthropic rates use the defaults.
	Rates cost.Rates
}

// Result is the personalization outcome. Drafts is index-matched with
// the input contacts and every entry is in the generated state.
type Result struct {
	Drafts    []*model.OutreachDraft
	Usage     anthropic.TokenUsage
	CostUSD   float64
	Fallbacks int
	Warnings  []model.Warning
}

// Engine generates drafts.
type Engine struct {
	client  anthropic.Client
	rules   *Rules
	cfg     Config
	calc    *cost.Calculator
	nowFunc func() time.Time
}

// New creates an Engine. Nil rules use the defaults.
func New(client anthropic.Client, rules *Rules, cfg Config) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	rates := cfg.Rates
	if len(rates.Anthropic) == 0 {
		rates = cost.DefaultRates()
	}
	return &Engine{client: client, rules: rules, cfg: cfg, calc: cost.NewCalculator(rates), nowFunc: time.Now}
}

// WithNow overrides the clock used for tenure math. Test hook.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.nowFunc = now
	return e
}

// promptItem is one contact as presented to the model.
type promptItem struct {
	Index             int    `json:"index"`
	Name              string `json:"name"`
	Title             string `json:"title,omitempty"`
	Organization      string `json:"organization,omitempty"`
	Location          string `json:"location,omitempty"`
	Anchor            string `json:"anchor"`
	AnchorDetail      string `json:"anchor_detail"`
	Commonality       string `json:"commonality"`
	CommonalityDetail string `json:"commonality_detail,omitempty"`
	MentionResume     bool   `json:"mention_resume"`
}

// generatedDraft is one subject/body pair as returned by the model.
type generatedDraft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Personalize drafts one message per contact in a single batched call.
// The returned drafts are index-matched with contacts; a contact the
// model skipped (or a failed call) gets the deterministic template.
func (e *Engine) Personalize(ctx context.Context, req model.SearchRequest, sender Sender, contacts []model.EnrichedContact) *Result {
	res := &Result{Drafts: make([]*model.OutreachDraft, len(contacts))}
	if len(contacts) == 0 {
		return res
	}

	now := e.nowFunc()
	signals := make([]Signals, len(contacts))
	for i, c := range contacts {
		signals[i] = Derive(c.Candidate, sender, now)
	}

	generated, usage, err := e.generate(ctx, req, sender, contacts, signals)
	res.Usage.Add(usage)
	if err != nil {
		zap.L().Warn("personalize: generation failed, using templates for batch",
			zap.Int("contacts", len(contacts)),
			zap.Error(err),
		)
		res.Warnings = append(res.Warnings, model.Warning{
			Stage:   "personalize",
			Message: fmt.Sprintf("generation failed, templates used: %v", err),
		})
	}

	seenOpenings := map[string]struct{}{}
	for i := range contacts {
		draft := model.NewDraft()
		subject, body, fallback := e.resolve(generated, i, contacts[i].Candidate, signals[i], sender, req.Targeted)
		body = dedupeOpening(body, signals[i], seenOpenings)
		if err := draft.MarkGenerated(subject, body, signals[i].Anchor, fallback); err != nil {
			// Unreachable from pending; keep the draft consistent anyway.
			zap.L().Error("personalize: mark generated", zap.Error(err))
		}
		if fallback {
			res.Fallbacks++
		}
		res.Drafts[i] = draft
	}

	res.CostUSD = e.calc.Claude(e.cfg.Model, res.Usage.InputTokens, res.Usage.OutputTokens)

	zap.L().Info("personalize: done",
		zap.Int("contacts", len(contacts)),
		zap.Int("fallbacks", res.Fallbacks),
		zap.Int64("input_tokens", res.Usage.InputTokens),
		zap.Int64("output_tokens", res.Usage.OutputTokens),
		zap.Float64("usd_cost", res.CostUSD),
	)
	return res
}

// resolve picks the generated draft for index i, post-processed, or the
// template when the model skipped or blanked the contact.
func (e *Engine) resolve(generated map[int]generatedDraft, i int, c model.CandidateRecord, s Signals, sender Sender, targeted bool) (subject, body string, fallback bool) {
	g, ok := generated[i]
	if !ok || strings.TrimSpace(g.Body) == "" || strings.TrimSpace(g.Subject) == "" {
		subject, body = fallbackDraft(c, s, sender, e.rules)
		return subject, body, true
	}
	return g.Subject, postProcess(g.Body, s, sender, targeted, e.rules), false
}

func (e *Engine) generate(ctx context.Context, req model.SearchRequest, sender Sender, contacts []model.EnrichedContact, signals []Signals) (map[int]generatedDraft, anthropic.TokenUsage, error) {
	items := make([]promptItem, len(contacts))
	for i, c := range contacts {
		items[i] = promptItem{
			Index:             i,
			Name:              c.Candidate.FullName(),
			Title:             c.Candidate.Title,
			Organization:      c.Candidate.Organization,
			Location:          c.Candidate.Location,
			Anchor:            string(signals[i].Anchor),
			AnchorDetail:      signals[i].AnchorDetail,
			Commonality:       string(signals[i].Commonality),
			CommonalityDetail: signals[i].CommonalityDetail,
			MentionResume:     (signals[i].Strong() || req.Targeted) && sender.ResumeLine != "",
		}
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return nil, anthropic.TokenUsage{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(e.systemPrompt(sender)),
		Messages: []anthropic.Message{
			{Role: "user", Content: string(payload)},
		},
	})
	if err != nil {
		return nil, anthropic.TokenUsage{}, err
	}

	drafts, err := parseDrafts(resp.Text())
	if err != nil {
		return nil, resp.Usage, err
	}
	return drafts, resp.Usage, nil
}

func (e *Engine) systemPrompt(sender Sender) string {
	var b strings.Builder
	b.WriteString("You write short, specific cold-outreach emails on behalf of ")
	b.WriteString(sender.Name)
	b.WriteString(".\n\nRules:\n")
	fmt.Fprintf(&b, "- At most %d words per body.\n", e.rules.MaxBodyWords)
	b.WriteString("- Build each message around the single anchor detail provided; do not invent facts.\n")
	b.WriteString("- Mention the commonality naturally when one is provided.\n")
	if sender.ResumeLine != "" {
		fmt.Fprintf(&b, "- When mention_resume is true, weave in: %q.\n", sender.ResumeLine)
	}
	fmt.Fprintf(&b, "- Close with %q followed by the sender's name.\n", e.rules.SignOff)
	b.WriteString("- Never open with any of: ")
	b.WriteString(strings.Join(e.rules.BannedOpeners, "; "))
	b.WriteString(".\n\nInput is a JSON array of contacts. Respond with ONLY a JSON object keyed by each contact's index, e.g. {\"0\": {\"subject\": \"...\", \"body\": \"...\"}}. No other text.")
	return b.String()
}

// parseDrafts extracts the index-keyed drafts from the model response,
// tolerating markdown fences around the JSON.
func parseDrafts(text string) (map[int]generatedDraft, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.New("personalize: no JSON object in response")
	}

	var raw map[string]generatedDraft
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, eris.Wrap(err, "personalize: parse response")
	}

	out := make(map[int]generatedDraft, len(raw))
	for k, v := range raw {
		idx, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[idx] = v
	}
	return out, nil
}
