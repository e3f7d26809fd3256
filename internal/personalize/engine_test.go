package personalize

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string, usage anthropic.TokenUsage) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   usage,
	}
}

func testContacts() []model.EnrichedContact {
	return []model.EnrichedContact{
		{
			Candidate: model.CandidateRecord{
				FirstName: "Ada", LastName: "Lovelace",
				Title: "VP Engineering", Organization: "Acme",
				WorkHistory: []model.Position{{Title: "VP Engineering", Organization: "Acme", StartYear: 2018}},
			},
			Email: "ada@acme.com", Confidence: model.ConfidenceVerified,
		},
		{
			Candidate: model.CandidateRecord{
				FirstName: "Grace", LastName: "Hopper",
				Title: "CTO", Organization: "Globex",
			},
			Email: "grace@globex.com", Confidence: model.ConfidenceUnverified,
		},
	}
}

func fixedClock() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

func newTestEngine(llm anthropic.Client) *Engine {
	return New(llm, nil, Config{Model: "claude-sonnet-4-5-20250929"}).WithNow(fixedClock)
}

func TestPersonalize_HappyPath(t *testing.T) {
	llm := &mockLLM{}
	var captured anthropic.MessageRequest
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(anthropic.MessageRequest) }).
		Return(textResponse(`{
			"0": {"subject": "Eight years at Acme", "body": "Hi Ada,\n\nEight years building Acme's platform is rare. Worth a quick chat?\n\nBest,\nSam"},
			"1": {"subject": "Globex question", "body": "Hi Grace,\n\nYour work as CTO at Globex stood out. Open to fifteen minutes?\n\nBest,\nSam"}
		}`, anthropic.TokenUsage{InputTokens: 900, OutputTokens: 200}), nil)

	res := newTestEngine(llm).Personalize(context.Background(), model.SearchRequest{ID: "req-1"}, Sender{Name: "Sam"}, testContacts())

	require.Len(t, res.Drafts, 2)
	assert.Equal(t, "Eight years at Acme", res.Drafts[0].Subject)
	assert.Equal(t, model.DraftGenerated, res.Drafts[0].State)
	assert.False(t, res.Drafts[0].Fallback)
	assert.Equal(t, model.AnchorTenure, res.Drafts[0].Anchor)
	assert.Equal(t, model.AnchorTitle, res.Drafts[1].Anchor)
	assert.Zero(t, res.Fallbacks)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, int64(900), res.Usage.InputTokens)
	// 900 input at $3/M plus 200 output at $15/M.
	assert.InDelta(t, 0.0057, res.CostUSD, 1e-12)

	// One call for the whole batch, with both contacts in the payload.
	llm.AssertNumberOfCalls(t, "CreateMessage", 1)
	require.Len(t, captured.Messages, 1)
	var items []promptItem
	require.NoError(t, json.Unmarshal([]byte(captured.Messages[0].Content), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "Ada Lovelace", items[0].Name)
	assert.Equal(t, 1, items[1].Index)
	require.Len(t, captured.System, 1)
	assert.NotNil(t, captured.System[0].CacheControl)
}

func TestPersonalize_CallFailureFallsBackForAll(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, eris.New("anthropic: create message: overloaded"))

	res := newTestEngine(llm).Personalize(context.Background(), model.SearchRequest{ID: "req-1"}, Sender{Name: "Sam"}, testContacts())

	require.Len(t, res.Drafts, 2)
	assert.Equal(t, 2, res.Fallbacks)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "personalize", res.Warnings[0].Stage)
	for _, d := range res.Drafts {
		assert.Equal(t, model.DraftGenerated, d.State)
		assert.True(t, d.Fallback)
		assert.NotEmpty(t, d.Subject)
		assert.NotEmpty(t, d.Body)
	}
}

func TestPersonalize_MissingIndexGetsTemplate(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"0": {"subject": "Eight years at Acme", "body": "Hi Ada,\n\nEight years at Acme is rare. Chat?\n\nBest,\nSam"}}`, anthropic.TokenUsage{}), nil)

	res := newTestEngine(llm).Personalize(context.Background(), model.SearchRequest{ID: "req-1"}, Sender{Name: "Sam"}, testContacts())

	require.Len(t, res.Drafts, 2)
	assert.False(t, res.Drafts[0].Fallback)
	assert.True(t, res.Drafts[1].Fallback)
	assert.NotEmpty(t, res.Drafts[1].Body)
	assert.Equal(t, 1, res.Fallbacks)
}

func TestPersonalize_BlankBodyGetsTemplate(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{
			"0": {"subject": "Eight years at Acme", "body": "  "},
			"1": {"subject": "Globex question", "body": "Hi Grace,\n\nYour work as CTO stood out. Chat?\n\nBest,\nSam"}
		}`, anthropic.TokenUsage{}), nil)

	res := newTestEngine(llm).Personalize(context.Background(), model.SearchRequest{ID: "req-1"}, Sender{Name: "Sam"}, testContacts())

	assert.True(t, res.Drafts[0].Fallback)
	assert.False(t, res.Drafts[1].Fallback)
}

func TestPersonalize_BannedOpenerRewritten(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{
			"0": {"subject": "Acme", "body": "Hi Ada,\n\nI hope this email finds you well. Quick question about your platform.\n\nBest,\nSam"},
			"1": {"subject": "Globex", "body": "Hi Grace,\n\nYour work as CTO stood out. Chat?\n\nBest,\nSam"}
		}`, anthropic.TokenUsage{}), nil)

	res := newTestEngine(llm).Personalize(context.Background(), model.SearchRequest{ID: "req-1"}, Sender{Name: "Sam"}, testContacts())

	assert.NotContains(t, res.Drafts[0].Body, "finds you well")
	assert.Contains(t, res.Drafts[0].Body, "8 years at Acme")
	assert.Contains(t, res.Drafts[0].Body, "Quick question about your platform.")
	assert.False(t, res.Drafts[0].Fallback)
}

func TestPersonalize_DuplicateOpeningsDeduped(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{
			"0": {"subject": "Acme", "body": "Hi Ada,\n\nGreat to see your team growing. More soon.\n\nBest,\nSam"},
			"1": {"subject": "Globex", "body": "Hi Grace,\n\nGreat to see your team growing. More soon.\n\nBest,\nSam"}
		}`, anthropic.TokenUsage{}), nil)

	res := newTestEngine(llm).Personalize(context.Background(), model.SearchRequest{ID: "req-1"}, Sender{Name: "Sam"}, testContacts())

	opener := func(body string) string {
		_, rest := splitGreeting(body)
		return normalizeSentence(firstSentence(rest))
	}
	assert.NotEqual(t, opener(res.Drafts[0].Body), opener(res.Drafts[1].Body))
}

func TestPersonalize_RepeatedAnchorDeduped(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{
			"0": {"subject": "Acme", "body": "Hi Ada,\n\n8 years at Acme is rare. Few people last 8 years at Acme. Chat?\n\nBest,\nSam"},
			"1": {"subject": "Globex", "body": "Hi Grace,\n\nYour work as CTO stood out. Chat?\n\nBest,\nSam"}
		}`, anthropic.TokenUsage{}), nil)

	res := newTestEngine(llm).Personalize(context.Background(), model.SearchRequest{ID: "req-1"}, Sender{Name: "Sam"}, testContacts())

	body := strings.ToLower(res.Drafts[0].Body)
	assert.Equal(t, 1, strings.Count(body, "8 years at acme"))
	assert.Contains(t, res.Drafts[0].Body, "Chat?")
}

func TestPersonalize_ResumeMentionOnTargetedRequest(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{
			"0": {"subject": "Acme", "body": "Hi Ada,\n\nEight years at Acme is rare. Chat?\n\nBest,\nSam"},
			"1": {"subject": "Globex", "body": "Hi Grace,\n\nYour work as CTO stood out. Chat?\n\nBest,\nSam"}
		}`, anthropic.TokenUsage{}), nil)

	sender := Sender{Name: "Sam", ResumeLine: "I led platform sales at Initech for six years."}
	req := model.SearchRequest{ID: "req-1", Targeted: true}

	res := newTestEngine(llm).Personalize(context.Background(), req, sender, testContacts())

	for _, d := range res.Drafts {
		assert.Contains(t, d.Body, "For context: I led platform sales at Initech for six years.")
	}
}

func TestPersonalize_FencedJSONTolerated(t *testing.T) {
	llm := &mockLLM{}
	llm.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("```json\n{\"0\": {\"subject\": \"Acme\", \"body\": \"Hi Ada,\\n\\nEight years at Acme is rare. Chat?\\n\\nBest,\\nSam\"}}\n```", anthropic.TokenUsage{}), nil)

	res := newTestEngine(llm).Personalize(context.Background(), model.SearchRequest{ID: "req-1"}, Sender{Name: "Sam"}, testContacts()[:1])

	require.Len(t, res.Drafts, 1)
	assert.False(t, res.Drafts[0].Fallback)
	assert.Equal(t, "Acme", res.Drafts[0].Subject)
}

func TestPersonalize_EmptyBatch(t *testing.T) {
	llm := &mockLLM{}
	res := newTestEngine(llm).Personalize(context.Background(), model.SearchRequest{ID: "req-1"}, Sender{}, nil)
	assert.Empty(t, res.Drafts)
	llm.AssertNumberOfCalls(t, "CreateMessage", 0)
}

func TestParseDrafts(t *testing.T) {
	drafts, err := parseDrafts(`Sure, here you go: {"0": {"subject": "s", "body": "b"}, "2": {"subject": "s2", "body": "b2"}}`)
	require.NoError(t, err)
	assert.Len(t, drafts, 2)
	assert.Equal(t, "b2", drafts[2].Body)

	_, err = parseDrafts("no json here")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no JSON object"))

	_, err = parseDrafts(`{"0": "not an object"}`)
	require.Error(t, err)
}
