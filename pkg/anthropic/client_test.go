package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "hello "},
		{Type: "thinking", Text: "ignored"},
		{Type: "text", Text: "world"},
	}}
	assert.Equal(t, "hello world", resp.Text())

	assert.Empty(t, (&MessageResponse{}).Text())
}

func TestTokenUsage_Add(t *testing.T) {
	u := TokenUsage{InputTokens: 100, OutputTokens: 50}
	u.Add(TokenUsage{InputTokens: 10, OutputTokens: 5, CacheReadInputTokens: 3})

	assert.Equal(t, int64(110), u.InputTokens)
	assert.Equal(t, int64(55), u.OutputTokens)
	assert.Equal(t, int64(3), u.CacheReadInputTokens)
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("You write outreach emails.")
	require.Len(t, blocks, 1)
	assert.Equal(t, "You write outreach emails.", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "5m", blocks[0].CacheControl.TTL)
}

func TestToSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
}

func TestToSDKSystemBlocks(t *testing.T) {
	blocks := toSDKSystemBlocks([]SystemBlock{
		{Text: "plain"},
		{Text: "cached", CacheControl: &CacheControl{TTL: "5m"}},
	})
	require.Len(t, blocks, 2)
	assert.Equal(t, "plain", blocks[0].Text)
	assert.Equal(t, "cached", blocks[1].Text)
}

func TestMockClient(t *testing.T) {
	client := new(MockClient)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&MessageResponse{
		Content: []ContentBlock{{Type: "text", Text: "draft body"}},
		Usage:   TokenUsage{InputTokens: 12, OutputTokens: 34},
	}, nil)

	resp, err := client.CreateMessage(context.Background(), MessageRequest{Model: "claude-haiku-4-5-20251001"})
	require.NoError(t, err)
	assert.Equal(t, "draft body", resp.Text())
	client.AssertExpectations(t)
}
