package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defacewatch/defacewatch/internal/config"
	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/models"
)

type stubAPI struct {
	completion  string
	totalTokens int
	chatErr     error
	embedding   []float32
	embedErr    error
	lastReq     openai.ChatCompletionRequest
}

func (s *stubAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	if s.chatErr != nil {
		return openai.ChatCompletionResponse{}, s.chatErr
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.completion}},
		},
		Usage: openai.Usage{TotalTokens: s.totalTokens},
	}, nil
}

func (s *stubAPI) CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	if s.embedErr != nil {
		return openai.EmbeddingResponse{}, s.embedErr
	}
	return openai.EmbeddingResponse{
		Data: []openai.Embedding{{Embedding: s.embedding}},
	}, nil
}

func testClient(api chatAPI) *Client {
	return newClient(api, config.AIConfig{
		Model:          "gpt-4o-mini",
		MaxTokens:      512,
		Temperature:    0.1,
		MaxConcurrent:  5,
		MaxPromptChars: 50000,
	})
}

func TestClassifyParsesVerdict(t *testing.T) {
	api := &stubAPI{totalTokens: 321, completion: `Here is my analysis:
{"classification": "defacement", "confidence": 0.95, "reasoning": "hacked-by banner replaced the homepage",
 "risk_indicators": ["hacked by banner"], "recommended_action": "investigate", "severity": "critical"}`}
	c := testClient(api)

	result, err := c.Classify(context.Background(), AnalysisRequest{
		ChangedContent: []string{"HACKED BY EXAMPLE CREW"},
		SiteURL:        "https://example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ClassificationDefacement, result.Label)
	assert.Equal(t, 0.95, result.Confidence)
	assert.Equal(t, "investigate", result.RecommendedAction)
	assert.Equal(t, "critical", result.Severity)
	assert.Equal(t, PromptGeneralAnalysis, result.PromptType)
	assert.Equal(t, "gpt-4o-mini", result.Model)
	assert.Equal(t, 321, result.TokensUsed)
	assert.False(t, result.Timestamp.IsZero())
}

func TestClassifyWrapsAPIError(t *testing.T) {
	c := testClient(&stubAPI{chatErr: errors.New("rate limited")})

	_, err := c.Classify(context.Background(), AnalysisRequest{SiteURL: "https://example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, dferrors.ErrCollaborator)
	assert.True(t, dferrors.IsRetryable(err))
}

func TestParseVerdictFallsBackOnGarbage(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no json at all", "I cannot classify this content."},
		{"broken json", `{"classification": "defacement", "confidence":`},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseVerdict(tt.content)
			assert.Equal(t, models.ClassificationUnclear, result.Label)
			assert.Equal(t, 0.3, result.Confidence)
			assert.Equal(t, "model response could not be parsed", result.Reasoning)
		})
	}
}

func TestParseVerdictNormalizesFields(t *testing.T) {
	result := parseVerdict(`{"classification": "COMPROMISED", "confidence": 1.7,
		"recommended_action": "panic", "severity": "apocalyptic"}`)

	assert.Equal(t, models.ClassificationUnclear, result.Label) // unknown label collapses
	assert.Equal(t, 1.0, result.Confidence)                     // clamped
	assert.Equal(t, "monitor", result.RecommendedAction)
	assert.Equal(t, "medium", result.Severity)

	result = parseVerdict(`{"classification": "Benign", "confidence": -0.4}`)
	assert.Equal(t, models.ClassificationBenign, result.Label)
	assert.Equal(t, 0.0, result.Confidence)
}

func TestSelectPrompt(t *testing.T) {
	tests := []struct {
		name string
		req  AnalysisRequest
		want PromptType
	}{
		{
			name: "script tag selects injection",
			req:  AnalysisRequest{ChangedContent: []string{`<SCRIPT src="//evil.tk/x.js">`}},
			want: PromptContentInjection,
		},
		{
			name: "javascript uri selects injection",
			req:  AnalysisRequest{ChangedContent: []string{`<a href="javascript:void(0)">`}},
			want: PromptContentInjection,
		},
		{
			name: "visual change flag selects visual",
			req: AnalysisRequest{
				ChangedContent: []string{"completely new page"},
				SiteContext:    map[string]interface{}{"visual_change": true},
			},
			want: PromptVisualDefacement,
		},
		{
			name: "plain text selects general",
			req:  AnalysisRequest{ChangedContent: []string{"new product announcement"}},
			want: PromptGeneralAnalysis,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectPrompt(tt.req))
		})
	}
}

func TestBuildPromptTruncatesToBudget(t *testing.T) {
	api := &stubAPI{completion: `{"classification": "benign", "confidence": 0.9}`}
	c := newClient(api, config.AIConfig{
		Model:          "gpt-4o-mini",
		MaxTokens:      512,
		MaxConcurrent:  1,
		MaxPromptChars: 2000,
	})

	_, err := c.Classify(context.Background(), AnalysisRequest{
		ChangedContent: []string{strings.Repeat("x", 10000)},
		SiteURL:        "https://example.com",
	})
	require.NoError(t, err)

	require.Len(t, api.lastReq.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, api.lastReq.Messages[0].Role)
	assert.LessOrEqual(t, len(api.lastReq.Messages[1].Content), 2000)
}

func TestBuildPromptIncludesPriorVerdict(t *testing.T) {
	api := &stubAPI{completion: `{"classification": "benign", "confidence": 0.9}`}
	c := testClient(api)

	_, err := c.Classify(context.Background(), AnalysisRequest{
		ChangedContent: []string{"minor text edit"},
		SiteURL:        "https://example.com",
		Prior:          &ClassificationResult{Label: models.ClassificationBenign, Confidence: 0.8},
	})
	require.NoError(t, err)
	assert.Contains(t, api.lastReq.Messages[1].Content, "Previous verdict for this site: benign (confidence 0.80)")
}

func TestEmbed(t *testing.T) {
	api := &stubAPI{embedding: []float32{0.1, 0.2, 0.3}}
	c := testClient(api)

	vec, err := c.Embed(context.Background(), "some page text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)

	c = testClient(&stubAPI{embedErr: errors.New("boom")})
	_, err = c.Embed(context.Background(), "some page text")
	require.Error(t, err)
	assert.ErrorIs(t, err, dferrors.ErrCollaborator)
}
