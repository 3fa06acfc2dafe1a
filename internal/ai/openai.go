package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/defacewatch/defacewatch/internal/config"
	"github.com/defacewatch/defacewatch/internal/dferrors"
	"github.com/defacewatch/defacewatch/internal/models"
)

// chatAPI is the slice of the OpenAI client the classifier uses. Tests
// substitute a stub.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Client classifies change sets through the OpenAI chat API. Calls are
// bounded by a concurrency semaphore and a minimum-interval rate limiter.
type Client struct {
	api            chatAPI
	model          string
	maxTokens      int
	temperature    float32
	maxPromptChars int

	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// NewClient builds a classifier from settings.
func NewClient(cfg config.AIConfig) *Client {
	return newClient(openai.NewClient(cfg.APIKey), cfg)
}

func newClient(api chatAPI, cfg config.AIConfig) *Client {
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Client{
		api:            api,
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		temperature:    float32(cfg.Temperature),
		maxPromptChars: cfg.MaxPromptChars,
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
		limiter:        rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Classify submits one change set and parses the model's verdict. A
// malformed response degrades to an unclear verdict rather than an error.
func (c *Client) Classify(ctx context.Context, req AnalysisRequest) (*ClassificationResult, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, dferrors.New(dferrors.KindCollab, "ai.Classify", err)
	}
	defer c.sem.Release(1)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, dferrors.New(dferrors.KindCollab, "ai.Classify", err)
	}

	promptType := req.PromptType
	if promptType == "" {
		promptType = SelectPrompt(req)
	}
	prompt := c.buildPrompt(req, promptType)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, dferrors.New(dferrors.KindCollab, "ai.Classify", err)
	}
	if len(resp.Choices) == 0 {
		return nil, dferrors.New(dferrors.KindCollab, "ai.Classify", fmt.Errorf("empty completion response"))
	}

	result := parseVerdict(resp.Choices[0].Message.Content)
	result.PromptType = promptType
	result.Model = c.model
	result.TokensUsed = resp.Usage.TotalTokens
	result.Timestamp = time.Now()
	return result, nil
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, dferrors.New(dferrors.KindCollab, "ai.Embed", err)
	}
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.SmallEmbedding3,
		Input: []string{text},
	})
	if err != nil {
		return nil, dferrors.New(dferrors.KindCollab, "ai.Embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, dferrors.New(dferrors.KindCollab, "ai.Embed", fmt.Errorf("empty embedding response"))
	}
	return resp.Data[0].Embedding, nil
}

// buildPrompt renders the instruction block plus the change set, truncated
// to the configured prompt budget.
func (c *Client) buildPrompt(req AnalysisRequest, promptType PromptType) string {
	var b strings.Builder
	b.WriteString(promptTemplates[promptType])
	b.WriteString("\n\nSite: ")
	b.WriteString(req.SiteURL)
	if name, ok := req.SiteContext["name"].(string); ok && name != "" {
		b.WriteString(" (")
		b.WriteString(name)
		b.WriteString(")")
	}

	if req.Prior != nil {
		fmt.Fprintf(&b, "\n\nPrevious verdict for this site: %s (confidence %.2f)", req.Prior.Label, req.Prior.Confidence)
	}

	b.WriteString("\n\nChanged content:\n")
	for i, block := range req.ChangedContent {
		fmt.Fprintf(&b, "--- change %d ---\n%s\n", i+1, block)
	}
	if len(req.StaticContext) > 0 {
		b.WriteString("\nUnchanged context:\n")
		for _, block := range req.StaticContext {
			b.WriteString(block)
			b.WriteString("\n")
		}
	}

	prompt := b.String()
	if c.maxPromptChars > 0 && len(prompt) > c.maxPromptChars {
		prompt = prompt[:c.maxPromptChars]
	}
	return prompt
}

type verdictPayload struct {
	Classification    string   `json:"classification"`
	Confidence        float64  `json:"confidence"`
	Reasoning         string   `json:"reasoning"`
	RiskIndicators    []string `json:"risk_indicators"`
	BenignIndicators  []string `json:"benign_indicators"`
	RecommendedAction string   `json:"recommended_action"`
	Severity          string   `json:"severity"`
}

// parseVerdict decodes the model response. Anything unparseable collapses
// to an unclear verdict at low confidence so one bad completion never
// stalls the pipeline.
func parseVerdict(content string) *ClassificationResult {
	fallback := &ClassificationResult{
		Label:      models.ClassificationUnclear,
		Confidence: 0.3,
		Reasoning:  "model response could not be parsed",
	}

	// Models occasionally wrap the JSON in prose or a code fence.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		log.Warn().Str("response", truncate(content, 200)).Msg("AI verdict missing JSON object")
		return fallback
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode AI verdict")
		return fallback
	}

	label := models.Classification(strings.ToLower(strings.TrimSpace(payload.Classification)))
	switch label {
	case models.ClassificationBenign, models.ClassificationDefacement, models.ClassificationUnclear:
	default:
		label = models.ClassificationUnclear
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	action := strings.ToLower(strings.TrimSpace(payload.RecommendedAction))
	switch action {
	case "monitor", "alert", "investigate", "ignore":
	default:
		action = "monitor"
	}

	severity := strings.ToLower(strings.TrimSpace(payload.Severity))
	switch severity {
	case "low", "medium", "high", "critical":
	default:
		severity = "medium"
	}

	return &ClassificationResult{
		Label:             label,
		Confidence:        confidence,
		Reasoning:         payload.Reasoning,
		RiskIndicators:    payload.RiskIndicators,
		BenignIndicators:  payload.BenignIndicators,
		RecommendedAction: action,
		Severity:          severity,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func containsAnyFold(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
