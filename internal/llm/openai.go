package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"datahound/internal/model"
)

// OpenAIJudge implements Judge over the OpenAI chat completions API.
// OpenRouter speaks the same wire format, so the factory reuses this
// type with a different base URL and name.
type OpenAIJudge struct {
	client *openai.Client
	config Config
	name   string
}

// NewOpenAIJudge creates a judge backed by an OpenAI-compatible endpoint.
func NewOpenAIJudge(name string, config Config) (*OpenAIJudge, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", name)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIJudge{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		name:   name,
	}, nil
}

// Name returns the provider name.
func (j *OpenAIJudge) Name() string {
	return j.name
}

// IsAvailable checks that the endpoint answers with the configured key.
func (j *OpenAIJudge) IsAvailable(ctx context.Context) bool {
	_, err := j.client.ListModels(ctx)
	return err == nil
}

// ParseIntent extracts the discovery plan from a free-form prompt.
func (j *OpenAIJudge) ParseIntent(ctx context.Context, prompt string) (*model.Intent, error) {
	content, err := j.send(ctx, openai.ChatCompletionRequest{
		Model: j.model(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: intentPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("parse intent: %w", err)
	}

	var raw struct {
		TargetVariable      string   `json:"target_variable"`
		FeatureRequirements []string `json:"feature_requirements"`
		SearchQueries       []string `json:"search_queries"`
	}
	if err := decodeReply(content, &raw); err != nil {
		return nil, fmt.Errorf("parse intent: %w", err)
	}
	if raw.TargetVariable == "" {
		return nil, fmt.Errorf("parse intent: judge returned no target variable")
	}

	return &model.Intent{
		Target:        raw.TargetVariable,
		Features:      raw.FeatureRequirements,
		SearchQueries: raw.SearchQueries,
	}, nil
}

// ScoreRelevance rates one discovered source against the intent.
func (j *OpenAIJudge) ScoreRelevance(ctx context.Context, req RelevanceRequest) (*model.Judgment, error) {
	content, err := j.send(ctx, openai.ChatCompletionRequest{
		Model: j.scoringModel(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: relevancePrompt(req.Target, req.Features)},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Title: %s\n\nSnippet: %s", req.Title, clip(req.Snippet, maxSnippetLen))},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("score relevance: %w", err)
	}

	var judgment model.Judgment
	if err := decodeReply(content, &judgment); err != nil {
		return nil, fmt.Errorf("score relevance: %w", err)
	}
	judgment.Score = clampScore(judgment.Score)
	if judgment.SourceType == "" {
		judgment.SourceType = model.SourceIrrelevant
	}
	return &judgment, nil
}

// DetectSchema checks a scraped sample for the required features.
func (j *OpenAIJudge) DetectSchema(ctx context.Context, req SchemaRequest) (*SchemaReport, error) {
	content, err := j.send(ctx, openai.ChatCompletionRequest{
		Model: j.scoringModel(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: schemaPrompt(req.Target, req.Features)},
			{Role: openai.ChatMessageRoleUser, Content: "Analyze this data sample:\n\n" + clip(req.Sample, maxSampleLen)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("detect schema: %w", err)
	}

	var report SchemaReport
	if err := decodeReply(content, &report); err != nil {
		return nil, fmt.Errorf("detect schema: %w", err)
	}
	report.QualityRating = clampScore(report.QualityRating)
	return &report, nil
}

// AdviseArchitecture picks a network and hyperparameters for a task.
func (j *OpenAIJudge) AdviseArchitecture(ctx context.Context, req ArchRequest) (*ArchAdvice, error) {
	content, err := j.send(ctx, openai.ChatCompletionRequest{
		Model:       j.model(),
		Temperature: 0.1,
		MaxTokens:   300,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: archPrompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("advise architecture: %w", err)
	}

	var advice ArchAdvice
	if err := decodeReply(content, &advice); err != nil {
		return nil, fmt.Errorf("advise architecture: %w", err)
	}
	return &advice, nil
}

// Chat holds a short guided conversation about the ML task.
func (j *OpenAIJudge) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: chatPrompt,
	})
	for _, turn := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	content, err := j.send(ctx, openai.ChatCompletionRequest{
		Model:    j.model(),
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}

	var reply ChatReply
	if err := decodeReply(content, &reply); err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	if reply.Message == "" {
		reply.Message = "I understand. How can I help you build your model?"
	}
	if len(reply.Suggestions) == 0 {
		reply.Suggestions = []string{"Find datasets", "Tell me more"}
	}
	return &reply, nil
}

// send applies the call timeout and shared request policy, then runs
// one completion and returns the trimmed content.
func (j *OpenAIJudge) send(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if req.MaxTokens == 0 && j.config.MaxTokens > 0 {
		req.MaxTokens = j.config.MaxTokens
	}
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}

	timeout := j.config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := j.client.CreateChatCompletion(ctxWithTimeout, req)
	if err != nil {
		return "", fmt.Errorf("%s API error: %w", j.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in %s response", j.name)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty content in %s response", j.name)
	}
	return content, nil
}

// model returns the configured default model.
func (j *OpenAIJudge) model() string {
	if j.config.Model != "" {
		return j.config.Model
	}
	return openai.GPT4oMini
}

// scoringModel returns the cheaper scoring model when configured.
func (j *OpenAIJudge) scoringModel() string {
	if j.config.ScoringModel != "" {
		return j.config.ScoringModel
	}
	return j.model()
}
