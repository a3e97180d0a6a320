package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"datahound/internal/model"
)

// Judge is the reasoning backend behind intent parsing, relevance
// scoring, schema detection, architecture advice, and chat. One
// implementation covers both OpenAI and OpenRouter because they share
// a wire format.
type Judge interface {
	// Name returns the provider name
	Name() string

	// ParseIntent extracts the target variable, required features, and
	// search queries from a free-form prompt
	ParseIntent(ctx context.Context, prompt string) (*model.Intent, error)

	// ScoreRelevance rates one discovered source against the intent
	ScoreRelevance(ctx context.Context, req RelevanceRequest) (*model.Judgment, error)

	// DetectSchema checks a scraped sample for the required features
	DetectSchema(ctx context.Context, req SchemaRequest) (*SchemaReport, error)

	// AdviseArchitecture picks a network and hyperparameters for a task
	AdviseArchitecture(ctx context.Context, req ArchRequest) (*ArchAdvice, error)

	// Chat holds a short guided conversation about the ML task
	Chat(ctx context.Context, req ChatRequest) (*ChatReply, error)

	// IsAvailable checks whether the provider is configured and reachable
	IsAvailable(ctx context.Context) bool
}

// RelevanceRequest describes one discovered source to rate.
type RelevanceRequest struct {
	// Target is what the user wants to predict
	Target string

	// Features are the required data points
	Features []string

	// Title of the discovered source
	Title string

	// Snippet is the search-result excerpt; clipped before prompting
	Snippet string
}

// SchemaRequest carries a scraped content sample for feature detection.
type SchemaRequest struct {
	Target   string
	Features []string

	// Sample is the scraped text; clipped before prompting
	Sample string
}

// SchemaReport is the judge's reading of a scraped sample.
type SchemaReport struct {
	FeaturesFound []string `json:"features_found"`
	QualityRating int      `json:"quality_rating"`
}

// ArchRequest describes a training task for architecture selection.
type ArchRequest struct {
	// Task is the classification task description
	Task string

	// Priority is "speed", "accuracy", or "balanced"
	Priority string

	// Dataset is an optional dataset title for context
	Dataset string

	// Classes is the class count, 0 when unknown
	Classes int

	// Catalog lists the architectures the judge may pick from
	Catalog []ArchOption
}

// ArchOption is one selectable architecture as shown to the judge.
type ArchOption struct {
	Key      string
	Name     string
	Params   string
	Speed    string
	Accuracy string
}

// ArchAdvice is the judge's architecture pick. Zero hyperparameters
// mean the judge omitted them; callers fill catalog defaults.
// FreezeBackbone is a pointer for the same reason.
type ArchAdvice struct {
	Architecture   string  `json:"architecture"`
	Reason         string  `json:"reason"`
	LearningRate   float64 `json:"learning_rate"`
	Epochs         int     `json:"epochs"`
	BatchSize      int     `json:"batch_size"`
	FreezeBackbone *bool   `json:"freeze_backbone"`
}

// ChatTurn is one message of prior conversation.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries the new user message plus prior turns.
type ChatRequest struct {
	Message string
	History []ChatTurn
}

// ChatReply is the assistant's structured answer.
type ChatReply struct {
	Message              string   `json:"message"`
	Suggestions          []string `json:"suggestions"`
	ShouldStartDiscovery bool     `json:"should_start_discovery"`
	TaskDescription      string   `json:"task_description"`
}

// FallbackReply degrades chat gracefully when the judge is unreachable.
func FallbackReply() *ChatReply {
	return &ChatReply{
		Message:     "I understand! Let me help you set up the right ML pipeline for this.",
		Suggestions: []string{"Find datasets", "Start discovery", "Configure"},
	}
}

// Config holds judge configuration.
type Config struct {
	// Provider name: "openai", "openrouter", ""
	Provider string

	// Model for intent parsing, chat, and architecture advice
	Model string

	// ScoringModel for relevance and schema calls; falls back to Model
	ScoringModel string

	// APIKey for the provider
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout per API request
	Timeout time.Duration

	// MaxTokens for response generation
	MaxTokens int
}

// Prompt sizes. Snippets and samples are clipped so one oversized page
// cannot blow the token budget.
const (
	maxSnippetLen = 1000
	maxSampleLen  = 2000
)

const chatPrompt = `You are an AutoML assistant helping users build machine learning models. Your job is to:
1. Understand what the user wants to predict or classify
2. Ask clarifying questions if needed
3. Guide them toward starting the data discovery process

Keep responses SHORT (1-2 sentences). Be conversational and helpful.

Return ONLY valid JSON:
{
  "message": "your response to the user",
  "suggestions": ["2-4 quick action buttons for the user"],
  "should_start_discovery": true/false,
  "task_description": "if should_start_discovery is true, describe the ML task clearly"
}

Set should_start_discovery to true when:
- User explicitly says "start", "find data", "search", "connect", "let's go", "begin"
- User has clearly described what they want to predict AND wants to proceed

Suggestion examples: "Find datasets", "Start discovery", "Tell me more", "Image classification", "Text analysis"`

const intentPrompt = `You are an expert data discovery assistant. Extract structured information from the user's request.

Return ONLY valid JSON with this exact structure:
{
  "target_variable": "what the user wants to predict/analyze",
  "feature_requirements": ["list", "of", "required", "data", "points"],
  "search_queries": ["3-5", "specific", "search", "queries", "to", "find", "this", "data"]
}

Generate search queries that target:
- Government APIs and datasets
- Academic/research databases
- Open data portals
- Kaggle datasets
- GitHub repositories with relevant data

Be specific and use terms like "API", "dataset", "CSV", "open data" in queries.`

func relevancePrompt(target string, features []string) string {
	return fmt.Sprintf(`You are a data source evaluator. Rate how relevant this source is for the user's data needs.

User needs:
- Target: %s
- Required features: %s

Return ONLY valid JSON:
{
  "relevance_score": <number 0-100>,
  "source_type": "<API|Dataset|Article|Irrelevant>"
}

Score guidelines:
- 90-100: Perfect match with target and features
- 70-89: Good match, has most required data
- 40-69: Partial match, missing some features
- 0-39: Poor match or irrelevant`, target, strings.Join(features, ", "))
}

func schemaPrompt(target string, features []string) string {
	return fmt.Sprintf(`You are a data schema analyzer. Determine if this scraped content contains the required features.

User needs:
- Target: %s
- Required features: %s

Analyze the sample and return ONLY valid JSON:
{
  "features_found": ["list", "of", "matching", "features"],
  "quality_rating": <number 0-100>
}

Quality rating guidelines:
- 90-100: Complete, clean, well-structured data
- 70-89: Good data with minor issues
- 40-69: Usable but requires significant cleaning
- 0-39: Poor quality or incomplete`, target, strings.Join(features, ", "))
}

func archPrompt(req ArchRequest) string {
	var options strings.Builder
	for _, opt := range req.Catalog {
		fmt.Fprintf(&options, "- %s: %s (%s params, %s, %s accuracy)\n", opt.Key, opt.Name, opt.Params, opt.Speed, opt.Accuracy)
	}

	priority := req.Priority
	if priority == "" {
		priority = "balanced"
	}

	dataset := ""
	if req.Dataset != "" {
		dataset = "\nDataset: " + req.Dataset
		if req.Classes > 0 {
			dataset += fmt.Sprintf(" (%d classes)", req.Classes)
		}
	}

	return fmt.Sprintf(`Select the best CNN architecture for this classification task.

TASK: %s
PRIORITY: %s%s

ARCHITECTURES:
%s
HYPERPARAMETER GUIDELINES:
- Simple tasks (2-10 classes): 10-15 epochs
- Complex/fine-grained (species, medical): 15-25 epochs
- learning_rate: 0.001 for small models, 0.0001 for larger models
- freeze_backbone: false for complex classification, true for simple tasks

Return JSON only:
{"architecture": "key", "reason": "brief reason", "learning_rate": 0.001, "epochs": 15, "batch_size": 32, "freeze_backbone": false}`,
		req.Task, priority, dataset, options.String())
}

// decodeReply unmarshals judge output into out, tolerating the markdown
// code fences some models wrap around JSON even in json_object mode.
func decodeReply(content string, out any) error {
	body := content
	if i := strings.Index(body, "```json"); i >= 0 {
		body = body[i+len("```json"):]
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
	} else if i := strings.Index(body, "```"); i >= 0 {
		body = body[i+len("```"):]
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
	}

	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), out); err != nil {
		return fmt.Errorf("malformed judge reply: %w", err)
	}
	return nil
}

// clampScore forces a model-reported score into [0, 100].
func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// clip truncates s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[:n]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
