package planner

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/orchestratord/internal/registry"
)

const (
	DefaultBaseURL   = "https://api.groq.com/openai/v1"
	DefaultModel     = "llama3-8b-8192"
	DefaultMaxTokens = 100
	DefaultRateLimit = 5.0 // requests per second
	DefaultBurst     = 5
)

// LLMConfig configures the chat-completion planner.
type LLMConfig struct {
	// BaseURL of an OpenAI-compatible API (Groq by default).
	BaseURL string

	// Model name sent with every request.
	Model string

	// APIKey authenticates against BaseURL. A missing key is reported on
	// every Plan call rather than at construction.
	APIKey string

	Temperature float64
	MaxTokens   int

	// RateLimit caps outgoing requests per second (<= 0 disables limiting).
	RateLimit float64
	Burst     int

	// PromptTemplate overrides the built-in prompt. Must contain {user_request}.
	PromptTemplate string

	// Tasks are listed in the prompt as the allowed vocabulary.
	Tasks []registry.TaskID
}

// ApplyDefaults sets default values for unset fields.
func (c *LLMConfig) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Burst == 0 {
		c.Burst = DefaultBurst
	}
	if c.PromptTemplate == "" {
		c.PromptTemplate = DefaultPromptTemplate()
	}
}

// LLMPlanner asks a chat-completion model for the plan.
type LLMPlanner struct {
	model       llms.Model
	template    string
	tasks       []registry.TaskID
	temperature float64
	maxTokens   int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewLLMPlanner creates a planner backed by an OpenAI-compatible endpoint.
func NewLLMPlanner(cfg LLMConfig, logger *zap.Logger) (*LLMPlanner, error) {
	cfg.ApplyDefaults()

	var model llms.Model
	if cfg.APIKey != "" {
		llm, err := openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create planner client: %w", err)
		}
		model = llm
	}

	return newLLMPlanner(model, cfg, logger), nil
}

func newLLMPlanner(model llms.Model, cfg LLMConfig, logger *zap.Logger) *LLMPlanner {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &LLMPlanner{
		model:       model,
		template:    cfg.PromptTemplate,
		tasks:       append([]registry.TaskID(nil), cfg.Tasks...),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		limiter:     rate.NewLimiter(limit, cfg.Burst),
		logger:      logger,
	}
}

// Plan implements Planner.
func (p *LLMPlanner) Plan(ctx context.Context, instruction string) ([]registry.TaskID, error) {
	if p.model == nil {
		return nil, fmt.Errorf("%w: missing planner API key", ErrPlanning)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", ErrPlanning, err)
	}

	prompt := renderPrompt(p.template, instruction, p.tasks)

	content, err := llms.GenerateFromSinglePrompt(ctx, p.model, prompt,
		llms.WithTemperature(p.temperature),
		llms.WithMaxTokens(p.maxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: planner request: %v", ErrPlanning, err)
	}

	p.logger.Debug("planner response", zap.String("content", truncate(content, 500)))

	plan, err := ParsePlan(content)
	if err != nil {
		return nil, err
	}
	return plan, nil
}
