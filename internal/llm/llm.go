package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ubuygold/puzzlebox/internal/config"
)

var (
	// ErrAuthentication is returned when the provider for a model has no credentials configured.
	ErrAuthentication = errors.New("authentication_error")
	// ErrUpstream is returned when the provider call fails or returns an error status.
	ErrUpstream = errors.New("upstream provider error")
	// ErrModelNotSupported is returned for models no provider serves.
	ErrModelNotSupported = errors.New("model not supported")
)

// GenerateSystemPrompt is prepended to every generate request.
const GenerateSystemPrompt = "你是一个内容生成助手，擅长生成结构化的内容。请严格按照用户指定的格式生成内容，不要添加额外的解释或说明。"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role" binding:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// Params are the sampling parameters sent to the provider.
type Params struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Choice is one completion alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the provider-independent reply shape.
type Completion struct {
	ID      string   `json:"id,omitempty"`
	Object  string   `json:"object,omitempty"`
	Created int64    `json:"created,omitempty"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Text returns the content of the first choice.
func (c *Completion) Text() (string, bool) {
	if c == nil || len(c.Choices) == 0 {
		return "", false
	}
	return c.Choices[0].Message.Content, true
}

// Provider talks to one upstream chat-completion API.
type Provider interface {
	Complete(ctx context.Context, model string, messages []Message, params Params) (*Completion, error)
}

type providerSpec struct {
	name   string
	models []string
	// match reports whether the provider serves model and returns the name to send upstream.
	match func(model string) (string, bool)
}

var providerSpecs = []providerSpec{
	{
		name:   "deepseek",
		models: []string{"deepseek-chat", "deepseek-coder"},
		match: func(model string) (string, bool) {
			return model, strings.HasPrefix(model, "deepseek")
		},
	},
	{
		name: "openrouter",
		models: []string{
			"openrouter:anthropic/claude-3-opus",
			"openrouter:anthropic/claude-3-sonnet",
			"openrouter:anthropic/claude-3-haiku",
			"openrouter:openai/gpt-4o",
			"openrouter:openai/gpt-4-turbo",
			"openrouter:google/gemini-pro",
		},
		match: func(model string) (string, bool) {
			return strings.CutPrefix(model, "openrouter:")
		},
	},
	{
		name:   "qianwen",
		models: []string{"qianwen-max", "qianwen-plus", "qianwen-turbo"},
		match: func(model string) (string, bool) {
			return model, strings.HasPrefix(model, "qianwen")
		},
	},
	{
		name:   "gemini",
		models: []string{"gemini-1.5-flash", "gemini-1.5-pro"},
		match: func(model string) (string, bool) {
			return model, strings.HasPrefix(model, "gemini")
		},
	},
}

// Service routes chat requests to the provider matching the model name.
type Service struct {
	providers    map[string]Provider
	defaultModel string
	defaults     config.LLMParams
	logger       *slog.Logger
	closers      []func() error
}

// NewService builds a provider for every configured credential. Providers
// without credentials are left out; requests for their models fail with
// ErrAuthentication.
func NewService(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Service, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid llm timeout %q: %w", cfg.Timeout, err)
	}

	s := &Service{
		providers:    make(map[string]Provider),
		defaultModel: cfg.DefaultModel,
		defaults:     cfg.DefaultParams,
		logger:       logger.With("component", "llm"),
	}

	for _, spec := range providerSpecs {
		key := cfg.APIKeys[spec.name]
		if key == "" {
			continue
		}
		baseURL := cfg.BaseURLs[spec.name]
		switch spec.name {
		case "deepseek":
			s.providers[spec.name] = newOpenAIProvider(spec.name, orDefault(baseURL, deepseekBaseURL), key, timeout, nil)
		case "openrouter":
			s.providers[spec.name] = newOpenAIProvider(spec.name, orDefault(baseURL, openrouterBaseURL), key, timeout, map[string]string{
				"HTTP-Referer": "https://puzzle-app.local",
				"X-Title":      "Puzzle App",
			})
		case "qianwen":
			s.providers[spec.name] = newQianwenProvider(orDefault(baseURL, qianwenBaseURL), key, timeout)
		case "gemini":
			p, err := newGeminiProvider(ctx, key, baseURL)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.providers[spec.name] = p
			s.closers = append(s.closers, p.Close)
		}
		s.logger.Info("LLM provider configured", "provider", spec.name)
	}
	return s, nil
}

// SetProvider replaces the provider registered under name.
func (s *Service) SetProvider(name string, p Provider) {
	s.providers[name] = p
}

// DefaultModel returns the model used when a request names none.
func (s *Service) DefaultModel() string {
	return s.defaultModel
}

// AvailableModels lists the models of every provider with credentials.
func (s *Service) AvailableModels() map[string][]string {
	models := make(map[string][]string)
	for _, spec := range providerSpecs {
		if _, ok := s.providers[spec.name]; ok {
			models[spec.name] = append([]string(nil), spec.models...)
		}
	}
	return models
}

// ProviderNames returns the configured providers in a stable order.
func (s *Service) ProviderNames() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ChatRequest is a chat completion request. Nil parameters take the
// configured defaults.
type ChatRequest struct {
	Messages    []Message `json:"messages" binding:"required,min=1,dive"`
	Model       string    `json:"model"`
	Temperature *float64  `json:"temperature"`
	MaxTokens   *int      `json:"max_tokens"`
	TopP        *float64  `json:"top_p"`
}

func (r ChatRequest) params(defaults config.LLMParams) Params {
	p := Params{MaxTokens: defaults.MaxTokens}
	if defaults.Temperature != nil {
		p.Temperature = *defaults.Temperature
	}
	if defaults.TopP != nil {
		p.TopP = *defaults.TopP
	}
	if r.Temperature != nil {
		p.Temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		p.MaxTokens = *r.MaxTokens
	}
	if r.TopP != nil {
		p.TopP = *r.TopP
	}
	return p
}

// Chat sends the request to the provider serving its model.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*Completion, error) {
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}
	return s.complete(ctx, model, req.Messages, req.params(s.defaults))
}

// GenerateRequest is a single-prompt request wrapped with GenerateSystemPrompt.
type GenerateRequest struct {
	Prompt      string   `json:"prompt" binding:"required"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	TopP        *float64 `json:"top_p"`
}

// generateMaxTokens is the max_tokens default for generate requests.
const generateMaxTokens = 2000

// Generate wraps the prompt with the generation system message and completes it.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Completion, error) {
	if req.MaxTokens == nil {
		n := generateMaxTokens
		req.MaxTokens = &n
	}
	return s.Chat(ctx, ChatRequest{
		Messages: []Message{
			{Role: "system", Content: GenerateSystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	})
}

func (s *Service) complete(ctx context.Context, model string, messages []Message, params Params) (*Completion, error) {
	for _, spec := range providerSpecs {
		upstreamModel, ok := spec.match(model)
		if !ok {
			continue
		}
		provider, ok := s.providers[spec.name]
		if !ok {
			return nil, fmt.Errorf("%w: no api key configured for %s", ErrAuthentication, spec.name)
		}

		start := time.Now()
		completion, err := provider.Complete(ctx, upstreamModel, messages, params)
		if err != nil {
			s.logger.Error("LLM request failed", "provider", spec.name, "model", upstreamModel, "error", err)
			return nil, err
		}
		s.logger.Info("LLM request completed",
			"provider", spec.name,
			"model", upstreamModel,
			"duration_ms", time.Since(start).Milliseconds())
		return completion, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotSupported, model)
}

// Close releases provider resources.
func (s *Service) Close() {
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			s.logger.Warn("Failed to close LLM provider", "error", err)
		}
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
