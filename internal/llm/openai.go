package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	deepseekBaseURL   = "https://api.deepseek.com/v1"
	openrouterBaseURL = "https://openrouter.ai/api/v1"
)

// upstreamError is the error body shape shared by OpenAI-compatible APIs
// and DashScope.
type upstreamError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *upstreamError) message() string {
	if e == nil {
		return ""
	}
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}

func newRestyClient(baseURL, apiKey string, timeout time.Duration, headers map[string]string) *resty.Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(apiKey)
	for k, v := range headers {
		client.SetHeader(k, v)
	}
	return client
}

// checkResponse turns transport failures and error statuses into ErrUpstream.
func checkResponse(provider string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s request failed: %v", ErrUpstream, provider, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		msg := resp.Status()
		if apiErr, ok := resp.Error().(*upstreamError); ok {
			if m := apiErr.message(); m != "" {
				msg = m
			}
		}
		return fmt.Errorf("%w: %s returned %d: %s", ErrUpstream, provider, resp.StatusCode(), msg)
	}
	return nil
}

// openAIProvider speaks the OpenAI chat completions format.
type openAIProvider struct {
	name   string
	client *resty.Client
}

func newOpenAIProvider(name, baseURL, apiKey string, timeout time.Duration, headers map[string]string) *openAIProvider {
	return &openAIProvider{name: name, client: newRestyClient(baseURL, apiKey, timeout, headers)}
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	TopP        float64   `json:"top_p"`
	Stream      bool      `json:"stream"`
}

func (p *openAIProvider) Complete(ctx context.Context, model string, messages []Message, params Params) (*Completion, error) {
	var result Completion
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(openAIRequest{
			Model:       model,
			Messages:    messages,
			Temperature: params.Temperature,
			MaxTokens:   params.MaxTokens,
			TopP:        params.TopP,
		}).
		SetResult(&result).
		SetError(&upstreamError{}).
		Post("/chat/completions")
	if err := checkResponse(p.name, resp, err); err != nil {
		return nil, err
	}
	if result.Model == "" {
		result.Model = model
	}
	return &result, nil
}
