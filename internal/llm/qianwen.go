package llm

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

const qianwenBaseURL = "https://dashscope.aliyuncs.com/api/v1"

var qianwenModels = map[string]string{
	"qianwen-max":   "qwen-max",
	"qianwen-plus":  "qwen-plus",
	"qianwen-turbo": "qwen-turbo",
}

// qianwenProvider speaks the DashScope text-generation format.
type qianwenProvider struct {
	client *resty.Client
}

func newQianwenProvider(baseURL, apiKey string, timeout time.Duration) *qianwenProvider {
	return &qianwenProvider{client: newRestyClient(baseURL, apiKey, timeout, nil)}
}

type qianwenRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []Message `json:"messages"`
	} `json:"input"`
	Parameters struct {
		Temperature  float64 `json:"temperature"`
		MaxTokens    int     `json:"max_tokens"`
		TopP         float64 `json:"top_p"`
		ResultFormat string  `json:"result_format"`
	} `json:"parameters"`
}

type qianwenResponse struct {
	RequestID string `json:"request_id"`
	Output    struct {
		Message      *Message `json:"message"`
		Choices      []Choice `json:"choices"`
		FinishReason string   `json:"finish_reason"`
		Text         string   `json:"text"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *qianwenProvider) Complete(ctx context.Context, model string, messages []Message, params Params) (*Completion, error) {
	upstreamModel := model
	if mapped, ok := qianwenModels[model]; ok {
		upstreamModel = mapped
	}

	var body qianwenRequest
	body.Model = upstreamModel
	body.Input.Messages = messages
	body.Parameters.Temperature = params.Temperature
	body.Parameters.MaxTokens = params.MaxTokens
	body.Parameters.TopP = params.TopP
	body.Parameters.ResultFormat = "message"

	var result qianwenResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&upstreamError{}).
		Post("/services/aigc/text-generation/generation")
	if err := checkResponse("qianwen", resp, err); err != nil {
		return nil, err
	}

	completion := &Completion{
		ID:    result.RequestID,
		Model: upstreamModel,
		Usage: &Usage{
			PromptTokens:     result.Usage.InputTokens,
			CompletionTokens: result.Usage.OutputTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	}
	if completion.Usage.TotalTokens == 0 {
		completion.Usage.TotalTokens = result.Usage.InputTokens + result.Usage.OutputTokens
	}

	switch {
	case len(result.Output.Choices) > 0:
		completion.Choices = result.Output.Choices
	case result.Output.Message != nil:
		finish := result.Output.FinishReason
		if finish == "" {
			finish = "stop"
		}
		completion.Choices = []Choice{{Message: *result.Output.Message, FinishReason: finish}}
	default:
		completion.Choices = []Choice{{
			Message:      Message{Role: "assistant", Content: result.Output.Text},
			FinishReason: result.Output.FinishReason,
		}}
	}
	return completion, nil
}
