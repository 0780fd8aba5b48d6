package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiProvider calls Gemini models through the official SDK.
type geminiProvider struct {
	client *genai.Client
}

func newGeminiProvider(ctx context.Context, apiKey, endpoint string) (*geminiProvider, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &geminiProvider{client: client}, nil
}

func (p *geminiProvider) Close() error {
	return p.client.Close()
}

// splitGeminiMessages maps chat messages onto Gemini's shape: system turns
// become the system instruction, assistant turns use the "model" role, and
// the last user turn is sent separately from the history.
func splitGeminiMessages(messages []Message) (system string, history []*genai.Content, last string) {
	var systemParts []string
	var turns []Message
	for _, m := range messages {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if n := len(turns); n > 0 && turns[n-1].Role == "user" {
		last = turns[n-1].Content
		turns = turns[:n-1]
	}
	for _, m := range turns {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return strings.Join(systemParts, "\n"), history, last
}

func (p *geminiProvider) Complete(ctx context.Context, model string, messages []Message, params Params) (*Completion, error) {
	gm := p.client.GenerativeModel(model)
	gm.SetTemperature(float32(params.Temperature))
	gm.SetTopP(float32(params.TopP))
	gm.SetMaxOutputTokens(int32(params.MaxTokens))

	system, history, last := splitGeminiMessages(messages)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	session := gm.StartChat()
	session.History = history
	resp, err := session.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, fmt.Errorf("%w: gemini request failed: %v", ErrUpstream, err)
	}
	return geminiCompletion(model, resp), nil
}

func geminiCompletion(model string, resp *genai.GenerateContentResponse) *Completion {
	completion := &Completion{Model: model, Choices: []Choice{}}
	for i, cand := range resp.Candidates {
		var text strings.Builder
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
		completion.Choices = append(completion.Choices, Choice{
			Index:        i,
			Message:      Message{Role: "assistant", Content: text.String()},
			FinishReason: strings.ToLower(strings.TrimPrefix(cand.FinishReason.String(), "FinishReason")),
		})
	}
	if u := resp.UsageMetadata; u != nil {
		completion.Usage = &Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return completion
}
