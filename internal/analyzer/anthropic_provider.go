package analyzer

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/jobintel/pipeline/pkg/anthropic"
)

// AnthropicProvider adapts the non-streaming Anthropic client to
// StreamProvider, for operators who configure provider: anthropic instead
// of the default OpenAI-compatible streaming path. It is a real, reachable
// code path, just not the one on the default config.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider creates an AnthropicProvider using client against model.
func NewAnthropicProvider(client anthropic.Client, model string) *AnthropicProvider {
	return &AnthropicProvider{client: client, model: model, maxTokens: 2048}
}

// Stream ignores apiKey: the wrapped client is already configured with its
// own credentials at construction time.
func (p *AnthropicProvider) Stream(ctx context.Context, _ string, systemPrompt, userPrompt string) (string, int64, int64, error) {
	temperature := 0.3
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: userPrompt}},
		Temperature: &temperature,
	})
	if err != nil {
		return "", 0, 0, eris.Wrap(err, "analyzer: anthropic CreateMessage")
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return text, resp.Usage.InputTokens, resp.Usage.OutputTokens, nil
}
