package llm

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
)

// jsonPrefill opens the assistant turn so Claude continues a JSON object.
const jsonPrefill = "{"

type ClaudeClient struct {
	client      *anthropic.Client
	model       string
	maxTokens   int
	temperature *float32
	jsonMode    bool
}

func NewClaudeClient(apiKey string, model string, baseURL string) *ClaudeClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}

	client := anthropic.NewClient(apiKey, opts...)

	return &ClaudeClient{
		client:    client,
		model:     model,
		maxTokens: 1000,
	}
}

// WithLimits sets the reply token cap and sampling temperature. A zero
// maxTokens keeps the default.
func (c *ClaudeClient) WithLimits(maxTokens int, temperature float32) *ClaudeClient {
	if maxTokens > 0 {
		c.maxTokens = maxTokens
	}
	c.temperature = &temperature
	return c
}

// WithJSONMode prefills the reply with an opening brace. Anthropic has no
// response format switch.
func (c *ClaudeClient) WithJSONMode(enabled bool) *ClaudeClient {
	c.jsonMode = enabled
	return c
}

func (c *ClaudeClient) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []anthropic.Message{
		{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				anthropic.NewTextMessageContent(prompt),
			},
		},
	}
	if c.jsonMode {
		messages = append(messages, anthropic.Message{
			Role: anthropic.RoleAssistant,
			Content: []anthropic.MessageContent{
				anthropic.NewTextMessageContent(jsonPrefill),
			},
		})
	}

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("claude request failed: %w", err)
	}

	if len(resp.Content) > 0 && resp.Content[0].Text != nil {
		text := *resp.Content[0].Text
		if c.jsonMode {
			text = jsonPrefill + text
		}
		return text, nil
	}
	return "", fmt.Errorf("no response content")
}
