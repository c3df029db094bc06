// Package polish rewrites user input through an OpenAI-compatible chat
// completion endpoint before it is sent to the agent.
package polish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tide-dev/tide/internal/config"
	"github.com/tide-dev/tide/prompts"
)

// Placeholder is replaced with the text being polished.
const Placeholder = "{text}"

// ErrNotConfigured is returned when no endpoint or API key is set.
var ErrNotConfigured = errors.New("polish is not configured: set polish.base_url and polish.api_key")

// Client calls the completion endpoint.
type Client struct {
	api    *openai.Client
	model  string
	prompt string
}

// New returns a Client for cfg.
func New(cfg config.PolishConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	prompt := cfg.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = prompts.PolishPrompt
	}
	return &Client{api: openai.NewClientWithConfig(oc), model: model, prompt: prompt}, nil
}

// BuildPrompt substitutes text into template. A template without the
// placeholder gets the text appended after a separator.
func BuildPrompt(template, text string) string {
	if strings.Contains(template, Placeholder) {
		return strings.ReplaceAll(template, Placeholder, text)
	}
	return strings.TrimRight(template, "\n") + "\n\n---\n" + text
}

// Polish returns the rewritten text.
func (c *Client) Polish(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("nothing to polish")
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(c.prompt, text)},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("polish request failed with status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("polish request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("polish response has no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
