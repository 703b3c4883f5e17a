package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const claudeMaxTokens = 8192

// ClaudeClient calls the Anthropic Messages API for image OCR. It implements
// OCRClient and TextGenerator.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates an Anthropic API client.
func NewClaudeClient(apiKey, model string, opts ...option.RequestOption) (*ClaudeClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &ClaudeClient{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}, nil
}

// ForModel returns a copy of the client targeting a different model.
func (c *ClaudeClient) ForModel(model string) *ClaudeClient {
	if model == "" || anthropic.Model(model) == c.model {
		return c
	}
	cp := *c
	cp.model = anthropic.Model(model)
	return &cp
}

// ExtractImage sends one image and returns the transcribed text.
func (c *ClaudeClient) ExtractImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   claudeMaxTokens,
		Temperature: anthropic.Float(0.1),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(data)),
				anthropic.NewTextBlock(imagePrompt),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude request: %w", err)
	}
	return collectText(msg)
}

// GenerateText runs a plain prompt with an optional system instruction.
func (c *ClaudeClient) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   claudeMaxTokens,
		Temperature: anthropic.Float(0.1),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude request: %w", err)
	}
	return collectText(msg)
}

func collectText(msg *anthropic.Message) (string, error) {
	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("claude returned no text content")
	}
	return out, nil
}
