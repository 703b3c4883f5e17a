package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// geminiBaseURL is the Google AI Studio API base URL.
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	geminiDefaultTimeout = 2 * time.Minute
	geminiMaxTokens      = 8192
)

// GeminiClient calls the Gemini generateContent API with inline document
// bytes. It implements NativeClient and TextGenerator.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// GeminiOption configures the GeminiClient.
type GeminiOption func(*GeminiClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(baseURL string) GeminiOption {
	return func(c *GeminiClient) {
		parsed, err := url.Parse(baseURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return
		}
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) GeminiOption {
	return func(c *GeminiClient) {
		c.httpClient = client
	}
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(apiKey, model string, opts ...GeminiOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	c := &GeminiClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    geminiBaseURL,
		httpClient: &http.Client{Timeout: geminiDefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ForModel returns a copy of the client targeting a different model. Used
// when a request selects its own vision model.
func (c *GeminiClient) ForModel(model string) *GeminiClient {
	if model == "" || model == c.model {
		return c
	}
	cp := *c
	cp.model = model
	return &cp
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerateRequest struct {
	Contents          []geminiContent       `json:"contents"`
	SystemInstruction *geminiContent        `json:"system_instruction,omitempty"`
	GenerationConfig  *geminiGenerateConfig `json:"generationConfig,omitempty"`
}

type geminiGenerateConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// ExtractDocument sends the document bytes inline and returns the transcribed
// text. Gemini reads PDFs natively, so no rendering step is needed.
func (c *GeminiClient) ExtractDocument(ctx context.Context, data []byte, mimeType string) (string, error) {
	req := geminiGenerateRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
				{Text: documentPrompt},
			},
		}},
		GenerationConfig: &geminiGenerateConfig{
			Temperature:     0.1,
			MaxOutputTokens: geminiMaxTokens,
		},
	}
	return c.generate(ctx, req)
}

// GenerateText runs a plain prompt with an optional system instruction.
func (c *GeminiClient) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	req := geminiGenerateRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: &geminiGenerateConfig{
			Temperature:     0.1,
			MaxOutputTokens: geminiMaxTokens,
		},
	}
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	return c.generate(ctx, req)
}

func (c *GeminiClient) generate(ctx context.Context, reqBody geminiGenerateRequest) (string, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini API status %s: %s", resp.Status, truncate(string(body), 200))
	}

	var genResp geminiGenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if genResp.Error != nil {
		return "", fmt.Errorf("gemini API error: %s", genResp.Error.Message)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no content")
	}

	var sb strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
