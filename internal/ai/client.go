package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Provider represents the LLM provider type
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
)

// Port is the single entry point the pipeline uses for AI review. The
// implementation owns retries on transient failures and surfaces parse
// errors to the caller.
type Port interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, out any) error
}

// ClientConfig holds LLM client configuration
type ClientConfig struct {
	Provider    Provider      `json:"provider" yaml:"provider"`
	APIKey      string        `json:"-" yaml:"api_key"`
	Model       string        `json:"model" yaml:"model"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `json:"temperature" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Provider:    ProviderClaude,
		Model:       "claude-sonnet-4-20250514",
		MaxTokens:   1024,
		Temperature: 0.3,
		Timeout:     30 * time.Second,
	}
}

// Client is the HTTP LLM client
type Client struct {
	cfg  ClientConfig
	http *resty.Client
}

// NewClient creates an LLM client with retry on transient failures
func NewClient(cfg ClientConfig) *Client {
	hc := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == 429
		})
	return &Client{cfg: cfg, http: hc}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the prompt pair and decodes the strict-JSON reply into out
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, out any) error {
	var text string
	var err error
	switch c.cfg.Provider {
	case ProviderOpenAI:
		text, err = c.completeOpenAI(ctx, systemPrompt, userPrompt)
	default:
		text, err = c.completeClaude(ctx, systemPrompt, userPrompt)
	}
	if err != nil {
		return err
	}

	raw := extractJSON(text)
	if raw == "" {
		return fmt.Errorf("ai: no JSON object in response: %.120s", text)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("ai: parse response: %w", err)
	}
	return nil
}

func (c *Client) completeClaude(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var body claudeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.cfg.APIKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetBody(claudeRequest{
			Model:       c.cfg.Model,
			MaxTokens:   c.cfg.MaxTokens,
			Temperature: c.cfg.Temperature,
			System:      systemPrompt,
			Messages:    []message{{Role: "user", Content: userPrompt}},
		}).
		SetResult(&body).
		Post("https://api.anthropic.com/v1/messages")
	if err != nil {
		return "", fmt.Errorf("ai: claude request: %w", err)
	}
	if body.Error != nil {
		return "", fmt.Errorf("ai: claude %s: %s", body.Error.Type, body.Error.Message)
	}
	if resp.IsError() || len(body.Content) == 0 {
		return "", fmt.Errorf("ai: claude status %d", resp.StatusCode())
	}
	return body.Content[0].Text, nil
}

func (c *Client) completeOpenAI(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := openAIRequest{
		Model:       c.cfg.Model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	req.ResponseFormat.Type = "json_object"

	var body openAIResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.cfg.APIKey).
		SetBody(req).
		SetResult(&body).
		Post("https://api.openai.com/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("ai: openai request: %w", err)
	}
	if body.Error != nil {
		return "", fmt.Errorf("ai: openai: %s", body.Error.Message)
	}
	if resp.IsError() || len(body.Choices) == 0 {
		return "", fmt.Errorf("ai: openai status %d", resp.StatusCode())
	}
	return body.Choices[0].Message.Content, nil
}

// extractJSON pulls the outermost JSON object out of a possibly fenced reply
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		text = strings.TrimPrefix(text[i+3:], "json")
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
