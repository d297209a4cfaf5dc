// Package llm is the transport client for the LLM providers that back
// each trading agent's decisions.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider identifies which vendor API a model handle belongs to.
type Provider string

const (
	ProviderClaude   Provider = "claude"
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
)

const defaultTimeout = 120 * time.Second

// ClientConfig configures one provider client.
type ClientConfig struct {
	Provider Provider
	APIKey   string
	Timeout  time.Duration
}

// Client issues chat-completion requests against a configured
// provider, normalizing the response into one Response shape
// regardless of vendor.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient builds a Client for cfg, defaulting Timeout to 120s (the
// LLM call budget) if unset.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{config: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

// Usage is the token accounting the provider reports for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is the normalized result of a GenerateResponse call.
type Response struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateResponse sends systemPrompt + userContent to model at the
// given temperature/maxTokens and returns the normalized response.
func (c *Client) GenerateResponse(ctx context.Context, model, systemPrompt, userContent string, temperature float64, maxTokens int) (Response, error) {
	switch c.config.Provider {
	case ProviderClaude:
		return c.generateClaude(ctx, model, systemPrompt, userContent, temperature, maxTokens)
	case ProviderOpenAI:
		return c.generateOpenAICompatible(ctx, "https://api.openai.com/v1/chat/completions", model, systemPrompt, userContent, temperature, maxTokens)
	case ProviderDeepSeek:
		return c.generateOpenAICompatible(ctx, "https://api.deepseek.com/v1/chat/completions", model, systemPrompt, userContent, temperature, maxTokens)
	default:
		return Response{}, fmt.Errorf("llm: unsupported provider %q", c.config.Provider)
	}
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
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) generateClaude(ctx context.Context, model, systemPrompt, userContent string, temperature float64, maxTokens int) (Response, error) {
	req := claudeRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      systemPrompt,
		Messages:    []message{{Role: "user", Content: userContent}},
	}

	var resp claudeResponse
	if err := c.post(ctx, "https://api.anthropic.com/v1/messages", req, &resp, func(r *http.Request) {
		r.Header.Set("x-api-key", c.config.APIKey)
		r.Header.Set("anthropic-version", "2023-06-01")
	}); err != nil {
		return Response{}, err
	}

	if resp.Error != nil {
		return Response{}, fmt.Errorf("llm: claude API error: %s - %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Content) == 0 {
		return Response{}, fmt.Errorf("llm: empty response from claude")
	}

	return Response{
		Content:      resp.Content[0].Text,
		Model:        resp.Model,
		FinishReason: resp.StopReason,
		Usage:        Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}, nil
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) generateOpenAICompatible(ctx context.Context, url, model, systemPrompt, userContent string, temperature float64, maxTokens int) (Response, error) {
	req := openAIRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
	}

	var resp openAIResponse
	if err := c.post(ctx, url, req, &resp, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}); err != nil {
		return Response{}, err
	}

	if resp.Error != nil {
		return Response{}, fmt.Errorf("llm: API error: %s - %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("llm: empty response")
	}

	return Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: resp.Choices[0].FinishReason,
		Usage:        Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
	}, nil
}

func (c *Client) post(ctx context.Context, url string, reqBody, respBody interface{}, decorate func(*http.Request)) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	decorate(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("llm: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("llm: read response: %w", err)
	}

	if err := json.Unmarshal(raw, respBody); err != nil {
		return fmt.Errorf("llm: unmarshal response: %w", err)
	}
	return nil
}

// IsConfigured reports whether the client has an API key set.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}
