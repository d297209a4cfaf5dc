package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// redirectTransport rewrites every outbound request to target test
// server, so the hardcoded provider URLs in client.go can still be
// exercised against an httptest.Server.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestGenerateResponse_Claude(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing x-api-key header")
		}
		resp := claudeResponse{Model: "claude-test"}
		resp.Content = []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{{Type: "text", Text: `{"decision":"BUY"}`}}
		resp.StopReason = "end_turn"
		resp.Usage.InputTokens = 100
		resp.Usage.OutputTokens = 20
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	target, _ := url.Parse(server.URL)
	client := NewClient(ClientConfig{Provider: ProviderClaude, APIKey: "test-key"})
	client.httpClient.Transport = redirectTransport{target: target}

	resp, err := client.GenerateResponse(context.Background(), "claude-test", "system", "user", 0.3, 1024)
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}
	if resp.Content != `{"decision":"BUY"}` {
		t.Errorf("Content = %q, want decision JSON", resp.Content)
	}
	if resp.Usage.InputTokens != 100 || resp.Usage.OutputTokens != 20 {
		t.Errorf("Usage = %+v, want 100/20", resp.Usage)
	}
}

func TestGenerateResponse_OpenAICompatible(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer auth header")
		}
		resp := openAIResponse{Model: "gpt-test"}
		resp.Choices = []struct {
			Message      message `json:"message"`
			FinishReason string  `json:"finish_reason"`
		}{{Message: message{Role: "assistant", Content: "hello"}, FinishReason: "stop"}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	target, _ := url.Parse(server.URL)
	client := NewClient(ClientConfig{Provider: ProviderOpenAI, APIKey: "test-key"})
	client.httpClient.Transport = redirectTransport{target: target}

	resp, err := client.GenerateResponse(context.Background(), "gpt-test", "system", "user", 0.3, 1024)
	if err != nil {
		t.Fatalf("GenerateResponse failed: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q, want hello", resp.Content)
	}
}

func TestGenerateResponse_UnsupportedProvider(t *testing.T) {
	client := NewClient(ClientConfig{Provider: "unknown"})
	if _, err := client.GenerateResponse(context.Background(), "m", "s", "u", 0.3, 100); err == nil {
		t.Error("expected an error for an unsupported provider")
	}
}

func TestIsConfigured(t *testing.T) {
	if NewClient(ClientConfig{}).IsConfigured() {
		t.Error("client without an API key should not be configured")
	}
	if !NewClient(ClientConfig{APIKey: "k"}).IsConfigured() {
		t.Error("client with an API key should be configured")
	}
}
