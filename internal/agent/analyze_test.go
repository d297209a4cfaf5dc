package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/koshedutech/equities-trader/internal/llm"
)

var errTestLLMUnavailable = errors.New("test: llm transport unavailable")

// fakeLLM replays a fixed sequence of responses (or errors), one per
// call, so AnalyzeMarket's retry loop can be driven deterministically
// without a network round trip.
type fakeLLM struct {
	responses []llm.Response
	errs      []error
	calls     int
}

func (f *fakeLLM) GenerateResponse(ctx context.Context, model, systemPrompt, userContent string, temperature float64, maxTokens int) (llm.Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return llm.Response{}, f.errs[i]
	}
	if i >= len(f.responses) {
		return f.responses[len(f.responses)-1], nil
	}
	return f.responses[i], nil
}

func newTestAgent(t *testing.T, llmClient LLMClient) *BaseAgent {
	t.Helper()
	a := NewAgent("a1", "Test", "model", "", 10000)
	return NewBaseAgent(a, Dependencies{
		LLM:         llmClient,
		Model:       "test-model",
		Temperature: 0.2,
		MaxTokens:   256,
	})
}

func TestAnalyzeMarket_ParseErrorThenRetrySucceeds(t *testing.T) {
	fake := &fakeLLM{
		responses: []llm.Response{
			{Content: "not json at all"},
			{Content: `{"decision":"BUY","symbol":"AAPL","quantity":5,"confidence":80,"risk_level":"MEDIUM","reasoning":"looks good"}`},
		},
	}
	ba := newTestAgent(t, fake)

	decision, err := ba.AnalyzeMarket(context.Background(), TickInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Decision != llm.ActionBuy {
		t.Errorf("decision = %s, want BUY", decision.Decision)
	}
	if decision.Symbol != "AAPL" {
		t.Errorf("symbol = %q, want AAPL", decision.Symbol)
	}
	if fake.calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", fake.calls)
	}
}

func TestAnalyzeMarket_ParseErrorExhaustedFallsBackToHold(t *testing.T) {
	fake := &fakeLLM{
		responses: []llm.Response{
			{Content: "still not json"},
			{Content: "never valid either"},
		},
	}
	ba := newTestAgent(t, fake)

	decision, err := ba.AnalyzeMarket(context.Background(), TickInput{})
	if err != nil {
		t.Fatalf("expected a HOLD decision with nil error, got error: %v", err)
	}
	if decision.Decision != llm.ActionHold {
		t.Errorf("decision = %s, want HOLD", decision.Decision)
	}
	if decision.Reasoning == "" {
		t.Error("expected the parse failure reason to be carried as the HOLD's reasoning")
	}
	if fake.calls != maxAnalyzeAttempts {
		t.Errorf("calls = %d, want %d (no further retries once attempts are exhausted)", fake.calls, maxAnalyzeAttempts)
	}
}

func TestAnalyzeMarket_ValidationErrorFallsBackToHold(t *testing.T) {
	fake := &fakeLLM{
		responses: []llm.Response{
			// BUY with no symbol and non-positive quantity fails Decision.Validate.
			{Content: `{"decision":"BUY","symbol":"","quantity":0,"confidence":80,"risk_level":"MEDIUM","reasoning":"bad"}`},
		},
	}
	ba := newTestAgent(t, fake)

	decision, err := ba.AnalyzeMarket(context.Background(), TickInput{})
	if err != nil {
		t.Fatalf("expected a HOLD decision with nil error, got error: %v", err)
	}
	if decision.Decision != llm.ActionHold {
		t.Errorf("decision = %s, want HOLD", decision.Decision)
	}
	if !strings.Contains(decision.Reasoning, "missing symbol") {
		t.Errorf("reasoning = %q, want it to carry the validation failure", decision.Reasoning)
	}
	if fake.calls != 1 {
		t.Errorf("calls = %d, want 1 (validation failures are not retried)", fake.calls)
	}
}

func TestAnalyzeMarket_ExternalUnavailableReturnsError(t *testing.T) {
	fake := &fakeLLM{errs: []error{errTestLLMUnavailable}}
	ba := newTestAgent(t, fake)

	_, err := ba.AnalyzeMarket(context.Background(), TickInput{})
	if err == nil {
		t.Fatal("expected an error when the LLM call itself fails")
	}
}

func TestAnalyzeMarket_SuccessfulHoldIsReturnedDirectly(t *testing.T) {
	fake := &fakeLLM{
		responses: []llm.Response{
			{Content: `{"decision":"HOLD","symbol":"","quantity":0,"confidence":55,"risk_level":"LOW","reasoning":"nothing stands out"}`},
		},
	}
	ba := newTestAgent(t, fake)

	decision, err := ba.AnalyzeMarket(context.Background(), TickInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decision.Decision != llm.ActionHold {
		t.Errorf("decision = %s, want HOLD", decision.Decision)
	}
	if decision.Reasoning != "nothing stands out" {
		t.Errorf("reasoning = %q, want the LLM's own reasoning preserved", decision.Reasoning)
	}
}
