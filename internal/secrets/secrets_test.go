package secrets

import (
	"context"
	"testing"

	"github.com/koshedutech/equities-trader/config"
)

func TestResolve_DisabledVaultReturnsFallback(t *testing.T) {
	r, err := NewResolver(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	got := r.Resolve(context.Background(), "anthropic", "env-value")
	if got != "env-value" {
		t.Errorf("Resolve = %q, want fallback %q", got, "env-value")
	}
}

func TestResolve_UsesCacheOnHit(t *testing.T) {
	r, err := NewResolver(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	if err := r.Store(context.Background(), "anthropic", "cached-value"); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got := r.Resolve(context.Background(), "anthropic", "fallback")
	if got != "cached-value" {
		t.Errorf("Resolve = %q, want cached value", got)
	}
}

func TestInvalidateCache_ForcesFallbackWhenVaultDisabled(t *testing.T) {
	r, err := NewResolver(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	_ = r.Store(context.Background(), "openai", "cached")
	r.InvalidateCache()

	got := r.Resolve(context.Background(), "openai", "fallback")
	if got != "fallback" {
		t.Errorf("Resolve after invalidate = %q, want fallback", got)
	}
}

func TestHealth_DisabledVaultIsNil(t *testing.T) {
	r, err := NewResolver(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if err := r.Health(context.Background()); err != nil {
		t.Errorf("Health = %v, want nil for disabled vault", err)
	}
}

func TestResolveLLMKeys_DisabledVaultLeavesConfigUnchanged(t *testing.T) {
	r, err := NewResolver(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	in := config.LLMConfig{AnthropicAPIKey: "a", OpenAIAPIKey: "b", DeepSeekAPIKey: "c"}
	got := ResolveLLMKeys(context.Background(), r, in)
	if got != in {
		t.Errorf("ResolveLLMKeys = %+v, want unchanged %+v", got, in)
	}
}
