// Package secrets resolves LLM and broker API keys, preferring a
// HashiCorp Vault KV mount when configured and falling back to the
// plain environment-bound values in config.LLMConfig otherwise.
package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"github.com/koshedutech/equities-trader/config"
)

// Resolver wraps a Vault client with an in-memory read cache, the same
// shape as the teacher's vault.Client, scoped to named secrets (one per
// LLM provider or broker) rather than per-user/per-exchange API keys
// since this repo has a single operator, not multiple tenants.
type Resolver struct {
	client       *api.Client
	config       config.VaultConfig
	mu           sync.RWMutex
	cache        map[string]string
	cacheEnabled bool
}

// NewResolver builds a Resolver. When cfg.Enabled is false it still
// returns a usable Resolver that never contacts Vault: Resolve returns a
// value previously written with Store, else the caller-supplied
// fallback, matching the teacher's disabled-vault local-cache-only mode.
func NewResolver(cfg config.VaultConfig) (*Resolver, error) {
	if !cfg.Enabled {
		return &Resolver{
			config:       cfg,
			cache:        make(map[string]string),
			cacheEnabled: true,
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("secrets: configure vault TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("secrets: create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Resolver{
		client:       client,
		config:       cfg,
		cache:        make(map[string]string),
		cacheEnabled: true,
	}, nil
}

// Resolve returns the secret stored under name (an LLM provider key
// like "anthropic", "openai", "deepseek", or a broker name), reading
// Vault on a cache miss. If Vault is disabled, lookup fails, or the
// value isn't present, fallback is returned instead - resolution never
// blocks startup on Vault being unreachable.
func (r *Resolver) Resolve(ctx context.Context, name, fallback string) string {
	if r.cacheEnabled {
		r.mu.RLock()
		if cached, ok := r.cache[name]; ok {
			r.mu.RUnlock()
			return cached
		}
		r.mu.RUnlock()
	}

	if !r.config.Enabled {
		return fallback
	}

	secret, err := r.client.Logical().ReadWithContext(ctx, r.secretPath(name))
	if err != nil || secret == nil || secret.Data == nil {
		return fallback
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return fallback
	}

	value, ok := data["value"].(string)
	if !ok || value == "" {
		return fallback
	}

	r.mu.Lock()
	r.cache[name] = value
	r.mu.Unlock()

	return value
}

// Store writes value under name in Vault (a no-op cache write when
// Vault is disabled, for local/dev use).
func (r *Resolver) Store(ctx context.Context, name, value string) error {
	r.mu.Lock()
	r.cache[name] = value
	r.mu.Unlock()

	if !r.config.Enabled {
		return nil
	}

	_, err := r.client.Logical().WriteWithContext(ctx, r.secretPath(name), map[string]interface{}{
		"data": map[string]interface{}{"value": value},
	})
	if err != nil {
		return fmt.Errorf("secrets: store %q: %w", name, err)
	}
	return nil
}

// InvalidateCache clears the read cache, forcing the next Resolve to
// hit Vault again.
func (r *Resolver) InvalidateCache() {
	r.mu.Lock()
	r.cache = make(map[string]string)
	r.mu.Unlock()
}

// Health reports whether the configured Vault instance is reachable
// and unsealed. Always nil when Vault is disabled.
func (r *Resolver) Health(ctx context.Context) error {
	if !r.config.Enabled {
		return nil
	}

	health, err := r.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("secrets: vault health check: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("secrets: vault is sealed")
	}
	return nil
}

func (r *Resolver) secretPath(name string) string {
	return fmt.Sprintf("%s/data/%s/%s", r.config.MountPath, r.config.SecretPath, name)
}

// ResolveLLMKeys sets each API key field on cfg to the value stored
// under its provider name (Vault or the resolver's cache), keeping the
// env-bound value only when no stored value exists.
func ResolveLLMKeys(ctx context.Context, r *Resolver, cfg config.LLMConfig) config.LLMConfig {
	cfg.AnthropicAPIKey = r.Resolve(ctx, "anthropic", cfg.AnthropicAPIKey)
	cfg.OpenAIAPIKey = r.Resolve(ctx, "openai", cfg.OpenAIAPIKey)
	cfg.DeepSeekAPIKey = r.Resolve(ctx, "deepseek", cfg.DeepSeekAPIKey)
	return cfg
}
