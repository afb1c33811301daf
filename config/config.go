// Package config defines the gateway's declarative configuration document:
// functions, their variants and model bindings, provider credentials,
// cache and persistence settings, and the external store connection.
// Loading follows the gateway's own extension-sniffing YAML/JSON dispatch,
// generalized from a flat strategy/targets document to the richer
// function/variant/model tree this gateway's dispatcher needs.
package config

import (
	"time"
)

// Config is the root configuration document.
type Config struct {
	Functions   map[string]FunctionConfig `json:"functions" yaml:"functions"`
	Models      map[string]ModelConfig    `json:"models" yaml:"models"`
	Credentials map[string]Credential     `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	Cache       CacheConfig               `json:"cache,omitempty" yaml:"cache,omitempty"`
	Persistence PersistenceConfig         `json:"persistence,omitempty" yaml:"persistence,omitempty"`
	Store       StoreConfig               `json:"store" yaml:"store"`
}

// FunctionConfig declares one function and its variants.
type FunctionConfig struct {
	Type         string                    `json:"type" yaml:"type"` // "chat" | "json"
	InputSchema  string                    `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	OutputSchema string                    `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
	Policy       string                    `json:"experimentation_policy,omitempty" yaml:"experimentation_policy,omitempty"`
	Variants     map[string]VariantConfig  `json:"variants" yaml:"variants"`
	Tools        []string                  `json:"tools,omitempty" yaml:"tools,omitempty"`
}

// VariantConfig declares one variant of a function.
type VariantConfig struct {
	Type     string   `json:"type" yaml:"type"` // "chat_completion" | "best_of_n" | "mixture_of_n" | "dicl"
	Weight   float64  `json:"weight,omitempty" yaml:"weight,omitempty"`
	Models   []string `json:"models" yaml:"models"`     // ordered list of model names (fallback order)
	Template string   `json:"template,omitempty" yaml:"template,omitempty"`

	// best_of_n / mixture_of_n
	Candidates []string `json:"candidates,omitempty" yaml:"candidates,omitempty"` // model names
	Judge      string   `json:"judge,omitempty" yaml:"judge,omitempty"`           // model name

	// dicl
	EmbeddingModel string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
	K              int    `json:"k,omitempty" yaml:"k,omitempty"`
}

// ModelConfig declares one named model and its ordered provider bindings.
type ModelConfig struct {
	Providers []ProviderBinding `json:"providers" yaml:"providers"`
}

// ProviderBinding names one provider + its model name for a given model
// entry, with the same per-binding retry/circuit-breaker shape the
// gateway already applies per provider target.
type ProviderBinding struct {
	Provider       string                `json:"provider" yaml:"provider"` // e.g. "openai", "anthropic", "bedrock"
	ModelName      string                `json:"model_name" yaml:"model_name"`
	Credential     string                `json:"credential,omitempty" yaml:"credential,omitempty"` // key into Config.Credentials
	BaseURL        string                `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Retry          RetryConfig           `json:"retry,omitempty" yaml:"retry,omitempty"`
	Timeout        string                `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	CircuitBreaker *CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
}

// RetryConfig controls per-binding retry attempts.
type RetryConfig struct {
	Attempts int `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

// CircuitBreakerConfig configures the per-binding circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int    `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int    `json:"success_threshold" yaml:"success_threshold"`
	Timeout          string `json:"timeout" yaml:"timeout"`
}

// Credential names one credential slot, resolved at load time from an
// environment variable, an inline value (for local development), or an
// OAuth2 client-credentials flow.
type Credential struct {
	Env             string          `json:"env,omitempty" yaml:"env,omitempty"`
	Inline          string          `json:"inline,omitempty" yaml:"inline,omitempty"`
	OAuth2ClientCreds *OAuth2Config `json:"oauth2_client_credentials,omitempty" yaml:"oauth2_client_credentials,omitempty"`
}

// OAuth2Config configures an OAuth2 client-credentials token source, used
// by providers (e.g. Google Gemini on Vertex) that authenticate with a
// service account instead of a static API key.
type OAuth2Config struct {
	ClientIDEnv     string   `json:"client_id_env" yaml:"client_id_env"`
	ClientSecretEnv string   `json:"client_secret_env" yaml:"client_secret_env"`
	TokenURL        string   `json:"token_url" yaml:"token_url"`
	Scopes          []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// CacheConfig selects and configures the inference cache backend.
type CacheConfig struct {
	Backend  string        `json:"backend,omitempty" yaml:"backend,omitempty"` // "memory" | "redis" | "disabled"
	Capacity int           `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	Addr     string        `json:"addr,omitempty" yaml:"addr,omitempty"` // redis
	MaxAge   time.Duration `json:"max_age,omitempty" yaml:"max_age,omitempty"`
}

// PersistenceConfig controls the async persistence writer.
type PersistenceConfig struct {
	ChannelSize int           `json:"channel_size,omitempty" yaml:"channel_size,omitempty"`
	FlushWindow time.Duration `json:"flush_window,omitempty" yaml:"flush_window,omitempty"`
}

// StoreConfig selects the external store facade's primary and optional
// secondary backend.
type StoreConfig struct {
	Primary   BackendConfig  `json:"primary" yaml:"primary"`
	Secondary *BackendConfig `json:"secondary,omitempty" yaml:"secondary,omitempty"`
}

// BackendConfig names one store backend and its connection string.
type BackendConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "clickhouse" | "postgres"
	DSN    string `json:"dsn" yaml:"dsn"`
}
