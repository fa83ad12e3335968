// Package config loads deskmirror's configuration surface: defaults, then
// a TOML file, then environment overrides (env wins), matching the
// teacher's config.go layering.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is deskmirror's full configuration surface per spec.md §6.
type Config struct {
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Context    ContextConfig    `toml:"context"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	LLM        LLMConfig        `toml:"llm"`
	Intent     IntentConfig     `toml:"intent"`
	Upstream   UpstreamConfig   `toml:"upstream"`
	Database   DatabaseConfig   `toml:"database"`
	Observer   ObserverConfig   `toml:"observer"`
}

// SchedulerConfig controls the poll tick, spec.md §4.3/§6.
type SchedulerConfig struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// ContextConfig controls the progressive summarizer, spec.md §4.5.
type ContextConfig struct {
	MaxRecentTurns      int `toml:"max_recent_turns"`
	SummarizeThreshold  int `toml:"summarize_threshold"`
	MaxSummaryTokens    int `toml:"max_summary_tokens"`
}

// EmbeddingConfig identifies the embedding host, spec.md §6.
type EmbeddingConfig struct {
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	APIKey     string `toml:"api_key"`
}

// LLMConfig identifies the primary language-model host, spec.md §6.
type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
}

// IntentConfig identifies the optional, cheaper classification host used by
// Agent.classifyIntent (SPEC_FULL.md's intent-routing supplement). Load
// fills an empty Provider and APIKey from the llm section, so intent
// routing is disabled, and every turn runs the full tool-calling loop, only
// when llm.provider is empty too.
type IntentConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
}

// UpstreamConfig holds the workspace API token, spec.md §6.
type UpstreamConfig struct {
	Token string `toml:"token"`
	Host  string `toml:"host"`
}

// DatabaseConfig holds the store connection string, spec.md §6. Backend is
// "sqlite" (Path used) or "postgres" (DSN used).
type DatabaseConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
	DSN     string `toml:"dsn"`
}

// ObserverConfig enables OpenTelemetry tracing and metrics (internal/
// telemetry) in both CLI daemons, carried over from the teacher as an
// ambient concern, not part of spec.md's named feature set.
type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with spec.md §6's defaults applied.
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{PollIntervalSeconds: 60},
		Context: ContextConfig{
			MaxRecentTurns:     4,
			SummarizeThreshold: 6,
			MaxSummaryTokens:   1000,
		},
		Database: DatabaseConfig{Backend: "sqlite", Path: "deskmirror.db"},
	}
}

// Load reads config: defaults -> TOML file -> .env -> env vars (env wins).
// A missing or unreadable file at path is silently ignored, matching the
// teacher's config.go (absence means "use defaults", not a fatal error).
// .env is loaded via godotenv before the env-var overrides below are read,
// the same load-dotenv-then-read-os-environ idiom the rest of the example
// pack's CLI daemons use so a developer machine's DESKMIRROR_* vars don't
// have to be exported by hand.
func Load(path string) Config {
	cfg := Default()
	_ = godotenv.Load()

	if path == "" {
		path = "deskmirror.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	if v := os.Getenv("DESKMIRROR_UPSTREAM_TOKEN"); v != "" {
		cfg.Upstream.Token = v
	}
	if v := os.Getenv("DESKMIRROR_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("DESKMIRROR_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("DESKMIRROR_INTENT_API_KEY"); v != "" {
		cfg.Intent.APIKey = v
	}
	if v := os.Getenv("DESKMIRROR_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if os.Getenv("DESKMIRROR_OBSERVER_ENABLED") == "true" || os.Getenv("DESKMIRROR_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	if cfg.Intent.APIKey == "" {
		cfg.Intent.APIKey = cfg.LLM.APIKey
	}
	if cfg.Intent.Provider == "" {
		cfg.Intent.Provider = cfg.LLM.Provider
	}

	return cfg
}
