package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Scheduler.PollIntervalSeconds != 60 {
		t.Errorf("expected poll_interval_seconds=60, got %d", cfg.Scheduler.PollIntervalSeconds)
	}
	if cfg.Context.MaxRecentTurns != 4 {
		t.Errorf("expected max_recent_turns=4, got %d", cfg.Context.MaxRecentTurns)
	}
	if cfg.Context.SummarizeThreshold != 6 {
		t.Errorf("expected summarize_threshold=6, got %d", cfg.Context.SummarizeThreshold)
	}
	if cfg.Context.MaxSummaryTokens != 1000 {
		t.Errorf("expected max_summary_tokens=1000, got %d", cfg.Context.MaxSummaryTokens)
	}
	if cfg.Database.Backend != "sqlite" {
		t.Errorf("expected default backend sqlite, got %s", cfg.Database.Backend)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[upstream]
token = "xoxb-test"
host = "example.slack.com"

[llm]
provider = "anthropic"
model = "claude-test"
`), 0644)

	cfg := Load(path)
	if cfg.Upstream.Token != "xoxb-test" {
		t.Errorf("expected xoxb-test, got %s", cfg.Upstream.Token)
	}
	if cfg.LLM.Provider != "anthropic" {
		t.Errorf("expected anthropic, got %s", cfg.LLM.Provider)
	}
	// Defaults preserved for fields the TOML didn't set.
	if cfg.Scheduler.PollIntervalSeconds != 60 {
		t.Errorf("default should be preserved, got %d", cfg.Scheduler.PollIntervalSeconds)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DESKMIRROR_UPSTREAM_TOKEN", "env-token")
	t.Setenv("DESKMIRROR_LLM_API_KEY", "env-key")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Upstream.Token != "env-token" {
		t.Errorf("expected env-token, got %s", cfg.Upstream.Token)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.LLM.APIKey)
	}
	// Fallback: intent gets the LLM key and provider when unset.
	if cfg.Intent.APIKey != "env-key" {
		t.Errorf("expected intent fallback to env-key, got %s", cfg.Intent.APIKey)
	}
}

func TestIntentProviderFallsBackToLLMProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[llm]
provider = "anthropic"
`), 0644)

	cfg := Load(path)
	if cfg.Intent.Provider != "anthropic" {
		t.Errorf("expected intent provider to fall back to anthropic, got %s", cfg.Intent.Provider)
	}
}

func TestIntentProviderNotOverriddenWhenSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[llm]
provider = "anthropic"

[intent]
provider = "openai"
`), 0644)

	cfg := Load(path)
	if cfg.Intent.Provider != "openai" {
		t.Errorf("expected explicit intent provider to stick, got %s", cfg.Intent.Provider)
	}
}
