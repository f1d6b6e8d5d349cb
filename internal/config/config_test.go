package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ARXIV_DIGEST_CONFIG", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL_NAME",
		"SUMMARY_LANGUAGE", "WEBHOOK_URL", "USER_INTEREST", "FILTER_LEVEL",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Scheduler.CronExpression != "0 6 * * *" {
		t.Errorf("cron = %q", cfg.Scheduler.CronExpression)
	}
	if cfg.Digest.FilterLevel != "none" {
		t.Errorf("filterLevel = %q", cfg.Digest.FilterLevel)
	}
	if cfg.Digest.Language != "English" {
		t.Errorf("language = %q", cfg.Digest.Language)
	}
	if cfg.Digest.MaxPapersPerMessage != 10 {
		t.Errorf("maxPapersPerMessage = %d", cfg.Digest.MaxPapersPerMessage)
	}
	if cfg.OpenAI.Model != "gpt-3.5-turbo" {
		t.Errorf("model = %q", cfg.OpenAI.Model)
	}
	if cfg.Resilience.MaxAttempts != 5 {
		t.Errorf("maxAttempts = %d", cfg.Resilience.MaxAttempts)
	}
	if len(cfg.Sites) != 1 || cfg.Sites[0].Scanner != "arxiv" {
		t.Errorf("unexpected sites: %+v", cfg.Sites)
	}
	if got := cfg.Sites[0].Categories[0].URL; got != "https://arxiv.org/list/eess.AS/new" {
		t.Errorf("category url = %q", got)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error without OPENAI_API_KEY")
	}
}

func TestLoadRejectsInvalidFilterLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("FILTER_LEVEL", "medium")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown filter level")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "https://proxy.example/v1/chat/completions")
	t.Setenv("OPENAI_MODEL_NAME", "gpt-4o-mini")
	t.Setenv("SUMMARY_LANGUAGE", "Chinese")
	t.Setenv("WEBHOOK_URL", "https://hooks.example/abc")
	t.Setenv("USER_INTEREST", "speech synthesis")
	t.Setenv("FILTER_LEVEL", "High")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.OpenAI.Endpoint != "https://proxy.example/v1/chat/completions" {
		t.Errorf("endpoint = %q", cfg.OpenAI.Endpoint)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", cfg.OpenAI.Model)
	}
	if cfg.Digest.Language != "Chinese" {
		t.Errorf("language = %q", cfg.Digest.Language)
	}
	if cfg.Webhook.URL != "https://hooks.example/abc" {
		t.Errorf("webhook url = %q", cfg.Webhook.URL)
	}
	if cfg.Digest.UserInterest != "speech synthesis" {
		t.Errorf("interest = %q", cfg.Digest.UserInterest)
	}
	if cfg.Digest.FilterLevel != "High" {
		t.Errorf("filterLevel = %q", cfg.Digest.FilterLevel)
	}
}

func TestLoadYAMLFileWithEnvOverride(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
logging:
  level: debug
scheduler:
  cronExpression: "30 7 * * *"
  timezone: Europe/Berlin
digest:
  userInterest: "audio codecs"
  filterLevel: mid
  language: German
  maxPapersPerMessage: 5
openai:
  apiKey: file-key
  model: file-model
limits:
  maxConcurrent: 2
  requestsPerMinute: 10
sites:
  - name: arxiv
    scanner: arxiv
    categories:
      - name: cs.SD
        url: https://arxiv.org/list/cs.SD/new
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ARXIV_DIGEST_CONFIG", path)
	t.Setenv("OPENAI_API_KEY", "env-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.OpenAI.APIKey != "env-key" {
		t.Errorf("env must override file key, got %q", cfg.OpenAI.APIKey)
	}
	if cfg.OpenAI.Model != "file-model" {
		t.Errorf("model = %q", cfg.OpenAI.Model)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q", cfg.Logging.Level)
	}
	if cfg.Scheduler.CronExpression != "30 7 * * *" {
		t.Errorf("cron = %q", cfg.Scheduler.CronExpression)
	}
	if cfg.Scheduler.Location().String() != "Europe/Berlin" {
		t.Errorf("timezone = %q", cfg.Scheduler.Location())
	}
	if cfg.Digest.FilterLevel != "mid" {
		t.Errorf("filterLevel = %q", cfg.Digest.FilterLevel)
	}
	if cfg.Digest.MaxPapersPerMessage != 5 {
		t.Errorf("maxPapersPerMessage = %d", cfg.Digest.MaxPapersPerMessage)
	}
	if cfg.Limits.MaxConcurrent != 2 {
		t.Errorf("maxConcurrent = %d", cfg.Limits.MaxConcurrent)
	}
	if len(cfg.Sites) != 1 || cfg.Sites[0].Categories[0].Name != "cs.SD" {
		t.Errorf("unexpected sites: %+v", cfg.Sites)
	}
}

func TestLoadMissingConfigFileFails(t *testing.T) {
	clearEnv(t)
	t.Setenv("ARXIV_DIGEST_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("OPENAI_API_KEY", "sk-test")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unreadable config file")
	}
}

func TestLoadInvalidTimezoneFallsBackToUTC(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
scheduler:
  timezone: Mars/Olympus
openai:
  apiKey: file-key
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ARXIV_DIGEST_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Scheduler.Location().String() != "UTC" {
		t.Errorf("expected UTC fallback, got %q", cfg.Scheduler.Location())
	}
}
