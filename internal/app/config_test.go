package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyEnvToConfig_FlagWins(t *testing.T) {
	t.Setenv("DEFAULT_MODEL", "groq:env-model")
	t.Setenv("ACCESS_SECRET", "env-secret")

	cfg := Config{DefaultModel: "groq:flag-model"}
	ApplyEnvToConfig(&cfg)
	if cfg.DefaultModel != "groq:flag-model" {
		t.Fatalf("explicit value overridden: %q", cfg.DefaultModel)
	}
	if cfg.AccessSecret != "env-secret" {
		t.Fatalf("unset value not filled from env: %q", cfg.AccessSecret)
	}
}

func TestApplyEnvToConfig_Booleans(t *testing.T) {
	t.Setenv("DEBUG", "true")
	t.Setenv("VERBOSE", "0")
	var cfg Config
	ApplyEnvToConfig(&cfg)
	if !cfg.Debug || cfg.Verbose {
		t.Fatalf("booleans: %+v", cfg)
	}
}

func TestApplyEnvToConfig_ScrapeTimeoutSeconds(t *testing.T) {
	t.Setenv("SCRAPE_TIMEOUT", "15")
	var cfg Config
	ApplyEnvToConfig(&cfg)
	if cfg.DefaultTimeout != 15*time.Second {
		t.Fatalf("timeout: %v", cfg.DefaultTimeout)
	}
}

func TestLoadConfigFile_AndMerge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
addr: ":9000"
llm:
  model: "openai:gpt-4o-mini"
search:
  limit: 7
  timeout: 20s
identity:
  allowedEmails:
    - a@example.com
debug: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fc, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cfg := Config{Addr: ":8081"}
	MergeFileConfig(&cfg, fc)
	if cfg.Addr != ":8081" {
		t.Fatalf("flag must win over file: %q", cfg.Addr)
	}
	if cfg.DefaultModel != "openai:gpt-4o-mini" || cfg.DefaultLimit != 7 {
		t.Fatalf("file values not merged: %+v", cfg)
	}
	if cfg.DefaultTimeout != 20*time.Second || !cfg.Debug {
		t.Fatalf("file values not merged: %+v", cfg)
	}
	if len(cfg.AllowedEmails) != 1 || cfg.AllowedEmails[0] != "a@example.com" {
		t.Fatalf("emails: %+v", cfg.AllowedEmails)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Addr == "" || cfg.DefaultModel == "" || cfg.SummarizerModel == "" {
		t.Fatalf("defaults missing: %+v", cfg)
	}
	if cfg.DefaultLimit != 5 || cfg.DefaultTimeout != 10*time.Second {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestBuildOrchestrator(t *testing.T) {
	o, err := BuildOrchestrator(Config{}, "test-key", "groq:llama-3.1-8b-instant")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if o.Caller == nil || o.Caller.Model != "llama-3.1-8b-instant" {
		t.Fatalf("caller: %+v", o.Caller)
	}
	if o.Searcher == nil {
		t.Fatalf("searcher missing")
	}
}

func TestBuildOrchestrator_BadModelSpec(t *testing.T) {
	if _, err := BuildOrchestrator(Config{}, "k", "mystery:model"); err == nil {
		t.Fatalf("unknown provider accepted")
	}
}
