package app

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration schema. Nested sections map
// naturally to flags and env.
type FileConfig struct {
	Addr         string `yaml:"addr"`
	AccessSecret string `yaml:"accessSecret"`

	LLM struct {
		Model      string `yaml:"model"`
		Summarizer string `yaml:"summarizer"`
	} `yaml:"llm"`

	Search struct {
		BaseURL string        `yaml:"baseURL"`
		Limit   int           `yaml:"limit"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"search"`

	Identity struct {
		GoogleClientID string   `yaml:"googleClientID"`
		AllowedEmails  []string `yaml:"allowedEmails"`
	} `yaml:"identity"`

	Debug   bool `yaml:"debug"`
	Verbose bool `yaml:"verbose"`
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config: %w", err)
	}
	return fc, nil
}

// MergeFileConfig copies file values into unset cfg fields. Explicit cfg
// values (flags) take precedence.
func MergeFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	if cfg.Addr == "" {
		cfg.Addr = fc.Addr
	}
	if cfg.AccessSecret == "" {
		cfg.AccessSecret = fc.AccessSecret
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = fc.LLM.Model
	}
	if cfg.SummarizerModel == "" {
		cfg.SummarizerModel = fc.LLM.Summarizer
	}
	if cfg.SearchBaseURL == "" {
		cfg.SearchBaseURL = fc.Search.BaseURL
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = fc.Search.Limit
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = fc.Search.Timeout
	}
	if cfg.GoogleClientID == "" {
		cfg.GoogleClientID = fc.Identity.GoogleClientID
	}
	if len(cfg.AllowedEmails) == 0 {
		cfg.AllowedEmails = fc.Identity.AllowedEmails
	}
	if !cfg.Debug {
		cfg.Debug = fc.Debug
	}
	if !cfg.Verbose {
		cfg.Verbose = fc.Verbose
	}
}
