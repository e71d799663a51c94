package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvToConfig populates unset fields of cfg from environment variables.
// Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Addr == "" {
		if v := os.Getenv("ADDR"); v != "" {
			cfg.Addr = v
		} else if p := os.Getenv("PORT"); p != "" {
			cfg.Addr = ":" + p
		}
	}
	if cfg.AccessSecret == "" {
		cfg.AccessSecret = os.Getenv("ACCESS_SECRET")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = os.Getenv("DEFAULT_MODEL")
	}
	if cfg.SummarizerModel == "" {
		cfg.SummarizerModel = os.Getenv("SUMMARIZER_MODEL")
	}
	if cfg.SearchBaseURL == "" {
		cfg.SearchBaseURL = os.Getenv("SEARCH_BASE_URL")
	}
	if cfg.GoogleClientID == "" {
		cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if len(cfg.AllowedEmails) == 0 {
		if v := strings.TrimSpace(os.Getenv("ALLOWED_EMAILS")); v != "" {
			for _, e := range strings.Split(v, ",") {
				if e = strings.TrimSpace(e); e != "" {
					cfg.AllowedEmails = append(cfg.AllowedEmails, e)
				}
			}
		}
	}
	if cfg.DefaultLimit == 0 {
		if n, err := strconv.Atoi(os.Getenv("DEFAULT_LIMIT")); err == nil && n > 0 {
			cfg.DefaultLimit = n
		}
	}
	if cfg.DefaultTimeout == 0 {
		if s := os.Getenv("SCRAPE_TIMEOUT"); s != "" {
			if d, err := time.ParseDuration(s); err == nil {
				cfg.DefaultTimeout = d
			} else if n, err := strconv.Atoi(s); err == nil && n > 0 {
				cfg.DefaultTimeout = time.Duration(n) * time.Second
			}
		}
	}

	setBool := func(dst *bool, envKey string) {
		if *dst {
			return
		}
		switch strings.ToLower(strings.TrimSpace(os.Getenv(envKey))) {
		case "1", "true", "yes", "on":
			*dst = true
		}
	}
	setBool(&cfg.Debug, "DEBUG")
	setBool(&cfg.Verbose, "VERBOSE")
}
