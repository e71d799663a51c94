package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goanswer/internal/app"
	"github.com/hyperifyio/goanswer/internal/httpapi"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// .env support for local development; real deployments set env directly.
	_ = godotenv.Load()

	var (
		addr          string
		configPath    string
		accessSecret  string
		model         string
		summarizer    string
		searchBase    string
		limit         int
		scrapeTimeout time.Duration
		clientID      string
		allowedEmails string
		debug         bool
		verbose       bool
	)

	flag.StringVar(&addr, "addr", "", "Listen address, e.g. :8080")
	flag.StringVar(&configPath, "config", "", "Optional YAML config file")
	flag.StringVar(&accessSecret, "secret", "", "Shared access secret required on requests")
	flag.StringVar(&model, "model", "", "Default provider:model, e.g. groq:llama-3.3-70b-versatile")
	flag.StringVar(&summarizer, "summarizer", "", "Cheap provider:model for page pre-summarization")
	flag.StringVar(&searchBase, "search.base", "", "Search frontend base URL override")
	flag.IntVar(&limit, "limit", 0, "Default top-K results per query")
	flag.DurationVar(&scrapeTimeout, "scrape.timeout", 0, "Default per-scrape timeout")
	flag.StringVar(&clientID, "google.clientID", "", "Google client ID for identity token verification")
	flag.StringVar(&allowedEmails, "google.allowedEmails", "", "Comma-separated allowed identity emails")
	flag.BoolVar(&debug, "debug", false, "Attach original error text to failure responses")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	cfg := app.Config{
		Addr:            addr,
		AccessSecret:    accessSecret,
		DefaultModel:    model,
		SummarizerModel: summarizer,
		SearchBaseURL:   searchBase,
		DefaultLimit:    limit,
		DefaultTimeout:  scrapeTimeout,
		GoogleClientID:  clientID,
		Debug:           debug,
		Verbose:         verbose,
	}
	if allowedEmails != "" {
		for _, e := range strings.Split(allowedEmails, ",") {
			if e = strings.TrimSpace(e); e != "" {
				cfg.AllowedEmails = append(cfg.AllowedEmails, e)
			}
		}
	}
	if configPath != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", configPath).Msg("config file")
		}
		app.MergeFileConfig(&cfg, fc)
	}
	app.ApplyEnvToConfig(&cfg)

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	srvCfg := httpapi.Config{
		AccessSecret:   cfg.AccessSecret,
		DefaultModel:   cfg.DefaultModel,
		DefaultLimit:   cfg.DefaultLimit,
		DefaultTimeout: cfg.DefaultTimeout,
		Debug:          cfg.Debug,
	}
	if cfg.GoogleClientID != "" {
		srvCfg.Verifier = &app.GoogleTokenVerifier{
			ClientID:      cfg.GoogleClientID,
			AllowedEmails: cfg.AllowedEmails,
		}
	}
	handler := &httpapi.Server{
		Config:  srvCfg,
		Factory: app.NewPipelineFactory(cfg),
	}

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	listenAddr := cfg.Addr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: SSE streams outlive any fixed value; per-call
		// timeouts bound the pipeline instead.
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", listenAddr).Str("model", cfg.DefaultModel).Msg("goanswerd listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("goanswerd stopped")
}
