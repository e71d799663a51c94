package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goanswer/internal/llm"
	"github.com/hyperifyio/goanswer/internal/orchestrate"
)

// PipelineFactory builds a per-request orchestrator from the caller's
// credential and model choice. Nothing built here outlives the request.
type PipelineFactory func(apiKey, modelSpec string) (*orchestrate.Orchestrator, error)

// TokenVerifier checks an identity token at the edge. Implementations must
// verify signatures; structural parsing alone is not acceptance.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) error
}

// Config is the immutable transport configuration.
type Config struct {
	// AccessSecret, when set, must match the request's access_secret.
	AccessSecret string
	// DefaultModel is the provider:model spec used when the request names
	// none.
	DefaultModel string
	// DefaultLimit is the per-query result cap default.
	DefaultLimit int
	// DefaultTimeout is the per-scrape timeout default.
	DefaultTimeout time.Duration
	// Debug attaches original error text to failure responses.
	Debug bool
	// Verifier, when set, gates requests on their google_token.
	Verifier TokenVerifier
}

// Server is the HTTP transport for the research orchestrator.
type Server struct {
	Config  Config
	Factory PipelineFactory
}

// requestBody is the snake_case inbound payload.
type requestBody struct {
	Query                string `json:"query"`
	APIKey               string `json:"api_key"`
	AccessSecret         string `json:"access_secret"`
	Model                string `json:"model"`
	SearchMode           string `json:"search_mode"`
	Limit                int    `json:"limit"`
	Content              *bool  `json:"content"`
	Timeout              int    `json:"timeout"`
	SystemPromptDecision string `json:"system_prompt_decision"`
	SystemPromptDirect   string `json:"system_prompt_direct"`
	SystemPromptSearch   string `json:"system_prompt_search"`
	DecisionTemplate     string `json:"decision_template"`
	SearchTemplate       string `json:"search_template"`
	GoogleToken          string `json:"google_token"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		s.writeError(w, http.StatusMethodNotAllowed, ErrMethodNotAllowed, nil)
		return
	}

	body, err := readBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrInvalidInput, err)
		return
	}
	var req requestBody
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, ErrInvalidInput, err)
		return
	}

	if status, errType, verr := s.validate(r.Context(), &req); verr != nil {
		s.writeError(w, status, errType, verr)
		return
	}

	orch, err := s.Factory(req.APIKey, s.modelSpec(req.Model))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, ErrInvalidInput, err)
		return
	}
	runReq := s.buildRequest(req)

	if wantsStream(r) {
		s.serveStream(w, r, orch, runReq)
		return
	}

	outcome, err := orch.Run(r.Context(), runReq, nil)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nothing useful to write.
			return
		}
		status, errType := Classify(err)
		s.writeError(w, status, errType, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// validate normalizes and checks the request in place.
func (s *Server) validate(ctx context.Context, req *requestBody) (int, ErrorType, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return http.StatusBadRequest, ErrInvalidInput, errMissing("query")
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return http.StatusBadRequest, ErrInvalidInput, errMissing("api_key")
	}
	if s.Config.AccessSecret != "" {
		if subtle.ConstantTimeCompare([]byte(req.AccessSecret), []byte(s.Config.AccessSecret)) != 1 {
			return http.StatusUnauthorized, ErrUnauthorized, errValue("access_secret mismatch")
		}
	}
	if s.Config.Verifier != nil {
		if err := s.Config.Verifier.Verify(ctx, req.GoogleToken); err != nil {
			return http.StatusUnauthorized, ErrUnauthorized, err
		}
	}
	switch req.SearchMode {
	case "":
		req.SearchMode = orchestrate.ModeAuto
	case orchestrate.ModeAuto, orchestrate.ModeSearch, orchestrate.ModeDirect:
	default:
		return http.StatusBadRequest, ErrInvalidInput, errValue("search_mode must be auto, search, or direct")
	}
	if !llm.ValidateDecisionTemplate(req.DecisionTemplate) {
		return http.StatusBadRequest, ErrInvalidInput, errValue("decision_template must contain {{QUERY}}")
	}
	if !llm.ValidateSearchTemplate(req.SearchTemplate) {
		return http.StatusBadRequest, ErrInvalidInput, errValue("search_template must contain {{QUERY}} and {{SEARCH_CONTEXT}}")
	}
	return 0, "", nil
}

func (s *Server) modelSpec(requested string) string {
	if strings.TrimSpace(requested) != "" {
		return requested
	}
	return s.Config.DefaultModel
}

func (s *Server) buildRequest(req requestBody) orchestrate.Request {
	limit := req.Limit
	if limit <= 0 {
		limit = s.Config.DefaultLimit
	}
	if limit <= 0 {
		limit = 5
	}
	timeout := s.Config.DefaultTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	fetchContent := true
	if req.Content != nil {
		fetchContent = *req.Content
	}
	return orchestrate.Request{
		Query:        req.Query,
		SearchMode:   req.SearchMode,
		Limit:        limit,
		FetchContent: fetchContent,
		Timeout:      timeout,
		Prompts: llm.Prompts{
			DecisionSystem:   req.SystemPromptDecision,
			DirectSystem:     req.SystemPromptDirect,
			SearchSystem:     req.SystemPromptSearch,
			DecisionTemplate: req.DecisionTemplate,
			SearchTemplate:   req.SearchTemplate,
		},
	}
}

// readBody returns the request payload, transparently decoding a
// base64-wrapped body from the enclosing runtime.
func readBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed), nil
	}
	if decoded, derr := base64.StdEncoding.DecodeString(trimmed); derr == nil {
		return decoded, nil
	}
	return raw, nil
}

func wantsStream(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		return true
	}
	return r.URL.Query().Get("stream") == "true"
}

func setCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Accept")
}

func (s *Server) writeError(w http.ResponseWriter, status int, errType ErrorType, cause error) {
	body := errorBody{
		Success:   false,
		Error:     userMessage[errType],
		ErrorType: errType,
	}
	if s.Config.Debug && cause != nil {
		body.Detail = cause.Error()
	}
	if cause != nil {
		log.Warn().Int("status", status).Str("errorType", string(errType)).Err(cause).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encode failed")
	}
}

type fieldError struct{ msg string }

func (e fieldError) Error() string { return e.msg }

func errMissing(field string) error { return fieldError{msg: field + " is required"} }
func errValue(msg string) error     { return fieldError{msg: msg} }
