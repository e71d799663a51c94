package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/goanswer/internal/llm"
	"github.com/hyperifyio/goanswer/internal/orchestrate"
	"github.com/hyperifyio/goanswer/internal/search"
)

// stubClient answers each call site from canned content keyed by system
// prompt.
type stubClient struct {
	decision  string
	digest    string
	cont      string
	synthesis string
	direct    string
}

func (s *stubClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	system := req.Messages[0].Content
	content := s.direct
	switch {
	case strings.Contains(system, "web search or can be answered"):
		content = s.decision
	case strings.Contains(system, "summarize web search results"):
		content = s.digest
	case strings.Contains(system, "more web searching"):
		content = s.cont
	case strings.Contains(system, "final answer from web search"):
		content = s.synthesis
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: "assistant", Content: content}},
		},
	}, nil
}

type stubSearcher struct {
	results []search.Result
	calls   int
}

func (s *stubSearcher) Search(context.Context, string, search.Options) (*search.Response, error) {
	s.calls++
	return &search.Response{Results: s.results, TotalFound: len(s.results)}, nil
}

func newTestServer(client *stubClient, searcher orchestrate.Searcher, cfg Config) *Server {
	return &Server{
		Config: cfg,
		Factory: func(apiKey, modelSpec string) (*orchestrate.Orchestrator, error) {
			_, model, err := llm.ParseModel(modelSpec)
			if err != nil {
				return nil, err
			}
			return &orchestrate.Orchestrator{
				Searcher: searcher,
				Caller:   &llm.Caller{Client: client, Model: model},
			}, nil
		},
	}
}

func postJSON(t *testing.T, srv *Server, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func defaultServer() (*Server, *stubSearcher) {
	searcher := &stubSearcher{results: []search.Result{
		{Title: "R1", URL: "https://example.com/1", Description: "d", Score: 50},
	}}
	client := &stubClient{
		decision:  `{"response": "4"}`,
		digest:    "Digest.",
		cont:      `{"continue": false, "reason": "done"}`,
		synthesis: "Answer https://example.com/1.",
		direct:    "Direct answer.",
	}
	return newTestServer(client, searcher, Config{DefaultModel: "groq:llama-3.1-8b-instant"}), searcher
}

func TestServeHTTP_OptionsPreflight(t *testing.T) {
	srv, _ := defaultServer()
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("missing CORS headers")
	}
}

func TestServeHTTP_MethodNotAllowed(t *testing.T) {
	srv, _ := defaultServer()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: %d", w.Code)
	}
	var body errorBody
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Success || body.ErrorType != ErrMethodNotAllowed {
		t.Fatalf("body: %+v", body)
	}
}

func TestServeHTTP_MissingQuery(t *testing.T) {
	srv, _ := defaultServer()
	w := postJSON(t, srv, `{"query": "  ", "api_key": "k"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
	var body errorBody
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.ErrorType != ErrInvalidInput {
		t.Fatalf("body: %+v", body)
	}
}

func TestServeHTTP_MissingAPIKey(t *testing.T) {
	srv, _ := defaultServer()
	w := postJSON(t, srv, `{"query": "q"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestServeHTTP_WrongAccessSecret(t *testing.T) {
	srv, _ := defaultServer()
	srv.Config.AccessSecret = "s3cret"
	w := postJSON(t, srv, `{"query": "q", "api_key": "k", "access_secret": "wrong"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d", w.Code)
	}
	var body errorBody
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.ErrorType != ErrUnauthorized {
		t.Fatalf("body: %+v", body)
	}
}

func TestServeHTTP_InvalidTemplates(t *testing.T) {
	srv, _ := defaultServer()
	w := postJSON(t, srv, `{"query": "q", "api_key": "k", "decision_template": "no placeholder"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("decision template: %d", w.Code)
	}
	w = postJSON(t, srv, `{"query": "q", "api_key": "k", "search_template": "{{QUERY}} only"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("search template: %d", w.Code)
	}
}

func TestServeHTTP_DirectAutoFlow(t *testing.T) {
	srv, searcher := defaultServer()
	w := postJSON(t, srv, `{"query": "what is 2+2?", "api_key": "k"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d body=%s", w.Code, w.Body.String())
	}
	var out orchestrate.Outcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Mode != orchestrate.AnswerModeDirect || out.Answer != "4" {
		t.Fatalf("outcome: %+v", out)
	}
	if searcher.calls != 0 {
		t.Fatalf("direct mode must not search")
	}
}

func TestServeHTTP_Base64Body(t *testing.T) {
	srv, _ := defaultServer()
	raw := `{"query": "what is 2+2?", "api_key": "k"}`
	encoded := base64.StdEncoding.EncodeToString([]byte(raw))
	w := postJSON(t, srv, encoded, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("base64 body rejected: %d %s", w.Code, w.Body.String())
	}
}

func TestServeHTTP_SearchFlowJSON(t *testing.T) {
	srv, searcher := defaultServer()
	body := `{"query": "latest news", "api_key": "k", "search_mode": "search"}`
	w := postJSON(t, srv, body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d %s", w.Code, w.Body.String())
	}
	var out orchestrate.Outcome
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Mode != orchestrate.AnswerModeSearch {
		t.Fatalf("mode: %q", out.Mode)
	}
	if searcher.calls != 1 {
		t.Fatalf("search calls: %d", searcher.calls)
	}
	if len(out.Links) == 0 || out.Links[0].URL != "https://example.com/1" {
		t.Fatalf("links: %+v", out.Links)
	}
}

func TestServeHTTP_UnknownSearchMode(t *testing.T) {
	srv, _ := defaultServer()
	w := postJSON(t, srv, `{"query": "q", "api_key": "k", "search_mode": "psychic"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestServeHTTP_StreamLifecycle(t *testing.T) {
	srv, _ := defaultServer()
	body := `{"query": "latest news", "api_key": "k", "search_mode": "search"}`
	w := postJSON(t, srv, body, map[string]string{"Accept": "text/event-stream"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
	events := parseSSEEvents(w.Body.String())
	if len(events) == 0 {
		t.Fatalf("no events")
	}
	if events[0] != "log" || events[1] != "init" {
		t.Fatalf("stream must open with log,init: %v", events)
	}
	if events[len(events)-1] != "complete" {
		t.Fatalf("stream must end with complete: %v", events)
	}
}

func TestServeHTTP_StreamQueryParameter(t *testing.T) {
	srv, _ := defaultServer()
	req := httptest.NewRequest(http.MethodPost, "/?stream=true",
		strings.NewReader(`{"query": "what is 2+2?", "api_key": "k"}`))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("?stream=true not honored: %q", ct)
	}
}

func TestServeHTTP_DebugDetail(t *testing.T) {
	srv, _ := defaultServer()
	w := postJSON(t, srv, `{"query": "", "api_key": "k"}`, nil)
	var body errorBody
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Detail != "" {
		t.Fatalf("detail leaked without debug: %+v", body)
	}

	srv.Config.Debug = true
	w = postJSON(t, srv, `{"query": "", "api_key": "k"}`, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Detail == "" {
		t.Fatalf("detail missing with debug: %+v", body)
	}
}

func parseSSEEvents(stream string) []string {
	var out []string
	for _, line := range strings.Split(stream, "\n") {
		if strings.HasPrefix(line, "event: ") {
			out = append(out, strings.TrimPrefix(line, "event: "))
		}
	}
	return out
}
