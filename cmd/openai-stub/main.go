package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
)

// openai-stub is a local OpenAI-compatible endpoint that answers the
// research pipeline's call sites deterministically, for development and
// end-to-end testing without a real provider.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func main() {
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "test-model"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		sys, user := "", ""
		if len(req.Messages) > 0 {
			sys = strings.TrimSpace(req.Messages[0].Content)
		}
		if len(req.Messages) >= 2 {
			user = req.Messages[1].Content
		}

		var content string
		switch {
		case strings.Contains(sys, "web search or can be answered"):
			// Initial decision: search unless the question looks like
			// arithmetic.
			if strings.Contains(user, "2+2") {
				content = `{"response": "4"}`
			} else {
				plan := map[string]any{"search_queries": []string{
					firstLineAfter(user, "Question: ") + " overview",
					firstLineAfter(user, "Question: ") + " latest",
				}}
				b, _ := json.Marshal(plan)
				content = string(b)
			}
		case strings.Contains(sys, "summarize web search results"):
			content = "The results agree on the main facts. Two sources add recent context. One source is an official reference."
		case strings.Contains(sys, "more web searching"):
			content = `{"continue": false, "reason": "the findings already cover the question"}`
		case strings.Contains(sys, "final answer from web search"):
			content = "Based on the sources, the short answer is above; see https://example.com/source for details."
		case strings.Contains(sys, "compress a web page"):
			content = "A compact summary of the page in well under three hundred words."
		default:
			content = "A direct answer from model knowledge."
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": model,
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
			"usage": map[string]int{"prompt_tokens": 20, "completion_tokens": 10, "total_tokens": 30},
		})
	})

	log.Printf("openai-stub listening on %s (model=%s)", addr, model)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func firstLineAfter(s, marker string) string {
	idx := strings.Index(s, marker)
	if idx < 0 {
		return "the question"
	}
	rest := s[idx+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}
