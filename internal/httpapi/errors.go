package httpapi

import (
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/goanswer/internal/llm"
	"github.com/hyperifyio/goanswer/internal/search"
)

// ErrorType is the stable machine-readable token attached to every failure
// response.
type ErrorType string

const (
	ErrInvalidInput       ErrorType = "INVALID_INPUT"
	ErrUnauthorized       ErrorType = "UNAUTHORIZED"
	ErrMethodNotAllowed   ErrorType = "METHOD_NOT_ALLOWED"
	ErrInvalidAPIKey      ErrorType = "INVALID_API_KEY"
	ErrRateLimited        ErrorType = "RATE_LIMITED"
	ErrQuotaExceeded      ErrorType = "QUOTA_EXCEEDED"
	ErrServiceUnavailable ErrorType = "SERVICE_UNAVAILABLE"
	ErrSearchService      ErrorType = "SEARCH_SERVICE_ERROR"
	ErrInternal           ErrorType = "INTERNAL_ERROR"
)

// errorBody is the JSON failure envelope. Detail carries the original error
// text only when the debug flag is set.
type errorBody struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	ErrorType ErrorType `json:"errorType"`
	Detail    string    `json:"detail,omitempty"`
}

// userMessage maps error types to non-sensitive messages.
var userMessage = map[ErrorType]string{
	ErrInvalidInput:       "the request is missing a required field or contains an invalid value",
	ErrUnauthorized:       "the request is not authorized",
	ErrMethodNotAllowed:   "only POST requests are accepted",
	ErrInvalidAPIKey:      "the upstream provider rejected the API key",
	ErrRateLimited:        "the upstream provider is rate limiting requests",
	ErrQuotaExceeded:      "the upstream provider reports an exhausted quota or billing issue",
	ErrServiceUnavailable: "an upstream service is unavailable",
	ErrSearchService:      "the search service did not return usable results",
	ErrInternal:           "an internal error occurred",
}

// Classify maps a pipeline error to a status code and stable error type.
func Classify(err error) (int, ErrorType) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		switch {
		case strings.Contains(msg, "quota") || strings.Contains(msg, "billing"):
			return http.StatusPaymentRequired, ErrQuotaExceeded
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return http.StatusTooManyRequests, ErrRateLimited
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return http.StatusUnauthorized, ErrInvalidAPIKey
		case apiErr.HTTPStatusCode >= 500:
			return http.StatusServiceUnavailable, ErrServiceUnavailable
		}
		return http.StatusInternalServerError, ErrInternal
	}
	var se *search.SearchError
	if errors.As(err, &se) {
		return http.StatusBadGateway, ErrSearchService
	}
	if llm.IsRetryable(err) {
		// Network-level or timeout failures that survived retries.
		return http.StatusServiceUnavailable, ErrServiceUnavailable
	}
	return http.StatusInternalServerError, ErrInternal
}
