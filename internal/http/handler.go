package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidbz/cookbook/internal/config"
	"github.com/davidbz/cookbook/internal/domain"
	"github.com/davidbz/cookbook/internal/observability"
)

const (
	maxRequestBytes = 1 << 20
	deadlineMargin  = 2 * time.Second
)

// LLMService is the facade the handler serves.
type LLMService interface {
	Chat(ctx context.Context, messages []domain.Message) (*domain.Result, error)
	Summarize(ctx context.Context, text, style string) (*domain.Result, error)
	ExtractTags(ctx context.Context, text string, maxTags int) (*domain.Result, error)
	AnalyzeSentiment(ctx context.Context, text string) (*domain.Result, error)
}

// Handler handles HTTP requests.
type Handler struct {
	llm         LLMService
	metrics     http.Handler
	callTimeout time.Duration
}

// NewHandler creates a new HTTP handler (DI constructor). Every LLM call is
// bounded so that it ends before the server's write timeout.
func NewHandler(llm LLMService, registry *prometheus.Registry, cfg *config.ServerConfig) *Handler {
	return &Handler{
		llm:         llm,
		metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		callTimeout: callTimeout(cfg),
	}
}

// callTimeout leaves a margin of at most deadlineMargin (or a tenth of the
// write timeout) to write the error. Zero means unbounded.
func callTimeout(cfg *config.ServerConfig) time.Duration {
	if cfg == nil || cfg.WriteTimeout <= 0 {
		return 0
	}
	write := time.Duration(cfg.WriteTimeout) * time.Second
	return write - min(deadlineMargin, write/10)
}

type chatRequest struct {
	Messages []domain.Message `json:"messages"`
}

type summarizeRequest struct {
	Text  string `json:"text"`
	Style string `json:"style"`
}

type tagsRequest struct {
	Text    string `json:"text"`
	MaxTags int    `json:"max_tags"`
}

type sentimentRequest struct {
	Text string `json:"text"`
}

type resultResponse struct {
	Outcome      domain.Outcome      `json:"outcome"`
	Text         string              `json:"text,omitempty"`
	Tags         []string            `json:"tags,omitempty"`
	Sentiment    string              `json:"sentiment,omitempty"`
	FinishReason domain.FinishReason `json:"finish_reason,omitempty"`
	Usage        *domain.Usage       `json:"usage,omitempty"`
	Provider     domain.ProviderName `json:"provider,omitempty"`
	Model        string              `json:"model,omitempty"`
	Attempts     int                 `json:"attempts,omitempty"`
}

type errorBody struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// HandleChat forwards a message list unchanged.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}

	if len(req.Messages) == 0 {
		writeBadRequest(w, "messages are required")
		return
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case domain.RoleSystem, domain.RoleUser, domain.RoleAssistant:
		default:
			writeBadRequest(w, fmt.Sprintf("unknown role %q", msg.Role))
			return
		}
	}

	h.serve(w, r, "chat", func(ctx context.Context) (*domain.Result, error) {
		return h.llm.Chat(ctx, req.Messages)
	})
}

// HandleSummarize summarizes text in an optional style.
func (h *Handler) HandleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if !decode(w, r, &req) || !requireText(w, req.Text) {
		return
	}

	h.serve(w, r, "summarize", func(ctx context.Context) (*domain.Result, error) {
		return h.llm.Summarize(ctx, req.Text, req.Style)
	})
}

// HandleTags extracts tags from text.
func (h *Handler) HandleTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	if !decode(w, r, &req) || !requireText(w, req.Text) {
		return
	}

	if req.MaxTags < 0 || req.MaxTags > domain.MaxTagsLimit {
		writeBadRequest(w, fmt.Sprintf("max_tags must be between 0 and %d", domain.MaxTagsLimit))
		return
	}

	h.serve(w, r, "extract_tags", func(ctx context.Context) (*domain.Result, error) {
		return h.llm.ExtractTags(ctx, req.Text, req.MaxTags)
	})
}

// HandleSentiment classifies the sentiment of text.
func (h *Handler) HandleSentiment(w http.ResponseWriter, r *http.Request) {
	var req sentimentRequest
	if !decode(w, r, &req) || !requireText(w, req.Text) {
		return
	}

	h.serve(w, r, "analyze_sentiment", func(ctx context.Context) (*domain.Result, error) {
		return h.llm.AnalyzeSentiment(ctx, req.Text)
	})
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// HandleMetrics serves the Prometheus registry.
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

func (h *Handler) serve(
	w http.ResponseWriter,
	r *http.Request,
	operation string,
	call func(ctx context.Context) (*domain.Result, error),
) {
	ctx := observability.WithOperation(r.Context(), operation)
	if h.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.callTimeout)
		defer cancel()
	}
	logger := observability.FromContext(ctx)

	result, err := call(ctx)
	if err != nil {
		status, body := errorStatus(err)
		logger.Warn("request failed",
			observability.Int("status", status),
			observability.String("kind", body.Kind),
			observability.Error(err))
		writeJSON(w, status, errorResponse{Error: body})
		return
	}

	writeJSON(w, http.StatusOK, toResponse(result))
}

func toResponse(result *domain.Result) resultResponse {
	resp := resultResponse{
		Outcome:   result.Outcome,
		Tags:      result.Tags,
		Sentiment: result.Sentiment,
	}

	if r := result.Response; r != nil {
		resp.Text = r.Text
		resp.FinishReason = r.FinishReason
		resp.Usage = r.Usage
		resp.Provider = r.Provider
		resp.Model = r.Model
		resp.Attempts = r.Attempts
	}

	return resp
}

// StatusFor maps an error kind to the HTTP status returned to callers.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindProviderRejected:
		return http.StatusUnprocessableEntity
	case domain.KindTransport:
		return http.StatusGatewayTimeout
	case domain.KindAuth, domain.KindServerError, domain.KindMalformed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorStatus(err error) (int, errorBody) {
	var llmErr *domain.Error
	if !errors.As(err, &llmErr) {
		return http.StatusInternalServerError, errorBody{Kind: "internal", Message: err.Error()}
	}

	message := llmErr.Message
	if message == "" {
		message = llmErr.Error()
	}

	return StatusFor(llmErr.Kind), errorBody{
		Kind:       string(llmErr.Kind),
		Message:    message,
		StatusCode: llmErr.StatusCode,
		Attempts:   llmErr.Attempts,
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: errorBody{
			Kind:    "invalid_request",
			Message: "method not allowed",
		}})
		return false
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}

	return true
}

func requireText(w http.ResponseWriter, text string) bool {
	if strings.TrimSpace(text) == "" {
		writeBadRequest(w, "text is required")
		return false
	}
	return true
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
		Kind:    "invalid_request",
		Message: message,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Already written status, can't change it, just log.
		observability.FromContext(context.Background()).Debug("failed to encode response", observability.Error(err))
	}
}
