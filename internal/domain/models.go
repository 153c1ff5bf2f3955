package domain

import (
	"net/http"
	"time"
)

// ProviderName identifies one of the supported backends.
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOllama    ProviderName = "ollama"
)

// ParseProviderName validates a configured provider name.
func ParseProviderName(name string) (ProviderName, bool) {
	switch p := ProviderName(name); p {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama:
		return p, true
	default:
		return "", false
	}
}

// RequiresAPIKey reports whether the provider authenticates with a key.
func (p ProviderName) RequiresAPIKey() bool {
	return p == ProviderOpenAI || p == ProviderAnthropic
}

// RequestKind names the facade capability a request was built for.
type RequestKind string

const (
	KindChat             RequestKind = "chat"
	KindSummarize        RequestKind = "summarize"
	KindExtractTags      RequestKind = "extract_tags"
	KindAnalyzeSentiment RequestKind = "analyze_sentiment"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one logical call. It is built per call and never mutated.
type Request struct {
	Kind            RequestKind
	Messages        []Message
	Model           string
	MaxOutputTokens *int
	Temperature     *float64
}

// FinishReason is the normalized stop reason of a response.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishError  FinishReason = "error"
)

// Usage tracks token consumption. Providers may omit either side.
type Usage struct {
	InputUnits  int `json:"input_units"`
	OutputUnits int `json:"output_units"`
}

// Response is the decoded result of a successful logical call.
type Response struct {
	Text         string       `json:"text"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        *Usage       `json:"usage,omitempty"`
	Provider     ProviderName `json:"provider"`
	Model        string       `json:"model"`
	Attempts     int          `json:"attempts"`
}

// ProviderConfig is the resolved configuration for the selected provider.
// It is built once and shared read-only between concurrent callers.
type ProviderConfig struct {
	Provider         ProviderName
	BaseURL          string
	APIKey           string
	Model            string
	Timeout          time.Duration
	MaxAttempts      int
	BaseDelay        time.Duration
	CapDelay         time.Duration
	AIEnabled        bool
	Temperature      *float64
	MaxOutputTokens  *int
	AnthropicVersion string
}

// RetryPolicy derives the per-call retry policy from the configuration.
func (c *ProviderConfig) RetryPolicy() RetryPolicy {
	return NewRetryPolicy(c.MaxAttempts, c.BaseDelay, c.CapDelay)
}

// WireRequest is an encoded provider request ready for the transport.
type WireRequest struct {
	Provider ProviderName
	URL      string
	Header   http.Header
	Body     []byte
}

// Reply is what the transport hands back after a successful logical call.
type Reply struct {
	Body     []byte
	Response *Response
	Attempts int
}

// Outcome distinguishes a completed call from a deliberate AI-disabled no-op.
type Outcome string

const (
	OutcomeCompleted  Outcome = "completed"
	OutcomeAIDisabled Outcome = "ai_disabled"
)

// Result is returned by every facade operation that did not fail.
type Result struct {
	Outcome   Outcome
	Response  *Response
	Tags      []string
	Sentiment string
}

// Disabled reports whether AI processing was skipped by configuration.
func (r *Result) Disabled() bool {
	return r != nil && r.Outcome == OutcomeAIDisabled
}

// Text returns the response text, or "" for a disabled result.
func (r *Result) Text() string {
	if r == nil || r.Response == nil {
		return ""
	}
	return r.Response.Text
}
