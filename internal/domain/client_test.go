package domain_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/cookbook/internal/domain"
	"github.com/davidbz/cookbook/internal/observability"
	"github.com/davidbz/cookbook/internal/provider/anthropic"
	"github.com/davidbz/cookbook/internal/provider/ollama"
	"github.com/davidbz/cookbook/internal/provider/openai"
	"github.com/davidbz/cookbook/internal/provider/registry"
	"github.com/davidbz/cookbook/internal/transport"
)

// instantTimer records backoff delays without sleeping.
type instantTimer struct {
	mu     sync.Mutex
	delays []time.Duration
	ch     chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delays = append(t.delays, d)
	t.ch = make(chan time.Time, 1)
	t.ch <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ch
}

// countingTransport fails the test if anything reaches the network.
type countingTransport struct {
	calls atomic.Int32
}

func (c *countingTransport) Send(
	_ context.Context,
	_ *domain.WireRequest,
	_ domain.RetryPolicy,
	_ domain.Codec,
) (*domain.Reply, error) {
	c.calls.Add(1)
	return nil, domain.NewError(domain.KindTransport, "unexpected call", nil)
}

type harness struct {
	client  *domain.Client
	timer   *instantTimer
	metrics *observability.Metrics
}

func newHarness(t *testing.T, cfg *domain.ProviderConfig) *harness {
	t.Helper()
	ctx := context.Background()

	reg := registry.NewRegistry()
	require.NoError(t, reg.Register(ctx, openai.NewAdapter()))
	require.NoError(t, reg.Register(ctx, anthropic.NewAdapter()))
	require.NoError(t, reg.Register(ctx, ollama.NewAdapter()))

	metrics, err := observability.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	timer := &instantTimer{}
	tr := transport.NewClient(cfg, metrics,
		transport.WithTimer(func() backoff.Timer { return timer }),
		transport.WithJitter(func() float64 { return 0 }),
	)

	return &harness{
		client:  domain.NewClient(cfg, reg, tr, metrics),
		timer:   timer,
		metrics: metrics,
	}
}

func baseConfig(provider domain.ProviderName, baseURL string) *domain.ProviderConfig {
	return &domain.ProviderConfig{
		Provider:    provider,
		BaseURL:     baseURL,
		APIKey:      "test-key",
		Model:       "test-model",
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		CapDelay:    8 * time.Second,
		AIEnabled:   true,
	}
}

// captureServer records request bodies and replies with body after failing
// the first failures attempts with failStatus.
func captureServer(t *testing.T, failures, failStatus int, body string) (*httptest.Server, *[]json.RawMessage) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []json.RawMessage
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&raw)

		mu.Lock()
		requests = append(requests, raw)
		n := len(requests)
		mu.Unlock()

		if n <= failures {
			w.WriteHeader(failStatus)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestClient_AIDisabled(t *testing.T) {
	t.Run("should return the disabled outcome with zero network calls", func(t *testing.T) {
		cfg := baseConfig(domain.ProviderOpenAI, "https://api.openai.com")
		cfg.AIEnabled = false
		tr := &countingTransport{}
		client := domain.NewClient(cfg, registry.NewRegistry(), tr, nil)
		ctx := context.Background()

		result, err := client.Summarize(ctx, "hello world", "concise")
		require.NoError(t, err)
		require.True(t, result.Disabled())
		require.Equal(t, domain.OutcomeAIDisabled, result.Outcome)
		require.Nil(t, result.Response)
		require.Empty(t, result.Text())

		_, err = client.Chat(ctx, []domain.Message{{Role: domain.RoleUser, Content: "hi"}})
		require.NoError(t, err)
		_, err = client.ExtractTags(ctx, "text", 3)
		require.NoError(t, err)
		_, err = client.AnalyzeSentiment(ctx, "text")
		require.NoError(t, err)

		require.Equal(t, int32(0), tr.calls.Load())
	})

	t.Run("should short-circuit empty chat messages", func(t *testing.T) {
		cfg := baseConfig(domain.ProviderOllama, "http://localhost:11434")
		cfg.AIEnabled = false
		tr := &countingTransport{}
		client := domain.NewClient(cfg, registry.NewRegistry(), tr, nil)

		result, err := client.Chat(context.Background(), nil)
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeAIDisabled, result.Outcome)
		require.Equal(t, int32(0), tr.calls.Load())
	})

	t.Run("should record the disabled outcome", func(t *testing.T) {
		cfg := baseConfig(domain.ProviderOllama, "http://localhost:11434")
		cfg.AIEnabled = false
		h := newHarness(t, cfg)

		_, err := h.client.AnalyzeSentiment(context.Background(), "text")
		require.NoError(t, err)
		require.InDelta(t, 1, testutil.ToFloat64(
			h.metrics.Calls.WithLabelValues("ollama", "analyze_sentiment", "ai_disabled")), 0)
	})
}

func TestClient_Summarize(t *testing.T) {
	t.Run("should succeed on the third attempt after two 503s", func(t *testing.T) {
		server, requests := captureServer(t, 2, http.StatusServiceUnavailable,
			`{"choices":[{"message":{"content":"Summary."}}],"usage":{"prompt_tokens":5,"completion_tokens":2}}`)
		h := newHarness(t, baseConfig(domain.ProviderOpenAI, server.URL))

		result, err := h.client.Summarize(context.Background(), "a long document", "")
		require.NoError(t, err)
		require.Equal(t, domain.OutcomeCompleted, result.Outcome)
		require.Equal(t, "Summary.", result.Text())
		require.Equal(t, 3, result.Response.Attempts)
		require.Equal(t, domain.ProviderOpenAI, result.Response.Provider)
		require.Equal(t, &domain.Usage{InputUnits: 5, OutputUnits: 2}, result.Response.Usage)
		require.Len(t, *requests, 3)
		require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.timer.delays)

		var sent struct {
			Messages []domain.Message `json:"messages"`
		}
		require.NoError(t, json.Unmarshal((*requests)[0], &sent))
		require.Equal(t, "Summarize the following text in a concise manner.", sent.Messages[0].Content)
		require.Equal(t, "a long document", sent.Messages[1].Content)

		require.InDelta(t, 1, testutil.ToFloat64(
			h.metrics.Calls.WithLabelValues("openai", "summarize", "completed")), 0)
	})

	t.Run("should concatenate anthropic text blocks", func(t *testing.T) {
		server, requests := captureServer(t, 0, 0,
			`{"content":[{"type":"text","text":"A"},{"type":"text","text":"B"}]}`)
		h := newHarness(t, baseConfig(domain.ProviderAnthropic, server.URL))

		result, err := h.client.Summarize(context.Background(), "text", "bullet-point")
		require.NoError(t, err)
		require.Equal(t, "AB", result.Text())
		require.Equal(t, 1, result.Response.Attempts)

		var sent struct {
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
		}
		require.NoError(t, json.Unmarshal((*requests)[0], &sent))
		require.Equal(t, "Summarize the following text in a bullet-point manner.", sent.System[0].Text)
	})
}

func TestClient_Failures(t *testing.T) {
	t.Run("should surface transport failure from an unreachable ollama", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		h := newHarness(t, baseConfig(domain.ProviderOllama, url))

		result, err := h.client.Chat(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}})
		require.Nil(t, result)

		var llmErr *domain.Error
		require.ErrorAs(t, err, &llmErr)
		require.Equal(t, domain.KindTransport, llmErr.Kind)
		require.Equal(t, 3, llmErr.Attempts)
		require.Equal(t, domain.ProviderOllama, llmErr.Provider)
		require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.timer.delays)
		require.InDelta(t, 1, testutil.ToFloat64(
			h.metrics.Calls.WithLabelValues("ollama", "chat", "transport")), 0)
	})

	t.Run("should forward rate limiting unchanged after one attempt", func(t *testing.T) {
		server, requests := captureServer(t, 5, http.StatusTooManyRequests, `{}`)
		h := newHarness(t, baseConfig(domain.ProviderOpenAI, server.URL))

		result, err := h.client.AnalyzeSentiment(context.Background(), "text")
		require.Nil(t, result)
		require.True(t, domain.IsKind(err, domain.KindRateLimited))
		require.Len(t, *requests, 1)
		require.Empty(t, h.timer.delays)
	})

	t.Run("should fail with auth before any network call when the key is missing", func(t *testing.T) {
		server, requests := captureServer(t, 0, 0, `{}`)
		cfg := baseConfig(domain.ProviderAnthropic, server.URL)
		cfg.APIKey = ""
		h := newHarness(t, cfg)

		_, err := h.client.Summarize(context.Background(), "text", "")

		var llmErr *domain.Error
		require.ErrorAs(t, err, &llmErr)
		require.Equal(t, domain.KindAuth, llmErr.Kind)
		require.Equal(t, domain.ProviderAnthropic, llmErr.Provider)
		require.Equal(t, 0, llmErr.Attempts)
		require.Empty(t, *requests)
	})

	t.Run("should reject an unregistered provider", func(t *testing.T) {
		cfg := baseConfig(domain.ProviderOllama, "http://localhost:11434")
		client := domain.NewClient(cfg, registry.NewRegistry(), &countingTransport{}, nil)

		_, err := client.Summarize(context.Background(), "text", "")
		require.True(t, domain.IsKind(err, domain.KindProviderRejected))
		require.Contains(t, err.Error(), "unsupported provider")
	})

	t.Run("should reject empty chat messages", func(t *testing.T) {
		h := newHarness(t, baseConfig(domain.ProviderOllama, "http://localhost:11434"))

		_, err := h.client.Chat(context.Background(), nil)
		require.True(t, domain.IsKind(err, domain.KindProviderRejected))
	})
}

func TestClient_ExtractTags(t *testing.T) {
	t.Run("should parse and cap tags", func(t *testing.T) {
		server, requests := captureServer(t, 0, 0,
			`{"message":{"role":"assistant","content":"- golang\n#retry\n\n* backoff\nhttp"},"done":true}`)
		h := newHarness(t, baseConfig(domain.ProviderOllama, server.URL))

		result, err := h.client.ExtractTags(context.Background(), "text", 3)
		require.NoError(t, err)
		require.Equal(t, []string{"golang", "retry", "backoff"}, result.Tags)

		var sent struct {
			Messages []domain.Message `json:"messages"`
		}
		require.NoError(t, json.Unmarshal((*requests)[0], &sent))
		require.Equal(t, "Extract up to 3 relevant tags from the text. Return only the tags, one per line.",
			sent.Messages[0].Content)
	})

	t.Run("should clamp an oversized tag count", func(t *testing.T) {
		server, requests := captureServer(t, 0, 0,
			`{"message":{"role":"assistant","content":"golang\nretry"},"done":true}`)
		h := newHarness(t, baseConfig(domain.ProviderOllama, server.URL))

		var result *domain.Result
		require.NotPanics(t, func() {
			var err error
			result, err = h.client.ExtractTags(context.Background(), "text", math.MaxInt)
			require.NoError(t, err)
		})
		require.Equal(t, []string{"golang", "retry"}, result.Tags)

		var sent struct {
			Messages []domain.Message `json:"messages"`
		}
		require.NoError(t, json.Unmarshal((*requests)[0], &sent))
		require.Contains(t, sent.Messages[0].Content, "Extract up to 50 relevant tags")
	})
}

func TestClient_AnalyzeSentiment(t *testing.T) {
	t.Run("should trim and lowercase the label", func(t *testing.T) {
		server, _ := captureServer(t, 0, 0, `{"message":{"content":"  Positive\n"},"done":true}`)
		h := newHarness(t, baseConfig(domain.ProviderOllama, server.URL))

		result, err := h.client.AnalyzeSentiment(context.Background(), "I love it")
		require.NoError(t, err)
		require.Equal(t, "positive", result.Sentiment)
		require.Equal(t, "  Positive\n", result.Text())
	})
}
