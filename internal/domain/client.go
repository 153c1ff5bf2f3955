package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/davidbz/cookbook/internal/observability"
)

// CallRecorder receives the outcome of every logical call. Implementations
// must tolerate concurrent use.
type CallRecorder interface {
	ObserveCall(provider, operation, outcome string)
}

// Client is the single entry point for LLM capabilities. It selects the
// configured adapter, drives the transport and applies the AI-disabled
// fallback. It holds no per-call state.
type Client struct {
	cfg       *ProviderConfig
	adapters  AdapterRegistry
	transport Transport
	recorder  CallRecorder
}

// NewClient creates a new LLM client (DI constructor). recorder may be nil.
func NewClient(cfg *ProviderConfig, adapters AdapterRegistry, transport Transport, recorder CallRecorder) *Client {
	return &Client{
		cfg:       cfg,
		adapters:  adapters,
		transport: transport,
		recorder:  recorder,
	}
}

// Chat sends messages unchanged to the configured provider.
// With AI disabled it returns the disabled outcome before validating input,
// like the other operations.
func (c *Client) Chat(ctx context.Context, messages []Message) (*Result, error) {
	if c.cfg.AIEnabled && len(messages) == 0 {
		return nil, NewError(KindProviderRejected, "messages cannot be empty", nil)
	}

	return c.execute(ctx, c.newRequest(KindChat, messages), func(resp *Response) *Result {
		return &Result{Outcome: OutcomeCompleted, Response: resp}
	})
}

// Summarize returns a summary of text. An empty style means concise.
func (c *Client) Summarize(ctx context.Context, text, style string) (*Result, error) {
	return c.execute(ctx, c.newRequest(KindSummarize, SummarizeMessages(text, style)), func(resp *Response) *Result {
		return &Result{Outcome: OutcomeCompleted, Response: resp}
	})
}

// ExtractTags returns at most maxTags tags for text. maxTags is clamped
// with ClampTags.
func (c *Client) ExtractTags(ctx context.Context, text string, maxTags int) (*Result, error) {
	maxTags = ClampTags(maxTags)

	return c.execute(ctx, c.newRequest(KindExtractTags, ExtractTagsMessages(text, maxTags)), func(resp *Response) *Result {
		return &Result{
			Outcome:  OutcomeCompleted,
			Response: resp,
			Tags:     ParseTags(resp.Text, maxTags),
		}
	})
}

// AnalyzeSentiment returns the lowercased sentiment label for text.
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) (*Result, error) {
	return c.execute(ctx, c.newRequest(KindAnalyzeSentiment, AnalyzeSentimentMessages(text)), func(resp *Response) *Result {
		return &Result{
			Outcome:   OutcomeCompleted,
			Response:  resp,
			Sentiment: NormalizeSentiment(resp.Text),
		}
	})
}

// execute runs one logical call for req and shapes the response with build.
func (c *Client) execute(ctx context.Context, req *Request, build func(*Response) *Result) (*Result, error) {
	provider := string(c.cfg.Provider)
	operation := string(req.Kind)

	ctx = observability.EnsureRequestID(ctx)
	ctx = observability.WithOperation(ctx, operation)
	ctx = observability.WithProvider(ctx, provider)
	ctx = observability.WithModel(ctx, req.Model)
	logger := observability.FromContext(ctx)

	if !c.cfg.AIEnabled {
		logger.Info("AI processing disabled, skipping provider call")
		c.record(provider, operation, string(OutcomeAIDisabled))
		return &Result{Outcome: OutcomeAIDisabled}, nil
	}

	tracker := NewCallTracker(ctx)
	tracker.Advance(StateEncoding)

	resp, err := c.send(ctx, tracker, req)
	if err != nil {
		tracker.Advance(StateFailedTerminal)
		kind, _ := KindOf(err)
		c.record(provider, operation, string(kind))
		logger.Warn("LLM call failed", observability.Error(err))
		return nil, err
	}

	tracker.Advance(StateSucceeded)
	c.record(provider, operation, string(OutcomeCompleted))
	logger.Info("LLM call completed",
		observability.Int("attempts", resp.Attempts),
		observability.String("finish_reason", string(resp.FinishReason)))

	return build(resp), nil
}

func (c *Client) send(ctx context.Context, tracker *CallTracker, req *Request) (*Response, error) {
	adapter, err := c.adapters.Get(ctx, c.cfg.Provider)
	if err != nil {
		return nil, c.classify(KindProviderRejected, fmt.Sprintf("unsupported provider %q", c.cfg.Provider), err)
	}

	wire, err := adapter.EncodeRequest(c.cfg, req)
	if err != nil {
		return nil, c.classify(KindProviderRejected, "failed to encode request", err)
	}

	tracker.Advance(StateInFlight)

	reply, err := c.transport.Send(ctx, wire, c.cfg.RetryPolicy(), adapter)
	if err != nil {
		return nil, c.classify(KindTransport, "provider call failed", err)
	}

	return reply.Response, nil
}

// newRequest applies the configured sampling defaults.
func (c *Client) newRequest(kind RequestKind, messages []Message) *Request {
	return &Request{
		Kind:            kind,
		Messages:        messages,
		Model:           c.cfg.Model,
		Temperature:     c.cfg.Temperature,
		MaxOutputTokens: c.cfg.MaxOutputTokens,
	}
}

func (c *Client) record(provider, operation, outcome string) {
	if c.recorder != nil {
		c.recorder.ObserveCall(provider, operation, outcome)
	}
}

// classify passes classified errors through and wraps anything else in
// kind. Errors without a provider are stamped with the configured one.
func (c *Client) classify(kind ErrorKind, message string, err error) error {
	var llmErr *Error
	if !errors.As(err, &llmErr) {
		llmErr = NewError(kind, message, err)
	}
	if llmErr.Provider != "" {
		return err
	}

	out := *llmErr
	out.Provider = c.cfg.Provider
	return &out
}
