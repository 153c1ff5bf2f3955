// Package anthropic encodes chat requests for the Anthropic Messages API.
package anthropic

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"

	"github.com/davidbz/cookbook/internal/domain"
	"github.com/davidbz/cookbook/internal/provider"
)

const (
	messagesPath     = "/v1/messages"
	defaultVersion   = "2023-06-01"
	defaultMaxTokens = 1024
)

// Adapter implements domain.Adapter for Anthropic.
type Adapter struct{}

// NewAdapter creates a new Anthropic adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Name returns the provider identifier.
func (a *Adapter) Name() domain.ProviderName {
	return domain.ProviderAnthropic
}

// EncodeRequest builds a Messages API request. The first system message
// becomes the top-level system prompt; any other role is sent as user.
func (a *Adapter) EncodeRequest(cfg *domain.ProviderConfig, req *domain.Request) (*domain.WireRequest, error) {
	if err := provider.Validate(req); err != nil {
		return nil, err
	}

	apiKey, err := provider.RequireAPIKey(cfg, "ANTHROPIC_API_KEY")
	if err != nil {
		return nil, err
	}

	model, err := provider.Model(cfg, req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(toSDKParams(model, req))
	if err != nil {
		return nil, domain.NewError(domain.KindProviderRejected, "failed to encode request", err)
	}

	version := cfg.AnthropicVersion
	if version == "" {
		version = defaultVersion
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("x-api-key", apiKey)
	header.Set("anthropic-version", version)

	return &domain.WireRequest{
		Provider: domain.ProviderAnthropic,
		URL:      provider.Endpoint(cfg.BaseURL, messagesPath),
		Header:   header,
		Body:     body,
	}, nil
}

// DecodeResponse concatenates the text blocks of a message in order.
func (a *Adapter) DecodeResponse(body []byte) (*domain.Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, provider.Malformed(domain.ProviderAnthropic, "response is not JSON", provider.ErrNotJSON)
	}

	root := gjson.ParseBytes(body)
	if root.Get("type").String() == "error" {
		return nil, provider.Rejected(domain.ProviderAnthropic, root.Get("error.message").String())
	}

	content := root.Get("content")
	if !content.IsArray() {
		return nil, provider.Malformed(domain.ProviderAnthropic, "missing content array", nil)
	}
	for _, block := range content.Array() {
		if !block.IsObject() || !block.Get("type").Exists() {
			return nil, provider.Malformed(domain.ProviderAnthropic, "content block has no type", nil)
		}
		if block.Get("type").String() == "text" && block.Get("text").Type != gjson.String {
			return nil, provider.Malformed(domain.ProviderAnthropic, "text block has no text", nil)
		}
	}

	var message anthropic.Message
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, provider.Malformed(domain.ProviderAnthropic, "failed to decode message", err)
	}

	var text strings.Builder
	for _, blockUnion := range message.Content {
		if block, ok := blockUnion.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(block.Text)
		}
	}

	resp := &domain.Response{
		Text:         text.String(),
		FinishReason: finishReason(message.StopReason),
		Provider:     domain.ProviderAnthropic,
		Model:        string(message.Model),
	}

	if root.Get("usage").IsObject() {
		resp.Usage = &domain.Usage{
			InputUnits:  int(message.Usage.InputTokens),
			OutputUnits: int(message.Usage.OutputTokens),
		}
	}

	return resp, nil
}

// DecodeError reads the {"type":"error","error":{...}} envelope.
func (a *Adapter) DecodeError(base *domain.Error, body []byte) *domain.Error {
	e := gjson.GetBytes(body, "error")
	if !e.IsObject() {
		return nil
	}

	refined := &domain.Error{
		Kind:    base.Kind,
		Message: e.Get("message").String(),
	}

	switch e.Get("type").String() {
	case "invalid_request_error", "not_found_error":
		refined.Kind = domain.KindProviderRejected
	default:
	}

	return refined
}

func toSDKParams(model string, req *domain.Request) anthropic.MessageNewParams {
	var system string
	liftedSystem := false

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == domain.RoleSystem && !liftedSystem {
			system = msg.Content
			liftedSystem = true
			continue
		}

		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == domain.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := defaultMaxTokens
	if req.MaxOutputTokens != nil {
		maxTokens = *req.MaxOutputTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	return params
}

func finishReason(reason anthropic.StopReason) domain.FinishReason {
	switch reason {
	case anthropic.StopReasonMaxTokens:
		return domain.FinishLength
	case anthropic.StopReasonRefusal:
		return domain.FinishError
	default:
		return domain.FinishStop
	}
}
