// Package openai encodes chat requests for the OpenAI chat completions API
// and decodes its responses using the official SDK types. The adapter does
// no I/O; the transport sends what it builds.
package openai

import (
	"encoding/json"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/davidbz/cookbook/internal/domain"
	"github.com/davidbz/cookbook/internal/provider"
)

const chatCompletionsPath = "/v1/chat/completions"

// Adapter implements domain.Adapter for OpenAI.
type Adapter struct{}

// NewAdapter creates a new OpenAI adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Name returns the provider identifier.
func (a *Adapter) Name() domain.ProviderName {
	return domain.ProviderOpenAI
}

// EncodeRequest builds a chat completions request.
func (a *Adapter) EncodeRequest(cfg *domain.ProviderConfig, req *domain.Request) (*domain.WireRequest, error) {
	if err := provider.Validate(req); err != nil {
		return nil, err
	}

	apiKey, err := provider.RequireAPIKey(cfg, "OPENAI_API_KEY")
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

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+apiKey)

	return &domain.WireRequest{
		Provider: domain.ProviderOpenAI,
		URL:      provider.Endpoint(cfg.BaseURL, chatCompletionsPath),
		Header:   header,
		Body:     body,
	}, nil
}

// DecodeResponse parses a chat completion body.
func (a *Adapter) DecodeResponse(body []byte) (*domain.Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, provider.Malformed(domain.ProviderOpenAI, "response is not JSON", provider.ErrNotJSON)
	}

	root := gjson.ParseBytes(body)
	if e := root.Get("error"); e.IsObject() {
		return nil, provider.Rejected(domain.ProviderOpenAI, e.Get("message").String())
	}

	if !root.Get("choices").IsArray() || !root.Get("choices.0.message").IsObject() {
		return nil, provider.Malformed(domain.ProviderOpenAI, "missing choices[0].message", nil)
	}
	if content := root.Get("choices.0.message.content"); content.Exists() &&
		content.Type != gjson.String && content.Type != gjson.Null {
		return nil, provider.Malformed(domain.ProviderOpenAI, "message content is not a string", nil)
	}

	var completion openai.ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, provider.Malformed(domain.ProviderOpenAI, "failed to decode chat completion", err)
	}

	choice := completion.Choices[0]
	resp := &domain.Response{
		Text:         choice.Message.Content,
		FinishReason: finishReason(string(choice.FinishReason)),
		Provider:     domain.ProviderOpenAI,
		Model:        completion.Model,
	}

	if root.Get("usage").IsObject() {
		resp.Usage = &domain.Usage{
			InputUnits:  int(completion.Usage.PromptTokens),
			OutputUnits: int(completion.Usage.CompletionTokens),
		}
	}

	return resp, nil
}

// DecodeError reads the {"error": {...}} envelope.
func (a *Adapter) DecodeError(base *domain.Error, body []byte) *domain.Error {
	e := gjson.GetBytes(body, "error")
	if !e.IsObject() {
		return nil
	}

	refined := &domain.Error{
		Kind:    base.Kind,
		Message: e.Get("message").String(),
	}

	if e.Get("type").String() == "invalid_request_error" || e.Get("code").String() == "model_not_found" {
		refined.Kind = domain.KindProviderRejected
	}

	return refined
}

func toSDKParams(model string, req *domain.Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, len(req.Messages))
	for i, msg := range req.Messages {
		switch msg.Role {
		case domain.RoleSystem:
			messages[i] = openai.SystemMessage(msg.Content)
		case domain.RoleAssistant:
			messages[i] = openai.AssistantMessage(msg.Content)
		default:
			messages[i] = openai.UserMessage(msg.Content)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	if req.MaxOutputTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxOutputTokens))
	}

	return params
}

func finishReason(reason string) domain.FinishReason {
	switch reason {
	case "length":
		return domain.FinishLength
	case "content_filter":
		return domain.FinishError
	default:
		return domain.FinishStop
	}
}
