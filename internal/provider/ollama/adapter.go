// Package ollama encodes non-streaming chat requests for a local Ollama server.
package ollama

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/tidwall/gjson"

	"github.com/davidbz/cookbook/internal/domain"
	"github.com/davidbz/cookbook/internal/provider"
)

const chatPath = "/api/chat"

// Adapter implements domain.Adapter for Ollama.
type Adapter struct{}

// NewAdapter creates a new Ollama adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Name returns the provider identifier.
func (a *Adapter) Name() domain.ProviderName {
	return domain.ProviderOllama
}

// EncodeRequest builds an /api/chat request with streaming disabled.
// Ollama needs no credentials.
func (a *Adapter) EncodeRequest(cfg *domain.ProviderConfig, req *domain.Request) (*domain.WireRequest, error) {
	if err := provider.Validate(req); err != nil {
		return nil, err
	}

	model, err := provider.Model(cfg, req)
	if err != nil {
		return nil, err
	}

	messages := make([]api.Message, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = api.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   new(bool),
		Options:  make(map[string]interface{}),
	}

	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}

	if req.MaxOutputTokens != nil {
		chatReq.Options["num_predict"] = *req.MaxOutputTokens
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, domain.NewError(domain.KindProviderRejected, "failed to encode request", err)
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	return &domain.WireRequest{
		Provider: domain.ProviderOllama,
		URL:      provider.Endpoint(cfg.BaseURL, chatPath),
		Header:   header,
		Body:     body,
	}, nil
}

// DecodeResponse parses a single non-streamed chat response.
func (a *Adapter) DecodeResponse(body []byte) (*domain.Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, provider.Malformed(domain.ProviderOllama, "response is not JSON", provider.ErrNotJSON)
	}

	root := gjson.ParseBytes(body)
	if e := root.Get("error"); e.Type == gjson.String && e.String() != "" {
		return nil, provider.Rejected(domain.ProviderOllama, e.String())
	}

	if !root.Get("message").IsObject() || root.Get("message.content").Type != gjson.String {
		return nil, provider.Malformed(domain.ProviderOllama, "missing message.content", nil)
	}

	var chatResp api.ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, provider.Malformed(domain.ProviderOllama, "failed to decode chat response", err)
	}

	resp := &domain.Response{
		Text:         chatResp.Message.Content,
		FinishReason: finishReason(chatResp.DoneReason),
		Provider:     domain.ProviderOllama,
		Model:        chatResp.Model,
	}

	if root.Get("eval_count").Exists() {
		resp.Usage = &domain.Usage{
			OutputUnits: chatResp.EvalCount,
		}
	}

	return resp, nil
}

// DecodeError reads the {"error": "..."} envelope. A missing model is a
// rejection whatever status carried it.
func (a *Adapter) DecodeError(base *domain.Error, body []byte) *domain.Error {
	e := gjson.GetBytes(body, "error")
	if e.Type != gjson.String {
		return nil
	}

	refined := &domain.Error{
		Kind:    base.Kind,
		Message: e.String(),
	}

	if base.StatusCode == http.StatusNotFound || strings.Contains(strings.ToLower(e.String()), "not found") {
		refined.Kind = domain.KindProviderRejected
	}

	return refined
}

func finishReason(reason string) domain.FinishReason {
	if reason == "length" {
		return domain.FinishLength
	}
	return domain.FinishStop
}
