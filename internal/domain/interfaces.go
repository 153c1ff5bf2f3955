package domain

import "context"

// Codec decodes a provider's wire responses.
type Codec interface {
	// DecodeResponse parses a 2xx body. A KindMalformed error makes the
	// transport retry; any other classified error is terminal.
	DecodeResponse(body []byte) (*Response, error)

	// DecodeError reads a vendor error body to refine the status-based
	// classification in base. Returning nil keeps base unchanged.
	DecodeError(base *Error, body []byte) *Error
}

// Adapter translates between the generic request/response shape and one
// provider's wire schema. Implementations hold no mutable state.
type Adapter interface {
	Codec

	// Name returns the provider identifier.
	Name() ProviderName

	// EncodeRequest builds the provider request for req using cfg.
	EncodeRequest(cfg *ProviderConfig, req *Request) (*WireRequest, error)
}

// AdapterRegistry resolves adapters by provider name.
type AdapterRegistry interface {
	// Get retrieves the adapter for a provider.
	Get(ctx context.Context, name ProviderName) (Adapter, error)

	// List returns all registered provider names.
	List(ctx context.Context) []ProviderName
}

// Transport executes one logical call: attempts, classification and backoff.
type Transport interface {
	Send(ctx context.Context, wire *WireRequest, policy RetryPolicy, codec Codec) (*Reply, error)
}
