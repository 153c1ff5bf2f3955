// Package provider holds the helpers shared by the provider adapters.
package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/davidbz/cookbook/internal/domain"
)

// Endpoint joins a base URL and an API path, tolerating a trailing slash and
// a base that already carries the path's version prefix.
func Endpoint(baseURL, path string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return path
	}

	if i := strings.Index(strings.TrimPrefix(path, "/"), "/"); i > 0 {
		prefix := "/" + strings.TrimPrefix(path, "/")[:i]
		if strings.HasSuffix(base, prefix) {
			return base + strings.TrimPrefix(path, prefix)
		}
	}

	return base + path
}

// Validate rejects requests that cannot be encoded for any provider.
func Validate(req *domain.Request) error {
	if req == nil {
		return domain.NewError(domain.KindProviderRejected, "request cannot be nil", nil)
	}
	if len(req.Messages) == 0 {
		return domain.NewError(domain.KindProviderRejected, "request has no messages", nil)
	}
	return nil
}

// Model returns the request model, falling back to the configured one.
func Model(cfg *domain.ProviderConfig, req *domain.Request) (string, error) {
	if req.Model != "" {
		return req.Model, nil
	}
	if cfg != nil && cfg.Model != "" {
		return cfg.Model, nil
	}
	return "", domain.NewError(domain.KindProviderRejected, "model is required", nil)
}

// RequireAPIKey fails with an auth error before any network call when a
// credential-based provider has no key.
func RequireAPIKey(cfg *domain.ProviderConfig, envName string) (string, error) {
	if cfg == nil || cfg.APIKey == "" {
		return "", domain.NewError(domain.KindAuth, fmt.Sprintf("missing %s", envName), nil)
	}
	return cfg.APIKey, nil
}

// Malformed classifies a body that does not match the provider schema.
func Malformed(provider domain.ProviderName, message string, cause error) error {
	err := domain.NewError(domain.KindMalformed, message, cause)
	err.Provider = provider
	return err
}

// Rejected classifies a vendor-reported semantic error.
func Rejected(provider domain.ProviderName, message string) error {
	err := domain.NewError(domain.KindProviderRejected, message, nil)
	err.Provider = provider
	return err
}

// ErrNotJSON is the cause attached to malformed bodies that are not JSON at all.
var ErrNotJSON = errors.New("body is not valid JSON")
