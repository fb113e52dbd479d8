// Package httpcache provides a http.RoundTripper implementation that works as a
// mostly RFC 9111 compliant cache for HTTP responses.
package httpcache

import (
	"fmt"
	"net/http"
	"time"
)

// TransportOption is a function that configures a Transport.
// Use the With* functions to create TransportOptions.
type TransportOption func(*Transport) error

// WithMarkCachedResponses configures whether responses returned from cache
// should include the X-From-Cache header.
// Default: true when using NewTransport
func WithMarkCachedResponses(mark bool) TransportOption {
	return func(t *Transport) error {
		t.MarkCachedResponses = mark
		return nil
	}
}

// WithSkipServerErrorsFromCache configures whether server errors (5xx status codes)
// should be served from cache. When true, server errors will not be served from cache
// even if they are fresh.
// Default: false
func WithSkipServerErrorsFromCache(skip bool) TransportOption {
	return func(t *Transport) error {
		t.SkipServerErrorsFromCache = skip
		return nil
	}
}

// WithAsyncRevalidateTimeout sets the context timeout for async requests
// triggered by stale-while-revalidate.
// If zero, no timeout is applied to async revalidation requests.
// Default: 0 (no timeout)
func WithAsyncRevalidateTimeout(timeout time.Duration) TransportOption {
	return func(t *Transport) error {
		t.AsyncRevalidateTimeout = timeout
		return nil
	}
}

// WithPublicCache enables public cache mode.
// When true, the Controller adds the shared-cache storage check
// (sharedCacheMayStore) on top of the usual rules.
// In both modes, responses with Cache-Control: private are not stored, and
// requests carrying Authorization are neither answered from nor stored in
// the cache.
// Set to true only if using httpcache as a shared/public cache (CDN, reverse proxy).
// Default: false
func WithPublicCache(isPublic bool) TransportOption {
	return func(t *Transport) error {
		t.IsPublicCache = isPublic
		return nil
	}
}

// WithVarySeparation enables RFC 9111 compliant Vary header separation.
// When true, responses with Vary headers create separate cache entries for each variant.
// When false (default), the previous behavior is maintained where variants overwrite each other.
// RFC 9111 Section 4.1: Caches should maintain separate entries for different variants.
// Enable this for full RFC 9111 compliance with content negotiation (Accept-Language, Accept, etc.).
// Note: Enabling this may increase cache storage usage as each variant is stored separately.
// Default: false
func WithVarySeparation(enable bool) TransportOption {
	return func(t *Transport) error {
		t.EnableVarySeparation = enable
		return nil
	}
}

// WithShouldCache sets Transport.ShouldCache, a predicate for caching
// responses whose status code is outside DefaultCacheableStatusCodes.
// The Controller does not consult it: with or without a predicate, only
// status codes in DefaultCacheableStatusCodes (200, 203, 300, 301, 308)
// are stored, subject to the Cache-Control rules.
func WithShouldCache(fn func(*http.Response) bool) TransportOption {
	return func(t *Transport) error {
		t.ShouldCache = fn
		return nil
	}
}

// WithCacheKeyHeaders specifies additional request headers to include in the cache key generation.
// This allows creating separate cache entries based on request header values.
// A common use case is "Accept-Language" for locale-specific responses.
// Requests carrying Authorization are never served from or stored in the
// cache, so listing "Authorization" here has no effect.
// Header names are case-insensitive and will be canonicalized.
// Example: []string{"Accept-Language"}
// Note: This is different from the HTTP Vary response header mechanism, which is handled separately.
func WithCacheKeyHeaders(headers []string) TransportOption {
	return func(t *Transport) error {
		t.CacheKeyHeaders = headers
		return nil
	}
}

// WithDisableWarningHeader disables the deprecated Warning header (RFC 7234) in responses.
// RFC 9111 has obsoleted the Warning header field, making it no longer part of the standard.
// When true, Warning headers (110, 111, etc.) will not be added to cached responses.
// Default: false (Warning headers are enabled for backward compatibility).
// Set to true to comply with RFC 9111 and avoid deprecated headers.
func WithDisableWarningHeader(disable bool) TransportOption {
	return func(t *Transport) error {
		t.DisableWarningHeader = disable
		return nil
	}
}

// WithResilience enables retry and/or circuit-breaker policies (via
// github.com/failsafe-go/failsafe-go) around every outbound transport
// round trip, including async revalidation requests. Pass a config built
// from RetryPolicyBuilder/CircuitBreakerBuilder, or your own.
// Default: nil (resilience disabled).
func WithResilience(cfg *ResilienceConfig) TransportOption {
	return func(t *Transport) error {
		if cfg == nil {
			return fmt.Errorf("resilience config cannot be nil")
		}
		t.resilience = cfg
		return nil
	}
}

// WithTransport sets the underlying http.RoundTripper used to make requests.
// If nil, http.DefaultTransport is used.
func WithTransport(rt http.RoundTripper) TransportOption {
	return func(t *Transport) error {
		t.Transport = rt
		return nil
	}
}

// WithEncryption enables AES-256-GCM encryption for cached data.
// The passphrase is used to derive an encryption key using scrypt.
// When enabled, all cached data is encrypted before storage and decrypted on retrieval.
// The passphrase must be kept secret and consistent across application restarts.
// Returns an error if the passphrase is empty or encryption initialization fails.
func WithEncryption(passphrase string) TransportOption {
	return func(t *Transport) error {
		if passphrase == "" {
			return fmt.Errorf("encryption passphrase cannot be empty")
		}
		gcm, err := initEncryption(passphrase)
		if err != nil {
			return err
		}
		if t.security == nil {
			t.security = &securityConfig{}
		}
		t.security.gcm = gcm
		t.security.passphrase = passphrase
		return nil
	}
}
