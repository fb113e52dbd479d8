// Package httpcache provides a http.RoundTripper implementation that works as a
// mostly RFC 9111 compliant cache for HTTP responses.
//
// By default, it operates as a 'private' cache (suitable for web browsers or API clients).
// It can also be configured as a 'shared/public' cache by setting IsPublicCache to true,
// which enforces stricter caching rules for multi-user scenarios (e.g., CDNs, reverse proxies).
//
// RFC 9111 (HTTP Caching) obsoletes RFC 7234 and is the current HTTP caching standard.
package httpcache

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

const (
	// XFromCache is the header added to responses that are returned from the cache
	XFromCache = "X-From-Cache"
	// XRevalidated is the header added to responses that got revalidated
	XRevalidated = "X-Revalidated"
	// XStale is the header added to responses that are stale
	XStale = "X-Stale"

	methodGET  = "GET"
	methodHEAD = "HEAD"

	headerLastModified    = "last-modified"
	headerETag            = "etag"
	headerAge             = "Age"
	headerWarning         = "Warning"
	headerLocation        = "Location"
	headerContentLocation = "Content-Location"

	headerPragma  = "Pragma"
	pragmaNoCache = "no-cache"

	// RFC 7234 Section 5.5: Warning header codes
	warningResponseIsStale    = `110 - "Response is Stale"`
	warningRevalidationFailed = `111 - "Revalidation Failed"`
)

// CachedResponse returns the cached http.Response for req if present, and nil
// otherwise. It reads store under the plain cache key and decodes the value
// as stored, so it does not find entries written by a Transport configured
// with WithEncryption, whose keys are hashed and values encrypted.
func CachedResponse(store CacheStore, req *http.Request) (*http.Response, error) {
	key, err := cacheKey(req)
	if err != nil {
		return nil, err
	}
	raw, ok, err := store.Get(req.Context(), key)
	if err != nil || !ok {
		return nil, err
	}
	entry, err := decodeEntry(raw, req.Header)
	if err != nil || entry == nil {
		return nil, nil
	}
	return entryToResponse(entry, req), nil
}

// Transport is an implementation of http.RoundTripper that answers requests
// from a CacheStore where possible, and otherwise forwards to an underlying
// RoundTripper, adding validators (ETag / If-Modified-Since) to repeated
// requests so origin servers can reply 304 Not Modified.
type Transport struct {
	// The RoundTripper interface actually used to make requests.
	// If nil, http.DefaultTransport is used.
	Transport http.RoundTripper
	// Cache is the CacheStore backing this Transport.
	Cache CacheStore
	// If true, responses returned from the cache will be given an extra header, X-From-Cache.
	MarkCachedResponses bool
	// If true, server errors (5xx status codes) will not be served from cache
	// even if they are fresh. This forces a new request to the server.
	SkipServerErrorsFromCache bool
	// AsyncRevalidateTimeout is the context timeout for async requests triggered
	// by stale-while-revalidate. If zero, no timeout is applied.
	AsyncRevalidateTimeout time.Duration
	// IsPublicCache enables public/shared cache mode (default: false, private cache).
	IsPublicCache bool
	// EnableVarySeparation stores a separate entry per Vary-named variant
	// instead of overwriting a single entry per base key.
	EnableVarySeparation bool
	// ShouldCache holds a predicate for caching status codes outside
	// DefaultCacheableStatusCodes (e.g. 404). The Controller does not consult
	// it: whether a response is stored depends only on
	// DefaultCacheableStatusCodes and the Cache-Control rules.
	ShouldCache func(*http.Response) bool
	// CacheKeyHeaders lists additional request headers folded into the cache key.
	CacheKeyHeaders []string
	// DisableWarningHeader suppresses the deprecated (RFC 9111) Warning header.
	DisableWarningHeader bool

	// security holds the security configuration for key hashing and optional
	// encryption, configured via WithEncryption.
	security *securityConfig
	// resilience holds retry/circuit-breaker policies, configured via
	// ResilienceConfig / WithResilience-style options.
	resilience *ResilienceConfig
}

// NewTransport returns a new Transport backed by store, with
// MarkCachedResponses set to true. When WithEncryption is supplied, cache
// keys are hashed with SHA-256 and values are encrypted at rest; otherwise
// keys and values reach store unchanged.
func NewTransport(store CacheStore, opts ...TransportOption) *Transport {
	t := &Transport{Cache: store, MarkCachedResponses: true}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			GetLogger().Error("failed to apply transport option", "error", err)
		}
	}
	return t
}

// Client returns an *http.Client that caches responses through t.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

func (t *Transport) store() CacheStore {
	if t.security != nil {
		return newSecureCacheStore(t.Cache, t.security)
	}
	return t.Cache
}

func (t *Transport) controller() *Controller {
	return newController(t.store(), t.IsPublicCache, t.EnableVarySeparation, t.CacheKeyHeaders)
}

func (t *Transport) transport() http.RoundTripper {
	if t.Transport != nil {
		return t.Transport
	}
	return http.DefaultTransport
}

// RoundTrip takes a Request and returns a Response.
//
// If there is a fresh response already in cache, it is returned without
// contacting the server. If there is a stale response, any validators it
// carries are attached to the outgoing request to give the server a chance
// to reply 304 Not Modified, in which case the cached response (merged with
// the 304's headers) is returned instead.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctrl := t.controller()
	now := time.Now().UTC()

	lr, err := ctrl.lookup(req.Context(), req)
	if err != nil {
		return nil, err
	}

	if lr == nil {
		return t.roundTripUncached(ctrl, req, now)
	}

	if t.SkipServerErrorsFromCache && lr.resp.StatusCode >= http.StatusInternalServerError {
		return t.roundTripUncached(ctrl, req, now)
	}

	return t.roundTripCached(ctrl, req, lr, now)
}

// roundTripUncached handles a request with no usable cache entry: it
// honors only-if-cached (spec §9 supplement: a synthetic 504, never hits
// the network) and otherwise forwards to the origin, then attempts to
// store the result.
func (t *Transport) roundTripUncached(ctrl *Controller, req *http.Request, now time.Time) (*http.Response, error) {
	if parseCacheControl(req.Header).has(directiveOnlyIfCached) {
		return gatewayTimeoutResponse(req), nil
	}

	resp, requestTime, responseTime, err := t.performRequest(req)
	if err != nil {
		return nil, err
	}
	return t.finishRoundTrip(ctrl, req, resp, requestTime, responseTime)
}

// roundTripCached serves from the cache, revalidating synchronously,
// asynchronously (stale-while-revalidate), or falling back to the stale
// entry on transport failure (stale-if-error), as appropriate.
func (t *Transport) roundTripCached(ctrl *Controller, req *http.Request, lr *lookupResult, now time.Time) (*http.Response, error) {
	meta := lr.entry.Metadata

	if t.MarkCachedResponses {
		lr.resp.Header.Set(XFromCache, "1")
	}
	if age, err := calculateCurrentAge(meta.Header, meta.RequestTime, meta.ResponseTime, now); err == nil {
		lr.resp.Header.Set(headerAge, formatAge(age))
	}

	if isResponseFresh(req, meta.Header, meta.Status, now) {
		return lr.resp, nil
	}

	if window, ok := staleWhileRevalidateWindow(meta.Header); ok {
		if expiration, ok := responseExpiration(meta.Header, now, nil); ok && now.Before(expiration.Add(window)) {
			if !t.DisableWarningHeader {
				addStaleWarning(lr.resp)
			}
			t.asyncRevalidate(ctrl, req)
			return lr.resp, nil
		}
	}

	condReq := req.Clone(req.Context())
	addConditionalHeaders(condReq, lr.entry)

	resp, requestTime, responseTime, rtErr := t.performRequest(condReq)

	if rtErr != nil || (resp != nil && resp.StatusCode >= http.StatusInternalServerError) {
		if stale := t.tryStaleIfError(req, lr, meta); stale != nil {
			if resp != nil {
				drainAndClose(resp.Body)
			}
			return stale, nil
		}
		if rtErr != nil {
			return nil, rtErr
		}
	}

	if req.Method == methodGET && resp.StatusCode == http.StatusNotModified {
		drainAndClose(resp.Body)
		merged, err := ctrl.updateCachedEntry(req.Context(), lr.key, lr.entry, resp, responseTime)
		if err != nil {
			return lr.resp, nil
		}
		mergedResp := entryToResponse(merged, req)
		if t.MarkCachedResponses {
			mergedResp.Header.Set(XFromCache, "1")
			mergedResp.Header.Set(XRevalidated, "1")
		}
		if age, err := calculateCurrentAge(merged.Metadata.Header, merged.Metadata.RequestTime, responseTime, now); err == nil {
			mergedResp.Header.Set(headerAge, formatAge(age))
		}
		return mergedResp, nil
	}

	return t.finishRoundTrip(ctrl, req, resp, requestTime, responseTime)
}

// tryStaleIfError returns the stale cached response (marked accordingly) if
// the request and stored entry qualify for RFC 5861 stale-if-error, or nil
// if they don't.
func (t *Transport) tryStaleIfError(req *http.Request, lr *lookupResult, meta responseMetadata) *http.Response {
	window, ok := staleIfErrorWindow(req.Header, meta.Header)
	if !ok {
		return nil
	}
	expiration, ok := responseExpiration(meta.Header, time.Now().UTC(), nil)
	if !ok || !time.Now().UTC().Before(expiration.Add(window)) {
		return nil
	}
	if t.MarkCachedResponses {
		lr.resp.Header.Set(XStale, "1")
	}
	if !t.DisableWarningHeader {
		addRevalidationFailedWarning(lr.resp)
	}
	return lr.resp
}

// finishRoundTrip runs post-response bookkeeping common to both the cached
// and uncached paths: invalidation on unsafe methods, and (for cacheable
// requests) tapping the body so the response is stored once fully read.
func (t *Transport) finishRoundTrip(ctrl *Controller, req *http.Request, resp *http.Response, requestTime, responseTime time.Time) (*http.Response, error) {
	if isUnsafeMethod(req.Method) {
		ctrl.maybeInvalidate(req.Context(), req, resp)
	}

	key, err := ctrl.requestKey(req)
	if err != nil {
		return resp, nil
	}
	if !useCacheForRequest(req, ctrl.cacheableMethods) {
		return resp, nil
	}

	meta := responseMetadata{
		Status:       resp.StatusCode,
		Proto:        resp.Proto,
		ProtoMajor:   resp.ProtoMajor,
		ProtoMinor:   resp.ProtoMinor,
		Header:       resp.Header,
		ResponseTime: responseTime,
		RequestTime:  requestTime,
	}

	resp.Body = newBodyTap(resp.Body, func(body []byte) {
		if !bodyLengthMatches(resp.Header, body) {
			GetLogger().Debug("content-length mismatch, skipping cache write", "key", key)
			return
		}
		ctrl.store(context.Background(), req, key, meta, body, responseTime)
	})

	return resp, nil
}

// bodyLengthMatches implements the BodyLengthMismatch error kind (spec
// §7): when Content-Length is present and parses, the captured body must
// match it exactly or the write is skipped.
func bodyLengthMatches(header http.Header, body []byte) bool {
	v := header.Get("Content-Length")
	if v == "" {
		return true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return true
	}
	return n == len(body)
}

// performRequest executes req against the underlying transport (through
// resilience policies, if configured), returning the request/response
// timestamps used for Age bookkeeping (RFC 7234 §4.2.3).
func (t *Transport) performRequest(req *http.Request) (resp *http.Response, requestTime, responseTime time.Time, err error) {
	requestTime = time.Now().UTC()
	resp, err = t.executeWithResilience(func() (*http.Response, error) {
		return t.transport().RoundTrip(req)
	})
	responseTime = time.Now().UTC()
	return resp, requestTime, responseTime, err
}

// asyncRevalidate triggers a background revalidation request for req,
// bounded by AsyncRevalidateTimeout if set. Any result, success or
// failure, only affects the store; the caller has already been served
// the stale response.
func (t *Transport) asyncRevalidate(ctrl *Controller, req *http.Request) {
	bgCtx := context.Background()
	var cancel context.CancelFunc
	if t.AsyncRevalidateTimeout > 0 {
		bgCtx, cancel = context.WithTimeout(bgCtx, t.AsyncRevalidateTimeout)
	}

	asyncReq := req.Clone(bgCtx)
	asyncReq.Header.Set("Cache-Control", directiveNoCache)

	go func() {
		if cancel != nil {
			defer cancel()
		}
		GetLogger().Debug("starting async revalidation", "url", req.URL.String())

		resp, err := t.RoundTrip(asyncReq)
		if err != nil {
			GetLogger().Warn("async revalidation failed", "url", req.URL.String(), "error", err)
			return
		}
		defer resp.Body.Close()
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			GetLogger().Warn("failed to drain async revalidation response", "url", req.URL.String(), "error", err)
		}
		_ = ctrl
	}()
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// gatewayTimeoutResponse synthesizes a 504 for only-if-cached requests
// that miss the cache, without ever touching the network.
func gatewayTimeoutResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:     "504 Gateway Timeout",
		StatusCode: http.StatusGatewayTimeout,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Body:       http.NoBody,
		Request:    req,
	}
}
