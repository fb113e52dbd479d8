package httpcache

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"
)

// CacheStore is the storage abstraction the Controller drives. Backend
// packages (diskcache, redis, freecache, memcache, leveldbcache, blobcache,
// mongodb, natskv, postgresql, hazelcast) and the decorators under
// wrapper/ all implement it.
type CacheStore interface {
	// Get returns the stored bytes for key. ok is false and err is nil on
	// a plain miss; err is non-nil only for a genuine backend failure.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key. expires is a TTL hint, not an absolute
	// deadline; a zero value means "no expiration" for backends that
	// support that, or "use the backend's default" otherwise.
	Set(ctx context.Context, key string, value []byte, expires time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases any resources (connections, file handles) held by
	// the store.
	Close() error
}

// FileCacheStore is an optional extension to CacheStore for backends whose
// native storage is better addressed by streaming than by a single []byte
// round trip (e.g. large bodies against cloud object storage). It is never
// required: a CacheStore implementation only needs to add it when buffering
// the full body in memory before a Set, or after a Get, would be wasteful.
// Nothing in this package asserts a backend implements it; callers that want
// the streaming path type-assert for it themselves.
type FileCacheStore interface {
	// GetAsFile returns the stored metadata and a streaming reader over the
	// stored body for key. body is nil and err is nil on a plain miss.
	GetAsFile(ctx context.Context, key string) (metadata []byte, body io.ReadCloser, err error)
	// SetFromFile stores metadata and streams the body from the file at
	// bodyPath under key, without buffering the body in memory.
	SetFromFile(ctx context.Context, key string, metadata []byte, bodyPath string, expires time.Duration) error
}

// Controller is the orchestration layer between the Adapter (Transport)
// and a CacheStore: it decides whether a request may be answered from
// the store, prepares conditional revalidation, merges 304 responses into
// a stored entry, and invalidates entries after unsafe methods.
//
// Controller holds no per-request state; a single instance is safe for
// concurrent use by many in-flight RoundTrips.
type Controller struct {
	backend              CacheStore
	cacheableMethods     map[string]bool
	cacheableStatusCodes map[int]bool
	isPublicCache        bool
	enableVarySeparation bool
	cacheKeyHeaders      []string
}

// newController builds a Controller over store, configured by the options
// already applied to t.
func newController(store CacheStore, isPublicCache, enableVarySeparation bool, cacheKeyHeaders []string) *Controller {
	return &Controller{
		backend:              store,
		cacheableMethods:     DefaultCacheableMethods,
		cacheableStatusCodes: DefaultCacheableStatusCodes,
		isPublicCache:        isPublicCache,
		enableVarySeparation: enableVarySeparation,
		cacheKeyHeaders:      cacheKeyHeaders,
	}
}

// lookupResult is everything the Adapter needs to decide how to answer a
// request: the entry found (nil on miss), the key it was stored under,
// and the reconstructed http.Response.
type lookupResult struct {
	entry *cachedEntry
	key   string
	resp  *http.Response
}

// requestKey computes the cache key for req, honoring CacheKeyHeaders.
func (c *Controller) requestKey(req *http.Request) (string, error) {
	return cacheKeyWithHeaders(req, c.cacheKeyHeaders)
}

// lookup implements cached_request (spec §4.6): it returns (nil, nil) on
// any kind of miss — caching disabled for this request, store miss, or a
// decode/vary failure — never a non-nil error for those cases. A non-nil
// error means the store itself failed.
func (c *Controller) lookup(ctx context.Context, req *http.Request) (*lookupResult, error) {
	if !useCacheForRequest(req, c.cacheableMethods) {
		return nil, nil
	}

	key, err := c.requestKey(req)
	if err != nil {
		// BadRequest: propagated unchanged.
		return nil, err
	}

	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		// StoreFailure: downgraded to a miss, never surfaced as an error.
		GetLogger().Debug("cache store get failed, treating as miss", "key", key, "error", err)
		return nil, nil
	}
	if !ok {
		return nil, nil
	}

	// Under EnableVarySeparation the base key holds an index of the header
	// names the resource varies on rather than a full entry; resolve it to
	// the variant key this request actually matches before decoding.
	if c.enableVarySeparation {
		if names, isIndex := decodeVaryIndex(raw); isIndex {
			variantKey := cacheKeyWithVary(key, names, req.Header)
			variantRaw, vok, verr := c.backend.Get(ctx, variantKey)
			if verr != nil {
				GetLogger().Debug("cache store get failed, treating as miss", "key", variantKey, "error", verr)
				return nil, nil
			}
			if !vok {
				return nil, nil
			}
			entry, err := decodeEntry(variantRaw, req.Header)
			if err != nil || entry == nil {
				return nil, nil
			}
			resp := entryToResponse(entry, req)
			return &lookupResult{entry: entry, key: variantKey, resp: resp}, nil
		}
	}

	// decodeEntry never returns a non-nil error (DecodeError is always a
	// miss); the error return exists for symmetry with other Serializer
	// call sites and is checked defensively.
	entry, err := decodeEntry(raw, req.Header)
	if err != nil || entry == nil {
		return nil, nil
	}

	resp := entryToResponse(entry, req)
	return &lookupResult{entry: entry, key: key, resp: resp}, nil
}

// addConditionalHeaders mutates req in place, adding If-None-Match and/or
// If-Modified-Since derived from the stored entry's validators, unless the
// caller already set them.
func addConditionalHeaders(req *http.Request, entry *cachedEntry) {
	etag := entry.Metadata.Header.Get("Etag")
	lastModified := entry.Metadata.Header.Get("Last-Modified")

	if etag != "" && req.Header.Get("If-None-Match") == "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" && req.Header.Get("If-Modified-Since") == "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
}

// store implements cache_response (spec §4.6): it persists resp's
// metadata and body under key if, and only if, policy allows. Storing a
// response that fails canCacheResponse is a no-op. Every backend failure
// on this path (StoreFailure) is logged at debug and swallowed, never
// returned — there is nothing a caller could do differently with it.
func (c *Controller) store(ctx context.Context, req *http.Request, key string, meta responseMetadata, body []byte, now time.Time) {
	if !useCacheForRequest(req, c.cacheableMethods) {
		return
	}
	if c.isPublicCache && !c.sharedCacheMayStore(req, meta.Header) {
		if err := c.backend.Delete(ctx, key); err != nil {
			GetLogger().Debug("cache store delete failed", "key", key, "error", err)
		}
		return
	}
	if !canCacheResponse(meta.Status, meta.Header, c.cacheableStatusCodes, now) {
		if err := c.backend.Delete(ctx, key); err != nil {
			GetLogger().Debug("cache store delete failed", "key", key, "error", err)
		}
		return
	}

	vary := buildVaryMap(meta.Header, req.Header)
	encoded, err := encodeEntry(meta, body, vary)
	if err != nil {
		// Treat an encode failure like any other write-path disqualifier:
		// skip the write silently rather than propagate.
		GetLogger().Debug("cache entry encode failed, skipping write", "key", key, "error", err)
		return
	}

	expiration, ok := responseExpiration(meta.Header, now, nil)
	var ttl time.Duration
	if ok && expiration.After(now) {
		ttl = expiration.Sub(now)
	}

	if c.enableVarySeparation && len(vary) > 0 {
		names := varyHeaderNames(meta.Header)
		variantKey := cacheKeyWithVary(key, names, req.Header)
		if err := c.backend.Set(ctx, variantKey, encoded, ttl); err != nil {
			GetLogger().Debug("cache store set failed", "key", variantKey, "error", err)
		}
		// The base key becomes an index pointing at the variant headers
		// instead of a second copy of the entry, so a later lookup for a
		// different variant never clobbers this one.
		if err := c.backend.Set(ctx, key, encodeVaryIndex(names), ttl); err != nil {
			GetLogger().Debug("cache store set failed", "key", key, "error", err)
		}
		return
	}

	if err := c.backend.Set(ctx, key, encoded, ttl); err != nil {
		GetLogger().Debug("cache store set failed", "key", key, "error", err)
	}
}

// updateCachedEntry implements update_cached_response (spec §4.6): on a
// 304, the stored entry's headers are refreshed from the 304's headers
// (end-to-end headers only — Content-Length is never taken from a 304)
// and the merged entry is written back to the store.
func (c *Controller) updateCachedEntry(ctx context.Context, key string, entry *cachedEntry, notModified *http.Response, now time.Time) (*cachedEntry, error) {
	merged := *entry
	merged.Metadata.Header = entry.Metadata.Header.Clone()
	for name, values := range notModified.Header {
		if http.CanonicalHeaderKey(name) == "Content-Length" {
			continue
		}
		merged.Metadata.Header[name] = values
	}
	merged.Metadata.ResponseTime = now

	encoded, err := encodeEntry(merged.Metadata, merged.Body, merged.Vary)
	if err != nil {
		return nil, err
	}
	expiration, ok := responseExpiration(merged.Metadata.Header, now, nil)
	var ttl time.Duration
	if ok && expiration.After(now) {
		ttl = expiration.Sub(now)
	}
	if err := c.backend.Set(ctx, key, encoded, ttl); err != nil {
		// StoreFailure on write: the merged response is still returned to
		// the caller, it just won't be persisted.
		GetLogger().Debug("cache store set failed during 304 merge", "key", key, "error", err)
	}
	return &merged, nil
}

// maybeInvalidate implements maybe_invalidate_cache (spec §4.6), extended
// per RFC 7234 §4.4 to also invalidate the URIs named by Location and
// Content-Location response headers when they share the request's origin.
func (c *Controller) maybeInvalidate(ctx context.Context, req *http.Request, resp *http.Response) {
	if !isInvalidating(req.Method, resp.StatusCode) {
		return
	}

	c.invalidateURL(ctx, req.URL)

	for _, headerName := range []string{"Location", "Content-Location"} {
		v := resp.Header.Get(headerName)
		if v == "" {
			continue
		}
		target, err := req.URL.Parse(v)
		if err != nil || !sameOrigin(req.URL, target) {
			continue
		}
		c.invalidateURL(ctx, target)
	}
}

// invalidateURL deletes both the GET and HEAD cache entries for target.
func (c *Controller) invalidateURL(ctx context.Context, target *url.URL) {
	for _, m := range []string{http.MethodGet, http.MethodHead} {
		req := &http.Request{Method: m, URL: target}
		key, err := c.requestKey(req)
		if err != nil {
			continue
		}
		if err := c.backend.Delete(ctx, key); err != nil {
			GetLogger().Debug("failed to invalidate cache entry", "key", key, "method", m, "error", err)
		}
	}
}

// sharedCacheMayStore applies the two RFC 7234 restrictions that only bind
// a shared/public cache (IsPublicCache): a response to a request bearing
// Authorization may only be stored if it carries public, must-revalidate,
// or s-maxage; and Cache-Control: private is always refused. Carried over
// from the teacher's canStore (cachecontrol.go) as a supplement spec.md
// did not need to name because it scoped the module to private-cache use.
func (c *Controller) sharedCacheMayStore(req *http.Request, respHeaders http.Header) bool {
	respCC := parseCacheControl(respHeaders)
	if respCC.has(directivePrivate) {
		return false
	}
	if req.Header.Get("Authorization") == "" {
		return true
	}
	return respCC.has(directivePublic) || respCC.has(directiveMustRevalidate) || respCC.has(directiveSMaxAge)
}

func sameOrigin(a, b *url.URL) bool {
	return a.Scheme == b.Scheme && a.Host == b.Host
}

// entryToResponse reconstructs an *http.Response from a stored entry, for
// req. The Body is always a no-op ReadCloser over the stored bytes; the
// Adapter decides whether to wrap it further.
func entryToResponse(entry *cachedEntry, req *http.Request) *http.Response {
	header := entry.Metadata.Header.Clone()
	return &http.Response{
		Status:     http.StatusText(entry.Metadata.Status),
		StatusCode: entry.Metadata.Status,
		Proto:      entry.Metadata.Proto,
		ProtoMajor: entry.Metadata.ProtoMajor,
		ProtoMinor: entry.Metadata.ProtoMinor,
		Header:     header,
		Body:       newClosedBody(entry.Body),
		Request:    req,
	}
}
