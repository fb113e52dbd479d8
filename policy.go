package httpcache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultCacheableMethods is the set of request methods this cache will
// attempt to answer from its store. RFC 7234 allows other methods to define
// cache semantics, but this cache only ever looks up GET by default.
var DefaultCacheableMethods = map[string]bool{http.MethodGet: true}

// DefaultCacheableStatusCodes is the set of response status codes eligible
// for storage, per RFC 7231 §6.1 plus the two permanent-redirect codes
// singled out by RFC 7234 §4.4.
var DefaultCacheableStatusCodes = map[int]bool{
	http.StatusOK:                  true,
	http.StatusNonAuthoritativeInfo: true,
	http.StatusMultipleChoices:     true,
	http.StatusMovedPermanently:    true,
	308:                            true, // Permanent Redirect
}

// parseNonNegativeSeconds parses a Cache-Control numeric argument
// (max-age=N, max-stale=N, min-fresh=N) as a non-negative integer number of
// seconds. Spec §4.4: malformed values must disqualify rather than crash, so
// callers treat a false return as "this directive is absent/invalid".
func parseNonNegativeSeconds(s string) (time.Duration, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// useCacheForRequest decides whether req may be answered from the cache at
// all, before any lookup happens.
func useCacheForRequest(req *http.Request, cacheableMethods map[string]bool) bool {
	if cacheableMethods == nil {
		cacheableMethods = DefaultCacheableMethods
	}
	if !cacheableMethods[req.Method] {
		return false
	}

	reqCC := parseCacheControl(req.Header)
	if reqCC.has(directiveNoStore) {
		return false
	}
	if req.Header.Get("Authorization") != "" {
		return false
	}
	return true
}

// responseExpiration computes the instant at which a response (identified
// by its headers) is considered expired, given the current time and an
// optional caller-supplied max-age override (the request's own max-age
// directive, which takes priority over the response's own freshness
// hints). It returns (zero, false) when no expiration can be determined.
func responseExpiration(headers http.Header, now time.Time, maxAgeOverride *time.Duration) (time.Time, bool) {
	t0, err := dateHeader(headers)
	if err != nil {
		t0 = now
	}
	if age, ok := ageHeaderSeconds(headers); ok {
		t0 = t0.Add(age)
	}

	respCC := parseCacheControl(headers)

	var lifetime time.Duration
	switch {
	case maxAgeOverride != nil:
		lifetime = *maxAgeOverride

	case respCC.has(directiveMaxAge):
		v, _ := respCC.get(directiveMaxAge)
		d, ok := parseNonNegativeSeconds(v)
		if !ok {
			// A malformed max-age disqualifies this response's freshness
			// hint entirely, rather than silently falling back further.
			return time.Time{}, false
		}
		lifetime = d

	case headers.Get("Expires") != "":
		expires, err := http.ParseTime(headers.Get("Expires"))
		if err != nil {
			return heuristicExpiration(headers, t0)
		}
		lifetime = expires.Sub(t0)
		if lifetime < 0 {
			lifetime = 0
		}

	default:
		return heuristicExpiration(headers, t0)
	}

	return t0.Add(lifetime), true
}

// heuristicExpiration implements the single heuristic the core pins down
// (spec §4.4 rule 4 / §GLOSSARY "Heuristic freshness"): 10% of the age of
// the document at t0, when Last-Modified is present. Servers are expected
// to supply max-age/Expires; this only covers their absence.
func heuristicExpiration(headers http.Header, t0 time.Time) (time.Time, bool) {
	lm := headers.Get(headerLastModified)
	if lm == "" {
		return time.Time{}, false
	}
	lastModified, err := http.ParseTime(lm)
	if err != nil {
		return time.Time{}, false
	}
	age := t0.Sub(lastModified)
	if age < 0 {
		age = 0
	}
	return t0.Add(age / 10), true
}

// canCacheResponse decides whether a response may be stored at all,
// independent of any particular request.
func canCacheResponse(status int, headers http.Header, cacheableStatusCodes map[int]bool, now time.Time) bool {
	if cacheableStatusCodes == nil {
		cacheableStatusCodes = DefaultCacheableStatusCodes
	}
	if !cacheableStatusCodes[status] {
		return false
	}

	respCC := parseCacheControl(headers)
	if respCC.has(directiveNoStore) || respCC.has(directivePrivate) {
		return false
	}
	if varyIsUnsatisfiable(headers) {
		return false
	}

	if status == http.StatusMovedPermanently || status == 308 {
		return true
	}

	expiration, ok := responseExpiration(headers, now, nil)
	if !ok {
		return false
	}
	return !now.After(expiration)
}

// isResponseFresh decides whether a stored response may still satisfy req
// without revalidation.
func isResponseFresh(req *http.Request, storedHeaders http.Header, storedStatus int, now time.Time) bool {
	reqCC := parseCacheControl(req.Header)

	if reqCC.has(directiveNoCache) {
		return false
	}
	if req.Header.Get("Cache-Control") == "" {
		if strings.EqualFold(req.Header.Get(headerPragma), pragmaNoCache) {
			return false
		}
	}

	storedCC := parseCacheControl(storedHeaders)
	if storedCC.has(directiveNoCache) || storedCC.has(directiveMustRevalidate) {
		return false
	}

	if v, ok := reqCC.get(directiveMaxAge); ok && v == "0" {
		return false
	}

	if storedStatus == http.StatusMovedPermanently || storedStatus == 308 {
		return true
	}

	var override *time.Duration
	if v, ok := reqCC.get(directiveMaxAge); ok {
		d, ok2 := parseNonNegativeSeconds(v)
		if !ok2 {
			return false
		}
		override = &d
	}

	expiration, ok := responseExpiration(storedHeaders, now, override)
	if !ok {
		return false
	}

	if v, ok := reqCC.get(directiveMaxStale); ok {
		if v == "" {
			// Bare max-stale: accept any amount of staleness.
			return true
		}
		if d, ok2 := parseNonNegativeSeconds(v); ok2 {
			expiration = expiration.Add(d)
		}
	}

	horizon := now
	if v, ok := reqCC.get(directiveMinFresh); ok {
		if d, ok2 := parseNonNegativeSeconds(v); ok2 {
			horizon = now.Add(d)
		}
	}

	return !horizon.After(expiration)
}

// staleWhileRevalidateWindow returns the stale-while-revalidate grace
// period from the stored response's Cache-Control, if any.
func staleWhileRevalidateWindow(storedHeaders http.Header) (time.Duration, bool) {
	cc := parseCacheControl(storedHeaders)
	v, ok := cc.get(directiveStaleWhileRevalidate)
	if !ok {
		return 0, false
	}
	return parseNonNegativeSeconds(v)
}

// staleIfErrorWindow returns the stale-if-error grace period, consulting
// the request's directive before the response's, per RFC 5861.
func staleIfErrorWindow(reqHeaders, storedHeaders http.Header) (time.Duration, bool) {
	for _, h := range []http.Header{reqHeaders, storedHeaders} {
		cc := parseCacheControl(h)
		v, ok := cc.get(directiveStaleIfError)
		if !ok {
			continue
		}
		if v == "" {
			return time.Duration(1<<62 - 1), true
		}
		return parseNonNegativeSeconds(v)
	}
	return 0, false
}

// isInvalidating implements RFC 7234 §4.4: a non-error response to an
// unsafe method invalidates any stored entry for the affected resource.
func isInvalidating(method string, status int) bool {
	if method == http.MethodGet || method == http.MethodHead {
		return false
	}
	return status >= 200 && status <= 399
}

func isUnsafeMethod(method string) bool {
	return method == http.MethodPost || method == http.MethodPut ||
		method == http.MethodDelete || method == http.MethodPatch
}
