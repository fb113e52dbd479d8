package httpcache

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// ErrNotAbsoluteURL is returned by cacheKey when the request URL has no
// scheme or host component, per spec §4.2 (KeyBuilder.cache_key rejects
// non-absolute URIs as a BadRequest).
var ErrNotAbsoluteURL = errors.New("httpcache: URL is not absolute")

// cacheKeyForURL derives the primary store key for u, per spec §3: scheme
// and authority lowercased, empty path defaults to "/", query preserved
// verbatim after "?", fragment discarded.
func cacheKeyForURL(u *url.URL) (string, error) {
	if u.Scheme == "" || u.Host == "" {
		return "", ErrNotAbsoluteURL
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	key := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key, nil
}

// cacheKey returns the cache key for req: the GET (or empty-method) entry is
// keyed only by URL; every other method, HEAD included, is prefixed with the
// method so that, e.g., an
// invalidation lookup for PUT never collides with the GET entry for the
// same resource.
func cacheKey(req *http.Request) (string, error) {
	base, err := cacheKeyForURL(req.URL)
	if err != nil {
		return "", err
	}
	if req.Method == "" || req.Method == http.MethodGet {
		return base, nil
	}
	return req.Method + " " + base, nil
}

// cacheKeyWithHeaders extends cacheKey with the values of specified request
// headers (CacheKeyHeaders), letting a deployment split cache entries by,
// e.g., Authorization or Accept-Language without relying on the server
// emitting a matching Vary header.
func cacheKeyWithHeaders(req *http.Request, headers []string) (string, error) {
	key, err := cacheKey(req)
	if err != nil {
		return "", err
	}

	if len(headers) == 0 {
		return key, nil
	}

	var parts []string
	for _, h := range headers {
		canonical := http.CanonicalHeaderKey(h)
		if v := req.Header.Get(canonical); v != "" {
			parts = append(parts, canonical+":"+v)
		}
	}
	if len(parts) == 0 {
		return key, nil
	}
	sort.Strings(parts)
	return key + "|" + strings.Join(parts, "|"), nil
}
