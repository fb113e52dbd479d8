package httpcache

import (
	"net/http"
	"sort"
	"strings"
)

// varyMap is the stored-request header snapshot named by a response's Vary
// header: for each header name listed in Vary, the value that header had in
// the original request. Per spec §3, an empty varyMap means the response
// carried no Vary header at all.
type varyMap map[string]string

const varyWildcard = "*"

// varyHeaderNames splits and canonicalizes a comma-separated Vary header
// value into individual header names.
func varyHeaderNames(headers http.Header) []string {
	raw := headers.Values("Vary")
	var names []string
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				names = append(names, part)
			}
		}
	}
	return names
}

// varyIsUnsatisfiable reports whether the response's Vary header contains
// "*", which per spec §3 means the entry can never be served from cache
// again and must either be refused at write time or stored in a form that
// always misses.
func varyIsUnsatisfiable(headers http.Header) bool {
	for _, name := range varyHeaderNames(headers) {
		if name == varyWildcard {
			return true
		}
	}
	return false
}

// buildVaryMap captures, from the original request, the values of every
// header named in the response's Vary header.
func buildVaryMap(respHeaders http.Header, reqHeaders http.Header) varyMap {
	names := varyHeaderNames(respHeaders)
	if len(names) == 0 {
		return nil
	}
	vm := make(varyMap, len(names))
	for _, name := range names {
		canonical := http.CanonicalHeaderKey(name)
		vm[canonical] = reqHeaders.Get(canonical)
	}
	return vm
}

// matches implements invariant I2: a CachedEntry with this varyMap matches
// req only if, for every (h, v) pair, req's header h has the identical
// value v (case-insensitive name, byte-equal value).
func (vm varyMap) matches(reqHeaders http.Header) bool {
	for name, want := range vm {
		if reqHeaders.Get(name) != want {
			return false
		}
	}
	return true
}

// sortedVaryKeySuffix renders the varyMap deterministically, for use by
// deployments that enable per-variant key separation (EnableVarySeparation)
// instead of relying on select_variant re-matching at read time.
func (vm varyMap) sortedVaryKeySuffix() string {
	if len(vm) == 0 {
		return ""
	}
	names := make([]string, 0, len(vm))
	for name := range vm {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("|vary:")
	for i, name := range names {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(vm[name])
	}
	return b.String()
}

// cacheKeyWithVary extends a base cache key with the request's values for
// the named Vary headers. Used only by the EnableVarySeparation path (see
// controller.go), which stores each variant under its own key rather than
// relying solely on select_variant's post-hoc vary_map match.
func cacheKeyWithVary(base string, varyHeaderList []string, reqHeaders http.Header) string {
	if len(varyHeaderList) == 0 {
		return base
	}
	vm := make(varyMap, len(varyHeaderList))
	for _, name := range varyHeaderList {
		canonical := http.CanonicalHeaderKey(strings.TrimSpace(name))
		if canonical == "" || canonical == varyWildcard {
			continue
		}
		vm[canonical] = reqHeaders.Get(canonical)
	}
	return base + vm.sortedVaryKeySuffix()
}

// varyIndexPrefix marks the small record EnableVarySeparation writes at a
// resource's base key in place of a full entry: the list of header names
// its response varies on, so a later lookup can compute the variant key for
// an incoming request without first knowing what the origin will vary on.
const varyIndexPrefix = "ccvi="

// encodeVaryIndex renders names as a base-key index record.
func encodeVaryIndex(names []string) []byte {
	return []byte(varyIndexPrefix + strings.Join(names, ","))
}

// decodeVaryIndex recognizes a base-key index record written by
// encodeVaryIndex. ok is false for anything else, including a real encoded
// entry (which always begins with the distinct serializerPrefix).
func decodeVaryIndex(data []byte) (names []string, ok bool) {
	s := string(data)
	if !strings.HasPrefix(s, varyIndexPrefix) {
		return nil, false
	}
	rest := s[len(varyIndexPrefix):]
	if rest == "" {
		return nil, true
	}
	return strings.Split(rest, ","), true
}
