// Package httpcache provides a http.RoundTripper implementation that works as a
// private, RFC 7234 compliant cache for HTTP responses.
package httpcache

import (
	"net/http"
	"strings"
)

// directive is one (name, argument) pair parsed out of a Cache-Control or
// Pragma header. Argument is empty for directives without a value
// (e.g. "no-cache"); it is the unquoted value for directives with one
// (e.g. "max-age=60" or `key="v1,v2"`).
type directive struct {
	name string
	arg  string
}

// directiveSet is an ordered, first-occurrence-wins collection of directives,
// keyed by lowercased name.
type directiveSet struct {
	order  []string
	values map[string]string
}

func newDirectiveSet() directiveSet {
	return directiveSet{values: map[string]string{}}
}

func (d *directiveSet) add(name, arg string) {
	name = strings.ToLower(name)
	if _, seen := d.values[name]; seen {
		// RFC 7234 §4.2.1 / §5.2: a duplicate directive is resolved by keeping
		// the first occurrence. Later duplicates are parsed and discarded.
		return
	}
	d.order = append(d.order, name)
	d.values[name] = arg
}

// has reports whether name was present in the parsed header.
func (d directiveSet) has(name string) bool {
	_, ok := d.values[name]
	return ok
}

// get returns the argument for name and whether it was present.
func (d directiveSet) get(name string) (string, bool) {
	v, ok := d.values[name]
	return v, ok
}

// parseDirectives tokenizes a Cache-Control or Pragma header value into a
// directiveSet. It accepts the RFC 7234 grammar: a comma-separated list of
// tokens, each either a bare directive or "directive=value" /
// `directive="quoted, value"`. A comma inside a quoted-string argument does
// not terminate the directive.
func parseDirectives(headerValue string) directiveSet {
	set := newDirectiveSet()
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" {
		return set
	}

	for _, part := range splitDirectives(headerValue) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, arg := splitDirective(part)
		set.add(name, arg)
	}
	return set
}

// splitDirectives splits a Cache-Control-style header value on top-level
// commas, treating commas inside a double-quoted argument as literal.
func splitDirectives(headerValue string) []string {
	var parts []string
	var buf strings.Builder
	inQuotes := false

	for _, r := range headerValue {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			buf.WriteRune(r)
		case r == ',' && !inQuotes:
			parts = append(parts, buf.String())
			buf.Reset()
		default:
			buf.WriteRune(r)
		}
	}
	parts = append(parts, buf.String())
	return parts
}

// splitDirective splits a single "name" or "name=value" token, unquoting a
// quoted-string value if present.
func splitDirective(part string) (name, arg string) {
	eq := strings.IndexByte(part, '=')
	if eq < 0 {
		return strings.TrimSpace(part), ""
	}
	name = strings.TrimSpace(part[:eq])
	arg = strings.TrimSpace(part[eq+1:])
	if len(arg) >= 2 && arg[0] == '"' && arg[len(arg)-1] == '"' {
		arg = arg[1 : len(arg)-1]
	}
	return name, arg
}

// parseCacheControl parses the Cache-Control header of a header multimap.
func parseCacheControl(headers http.Header) directiveSet {
	return parseDirectives(headers.Get("Cache-Control"))
}

// parsePragma parses the Pragma header of a header multimap.
func parsePragma(headers http.Header) directiveSet {
	return parseDirectives(headers.Get(headerPragma))
}

// Recognized Cache-Control directive names (RFC 7234 §5.2). Directives not
// in this list are parsed like any other but never inspected by the policy
// engine.
const (
	directiveNoCache              = "no-cache"
	directiveNoStore              = "no-store"
	directiveMustRevalidate       = "must-revalidate"
	directivePrivate              = "private"
	directivePublic               = "public"
	directiveMaxAge               = "max-age"
	directiveMaxStale             = "max-stale"
	directiveMinFresh             = "min-fresh"
	directiveSMaxAge              = "s-maxage"
	directiveOnlyIfCached         = "only-if-cached"
	directiveStaleWhileRevalidate = "stale-while-revalidate"
	directiveStaleIfError         = "stale-if-error"
)
