package httpcache

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// currentSerializerVersion is the version tag this writer always emits.
// Spec §4.3 / §6: the wire format is "cc=<version>," followed by a
// self-describing binary payload; historical versions are recognized by
// prefix only and always decode to a miss (spec §9 "Legacy
// deserialization" — the rewrite drops all legacy decoders but keeps the
// version tag so a future format change can coexist).
const currentSerializerVersion = 4

const serializerPrefix = "cc="

// responseMetadata is the stored, non-body half of a CachedEntry: the
// response's status line, headers, and the request/response timestamps
// needed to recompute Age (RFC 7234 §4.2.3) after a round trip through the
// store.
type responseMetadata struct {
	Status        int         `msgpack:"status"`
	Proto         string      `msgpack:"proto"`
	ProtoMajor    int         `msgpack:"proto_major"`
	ProtoMinor    int         `msgpack:"proto_minor"`
	Header        http.Header `msgpack:"header"`
	DecodeContent bool        `msgpack:"decode_content"`
	RequestTime   time.Time   `msgpack:"request_time"`
	ResponseTime  time.Time   `msgpack:"response_time"`
}

// cachedEntry is the full stored value for a cache key (spec §3).
type cachedEntry struct {
	Metadata responseMetadata `msgpack:"metadata"`
	Body     []byte           `msgpack:"body"`
	Vary     varyMap          `msgpack:"vary"`
	// BodyRef, when non-empty, names a separate store entry holding the
	// body (the two-file scheme spec §4.3 allows for large-body backends).
	// Nothing in this module sets or reads it: blobcache locates its body
	// blob by its own ".body" key suffix instead.
	BodyRef string `msgpack:"body_ref,omitempty"`
}

// wireUnsatisfiable is the Vary value ("*") that no request can satisfy
// (spec §3). canCacheResponse refuses such responses before the Controller
// ever calls encodeEntry, so neither encodeEntry nor decodeEntry checks for
// this marker.
const wireUnsatisfiable = "*"

// encodeEntry serializes a response's metadata and body into the current
// wire format: "cc=4," followed by a msgpack payload.
func encodeEntry(meta responseMetadata, body []byte, vary varyMap) ([]byte, error) {
	entry := cachedEntry{Metadata: meta, Body: body, Vary: vary}
	payload, err := msgpack.Marshal(&entry)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(serializerPrefix)+2+len(payload))
	out = append(out, serializerPrefix...)
	out = strconv.AppendInt(out, currentSerializerVersion, 10)
	out = append(out, ',')
	out = append(out, payload...)
	return out, nil
}

// decodeEntry parses the wire format written by encodeEntry. Per spec
// §4.3/§7 (DecodeError), any failure — an unrecognized or legacy version
// tag, a truncated prefix, or a corrupt payload — returns (nil, nil): a
// miss, never an error. reqHeaders is used to apply invariant I2: if the
// decoded vary_map disqualifies the entry for this request, decodeEntry
// also returns a miss.
func decodeEntry(data []byte, reqHeaders http.Header) (*cachedEntry, error) {
	version, payload, ok := splitSerializerPrefix(data)
	if !ok {
		return nil, nil
	}
	if version != currentSerializerVersion {
		// Versions 0-3 are legacy forms (two of which were pickle-based in
		// the original implementation); this rewrite implements no legacy
		// decoders, so any non-current version is an unconditional miss.
		return nil, nil
	}

	var entry cachedEntry
	if err := msgpack.Unmarshal(payload, &entry); err != nil {
		return nil, nil
	}

	if entry.Vary != nil && !entry.Vary.matches(reqHeaders) {
		return nil, nil
	}

	return &entry, nil
}

// splitSerializerPrefix extracts the version number from a "cc=N," prefix
// and returns the remaining payload bytes. ok is false for anything that
// does not look like a well-formed prefix at all.
func splitSerializerPrefix(data []byte) (version int, payload []byte, ok bool) {
	s := string(data)
	if !strings.HasPrefix(s, serializerPrefix) {
		return 0, nil, false
	}
	rest := s[len(serializerPrefix):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return 0, nil, false
	}
	n, err := strconv.Atoi(rest[:comma])
	if err != nil {
		return 0, nil, false
	}
	return n, data[len(serializerPrefix)+comma+1:], true
}
