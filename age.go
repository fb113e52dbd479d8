package httpcache

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNoDateHeader indicates that the HTTP headers contained no Date header.
var ErrNoDateHeader = errors.New("httpcache: no Date header")

// dateHeader parses and returns the value of the Date header.
func dateHeader(headers http.Header) (time.Time, error) {
	v := headers.Get("Date")
	if v == "" {
		return time.Time{}, ErrNoDateHeader
	}
	return time.Parse(time.RFC1123, v)
}

// ageHeaderSeconds parses the Age header per RFC 7234 §4.2.3/§5.1, returning
// the duration and whether it was present and well-formed. A negative or
// non-numeric value is treated as absent rather than as an error, per
// spec §4.4's "malformed values disqualify... rather than crash" rule.
func ageHeaderSeconds(headers http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(headers.Get(headerAge))
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

// formatAge renders a duration as an Age header value in whole seconds.
func formatAge(age time.Duration) string {
	s := int64(age.Seconds())
	if s < 0 {
		s = 0
	}
	return strconv.FormatInt(s, 10)
}

// calculateCurrentAge implements the Age calculation algorithm from RFC 7234
// §4.2.3, using explicit request/response timestamps recorded by the
// Controller rather than synthetic response headers.
//
//	apparent_age      = max(0, response_time - date_value)
//	response_delay    = response_time - request_time
//	corrected_age     = age_value + response_delay
//	corrected_initial = max(apparent_age, corrected_age)
//	resident_time     = now - response_time
//	current_age       = corrected_initial + resident_time
func calculateCurrentAge(headers http.Header, requestTime, responseTime, now time.Time) (time.Duration, error) {
	date, err := dateHeader(headers)
	if err != nil {
		return 0, err
	}

	apparentAge := time.Duration(0)
	if responseTime.After(date) {
		apparentAge = responseTime.Sub(date)
	}

	ageValue, _ := ageHeaderSeconds(headers)

	responseDelay := time.Duration(0)
	if !requestTime.IsZero() && responseTime.After(requestTime) {
		responseDelay = responseTime.Sub(requestTime)
	}

	correctedAge := ageValue + responseDelay
	correctedInitial := apparentAge
	if correctedAge > correctedInitial {
		correctedInitial = correctedAge
	}

	residentTime := now.Sub(responseTime)
	if residentTime < 0 {
		residentTime = 0
	}

	return correctedInitial + residentTime, nil
}
