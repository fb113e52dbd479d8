package httpcache

import (
	"bytes"
	"io"
)

// bodyTap wraps a response body so that the bytes passing through Read are
// buffered and handed to a commit callback exactly once, when the
// underlying reader reports io.EOF — never on an early Close (spec §4.5:
// a client that abandons a response body part-way through must not cause
// a partial entry to be stored).
type bodyTap struct {
	r        io.ReadCloser
	onCommit func(body []byte)

	buf       bytes.Buffer
	committed bool
}

// newBodyTap returns a ReadCloser that proxies r, invoking onCommit with
// the full body exactly once, the first time r is read to completion.
// onCommit is never called if r is Closed before reaching EOF.
func newBodyTap(r io.ReadCloser, onCommit func(body []byte)) *bodyTap {
	return &bodyTap{r: r, onCommit: onCommit}
}

func (t *bodyTap) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.buf.Write(p[:n])
	}
	if err == io.EOF {
		t.commit()
	}
	return n, err
}

func (t *bodyTap) Close() error {
	return t.r.Close()
}

func (t *bodyTap) commit() {
	if t.committed {
		return
	}
	t.committed = true
	if t.onCommit != nil {
		t.onCommit(t.buf.Bytes())
	}
}

// newClosedBody returns a ReadCloser over b whose Close is a no-op, for
// reconstructing an http.Response body from stored bytes.
func newClosedBody(b []byte) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b))
}
