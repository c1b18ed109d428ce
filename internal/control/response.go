package control

import (
	"bytes"
	"fmt"
	"net/http"
)

// responseWriter buffers a response and renders it as a bare status line,
// a blank line and the body. Headers set by handlers are dropped.
type responseWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: make(http.Header)}
}

func (w *responseWriter) Header() http.Header {
	return w.header
}

// WriteHeader records code. Only the first call has an effect.
func (w *responseWriter) WriteHeader(code int) {
	if w.status != 0 {
		return
	}
	w.status = code
}

func (w *responseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

// reset discards anything written so far.
func (w *responseWriter) reset() {
	w.status = 0
	w.body.Reset()
}

// Bytes returns the wire form of the response.
func (w *responseWriter) Bytes() []byte {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n\r\n", status, http.StatusText(status))
	b.Write(w.body.Bytes())
	return b.Bytes()
}
