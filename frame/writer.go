package frame

import (
	"io"
	"net/http"
)

// Writer emits framed units and flushes after each one so the client sees
// every chunk as soon as it is written.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

func NewWriter(w io.Writer) *Writer {
	fw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

// SetHeaders commits the event-stream response headers.
func SetHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

// Data writes one chunk.
func (fw *Writer) Data(text string) error {
	return fw.write([]byte("data: " + Escape(text) + "\n\n"))
}

// Done writes the terminal unit.
func (fw *Writer) Done() error {
	return fw.write(doneFrame)
}

// Error writes an in-band error unit.
func (fw *Writer) Error(message string) error {
	return fw.write([]byte("event: error\ndata: " + Escape(message) + "\n\n"))
}

func (fw *Writer) write(p []byte) error {
	if _, err := fw.w.Write(p); err != nil {
		return err
	}
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return nil
}
