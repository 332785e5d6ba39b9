package redaction

import (
	"io"
	"sync"
)

// Writer wraps an io.Writer and redacts all data before writing.
// It is safe for concurrent use; the CLI installs it under the slog handler.
type Writer struct {
	underlying io.Writer
	redactor   *Redactor
	mu         sync.Mutex
}

// NewWriter creates a redacting writer. A nil redactor passes data through.
func NewWriter(w io.Writer, r *Redactor) *Writer {
	return &Writer{
		underlying: w,
		redactor:   r,
	}
}

// Write redacts p and writes it. It reports len(p) on success even when the
// redacted output is shorter or longer.
func (w *Writer) Write(p []byte) (int, error) {
	out := p
	if w.redactor != nil {
		out = []byte(w.redactor.ScrubString(string(p)))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.underlying.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
