package mocks

import (
	"bytes"
	"log/slog"
)

// NewLoggerMock returns a text slog logger writing into the buffer with
// timestamps stripped, so tests can assert exact rendered output.
func NewLoggerMock() (*bytes.Buffer, *slog.Logger) {
	buf := &bytes.Buffer{}
	return buf, slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}
