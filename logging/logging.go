// Package logging provides the structured logger every protocol driver in
// this module logs through, built on log/slog with a tint console handler
// for human-readable output.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// New builds a slog.Logger that writes tint-formatted, colorized lines to w
// at the given level. Pass os.Stderr for interactive use or a *FileLogger
// for a persistent log file.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
	}))
}

// Default returns the package-wide logger used when a caller doesn't supply
// its own: tint over stderr at Info level.
func Default() *slog.Logger {
	return New(os.Stderr, slog.LevelInfo)
}

// HexPreview wraps a byte slice so it is only hex-dumped when a handler
// actually renders it, i.e. only at LevelDebug and below. Attach it as
// slog.Any("data", HexPreview(buf)) on TX/RX log lines.
type HexPreview []byte

// LogValue implements slog.LogValuer, deferring the hex-dump formatting
// cost until a handler actually asks for the value.
func (h HexPreview) LogValue() slog.Value {
	const maxBytes = 64
	n := len(h)
	truncated := n > maxBytes
	preview := h
	if truncated {
		preview = h[:maxBytes]
	}

	s := fmt.Sprintf("% x", []byte(preview))
	if truncated {
		s += fmt.Sprintf(" ...(%d bytes total)", n)
	}
	return slog.StringValue(s)
}
