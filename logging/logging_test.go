package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogsAtConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)

	logger.Debug("should be filtered out")
	if buf.Len() != 0 {
		t.Errorf("expected debug line to be filtered, got: %s", buf.String())
	}

	logger.Warn("connection dropped", "netId", "192.168.1.1.1.1")
	out := buf.String()
	if !strings.Contains(out, "connection dropped") {
		t.Errorf("expected message in output, got: %s", out)
	}
	if !strings.Contains(out, "192.168.1.1.1.1") {
		t.Errorf("expected attribute in output, got: %s", out)
	}
}

func TestHexPreviewTruncatesLongBuffers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug)

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	logger.Debug("tx", "data", HexPreview(data))

	out := buf.String()
	if !strings.Contains(out, "bytes total") {
		t.Errorf("expected truncation marker for long buffer, got: %s", out)
	}
}

func TestHexPreviewShortBufferNotTruncated(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug)

	logger.Debug("tx", "data", HexPreview([]byte{0x01, 0x02, 0x03}))

	out := buf.String()
	if strings.Contains(out, "bytes total") {
		t.Errorf("did not expect truncation marker for short buffer, got: %s", out)
	}
	if !strings.Contains(out, "01 02 03") {
		t.Errorf("expected hex dump of bytes, got: %s", out)
	}
}
