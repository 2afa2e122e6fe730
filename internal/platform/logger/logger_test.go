package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewWithWriter_Format(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info", "json").Info("appended", "cid", "CID-0000000000000001")
	assert.Contains(t, buf.String(), `"cid":"CID-0000000000000001"`)

	buf.Reset()
	NewWithWriter(&buf, "info", "text").Info("appended", "cid", "CID-0000000000000001")
	assert.Contains(t, buf.String(), "cid=CID-0000000000000001")

	buf.Reset()
	NewWithWriter(&buf, "warn", "json").Info("suppressed")
	assert.Empty(t, buf.String())
}
