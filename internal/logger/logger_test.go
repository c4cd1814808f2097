package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintfAndFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { Configure("info", false) })

	Info("wrote %d files", 3, []Field{String("album", "a1"), Err("error", errors.New("boom"))})

	out := buf.String()
	assert.Contains(t, out, "wrote 3 files")
	assert.Contains(t, out, "album=a1")
	assert.Contains(t, out, "error=boom")
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { Configure("info", false) })

	Debug("hidden")
	Warn("100% shown")

	assert.NotContains(t, buf.String(), "hidden")
	// No args means the format string is logged verbatim.
	assert.Contains(t, buf.String(), "100% shown")
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { Configure("info", false) })

	Named("codec").Info("probe", "format", "flac")
	assert.Contains(t, buf.String(), "tonearm.codec")
	assert.Contains(t, buf.String(), "format=flac")
}

func TestKeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { Configure("info", false) })

	Info("HTTP Response", "status", 200, "path", "/api/health")
	out := buf.String()
	assert.Contains(t, out, "HTTP Response")
	assert.Contains(t, out, "status=200")
	assert.NotContains(t, out, "EXTRA")
}
