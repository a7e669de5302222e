package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugSilentByDefault(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Debug("hidden %d", 1)
	Info("hidden too")
	assert.Empty(t, buf.String())
}

func TestVerboseOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(true)
	defer SetVerbose(false)

	Debug("fetched page %d", 3)
	Info("run complete")
	Section("met")

	out := buf.String()
	assert.Contains(t, out, "[DEBUG] fetched page 3")
	assert.Contains(t, out, "[INFO] run complete")
	assert.Contains(t, out, "=== met ===")
}

func TestWarnAlwaysPrinted(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(false)

	Warn("collision on %s", "met:1")
	assert.Contains(t, buf.String(), "[WARN] collision on met:1")
}
