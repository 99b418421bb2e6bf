package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(DEBUG)
	SetRedactPII(true)
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]string
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestLog_RedactsEmailFields(t *testing.T) {
	buf := capture(t)
	Info("subscribed", "email", "john.doe@example.com", "note", "from ab@example.org")

	e := lastEntry(t, buf)
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "jo***@example.com", e["email"])
	assert.Equal(t, "from ***@example.org", e["note"])
}

func TestLog_AlwaysRedactsTokens(t *testing.T) {
	buf := capture(t)
	SetRedactPII(false)
	Warn("confirm", "token", "deadbeef", "email", "john.doe@example.com")

	e := lastEntry(t, buf)
	assert.Equal(t, "[redacted]", e["token"])
	assert.Equal(t, "john.doe@example.com", e["email"])
}

func TestLog_LevelFilter(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)
	Info("dropped")
	assert.Empty(t, buf.String())
	Error("kept")
	assert.Equal(t, "kept", lastEntry(t, buf)["msg"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel(" ERROR "))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestRedactEmail(t *testing.T) {
	assert.Equal(t, "jo***@example.com", RedactEmail("john@example.com"))
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
}
