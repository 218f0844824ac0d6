package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatLogger_AppendsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewChatLogger(&buf)
	l.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	l.Append(ChatEntry{Type: ChatLogRequest, RequestID: "r-1", UserID: "u-1", Input: "hi", Output: "hello"})
	l.Append(ChatEntry{Type: ChatLogStreamStart, Input: "more"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first ChatEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, ChatLogRequest, first.Type)
	assert.Equal(t, "r-1", first.RequestID)
	assert.Equal(t, "2025-06-01T12:00:00Z", first.Timestamp)
	assert.Equal(t, 2, first.InputLength)
	assert.Equal(t, 5, first.OutputLength)
}

func TestChatLogger_DefaultsToGuest(t *testing.T) {
	var buf bytes.Buffer
	l := NewChatLogger(&buf)

	l.Append(ChatEntry{Type: ChatLogRequest, Input: "hi"})

	var entry ChatEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "guest", entry.UserID)
}

func TestChatLogger_NilIsSafe(t *testing.T) {
	var l *ChatLogger
	assert.NotPanics(t, func() {
		l.Append(ChatEntry{Type: ChatLogRequest, Input: "hi"})
	})
	assert.Nil(t, NewChatLogger(nil))
}
