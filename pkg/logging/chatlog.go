package logging

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Chat log entry types. Streaming turns write a stream_start entry when the
// connection opens and a stream_end entry after the last event; buffered turns
// write a single request entry.
const (
	ChatLogRequest     = "request"
	ChatLogStreamStart = "stream_start"
	ChatLogStreamEnd   = "stream_end"
)

// ChatEntry is one newline-delimited JSON chat log record.
type ChatEntry struct {
	Timestamp    string         `json:"timestamp"`
	Type         string         `json:"type"`
	RequestID    string         `json:"requestId"`
	UserID       string         `json:"userId"`
	Input        string         `json:"input,omitempty"`
	Output       string         `json:"output,omitempty"`
	InputLength  int            `json:"inputLength,omitempty"`
	OutputLength int            `json:"outputLength,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// ChatLogger appends chat request/response records as JSON lines.
// A nil ChatLogger discards everything, so callers never need to guard.
type ChatLogger struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewChatLogger writes chat entries to w. Pass nil to disable chat logging.
func NewChatLogger(w io.Writer) *ChatLogger {
	if w == nil {
		return nil
	}
	return &ChatLogger{w: w, now: time.Now}
}

// Append writes one entry. Failures are swallowed: chat logging must never
// affect the request path.
func (l *ChatLogger) Append(entry ChatEntry) {
	if l == nil {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = l.now().UTC().Format(time.RFC3339Nano)
	}
	if entry.UserID == "" {
		entry.UserID = "guest"
	}
	if entry.InputLength == 0 {
		entry.InputLength = len(entry.Input)
	}
	if entry.OutputLength == 0 {
		entry.OutputLength = len(entry.Output)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.w.Write(append(data, '\n'))
}
