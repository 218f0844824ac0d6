package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealhound/dealhound/internal/assistant"
	"github.com/dealhound/dealhound/internal/cache"
	"github.com/dealhound/dealhound/internal/llm"
	"github.com/dealhound/dealhound/internal/tools"
)

// stubGateway answers every completion with a fixed structured envelope and
// streams fixed text.
type stubGateway struct {
	content string
	fail    error
}

func (s *stubGateway) Complete(context.Context, llm.Request) (llm.Completion, error) {
	if s.fail != nil {
		return llm.Completion{}, s.fail
	}
	return llm.Completion{Content: s.content, Usage: llm.Usage{TotalTokens: 10}}, nil
}

func (s *stubGateway) Stream(_ context.Context, _ llm.Request, onToken func(string)) (llm.Completion, error) {
	if s.fail != nil {
		return llm.Completion{}, s.fail
	}
	onToken(s.content)
	return llm.Completion{Content: s.content, Usage: llm.Usage{TotalTokens: 10}}, nil
}

type stubRunner struct{}

func (stubRunner) Definitions() []llm.ToolDef { return nil }
func (stubRunner) Execute(context.Context, []llm.ToolCall) map[string]tools.Result {
	return nil
}
func (stubRunner) FallbackSearch(context.Context, string) ([]tools.Deal, error) {
	return nil, errors.New("no fallback in tests")
}

type stubCache struct{}

func (stubCache) GetResponse(context.Context, string) ([]byte, bool) { return nil, false }
func (stubCache) SetResponse(context.Context, string, []byte)        {}

type stubLimiter struct {
	decision cache.Decision
}

func (s stubLimiter) Check(context.Context, string, bool) cache.Decision { return s.decision }

type stubClassifier struct{}

func (stubClassifier) Classify(context.Context, string) assistant.Classification {
	// A direct-path intent so handler tests need no tool scripting.
	return assistant.Classification{Intent: assistant.IntentGeneral, Confidence: 0.8}
}

type stubHealth struct {
	latency int64
	err     error
}

func (s stubHealth) Healthy(context.Context, string) (int64, error) { return s.latency, s.err }

type stubStats struct{}

func (stubStats) SnapshotStats(context.Context) cache.Stats {
	return cache.Stats{RedisConnected: true, MemoryEntries: 2}
}

type handlerFixture struct {
	handler *ChatHandler
	mr      *miniredis.Miniredis
}

func newHandlerFixture(t *testing.T, gw *stubGateway, limiter stubLimiter) *handlerFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	orch := assistant.NewOrchestrator(gw, stubClassifier{}, stubRunner{}, stubCache{}, limiter, nil, assistant.Options{
		SimpleModel:    "simple",
		ComplexModel:   "complex",
		MaxInputLength: 2000,
		AIEnabled:      true,
	}, nil)

	return &handlerFixture{
		handler: NewChatHandler(
			orch,
			assistant.NewHistoryStore(rdb, nil),
			assistant.NewFeedbackStore(rdb, nil),
			stubHealth{latency: 12},
			stubStats{},
			nil,
			"simple",
			true,
			nil,
		),
		mr: mr,
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:51000"
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestChat_HappyPath(t *testing.T) {
	f := newHandlerFixture(t, &stubGateway{content: `{"message": "hello from the hound", "dealIds": []}`}, stubLimiter{})

	rec := postJSON(t, f.handler.Chat, `{"message": "tell me something"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp assistant.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "hello from the hound", resp.Content)
	assert.NotEmpty(t, resp.RequestID)
}

func TestChat_InvalidBody(t *testing.T) {
	f := newHandlerFixture(t, &stubGateway{content: "unused"}, stubLimiter{})

	rec := postJSON(t, f.handler.Chat, `{"message": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp assistant.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestChat_EmptyMessage(t *testing.T) {
	f := newHandlerFixture(t, &stubGateway{content: "unused"}, stubLimiter{})

	rec := postJSON(t, f.handler.Chat, `{"message": "   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_RateLimited(t *testing.T) {
	f := newHandlerFixture(t, &stubGateway{content: "unused"},
		stubLimiter{decision: cache.Decision{Limited: true, Message: "You're asking questions too quickly."}})

	rec := postJSON(t, f.handler.Chat, `{"message": "deals please"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp assistant.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Retryable)
	assert.Contains(t, resp.Error, "too quickly")
}

func TestChat_PersistsConversationHistory(t *testing.T) {
	f := newHandlerFixture(t, &stubGateway{content: `{"message": "noted", "dealIds": []}`}, stubLimiter{})

	rec := postJSON(t, f.handler.Chat, `{"message": "remember this", "conversationId": "conv-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.mr.Get("conversation:conv-1")
	require.NoError(t, err)

	var turns []assistant.Turn
	require.NoError(t, json.Unmarshal([]byte(stored), &turns))
	require.Len(t, turns, 2)
	assert.Equal(t, llm.RoleUser, turns[0].Role)
	assert.Equal(t, "remember this", turns[0].Content)
	assert.Equal(t, llm.RoleAssistant, turns[1].Role)
	assert.Equal(t, "noted", turns[1].Content)
}

func TestChatStream_EmitsSSEFrames(t *testing.T) {
	f := newHandlerFixture(t, &stubGateway{content: "streamed answer"}, stubLimiter{})

	rec := postJSON(t, f.handler.ChatStream, `{"message": "talk to me"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	events := parseSSE(t, rec.Body)
	require.NotEmpty(t, events)
	assert.Equal(t, assistant.EventStart, events[0].Type)
	assert.Equal(t, assistant.EventDone, events[len(events)-1].Type)

	var text strings.Builder
	for _, ev := range events {
		if ev.Type == assistant.EventText {
			text.WriteString(ev.Content)
		}
	}
	assert.Equal(t, "streamed answer", text.String())
}

func TestChatStream_DisabledReturns501(t *testing.T) {
	f := newHandlerFixture(t, &stubGateway{content: "unused"}, stubLimiter{})
	f.handler.streaming = false

	rec := postJSON(t, f.handler.ChatStream, `{"message": "talk"}`)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestChatStream_RateLimitedEmitsErrorEventOnly(t *testing.T) {
	f := newHandlerFixture(t, &stubGateway{content: "unused"},
		stubLimiter{decision: cache.Decision{Limited: true, Message: "slow down"}})

	rec := postJSON(t, f.handler.ChatStream, `{"message": "deals"}`)
	events := parseSSE(t, rec.Body)
	require.Len(t, events, 1)
	assert.Equal(t, assistant.EventError, events[0].Type)
	assert.Equal(t, "slow down", events[0].Error)
}

func TestFeedback_AlwaysAccepted(t *testing.T) {
	f := newHandlerFixture(t, &stubGateway{content: "unused"}, stubLimiter{})

	rec := postJSON(t, f.handler.Feedback, `{"messageId": "m-1", "rating": "positive"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received": true}`, rec.Body.String())

	// The submission landed in the message index.
	ids, err := f.mr.List("feedback:msg:m-1")
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	// Garbage still gets a 200.
	rec = postJSON(t, f.handler.Feedback, `not json at all`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received": true}`, rec.Body.String())
}

func TestHealth_OK(t *testing.T) {
	f := newHandlerFixture(t, &stubGateway{content: "unused"}, stubLimiter{})

	req := httptest.NewRequest(http.MethodGet, "/api/chat/health", nil)
	rec := httptest.NewRecorder()
	f.handler.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
	llmState, ok := payload["llm"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, llmState["reachable"])
}

func TestHealth_DegradedWhenProviderUnreachable(t *testing.T) {
	f := newHandlerFixture(t, &stubGateway{content: "unused"}, stubLimiter{})
	f.handler.gateway = stubHealth{err: errors.New("connection refused")}

	req := httptest.NewRequest(http.MethodGet, "/api/chat/health", nil)
	rec := httptest.NewRecorder()
	f.handler.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "degraded", payload["status"])
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:43210"
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.Header.Set("X-Real-Ip", "203.0.113.1")
	assert.Equal(t, "203.0.113.1", clientIP(req))
}

// parseSSE decodes "data: {...}" frames into events.
func parseSSE(t *testing.T, body *bytes.Buffer) []assistant.Event {
	t.Helper()
	var events []assistant.Event
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev assistant.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}
