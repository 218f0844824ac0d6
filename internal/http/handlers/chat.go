// Package handlers adapts the assistant pipeline to HTTP and SSE.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dealhound/dealhound/internal/assistant"
	"github.com/dealhound/dealhound/internal/cache"
	"github.com/dealhound/dealhound/internal/llm"
	"github.com/dealhound/dealhound/pkg/logging"
)

// chatRequest is the JSON body accepted by both chat endpoints.
type chatRequest struct {
	Message        string                   `json:"message"`
	ConversationID string                   `json:"conversationId,omitempty"`
	History        []assistant.Turn         `json:"history,omitempty"`
	Context        assistant.RequestContext `json:"context,omitempty"`
}

type feedbackRequest struct {
	MessageID string `json:"messageId"`
	Rating    string `json:"rating"`
	Comment   string `json:"comment,omitempty"`
}

// healthChecker is the gateway's reachability probe.
type healthChecker interface {
	Healthy(ctx context.Context, model string) (int64, error)
}

// statsProvider reports cache state for the health payload.
type statsProvider interface {
	SnapshotStats(ctx context.Context) cache.Stats
}

// ChatHandler serves the chat API: buffered turns, SSE streaming turns,
// feedback, and health.
type ChatHandler struct {
	orchestrator *assistant.Orchestrator
	history      *assistant.HistoryStore
	feedback     *assistant.FeedbackStore
	gateway      healthChecker
	cacheStats   statsProvider
	chatLog      *logging.ChatLogger
	logger       *logging.Logger
	healthModel  string
	streaming    bool
}

func NewChatHandler(
	orchestrator *assistant.Orchestrator,
	history *assistant.HistoryStore,
	feedback *assistant.FeedbackStore,
	gateway healthChecker,
	cacheStats statsProvider,
	chatLog *logging.ChatLogger,
	healthModel string,
	streamingEnabled bool,
	logger *logging.Logger,
) *ChatHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{
		orchestrator: orchestrator,
		history:      history,
		feedback:     feedback,
		gateway:      gateway,
		cacheStats:   cacheStats,
		chatLog:      chatLog,
		logger:       logger,
		healthModel:  healthModel,
		streaming:    streamingEnabled,
	}
}

// userID pulls the authenticated user identity from the request. The site
// gateway terminates auth and forwards the identity in a header.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-Id"))
}

func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// buildRequest decodes the body and loads stored history when the client
// sent a conversation ID but no inline history.
func (h *ChatHandler) buildRequest(r *http.Request) (assistant.Request, error) {
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return assistant.Request{}, fmt.Errorf("invalid request body: %w", err)
	}
	req := assistant.Request{
		Message:        body.Message,
		UserID:         userID(r),
		IP:             clientIP(r),
		ConversationID: body.ConversationID,
		History:        body.History,
		Context:        body.Context,
	}
	if len(req.History) == 0 && req.ConversationID != "" && h.history != nil {
		stored, err := h.history.Load(r.Context(), req.ConversationID)
		if err != nil {
			h.logger.Warn("history load failed", "conversation_id", req.ConversationID, "error", err)
		} else {
			req.History = stored
		}
	}
	return req, nil
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	req, err := h.buildRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, assistant.Response{
			Success: false, Error: "Invalid request body.", StatusCode: http.StatusBadRequest,
		})
		return
	}

	resp := h.orchestrator.Chat(r.Context(), req)

	h.chatLog.Append(logging.ChatEntry{
		Type:      logging.ChatLogRequest,
		RequestID: resp.RequestID,
		UserID:    req.UserID,
		Input:     req.Message,
		Output:    resp.Content,
		Metadata: map[string]any{
			"intent":  resp.Intent,
			"cached":  resp.Cached,
			"success": resp.Success,
		},
	})

	if resp.Success && req.ConversationID != "" && h.history != nil {
		updated := append(req.History,
			assistant.Turn{Role: llm.RoleUser, Content: strings.TrimSpace(req.Message)},
			assistant.Turn{Role: llm.RoleAssistant, Content: resp.Content, Deals: resp.Deals},
		)
		if err := h.history.Save(r.Context(), req.ConversationID, updated); err != nil {
			h.logger.Warn("history save failed", "conversation_id", req.ConversationID, "error", err)
		}
	}

	status := http.StatusOK
	if !resp.Success {
		status = resp.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, resp)
}

// ChatStream handles POST /api/chat/stream as Server-Sent Events. Each
// pipeline event becomes one SSE data frame, flushed immediately.
func (h *ChatHandler) ChatStream(w http.ResponseWriter, r *http.Request) {
	if !h.streaming {
		writeJSON(w, http.StatusNotImplemented, assistant.Response{
			Success: false, Error: "Streaming is disabled.", StatusCode: http.StatusNotImplemented,
		})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, assistant.Response{
			Success: false, Error: "Streaming unsupported by this connection.", StatusCode: http.StatusInternalServerError,
		})
		return
	}

	req, err := h.buildRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, assistant.Response{
			Success: false, Error: "Invalid request body.", StatusCode: http.StatusBadRequest,
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var requestID string
	h.chatLog.Append(logging.ChatEntry{
		Type:   logging.ChatLogStreamStart,
		UserID: req.UserID,
		Input:  req.Message,
	})

	emit := func(ev assistant.Event) {
		if ev.Type == assistant.EventStart {
			requestID = ev.RequestID
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	outcome, streamErr := h.orchestrator.ChatStream(r.Context(), req, emit)

	h.chatLog.Append(logging.ChatEntry{
		Type:      logging.ChatLogStreamEnd,
		RequestID: requestID,
		UserID:    req.UserID,
		Output:    outcome.Content,
		Metadata: map[string]any{
			"intent":  outcome.Intent,
			"success": streamErr == nil,
		},
	})

	if streamErr == nil && req.ConversationID != "" && h.history != nil {
		updated := append(req.History,
			assistant.Turn{Role: llm.RoleUser, Content: strings.TrimSpace(req.Message)},
			assistant.Turn{Role: llm.RoleAssistant, Content: outcome.Content, Deals: outcome.Deals},
		)
		if err := h.history.Save(r.Context(), req.ConversationID, updated); err != nil {
			h.logger.Warn("history save failed", "conversation_id", req.ConversationID, "error", err)
		}
	}
}

// Feedback handles POST /api/chat/feedback. Fire-and-forget: the caller
// always gets 200 with {received:true}.
func (h *ChatHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var body feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.MessageID != "" {
		h.feedback.Record(r.Context(), assistant.Feedback{
			MessageID: body.MessageID,
			UserID:    userID(r),
			Rating:    body.Rating,
			Comment:   body.Comment,
		})
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// Health handles GET /api/chat/health: provider reachability plus cache
// state. Degraded dependencies report but do not fail the endpoint.
func (h *ChatHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	payload := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if h.gateway != nil {
		latency, err := h.gateway.Healthy(ctx, h.healthModel)
		llmState := map[string]any{"latencyMs": latency}
		if err != nil {
			llmState["reachable"] = false
			payload["status"] = "degraded"
		} else {
			llmState["reachable"] = true
		}
		payload["llm"] = llmState
	}
	if h.cacheStats != nil {
		payload["cache"] = h.cacheStats.SnapshotStats(ctx)
	}
	writeJSON(w, http.StatusOK, payload)
}
