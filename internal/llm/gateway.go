package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dealhound/dealhound/pkg/logging"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a provider-agnostic chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDef declares a callable tool to the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Request is one completion call.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolDef
	MaxTokens   int
	Temperature float32
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the assembled result of a completion call, streamed or not.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
	Model     string
	LatencyMs int64
}

// completionStream abstracts the provider's streaming reader so tests can
// inject scripted streams.
type completionStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// chatClient is the slice of the provider client the gateway uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (completionStream, error)
}

// Config controls gateway behavior.
type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// Gateway wraps the model provider with request shaping, a typed error
// taxonomy, retry with backoff, and streaming assembly.
type Gateway struct {
	client      chatClient
	logger      *logging.Logger
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
	rand        func() time.Duration
}

// NewGateway builds a gateway against an OpenAI-compatible endpoint.
func NewGateway(cfg Config, logger *logging.Logger) (*Gateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &Error{Kind: KindConfig, Message: "api key is required"}
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return newGateway(&openAIClient{c: openai.NewClientWithConfig(clientCfg)}, cfg.MaxAttempts, logger), nil
}

func newGateway(client chatClient, maxAttempts int, logger *logging.Logger) *Gateway {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gateway{
		client:      client,
		logger:      logger,
		maxAttempts: maxAttempts,
		sleep:       sleepCtx,
		rand: func() time.Duration {
			return time.Duration(rand.Int63n(int64(500 * time.Millisecond)))
		},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// reasoningPrefixes are model families that reject a custom temperature and
// take their output budget through max_completion_tokens instead of
// max_tokens.
var reasoningPrefixes = []string{"o1", "o3", "o4", "gpt-5", "deepseek-r1"}

func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	for _, p := range reasoningPrefixes {
		if strings.HasPrefix(m, p) {
			return true
		}
	}
	return false
}

func (g *Gateway) shapeRequest(req Request, stream bool) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:  req.Model,
		Stream: stream,
	}
	if isReasoningModel(req.Model) {
		// Provider default temperature only; different token-limit knob.
		out.MaxCompletionTokens = req.MaxTokens
	} else {
		out.Temperature = req.Temperature
		out.MaxTokens = req.MaxTokens
	}
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out.Messages = append(out.Messages, msg)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  json.RawMessage(t.Parameters),
			},
		})
	}
	return out
}

// Complete runs one buffered completion with the retry policy applied.
func (g *Gateway) Complete(ctx context.Context, req Request) (Completion, error) {
	var result Completion
	err := g.withRetry(ctx, req.Model, func() error {
		start := time.Now()
		resp, err := g.client.CreateChatCompletion(ctx, g.shapeRequest(req, false))
		if err != nil {
			return classifyError(err)
		}
		if len(resp.Choices) == 0 {
			return newError(KindModelError, "provider returned no choices", nil)
		}
		choice := resp.Choices[0]
		result = Completion{
			Content: choice.Message.Content,
			Usage: Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
			Model:     resp.Model,
			LatencyMs: time.Since(start).Milliseconds(),
		}
		for _, tc := range choice.Message.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		return nil
	})
	return result, err
}

// Stream runs one streaming completion, invoking onToken for every content
// delta as it arrives. Tool-call fragments are reassembled by index; the
// returned Completion carries the full content, assembled tool calls, and
// usage when the provider reports it. Only stream establishment is retried:
// forwarded deltas cannot be unsent, so re-running the call after a
// mid-stream failure would replay the answer's prefix to the user. Those
// failures surface to the caller instead.
func (g *Gateway) Stream(ctx context.Context, req Request, onToken func(string)) (Completion, error) {
	start := time.Now()
	var stream completionStream
	err := g.withRetry(ctx, req.Model, func() error {
		s, err := g.client.CreateChatCompletionStream(ctx, g.shapeRequest(req, true))
		if err != nil {
			return classifyError(err)
		}
		stream = s
		return nil
	})
	if err != nil {
		return Completion{}, err
	}
	defer func() { _ = stream.Close() }()

	var content strings.Builder
	fragments := map[int]*ToolCall{}
	var usage Usage
	model := req.Model
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Completion{}, classifyError(err)
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage = Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if onToken != nil {
				onToken(delta.Content)
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			frag, ok := fragments[idx]
			if !ok {
				frag = &ToolCall{}
				fragments[idx] = frag
			}
			if tc.ID != "" {
				frag.ID = tc.ID
			}
			frag.Name += tc.Function.Name
			frag.Arguments += tc.Function.Arguments
		}
	}

	result := Completion{
		Content:   content.String(),
		Usage:     usage,
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	indexes := make([]int, 0, len(fragments))
	for idx := range fragments {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		result.ToolCalls = append(result.ToolCalls, *fragments[idx])
	}
	return result, nil
}

// Healthy issues a minimal completion to verify provider reachability.
func (g *Gateway) Healthy(ctx context.Context, model string) (int64, error) {
	start := time.Now()
	_, err := g.Complete(ctx, Request{
		Model:     model,
		Messages:  []Message{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 8,
	})
	return time.Since(start).Milliseconds(), err
}

const (
	baseBackoff     = 1000 * time.Millisecond
	maxBackoff      = 10 * time.Second
	maxRetryAfter   = 30 * time.Second
	modelErrBackoff = 5 * time.Second
)

func (g *Gateway) withRetry(ctx context.Context, model string, op func() error) error {
	var lastErr *Error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		var gwErr *Error
		if !errors.As(err, &gwErr) {
			gwErr = newError(KindUnknown, err.Error(), err)
		}
		if !gwErr.Retryable() || attempt == g.maxAttempts-1 {
			return gwErr
		}
		lastErr = gwErr
		delay := g.backoffFor(gwErr, attempt)
		g.logger.Warn("llm retry",
			"model", model,
			"attempt", attempt+1,
			"kind", string(gwErr.Kind),
			"delay_ms", delay.Milliseconds(),
		)
		if sleepErr := g.sleep(ctx, delay); sleepErr != nil {
			return newError(KindTimeout, "canceled during backoff", sleepErr)
		}
	}
	return lastErr
}

func (g *Gateway) backoffFor(err *Error, attempt int) time.Duration {
	if err.Kind == KindRateLimit && err.RetryAfter > 0 {
		if err.RetryAfter > maxRetryAfter {
			return maxRetryAfter
		}
		return err.RetryAfter
	}
	if err.Kind == KindModelError {
		return modelErrBackoff
	}
	delay := baseBackoff*time.Duration(1<<attempt) + g.rand()
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// retryAfterPattern matches provider hints like "try again in 7.66s".
var retryAfterPattern = regexp.MustCompile(`try again in (\d+(?:\.\d+)?)s`)

func classifyError(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return &Error{Kind: KindAuth, Message: "provider rejected credentials", StatusCode: apiErr.HTTPStatusCode, Err: err}
		case apiErr.HTTPStatusCode == 429:
			e := &Error{Kind: KindRateLimit, Message: apiErr.Message, StatusCode: 429, Err: err}
			if m := retryAfterPattern.FindStringSubmatch(apiErr.Message); m != nil {
				if secs, parseErr := strconv.ParseFloat(m[1], 64); parseErr == nil {
					e.RetryAfter = time.Duration(secs * float64(time.Second))
				}
			}
			return e
		case apiErr.HTTPStatusCode >= 500:
			return &Error{Kind: KindModelError, Message: apiErr.Message, StatusCode: apiErr.HTTPStatusCode, Err: err}
		case apiErr.HTTPStatusCode >= 400:
			return &Error{Kind: KindInvalidRequest, Message: apiErr.Message, StatusCode: apiErr.HTTPStatusCode, Err: err}
		}
		return &Error{Kind: KindUnknown, Message: apiErr.Message, StatusCode: apiErr.HTTPStatusCode, Err: err}
	}

	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, "provider call timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return newError(KindTimeout, "provider call timed out", err)
		}
		return newError(KindNetwork, "network error reaching provider", err)
	}
	return newError(KindUnknown, err.Error(), err)
}
