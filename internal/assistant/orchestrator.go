// Package assistant implements the chat pipeline: intent classification,
// model routing, tool execution, response assembly, and streaming.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dealhound/dealhound/internal/cache"
	"github.com/dealhound/dealhound/internal/llm"
	"github.com/dealhound/dealhound/internal/observability/metrics"
	"github.com/dealhound/dealhound/internal/tools"
	"github.com/dealhound/dealhound/pkg/logging"
)

// User-safe error strings. Raw provider text never reaches the caller.
const (
	msgEmptyInput   = "Please enter a message."
	msgInputTooLong = "That message is too long. Please keep it under %d characters."
	msgBusy         = "The assistant is very busy right now. Please try again in a moment."
	msgTimeout      = "That took too long to answer. Please try again."
	msgUnavailable  = "The assistant is temporarily unavailable. Please try again later."
	msgTrouble      = "I'm having trouble generating a full answer right now, but here are some deals that match your search:"
	msgDisabled     = "The assistant is currently disabled."
)

// modelGateway is the slice of the LLM gateway the orchestrator uses.
type modelGateway interface {
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
	Stream(ctx context.Context, req llm.Request, onToken func(string)) (llm.Completion, error)
}

// toolRunner is the slice of the tool registry the orchestrator uses.
type toolRunner interface {
	Definitions() []llm.ToolDef
	Execute(ctx context.Context, calls []llm.ToolCall) map[string]tools.Result
	FallbackSearch(ctx context.Context, query string) ([]tools.Deal, error)
}

// responseCache is the exact-match response cache surface.
type responseCache interface {
	GetResponse(ctx context.Context, query string) ([]byte, bool)
	SetResponse(ctx context.Context, query string, payload []byte)
}

// rateLimiter is the product quota check.
type rateLimiter interface {
	Check(ctx context.Context, key string, authenticated bool) cache.Decision
}

// classifier lets tests stub the classification tier.
type classifier interface {
	Classify(ctx context.Context, message string) Classification
}

// Options carries the orchestrator's tunables.
type Options struct {
	SimpleModel      string
	ComplexModel     string
	SimpleMaxTokens  int
	ComplexMaxTokens int
	MaxInputLength   int
	MaxHistoryTurns  int
	CachingEnabled   bool
	AIEnabled        bool
}

func (o *Options) applyDefaults() {
	if o.SimpleMaxTokens <= 0 {
		o.SimpleMaxTokens = 1024
	}
	if o.ComplexMaxTokens <= 0 {
		o.ComplexMaxTokens = 2048
	}
	if o.MaxInputLength <= 0 {
		o.MaxInputLength = 2000
	}
	if o.MaxHistoryTurns <= 0 {
		o.MaxHistoryTurns = 10
	}
}

// Orchestrator drives one chat turn end to end:
// validate, rate-limit, cache, classify, route, call tools, answer.
type Orchestrator struct {
	gateway    modelGateway
	classifier classifier
	registry   toolRunner
	cache      responseCache
	limiter    rateLimiter
	metrics    *metrics.ChatMetrics
	logger     *logging.Logger
	tracer     trace.Tracer
	opts       Options
	now        func() time.Time
	newID      func() string
}

func NewOrchestrator(
	gateway modelGateway,
	cls classifier,
	registry toolRunner,
	respCache responseCache,
	limiter rateLimiter,
	chatMetrics *metrics.ChatMetrics,
	opts Options,
	logger *logging.Logger,
) *Orchestrator {
	opts.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		gateway:    gateway,
		classifier: cls,
		registry:   registry,
		cache:      respCache,
		limiter:    limiter,
		metrics:    chatMetrics,
		logger:     logger,
		tracer:     otel.Tracer("dealhound.internal.assistant"),
		opts:       opts,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (o *Orchestrator) limiterKey(req Request) (string, bool) {
	if req.authenticated() {
		return cache.UserKey(req.UserID), true
	}
	return cache.GuestKey(req.IP), false
}

// validate rejects empty or overlong input before any side effects.
func (o *Orchestrator) validate(req Request) (string, bool) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return msgEmptyInput, false
	}
	if len(msg) > o.opts.MaxInputLength {
		return fmt.Sprintf(msgInputTooLong, o.opts.MaxInputLength), false
	}
	return "", true
}

// Chat runs the buffered (non-streaming) pipeline.
func (o *Orchestrator) Chat(ctx context.Context, req Request) Response {
	start := o.now()
	requestID := o.newID()

	ctx, span := o.tracer.Start(ctx, "assistant.chat",
		trace.WithAttributes(attribute.String("request.id", requestID)))
	defer span.End()

	if !o.opts.AIEnabled {
		return Response{Success: false, Error: msgDisabled, StatusCode: 503, RequestID: requestID}
	}
	if errMsg, ok := o.validate(req); !ok {
		return Response{Success: false, Error: errMsg, StatusCode: 400, RequestID: requestID}
	}
	message := strings.TrimSpace(req.Message)

	key, authenticated := o.limiterKey(req)
	if decision := o.limiter.Check(ctx, key, authenticated); decision.Limited {
		o.metrics.ObserveRateLimited()
		return Response{
			Success:    false,
			Error:      decision.Message,
			StatusCode: 429,
			Retryable:  true,
			RequestID:  requestID,
			LatencyMs:  time.Since(start).Milliseconds(),
		}
	}

	if o.opts.CachingEnabled {
		if payload, ok := o.cache.GetResponse(ctx, message); ok {
			var cached Response
			if err := json.Unmarshal(payload, &cached); err != nil {
				o.logger.Warn("cached response unreadable, treating as miss", "error", err)
			} else {
				o.metrics.ObserveCacheHit("exact")
				o.metrics.ObserveTurn(cached.Intent, "cache_hit")
				cached.Cached = true
				cached.RequestID = requestID
				cached.LatencyMs = time.Since(start).Milliseconds()
				return cached
			}
		}
	}

	classification := o.classifier.Classify(ctx, message)
	span.SetAttributes(attribute.String("chat.intent", string(classification.Intent)))

	if classification.FAQResponse != "" {
		resp := Response{
			Success:   true,
			Content:   classification.FAQResponse,
			Intent:    string(classification.Intent),
			RequestID: requestID,
			Usage:     &Usage{},
			LatencyMs: time.Since(start).Milliseconds(),
		}
		o.cacheResponse(ctx, message, resp)
		o.metrics.ObserveTurn(resp.Intent, "faq")
		return resp
	}

	resp, err := o.answer(ctx, req, message, classification)
	if err != nil {
		o.logger.Error("chat turn failed, attempting fallback",
			"request_id", requestID, "intent", string(classification.Intent), "error", err)
		resp = o.fallback(ctx, classification, message, err)
		resp.RequestID = requestID
		resp.LatencyMs = time.Since(start).Milliseconds()
		o.metrics.ObserveTurn(string(classification.Intent), "fallback")
		return resp
	}

	resp.RequestID = requestID
	resp.LatencyMs = time.Since(start).Milliseconds()
	o.cacheResponse(ctx, message, resp)
	o.metrics.ObserveTurn(resp.Intent, "ok")
	return resp
}

// answer runs the model-routing portion of a turn: first call with tools,
// optional tool execution and follow-up call, then response assembly.
func (o *Orchestrator) answer(ctx context.Context, req Request, message string, classification Classification) (Response, error) {
	model, maxTokens := o.selectModel(classification)
	messages := o.buildMessages(req, message, classification)

	first, err := o.gateway.Complete(ctx, llm.Request{
		Model:       model,
		Messages:    messages,
		Tools:       o.registry.Definitions(),
		MaxTokens:   maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return Response{}, err
	}
	o.metrics.ObserveLLMLatency(model, float64(first.LatencyMs)/1000)

	usage := llm.Usage{
		PromptTokens:     first.Usage.PromptTokens,
		CompletionTokens: first.Usage.CompletionTokens,
		TotalTokens:      first.Usage.TotalTokens,
	}

	content := first.Content
	var results map[string]tools.Result
	if len(first.ToolCalls) > 0 {
		results = o.registry.Execute(ctx, first.ToolCalls)
		o.observeTools(results)

		followup := append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   first.Content,
			ToolCalls: first.ToolCalls,
		})
		for _, call := range first.ToolCalls {
			res := results[call.ID]
			followup = append(followup, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: call.ID,
				Content:    tools.FormatForModel(res),
			})
		}

		second, err := o.gateway.Complete(ctx, llm.Request{
			Model:       model,
			Messages:    followup,
			MaxTokens:   o.opts.ComplexMaxTokens,
			Temperature: 0.7,
		})
		if err != nil {
			return Response{}, err
		}
		o.metrics.ObserveLLMLatency(model, float64(second.LatencyMs)/1000)
		content = second.Content
		usage.PromptTokens += second.Usage.PromptTokens
		usage.CompletionTokens += second.Usage.CompletionTokens
		usage.TotalTokens += second.Usage.TotalTokens
	}

	finalText, claimedIDs := parseFinalAnswer(content)
	foundDeals, coupons, store := collectResults(results)
	deals := reconcileDeals(claimedIDs, foundDeals)

	o.metrics.AddTokens(usage.TotalTokens)
	return Response{
		Success: true,
		Content: finalText,
		Intent:  string(classification.Intent),
		Usage: &Usage{
			TokensUsed:    usage.TotalTokens,
			EstimatedCost: llm.EstimateCost(model, usage),
		},
		Deals:   deals,
		Coupons: coupons,
		Store:   store,
		Model:   model,
	}, nil
}

// selectModel applies the fixed routing rule: compare and advice always get
// the capable model, as does anything the classifier marked complex.
func (o *Orchestrator) selectModel(c Classification) (string, int) {
	if c.Intent == IntentCompare || c.Intent == IntentAdvice || c.Complexity == ComplexityComplex {
		return o.opts.ComplexModel, o.opts.ComplexMaxTokens
	}
	return o.opts.SimpleModel, o.opts.SimpleMaxTokens
}

// buildMessages assembles the model input: system prompt with intent
// addendum and the structured-answer instruction, truncated history, then
// the current message. Assistant turns that carried deals get an inline
// note so the model can refer back to them.
func (o *Orchestrator) buildMessages(req Request, message string, classification Classification) []llm.Message {
	var sys strings.Builder
	sys.WriteString(systemPrompt)
	if addendum, ok := intentAddenda[classification.Intent]; ok {
		sys.WriteString("\n\n")
		sys.WriteString(addendum)
	}
	sys.WriteString("\n\n")
	sys.WriteString(jsonOnlyInstruction)

	messages := []llm.Message{{Role: llm.RoleSystem, Content: sys.String()}}

	history := req.History
	if len(history) > o.opts.MaxHistoryTurns {
		history = history[len(history)-o.opts.MaxHistoryTurns:]
	}
	for _, turn := range history {
		content := turn.Content
		if turn.Role == llm.RoleAssistant && len(turn.Deals) > 0 {
			var names []string
			for _, d := range turn.Deals {
				names = append(names, fmt.Sprintf("%s (id %d, $%.2f)", d.Title, d.ID, d.Price))
			}
			content += "\n[Previously suggested deals: " + strings.Join(names, "; ") + "]"
		}
		messages = append(messages, llm.Message{Role: turn.Role, Content: content})
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: message})
}

// finalAnswer is the structured shape the model is instructed to return.
type finalAnswer struct {
	Message string  `json:"message"`
	DealIDs []int64 `json:"dealIds"`
}

// parseFinalAnswer extracts the answer text and claimed deal IDs from the
// model's output. Unparseable output falls back to the raw text so a
// malformed envelope never loses the answer.
func parseFinalAnswer(raw string) (string, []int64) {
	candidate := sanitizeModelJSON(raw)
	var parsed finalAnswer
	if err := json.Unmarshal([]byte(candidate), &parsed); err == nil && parsed.Message != "" {
		return parsed.Message, parsed.DealIDs
	}
	return strings.TrimSpace(thinkBlockPattern.ReplaceAllString(raw, "")), nil
}

// reconcileDeals maps the model's claimed deal IDs onto the tool-found set.
// Models omit and hallucinate IDs often enough that an unmatched claim shows
// every found deal rather than none.
func reconcileDeals(claimed []int64, found []tools.Deal) []tools.Deal {
	if len(found) == 0 {
		return nil
	}
	if len(claimed) == 0 {
		return found
	}
	byID := make(map[int64]tools.Deal, len(found))
	for _, d := range found {
		byID[d.ID] = d
	}
	var matched []tools.Deal
	for _, id := range claimed {
		if d, ok := byID[id]; ok {
			matched = append(matched, d)
		}
	}
	if len(matched) == 0 {
		return found
	}
	return matched
}

// collectResults gathers structured payloads from tool results in a stable
// order, de-duplicating deals by ID.
func collectResults(results map[string]tools.Result) ([]tools.Deal, []tools.Coupon, *tools.StoreInfo) {
	if len(results) == 0 {
		return nil, nil, nil
	}
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		deals   []tools.Deal
		coupons []tools.Coupon
		store   *tools.StoreInfo
		seen    = map[int64]bool{}
	)
	for _, id := range ids {
		res := results[id]
		if !res.Success {
			continue
		}
		for _, d := range res.Deals() {
			if !seen[d.ID] {
				seen[d.ID] = true
				deals = append(deals, d)
			}
		}
		coupons = append(coupons, res.Coupons()...)
		if s := res.Store(); s != nil {
			store = s
		}
	}
	return deals, coupons, store
}

func (o *Orchestrator) observeTools(results map[string]tools.Result) {
	for _, res := range results {
		o.metrics.ObserveToolLatency(res.Tool, res.ExecutionTime.Seconds())
		if res.Cached {
			o.metrics.ObserveCacheHit("tool")
		}
	}
}

func (o *Orchestrator) cacheResponse(ctx context.Context, message string, resp Response) {
	if !o.opts.CachingEnabled || !resp.Success {
		return
	}
	// Request-scoped fields are stripped so a cache hit gets fresh ones.
	resp.RequestID = ""
	resp.LatencyMs = 0
	resp.Cached = false
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	o.cache.SetResponse(ctx, message, payload)
}

// fallback is the last-resort recovery: a direct popularity-sorted deal
// search with a canned message, or a user-safe error when even that fails.
func (o *Orchestrator) fallback(ctx context.Context, classification Classification, message string, cause error) Response {
	query := classification.Entities.Query
	if query == "" {
		query = message
	}
	deals, err := o.registry.FallbackSearch(ctx, query)
	if err == nil && len(deals) > 0 {
		return Response{
			Success:  true,
			Content:  msgTrouble,
			Intent:   string(classification.Intent),
			Fallback: true,
			Deals:    deals,
			Usage:    &Usage{},
		}
	}
	errMsg, status, retryable := userSafeError(cause)
	return Response{
		Success:    false,
		Error:      errMsg,
		StatusCode: status,
		Retryable:  retryable,
		Intent:     string(classification.Intent),
	}
}

// userSafeError maps a gateway failure to a caller-facing message and
// status-equivalent code.
func userSafeError(err error) (string, int, bool) {
	var gwErr *llm.Error
	if !errors.As(err, &gwErr) {
		return msgUnavailable, 500, true
	}
	switch gwErr.Kind {
	case llm.KindRateLimit:
		return msgBusy, 429, true
	case llm.KindTimeout:
		return msgTimeout, 504, true
	case llm.KindAuth, llm.KindConfig:
		return msgUnavailable, 503, false
	case llm.KindInvalidRequest:
		return msgUnavailable, 502, false
	default:
		return msgUnavailable, 502, true
	}
}
