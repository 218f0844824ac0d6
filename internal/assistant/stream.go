package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dealhound/dealhound/internal/llm"
	"github.com/dealhound/dealhound/internal/tools"
)

// needsTools maps intents to whether the turn should offer tool schemas.
// Tool-needing intents answer from data; the rest stream straight prose.
func needsTools(intent Intent) bool {
	switch intent {
	case IntentSearch, IntentCoupon, IntentTrending:
		return true
	}
	return false
}

// ChatStream runs the streaming pipeline, delivering events through emit in
// order. A turn that fails validation or rate limiting emits a single error
// event and no start event. Every successful branch terminates with done.
// The returned outcome carries what was actually shown so the transport
// adapter can persist the assistant turn.
func (o *Orchestrator) ChatStream(ctx context.Context, req Request, emit EmitFunc) (StreamOutcome, error) {
	requestID := o.newID()

	ctx, span := o.tracer.Start(ctx, "assistant.chat_stream",
		trace.WithAttributes(attribute.String("request.id", requestID)))
	defer span.End()

	if !o.opts.AIEnabled {
		emit(Event{Type: EventError, Error: msgDisabled})
		return StreamOutcome{}, errors.New("assistant disabled")
	}
	if errMsg, ok := o.validate(req); !ok {
		emit(Event{Type: EventError, Error: errMsg})
		return StreamOutcome{}, errors.New("invalid input")
	}
	message := strings.TrimSpace(req.Message)

	key, authenticated := o.limiterKey(req)
	if decision := o.limiter.Check(ctx, key, authenticated); decision.Limited {
		o.metrics.ObserveRateLimited()
		emit(Event{Type: EventError, Error: decision.Message})
		return StreamOutcome{}, errors.New("rate limited")
	}

	// Sent before any slow work so long-lived connections see life early.
	emit(Event{Type: EventStart, RequestID: requestID})

	if o.opts.CachingEnabled {
		if payload, ok := o.cache.GetResponse(ctx, message); ok {
			var cached Response
			if err := json.Unmarshal(payload, &cached); err == nil {
				o.metrics.ObserveCacheHit("exact")
				o.metrics.ObserveTurn(cached.Intent, "cache_hit")
				emit(Event{Type: EventText, Content: cached.Content})
				if len(cached.Deals) > 0 {
					emit(Event{Type: EventDeals, Deals: cached.Deals})
				}
				if len(cached.Coupons) > 0 {
					emit(Event{Type: EventCoupons, Coupons: cached.Coupons})
				}
				emit(Event{Type: EventDone, Cached: true})
				return StreamOutcome{
					Content: cached.Content,
					Intent:  cached.Intent,
					Deals:   cached.Deals,
					Coupons: cached.Coupons,
				}, nil
			}
		}
	}

	classification := o.classifier.Classify(ctx, message)
	span.SetAttributes(attribute.String("chat.intent", string(classification.Intent)))

	if classification.FAQResponse != "" {
		emit(Event{Type: EventText, Content: classification.FAQResponse})
		emit(Event{Type: EventDone})
		o.metrics.ObserveTurn(string(classification.Intent), "faq")
		o.cacheResponse(ctx, message, Response{
			Success: true,
			Content: classification.FAQResponse,
			Intent:  string(classification.Intent),
			Usage:   &Usage{},
		})
		return StreamOutcome{
			Content: classification.FAQResponse,
			Intent:  string(classification.Intent),
		}, nil
	}

	var (
		outcome StreamOutcome
		err     error
	)
	if needsTools(classification.Intent) {
		outcome, err = o.streamWithTools(ctx, req, message, classification, emit)
	} else {
		outcome, err = o.streamDirect(ctx, req, message, classification, emit)
	}
	if err != nil {
		o.logger.Error("streaming turn failed",
			"request_id", requestID, "intent", string(classification.Intent), "error", err)
		errMsg, _, _ := userSafeError(err)
		emit(Event{Type: EventError, Error: errMsg})
		o.metrics.ObserveTurn(string(classification.Intent), "error")
		return StreamOutcome{}, err
	}

	outcome.Intent = string(classification.Intent)
	o.metrics.ObserveTurn(outcome.Intent, "ok")
	o.cacheResponse(ctx, message, Response{
		Success: true,
		Content: outcome.Content,
		Intent:  outcome.Intent,
		Deals:   outcome.Deals,
		Coupons: outcome.Coupons,
		Usage:   &Usage{TokensUsed: outcome.Usage.TokensUsed, EstimatedCost: outcome.Usage.EstimatedCost},
	})
	return outcome, nil
}

// streamDirect answers intents that need no data: one tool-less streaming
// call, text chunks forwarded as they arrive. The accumulated text is only
// parsed for embedded deal IDs after the stream closes.
func (o *Orchestrator) streamDirect(ctx context.Context, req Request, message string, classification Classification, emit EmitFunc) (StreamOutcome, error) {
	model, maxTokens := o.selectModel(classification)
	messages := o.buildStreamMessages(req, message, classification)

	completion, err := o.gateway.Stream(ctx, llm.Request{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: 0.7,
	}, func(token string) {
		emit(Event{Type: EventText, Content: token})
	})
	if err != nil {
		return StreamOutcome{}, err
	}
	o.metrics.ObserveLLMLatency(model, float64(completion.LatencyMs)/1000)
	o.metrics.AddTokens(completion.Usage.TotalTokens)

	if ids := embeddedDealIDs(completion.Content); len(ids) > 0 {
		emit(Event{Type: EventDealIDs, DealIDs: ids})
	}
	emit(Event{Type: EventDone, TokensUsed: completion.Usage.TotalTokens})

	return StreamOutcome{
		Content: completion.Content,
		Usage: Usage{
			TokensUsed:    completion.Usage.TotalTokens,
			EstimatedCost: llm.EstimateCost(model, completion.Usage),
		},
		Model: model,
	}, nil
}

// streamWithTools answers data-backed intents: a buffered first call with
// tool schemas, concurrent tool execution, then a streaming follow-up.
// Coupons are emitted as soon as tools return them; deals are held back and
// reconciled against the model's claimed IDs after the stream completes.
func (o *Orchestrator) streamWithTools(ctx context.Context, req Request, message string, classification Classification, emit EmitFunc) (StreamOutcome, error) {
	model, maxTokens := o.selectModel(classification)
	messages := o.buildStreamMessages(req, message, classification)

	first, err := o.gateway.Complete(ctx, llm.Request{
		Model:       model,
		Messages:    messages,
		Tools:       o.registry.Definitions(),
		MaxTokens:   maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return StreamOutcome{}, err
	}
	o.metrics.ObserveLLMLatency(model, float64(first.LatencyMs)/1000)

	usage := first.Usage

	if len(first.ToolCalls) == 0 {
		// The model answered without data. Forward the buffered text whole.
		text, _ := parseFinalAnswer(first.Content)
		emit(Event{Type: EventText, Content: text})
		emit(Event{Type: EventDone, TokensUsed: usage.TotalTokens})
		o.metrics.AddTokens(usage.TotalTokens)
		return StreamOutcome{
			Content: text,
			Usage:   Usage{TokensUsed: usage.TotalTokens, EstimatedCost: llm.EstimateCost(model, usage)},
			Model:   model,
		}, nil
	}

	for _, call := range first.ToolCalls {
		emit(Event{Type: EventToolCall, Tool: call.Name})
	}
	results := o.registry.Execute(ctx, first.ToolCalls)
	o.observeTools(results)

	foundDeals, coupons, _ := collectResults(results)
	if len(coupons) > 0 {
		emit(Event{Type: EventCoupons, Coupons: coupons})
	}

	followup := append(messages, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   first.Content,
		ToolCalls: first.ToolCalls,
	})
	for _, call := range first.ToolCalls {
		followup = append(followup, llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: call.ID,
			Content:    tools.FormatForModel(results[call.ID]),
		})
	}

	second, err := o.gateway.Stream(ctx, llm.Request{
		Model:       model,
		Messages:    followup,
		MaxTokens:   o.opts.ComplexMaxTokens,
		Temperature: 0.7,
	}, func(token string) {
		emit(Event{Type: EventText, Content: token})
	})
	if err != nil {
		return StreamOutcome{}, err
	}
	o.metrics.ObserveLLMLatency(model, float64(second.LatencyMs)/1000)

	usage.PromptTokens += second.Usage.PromptTokens
	usage.CompletionTokens += second.Usage.CompletionTokens
	usage.TotalTokens += second.Usage.TotalTokens
	o.metrics.AddTokens(usage.TotalTokens)

	deals := reconcileDeals(embeddedDealIDs(second.Content), foundDeals)
	if len(deals) > 0 {
		emit(Event{Type: EventDeals, Deals: deals})
	}
	emit(Event{Type: EventDone, TokensUsed: usage.TotalTokens})

	return StreamOutcome{
		Content: second.Content,
		Deals:   deals,
		Coupons: coupons,
		Usage:   Usage{TokensUsed: usage.TotalTokens, EstimatedCost: llm.EstimateCost(model, usage)},
		Model:   model,
	}, nil
}

// buildStreamMessages is buildMessages without the JSON-envelope
// instruction; streamed text goes to the user verbatim, so the model must
// answer in prose.
func (o *Orchestrator) buildStreamMessages(req Request, message string, classification Classification) []llm.Message {
	var sys strings.Builder
	sys.WriteString(systemPrompt)
	if addendum, ok := intentAddenda[classification.Intent]; ok {
		sys.WriteString("\n\n")
		sys.WriteString(addendum)
	}
	sys.WriteString("\n\nIf you recommend specific deals from tool results, finish your answer with a line containing only: " +
		`{"dealIds": [<their numeric ids>]}`)

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
				names = append(names, fmt.Sprintf("%s (id %d)", d.Title, d.ID))
			}
			content += "\n[Previously suggested deals: " + strings.Join(names, "; ") + "]"
		}
		messages = append(messages, llm.Message{Role: turn.Role, Content: content})
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: message})
}

// embeddedDealIDs pulls a dealIds array out of accumulated stream text,
// tolerating the same decoration the classifier tolerates.
func embeddedDealIDs(raw string) []int64 {
	candidate := sanitizeModelJSON(raw)
	var parsed struct {
		DealIDs []int64 `json:"dealIds"`
	}
	if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
		return parsed.DealIDs
	}
	return nil
}
