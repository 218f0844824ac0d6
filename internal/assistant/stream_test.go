package assistant

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealhound/dealhound/internal/cache"
	"github.com/dealhound/dealhound/internal/llm"
	"github.com/dealhound/dealhound/internal/tools"
)

// eventRecorder captures the emitted event sequence.
type eventRecorder struct {
	events []Event
}

func (r *eventRecorder) emit(e Event) { r.events = append(r.events, e) }

func (r *eventRecorder) types() []string {
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func streamTokens(content string, tokens ...string) func(llm.Request, func(string)) (llm.Completion, error) {
	return func(_ llm.Request, onToken func(string)) (llm.Completion, error) {
		for _, tok := range tokens {
			onToken(tok)
		}
		return llm.Completion{Content: content, Usage: llm.Usage{TotalTokens: 25}}, nil
	}
}

func TestChatStream_ValidationErrorEmitsNoStart(t *testing.T) {
	f := newFixture(searchClassification())
	rec := &eventRecorder{}

	_, err := f.orch.ChatStream(context.Background(), Request{Message: ""}, rec.emit)
	require.Error(t, err)
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventError, rec.events[0].Type)
	assert.Equal(t, msgEmptyInput, rec.events[0].Error)
}

func TestChatStream_RateLimitEmitsNoStart(t *testing.T) {
	f := newFixture(searchClassification())
	f.limiter.decision = cache.Decision{Limited: true, Message: "slow down"}
	rec := &eventRecorder{}

	_, err := f.orch.ChatStream(context.Background(), Request{Message: "deals"}, rec.emit)
	require.Error(t, err)
	assert.Equal(t, []string{EventError}, rec.types())
}

func TestChatStream_StartPrecedesEverything(t *testing.T) {
	f := newFixture(Classification{Intent: IntentGeneral})
	f.gateway.streams = []func(llm.Request, func(string)) (llm.Completion, error){
		streamTokens("hi there", "hi ", "there"),
	}
	rec := &eventRecorder{}

	_, err := f.orch.ChatStream(context.Background(), Request{Message: "talk to me"}, rec.emit)
	require.NoError(t, err)
	require.NotEmpty(t, rec.events)
	assert.Equal(t, EventStart, rec.events[0].Type)
	assert.NotEmpty(t, rec.events[0].RequestID)
}

func TestChatStream_CacheHit(t *testing.T) {
	f := newFixture(searchClassification())
	cached := Response{
		Success: true,
		Content: "cached answer",
		Intent:  "search",
		Deals:   []tools.Deal{{ID: 1, Title: "Laptop"}},
		Coupons: []tools.Coupon{{ID: 7, Code: "SAVE10"}},
	}
	payload, _ := json.Marshal(cached)
	f.cache.entries["laptop deals"] = payload
	rec := &eventRecorder{}

	outcome, err := f.orch.ChatStream(context.Background(), Request{Message: "laptop deals"}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, []string{EventStart, EventText, EventDeals, EventCoupons, EventDone}, rec.types())
	last := rec.events[len(rec.events)-1]
	assert.True(t, last.Cached)
	assert.Equal(t, "cached answer", outcome.Content)
	// The cached turn never reaches the classifier or the model.
	assert.Zero(t, f.classifier.calls)
	assert.Empty(t, f.gateway.requests)
}

func TestChatStream_FAQ(t *testing.T) {
	f := newFixture(Classification{
		Intent:      IntentHelp,
		Confidence:  1.0,
		FAQResponse: "I can sniff out deals for you.",
	})
	rec := &eventRecorder{}

	outcome, err := f.orch.ChatStream(context.Background(), Request{Message: "hello"}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, []string{EventStart, EventText, EventDone}, rec.types())
	assert.Equal(t, "I can sniff out deals for you.", outcome.Content)
	assert.Empty(t, f.gateway.requests)
	assert.Equal(t, 1, f.cache.sets)
}

func TestChatStream_DirectPathForwardsTokens(t *testing.T) {
	f := newFixture(Classification{Intent: IntentAdvice})
	f.gateway.streams = []func(llm.Request, func(string)) (llm.Completion, error){
		streamTokens("buy the cheaper one", "buy the ", "cheaper one"),
	}
	rec := &eventRecorder{}

	outcome, err := f.orch.ChatStream(context.Background(), Request{Message: "which should i buy?"}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, []string{EventStart, EventText, EventText, EventDone}, rec.types())
	assert.Equal(t, "buy the ", rec.events[1].Content)
	assert.Equal(t, "cheaper one", rec.events[2].Content)
	assert.Equal(t, 25, rec.events[3].TokensUsed)
	assert.Equal(t, "buy the cheaper one", outcome.Content)
	// Advice streams without tool schemas.
	require.Len(t, f.gateway.requests, 1)
	assert.Empty(t, f.gateway.requests[0].Tools)
}

func TestChatStream_DirectPathEmitsEmbeddedDealIDs(t *testing.T) {
	f := newFixture(Classification{Intent: IntentAdvice})
	content := "Go with the first one.\n{\"dealIds\": [12, 14]}"
	f.gateway.streams = []func(llm.Request, func(string)) (llm.Completion, error){
		streamTokens(content, content),
	}
	rec := &eventRecorder{}

	_, err := f.orch.ChatStream(context.Background(), Request{Message: "which should i buy?"}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, []string{EventStart, EventText, EventDealIDs, EventDone}, rec.types())
	assert.Equal(t, []int64{12, 14}, rec.events[2].DealIDs)
}

func TestChatStream_ToolPathEventOrder(t *testing.T) {
	f := newFixture(searchClassification())
	f.runner.results = map[string]tools.Result{
		"call_1": {
			Tool:    tools.ToolSearchDeals,
			Success: true,
			Data:    tools.SearchDealsResult{Deals: []tools.Deal{{ID: 1, Title: "Laptop"}, {ID: 2, Title: "Tablet"}}},
		},
		"call_2": {
			Tool:    tools.ToolGetCoupons,
			Success: true,
			Data:    tools.CouponsResult{Coupons: []tools.Coupon{{ID: 3, Code: "TEN"}}},
		},
	}
	f.gateway.completions = []func(llm.Request) (llm.Completion, error){
		func(llm.Request) (llm.Completion, error) {
			return llm.Completion{
				ToolCalls: []llm.ToolCall{
					{ID: "call_1", Name: tools.ToolSearchDeals, Arguments: `{"query":"laptop"}`},
					{ID: "call_2", Name: tools.ToolGetCoupons, Arguments: `{}`},
				},
				Usage: llm.Usage{TotalTokens: 30},
			}, nil
		},
	}
	f.gateway.streams = []func(llm.Request, func(string)) (llm.Completion, error){
		streamTokens("The laptop is the better pick.\n{\"dealIds\": [1]}", "The laptop ", "is the better pick."),
	}
	rec := &eventRecorder{}

	outcome, err := f.orch.ChatStream(context.Background(), Request{Message: "find laptops"}, rec.emit)
	require.NoError(t, err)

	types := rec.types()
	assert.Equal(t, []string{
		EventStart,
		EventToolCall, EventToolCall,
		EventCoupons,
		EventText, EventText,
		EventDeals,
		EventDone,
	}, types)

	// Coupons stream before the answer text, deals only after reconciliation.
	var deals []tools.Deal
	for _, e := range rec.events {
		if e.Type == EventDeals {
			deals = e.Deals
		}
	}
	require.Len(t, deals, 1)
	assert.Equal(t, int64(1), deals[0].ID)
	assert.Len(t, outcome.Coupons, 1)

	// First call buffered with tools, second call streamed without.
	require.Len(t, f.gateway.requests, 2)
	assert.NotEmpty(t, f.gateway.requests[0].Tools)
	assert.Empty(t, f.gateway.requests[1].Tools)
	lastMsg := f.gateway.requests[1].Messages[len(f.gateway.requests[1].Messages)-1]
	assert.Equal(t, llm.RoleTool, lastMsg.Role)
}

func TestChatStream_ToolPathNoClaimsShowsAllDeals(t *testing.T) {
	f := newFixture(searchClassification())
	f.runner.results = map[string]tools.Result{
		"call_1": {
			Tool:    tools.ToolSearchDeals,
			Success: true,
			Data:    tools.SearchDealsResult{Deals: []tools.Deal{{ID: 1}, {ID: 2}}},
		},
	}
	f.gateway.completions = []func(llm.Request) (llm.Completion, error){
		func(llm.Request) (llm.Completion, error) {
			return llm.Completion{
				ToolCalls: []llm.ToolCall{{ID: "call_1", Name: tools.ToolSearchDeals, Arguments: `{}`}},
			}, nil
		},
	}
	f.gateway.streams = []func(llm.Request, func(string)) (llm.Completion, error){
		streamTokens("Here are some options.", "Here are some options."),
	}
	rec := &eventRecorder{}

	outcome, err := f.orch.ChatStream(context.Background(), Request{Message: "find laptops"}, rec.emit)
	require.NoError(t, err)
	assert.Len(t, outcome.Deals, 2)
}

func TestChatStream_ToolPathModelAnswersWithoutTools(t *testing.T) {
	f := newFixture(searchClassification())
	f.gateway.completions = []func(llm.Request) (llm.Completion, error){
		func(llm.Request) (llm.Completion, error) {
			return llm.Completion{Content: "Nothing matched, sorry.", Usage: llm.Usage{TotalTokens: 15}}, nil
		},
	}
	rec := &eventRecorder{}

	outcome, err := f.orch.ChatStream(context.Background(), Request{Message: "find laptops"}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, []string{EventStart, EventText, EventDone}, rec.types())
	assert.Equal(t, "Nothing matched, sorry.", outcome.Content)
	assert.Empty(t, f.runner.executed)
}

func TestChatStream_ModelFailureEmitsUserSafeError(t *testing.T) {
	f := newFixture(searchClassification())
	f.gateway.completions = []func(llm.Request) (llm.Completion, error){
		func(llm.Request) (llm.Completion, error) {
			return llm.Completion{}, &llm.Error{Kind: llm.KindRateLimit, Message: "provider says 429"}
		},
	}
	rec := &eventRecorder{}

	_, err := f.orch.ChatStream(context.Background(), Request{Message: "find laptops"}, rec.emit)
	require.Error(t, err)
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, msgBusy, last.Error)
	assert.NotContains(t, last.Error, "provider says")
}

func TestChatStream_SuccessfulTurnIsCached(t *testing.T) {
	f := newFixture(Classification{Intent: IntentGeneral})
	f.gateway.streams = []func(llm.Request, func(string)) (llm.Completion, error){
		streamTokens("sure thing", "sure thing"),
	}
	rec := &eventRecorder{}

	_, err := f.orch.ChatStream(context.Background(), Request{Message: "talk deals to me"}, rec.emit)
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.sets)

	var stored Response
	require.NoError(t, json.Unmarshal(f.cache.entries["talk deals to me"], &stored))
	assert.Equal(t, "sure thing", stored.Content)
	assert.Equal(t, string(IntentGeneral), stored.Intent)
}

func TestChatStream_StreamPromptOmitsJSONEnvelope(t *testing.T) {
	f := newFixture(Classification{Intent: IntentGeneral})
	f.gateway.streams = []func(llm.Request, func(string)) (llm.Completion, error){
		streamTokens("ok", "ok"),
	}

	_, err := f.orch.ChatStream(context.Background(), Request{Message: "chat with me"}, func(Event) {})
	require.NoError(t, err)
	require.Len(t, f.gateway.requests, 1)
	system := f.gateway.requests[0].Messages[0].Content
	assert.NotContains(t, system, jsonOnlyInstruction)
	assert.Contains(t, system, "dealIds")
}
