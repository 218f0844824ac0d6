package assistant

import (
	"github.com/dealhound/dealhound/internal/tools"
)

// Intent is the coarse category of a user request.
type Intent string

const (
	IntentSearch    Intent = "search"
	IntentCoupon    Intent = "coupon"
	IntentCompare   Intent = "compare"
	IntentAdvice    Intent = "advice"
	IntentTrending  Intent = "trending"
	IntentStoreInfo Intent = "store_info"
	IntentHelp      Intent = "help"
	IntentGeneral   Intent = "general"
)

func validIntent(s string) bool {
	switch Intent(s) {
	case IntentSearch, IntentCoupon, IntentCompare, IntentAdvice,
		IntentTrending, IntentStoreInfo, IntentHelp, IntentGeneral:
		return true
	}
	return false
}

// Complexity picks between the cheap and the capable model.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// Entities are the structured fields extracted from a query.
type Entities struct {
	Query       string   `json:"query,omitempty"`
	Store       string   `json:"store,omitempty"`
	Category    string   `json:"category,omitempty"`
	MaxPrice    *float64 `json:"maxPrice,omitempty"`
	MinDiscount *int     `json:"minDiscount,omitempty"`
	Urgency     bool     `json:"urgency,omitempty"`
	Priority    string   `json:"priority,omitempty"`
}

// merge overlays non-zero fields of other onto e. Used to let model-extracted
// entities win over regex-extracted ones on key conflicts.
func (e Entities) merge(other Entities) Entities {
	out := e
	if other.Query != "" {
		out.Query = other.Query
	}
	if other.Store != "" {
		out.Store = other.Store
	}
	if other.Category != "" {
		out.Category = other.Category
	}
	if other.MaxPrice != nil {
		out.MaxPrice = other.MaxPrice
	}
	if other.MinDiscount != nil {
		out.MinDiscount = other.MinDiscount
	}
	if other.Urgency {
		out.Urgency = true
	}
	if other.Priority != "" {
		out.Priority = other.Priority
	}
	return out
}

// Classification is the classifier's output.
type Classification struct {
	Intent      Intent     `json:"intent"`
	Complexity  Complexity `json:"complexity"`
	Entities    Entities   `json:"entities"`
	Confidence  float64    `json:"confidence"`
	FAQResponse string     `json:"-"`
	// Source records which tier produced the result: faq, keyword, model,
	// keyword_fallback:<reason>, or default.
	Source string `json:"-"`
}

// Turn is one prior message in the conversation.
type Turn struct {
	Role    string       `json:"role"`
	Content string       `json:"content"`
	Deals   []tools.Deal `json:"deals,omitempty"`
}

// RequestContext carries free-form request metadata.
type RequestContext struct {
	CurrentPage string  `json:"currentPage,omitempty"`
	ViewedDeals []int64 `json:"viewedDeals,omitempty"`
}

// Request is one inbound chat turn. Immutable for the duration of one
// orchestrator invocation.
type Request struct {
	Message        string
	UserID         string // empty means guest
	IP             string
	ConversationID string
	History        []Turn
	Context        RequestContext
}

func (r Request) authenticated() bool { return r.UserID != "" }

// Usage reports token consumption and estimated cost for one turn.
type Usage struct {
	TokensUsed    int     `json:"tokensUsed"`
	EstimatedCost float64 `json:"estimatedCost"`
}

// Response is the buffered result of one chat turn.
type Response struct {
	Success    bool             `json:"success"`
	Content    string           `json:"content,omitempty"`
	Intent     string           `json:"intent,omitempty"`
	RequestID  string           `json:"requestId"`
	LatencyMs  int64            `json:"latencyMs"`
	Cached     bool             `json:"cached"`
	Fallback   bool             `json:"fallback,omitempty"`
	Usage      *Usage           `json:"usage,omitempty"`
	Deals      []tools.Deal     `json:"deals,omitempty"`
	Coupons    []tools.Coupon   `json:"coupons,omitempty"`
	Store      *tools.StoreInfo `json:"store,omitempty"`
	Model      string           `json:"-"`
	Error      string           `json:"error,omitempty"`
	StatusCode int              `json:"statusCode,omitempty"`
	Retryable  bool             `json:"retryable,omitempty"`
}

// Stream event types.
const (
	EventStart    = "start"
	EventText     = "text"
	EventThinking = "thinking"
	EventToolCall = "tool_call"
	EventDeals    = "deals"
	EventCoupons  = "coupons"
	EventDealIDs  = "dealIds"
	EventDone     = "done"
	EventError    = "error"
)

// Event is one discrete streaming payload. A successful stream starts with
// start and ends with done; a failed one ends with error.
type Event struct {
	Type       string         `json:"type"`
	RequestID  string         `json:"requestId,omitempty"`
	Content    string         `json:"content,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	Deals      []tools.Deal   `json:"deals,omitempty"`
	Coupons    []tools.Coupon `json:"coupons,omitempty"`
	DealIDs    []int64        `json:"dealIds,omitempty"`
	Cached     bool           `json:"cached,omitempty"`
	TokensUsed int            `json:"tokensUsed,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// EmitFunc receives stream events in order.
type EmitFunc func(Event)

// StreamOutcome summarizes a finished streaming turn so the transport
// adapter can persist the assistant message with what was actually shown.
type StreamOutcome struct {
	Content string
	Intent  string
	Deals   []tools.Deal
	Coupons []tools.Coupon
	Usage   Usage
	Model   string
}
