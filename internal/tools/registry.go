package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dealhound/dealhound/internal/llm"
	"github.com/dealhound/dealhound/pkg/logging"
)

// Tool names exposed to the model.
const (
	ToolSearchDeals      = "search_deals"
	ToolGetCoupons       = "get_coupons"
	ToolGetTrendingDeals = "get_trending_deals"
	ToolGetDealDetails   = "get_deal_details"
	ToolCompareDeals     = "compare_deals"
	ToolGetStoreInfo     = "get_store_info"
)

// ResultCache is the slice of the cache layer the registry uses for
// tool-result caching. May be nil.
type ResultCache interface {
	GetTool(ctx context.Context, tool string, args []byte) ([]byte, bool)
	SetTool(ctx context.Context, tool string, args []byte, payload []byte)
}

// Registry holds the declared tools and executes calls against the data store.
type Registry struct {
	store      DealStore
	cache      ResultCache
	logger     *logging.Logger
	maxResults int
	now        func() time.Time
}

// NewRegistry builds a registry. cache may be nil to disable tool-result
// caching.
func NewRegistry(store DealStore, cache ResultCache, maxResults int, logger *logging.Logger) *Registry {
	if maxResults <= 0 {
		maxResults = 10
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		store:      store,
		cache:      cache,
		logger:     logger,
		maxResults: maxResults,
		now:        time.Now,
	}
}

// Definitions returns the tool schemas sent with the first model call.
func (r *Registry) Definitions() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        ToolSearchDeals,
			Description: "Search approved deals with optional text, store, category, price, and discount filters.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Search text"},
					"store": {"type": "string", "description": "Store name filter"},
					"category": {"type": "string", "description": "Category filter"},
					"max_price": {"type": "number", "description": "Maximum price in dollars"},
					"min_discount": {"type": "integer", "description": "Minimum discount percent"},
					"sort": {"type": "string", "enum": ["newest", "price_asc", "price_desc", "discount", "popularity", "expiring"]},
					"exclude_ids": {"type": "array", "items": {"type": "integer"}}
				}
			}`),
		},
		{
			Name:        ToolGetCoupons,
			Description: "Get active, unexpired coupons, verified codes first. Optionally filter by store.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"store": {"type": "string", "description": "Store name filter"}
				}
			}`),
		},
		{
			Name:        ToolGetTrendingDeals,
			Description: "Get the deals with the most engagement over the last week.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		{
			Name:        ToolGetDealDetails,
			Description: "Get full details for a single deal by its id.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"deal_id": {"type": "integer", "description": "Deal id"}
				},
				"required": ["deal_id"]
			}`),
		},
		{
			Name:        ToolCompareDeals,
			Description: "Fetch several deals by id so they can be compared side by side.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"deal_ids": {"type": "array", "items": {"type": "integer"}}
				},
				"required": ["deal_ids"]
			}`),
		},
		{
			Name:        ToolGetStoreInfo,
			Description: "Get a store profile with its active deal and coupon counts.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"store": {"type": "string", "description": "Store name"}
				},
				"required": ["store"]
			}`),
		},
	}
}

type searchArgs struct {
	Query       string  `json:"query"`
	Store       string  `json:"store"`
	Category    string  `json:"category"`
	MaxPrice    float64 `json:"max_price"`
	MinDiscount int     `json:"min_discount"`
	Sort        string  `json:"sort"`
	ExcludeIDs  []int64 `json:"exclude_ids"`
}

type couponArgs struct {
	Store string `json:"store"`
}

type dealDetailArgs struct {
	DealID int64 `json:"deal_id"`
}

type compareArgs struct {
	DealIDs []int64 `json:"deal_ids"`
}

type storeInfoArgs struct {
	Store string `json:"store"`
}

// run dispatches one tool call. Unknown names come back as failed results,
// never errors.
func (r *Registry) run(ctx context.Context, name string, args json.RawMessage) Result {
	start := r.now()
	res := r.dispatch(ctx, name, args)
	res.Tool = name
	res.ExecutionTime = r.now().Sub(start)
	return res
}

func (r *Registry) dispatch(ctx context.Context, name string, args json.RawMessage) Result {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	if cached, ok := r.cachedResult(ctx, name, args); ok {
		return cached
	}

	var res Result
	switch name {
	case ToolSearchDeals:
		var a searchArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return failed(err)
		}
		deals, err := r.store.SearchDeals(ctx, SearchQuery{
			Text:        a.Query,
			Store:       a.Store,
			Category:    a.Category,
			MaxPrice:    a.MaxPrice,
			MinDiscount: a.MinDiscount,
			Sort:        a.Sort,
			ExcludeIDs:  a.ExcludeIDs,
			Limit:       r.maxResults,
		})
		if err != nil {
			return failed(err)
		}
		res = Result{Success: true, Data: SearchDealsResult{Deals: EnrichAll(deals, r.now()), Query: a.Query}}

	case ToolGetCoupons:
		var a couponArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return failed(err)
		}
		coupons, err := r.store.GetCoupons(ctx, CouponQuery{Store: a.Store, Limit: r.maxResults})
		if err != nil {
			return failed(err)
		}
		res = Result{Success: true, Data: CouponsResult{Coupons: coupons}}

	case ToolGetTrendingDeals:
		deals, err := r.store.TrendingDeals(ctx, r.maxResults)
		if err != nil {
			return failed(err)
		}
		res = Result{Success: true, Data: TrendingResult{Deals: EnrichAll(deals, r.now())}}

	case ToolGetDealDetails:
		var a dealDetailArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return failed(err)
		}
		deal, err := r.store.DealByID(ctx, a.DealID)
		if err != nil {
			return failed(err)
		}
		if deal != nil {
			Enrich(deal, r.now())
		}
		res = Result{Success: true, Data: DealDetailResult{Deal: deal}}

	case ToolCompareDeals:
		var a compareArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return failed(err)
		}
		deals, err := r.store.DealsByIDs(ctx, a.DealIDs)
		if err != nil {
			return failed(err)
		}
		res = Result{Success: true, Data: CompareResult{Deals: EnrichAll(deals, r.now())}}

	case ToolGetStoreInfo:
		var a storeInfoArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return failed(err)
		}
		info, err := r.store.StoreInfo(ctx, a.Store)
		if err != nil {
			return failed(err)
		}
		res = Result{Success: true, Data: StoreInfoResult{Store: info}}

	default:
		return Result{Success: false, Error: fmt.Sprintf("Unknown tool: %s", name)}
	}

	// The tool name must be on the result before it is cached; decoding a
	// cached envelope picks the payload shape by tool name.
	res.Tool = name
	r.storeResult(ctx, name, args, res)
	return res
}

func failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

func (r *Registry) cachedResult(ctx context.Context, name string, args json.RawMessage) (Result, bool) {
	if r.cache == nil {
		return Result{}, false
	}
	payload, ok := r.cache.GetTool(ctx, name, args)
	if !ok {
		return Result{}, false
	}
	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		r.logger.Warn("tool cache entry unreadable", "tool", name, "error", err)
		return Result{}, false
	}
	res.Cached = true
	return res, true
}

func (r *Registry) storeResult(ctx context.Context, name string, args json.RawMessage, res Result) {
	if r.cache == nil || !res.Success {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	r.cache.SetTool(ctx, name, args, payload)
}

// FallbackSearch runs a direct popularity-sorted search, bypassing the model
// entirely. Used by the orchestrator's last-resort recovery path.
func (r *Registry) FallbackSearch(ctx context.Context, query string) ([]Deal, error) {
	deals, err := r.store.SearchDeals(ctx, SearchQuery{
		Text:  query,
		Sort:  SortPopularity,
		Limit: r.maxResults,
	})
	if err != nil {
		return nil, err
	}
	return EnrichAll(deals, r.now()), nil
}
