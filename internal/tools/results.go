package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ResultData is the closed set of tool result payload shapes. Formatting for
// model context is an exhaustive switch over these types, not field probing.
type ResultData interface {
	isResultData()
}

type SearchDealsResult struct {
	Deals []Deal `json:"deals"`
	Query string `json:"query,omitempty"`
}

type CouponsResult struct {
	Coupons []Coupon `json:"coupons"`
}

type TrendingResult struct {
	Deals []Deal `json:"deals"`
}

type DealDetailResult struct {
	Deal *Deal `json:"deal"`
}

type CompareResult struct {
	Deals []Deal `json:"deals"`
}

type StoreInfoResult struct {
	Store *StoreInfo `json:"store"`
}

func (SearchDealsResult) isResultData() {}
func (CouponsResult) isResultData()     {}
func (TrendingResult) isResultData()    {}
func (DealDetailResult) isResultData()  {}
func (CompareResult) isResultData()     {}
func (StoreInfoResult) isResultData()   {}

// Result is the outcome of one tool call.
type Result struct {
	Tool          string
	Success       bool
	Data          ResultData
	Error         string
	ExecutionTime time.Duration
	Cached        bool
}

// resultEnvelope is the wire form of Result for cache round-trips. The tool
// name selects the concrete Data shape on decode.
type resultEnvelope struct {
	Tool            string          `json:"tool"`
	Success         bool            `json:"success"`
	Data            json.RawMessage `json:"data,omitempty"`
	Error           string          `json:"error,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
}

// MarshalJSON encodes the result with its payload inlined.
func (r Result) MarshalJSON() ([]byte, error) {
	env := resultEnvelope{
		Tool:            r.Tool,
		Success:         r.Success,
		Error:           r.Error,
		ExecutionTimeMs: r.ExecutionTime.Milliseconds(),
	}
	if r.Data != nil {
		data, err := json.Marshal(r.Data)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes a result, picking the payload shape by tool name.
func (r *Result) UnmarshalJSON(data []byte) error {
	var env resultEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	r.Tool = env.Tool
	r.Success = env.Success
	r.Error = env.Error
	r.ExecutionTime = time.Duration(env.ExecutionTimeMs) * time.Millisecond
	r.Data = nil
	if len(env.Data) == 0 {
		return nil
	}
	decode := func(v ResultData) error {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("tools: decode %s result: %w", env.Tool, err)
		}
		return nil
	}
	switch env.Tool {
	case ToolSearchDeals:
		var v SearchDealsResult
		if err := decode(&v); err != nil {
			return err
		}
		r.Data = v
	case ToolGetCoupons:
		var v CouponsResult
		if err := decode(&v); err != nil {
			return err
		}
		r.Data = v
	case ToolGetTrendingDeals:
		var v TrendingResult
		if err := decode(&v); err != nil {
			return err
		}
		r.Data = v
	case ToolGetDealDetails:
		var v DealDetailResult
		if err := decode(&v); err != nil {
			return err
		}
		r.Data = v
	case ToolCompareDeals:
		var v CompareResult
		if err := decode(&v); err != nil {
			return err
		}
		r.Data = v
	case ToolGetStoreInfo:
		var v StoreInfoResult
		if err := decode(&v); err != nil {
			return err
		}
		r.Data = v
	default:
		return fmt.Errorf("tools: unknown tool in cached result: %s", env.Tool)
	}
	return nil
}

// Deals returns the deals carried by the result, if any.
func (r Result) Deals() []Deal {
	switch data := r.Data.(type) {
	case SearchDealsResult:
		return data.Deals
	case TrendingResult:
		return data.Deals
	case CompareResult:
		return data.Deals
	case DealDetailResult:
		if data.Deal != nil {
			return []Deal{*data.Deal}
		}
	}
	return nil
}

// Coupons returns the coupons carried by the result, if any.
func (r Result) Coupons() []Coupon {
	if data, ok := r.Data.(CouponsResult); ok {
		return data.Coupons
	}
	return nil
}

// Store returns the store profile carried by the result, if any.
func (r Result) Store() *StoreInfo {
	if data, ok := r.Data.(StoreInfoResult); ok {
		return data.Store
	}
	return nil
}

// FormatForModel renders a result as compact text for the follow-up model
// call. Failed results read as "no data" rather than aborting the turn.
func FormatForModel(r Result) string {
	if !r.Success {
		return fmt.Sprintf("Tool %s returned no data (%s).", r.Tool, r.Error)
	}
	switch data := r.Data.(type) {
	case SearchDealsResult:
		return formatDeals("Found deals", data.Deals)
	case TrendingResult:
		return formatDeals("Trending deals", data.Deals)
	case CompareResult:
		return formatDeals("Deals to compare", data.Deals)
	case DealDetailResult:
		if data.Deal == nil {
			return "Deal not found."
		}
		return formatDeals("Deal details", []Deal{*data.Deal})
	case CouponsResult:
		if len(data.Coupons) == 0 {
			return "No active coupons found."
		}
		var b strings.Builder
		b.WriteString("Active coupons:\n")
		for _, c := range data.Coupons {
			fmt.Fprintf(&b, "- [%d] %s: code %s", c.ID, c.Title, c.Code)
			if c.DiscountPercent > 0 {
				fmt.Fprintf(&b, " (%d%% off)", c.DiscountPercent)
			}
			if c.Verified {
				b.WriteString(" (verified)")
			}
			b.WriteString("\n")
		}
		return b.String()
	case StoreInfoResult:
		if data.Store == nil {
			return "Store not found."
		}
		s := data.Store
		return fmt.Sprintf("Store %s: %d active deals, %d active coupons, avg discount %.0f%%. %s",
			s.Name, s.ActiveDeals, s.ActiveCoupons, s.AvgDiscount, s.Description)
	default:
		return fmt.Sprintf("Tool %s returned no data.", r.Tool)
	}
}

func formatDeals(header string, deals []Deal) string {
	if len(deals) == 0 {
		return "No matching deals found."
	}
	var b strings.Builder
	b.WriteString(header + ":\n")
	for _, d := range deals {
		fmt.Fprintf(&b, "- [id %d] %s: $%.2f", d.ID, d.Title, d.Price)
		if d.DiscountPercent > 0 {
			fmt.Fprintf(&b, " (%d%% off, was $%.2f)", d.DiscountPercent, d.OriginalPrice)
		}
		if d.Store != "" {
			fmt.Fprintf(&b, " at %s", d.Store)
		}
		if d.IsUrgent {
			b.WriteString(" [expiring soon]")
		}
		fmt.Fprintf(&b, " value=%.1f\n", d.ValueScore)
	}
	return b.String()
}
