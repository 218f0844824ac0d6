package tools

import (
	"math"
	"time"
)

// Deal is one marketplace deal row plus server-derived ranking fields.
type Deal struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Price         float64    `json:"price"`
	OriginalPrice float64    `json:"original_price,omitempty"`
	Store         string     `json:"store,omitempty"`
	Category      string     `json:"category,omitempty"`
	URL           string     `json:"url,omitempty"`
	Votes         int        `json:"votes"`
	Comments      int        `json:"comments"`
	Views         int        `json:"views"`
	Clicks        int        `json:"clicks"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`

	// Derived fields, always recomputed here and never trusted from the
	// model or the client.
	DiscountPercent int     `json:"discount_percent"`
	EngagementScore float64 `json:"engagement_score"`
	IsUrgent        bool    `json:"is_urgent"`
	IsTrending      bool    `json:"is_trending"`
	ValueScore      float64 `json:"value_score"`
}

// Coupon is one merchant coupon row.
type Coupon struct {
	ID              int64      `json:"id"`
	Code            string     `json:"code"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Store           string     `json:"store"`
	DiscountPercent int        `json:"discount_percent,omitempty"`
	Verified        bool       `json:"verified"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// StoreInfo is the merchant profile summary returned by get_store_info.
type StoreInfo struct {
	Name          string  `json:"name"`
	Website       string  `json:"website,omitempty"`
	Description   string  `json:"description,omitempty"`
	ActiveDeals   int     `json:"active_deals"`
	ActiveCoupons int     `json:"active_coupons"`
	AvgDiscount   float64 `json:"avg_discount"`
}

const (
	urgentWindow      = 7 * 24 * time.Hour
	trendingThreshold = 50.0
)

// Enrich recomputes every derived field on a deal. Idempotent.
func Enrich(d *Deal, now time.Time) {
	if d.OriginalPrice > 0 && d.OriginalPrice > d.Price {
		d.DiscountPercent = int(math.Round((d.OriginalPrice - d.Price) / d.OriginalPrice * 100))
	} else {
		d.DiscountPercent = 0
	}

	// Engagement prefers view/click counts; deals that predate click
	// tracking fall back to votes and comments.
	if d.Views > 0 || d.Clicks > 0 {
		d.EngagementScore = float64(d.Views)*0.1 + float64(d.Clicks)*0.5
	} else {
		d.EngagementScore = float64(d.Votes)*1.0 + float64(d.Comments)*0.5
	}

	d.IsUrgent = d.ExpiresAt != nil && d.ExpiresAt.After(now) && d.ExpiresAt.Sub(now) <= urgentWindow
	d.IsTrending = d.EngagementScore >= trendingThreshold

	score := 2 * float64(d.DiscountPercent)
	score += math.Min(0.5*float64(d.Votes), 20)
	score += math.Min(0.3*d.EngagementScore, 15)
	if d.IsUrgent {
		score += 10
	}
	d.ValueScore = math.Round(score*100) / 100
}

// EnrichAll applies Enrich to a slice in place and returns it.
func EnrichAll(deals []Deal, now time.Time) []Deal {
	for i := range deals {
		Enrich(&deals[i], now)
	}
	return deals
}
