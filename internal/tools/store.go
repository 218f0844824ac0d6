package tools

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Sort orders accepted by SearchDeals.
const (
	SortNewest     = "newest"
	SortPriceAsc   = "price_asc"
	SortPriceDesc  = "price_desc"
	SortDiscount   = "discount"
	SortPopularity = "popularity"
	SortExpiring   = "expiring"
)

// SearchQuery filters the approved-deals listing.
type SearchQuery struct {
	Text        string
	Store       string
	Category    string
	MaxPrice    float64
	MinDiscount int
	Sort        string
	ExcludeIDs  []int64
	Limit       int
}

// CouponQuery filters the active-coupons listing.
type CouponQuery struct {
	Store string
	Limit int
}

// DealStore is the data-access contract backing the tool handlers.
type DealStore interface {
	SearchDeals(ctx context.Context, q SearchQuery) ([]Deal, error)
	GetCoupons(ctx context.Context, q CouponQuery) ([]Coupon, error)
	TrendingDeals(ctx context.Context, limit int) ([]Deal, error)
	DealByID(ctx context.Context, id int64) (*Deal, error)
	DealsByIDs(ctx context.Context, ids []int64) ([]Deal, error)
	StoreInfo(ctx context.Context, name string) (*StoreInfo, error)
}

// PostgresStore implements DealStore against the marketplace database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const dealColumns = `id, title, description, price, original_price, store_name, category, url,
       votes, comment_count, views, clicks, expires_at, created_at`

func scanDeal(row interface{ Scan(...any) error }) (Deal, error) {
	var d Deal
	var desc, store, category, url sql.NullString
	var originalPrice sql.NullFloat64
	var expiresAt sql.NullTime
	err := row.Scan(&d.ID, &d.Title, &desc, &d.Price, &originalPrice, &store, &category, &url,
		&d.Votes, &d.Comments, &d.Views, &d.Clicks, &expiresAt, &d.CreatedAt)
	if err != nil {
		return Deal{}, err
	}
	d.Description = desc.String
	d.Store = store.String
	d.Category = category.String
	d.URL = url.String
	if originalPrice.Valid {
		d.OriginalPrice = originalPrice.Float64
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		d.ExpiresAt = &t
	}
	return d, nil
}

func (s *PostgresStore) SearchDeals(ctx context.Context, q SearchQuery) ([]Deal, error) {
	var (
		where = []string{"status = 'approved'"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		p := arg("%" + text + "%")
		where = append(where, fmt.Sprintf("(title ILIKE %s OR description ILIKE %s)", p, p))
	}
	if q.Store != "" {
		where = append(where, fmt.Sprintf("store_name ILIKE %s", arg(q.Store)))
	}
	if q.Category != "" {
		where = append(where, fmt.Sprintf("category = %s", arg(q.Category)))
	}
	if q.MaxPrice > 0 {
		where = append(where, fmt.Sprintf("price <= %s", arg(q.MaxPrice)))
	}
	if q.MinDiscount > 0 {
		where = append(where, fmt.Sprintf(
			"original_price > 0 AND (original_price - price) / original_price * 100 >= %s", arg(q.MinDiscount)))
	}
	if len(q.ExcludeIDs) > 0 {
		where = append(where, fmt.Sprintf("id != ALL(%s)", arg(pq.Array(q.ExcludeIDs))))
	}

	order := "created_at DESC"
	switch q.Sort {
	case SortPriceAsc:
		order = "price ASC"
	case SortPriceDesc:
		order = "price DESC"
	case SortDiscount:
		order = "CASE WHEN original_price > 0 THEN (original_price - price) / original_price ELSE 0 END DESC"
	case SortPopularity:
		order = "votes + comment_count DESC"
	case SortExpiring:
		order = "expires_at ASC NULLS LAST"
	case SortNewest, "":
	}

	limit := q.Limit
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	query := fmt.Sprintf(`SELECT %s FROM deals WHERE %s ORDER BY %s LIMIT %s`,
		dealColumns, strings.Join(where, " AND "), order, arg(limit))
	return s.queryDeals(ctx, query, args...)
}

func (s *PostgresStore) queryDeals(ctx context.Context, query string, args ...any) ([]Deal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tools: query deals: %w", err)
	}
	defer rows.Close()

	out := []Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("tools: scan deal: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetCoupons(ctx context.Context, q CouponQuery) ([]Coupon, error) {
	limit := q.Limit
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	var (
		where = []string{"active = true", "(expires_at IS NULL OR expires_at > NOW())"}
		args  []any
	)
	if q.Store != "" {
		args = append(args, q.Store)
		where = append(where, fmt.Sprintf("store_name ILIKE $%d", len(args)))
	}
	args = append(args, limit)
	query := fmt.Sprintf(`
		SELECT id, code, title, description, store_name, discount_percent, verified, expires_at
		FROM coupons WHERE %s
		ORDER BY verified DESC, expires_at ASC NULLS LAST LIMIT $%d`,
		strings.Join(where, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tools: query coupons: %w", err)
	}
	defer rows.Close()

	out := []Coupon{}
	for rows.Next() {
		var c Coupon
		var desc sql.NullString
		var discount sql.NullInt64
		var expiresAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.Code, &c.Title, &desc, &c.Store, &discount, &c.Verified, &expiresAt); err != nil {
			return nil, fmt.Errorf("tools: scan coupon: %w", err)
		}
		c.Description = desc.String
		c.DiscountPercent = int(discount.Int64)
		if expiresAt.Valid {
			t := expiresAt.Time
			c.ExpiresAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TrendingDeals(ctx context.Context, limit int) ([]Deal, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	query := fmt.Sprintf(`SELECT %s FROM deals
		WHERE status = 'approved' AND created_at > NOW() - INTERVAL '7 days'
		ORDER BY views + clicks * 5 + votes * 10 DESC LIMIT $1`, dealColumns)
	return s.queryDeals(ctx, query, limit)
}

func (s *PostgresStore) DealByID(ctx context.Context, id int64) (*Deal, error) {
	query := fmt.Sprintf(`SELECT %s FROM deals WHERE id = $1 AND status = 'approved'`, dealColumns)
	d, err := scanDeal(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tools: get deal %d: %w", id, err)
	}
	return &d, nil
}

func (s *PostgresStore) DealsByIDs(ctx context.Context, ids []int64) ([]Deal, error) {
	if len(ids) == 0 {
		return []Deal{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM deals WHERE id = ANY($1) AND status = 'approved'`, dealColumns)
	return s.queryDeals(ctx, query, pq.Array(ids))
}

func (s *PostgresStore) StoreInfo(ctx context.Context, name string) (*StoreInfo, error) {
	var info StoreInfo
	var website, desc sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT s.name, s.website, s.description,
		       (SELECT COUNT(*) FROM deals d WHERE d.store_name ILIKE s.name AND d.status = 'approved') AS active_deals,
		       (SELECT COUNT(*) FROM coupons c WHERE c.store_name ILIKE s.name AND c.active = true) AS active_coupons,
		       COALESCE((SELECT AVG((d.original_price - d.price) / d.original_price * 100)
		                 FROM deals d
		                 WHERE d.store_name ILIKE s.name AND d.status = 'approved' AND d.original_price > 0), 0) AS avg_discount
		FROM stores s WHERE s.name ILIKE $1`, name).
		Scan(&info.Name, &website, &desc, &info.ActiveDeals, &info.ActiveCoupons, &info.AvgDiscount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tools: get store %q: %w", name, err)
	}
	info.Website = website.String
	info.Description = desc.String
	return &info, nil
}
