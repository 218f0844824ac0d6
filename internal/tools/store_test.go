package tools

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dealRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "description", "price", "original_price", "store_name", "category", "url",
		"votes", "comment_count", "views", "clicks", "expires_at", "created_at",
	})
}

func TestSearchDeals_FiltersAndOrder(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	rows := dealRows().AddRow(
		1, "Gaming laptop", "16GB RAM", 499.99, 799.99, "Best Buy", "electronics", "https://x",
		12, 3, 200, 40, nil, time.Now(),
	)
	mock.ExpectQuery(`SELECT .+ FROM deals WHERE status = 'approved' AND \(title ILIKE \$1 OR description ILIKE \$1\) AND price <= \$2 ORDER BY price ASC LIMIT \$3`).
		WithArgs("%laptop%", 500.0, 10).
		WillReturnRows(rows)

	got, err := store.SearchDeals(context.Background(), SearchQuery{
		Text:     "laptop",
		MaxPrice: 500,
		Sort:     SortPriceAsc,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Gaming laptop", got[0].Title)
	assert.Equal(t, "Best Buy", got[0].Store)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchDeals_DefaultSortIsNewest(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectQuery(`ORDER BY created_at DESC LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(dealRows())

	_, err = store.SearchDeals(context.Background(), SearchQuery{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCoupons_VerifiedFirst(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	rows := sqlmock.NewRows([]string{
		"id", "code", "title", "description", "store_name", "discount_percent", "verified", "expires_at",
	}).
		AddRow(1, "SAVE20", "20% off", nil, "Nike", 20, true, nil).
		AddRow(2, "MAYBE10", "10% off", nil, "Nike", 10, false, nil)
	mock.ExpectQuery(`FROM coupons WHERE active = true AND \(expires_at IS NULL OR expires_at > NOW\(\)\) AND store_name ILIKE \$1 ORDER BY verified DESC`).
		WithArgs("Nike", 10).
		WillReturnRows(rows)

	got, err := store.GetCoupons(context.Background(), CouponQuery{Store: "Nike"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Verified)
	assert.Equal(t, "SAVE20", got[0].Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDealByID_MissingRowIsNil(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectQuery(`FROM deals WHERE id = \$1 AND status = 'approved'`).
		WithArgs(int64(42)).
		WillReturnRows(dealRows())

	got, err := store.DealByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTrendingDeals_WindowAndWeights(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	mock.ExpectQuery(`INTERVAL '7 days'\s+ORDER BY views \+ clicks \* 5 \+ votes \* 10 DESC LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(dealRows())

	_, err = store.TrendingDeals(context.Background(), 5)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreInfo_Aggregates(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	store := NewPostgresStore(db)

	rows := sqlmock.NewRows([]string{"name", "website", "description", "active_deals", "active_coupons", "avg_discount"}).
		AddRow("Nike", "https://nike.com", nil, 12, 4, 23.5)
	mock.ExpectQuery(`FROM stores s WHERE s.name ILIKE \$1`).
		WithArgs("nike").
		WillReturnRows(rows)

	got, err := store.StoreInfo(context.Background(), "nike")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 12, got.ActiveDeals)
	assert.InDelta(t, 23.5, got.AvgDiscount, 0.001)
}
