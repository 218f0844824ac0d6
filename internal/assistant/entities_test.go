package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractEntities_PriceCeiling(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"laptop deals under $500", 500},
		{"headphones below 80", 80},
		{"tv less than $1200.50", 1200.50},
		{"shoes max $60", 60},
		{"monitor up to 300", 300},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			e := ExtractEntities(tt.input)
			require.NotNil(t, e.MaxPrice, "no price extracted from %q", tt.input)
			assert.InDelta(t, tt.want, *e.MaxPrice, 0.001)
		})
	}
}

func TestExtractEntities_NoPrice(t *testing.T) {
	e := ExtractEntities("any good laptop deals?")
	assert.Nil(t, e.MaxPrice)
}

func TestExtractEntities_DiscountFloor(t *testing.T) {
	e := ExtractEntities("shoes at least 30% off")
	require.NotNil(t, e.MinDiscount)
	assert.Equal(t, 30, *e.MinDiscount)

	e = ExtractEntities("50 % off electronics")
	require.NotNil(t, e.MinDiscount)
	assert.Equal(t, 50, *e.MinDiscount)
}

func TestExtractEntities_StoreFirstMatchWins(t *testing.T) {
	e := ExtractEntities("is the Walmart deal better than the Target one")
	// knownStores order decides ties.
	assert.Equal(t, "walmart", e.Store)

	e = ExtractEntities("Best Buy laptop sale")
	assert.Equal(t, "best buy", e.Store)
}

func TestExtractEntities_Category(t *testing.T) {
	assert.Equal(t, "electronics", ExtractEntities("cheap laptop").Category)
	assert.Equal(t, "fashion", ExtractEntities("running shoes").Category)
	assert.Equal(t, "gaming", ExtractEntities("ps5 console bundle").Category)
	assert.Empty(t, ExtractEntities("something nice").Category)
}

func TestExtractEntities_Urgency(t *testing.T) {
	assert.True(t, ExtractEntities("deals expiring today").Urgency)
	assert.False(t, ExtractEntities("deals sometime").Urgency)
}

func TestExtractEntities_CleanedQuery(t *testing.T) {
	e := ExtractEntities("Can you find me wireless earbuds under $50")
	assert.Equal(t, "wireless earbuds", e.Query)

	e = ExtractEntities("show me deals on winter jackets")
	assert.Equal(t, "winter jackets", e.Query)
}

func TestExtractEntities_Idempotent(t *testing.T) {
	input := "find me a gaming laptop under $800 at least 20% off from Best Buy"
	first := ExtractEntities(input)
	second := ExtractEntities(input)
	assert.Equal(t, first, second)
}
