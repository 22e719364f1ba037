package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/mmbot/pkg/book"
	"github.com/uhyunpark/mmbot/pkg/market"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPremium(t *testing.T) {
	assert.True(t, Premium(48*time.Hour, decimal.Zero).IsZero())

	// 10 bps/day with one day left → 0.001
	assert.True(t, Premium(24*time.Hour, d("10")).Equal(d("0.001")))

	assert.True(t, Premium(24*time.Hour, d("-10")).Equal(d("-0.001")), "negative rate discounts")
	assert.True(t, Premium(12*time.Hour, d("10")).Equal(d("0.0005")))
}

func TestPremiumPrice(t *testing.T) {
	tests := []struct {
		name     string
		price    string
		premium  string
		tickSize int32
		want     string
	}{
		{"no premium keeps price", "100", "0", 1, "100"},
		{"rounds to one decimal", "100", "0.001", 1, "100.1"},
		{"half rounds up", "100.25", "0", 1, "100.3"},
		{"below half rounds down", "100.24", "0", 1, "100.2"},
		{"discount", "100", "-0.001", 0, "100"},
		{"whole tick size", "99.5", "0", 0, "100"},
		{"two decimals", "1.234", "0.01", 2, "1.25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PremiumPrice(d(tt.price), d(tt.premium), tt.tickSize)
			assert.True(t, got.Equal(d(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestAvailableMarginExcludesStops(t *testing.T) {
	open := map[string]map[string]book.Order{
		"BTCUSD": {
			"l1": {UUID: "l1", OrderType: book.Limit},
			"s1": {UUID: "s1", OrderType: book.Stop},
			"t1": {UUID: "t1", OrderType: book.Target},
		},
	}

	var seen map[string]map[string]book.Order
	engine := func(orders map[string]map[string]book.Order) decimal.Decimal {
		seen = orders
		return d("12345")
	}

	got := AvailableMargin(engine, open, d("50"))
	assert.True(t, got.Equal(d("6172")), "floor(12345*50/100), got %s", got)

	require.Contains(t, seen, "BTCUSD")
	assert.NotContains(t, seen["BTCUSD"], "s1")
	assert.Contains(t, seen["BTCUSD"], "l1")
	assert.Contains(t, seen["BTCUSD"], "t1")
	assert.Len(t, open["BTCUSD"], 3, "caller snapshot untouched")
}

func TestAvailableMarginNegative(t *testing.T) {
	engine := func(map[string]map[string]book.Order) decimal.Decimal { return d("-10") }
	assert.True(t, AvailableMargin(engine, nil, d("100")).IsNegative())
}

func TestSatoshiPerQuantityQuanto(t *testing.T) {
	inst := market.Instrument{
		Type:          market.Quanto,
		StopCushion:   d("0.5"),
		TicksPerPoint: d("10"),
		TickValue:     d("100"),
	}
	got, err := SatoshiPerQuantity(inst, nil, d("3"), d("4.5"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("5000")), "(4.5+0.5)*10*100, got %s", got)
}

func TestSatoshiPerQuantityInverse(t *testing.T) {
	inst := market.Instrument{
		Type:             market.Inverse,
		StopCushion:      d("1"),
		ContractUSDValue: d("1"),
	}
	band := &market.Band{Price: d("110")}

	// entry 100, exit 95: 1e8 * (1/95 - 1/100) = 52631.57... → 52632
	got, err := SatoshiPerQuantity(inst, band, d("10"), d("4"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("52632")), "got %s", got)
}

func TestSatoshiPerQuantityPreconditions(t *testing.T) {
	inst := market.Instrument{Type: market.Inverse, StopCushion: d("1"), ContractUSDValue: d("1")}

	_, err := SatoshiPerQuantity(inst, nil, d("1"), d("1"))
	assert.True(t, errors.Is(err, ErrPrecondition))

	noCushion := inst
	noCushion.StopCushion = decimal.Zero
	_, err = SatoshiPerQuantity(noCushion, &market.Band{Price: d("100")}, d("1"), d("1"))
	assert.True(t, errors.Is(err, ErrPrecondition))

	noValue := inst
	noValue.ContractUSDValue = decimal.Zero
	_, err = SatoshiPerQuantity(noValue, &market.Band{Price: d("100")}, d("1"), d("1"))
	assert.True(t, errors.Is(err, ErrPrecondition))

	_, err = SatoshiPerQuantity(market.Instrument{}, &market.Band{Price: d("100")}, d("1"), d("1"))
	assert.True(t, errors.Is(err, ErrUnknownContract))
}

func TestMaxOrderCountSymmetry(t *testing.T) {
	const maxQty = 5
	assert.Equal(t, int64(maxQty), MaxOrderCount(nil, book.Buy, maxQty))
	assert.Equal(t, int64(maxQty), MaxOrderCount(&market.Position{}, book.Sell, maxQty))

	long := &market.Position{Quantity: 3}
	assert.Equal(t, int64(8), MaxOrderCount(long, book.Sell, maxQty))
	assert.Equal(t, int64(2), MaxOrderCount(long, book.Buy, maxQty))

	for _, q := range []int64{-250, -7, -1, 0, 1, 4, 99, 1000} {
		pos := &market.Position{Quantity: q}
		sum := MaxOrderCount(pos, book.Sell, maxQty) + MaxOrderCount(pos, book.Buy, maxQty)
		assert.Equal(t, int64(2*maxQty), sum, "position %d", q)
	}
}

func TestSpreadAdjustment(t *testing.T) {
	assert.True(t, SpreadAdjustment(0).IsZero())
	assert.True(t, SpreadAdjustment(99).IsZero())
	assert.True(t, SpreadAdjustment(100).Equal(d("0.2")))
	assert.True(t, SpreadAdjustment(-250).Equal(d("0.4")))
}
