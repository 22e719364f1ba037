// Package pricing holds the premium, spread and margin arithmetic used to
// price and size generated orders. All amounts are decimals so ladder prices
// compare exactly when books are diffed.
package pricing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/mmbot/pkg/book"
	"github.com/uhyunpark/mmbot/pkg/market"
)

var (
	// ErrPrecondition marks inputs the margin math cannot work without
	ErrPrecondition = errors.New("pricing precondition failed")
	// ErrUnknownContract is returned for contract types other than inverse and quanto
	ErrUnknownContract = errors.New("unknown contract type")
)

var (
	one     = decimal.NewFromInt(1)
	half    = decimal.NewFromFloat(0.5)
	hundred = decimal.NewFromInt(100)
	satoshi = decimal.NewFromInt(100_000_000)

	// premium rates are quoted per day in basis points
	premiumDenominator = decimal.NewFromInt(86_400_000 * 10_000)
)

// Premium scales rate (bps per day) linearly by the time left to expiry.
// A negative rate prices at a discount.
func Premium(timeToExpiry time.Duration, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(timeToExpiry.Milliseconds()).Mul(rate).Div(premiumDenominator)
}

// PremiumPrice applies premium to price and rounds half-up to tickSize decimals
func PremiumPrice(price, premium decimal.Decimal, tickSize int32) decimal.Decimal {
	scale := decimal.New(1, tickSize)
	scaled := price.Mul(one.Add(premium)).Mul(scale)
	return scaled.Add(half).Floor().Div(scale)
}

// MarginEngine is the account's collateral model: free margin if the given
// open orders were all resting.
type MarginEngine func(openOrders map[string]map[string]book.Order) decimal.Decimal

// AvailableMargin returns the share of free collateral the bot may commit,
// floored to a whole unit. Stop orders are dropped from the snapshot first
// since they do not consume order margin. openOrders is not modified.
func AvailableMargin(engine MarginEngine, openOrders map[string]map[string]book.Order, marginPercent decimal.Decimal) decimal.Decimal {
	withoutStops := make(map[string]map[string]book.Order, len(openOrders))
	for symbol, orders := range openOrders {
		kept := make(map[string]book.Order, len(orders))
		for uuid, o := range orders {
			if o.OrderType != book.Stop {
				kept[uuid] = o
			}
		}
		withoutStops[symbol] = kept
	}
	return engine(withoutStops).Mul(marginPercent).Div(hundred).Floor()
}

// SatoshiPerQuantity is the margin-currency cost of one contract given the
// stop distance. depth and stop are the configured ladder depth and stop
// distance in points.
func SatoshiPerQuantity(inst market.Instrument, band *market.Band, depth, stop decimal.Decimal) (decimal.Decimal, error) {
	switch inst.Type {
	case market.Inverse:
		if !band.Known() {
			return decimal.Zero, fmt.Errorf("%w: band price unavailable", ErrPrecondition)
		}
		if !inst.StopCushion.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: instrument cushion unavailable", ErrPrecondition)
		}
		if !inst.ContractUSDValue.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: instrument contractusdvalue unavailable", ErrPrecondition)
		}
		entry := band.Price.Sub(depth)
		exit := entry.Sub(stop.Add(inst.StopCushion))
		if !exit.IsPositive() || !entry.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: stop exit %s not above zero", ErrPrecondition, exit)
		}
		spread := one.Div(exit).Sub(one.Div(entry))
		return inst.ContractUSDValue.Mul(satoshi).Mul(spread).Ceil(), nil
	case market.Quanto:
		return stop.Add(inst.StopCushion).Mul(inst.TicksPerPoint).Mul(inst.TickValue), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownContract, inst.Type)
	}
}

// MaxOrderCount caps the resting quantity on side. Inventory in the opposite
// direction raises the cap by exactly the position size, so the two caps
// always sum to 2*maxQty.
func MaxOrderCount(pos *market.Position, side book.Side, maxQty int64) int64 {
	if pos.IsFlat() {
		return maxQty
	}
	return maxQty - int64(side)*pos.Quantity
}

// SpreadAdjustment widens the spread on the side that would add to an
// existing position: one fifth of a point per hundred contracts held.
func SpreadAdjustment(positionQty int64) decimal.Decimal {
	if positionQty < 0 {
		positionQty = -positionQty
	}
	return decimal.NewFromInt(positionQty / 100).Div(decimal.NewFromInt(5))
}
