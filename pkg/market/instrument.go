package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ContractType defines the settlement convention of a contract
type ContractType int8

const (
	Inverse ContractType = iota + 1 // Margined in the base coin, quoted in USD
	Quanto                          // Fixed value per point, margined in the settlement coin
)

func (ct ContractType) String() string {
	switch ct {
	case Inverse:
		return "inverse"
	case Quanto:
		return "quanto"
	default:
		return "unknown"
	}
}

// ParseContractType maps the venue's instrument type field to a ContractType
func ParseContractType(s string) (ContractType, error) {
	switch s {
	case "inverse":
		return Inverse, nil
	case "quanto":
		return Quanto, nil
	default:
		return 0, fmt.Errorf("unknown contract type %q", s)
	}
}

// ExpiryClass groups instruments by listing duration
type ExpiryClass string

const (
	FiveMinutes ExpiryClass = "fiveMinutes"
	Daily       ExpiryClass = "daily"
	Weekly      ExpiryClass = "weekly"
)

// CleanupWindow is how long before expiry the bot stops quoting an instrument.
// Short-lived contracts get a tighter window so they are quoted for most of their life.
func (ec ExpiryClass) CleanupWindow() time.Duration {
	if ec == FiveMinutes {
		return time.Minute
	}
	return 5 * time.Minute
}

// Instrument is the venue's static metadata for a tradable symbol
type Instrument struct {
	Symbol string
	Type   ContractType

	// TickSize is the number of decimal places prices are quantized to
	// (TickSize=1 → 0.1 resolution)
	TickSize      int32
	TicksPerPoint decimal.Decimal
	TickValue     decimal.Decimal

	Expiry      time.Time
	ExpiryClass ExpiryClass

	ContractUSDValue       decimal.Decimal
	StopCushion            decimal.Decimal
	CrossMarginInitialStop decimal.Decimal
}

// Validate checks the fields the pricing math depends on
func (i Instrument) Validate() error {
	if i.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if i.Type != Inverse && i.Type != Quanto {
		return fmt.Errorf("instrument %s: unknown contract type %d", i.Symbol, i.Type)
	}
	if i.TickSize < 0 {
		return fmt.Errorf("instrument %s: tick size cannot be negative", i.Symbol)
	}
	if !i.TicksPerPoint.IsPositive() {
		return fmt.Errorf("instrument %s: ticks per point must be positive", i.Symbol)
	}
	if i.Expiry.IsZero() {
		return fmt.Errorf("instrument %s: expiry must be set", i.Symbol)
	}
	return nil
}

// Tick returns the minimum price increment (1 / TicksPerPoint)
func (i Instrument) Tick() decimal.Decimal {
	return decimal.NewFromInt(1).Div(i.TicksPerPoint)
}

// ActiveAt reports whether the instrument can still be quoted at now.
// Quoting stops one cleanup window before expiry.
func (i Instrument) ActiveAt(now time.Time) bool {
	return !now.After(i.Expiry.Add(-i.ExpiryClass.CleanupWindow()))
}

// Position is the account's signed exposure in a symbol (positive = long)
type Position struct {
	Symbol   string
	Quantity int64
}

// IsFlat reports whether p carries no exposure; a nil position is flat
func (p *Position) IsFlat() bool {
	return p == nil || p.Quantity == 0
}

// Band is the latest reference price for a symbol.
// Bands are replaced wholesale on every market-data update.
type Band struct {
	Price decimal.Decimal
}

// Known reports whether the band carries a usable price
func (b *Band) Known() bool {
	return b != nil && b.Price.IsPositive()
}
