package strategy

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/mmbot/pkg/book"
	"github.com/uhyunpark/mmbot/pkg/market"
	"github.com/uhyunpark/mmbot/pkg/pricing"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrInvalidParams   = errors.New("invalid strategy params")
)

// Kind selects how the desired book is laid out
type Kind int8

const (
	Collar Kind = iota // margin-aware symmetric ladder (default)
	Random             // randomized sizes and offsets, no margin awareness
)

func (k Kind) String() string {
	switch k {
	case Collar:
		return "collar"
	case Random:
		return "random"
	default:
		return "unknown"
	}
}

// ParseKind maps a configured strategy name to a Kind. An empty name selects Collar.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "collar":
		return Collar, nil
	case "random":
		return Random, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Params are the configured ladder shape
type Params struct {
	Kind     Kind
	Spread   decimal.Decimal // band → nearest level
	Step     decimal.Decimal // level spacing
	Depth    decimal.Decimal // ladder extent (collar) or quantity budget (random)
	Quantity int64           // contracts per collar level
	MaxQty   int64           // per-side resting cap before inventory adjustment
	Premium  decimal.Decimal // bps per day applied towards expiry
	Stop     decimal.Decimal // stop distance used for margin sizing
}

func (p Params) Validate() error {
	if !p.Spread.IsPositive() {
		return fmt.Errorf("%w: spread must be positive", ErrInvalidParams)
	}
	if !p.Step.IsPositive() {
		return fmt.Errorf("%w: step must be positive", ErrInvalidParams)
	}
	if !p.Depth.IsPositive() {
		return fmt.Errorf("%w: depth must be positive", ErrInvalidParams)
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidParams)
	}
	if p.MaxQty <= 0 {
		return fmt.Errorf("%w: max quantity must be positive", ErrInvalidParams)
	}
	return nil
}

// OrderFactory stamps a new limit order with the account's identifiers
type OrderFactory func(side book.Side, price decimal.Decimal, qty int64) book.Order

// SpreadSource can override the configured spread at runtime
type SpreadSource interface {
	Spread() (decimal.Decimal, bool)
}

// Inputs is the market and account state one Build works from
type Inputs struct {
	Price      decimal.Decimal
	Now        time.Time
	Instrument market.Instrument
	Band       *market.Band
	Position   *market.Position

	// AvailableMargin is only consulted by strategies that size by margin
	AvailableMargin func() (decimal.Decimal, error)
}

type Engine struct {
	params   Params
	newOrder OrderFactory
	spreads  SpreadSource
	rng      *rand.Rand
}

type Option func(*Engine)

// WithSpreadSource lets src override Params.Spread
func WithSpreadSource(src SpreadSource) Option {
	return func(e *Engine) { e.spreads = src }
}

// WithRand fixes the random source (tests)
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

func NewEngine(p Params, newOrder OrderFactory, opts ...Option) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if newOrder == nil {
		return nil, fmt.Errorf("%w: order factory required", ErrInvalidParams)
	}
	e := &Engine{
		params:   p,
		newOrder: newOrder,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Params() Params { return e.params }

// SetStop replaces the stop distance (cross-margin instruments dictate their own)
func (e *Engine) SetStop(stop decimal.Decimal) { e.params.Stop = stop }

// Spread returns the runtime override when present, else the configured spread
func (e *Engine) Spread() decimal.Decimal {
	if e.spreads != nil {
		if s, ok := e.spreads.Spread(); ok && s.IsPositive() {
			return s
		}
	}
	return e.params.Spread
}

// CheckTick rejects ladders finer than the instrument can quote
func (e *Engine) CheckTick(tick decimal.Decimal) error {
	if spread := e.Spread(); spread.LessThan(tick) {
		return fmt.Errorf("%w: spread %s is less than tick %s", ErrInvalidParams, spread, tick)
	}
	if e.params.Step.LessThan(tick) {
		return fmt.Errorf("%w: step %s is less than tick %s", ErrInvalidParams, e.params.Step, tick)
	}
	return nil
}

// Build lays out the desired book around in.Price
func (e *Engine) Build(in Inputs) (book.Book, error) {
	if !in.Price.IsPositive() {
		return book.Book{}, fmt.Errorf("%w: numeric price required, got %s", pricing.ErrPrecondition, in.Price)
	}
	switch e.params.Kind {
	case Collar:
		return e.collar(in)
	case Random:
		return e.random(in), nil
	default:
		return book.Book{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, e.params.Kind)
	}
}

func (e *Engine) premium(in Inputs) decimal.Decimal {
	return pricing.Premium(in.Instrument.Expiry.Sub(in.Now), e.params.Premium)
}
