package book

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

func (s Side) MarshalText() ([]byte, error) {
	if s != Buy && s != Sell {
		return nil, fmt.Errorf("invalid side %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "buy":
		*s = Buy
	case "sell":
		*s = Sell
	default:
		return fmt.Errorf("invalid side %q", b)
	}
	return nil
}

// OrderType is the venue's order kind
type OrderType string

const (
	Limit  OrderType = "LMT" // resting limit
	Stop   OrderType = "STP" // stop-loss attached to a fill
	Target OrderType = "TGT" // take-profit attached to a fill
)

// TargetNone disables the venue-side take-profit on new limit orders
const TargetNone = "NONE"

// Order is a working copy of a venue order. The account owns the
// authoritative copy once it has been submitted.
type Order struct {
	UUID        string          `json:"uuid,omitempty"`
	ClientID    string          `json:"clientid,omitempty"`
	UserID      string          `json:"userid,omitempty"`
	Instrument  string          `json:"instrument"`
	Side        Side            `json:"side"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	OrderType   OrderType       `json:"orderType"`
	StopPrice   decimal.Decimal `json:"stopPrice"`
	TargetPrice string          `json:"targetPrice,omitempty"`
	CrossMargin bool            `json:"crossMargin"`
	Filled      int64           `json:"filled,omitempty"`
	Cancelled   int64           `json:"cancelled,omitempty"`
	OCO         string          `json:"oco,omitempty"`
}

// Remaining returns the quantity still to be filled
func (o Order) Remaining() int64 {
	return o.Quantity - o.Filled - o.Cancelled
}
