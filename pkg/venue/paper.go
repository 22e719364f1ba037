package venue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/mmbot/pkg/book"
	"github.com/uhyunpark/mmbot/pkg/bot"
	"github.com/uhyunpark/mmbot/pkg/market"
	"github.com/uhyunpark/mmbot/pkg/patch"
	"github.com/uhyunpark/mmbot/pkg/pricing"
)

var ErrOrderNotFound = errors.New("order not found")

// PaperAccount is an in-memory venue session. Patches are applied
// immediately and never fill; margin is the balance less what resting
// orders would lose at their stop.
type PaperAccount struct {
	mu          sync.RWMutex
	userID      string
	balance     decimal.Decimal
	instruments map[string]market.Instrument
	orders      map[string]map[string]book.Order
	positions   map[string]market.Position
}

func NewPaperAccount(userID string, balance decimal.Decimal, instruments ...market.Instrument) (*PaperAccount, error) {
	a := &PaperAccount{
		userID:      userID,
		balance:     balance,
		instruments: make(map[string]market.Instrument, len(instruments)),
		orders:      make(map[string]map[string]book.Order),
		positions:   make(map[string]market.Position),
	}
	for _, inst := range instruments {
		if err := inst.Validate(); err != nil {
			return nil, err
		}
		a.instruments[inst.Symbol] = inst
	}
	return a, nil
}

func (a *PaperAccount) UserID() string { return a.userID }

func (a *PaperAccount) NewUUID() string { return uuid.NewString() }

func (a *PaperAccount) Instruments() map[string]market.Instrument {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]market.Instrument, len(a.instruments))
	for k, v := range a.instruments {
		out[k] = v
	}
	return out
}

func (a *PaperAccount) Positions() map[string]market.Position {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]market.Position, len(a.positions))
	for k, v := range a.positions {
		out[k] = v
	}
	return out
}

// SetPosition overrides the held position (tests, manual adjustments)
func (a *PaperAccount) SetPosition(pos market.Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions[pos.Symbol] = pos
}

func (a *PaperAccount) OpenOrders() (map[string]map[string]book.Order, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]map[string]book.Order, len(a.orders))
	for sym, byID := range a.orders {
		cp := make(map[string]book.Order, len(byID))
		for id, o := range byID {
			cp[id] = o
		}
		out[sym] = cp
	}
	return out, nil
}

// AvailableMarginIfCrossShifted charges each order's stop loss against the balance
func (a *PaperAccount) AvailableMarginIfCrossShifted(openOrders map[string]map[string]book.Order) decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	free := a.balance
	for sym, orders := range openOrders {
		inst, ok := a.instruments[sym]
		if !ok {
			continue
		}
		for _, o := range orders {
			cost, err := pricing.SatoshiPerQuantity(inst, &market.Band{Price: o.Price}, decimal.Zero, o.StopPrice)
			if err != nil {
				continue
			}
			free = free.Sub(cost.Mul(decimal.NewFromInt(o.Remaining())))
		}
	}
	return free
}

// PatchOrders applies ops in order. A failing op is reported in its result
// and does not stop the ones after it.
func (a *PaperAccount) PatchOrders(ctx context.Context, ops []patch.Op) (patch.Response, error) {
	if err := ctx.Err(); err != nil {
		return patch.Response{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	resp := patch.Response{Result: make([]patch.Result, 0, len(ops))}
	for _, op := range ops {
		res := patch.Result{Op: op.Op}
		if err := a.apply(op); err != nil {
			res.Error = err.Error()
		}
		resp.Result = append(resp.Result, res)
	}
	return resp, nil
}

func (a *PaperAccount) apply(op patch.Op) error {
	switch op.Op {
	case patch.OpRemove:
		ids, ok := op.Value.([]string)
		if !ok {
			return fmt.Errorf("remove: unexpected value %T", op.Value)
		}
		var missing int
		for _, id := range ids {
			if !a.remove(id) {
				missing++
			}
		}
		if missing > 0 {
			return fmt.Errorf("remove: %d of %d: %w", missing, len(ids), ErrOrderNotFound)
		}
	case patch.OpReplace:
		reprices, ok := op.Value.([]patch.Reprice)
		if !ok {
			return fmt.Errorf("replace: unexpected value %T", op.Value)
		}
		for _, r := range reprices {
			if !a.reprice(r) {
				return fmt.Errorf("replace %s: %w", r.UUID, ErrOrderNotFound)
			}
		}
	case patch.OpAdd:
		orders, ok := op.Value.([]book.Order)
		if !ok {
			return fmt.Errorf("add: unexpected value %T", op.Value)
		}
		for _, o := range orders {
			if _, known := a.instruments[o.Instrument]; !known {
				return fmt.Errorf("add: unknown instrument %s", o.Instrument)
			}
			if o.UUID == "" {
				o.UUID = uuid.NewString()
			}
			if a.orders[o.Instrument] == nil {
				a.orders[o.Instrument] = make(map[string]book.Order)
			}
			a.orders[o.Instrument][o.UUID] = o
		}
	case patch.OpMerge:
		if _, ok := op.Value.([]string); !ok {
			return fmt.Errorf("merge: unexpected value %T", op.Value)
		}
		// groups are consolidated venue side; nothing rests differently here
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
	return nil
}

var _ bot.Account = (*PaperAccount)(nil)

func (a *PaperAccount) remove(id string) bool {
	for _, byID := range a.orders {
		if _, ok := byID[id]; ok {
			delete(byID, id)
			return true
		}
	}
	return false
}

func (a *PaperAccount) reprice(r patch.Reprice) bool {
	for _, byID := range a.orders {
		if o, ok := byID[r.UUID]; ok {
			o.Price = r.Price
			byID[r.UUID] = o
			return true
		}
	}
	return false
}
