package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/mmbot/pkg/book"
	"github.com/uhyunpark/mmbot/pkg/patch"
	"github.com/uhyunpark/mmbot/pkg/pricing"
	"github.com/uhyunpark/mmbot/pkg/strategy"
)

const (
	mergeThreshold = 50
	mergeBatch     = 15
)

var errAlreadyRunning = errors.New("bot loop already running")

// Run drives the bot until the instrument leaves its active window (nil) or
// ctx is cancelled (ctx.Err()). Ticks never overlap: the next timer is only
// armed after the previous tick's submissions have returned.
func (b *Bot) Run(ctx context.Context) error {
	first := false
	b.runOnce.Do(func() { first = true })
	if !first {
		return errAlreadyRunning
	}
	defer close(b.done)

	b.lastHeartbeat = b.clock.Now()
	b.runErr = b.loop(ctx)
	return b.runErr
}

func (b *Bot) loop(ctx context.Context) error {
	for {
		b.drain()
		if !b.tick(ctx) {
			b.log.Infow("bot_inactive", "counters_trade", b.counters.trade, "counters_band", b.counters.band)
			return nil
		}

		timer := b.clock.After(b.cfg.TickInterval)
	wait:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-b.wake:
				b.drain()
			case <-timer:
				break wait
			}
		}
	}
}

// tick runs whichever passes are flagged and reports whether the loop
// should reschedule.
func (b *Bot) tick(ctx context.Context) bool {
	if !b.isActive() {
		return false
	}
	if b.jobs.movePrice {
		b.runPass("move_price", func() error { return b.movePricePass(ctx) })
	}
	if b.jobs.merge {
		b.runPass("merge", func() error { return b.mergePass(ctx) })
	}
	b.heartbeat()
	return true
}

// runPass confines a failure, including a panic, to the pass that raised it
func (b *Bot) runPass(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorw("pass_panic", "pass", name, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		b.log.Errorw("pass_failed", "pass", name, "err", err)
	}
}

func (b *Bot) movePricePass(ctx context.Context) error {
	if !b.band.Known() {
		b.jobs.movePrice = false
		b.log.Debugw("move_price_skipped", "reason", "band unknown")
		return nil
	}
	b.jobs.movePrice = false

	if err := b.removeDuplicateOrders(ctx); err != nil {
		return err
	}

	orders, err := b.openOrders()
	if err != nil {
		return err
	}
	inst, err := b.instrument()
	if err != nil {
		return err
	}
	current := book.FromOrders(orders)

	in := strategy.Inputs{
		Price:      b.band.Price,
		Now:        b.clock.Now(),
		Instrument: inst,
		Band:       b.band,
		Position:   b.position(),
		AvailableMargin: func() (decimal.Decimal, error) {
			all, err := b.account.OpenOrders()
			if err != nil {
				return decimal.Zero, fmt.Errorf("open orders: %w", err)
			}
			if all == nil {
				return decimal.Zero, fmt.Errorf("%w: invalid return for open orders", ErrPrecondition)
			}
			return pricing.AvailableMargin(b.account.AvailableMarginIfCrossShifted, all, b.MarginPercent()), nil
		},
	}
	desired, err := b.engine.Build(in)
	if err != nil {
		return fmt.Errorf("build desired book: %w", err)
	}

	ops := patch.Payload(patch.Optimize(book.Diff(&current, &desired)))
	if len(ops) == 0 {
		return nil
	}
	resp, err := b.patchOrders(ctx, "move_price", ops)
	if err != nil {
		return err
	}
	b.applyAck(resp)
	return nil
}

// removeDuplicateOrders cancels every limit order but the first at each
// price on a side, cleaning up after a replace that landed twice.
func (b *Bot) removeDuplicateOrders(ctx context.Context) error {
	orders, err := b.openOrders()
	if err != nil {
		return err
	}
	seen := make(map[book.Side]map[string]struct{}, 2)
	var dupes []book.Order
	for _, o := range orders {
		if o.OrderType != book.Limit {
			continue
		}
		prices, ok := seen[o.Side]
		if !ok {
			prices = make(map[string]struct{})
			seen[o.Side] = prices
		}
		key := o.Price.String()
		if _, dup := prices[key]; dup {
			dupes = append(dupes, o)
			continue
		}
		prices[key] = struct{}{}
	}

	ops := patch.CancelPatch(dupes)
	if ops == nil {
		return nil
	}
	b.log.Warnw("duplicate_orders", "count", len(dupes))
	resp, err := b.patchOrders(ctx, "dedupe", ops)
	if err != nil {
		return err
	}
	b.applyAck(resp)
	return nil
}

// mergePass consolidates the smallest partially-filled targets into one OCO
// group once they pile up past mergeThreshold.
func (b *Bot) mergePass(ctx context.Context) error {
	b.jobs.merge = false

	orders, err := b.openOrders()
	if err != nil {
		return err
	}
	var targets []book.Order
	for _, o := range orders {
		if o.OrderType == book.Target {
			targets = append(targets, o)
		}
	}
	if len(targets) <= mergeThreshold {
		return nil
	}

	sort.SliceStable(targets, func(i, j int) bool { return targets[i].Remaining() < targets[j].Remaining() })
	ids := make([]string, 0, mergeBatch)
	for _, t := range targets[:mergeBatch] {
		if t.OCO != "" {
			ids = append(ids, t.OCO)
		}
	}
	ops := patch.MergeOp(ids)
	if ops == nil {
		return nil
	}
	resp, err := b.patchOrders(ctx, "merge", ops)
	if err != nil {
		return err
	}
	b.applyAck(resp)
	return nil
}

func (b *Bot) isActive() bool {
	inst, err := b.instrument()
	if err != nil {
		b.log.Warnw("instrument_unavailable", "err", err)
		return false
	}
	return inst.ActiveAt(b.clock.Now())
}

func (b *Bot) heartbeat() {
	now := b.clock.Now()
	if now.Sub(b.lastHeartbeat) < heartbeatInterval {
		return
	}
	b.log.Infow("still_running", "trades", b.counters.trade, "bands", b.counters.band)
	b.counters = counters{}
	b.lastHeartbeat = now
}
