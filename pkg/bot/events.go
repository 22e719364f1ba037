package bot

import (
	"github.com/uhyunpark/mmbot/pkg/market"
	"github.com/uhyunpark/mmbot/pkg/patch"
)

// pending is what the listeners have observed since the loop last drained.
// Any number of events collapse into one set of flags and the latest band.
type pending struct {
	jobs     jobs
	band     *market.Band
	mergeAck bool // a merge was acknowledged; reprice if no band is known
	counters counters
}

// Listeners is the callback table a market-data or account stream feeds
type Listeners struct {
	Trade       func()
	PriceBand   func(bands map[string]market.Band)
	UserMessage func()
	OrderPatch  func(resp patch.Response)
}

func (b *Bot) Listeners() Listeners {
	return Listeners{
		Trade:       b.OnTrade,
		PriceBand:   b.OnPriceBand,
		UserMessage: b.OnUserMessage,
		OrderPatch:  b.OnOrderPatch,
	}
}

func (b *Bot) OnTrade() {
	b.signal(func(p *pending) {
		p.counters.trade++
		p.jobs.movePrice = true
	})
}

// OnPriceBand takes bands for every symbol; only this bot's symbol is kept
func (b *Bot) OnPriceBand(bands map[string]market.Band) {
	band, ok := bands[b.cfg.Symbol]
	b.signal(func(p *pending) {
		p.counters.band++
		if !ok {
			return
		}
		p.band = &band
		p.jobs.movePrice = true
	})
}

func (b *Bot) OnUserMessage() {
	b.signal(func(p *pending) { p.jobs.merge = true })
}

func (b *Bot) OnOrderPatch(resp patch.Response) {
	itemErr, mergeAck := b.scanAck(resp)
	b.signal(func(p *pending) {
		p.jobs.merge = p.jobs.merge || itemErr
		p.mergeAck = p.mergeAck || mergeAck
	})
}

// signal records an event and wakes the loop. It never blocks: a wake-up
// already queued covers this one too.
func (b *Bot) signal(update func(*pending)) {
	b.pendingMu.Lock()
	update(&b.pending)
	b.pendingMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// drain folds everything signalled so far into the loop's own state. Runs on
// the loop goroutine.
func (b *Bot) drain() {
	b.pendingMu.Lock()
	p := b.pending
	b.pending = pending{}
	b.pendingMu.Unlock()

	if p.band != nil {
		b.band = p.band
	}
	b.jobs.movePrice = b.jobs.movePrice || p.jobs.movePrice
	b.jobs.merge = b.jobs.merge || p.jobs.merge
	if p.mergeAck && !b.band.Known() {
		b.jobs.movePrice = true
	}
	b.counters.trade += p.counters.trade
	b.counters.band += p.counters.band
}

// applyAck inspects a venue reply on the loop goroutine. An item error forces
// a merge resync; a merge acknowledged before any band is known forces a
// reprice.
func (b *Bot) applyAck(resp patch.Response) {
	itemErr, mergeAck := b.scanAck(resp)
	if itemErr {
		b.jobs.merge = true
	}
	if mergeAck && !b.band.Known() {
		b.jobs.movePrice = true
	}
}

// scanAck stops at the first item error; merges after it are not counted
func (b *Bot) scanAck(resp patch.Response) (itemErr, mergeAck bool) {
	for _, r := range resp.Result {
		if r.Error != "" {
			b.log.Warnw("patch_item_error", "op", string(r.Op), "err", r.Error)
			return true, mergeAck
		}
		if r.Op == patch.OpMerge {
			mergeAck = true
		}
	}
	return false, mergeAck
}
