package bot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/mmbot/pkg/book"
	"github.com/uhyunpark/mmbot/pkg/market"
	"github.com/uhyunpark/mmbot/pkg/patch"
	"github.com/uhyunpark/mmbot/pkg/strategy"
	"github.com/uhyunpark/mmbot/pkg/util"
)

const (
	DefaultTickInterval = 100 * time.Millisecond
	heartbeatInterval   = time.Minute
)

// Config is the per-symbol quoting setup
type Config struct {
	Symbol        string
	Strategy      strategy.Params
	Cross         bool
	Target        string
	MarginPercent decimal.Decimal
	TickInterval  time.Duration
}

type jobs struct {
	movePrice bool
	merge     bool
}

type counters struct {
	trade int
	band  int
}

// Bot quotes one symbol. Run owns the job flags and the cached band; the
// listeners only record into pending and never wait on the loop.
type Bot struct {
	cfg       Config
	account   Account
	engine    *strategy.Engine
	clock     util.Clock
	log       *zap.SugaredLogger
	recorders []Recorder

	engineOpts []strategy.Option

	mu            sync.RWMutex
	marginPercent decimal.Decimal

	pendingMu sync.Mutex
	pending   pending
	wake      chan struct{}

	done    chan struct{}
	runOnce sync.Once
	runErr  error

	// owned by Run
	band          *market.Band
	jobs          jobs
	counters      counters
	lastHeartbeat time.Time
}

type Option func(*Bot)

func WithClock(c util.Clock) Option {
	return func(b *Bot) { b.clock = c }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(b *Bot) { b.log = l }
}

// WithRecorder registers r to receive every submitted batch
func WithRecorder(r Recorder) Option {
	return func(b *Bot) { b.recorders = append(b.recorders, r) }
}

// WithStrategyOptions passes options through to the strategy engine
func WithStrategyOptions(opts ...strategy.Option) Option {
	return func(b *Bot) { b.engineOpts = append(b.engineOpts, opts...) }
}

func New(cfg Config, account Account, opts ...Option) (*Bot, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol required to create bot", ErrPrecondition)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: account required", ErrPrecondition)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Target == "" {
		cfg.Target = book.TargetNone
	}

	b := &Bot{
		cfg:           cfg,
		account:       account,
		clock:         util.RealClock{},
		log:           zap.NewNop().Sugar(),
		marginPercent: cfg.MarginPercent,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		jobs:          jobs{movePrice: true, merge: true},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("symbol", cfg.Symbol)

	engine, err := strategy.NewEngine(cfg.Strategy, b.newOrder, b.engineOpts...)
	if err != nil {
		return nil, err
	}
	b.engine = engine
	return b, nil
}

// Launch creates the bot, seeds it from info and starts its loop in the background
func Launch(ctx context.Context, cfg Config, account Account, info InfoSource, opts ...Option) (*Bot, error) {
	b, err := New(cfg, account, opts...)
	if err != nil {
		return nil, err
	}
	if err := b.Start(ctx, info); err != nil {
		return nil, err
	}
	go func() { _ = b.Run(ctx) }()
	return b, nil
}

// Start validates the configuration against the instrument and seeds the
// band from the venue's index prices. It must be called before Run.
func (b *Bot) Start(ctx context.Context, info InfoSource) error {
	inst, err := b.instrument()
	if err != nil {
		return err
	}
	if b.cfg.Cross {
		b.engine.SetStop(inst.CrossMarginInitialStop)
	}
	if err := b.engine.CheckTick(inst.Tick()); err != nil {
		return err
	}

	p := b.engine.Params()
	b.log.Infow("bot_params",
		"strategy", p.Kind.String(),
		"margin_percent", b.MarginPercent().String(),
		"depth", p.Depth.String(),
		"spread", b.engine.Spread().String(),
		"step", p.Step.String(),
		"stop", p.Stop.String(),
		"target", b.cfg.Target,
		"quantity", p.Quantity,
		"max_qty", p.MaxQty,
		"cross", b.cfg.Cross,
		"premium", p.Premium.String())

	prices, err := info.IndexPrices(ctx)
	if err != nil {
		return fmt.Errorf("fetch index prices: %w", err)
	}
	price, ok := prices[b.cfg.Symbol]
	if !ok {
		return fmt.Errorf("%w: no index price for %s", ErrPrecondition, b.cfg.Symbol)
	}
	b.band = &market.Band{Price: price}
	b.log.Infow("band_seeded", "price", price.String())
	return nil
}

func (b *Bot) Symbol() string { return b.cfg.Symbol }

func (b *Bot) MarginPercent() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.marginPercent
}

func (b *Bot) SetMarginPercent(p decimal.Decimal) {
	b.mu.Lock()
	b.marginPercent = p
	b.mu.Unlock()
	b.log.Infow("margin_percent_updated", "margin_percent", p.String())
}

// IsExpired reports whether the instrument has entered its cleanup window
func (b *Bot) IsExpired() bool {
	return !b.isActive()
}

// Done is closed once Run has returned
func (b *Bot) Done() <-chan struct{} { return b.done }

// Err returns Run's result once Done is closed
func (b *Bot) Err() error {
	select {
	case <-b.done:
		return b.runErr
	default:
		return nil
	}
}

// Shutdown cancels every resting limit order for the symbol. Stops and
// targets are left to protect open positions.
// Stop waits up to grace for Run to return, then cancels the resting limits.
// The caller cancels Run's context first so no tick can add orders after the
// cancel patch lands.
func (b *Bot) Stop(ctx context.Context, grace time.Duration) (bool, error) {
	select {
	case <-b.done:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-b.clock.After(grace):
		b.log.Warnw("loop_still_running", "grace", grace)
	}
	return b.Shutdown(ctx)
}

func (b *Bot) Shutdown(ctx context.Context) (bool, error) {
	orders, err := b.openOrders()
	if err != nil {
		return false, err
	}
	if ops := patch.CancelPatch(orders); ops != nil {
		if _, err := b.patchOrders(ctx, "shutdown", ops); err != nil {
			return false, err
		}
	}
	b.log.Infow("bot_shutdown")
	return true, nil
}

func (b *Bot) newOrder(side book.Side, price decimal.Decimal, qty int64) book.Order {
	if qty <= 0 {
		qty = 1
	}
	return book.Order{
		ClientID:    b.account.NewUUID(),
		UserID:      b.account.UserID(),
		Instrument:  b.cfg.Symbol,
		Side:        side,
		Price:       price,
		Quantity:    qty,
		OrderType:   book.Limit,
		StopPrice:   b.engine.Params().Stop,
		TargetPrice: b.cfg.Target,
		CrossMargin: b.cfg.Cross,
	}
}

func (b *Bot) instrument() (market.Instrument, error) {
	inst, ok := b.account.Instruments()[b.cfg.Symbol]
	if !ok {
		return market.Instrument{}, fmt.Errorf("%w: instrument %s unavailable", ErrPrecondition, b.cfg.Symbol)
	}
	return inst, nil
}

func (b *Bot) position() *market.Position {
	pos, ok := b.account.Positions()[b.cfg.Symbol]
	if !ok {
		return nil
	}
	return &pos
}

// openOrders returns this symbol's open orders sorted by UUID so that
// "first encountered" is stable between passes.
func (b *Bot) openOrders() ([]book.Order, error) {
	all, err := b.account.OpenOrders()
	if err != nil {
		return nil, fmt.Errorf("open orders: %w", err)
	}
	if all == nil {
		return nil, fmt.Errorf("%w: invalid return for open orders", ErrPrecondition)
	}
	mine := all[b.cfg.Symbol]
	orders := make([]book.Order, 0, len(mine))
	for _, o := range mine {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].UUID < orders[j].UUID })
	return orders, nil
}

// patchOrders submits ops and notifies recorders. It does not touch loop state.
func (b *Bot) patchOrders(ctx context.Context, pass string, ops []patch.Op) (patch.Response, error) {
	resp, err := b.account.PatchOrders(ctx, ops)

	rec := PatchRecord{Symbol: b.cfg.Symbol, Pass: pass, At: b.clock.Now(), Ops: ops, Result: resp.Result}
	if err != nil {
		rec.Error = err.Error()
	}
	for _, r := range b.recorders {
		if rerr := r.Record(rec); rerr != nil {
			b.log.Warnw("record_patch_failed", "pass", pass, "err", rerr)
		}
	}

	if err != nil {
		return resp, fmt.Errorf("patch orders: %w", err)
	}
	counts := patch.Counts(ops)
	b.log.Infow("patch_submitted",
		"pass", pass,
		"remove", counts[patch.OpRemove],
		"replace", counts[patch.OpReplace],
		"add", counts[patch.OpAdd],
		"merge", counts[patch.OpMerge],
		"venue_errors", resp.HasError())
	return resp, nil
}
