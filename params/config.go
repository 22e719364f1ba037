package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/mmbot/pkg/market"
	"github.com/uhyunpark/mmbot/pkg/strategy"
)

// Bot is the quoting configuration for one symbol
type Bot struct {
	Symbol        string
	Strategy      string // "collar" (default) or "random"
	Spread        decimal.Decimal
	Step          decimal.Decimal
	Depth         decimal.Decimal
	Quantity      int64
	MaxQty        int64
	Premium       decimal.Decimal // bps per day
	Stop          decimal.Decimal
	Target        string // venue take-profit on new orders, "NONE" to disable
	Cross         bool
	MarginPercent decimal.Decimal
}

type Venue struct {
	BaseURL   string // REST root, used for /all/info
	StreamURL string // websocket event stream
}

// Paper describes the in-memory account and the instrument it quotes
type Paper struct {
	UserID                 string
	Balance                decimal.Decimal
	ContractType           string // "inverse" or "quanto"
	TickSize               int32
	TicksPerPoint          decimal.Decimal
	TickValue              decimal.Decimal
	Expiry                 time.Time
	ExpiryClass            string
	ContractUSDValue       decimal.Decimal
	StopCushion            decimal.Decimal
	CrossMarginInitialStop decimal.Decimal
}

type Node struct {
	APIAddr     string
	LogFile     string
	LogLevel    string
	JournalPath string // empty disables the patch journal
}

type Config struct {
	Bot   Bot
	Venue Venue
	Paper Paper
	Node  Node
}

func Default() Config {
	return Config{
		Bot: Bot{
			Symbol:        "BTCUSD7H",
			Strategy:      "collar",
			Spread:        decimal.NewFromInt(2),
			Step:          decimal.NewFromInt(1),
			Depth:         decimal.NewFromInt(10),
			Quantity:      1,
			MaxQty:        10,
			Premium:       decimal.Zero,
			Stop:          decimal.NewFromInt(10),
			Target:        "NONE",
			MarginPercent: decimal.NewFromInt(100),
		},
		Venue: Venue{
			BaseURL:   "http://localhost:9000",
			StreamURL: "ws://localhost:9000/ws",
		},
		Paper: Paper{
			UserID:                 "paper",
			Balance:                decimal.NewFromInt(100_000_000),
			ContractType:           "quanto",
			TickSize:               1,
			TicksPerPoint:          decimal.NewFromInt(10),
			TickValue:              decimal.NewFromInt(1),
			ExpiryClass:            string(market.Daily),
			ContractUSDValue:       decimal.NewFromInt(1),
			StopCushion:            decimal.NewFromInt(1),
			CrossMarginInitialStop: decimal.NewFromInt(25),
		},
		Node: Node{
			APIAddr:  ":8080",
			LogFile:  "data/mmbot.log",
			LogLevel: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.Bot.Symbol = getEnv("MM_SYMBOL", cfg.Bot.Symbol)
	cfg.Bot.Strategy = getEnv("MM_STRATEGY", cfg.Bot.Strategy)
	cfg.Bot.Target = getEnv("MM_TARGET", cfg.Bot.Target)
	cfg.Venue.BaseURL = getEnv("MM_BASE_URL", cfg.Venue.BaseURL)
	cfg.Venue.StreamURL = getEnv("MM_STREAM_URL", cfg.Venue.StreamURL)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.JournalPath = getEnv("JOURNAL_PATH", cfg.Node.JournalPath)
	cfg.Paper.UserID = getEnv("PAPER_USER_ID", cfg.Paper.UserID)
	cfg.Paper.ContractType = getEnv("PAPER_CONTRACT_TYPE", cfg.Paper.ContractType)
	cfg.Paper.ExpiryClass = getEnv("PAPER_EXPIRY_CLASS", cfg.Paper.ExpiryClass)

	decimals := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"MM_SPREAD", &cfg.Bot.Spread},
		{"MM_STEP", &cfg.Bot.Step},
		{"MM_DEPTH", &cfg.Bot.Depth},
		{"MM_PREMIUM", &cfg.Bot.Premium},
		{"MM_STOP", &cfg.Bot.Stop},
		{"MM_MARGIN_PERCENT", &cfg.Bot.MarginPercent},
		{"PAPER_BALANCE", &cfg.Paper.Balance},
		{"PAPER_TICKS_PER_POINT", &cfg.Paper.TicksPerPoint},
		{"PAPER_TICK_VALUE", &cfg.Paper.TickValue},
		{"PAPER_CONTRACT_USD_VALUE", &cfg.Paper.ContractUSDValue},
		{"PAPER_STOP_CUSHION", &cfg.Paper.StopCushion},
		{"PAPER_CROSS_STOP", &cfg.Paper.CrossMarginInitialStop},
	}
	for _, d := range decimals {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := decimal.NewFromString(v)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int64
	}{
		{"MM_QUANTITY", &cfg.Bot.Quantity},
		{"MM_MAX_QTY", &cfg.Bot.MaxQty},
	}
	for _, i := range ints {
		if v := os.Getenv(i.key); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", i.key, err)
			}
			*i.dst = parsed
		}
	}

	if cross := os.Getenv("MM_CROSS"); cross != "" {
		cfg.Bot.Cross = cross == "true"
	}
	if ts := os.Getenv("PAPER_TICK_SIZE"); ts != "" {
		parsed, err := strconv.ParseInt(ts, 10, 32)
		if err != nil {
			return cfg, fmt.Errorf("PAPER_TICK_SIZE: %w", err)
		}
		cfg.Paper.TickSize = int32(parsed)
	}
	if exp := os.Getenv("PAPER_EXPIRY"); exp != "" {
		parsed, err := time.Parse(time.RFC3339, exp)
		if err != nil {
			return cfg, fmt.Errorf("PAPER_EXPIRY: %w", err)
		}
		cfg.Paper.Expiry = parsed
	}

	return cfg, nil
}

// StrategyParams converts the bot section into strategy parameters
func (b Bot) StrategyParams() (strategy.Params, error) {
	kind, err := strategy.ParseKind(strings.ToLower(b.Strategy))
	if err != nil {
		return strategy.Params{}, err
	}
	p := strategy.Params{
		Kind:     kind,
		Spread:   b.Spread,
		Step:     b.Step,
		Depth:    b.Depth,
		Quantity: b.Quantity,
		MaxQty:   b.MaxQty,
		Premium:  b.Premium,
		Stop:     b.Stop,
	}
	return p, p.Validate()
}

// Instrument builds the paper instrument for symbol. A zero expiry means
// the instrument expires a day after now.
func (p Paper) Instrument(symbol string, now time.Time) (market.Instrument, error) {
	ct, err := market.ParseContractType(p.ContractType)
	if err != nil {
		return market.Instrument{}, err
	}
	expiry := p.Expiry
	if expiry.IsZero() {
		expiry = now.Add(24 * time.Hour)
	}
	inst := market.Instrument{
		Symbol:                 symbol,
		Type:                   ct,
		TickSize:               p.TickSize,
		TicksPerPoint:          p.TicksPerPoint,
		TickValue:              p.TickValue,
		Expiry:                 expiry,
		ExpiryClass:            market.ExpiryClass(p.ExpiryClass),
		ContractUSDValue:       p.ContractUSDValue,
		StopCushion:            p.StopCushion,
		CrossMarginInitialStop: p.CrossMarginInitialStop,
	}
	return inst, inst.Validate()
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
