package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uhyunpark/mmbot/params"
	"github.com/uhyunpark/mmbot/pkg/api"
	"github.com/uhyunpark/mmbot/pkg/bot"
	"github.com/uhyunpark/mmbot/pkg/storage"
	"github.com/uhyunpark/mmbot/pkg/strategy"
	"github.com/uhyunpark/mmbot/pkg/util"
	"github.com/uhyunpark/mmbot/pkg/venue"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, util.ParseLevel(cfg.Node.LogLevel))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	strat, err := cfg.Bot.StrategyParams()
	if err != nil {
		sugar.Fatalw("invalid_strategy_config", "err", err)
	}

	// ---- Account: paper session quoting the configured instrument ----
	inst, err := cfg.Paper.Instrument(cfg.Bot.Symbol, time.Now())
	if err != nil {
		sugar.Fatalw("invalid_instrument_config", "err", err)
	}
	account, err := venue.NewPaperAccount(cfg.Paper.UserID, cfg.Paper.Balance, inst)
	if err != nil {
		sugar.Fatalw("paper_account_failed", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Recorders ----
	hub := api.NewHub(sugar)
	spreads := &strategy.SpreadOverride{}
	opts := []bot.Option{
		bot.WithLogger(sugar),
		bot.WithRecorder(hub),
		bot.WithStrategyOptions(strategy.WithSpreadSource(spreads)),
	}

	var journal *storage.Journal
	if cfg.Node.JournalPath != "" {
		journal, err = storage.OpenJournal(cfg.Node.JournalPath)
		if err != nil {
			sugar.Fatalw("journal_open_failed", "path", cfg.Node.JournalPath, "err", err)
		}
		defer journal.Close()
		opts = append(opts, bot.WithRecorder(journal))
		sugar.Infow("journal_enabled", "path", cfg.Node.JournalPath)
	}

	// ---- Bot ----
	botCfg := bot.Config{
		Symbol:        cfg.Bot.Symbol,
		Strategy:      strat,
		Cross:         cfg.Bot.Cross,
		Target:        cfg.Bot.Target,
		MarginPercent: cfg.Bot.MarginPercent,
	}
	b, err := bot.Launch(ctx, botCfg, account, venue.NewInfoClient(cfg.Venue.BaseURL), opts...)
	if err != nil {
		sugar.Fatalw("bot_start_failed", "err", err)
	}

	// ---- Event stream ----
	router := venue.NewRouter(cfg.Venue.StreamURL, sugar)
	router.Add(b.Listeners())
	go func() {
		if err := router.Run(ctx); err != nil && ctx.Err() == nil {
			sugar.Errorw("stream_failed", "err", err)
		}
	}()

	// ---- API Server ----
	var patches api.PatchLog
	if journal != nil {
		patches = journal
	}
	apiServer := api.NewServer(b, patches, hub, sugar)
	apiServer.EnableSpreadOverride(spreads)
	go func() {
		if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	select {
	case <-ctx.Done():
		sugar.Infow("signal_received")
	case <-b.Done():
		sugar.Infow("bot_stopped", "err", b.Err())
	}

	// Let the loop finish its tick, then cancel resting limits; stops and
	// targets stay to protect positions
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := b.Stop(shutdownCtx, 5*time.Second); err != nil {
		sugar.Errorw("bot_shutdown_failed", "err", err)
	}
}
