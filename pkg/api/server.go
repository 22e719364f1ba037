package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/mmbot/pkg/bot"
)

const defaultPatchLimit = 50

var hundred = decimal.NewFromInt(100)

// BotHandle is the slice of the bot the admin API drives
type BotHandle interface {
	Symbol() string
	MarginPercent() decimal.Decimal
	SetMarginPercent(p decimal.Decimal)
	IsExpired() bool
	Shutdown(ctx context.Context) (bool, error)
}

// PatchLog serves recorded batches, newest first
type PatchLog interface {
	List(symbol string, limit int) ([]bot.PatchRecord, error)
}

// SpreadControl overrides the configured spread at runtime
type SpreadControl interface {
	Set(spread decimal.Decimal)
	Clear()
	Spread() (decimal.Decimal, bool)
}

// Server handles the admin REST API and the patch stream
type Server struct {
	bot     BotHandle
	patches PatchLog      // nil when no journal is configured
	spreads SpreadControl // nil when the spread is fixed
	router  *mux.Router
	hub     *Hub
	log     *zap.SugaredLogger
}

// NewServer creates a new API server. hub may be nil; it is usually created
// first so the bot can record into it.
func NewServer(b BotHandle, patches PatchLog, hub *Hub, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if hub == nil {
		hub = NewHub(log)
	}
	s := &Server{
		bot:     b,
		patches: patches,
		router:  mux.NewRouter(),
		hub:     hub,
		log:     log,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/bot", s.handleGetBot).Methods("GET")
	api.HandleFunc("/bot/margin", s.handleSetMargin).Methods("PUT")
	api.HandleFunc("/bot/shutdown", s.handleShutdown).Methods("POST")
	api.HandleFunc("/bot/patches", s.handleGetPatches).Methods("GET")
	api.HandleFunc("/bot/spread", s.handleGetSpread).Methods("GET")
	api.HandleFunc("/bot/spread", s.handleSetSpread).Methods("PUT")
	api.HandleFunc("/bot/spread", s.handleClearSpread).Methods("DELETE")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// EnableSpreadOverride exposes c on /api/v1/bot/spread
func (s *Server) EnableSpreadOverride(c SpreadControl) { s.spreads = c }

// Hub is the recorder that streams batches to WebSocket clients
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router wrapped in the CORS policy
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetBot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, BotStatus{
		Symbol:        s.bot.Symbol(),
		MarginPercent: s.bot.MarginPercent().String(),
		Expired:       s.bot.IsExpired(),
	})
}

func (s *Server) handleSetMargin(w http.ResponseWriter, r *http.Request) {
	var req MarginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if req.MarginPercent.IsNegative() || req.MarginPercent.GreaterThan(hundred) {
		respondError(w, http.StatusBadRequest, "invalid margin percent", "marginPercent must be between 0 and 100")
		return
	}

	s.bot.SetMarginPercent(req.MarginPercent)
	s.handleGetBot(w, r)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	done, err := s.bot.Shutdown(r.Context())
	if err != nil {
		s.log.Errorw("api_shutdown_failed", "err", err)
		respondError(w, http.StatusBadGateway, "shutdown failed", err.Error())
		return
	}
	respondJSON(w, ShutdownResponse{Done: done})
}

func (s *Server) handleGetPatches(w http.ResponseWriter, r *http.Request) {
	if s.patches == nil {
		respondError(w, http.StatusNotFound, "journal disabled", "set JOURNAL_PATH to record patches")
		return
	}

	limit := defaultPatchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := s.patches.List(s.bot.Symbol(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal read failed", err.Error())
		return
	}
	if recs == nil {
		recs = []bot.PatchRecord{}
	}
	respondJSON(w, recs)
}

func (s *Server) handleGetSpread(w http.ResponseWriter, r *http.Request) {
	if s.spreads == nil {
		respondError(w, http.StatusNotFound, "spread override disabled", "spread is fixed by configuration")
		return
	}
	spread, ok := s.spreads.Spread()
	resp := SpreadStatus{Override: ok}
	if ok {
		resp.Spread = spread.String()
	}
	respondJSON(w, resp)
}

func (s *Server) handleSetSpread(w http.ResponseWriter, r *http.Request) {
	if s.spreads == nil {
		respondError(w, http.StatusNotFound, "spread override disabled", "spread is fixed by configuration")
		return
	}
	var req SpreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if !req.Spread.IsPositive() {
		respondError(w, http.StatusBadRequest, "invalid spread", "spread must be positive")
		return
	}
	s.spreads.Set(req.Spread)
	s.log.Infow("spread_override_set", "spread", req.Spread.String())
	s.handleGetSpread(w, r)
}

func (s *Server) handleClearSpread(w http.ResponseWriter, r *http.Request) {
	if s.spreads == nil {
		respondError(w, http.StatusNotFound, "spread override disabled", "spread is fixed by configuration")
		return
	}
	s.spreads.Clear()
	s.log.Infow("spread_override_cleared")
	s.handleGetSpread(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
