package api

import "github.com/shopspring/decimal"

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// REST Types
// ==============================

// BotStatus is the bot's current configuration and lifecycle state
type BotStatus struct {
	Symbol        string `json:"symbol"`
	MarginPercent string `json:"marginPercent"` // decimal string
	Expired       bool   `json:"expired"`       // instrument inside its cleanup window
}

// MarginRequest is the payload for PUT /api/v1/bot/margin
type MarginRequest struct {
	MarginPercent decimal.Decimal `json:"marginPercent"` // 0-100, string or number
}

// SpreadRequest is the payload for PUT /api/v1/bot/spread
type SpreadRequest struct {
	Spread decimal.Decimal `json:"spread"`
}

// SpreadStatus reports the runtime spread override, if any
type SpreadStatus struct {
	Override bool   `json:"override"`
	Spread   string `json:"spread,omitempty"`
}

// ShutdownResponse reports whether every resting limit order was cancelled
type ShutdownResponse struct {
	Done bool `json:"done"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage is the envelope of every message pushed to clients
type WSMessage struct {
	Channel string      `json:"channel"` // "patches"
	Data    interface{} `json:"data"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["patches", "patches:BTCUSD7H"]
}
