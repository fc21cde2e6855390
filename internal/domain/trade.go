package domain

import "time"

const (
	TradeSideBuy  = "BUY"
	TradeSideSell = "SELL"
)

// Trade is one fill streamed from the venue WebSocket. The feed does
// not carry trade IDs, so TradeID is nil for streamed rows; it is kept
// nullable so backfills from other sources can dedupe on it.
// JSON tags match the JSONL archive format written to cold storage.
type Trade struct {
	TS      time.Time `json:"ts"`
	TokenID string    `json:"token_id"`
	Side    string    `json:"side"` // TradeSideBuy or TradeSideSell
	Price   float64   `json:"price"`
	Size    float64   `json:"size"`
	TradeID *string   `json:"trade_id,omitempty"`
}
