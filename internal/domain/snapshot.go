package domain

import "time"

// PriceSnapshot is one per-token price observation. Append-only; the
// price poller bulk-inserts these at minute cadence.
type PriceSnapshot struct {
	TS             time.Time
	TokenID        string
	Price          float64
	Volume24h      float64
	Liquidity      *float64
	Spread         *float64
	LastTradePrice *float64
}

// BookSide holds one side of an orderbook as ordered [price, size]
// pairs. An empty side is {Levels: []}, never nil, so the stored JSONB
// is always {"levels": []}.
type BookSide struct {
	Levels [][2]float64 `json:"levels"`
}

// DepthUSD returns the notional depth of the side, the sum of
// price*size over its levels.
func (s BookSide) DepthUSD() float64 {
	var total float64
	for _, lvl := range s.Levels {
		total += lvl[0] * lvl[1]
	}
	return total
}

// OrderbookSnapshot is a top-N depth snapshot for one token and side.
type OrderbookSnapshot struct {
	TS          time.Time
	TokenID     string
	Side        string // "yes" or "no"
	Bids        BookSide
	Asks        BookSide
	BidDepthUSD float64
	AskDepthUSD float64
}
