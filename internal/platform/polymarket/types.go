package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/polycollect/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number, a numeric string, or null/empty
// string (both become 0).
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*f = 0
		return nil
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(n)
	return nil
}

// flexList unmarshals a JSON array of strings that the Gamma API sends
// either natively (["Yes","No"]) or wrapped in a string ("[\"Yes\",\"No\"]").
// Numeric elements are converted to their string form. Malformed input
// yields an empty list rather than an error so one bad market cannot fail
// the decode of a whole events page.
type flexList []string

func (f *flexList) UnmarshalJSON(data []byte) error {
	*f = nil

	var native []any
	if err := json.Unmarshal(data, &native); err == nil {
		*f = anySliceToStrings(native)
		return nil
	}

	var wrapped string
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil
	}
	var inner []any
	if err := json.Unmarshal([]byte(wrapped), &inner); err != nil {
		return nil
	}
	*f = anySliceToStrings(inner)
	return nil
}

func anySliceToStrings(in []any) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case float64:
			out = append(out, strconv.FormatFloat(t, 'f', -1, 64))
		default:
			out = append(out, "")
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// RawEvent is an event as returned by the Gamma API. An event groups one or
// more related markets.
type RawEvent struct {
	ID      string      `json:"id"`
	Slug    string      `json:"slug"`
	Title   string      `json:"title"`
	Active  flexBool    `json:"active"`
	Closed  flexBool    `json:"closed"`
	Markets []RawMarket `json:"markets"`
}

// RawMarket is a market as returned by the Gamma API, kept close to the
// wire. Field names arrive in camelCase with occasional snake_case
// variants, and the three list fields may be string-wrapped JSON arrays;
// accessors below hide both quirks from everything downstream.
type RawMarket struct {
	ID              string    `json:"id"`
	EventID         string    `json:"-"`
	Question        string    `json:"question"`
	Slug            string    `json:"slug"`
	ConditionID     string    `json:"conditionId"`
	ConditionIDAlt  string    `json:"condition_id"`
	Outcomes        flexList  `json:"outcomes"`
	OutcomePrices   flexList  `json:"outcomePrices"`
	ClobTokenIDs    flexList  `json:"clobTokenIds"`
	ClobTokenIDsAlt flexList  `json:"clob_token_ids"`
	Active          flexBool  `json:"active"`
	Closed          flexBool  `json:"closed"`
	AcceptingOrders flexBool  `json:"acceptingOrders"`
	NegRisk         flexBool  `json:"negRisk"`
	TickSize        flexFloat `json:"orderPriceMinTickSize"`
	Volume          flexFloat `json:"volume"`
	Volume24h       flexFloat `json:"volume24hr"`
	Liquidity       flexFloat `json:"liquidity"`
	Spread          flexFloat `json:"spread"`
	LastTradePrice  flexFloat `json:"lastTradePrice"`
}

// Condition returns the condition ID from whichever key the API sent.
func (m *RawMarket) Condition() string {
	if m.ConditionID != "" {
		return m.ConditionID
	}
	return m.ConditionIDAlt
}

// TokenIDs returns the CLOB token IDs from whichever key the API sent.
func (m *RawMarket) TokenIDs() []string {
	if len(m.ClobTokenIDs) > 0 {
		return m.ClobTokenIDs
	}
	return m.ClobTokenIDsAlt
}

// ToDomainMarket converts a RawMarket to a domain.Market.
func (m *RawMarket) ToDomainMarket() domain.Market {
	return domain.Market{
		ID:              m.ID,
		EventID:         m.EventID,
		ConditionID:     m.Condition(),
		Slug:            m.Slug,
		Question:        m.Question,
		Outcomes:        append([]string(nil), m.Outcomes...),
		ClobTokenIDs:    append([]string(nil), m.TokenIDs()...),
		NegRisk:         bool(m.NegRisk),
		TickSize:        float64(m.TickSize),
		Active:          bool(m.Active),
		Closed:          bool(m.Closed),
		AcceptingOrders: bool(m.AcceptingOrders),
		VolumeTotal:     float64(m.Volume),
		Liquidity:       float64(m.Liquidity),
	}
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// RawPriceLevel is a single price+size entry; both fields arrive as strings.
type RawPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// RawOrderbook is one book from the CLOB /books endpoint.
type RawOrderbook struct {
	Market    string          `json:"market"`
	AssetID   string          `json:"asset_id"`
	Bids      []RawPriceLevel `json:"bids"`
	Asks      []RawPriceLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
	Hash      string          `json:"hash"`
}

// Levels converts raw string levels to [price, size] pairs, keeping at most
// topN (0 means all) and skipping entries that fail to parse.
func Levels(raw []RawPriceLevel, topN int) [][2]float64 {
	out := make([][2]float64, 0, len(raw))
	for _, lvl := range raw {
		p, errP := strconv.ParseFloat(lvl.Price, 64)
		s, errS := strconv.ParseFloat(lvl.Size, 64)
		if errP != nil || errS != nil {
			continue
		}
		out = append(out, [2]float64{p, s})
		if topN > 0 && len(out) >= topN {
			break
		}
	}
	return out
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// TradeEvent is a trade fill from the market channel. All numeric fields
// arrive as strings and the timestamp is milliseconds since epoch; the feed
// carries no trade IDs.
type TradeEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Side      string `json:"side"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"`
}

// ToDomainTrade converts a TradeEvent to a domain.Trade. It returns false
// when any required field is missing or unparseable.
func (e *TradeEvent) ToDomainTrade() (domain.Trade, bool) {
	if e.AssetID == "" {
		return domain.Trade{}, false
	}

	side := strings.ToUpper(e.Side)
	if side != domain.TradeSideBuy && side != domain.TradeSideSell {
		return domain.Trade{}, false
	}

	price, err := strconv.ParseFloat(e.Price, 64)
	if err != nil {
		return domain.Trade{}, false
	}
	size, err := strconv.ParseFloat(e.Size, 64)
	if err != nil {
		return domain.Trade{}, false
	}
	ts, ok := parseMsTimestamp(e.Timestamp)
	if !ok {
		return domain.Trade{}, false
	}

	return domain.Trade{
		TS:      ts,
		TokenID: e.AssetID,
		Side:    side,
		Price:   price,
		Size:    size,
		TradeID: nil,
	}, true
}

// parseMsTimestamp converts a milliseconds-since-epoch string to UTC time.
func parseMsTimestamp(s string) (time.Time, bool) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// decodeTradeEvents parses a WebSocket frame that may contain a single
// event object or a JSON array of events. Frames that are neither (for
// example the "PONG" keepalive reply) yield an empty slice.
func decodeTradeEvents(raw []byte) []TradeEvent {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "PONG" {
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var events []TradeEvent
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil
		}
		return events
	}

	var event TradeEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil
	}
	return []TradeEvent{event}
}

// wsSubscription is the payload sent to subscribe a connection to the
// market channel for a set of asset IDs.
type wsSubscription struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}
