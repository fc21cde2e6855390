package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/quantfold/polycollect/internal/domain"
)

func TestFlexBool(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`"true"`, true},
		{`"True"`, true},
		{`"false"`, false},
		{`"1"`, true},
		{`""`, false},
	}
	for _, tc := range cases {
		var b flexBool
		if err := json.Unmarshal([]byte(tc.in), &b); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if bool(b) != tc.want {
			t.Errorf("flexBool(%s) = %v, want %v", tc.in, bool(b), tc.want)
		}
	}
}

func TestFlexFloat(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{`0.42`, 0.42},
		{`"0.42"`, 0.42},
		{`""`, 0},
		{`null`, 0},
		{`"garbage"`, 0},
	}
	for _, tc := range cases {
		var f flexFloat
		if err := json.Unmarshal([]byte(tc.in), &f); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if float64(f) != tc.want {
			t.Errorf("flexFloat(%s) = %v, want %v", tc.in, float64(f), tc.want)
		}
	}
}

func TestFlexListNative(t *testing.T) {
	var l flexList
	if err := json.Unmarshal([]byte(`["Yes","No"]`), &l); err != nil {
		t.Fatal(err)
	}
	if len(l) != 2 || l[0] != "Yes" || l[1] != "No" {
		t.Errorf("got %v", l)
	}
}

func TestFlexListStringWrapped(t *testing.T) {
	var l flexList
	if err := json.Unmarshal([]byte(`"[\"0.985\", \"0.015\"]"`), &l); err != nil {
		t.Fatal(err)
	}
	if len(l) != 2 || l[0] != "0.985" || l[1] != "0.015" {
		t.Errorf("got %v", l)
	}
}

func TestFlexListMalformed(t *testing.T) {
	for _, in := range []string{`"not json at all"`, `"[unclosed"`, `42`} {
		var l flexList
		if err := json.Unmarshal([]byte(in), &l); err != nil {
			t.Fatalf("unmarshal %s should not error, got %v", in, err)
		}
		if len(l) != 0 {
			t.Errorf("flexList(%s) = %v, want empty", in, l)
		}
	}
}

func TestRawMarketDualKeys(t *testing.T) {
	var m RawMarket
	if err := json.Unmarshal([]byte(`{"condition_id":"0xabc","clob_token_ids":"[\"t1\",\"t2\"]"}`), &m); err != nil {
		t.Fatal(err)
	}
	if m.Condition() != "0xabc" {
		t.Errorf("Condition() = %q", m.Condition())
	}
	if ids := m.TokenIDs(); len(ids) != 2 || ids[0] != "t1" {
		t.Errorf("TokenIDs() = %v", ids)
	}

	var m2 RawMarket
	if err := json.Unmarshal([]byte(`{"conditionId":"0xdef","clobTokenIds":["t3"]}`), &m2); err != nil {
		t.Fatal(err)
	}
	if m2.Condition() != "0xdef" || len(m2.TokenIDs()) != 1 {
		t.Errorf("camelCase keys not picked up: %q %v", m2.Condition(), m2.TokenIDs())
	}
}

func TestToDomainMarket(t *testing.T) {
	raw := []byte(`{
		"id": "12345",
		"question": "Will it rain?",
		"conditionId": "0xcond",
		"outcomes": "[\"Yes\", \"No\"]",
		"clobTokenIds": "[\"tok-yes\", \"tok-no\"]",
		"active": "true",
		"closed": false,
		"acceptingOrders": true,
		"negRisk": false,
		"orderPriceMinTickSize": "0.01",
		"volume": "12034.5",
		"liquidity": "800.25"
	}`)
	var m RawMarket
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	m.EventID = "ev1"

	got := m.ToDomainMarket()
	if got.ID != "12345" || got.EventID != "ev1" || got.ConditionID != "0xcond" {
		t.Errorf("identity fields: %+v", got)
	}
	if !got.Active || got.Closed || !got.AcceptingOrders {
		t.Errorf("flags: %+v", got)
	}
	if got.TickSize != 0.01 || got.VolumeTotal != 12034.5 || got.Liquidity != 800.25 {
		t.Errorf("numerics: %+v", got)
	}
	if len(got.Outcomes) != 2 || got.Outcomes[0] != "Yes" {
		t.Errorf("outcomes: %v", got.Outcomes)
	}
	if len(got.ClobTokenIDs) != 2 || got.ClobTokenIDs[1] != "tok-no" {
		t.Errorf("tokens: %v", got.ClobTokenIDs)
	}
}

func TestLevels(t *testing.T) {
	raw := []RawPriceLevel{
		{Price: "0.45", Size: "100"},
		{Price: "bad", Size: "50"},
		{Price: "0.44", Size: "200"},
		{Price: "0.43", Size: "300"},
	}

	got := Levels(raw, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0] != [2]float64{0.45, 100} || got[1] != [2]float64{0.44, 200} {
		t.Errorf("got %v", got)
	}

	all := Levels(raw, 0)
	if len(all) != 3 {
		t.Errorf("topN=0 should keep all parseable levels, got %d", len(all))
	}
}

func TestTradeEventToDomainTrade(t *testing.T) {
	ev := TradeEvent{
		EventType: "last_trade_price",
		AssetID:   "tok1",
		Price:     "0.62",
		Side:      "buy",
		Size:      "150.5",
		Timestamp: "1756000000000",
	}
	trade, ok := ev.ToDomainTrade()
	if !ok {
		t.Fatal("expected ok")
	}
	if trade.TokenID != "tok1" || trade.Side != domain.TradeSideBuy || trade.Price != 0.62 || trade.Size != 150.5 {
		t.Errorf("got %+v", trade)
	}
	want := time.UnixMilli(1756000000000).UTC()
	if !trade.TS.Equal(want) {
		t.Errorf("ts = %v, want %v", trade.TS, want)
	}
	if trade.TradeID != nil {
		t.Error("streamed trades must have nil trade id")
	}
}

func TestTradeEventRejectsMalformed(t *testing.T) {
	base := TradeEvent{
		AssetID: "tok1", Price: "0.5", Side: "SELL", Size: "1", Timestamp: "1756000000000",
	}

	cases := map[string]func(e *TradeEvent){
		"missing asset": func(e *TradeEvent) { e.AssetID = "" },
		"bad side":      func(e *TradeEvent) { e.Side = "HOLD" },
		"bad price":     func(e *TradeEvent) { e.Price = "x" },
		"bad size":      func(e *TradeEvent) { e.Size = "" },
		"bad timestamp": func(e *TradeEvent) { e.Timestamp = "yesterday" },
		"zero ts":       func(e *TradeEvent) { e.Timestamp = "0" },
	}
	for name, mutate := range cases {
		ev := base
		mutate(&ev)
		if _, ok := ev.ToDomainTrade(); ok {
			t.Errorf("%s: expected rejection", name)
		}
	}
}

func TestDecodeTradeEvents(t *testing.T) {
	single := []byte(`{"event_type":"last_trade_price","asset_id":"a"}`)
	if got := decodeTradeEvents(single); len(got) != 1 || got[0].AssetID != "a" {
		t.Errorf("single object: %v", got)
	}

	array := []byte(`[{"asset_id":"a"},{"asset_id":"b"}]`)
	if got := decodeTradeEvents(array); len(got) != 2 || got[1].AssetID != "b" {
		t.Errorf("array: %v", got)
	}

	for _, frame := range []string{"PONG", "", "   ", "not json", "[broken"} {
		if got := decodeTradeEvents([]byte(frame)); len(got) != 0 {
			t.Errorf("frame %q: expected no events, got %v", frame, got)
		}
	}
}
