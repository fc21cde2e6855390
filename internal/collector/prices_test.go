package collector

import (
	"testing"
	"time"

	"github.com/quantfold/polycollect/internal/platform/polymarket"
)

func TestExtractPriceSnapshots(t *testing.T) {
	now := time.Now().UTC()
	raws := []polymarket.RawMarket{
		{
			ClobTokenIDs:  []string{"t1", "t2"},
			OutcomePrices: []string{"0.62", "0.38"},
			Volume24h:     1500,
			Liquidity:     300,
		},
	}

	snaps, skipped := extractPriceSnapshots(now, raws)
	if skipped != 0 {
		t.Errorf("skipped = %d", skipped)
	}
	if len(snaps) != 2 {
		t.Fatalf("snaps = %d, want 2", len(snaps))
	}
	if snaps[0].TokenID != "t1" || snaps[0].Price != 0.62 {
		t.Errorf("first snapshot: %+v", snaps[0])
	}
	if snaps[1].TokenID != "t2" || snaps[1].Price != 0.38 {
		t.Errorf("second snapshot: %+v", snaps[1])
	}
	if !snaps[0].TS.Equal(now) || !snaps[1].TS.Equal(now) {
		t.Error("snapshots must share the cycle timestamp")
	}
	if snaps[0].Volume24h != 1500 {
		t.Errorf("volume = %v", snaps[0].Volume24h)
	}
	if snaps[0].Liquidity == nil || *snaps[0].Liquidity != 300 {
		t.Errorf("liquidity = %v", snaps[0].Liquidity)
	}
	if snaps[0].Spread != nil || snaps[0].LastTradePrice != nil {
		t.Error("absent optional fields must stay nil")
	}
}

func TestExtractPriceSnapshotsSkipsMalformed(t *testing.T) {
	raws := []polymarket.RawMarket{
		{
			// Price list shorter than token list.
			ClobTokenIDs:  []string{"t1", "t2"},
			OutcomePrices: []string{"0.5"},
		},
		{
			ClobTokenIDs:  []string{"t3", ""},
			OutcomePrices: []string{"bad", "0.4"},
		},
	}

	snaps, skipped := extractPriceSnapshots(time.Now(), raws)
	if len(snaps) != 1 {
		t.Fatalf("snaps = %d, want only t1", len(snaps))
	}
	if snaps[0].TokenID != "t1" {
		t.Errorf("got %+v", snaps[0])
	}
	if skipped != 3 {
		t.Errorf("skipped = %d, want 3", skipped)
	}
}

func TestExtractPriceSnapshotsDedupesTokens(t *testing.T) {
	raws := []polymarket.RawMarket{
		{ClobTokenIDs: []string{"t1"}, OutcomePrices: []string{"0.5"}},
		{ClobTokenIDs: []string{"t1"}, OutcomePrices: []string{"0.6"}},
	}

	snaps, _ := extractPriceSnapshots(time.Now(), raws)
	if len(snaps) != 1 {
		t.Fatalf("snaps = %d, want 1 after dedupe", len(snaps))
	}
	if snaps[0].Price != 0.5 {
		t.Errorf("first occurrence should win, got %v", snaps[0].Price)
	}
}
