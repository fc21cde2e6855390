package collector

import (
	"testing"
	"time"

	"github.com/quantfold/polycollect/internal/domain"
	"github.com/quantfold/polycollect/internal/platform/polymarket"
)

func closedMarket(prices ...string) *polymarket.RawMarket {
	return &polymarket.RawMarket{
		ConditionID:   "0xcond",
		Outcomes:      []string{"Yes", "No"},
		ClobTokenIDs:  []string{"tok-yes", "tok-no"},
		OutcomePrices: prices,
	}
}

func TestInferResolutionSingleWinner(t *testing.T) {
	now := time.Now().UTC()
	res, ok := inferResolution(closedMarket("0", "1"), now)
	if !ok {
		t.Fatal("expected detection")
	}
	if res.ConditionID != "0xcond" {
		t.Errorf("condition = %q", res.ConditionID)
	}
	if res.Outcome == nil || *res.Outcome != "No" {
		t.Errorf("outcome = %v", res.Outcome)
	}
	if res.WinnerTokenID == nil || *res.WinnerTokenID != "tok-no" {
		t.Errorf("winner token = %v", res.WinnerTokenID)
	}
	if res.PayoutPrice != 1.0 || res.DetectionMethod != domain.DetectionFinalPrices {
		t.Errorf("payout=%v method=%v", res.PayoutPrice, res.DetectionMethod)
	}
	if !res.ResolvedAt.Equal(now) {
		t.Errorf("resolved at = %v", res.ResolvedAt)
	}
}

func TestInferResolutionNoWinner(t *testing.T) {
	if _, ok := inferResolution(closedMarket("0.6", "0.4"), time.Now()); ok {
		t.Error("unsettled prices should not resolve")
	}
}

func TestInferResolutionMultipleWinners(t *testing.T) {
	if _, ok := inferResolution(closedMarket("1", "1"), time.Now()); ok {
		t.Error("ambiguous prices should not resolve")
	}
}

func TestInferResolutionMalformedPrices(t *testing.T) {
	// A string-wrapped list that failed to parse yields an empty price
	// slice; the tracker must skip it without panicking.
	m := closedMarket()
	m.OutcomePrices = nil
	if _, ok := inferResolution(m, time.Now()); ok {
		t.Error("empty price list should not resolve")
	}

	m2 := closedMarket("garbage", "1")
	res, ok := inferResolution(m2, time.Now())
	if !ok {
		t.Fatal("one unparseable entry should not block detection")
	}
	if res.Outcome == nil || *res.Outcome != "No" {
		t.Errorf("outcome = %v", res.Outcome)
	}
}

func TestInferResolutionRaggedOutcomes(t *testing.T) {
	// Winner index beyond the outcomes list still records the payout,
	// with outcome and winner token left unset.
	m := &polymarket.RawMarket{
		ConditionID:   "0xragged",
		Outcomes:      []string{"Yes"},
		ClobTokenIDs:  []string{"tok-yes"},
		OutcomePrices: []string{"0", "1"},
	}
	res, ok := inferResolution(m, time.Now())
	if !ok {
		t.Fatal("expected detection")
	}
	if res.Outcome != nil || res.WinnerTokenID != nil {
		t.Errorf("out-of-range winner should leave labels nil: %v %v", res.Outcome, res.WinnerTokenID)
	}
	if res.PayoutPrice != 1.0 {
		t.Errorf("payout = %v", res.PayoutPrice)
	}
}
