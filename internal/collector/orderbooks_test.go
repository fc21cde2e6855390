package collector

import (
	"testing"

	"github.com/quantfold/polycollect/internal/domain"
)

func TestTokenSides(t *testing.T) {
	markets := []domain.Market{
		{ClobTokenIDs: []string{"y1", "n1"}},
		{ClobTokenIDs: []string{"y2", "n2", "extra"}},
		{ClobTokenIDs: []string{"y3"}},
	}

	tokens, sides := tokenSides(markets)
	if len(tokens) != 5 {
		t.Fatalf("tokens = %v", tokens)
	}
	if sides["y1"] != "yes" || sides["n1"] != "no" {
		t.Errorf("pair sides: %v", sides)
	}
	if sides["y2"] != "yes" || sides["n2"] != "no" {
		t.Errorf("pair sides: %v", sides)
	}
	if _, ok := sides["extra"]; ok {
		t.Error("tokens beyond the binary pair must be ignored")
	}
	if sides["y3"] != "yes" {
		t.Errorf("single-token market: %v", sides)
	}
}

func TestTokenSidesSkipsEmptyAndDuplicate(t *testing.T) {
	markets := []domain.Market{
		{ClobTokenIDs: []string{"", "n1"}},
		{ClobTokenIDs: []string{"y2", "y2"}},
	}

	tokens, sides := tokenSides(markets)
	// An empty first token must not discard the valid no-side token.
	if sides["n1"] != "no" {
		t.Errorf("no token after empty yes token lost: %v", sides)
	}
	if len(tokens) != 2 || tokens[0] != "n1" || tokens[1] != "y2" {
		t.Errorf("tokens = %v", tokens)
	}
	if sides["y2"] != "yes" {
		t.Errorf("duplicate must keep first side, got %v", sides["y2"])
	}
}
