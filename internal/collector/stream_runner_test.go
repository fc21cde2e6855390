package collector

import "testing"

func TestSameTokenSet(t *testing.T) {
	set := map[string]struct{}{"a": {}, "b": {}}

	if !sameTokenSet(set, []string{"b", "a"}) {
		t.Error("order must not matter")
	}
	if sameTokenSet(set, []string{"a"}) {
		t.Error("size mismatch must differ")
	}
	if sameTokenSet(set, []string{"a", "c"}) {
		t.Error("membership mismatch must differ")
	}
	if !sameTokenSet(map[string]struct{}{}, nil) {
		t.Error("empty sets are equal")
	}
}
