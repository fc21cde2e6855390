package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quantfold/polycollect/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testEvent(id string, n int) map[string]any {
	markets := make([]map[string]any, n)
	for i := range markets {
		markets[i] = map[string]any{
			"id":          fmt.Sprintf("%s-m%d", id, i),
			"conditionId": fmt.Sprintf("0x%s-%d", id, i),
		}
	}
	return map[string]any{"id": id, "markets": markets}
}

func TestGammaListActiveMarketsPaginates(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offsets = append(offsets, r.URL.Query().Get("offset"))

		// First page full, second page short.
		var events []map[string]any
		if r.URL.Query().Get("offset") == "0" {
			for i := 0; i < gammaPageSize; i++ {
				events = append(events, testEvent(fmt.Sprintf("e%d", i), 1))
			}
		} else {
			events = append(events, testEvent("last", 2))
		}
		json.NewEncoder(w).Encode(events)
	}))
	defer srv.Close()

	c := NewGammaClient(srv.URL, 0, NewTokenBucket(1000, 1000), discardLogger())
	markets, err := c.ListActiveMarkets(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}

	if len(offsets) != 2 || offsets[0] != "0" || offsets[1] != "100" {
		t.Errorf("offsets = %v", offsets)
	}
	if len(markets) != gammaPageSize+2 {
		t.Errorf("markets = %d, want %d", len(markets), gammaPageSize+2)
	}
	if markets[0].EventID != "e0" {
		t.Errorf("event id not attached: %+v", markets[0])
	}
}

func TestGammaListActiveMarketsCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var events []map[string]any
		for i := 0; i < gammaPageSize; i++ {
			events = append(events, testEvent(fmt.Sprintf("e%d", i), 2))
		}
		json.NewEncoder(w).Encode(events)
	}))
	defer srv.Close()

	c := NewGammaClient(srv.URL, 0, NewTokenBucket(1000, 1000), discardLogger())
	markets, err := c.ListActiveMarkets(context.Background(), 150)
	if err != nil {
		t.Fatal(err)
	}
	if len(markets) != 150 {
		t.Errorf("markets = %d, want cap 150", len(markets))
	}
}

func TestGammaSkipsMarketsWithoutCondition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{{
			"id": "e1",
			"markets": []map[string]any{
				{"id": "m1", "conditionId": "0x1"},
				{"id": "m2"},
			},
		}})
	}))
	defer srv.Close()

	c := NewGammaClient(srv.URL, 0, NewTokenBucket(1000, 1000), discardLogger())
	markets, err := c.ListActiveMarkets(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(markets) != 1 || markets[0].ID != "m1" {
		t.Errorf("got %v", markets)
	}
}

func TestGammaRetriesOn429(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	c := NewGammaClient(srv.URL, 0, NewTokenBucket(1000, 1000), discardLogger())
	if _, err := c.ListActiveMarkets(context.Background(), 0); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestGammaRetriesTransientServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{testEvent("e1", 1)})
	}))
	defer srv.Close()

	c := NewGammaClient(srv.URL, 0, NewTokenBucket(1000, 1000), discardLogger())
	markets, err := c.ListActiveMarkets(context.Background(), 0)
	if err != nil {
		t.Fatalf("one 503 must not fail the call: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(markets) != 1 {
		t.Errorf("markets = %d, want 1", len(markets))
	}
}

func TestGammaTransientErrorsExhaust(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewGammaClient(srv.URL, 0, NewTokenBucket(1000, 1000), discardLogger())
	if _, err := c.ListActiveMarkets(context.Background(), 0); err == nil {
		t.Fatal("persistent 502 must surface after exhaustion")
	}
	if calls != maxRequestAttempts {
		t.Errorf("calls = %d, want %d", calls, maxRequestAttempts)
	}
}

func TestGammaStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		c := NewGammaClient(srv.URL, 0, NewTokenBucket(1000, 1000), discardLogger())
		_, err := c.ListActiveMarkets(context.Background(), 0)
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
		srv.Close()
	}
}

func TestCLOBGetOrderbooksChunks(t *testing.T) {
	var batchSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params []bookParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			t.Errorf("decode body: %v", err)
		}
		batchSizes = append(batchSizes, len(params))

		books := make([]RawOrderbook, len(params))
		for i, p := range params {
			books[i] = RawOrderbook{AssetID: p.TokenID}
		}
		json.NewEncoder(w).Encode(books)
	}))
	defer srv.Close()

	tokens := make([]string, 45)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok%d", i)
	}

	c := NewCLOBClient(srv.URL, 0, NewTokenBucket(1000, 1000), discardLogger())
	books, err := c.GetOrderbooks(context.Background(), tokens)
	if err != nil {
		t.Fatal(err)
	}
	if len(books) != 45 {
		t.Errorf("books = %d, want 45", len(books))
	}
	want := []int{20, 20, 5}
	if len(batchSizes) != 3 || batchSizes[0] != want[0] || batchSizes[1] != want[1] || batchSizes[2] != want[2] {
		t.Errorf("batch sizes = %v, want %v", batchSizes, want)
	}
}

func TestCLOBGetOrderbooksPartialFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// A 400 is not transient, so the first batch fails outright.
		if calls == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode([]RawOrderbook{{AssetID: "ok"}})
	}))
	defer srv.Close()

	tokens := make([]string, 40)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("tok%d", i)
	}

	c := NewCLOBClient(srv.URL, 0, NewTokenBucket(1000, 1000), discardLogger())
	books, err := c.GetOrderbooks(context.Background(), tokens)
	if err != nil {
		t.Fatalf("one failed batch should not fail the call: %v", err)
	}
	if len(books) != 1 {
		t.Errorf("books = %d, want 1 from surviving batch", len(books))
	}
}
