package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const gammaPageSize = 100

// GammaClient reads market metadata from the Gamma API. All calls go
// through a shared token bucket so pagination bursts stay inside the
// venue's limits.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *TokenBucket
	logger     *slog.Logger
}

// NewGammaClient creates a Gamma API client.
func NewGammaClient(baseURL string, timeout time.Duration, limiter *TokenBucket, logger *slog.Logger) *GammaClient {
	return &GammaClient{
		baseURL:    baseURL,
		httpClient: newHTTPClient(timeout),
		limiter:    limiter,
		logger:     logger.With("component", "gamma_client"),
	}
}

// ListActiveMarkets pages through active, non-closed events ordered by
// volume and returns their markets flattened, each tagged with its parent
// event ID. Markets without a condition ID are skipped. Pagination stops
// at maxMarkets (0 means unlimited) or when a short page signals the end.
// The wire-level RawMarket is returned because the price poller needs
// fields (outcome prices, 24h volume) that the stored metadata drops.
func (c *GammaClient) ListActiveMarkets(ctx context.Context, maxMarkets int) ([]RawMarket, error) {
	query := url.Values{
		"active":    {"true"},
		"closed":    {"false"},
		"order":     {"volume"},
		"ascending": {"false"},
	}
	return c.pageEvents(ctx, query, maxMarkets, 0)
}

// ListClosedMarkets returns markets from recently closed events, newest
// first, scanning at most maxPages pages. The resolution tracker only
// needs the recent tail of the closed set, so the scan is bounded by
// pages rather than by a timestamp cutoff.
func (c *GammaClient) ListClosedMarkets(ctx context.Context, maxPages int) ([]RawMarket, error) {
	query := url.Values{
		"closed":    {"true"},
		"order":     {"endDate"},
		"ascending": {"false"},
	}
	return c.pageEvents(ctx, query, 0, maxPages)
}

func (c *GammaClient) pageEvents(ctx context.Context, query url.Values, maxMarkets, maxPages int) ([]RawMarket, error) {
	var markets []RawMarket

	for page := 0; ; page++ {
		if maxPages > 0 && page >= maxPages {
			break
		}
		if maxMarkets > 0 && len(markets) >= maxMarkets {
			break
		}

		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("limit", strconv.Itoa(gammaPageSize))
		q.Set("offset", strconv.Itoa(page*gammaPageSize))

		body, err := c.doGet(ctx, "/events", q)
		if err != nil {
			return nil, fmt.Errorf("polymarket: list events page %d: %w", page, err)
		}

		var events []RawEvent
		if err := json.Unmarshal(body, &events); err != nil {
			return nil, fmt.Errorf("polymarket: decode events page %d: %w", page, err)
		}

		for _, ev := range events {
			for i := range ev.Markets {
				m := ev.Markets[i]
				if m.Condition() == "" {
					continue
				}
				m.EventID = ev.ID
				markets = append(markets, m)
			}
		}

		if len(events) < gammaPageSize {
			break
		}
	}

	if maxMarkets > 0 && len(markets) > maxMarkets {
		markets = markets[:maxMarkets]
	}
	return markets, nil
}

// doGet performs a rate-limited GET with bounded retries on transport
// errors, transient statuses and 429s (see doRetryRequest).
func (c *GammaClient) doGet(ctx context.Context, path string, query url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	return doRetryRequest(ctx, c.httpClient, c.limiter, c.logger, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
}
