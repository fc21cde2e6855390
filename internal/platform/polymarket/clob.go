package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// booksBatchSize is the largest token set the /books endpoint accepts per
// request.
const booksBatchSize = 20

// CLOBClient reads public order book data from the CLOB REST API. The
// public endpoints used here need no authentication.
type CLOBClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *TokenBucket
	logger     *slog.Logger
}

// NewCLOBClient creates a CLOB API client.
func NewCLOBClient(baseURL string, timeout time.Duration, limiter *TokenBucket, logger *slog.Logger) *CLOBClient {
	return &CLOBClient{
		baseURL:    baseURL,
		httpClient: newHTTPClient(timeout),
		limiter:    limiter,
		logger:     logger.With("component", "clob_client"),
	}
}

type bookParams struct {
	TokenID string `json:"token_id"`
}

// GetOrderbooks fetches order books for the given tokens via POST /books,
// batching requests at the endpoint's limit. A failed batch is logged and
// skipped so one bad token set cannot blank out a whole collection cycle.
func (c *CLOBClient) GetOrderbooks(ctx context.Context, tokenIDs []string) ([]RawOrderbook, error) {
	if len(tokenIDs) == 0 {
		return nil, nil
	}

	books := make([]RawOrderbook, 0, len(tokenIDs))
	var failed int
	for start := 0; start < len(tokenIDs); start += booksBatchSize {
		end := start + booksBatchSize
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}

		batch, err := c.fetchBooks(ctx, tokenIDs[start:end])
		if err != nil {
			if ctx.Err() != nil {
				return books, ctx.Err()
			}
			failed++
			c.logger.Warn("books batch failed",
				"offset", start, "size", end-start, "error", err)
			continue
		}
		books = append(books, batch...)
	}

	if failed > 0 && len(books) == 0 {
		return nil, fmt.Errorf("polymarket: all %d book batches failed", failed)
	}
	return books, nil
}

func (c *CLOBClient) fetchBooks(ctx context.Context, tokenIDs []string) ([]RawOrderbook, error) {
	params := make([]bookParams, len(tokenIDs))
	for i, id := range tokenIDs {
		params[i] = bookParams{TokenID: id}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal book params: %w", err)
	}

	body, err := doRetryRequest(ctx, c.httpClient, c.limiter, c.logger, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/books", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var books []RawOrderbook
	if err := json.Unmarshal(body, &books); err != nil {
		return nil, fmt.Errorf("decode books: %w", err)
	}
	return books, nil
}
