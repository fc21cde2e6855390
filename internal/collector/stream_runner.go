package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/polycollect/internal/domain"
	"github.com/quantfold/polycollect/internal/platform/polymarket"
)

// tokenWaitInterval is the poll cadence while the markets table is still
// empty, right after first boot.
const tokenWaitInterval = 30 * time.Second

// StreamRunner keeps the trade stream subscribed to the current tracked
// token set. When the set changes on a metadata refresh the stream is torn
// down and re-subscribed; the listener queue rides through untouched.
type StreamRunner struct {
	markets domain.MarketStore
	stream  *polymarket.TradeStream
	refresh time.Duration
	logger  *slog.Logger
}

// NewStreamRunner creates the subscription supervisor for the trade stream.
func NewStreamRunner(markets domain.MarketStore, stream *polymarket.TradeStream, refresh time.Duration, logger *slog.Logger) *StreamRunner {
	return &StreamRunner{
		markets: markets,
		stream:  stream,
		refresh: refresh,
		logger:  logger.With("component", "stream_runner"),
	}
}

// Run blocks until the context is cancelled, restarting the stream
// whenever the tracked token set changes.
func (r *StreamRunner) Run(ctx context.Context) error {
	for {
		tokens, err := r.waitForTokens(ctx)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		streamCtx, cancel := context.WithCancel(ctx)
		go r.watchTokenSet(streamCtx, cancel, tokens)

		r.logger.Info("starting trade stream", "tokens", len(tokens))
		err = r.stream.Run(streamCtx, tokens)
		cancel()

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("collector: trade stream: %w", err)
		}
		// Token set changed; loop around and resubscribe.
	}
}

// waitForTokens polls until the markets table yields at least one token.
func (r *StreamRunner) waitForTokens(ctx context.Context) ([]string, error) {
	for {
		tokens, err := r.activeTokens(ctx)
		if err != nil {
			return nil, err
		}
		if len(tokens) > 0 {
			return tokens, nil
		}

		r.logger.Info("no tracked tokens yet, waiting for metadata refresh")
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(tokenWaitInterval):
		}
	}
}

// watchTokenSet cancels the stream context when the tracked set diverges
// from the subscribed one.
func (r *StreamRunner) watchTokenSet(ctx context.Context, cancel context.CancelFunc, subscribed []string) {
	current := make(map[string]struct{}, len(subscribed))
	for _, t := range subscribed {
		current[t] = struct{}{}
	}

	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tokens, err := r.activeTokens(ctx)
			if err != nil {
				r.logger.Warn("token set check failed", "error", err)
				continue
			}
			if !sameTokenSet(current, tokens) {
				r.logger.Info("tracked token set changed, resubscribing",
					"old", len(current), "new", len(tokens))
				cancel()
				return
			}
		}
	}
}

// activeTokens flattens the token IDs of all active markets, deduplicated.
func (r *StreamRunner) activeTokens(ctx context.Context) ([]string, error) {
	markets, err := r.markets.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("collector: list active markets for stream: %w", err)
	}

	seen := make(map[string]struct{})
	var tokens []string
	for _, m := range markets {
		for _, t := range m.ClobTokenIDs {
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			tokens = append(tokens, t)
		}
	}
	return tokens, nil
}

func sameTokenSet(current map[string]struct{}, tokens []string) bool {
	if len(current) != len(tokens) {
		return false
	}
	for _, t := range tokens {
		if _, ok := current[t]; !ok {
			return false
		}
	}
	return true
}
