package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/quantfold/polycollect/internal/domain"
)

const (
	writeWait         = 10 * time.Second
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second

	// A connection that stays up this long has its reconnect backoff reset.
	stableConnAge = time.Minute
)

// TradeHandler receives decoded trade events from the stream. It must not
// block; slow consumers should hand off to their own queue.
type TradeHandler func(TradeEvent)

// TradeStream maintains WebSocket subscriptions to the market channel for
// a set of asset IDs, splitting them across connections at the venue's
// per-connection instrument limit. Each connection reconnects on its own
// with doubling backoff and replays its subscription.
type TradeStream struct {
	wsURL        string
	pingInterval time.Duration
	maxPerConn   int
	handler      TradeHandler
	logger       *slog.Logger

	activeConns   atomic.Int64
	reconnections atomic.Int64
}

// NewTradeStream creates a stream for the given WebSocket endpoint.
func NewTradeStream(wsURL string, pingInterval time.Duration, maxPerConn int, handler TradeHandler, logger *slog.Logger) *TradeStream {
	if pingInterval <= 0 {
		pingInterval = 10 * time.Second
	}
	if maxPerConn <= 0 || maxPerConn > 500 {
		maxPerConn = 500
	}
	return &TradeStream{
		wsURL:        wsURL,
		pingInterval: pingInterval,
		maxPerConn:   maxPerConn,
		handler:      handler,
		logger:       logger.With("component", "trade_stream"),
	}
}

// ActiveConnections reports how many connections are currently open.
func (s *TradeStream) ActiveConnections() int64 { return s.activeConns.Load() }

// Reconnections reports the total number of reconnect attempts so far.
func (s *TradeStream) Reconnections() int64 { return s.reconnections.Load() }

// Run blocks, keeping one connection per chunk of tokenIDs alive until the
// context is cancelled. Cancellation is the only way Run returns.
func (s *TradeStream) Run(ctx context.Context, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		<-ctx.Done()
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(tokenIDs); start += s.maxPerConn {
		end := start + s.maxPerConn
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}
		connID := start / s.maxPerConn
		assets := tokenIDs[start:end]
		g.Go(func() error {
			s.runConn(ctx, connID, assets)
			return nil
		})
	}
	return g.Wait()
}

// runConn keeps a single connection alive, reconnecting with doubling
// backoff until the context is cancelled.
func (s *TradeStream) runConn(ctx context.Context, connID int, assets []string) {
	delay := reconnectDelay
	for {
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		err := s.serveConn(ctx, assets)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) >= stableConnAge {
			delay = reconnectDelay
		}

		s.reconnections.Add(1)
		s.logger.Warn("websocket connection lost",
			"conn", connID, "assets", len(assets), "retry_in", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// serveConn dials, subscribes, and pumps messages until the connection
// drops or the context is cancelled.
func (s *TradeStream) serveConn(ctx context.Context, assets []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.wsURL, err)
	}
	defer conn.Close()

	sub := wsSubscription{AssetIDs: assets, Type: "market"}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.activeConns.Add(1)
	defer s.activeConns.Add(-1)

	done := make(chan struct{})
	defer close(done)

	// Unblocks the read loop on cancellation.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go s.pingLoop(conn, done)

	readWait := 3 * s.pingInterval
	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrWSDisconnect, err)
		}
		for _, ev := range decodeTradeEvents(raw) {
			if ev.EventType != "last_trade_price" {
				continue
			}
			s.handler(ev)
		}
	}
}

// pingLoop sends the application-level text keepalive the venue expects.
// The server answers with a "PONG" text frame, which keeps the read
// deadline moving.
func (s *TradeStream) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				return
			}
		}
	}
}
