package collector

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quantfold/polycollect/internal/domain"
	"github.com/quantfold/polycollect/internal/platform/polymarket"
)

// finalFlushTimeout bounds the write of buffered trades during shutdown.
const finalFlushTimeout = 10 * time.Second

// TradeListener buffers trades from the WebSocket stream and drains them
// to storage in batches. The stream callback never blocks: when the queue
// is full the trade is dropped and counted, so a slow database stalls
// persistence but never the feed.
type TradeListener struct {
	store        domain.TradeStore
	queue        chan domain.Trade
	batchSize    int
	drainTimeout time.Duration
	logger       *slog.Logger

	received  atomic.Int64
	dropped   atomic.Int64
	written   atomic.Int64
	malformed atomic.Int64
	batches   atomic.Int64

	lastTradeNanos  atomic.Int64
	lastInsertNanos atomic.Int64
}

// NewTradeListener creates the trade buffer and drain loop.
func NewTradeListener(store domain.TradeStore, batchSize int, drainTimeout time.Duration, queueCapacity int, logger *slog.Logger) *TradeListener {
	return &TradeListener{
		store:        store,
		queue:        make(chan domain.Trade, queueCapacity),
		batchSize:    batchSize,
		drainTimeout: drainTimeout,
		logger:       logger.With("collector", "trade_listener"),
	}
}

// HandleEvent is the stream callback. It converts and enqueues without
// blocking; malformed events and overflow drops are counted.
func (l *TradeListener) HandleEvent(ev polymarket.TradeEvent) {
	trade, ok := ev.ToDomainTrade()
	if !ok {
		l.malformed.Add(1)
		return
	}
	l.received.Add(1)
	l.lastTradeNanos.Store(trade.TS.UnixNano())

	select {
	case l.queue <- trade:
	default:
		if l.dropped.Add(1)%1000 == 1 {
			l.logger.Warn("trade queue overflow", "error", domain.ErrQueueFull, "dropped", l.dropped.Load())
		}
	}
}

// Run drains the queue until the context is cancelled, writing a batch
// whenever it reaches batchSize or the drain interval elapses with trades
// pending. On cancellation everything still queued is flushed under a
// fresh timeout so buffered trades survive shutdown.
func (l *TradeListener) Run(ctx context.Context) error {
	batch := make([]domain.Trade, 0, l.batchSize)
	ticker := time.NewTicker(l.drainTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.finalFlush(batch)
			return nil
		case t := <-l.queue:
			batch = append(batch, t)
			if len(batch) >= l.batchSize {
				batch = l.flush(ctx, batch)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				batch = l.flush(ctx, batch)
			}
		}
	}
}

// flush writes one batch. A failed write is logged and the batch dropped;
// the listener must not wedge on a broken database.
func (l *TradeListener) flush(ctx context.Context, batch []domain.Trade) []domain.Trade {
	n, err := l.store.InsertBatch(ctx, batch)
	if err != nil {
		l.logger.Error("trade batch write failed", "size", len(batch), "error", err)
		return batch[:0]
	}
	l.written.Add(n)
	l.batches.Add(1)
	l.lastInsertNanos.Store(time.Now().UnixNano())
	l.logger.Debug("trade batch written", "size", len(batch), "rows", n)
	return batch[:0]
}

// finalFlush empties the queue into the pending batch and writes it with
// a detached timeout, since the run context is already cancelled.
func (l *TradeListener) finalFlush(batch []domain.Trade) {
	for {
		select {
		case t := <-l.queue:
			batch = append(batch, t)
		default:
			if len(batch) == 0 {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			defer cancel()
			l.flush(ctx, batch)
			l.logger.Info("final trade flush complete", "size", len(batch))
			return
		}
	}
}

// QueueDepth reports how many trades are currently buffered.
func (l *TradeListener) QueueDepth() int { return len(l.queue) }

// Received reports trades accepted from the stream so far.
func (l *TradeListener) Received() int64 { return l.received.Load() }

// Dropped reports trades discarded because the queue was full.
func (l *TradeListener) Dropped() int64 { return l.dropped.Load() }

// Written reports rows actually persisted.
func (l *TradeListener) Written() int64 { return l.written.Load() }

// Malformed reports stream events that failed conversion.
func (l *TradeListener) Malformed() int64 { return l.malformed.Load() }

// Batches reports how many batches have been written so far.
func (l *TradeListener) Batches() int64 { return l.batches.Load() }

// LastTradeTS returns the venue timestamp of the newest accepted trade,
// zero before the first trade arrives.
func (l *TradeListener) LastTradeTS() time.Time { return nanosToTime(l.lastTradeNanos.Load()) }

// LastInsertTS returns the wall-clock time of the last successful batch
// write, zero before the first write.
func (l *TradeListener) LastInsertTS() time.Time { return nanosToTime(l.lastInsertNanos.Load()) }

func nanosToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
