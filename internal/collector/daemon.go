// Package collector implements the data acquisition daemon: periodic
// pollers for market metadata, prices, orderbook depth and resolutions,
// a WebSocket trade listener, and the supervisor that keeps them running.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Collector is one periodic unit of work supervised by the Daemon.
type Collector interface {
	Name() string
	Interval() time.Duration
	Collect(ctx context.Context) error
}

// eventNotifier is the slice of the notify package the daemon uses.
type eventNotifier interface {
	Notify(ctx context.Context, event, message string) error
}

const (
	restartBackoffBase = 5 * time.Second
	restartBackoffMax  = 60 * time.Second
	maxRestarts        = 5

	healthInterval = 60 * time.Second
)

// Collector status values reported in health snapshots.
const (
	StatusRunning    = "running"
	StatusRestarting = "restarting"
	StatusFailed     = "failed"
	StatusStopped    = "stopped"
)

// errPanic marks a recovered panic; it aborts the collector loop and
// triggers the restart path, unlike an ordinary cycle error.
var errPanic = errors.New("collector panicked")

// CollectorStats is a point-in-time view of one supervised loop.
type CollectorStats struct {
	Status      string
	Cycles      int64
	Errors      int64
	Restarts    int
	LastSuccess time.Time
	LastError   string
}

// Health is a deep-copied snapshot of the whole daemon.
type Health struct {
	RunID      string
	StartedAt  time.Time
	Uptime     string
	Collectors map[string]CollectorStats
	Extra      map[string]any
}

type runner struct {
	name string
	run  func(ctx context.Context) error
}

// Daemon supervises the collectors and long-running components. A loop
// that dies is restarted with doubling backoff; after maxRestarts it is
// marked failed and the rest of the daemon keeps going.
type Daemon struct {
	logger   *slog.Logger
	notifier eventNotifier // nil when notifications are disabled

	runID     string
	startedAt time.Time

	periodic []Collector
	runners  []runner

	healthExtra func() map[string]any

	mu    sync.Mutex
	stats map[string]*CollectorStats
}

// NewDaemon creates an empty daemon. notifier may be nil.
func NewDaemon(logger *slog.Logger, notifier eventNotifier) *Daemon {
	return &Daemon{
		logger:   logger.With("component", "daemon"),
		notifier: notifier,
		runID:    uuid.NewString(),
		stats:    make(map[string]*CollectorStats),
	}
}

// RunID returns the unique identifier of this daemon run.
func (d *Daemon) RunID() string { return d.runID }

// AddPeriodic registers a ticker-driven collector.
func (d *Daemon) AddPeriodic(c Collector) {
	d.periodic = append(d.periodic, c)
	d.stats[c.Name()] = &CollectorStats{Status: StatusStopped}
}

// AddRunner registers a long-running component such as the trade stream.
func (d *Daemon) AddRunner(name string, run func(ctx context.Context) error) {
	d.runners = append(d.runners, runner{name: name, run: run})
	d.stats[name] = &CollectorStats{Status: StatusStopped}
}

// SetHealthExtra installs a callback whose result is merged into health
// snapshots, used for queue depth and connection counters.
func (d *Daemon) SetHealthExtra(fn func() map[string]any) {
	d.healthExtra = fn
}

// Run starts every registered loop and blocks until the context is
// cancelled and all loops have returned.
func (d *Daemon) Run(ctx context.Context) error {
	d.startedAt = time.Now()
	d.logger.Info("daemon starting",
		"run_id", d.runID,
		"collectors", len(d.periodic),
		"runners", len(d.runners))
	d.notify(ctx, "daemon_started", fmt.Sprintf("collector daemon started, run %s", d.runID))

	g, gctx := errgroup.WithContext(ctx)

	for _, c := range d.periodic {
		g.Go(func() error {
			d.supervise(gctx, c.Name(), d.tickerLoop(c))
			return nil
		})
	}
	for _, r := range d.runners {
		g.Go(func() error {
			d.supervise(gctx, r.name, r.run)
			return nil
		})
	}
	g.Go(func() error {
		d.healthLoop(gctx)
		return nil
	})

	err := g.Wait()

	// The run context is gone; the farewell gets its own deadline.
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.notify(stopCtx, "daemon_stopped",
		fmt.Sprintf("collector daemon stopped after %s, run %s", formatUptime(time.Since(d.startedAt)), d.runID))

	d.logger.Info("daemon stopped", "run_id", d.runID, "uptime", formatUptime(time.Since(d.startedAt)))
	return err
}

// supervise runs fn, restarting it with doubling backoff when it returns
// an error. Restarts are capped; an exhausted loop is marked failed.
func (d *Daemon) supervise(ctx context.Context, name string, fn func(ctx context.Context) error) {
	delay := restartBackoffBase
	restarts := 0

	for {
		d.setStatus(name, StatusRunning)
		err := fn(ctx)
		if ctx.Err() != nil {
			d.setStatus(name, StatusStopped)
			return
		}
		if err == nil {
			d.setStatus(name, StatusStopped)
			return
		}

		restarts++
		d.recordRestart(name, err)
		if restarts > maxRestarts {
			d.setStatus(name, StatusFailed)
			d.logger.Error("collector permanently failed",
				"collector", name, "restarts", restarts-1, "error", err)
			d.notify(ctx, "collector_failed",
				fmt.Sprintf("collector %s failed after %d restarts: %v", name, restarts-1, err))
			return
		}

		d.setStatus(name, StatusRestarting)
		d.logger.Warn("collector restarting",
			"collector", name, "attempt", restarts, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.setStatus(name, StatusStopped)
			return
		case <-timer.C:
		}
		delay *= 2
		if delay > restartBackoffMax {
			delay = restartBackoffMax
		}
	}
}

// tickerLoop adapts a periodic Collector to a supervised loop. A cycle
// error is counted and the loop keeps ticking; a panic aborts the loop so
// the supervisor restarts it.
func (d *Daemon) tickerLoop(c Collector) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(c.Interval())
		defer ticker.Stop()

		for {
			err := d.runCycle(ctx, c)
			switch {
			case err == nil:
				d.recordSuccess(c.Name())
			case errors.Is(err, errPanic):
				return err
			case ctx.Err() != nil:
				return nil
			default:
				d.recordError(c.Name(), err)
				d.logger.Error("collection cycle failed", "collector", c.Name(), "error", err)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
}

func (d *Daemon) runCycle(ctx context.Context, c Collector) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	return c.Collect(ctx)
}

// healthLoop logs a health snapshot every minute. It is deliberately not
// supervised; it only reads state.
func (d *Daemon) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h := d.Health()
			attrs := []any{
				"run_id", h.RunID,
				"uptime", h.Uptime,
			}
			for name, st := range h.Collectors {
				attrs = append(attrs, name, fmt.Sprintf("%s cycles=%d errors=%d restarts=%d",
					st.Status, st.Cycles, st.Errors, st.Restarts))
			}
			for k, v := range h.Extra {
				attrs = append(attrs, k, v)
			}
			d.logger.Info("health", attrs...)
		}
	}
}

// Health returns a deep-copied snapshot safe to hold across daemon state
// changes.
func (d *Daemon) Health() Health {
	d.mu.Lock()
	collectors := make(map[string]CollectorStats, len(d.stats))
	for name, st := range d.stats {
		collectors[name] = *st
	}
	d.mu.Unlock()

	h := Health{
		RunID:      d.runID,
		StartedAt:  d.startedAt,
		Uptime:     formatUptime(time.Since(d.startedAt)),
		Collectors: collectors,
	}
	if d.healthExtra != nil {
		h.Extra = d.healthExtra()
	}
	return h
}

func (d *Daemon) setStatus(name, status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.stats[name]; ok {
		st.Status = status
	}
}

func (d *Daemon) recordSuccess(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.stats[name]; ok {
		st.Cycles++
		st.LastSuccess = time.Now()
	}
}

func (d *Daemon) recordError(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.stats[name]; ok {
		st.Cycles++
		st.Errors++
		st.LastError = err.Error()
	}
}

func (d *Daemon) recordRestart(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.stats[name]; ok {
		st.Restarts++
		st.LastError = err.Error()
	}
}

func (d *Daemon) notify(ctx context.Context, event, message string) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(ctx, event, message); err != nil {
		d.logger.Warn("notification failed", "event", event, "error", err)
	}
}

// formatUptime renders a duration as "3h 12m" past the hour mark and
// "12m 30s" under it.
func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
