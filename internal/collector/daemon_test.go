package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{90 * time.Second, "1m 30s"},
		{45 * time.Second, "0m 45s"},
		{time.Hour + 12*time.Minute + 5*time.Second, "1h 12m"},
		{25 * time.Hour, "25h 0m"},
		{0, "0m 0s"},
		{-time.Second, "0m 0s"},
	}
	for _, tc := range cases {
		if got := formatUptime(tc.d); got != tc.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

type tickCollector struct {
	name     string
	interval time.Duration
	collect  func(ctx context.Context) error
}

func (c *tickCollector) Name() string                      { return c.name }
func (c *tickCollector) Interval() time.Duration           { return c.interval }
func (c *tickCollector) Collect(ctx context.Context) error { return c.collect(ctx) }

func TestHealthSnapshotIsCopy(t *testing.T) {
	d := NewDaemon(slog.New(slog.DiscardHandler), nil)
	d.AddPeriodic(&tickCollector{name: "c1", interval: time.Hour, collect: func(ctx context.Context) error { return nil }})

	h := d.Health()
	if h.RunID == "" {
		t.Error("run id must be set")
	}

	st := h.Collectors["c1"]
	st.Cycles = 999
	h.Collectors["c1"] = st
	h.Collectors["phantom"] = CollectorStats{}

	again := d.Health()
	if again.Collectors["c1"].Cycles != 0 {
		t.Error("mutating a snapshot leaked into daemon state")
	}
	if _, ok := again.Collectors["phantom"]; ok {
		t.Error("snapshot map is shared with daemon state")
	}
}

func TestDaemonCycleErrorKeepsLoopAlive(t *testing.T) {
	var cycles atomic.Int64
	c := &tickCollector{
		name:     "flaky",
		interval: 10 * time.Millisecond,
		collect: func(ctx context.Context) error {
			if cycles.Add(1) == 1 {
				return errors.New("transient")
			}
			return nil
		},
	}

	d := NewDaemon(slog.New(slog.DiscardHandler), nil)
	d.AddPeriodic(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for cycles.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("loop did not keep running after a cycle error")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	h := d.Health()
	st := h.Collectors["flaky"]
	if st.Errors != 1 {
		t.Errorf("errors = %d, want 1", st.Errors)
	}
	if st.LastError != "transient" {
		t.Errorf("last error = %q", st.LastError)
	}
	if st.Status != StatusStopped {
		t.Errorf("status after shutdown = %q", st.Status)
	}
}

func TestDaemonRestartsPanickedCollector(t *testing.T) {
	var cycles atomic.Int64
	c := &tickCollector{
		name:     "crasher",
		interval: time.Hour,
		collect: func(ctx context.Context) error {
			if cycles.Add(1) == 1 {
				panic("boom")
			}
			return nil
		},
	}

	d := NewDaemon(slog.New(slog.DiscardHandler), nil)
	d.AddPeriodic(c)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// First cycle panics; the supervisor restarts after the 5s base
	// backoff, so within that window the collector reports restarting.
	deadline := time.After(2 * time.Second)
	for {
		st := d.Health().Collectors["crasher"]
		if st.Restarts == 1 && st.Status == StatusRestarting {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("restart not recorded: %+v", st)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(ctx context.Context, event, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func TestDaemonLifecycleNotifications(t *testing.T) {
	n := &recordingNotifier{}
	d := NewDaemon(slog.New(slog.DiscardHandler), n)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.events) != 2 || n.events[0] != "daemon_started" || n.events[1] != "daemon_stopped" {
		t.Errorf("events = %v", n.events)
	}
}
