// Package notify delivers operational alerts for daemon lifecycle events.
// Notifications fan out to every configured sender (Telegram, Discord) and
// are filtered by event type so operators receive only the alerts they
// care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Event types emitted by the daemon.
const (
	EventDaemonStarted   = "daemon_started"
	EventDaemonStopped   = "daemon_stopped"
	EventCollectorFailed = "collector_failed"
)

// eventTitles maps event types to the rendered notification title.
var eventTitles = map[string]string{
	EventDaemonStarted:   "Collector daemon started",
	EventDaemonStopped:   "Collector daemon stopped",
	EventCollectorFailed: "Collector failed",
}

// Alert is one notification as handed to the senders. Each sender renders
// it for its own channel.
type Alert struct {
	Event   string
	Title   string
	Message string
	At      time.Time
}

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, a Alert) error
	// Name returns a short identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches events to one or more Senders, filtered by the
// configured allow list. An empty allow list passes everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification for the given event if it is in the allowed
// set. Delivery failures are collected per sender; one broken channel does
// not block the others.
func (n *Notifier) Notify(ctx context.Context, event, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}

	title, ok := eventTitles[event]
	if !ok {
		title = event
	}
	return n.dispatch(ctx, Alert{
		Event:   event,
		Title:   title,
		Message: message,
		At:      time.Now().UTC(),
	})
}

func (n *Notifier) dispatch(ctx context.Context, a Alert) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", a.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", a.Event),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
