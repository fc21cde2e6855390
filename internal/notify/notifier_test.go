package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeSender struct {
	name   string
	err    error
	alerts []Alert
}

func (s *fakeSender) Send(ctx context.Context, a Alert) error {
	if s.err != nil {
		return s.err
	}
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *fakeSender) Name() string { return s.name }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{EventDaemonStarted}, slog.New(slog.DiscardHandler))

	if err := n.Notify(context.Background(), EventCollectorFailed, "ignored"); err != nil {
		t.Fatal(err)
	}
	if len(s.alerts) != 0 {
		t.Errorf("filtered event was delivered: %v", s.alerts)
	}

	if err := n.Notify(context.Background(), EventDaemonStarted, "hello"); err != nil {
		t.Fatal(err)
	}
	if len(s.alerts) != 1 {
		t.Fatalf("alerts = %v", s.alerts)
	}
	a := s.alerts[0]
	if a.Event != EventDaemonStarted || a.Title != "Collector daemon started" || a.Message != "hello" {
		t.Errorf("alert = %+v", a)
	}
	if a.At.IsZero() {
		t.Error("alert timestamp not set")
	}
}

func TestNotifierEmptyAllowListPassesAll(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, nil, slog.New(slog.DiscardHandler))

	if err := n.Notify(context.Background(), "custom_event", "msg"); err != nil {
		t.Fatal(err)
	}
	// Unknown events fall back to the event name as title.
	if len(s.alerts) != 1 || s.alerts[0].Title != "custom_event" {
		t.Errorf("alerts = %v", s.alerts)
	}
}

func TestNotifierPartialFailure(t *testing.T) {
	broken := &fakeSender{name: "broken", err: errors.New("down")}
	working := &fakeSender{name: "working"}
	n := NewNotifier([]Sender{broken, working}, nil, slog.New(slog.DiscardHandler))

	err := n.Notify(context.Background(), EventDaemonStopped, "bye")
	if err == nil {
		t.Fatal("expected combined error")
	}
	if len(working.alerts) != 1 {
		t.Error("one broken sender must not block the others")
	}
}

func TestNotifierNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, slog.New(slog.DiscardHandler))
	if err := n.Notify(context.Background(), EventDaemonStarted, "msg"); err != nil {
		t.Errorf("no senders should be a no-op, got %v", err)
	}
}

func testAlert(event string) Alert {
	return Alert{
		Event:   event,
		Title:   eventTitles[event],
		Message: "price poller exhausted restarts",
		At:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTelegramSenderRendersAlert(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("payload not json: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := &TelegramSender{apiURL: srv.URL, chatID: "42", client: srv.Client()}
	if err := s.Send(context.Background(), testAlert(EventCollectorFailed)); err != nil {
		t.Fatal(err)
	}

	if got["chat_id"] != "42" {
		t.Errorf("chat_id = %q", got["chat_id"])
	}
	text := got["text"]
	for _, want := range []string{"*Collector failed*", "price poller exhausted restarts", "collector_failed", "2026-08-01 12:00:00 UTC"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
}

func TestTelegramSenderRejectsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	s := &TelegramSender{apiURL: srv.URL, chatID: "42", client: srv.Client()}
	err := s.Send(context.Background(), testAlert(EventDaemonStarted))
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("got %v", err)
	}
}

func TestDiscordSenderRendersEmbed(t *testing.T) {
	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("payload not json: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), testAlert(EventCollectorFailed)); err != nil {
		t.Fatal(err)
	}

	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %+v", got.Embeds)
	}
	e := got.Embeds[0]
	if e.Title != "Collector failed" || e.Description != "price poller exhausted restarts" {
		t.Errorf("embed = %+v", e)
	}
	if e.Color != colorRed {
		t.Errorf("color = %#x, want red for a failure", e.Color)
	}
	if e.Footer.Text != EventCollectorFailed {
		t.Errorf("footer = %q", e.Footer.Text)
	}
	if e.Timestamp != "2026-08-01T12:00:00Z" {
		t.Errorf("timestamp = %q", e.Timestamp)
	}
}
