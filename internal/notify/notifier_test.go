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
)

type fakeSender struct {
	name string
	err  error
	sent []string
}

func (f *fakeSender) Send(_ context.Context, subject, body string) error {
	f.sent = append(f.sent, subject+"|"+body)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFansOutToAllSenders(t *testing.T) {
	a := &fakeSender{name: "a"}
	b := &fakeSender{name: "b"}
	n := New([]Sender{a, b}, testLogger())

	if err := n.Notify(context.Background(), "done", "all good"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("sent counts = %d, %d, want 1, 1", len(a.sent), len(b.sent))
	}
}

func TestNotifyContinuesPastFailingSender(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeSender{name: "a", err: boom}
	b := &fakeSender{name: "b"}
	n := New([]Sender{a, b}, testLogger())

	err := n.Notify(context.Background(), "done", "all good")
	if !errors.Is(err, boom) {
		t.Fatalf("Notify() error = %v, want wrapped boom", err)
	}
	if len(b.sent) != 1 {
		t.Errorf("second sender got %d messages, want 1", len(b.sent))
	}
}

func TestNotifyWithNoSendersIsNoop(t *testing.T) {
	n := New(nil, testLogger())
	if err := n.Notify(context.Background(), "done", "all good"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
}

func TestTelegramSenderPostsSendMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("token", "chat42")
	s.baseURL = srv.URL
	if err := s.Send(context.Background(), "subject", "body"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got["chat_id"] != "chat42" {
		t.Errorf("chat_id = %s, want chat42", got["chat_id"])
	}
	if !strings.Contains(got["text"], "subject") || !strings.Contains(got["text"], "body") {
		t.Errorf("text = %q", got["text"])
	}
}

func TestDiscordSenderReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), "subject", "body")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("Send() error = %v, want status 401", err)
	}
}
