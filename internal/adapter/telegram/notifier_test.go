package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Strob0t/ReviewLoop/internal/port/notifier"
)

func TestSendNotConfigured(t *testing.T) {
	n := NewNotifier("", "")
	err := n.Send(context.Background(), notifier.Notification{Title: "x"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("Send = %v, want ErrNotConfigured", err)
	}
}

func TestSend(t *testing.T) {
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/bottoken123/sendMessage") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier("token123", "chat42")
	n.apiBase = srv.URL

	err := n.Send(context.Background(), notifier.Notification{
		Title:   "Approval required",
		Message: "guardrail triggered",
		Level:   "warning",
		Source:  "build.guardrail",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.ChatID != "chat42" {
		t.Errorf("chat_id = %q, want chat42", got.ChatID)
	}
	if !strings.Contains(got.Text, "Approval required") || !strings.Contains(got.Text, "guardrail triggered") {
		t.Errorf("text missing content: %q", got.Text)
	}
	if got.ParseMode != "HTML" {
		t.Errorf("parse_mode = %q", got.ParseMode)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewNotifier("token123", "chat42")
	n.apiBase = srv.URL

	if err := n.Send(context.Background(), notifier.Notification{Title: "x"}); err == nil {
		t.Fatal("Send: no error on 400")
	}
}
