package archive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/thudgame/relay/internal/store"
)

func TestNilNotifierIsNoop(t *testing.T) {
	var n *Notifier
	if err := n.GameCompleted(context.Background(), &store.Record{GameID: "g1"}); err != nil {
		t.Fatalf("nil notifier must be silent: %v", err)
	}
	if NewNotifier("", nil) != nil {
		t.Fatalf("empty URL must disable the notifier")
	}
}

func TestGameCompletedPostsRecord(t *testing.T) {
	var got store.Record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, nil)
	rec := &store.Record{
		GameID:   "g1",
		Moves:    []string{"dA6-O6", "TH7-G6"},
		Complete: true,
	}
	if err := n.GameCompleted(context.Background(), rec); err != nil {
		t.Fatalf("GameCompleted: %v", err)
	}
	if got.GameID != "g1" || len(got.Moves) != 2 || !got.Complete {
		t.Fatalf("unexpected delivered record: %+v", got)
	}
}

func TestGameCompletedRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, nil)
	if err := n.GameCompleted(context.Background(), &store.Record{GameID: "g1"}); err != nil {
		t.Fatalf("GameCompleted after retries: %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestGameCompletedGivesUpOnClientError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, nil)
	if err := n.GameCompleted(context.Background(), &store.Record{GameID: "g1"}); err == nil {
		t.Fatalf("expected error on 403")
	}
	if hits.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", hits.Load())
	}
}
