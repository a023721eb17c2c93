package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"affiliate-vault/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClient_Connect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer conn.Close()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestClient_SubscribeAndReceive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer conn.Close()

		// Read subscribe request, confirm it, then push one event.
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		if req.Method != "vaultSubscribe" {
			t.Errorf("expected vaultSubscribe, got %s", req.Method)
		}

		_ = conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID, "result": 42,
		})
		_ = conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "vaultNotification",
			"params": map[string]interface{}{
				"subscription": 42,
				"result": map[string]interface{}{
					"type": EventConfirmed, "kind": "PAYOUT", "id": 3,
					"owner": "owner-b", "block": 120,
				},
			},
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	events, err := client.Subscribe(context.Background(), Filter{Kind: domain.TxPayout})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != EventConfirmed {
			t.Errorf("expected %s, got %s", EventConfirmed, ev.Type)
		}
		if ev.Kind != domain.TxPayout || ev.ID != 3 || ev.Owner != "owner-b" || ev.Block != 120 {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestClient_SubscribeSendsKindFilter(t *testing.T) {
	got := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer conn.Close()

		var req struct {
			ID     uint64            `json:"id"`
			Params []json.RawMessage `json:"params"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		var filter struct {
			Kind string `json:"kind"`
		}
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params[0], &filter)
		}
		got <- filter.Kind

		_ = conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID, "result": 1,
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	if _, err := client.Subscribe(context.Background(), Filter{Kind: domain.TxFee}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case kind := <-got:
		if kind != "FEE" {
			t.Errorf("expected FEE filter, got %q", kind)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for subscribe request")
	}
}

func TestClient_ResubscribesAfterReconnect(t *testing.T) {
	var conns atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		n := conns.Add(1)

		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID, "result": n,
		})

		// Drop the first connection right after confirming; the client
		// must reconnect and subscribe again with a fresh id.
		if n == 1 {
			return
		}

		_ = conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "vaultNotification",
			"params": map[string]interface{}{
				"subscription": n,
				"result": map[string]interface{}{
					"type": EventExecuted, "kind": "FEE", "id": 9,
					"owner": "owner-a", "block": 55,
				},
			},
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond

	client, err := NewClient(context.Background(), wsURL(server), &cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	events, err := client.Subscribe(context.Background(), Filter{Kind: domain.TxFee})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// The event arrives on the original channel, through the second
	// connection's subscription.
	select {
	case ev := <-events:
		if ev.Type != EventExecuted || ev.Kind != domain.TxFee || ev.ID != 9 {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for event after reconnect")
	}

	if got := conns.Load(); got < 2 {
		t.Errorf("expected a reconnect, saw %d connection(s)", got)
	}
}

func TestClient_Close(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer conn.Close()

		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0", "id": req.ID, "result": 7,
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	events, err := client.Subscribe(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Double close is a no-op.
	if err := client.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case _, open := <-events:
		if open {
			t.Error("expected closed event channel")
		}
	case <-time.After(time.Second):
		t.Error("event channel not closed")
	}
}

func TestClient_SubscribeAfterClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_ = client.Close()

	if _, err := client.Subscribe(context.Background(), Filter{}); err == nil {
		t.Error("expected error subscribing on closed client")
	}
}
