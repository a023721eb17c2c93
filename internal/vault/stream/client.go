// Package stream delivers vault lifecycle events (submissions,
// confirmations, executions) over a WebSocket feed. Confirmations from
// other owners arrive out of band; a consumer must still re-read ledger
// state before executing, the feed only tells it when to look again.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"affiliate-vault/internal/domain"
)

// Event types.
const (
	EventSubmitted = "submitted"
	EventConfirmed = "confirmed"
	EventExecuted  = "executed"
)

// Event is one vault lifecycle notification.
type Event struct {
	Type  string
	Kind  domain.TxKind
	ID    uint64
	Owner string // confirming/submitting owner address
	Block uint64
}

// Filter restricts a subscription to one transaction kind. Empty kind
// subscribes to both logs.
type Filter struct {
	Kind domain.TxKind
}

// Config configures client behavior.
type Config struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultConfig returns default stream configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client subscribes to vault events over WebSocket, reconnecting and
// resubscribing on connection loss.
type Client struct {
	endpoint string
	config   Config

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to channel
	subs   map[int64]chan Event
	subsMu sync.RWMutex

	// activeFilters stores filters for resubscription after reconnect
	activeFilters   map[int64]Filter
	activeFiltersMu sync.RWMutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewClient creates a stream client and connects to the endpoint.
func NewClient(ctx context.Context, endpoint string, config *Config) (*Client, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}

	c := &Client{
		endpoint:      endpoint,
		config:        cfg,
		subs:          make(map[int64]chan Event),
		activeFilters: make(map[int64]Filter),
		pendingSubs:   make(map[uint64]chan int64),
		done:          make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// connect establishes the WebSocket connection.
func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

// Subscribe subscribes to vault events matching the filter.
func (c *Client) Subscribe(ctx context.Context, filter Filter) (<-chan Event, error) {
	subID, ch, err := c.subscribe(ctx, filter, true)
	if err != nil {
		return nil, err
	}

	c.subsMu.Lock()
	c.subs[subID] = ch
	c.subsMu.Unlock()

	c.activeFiltersMu.Lock()
	c.activeFilters[subID] = filter
	c.activeFiltersMu.Unlock()

	return ch, nil
}

// subscribe sends the subscribe request and waits for the subscription
// id. When makeChannel is false the caller reuses an existing channel
// (resubscription after reconnect).
func (c *Client) subscribe(ctx context.Context, filter Filter, makeChannel bool) (int64, chan Event, error) {
	if c.closed.Load() {
		return 0, nil, fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)

	params := []interface{}{map[string]string{"kind": string(filter.Kind)}}
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "vaultSubscribe",
		Params:  params,
	}

	confirmCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	drop := func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		drop()
		return 0, nil, fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		drop()
		return 0, nil, fmt.Errorf("write subscribe: %w", err)
	}

	var subID int64
	select {
	case subID = <-confirmCh:
	case <-time.After(30 * time.Second):
		drop()
		return 0, nil, fmt.Errorf("subscription timeout after 30s")
	case <-c.done:
		return 0, nil, fmt.Errorf("client closed")
	case <-ctx.Done():
		drop()
		return 0, nil, ctx.Err()
	}

	var ch chan Event
	if makeChannel {
		// Buffer absorbs confirmation bursts; sends block rather than drop.
		ch = make(chan Event, 1024)
	}
	return subID, ch, nil
}

// Close closes the WebSocket connection and all subscription channels.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages and dispatches to subscribers, reconnecting
// with exponential backoff on connection loss.
func (c *Client) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay

		c.handleMessage(message)
	}
}

// reconnect attempts to reconnect and resubscribe.
func (c *Client) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		// Will retry on next read error.
		return
	}

	c.resubscribeAll()
}

// resubscribeAll re-establishes every active subscription on a new
// connection, keeping each consumer's channel.
func (c *Client) resubscribeAll() {
	c.activeFiltersMu.RLock()
	filters := make(map[int64]Filter)
	for id, f := range c.activeFilters {
		filters[id] = f
	}
	c.activeFiltersMu.RUnlock()

	c.subsMu.RLock()
	channels := make(map[int64]chan Event)
	for id, ch := range c.subs {
		channels[id] = ch
	}
	c.subsMu.RUnlock()

	for oldSubID, filter := range filters {
		ch := channels[oldSubID]
		if ch == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newSubID, _, err := c.subscribe(ctx, filter, false)
		cancel()

		if err != nil {
			// Failed to resubscribe, keep old mapping.
			continue
		}

		c.subsMu.Lock()
		delete(c.subs, oldSubID)
		c.subs[newSubID] = ch
		c.subsMu.Unlock()

		c.activeFiltersMu.Lock()
		delete(c.activeFilters, oldSubID)
		c.activeFilters[newSubID] = filter
		c.activeFiltersMu.Unlock()
	}
}

// handleMessage processes one incoming WebSocket message.
func (c *Client) handleMessage(message []byte) {
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err == nil && resp.Result > 0 {
		c.handleSubscribeResponse(&resp)
		return
	}

	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err == nil && notif.Method == "vaultNotification" {
		c.handleVaultNotification(&notif)
		return
	}
}

// handleSubscribeResponse resolves a pending subscription.
func (c *Client) handleSubscribeResponse(resp *wsSubscribeResponse) {
	c.pendingSubsMu.Lock()
	ch, ok := c.pendingSubs[resp.ID]
	if ok {
		delete(c.pendingSubs, resp.ID)
	}
	c.pendingSubsMu.Unlock()

	if ok {
		select {
		case ch <- resp.Result:
		default:
		}
	}
}

// handleVaultNotification dispatches an event to its subscriber.
func (c *Client) handleVaultNotification(notif *wsNotification) {
	if notif.Params == nil {
		return
	}

	value := notif.Params.Result
	event := Event{
		Type:  value.Type,
		Kind:  domain.TxKind(value.Kind),
		ID:    value.ID,
		Owner: value.Owner,
		Block: value.Block,
	}

	c.subsMu.RLock()
	ch, ok := c.subs[notif.Params.Subscription]
	c.subsMu.RUnlock()

	if ok {
		// Block until we can send - never drop events.
		select {
		case ch <- event:
		case <-c.done:
			return
		}
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Connection might be dead, reader will handle reconnect.
					_ = err
				}
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"` // subscription ID
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64        `json:"subscription"`
	Result       wsEventValue `json:"result"`
}

type wsEventValue struct {
	Type  string `json:"type"`
	Kind  string `json:"kind"`
	ID    uint64 `json:"id"`
	Owner string `json:"owner"`
	Block uint64 `json:"block"`
}
