// Package rpc implements vault.Client over a JSON-RPC 2.0 vault
// gateway. The gateway owns signing and inclusion; this client only
// shapes requests, retries transport failures with backoff and maps
// gateway rejections onto the vault error taxonomy. Gateway rejections
// are never retried here.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/vault"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// Gateway rejection codes. Anything outside this table is treated as a
// protocol mismatch between client and gateway.
const (
	codeNotConnected      = 1000
	codeValidation        = 1001
	codeNotOwner          = 1002
	codeAlreadyConfirmed  = 1003
	codeInsufficientState = 1004
	codeAlreadyExecuted   = 1005
	codeSignatureRejected = 1006
	codeSignatureTimeout  = 1007
)

// Client implements vault.Client against a JSON-RPC vault gateway.
type Client struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// Compile-time interface check.
var _ vault.Client = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum transport retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// New creates a gateway client and verifies the gateway is reachable.
// There is no half-constructed state: New either returns a usable
// client or a ConfigurationError.
func New(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	const op = "rpc.New"

	if endpoint == "" {
		return nil, vault.Errorf(vault.KindConfiguration, op, "no gateway endpoint")
	}

	c := &Client{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Probe the vault so a dead or misconfigured gateway fails now,
	// not on the first payout.
	if _, err := c.Owners(ctx); err != nil {
		return nil, vault.Wrap(vault.KindConfiguration, op, "gateway probe", err)
	}
	return c, nil
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// mapRejection translates a gateway rejection into the taxonomy.
func mapRejection(op string, e *rpcError) error {
	switch e.Code {
	case codeNotConnected:
		return vault.Errorf(vault.KindConfiguration, op, "%s", e.Message)
	case codeValidation:
		return vault.Errorf(vault.KindValidation, op, "%s", e.Message)
	case codeNotOwner, codeAlreadyConfirmed:
		return vault.Errorf(vault.KindAuthorization, op, "%s", e.Message)
	case codeInsufficientState:
		return vault.Errorf(vault.KindInsufficientState, op, "%s", e.Message)
	case codeAlreadyExecuted:
		return vault.Errorf(vault.KindAlreadyExecuted, op, "%s", e.Message)
	case codeSignatureRejected, codeSignatureTimeout:
		// The wallet never produced a signature; nothing reached the
		// ledger. A fresh operation may be issued.
		return vault.Errorf(vault.KindTransport, op, "%s", e.Message)
	default:
		return vault.Errorf(vault.KindConfiguration, op,
			"unrecognized gateway rejection %d: %s", e.Code, e.Message)
	}
}

// call performs a JSON-RPC call. Transport failures are retried with
// exponential backoff; gateway rejections are returned immediately.
func (c *Client) call(ctx context.Context, op, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return vault.Wrap(vault.KindValidation, op, "marshal request", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return vault.Wrap(vault.KindTransport, op, "canceled", ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return vault.Wrap(vault.KindTransport, op, "create request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// Rejections carry business meaning and are never retried.
			return mapRejection(op, rpcResp.Error)
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return vault.Wrap(vault.KindTransport, op, "unmarshal result", err)
			}
		}
		return nil
	}

	return vault.Wrap(vault.KindTransport, op, "max retries exceeded", lastErr)
}

// wireTransaction is the gateway's transaction representation.
type wireTransaction struct {
	Kind            string   `json:"kind"`
	ID              uint64   `json:"id"`
	Receiver        string   `json:"receiver"`
	Amount          float64  `json:"amount"`
	ConfirmedBy     []string `json:"confirmedBy"`
	Executed        bool     `json:"executed"`
	CreatedAtBlock  uint64   `json:"createdAtBlock"`
	ExecutedAtBlock uint64   `json:"executedAtBlock"`
}

// wireReceipt is the gateway's execution receipt representation.
type wireReceipt struct {
	Kind       string  `json:"kind"`
	ID         uint64  `json:"id"`
	Receiver   string  `json:"receiver"`
	Amount     float64 `json:"amount"`
	Block      uint64  `json:"block"`
	NewBalance float64 `json:"newBalance"`
}

func sessionParam(session domain.Session) map[string]interface{} {
	return map[string]interface{}{
		"caller": session.Caller.String(),
		"chain":  uint64(session.Chain),
	}
}

// Submit submits a new transaction through the gateway.
func (c *Client) Submit(ctx context.Context, session domain.Session, kind domain.TxKind, receiver domain.Address, amount float64) (uint64, error) {
	const op = "rpc.Submit"

	if !session.Connected() {
		return 0, vault.Errorf(vault.KindConfiguration, op, "no account connected")
	}
	if amount <= 0 {
		return 0, vault.Errorf(vault.KindValidation, op, "amount must be positive, got %v", amount)
	}
	if _, err := domain.ParseAddress(receiver.String()); err != nil {
		return 0, vault.Wrap(vault.KindValidation, op, "bad receiver", err)
	}

	params := []interface{}{sessionParam(session), string(kind), receiver.String(), amount}
	var id uint64
	if err := c.call(ctx, op, "vault_submitTransaction", params, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// Confirm records the caller's confirmation through the gateway.
func (c *Client) Confirm(ctx context.Context, session domain.Session, kind domain.TxKind, id uint64) error {
	const op = "rpc.Confirm"

	if !session.Connected() {
		return vault.Errorf(vault.KindConfiguration, op, "no account connected")
	}
	params := []interface{}{sessionParam(session), string(kind), id}
	return c.call(ctx, op, "vault_confirmTransaction", params, nil)
}

// IsConfirmed reports whether the transaction has reached quorum.
func (c *Client) IsConfirmed(ctx context.Context, kind domain.TxKind, id uint64) (bool, error) {
	const op = "rpc.IsConfirmed"

	var confirmed bool
	if err := c.call(ctx, op, "vault_isConfirmed", []interface{}{string(kind), id}, &confirmed); err != nil {
		return false, err
	}
	return confirmed, nil
}

// Execute releases the funds of a quorum-confirmed transaction.
func (c *Client) Execute(ctx context.Context, session domain.Session, kind domain.TxKind, id uint64) (*domain.ExecutionReceipt, error) {
	const op = "rpc.Execute"

	if !session.Connected() {
		return nil, vault.Errorf(vault.KindConfiguration, op, "no account connected")
	}
	params := []interface{}{sessionParam(session), string(kind), id}
	var wire wireReceipt
	if err := c.call(ctx, op, "vault_executeTransaction", params, &wire); err != nil {
		return nil, err
	}
	return &domain.ExecutionReceipt{
		Kind:       domain.TxKind(wire.Kind),
		ID:         wire.ID,
		Receiver:   domain.Address(wire.Receiver),
		Amount:     wire.Amount,
		Block:      wire.Block,
		NewBalance: wire.NewBalance,
	}, nil
}

// TransactionCount returns the length of the kind-specific log.
func (c *Client) TransactionCount(ctx context.Context, kind domain.TxKind) (uint64, error) {
	const op = "rpc.TransactionCount"

	var count uint64
	if err := c.call(ctx, op, "vault_getTransactionCount", []interface{}{string(kind)}, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Transaction returns the transaction with the given id.
func (c *Client) Transaction(ctx context.Context, kind domain.TxKind, id uint64) (*domain.Transaction, error) {
	const op = "rpc.Transaction"

	var wire wireTransaction
	if err := c.call(ctx, op, "vault_getTransaction", []interface{}{string(kind), id}, &wire); err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		Kind:            domain.TxKind(wire.Kind),
		ID:              wire.ID,
		Receiver:        domain.Address(wire.Receiver),
		Amount:          wire.Amount,
		ConfirmedBy:     make(map[domain.Address]struct{}, len(wire.ConfirmedBy)),
		Executed:        wire.Executed,
		CreatedAtBlock:  wire.CreatedAtBlock,
		ExecutedAtBlock: wire.ExecutedAtBlock,
	}
	for _, owner := range wire.ConfirmedBy {
		tx.ConfirmedBy[domain.Address(owner)] = struct{}{}
	}
	return tx, nil
}

// Owners returns the vault's fixed owner set.
func (c *Client) Owners(ctx context.Context) ([]domain.Address, error) {
	const op = "rpc.Owners"

	var raw []string
	if err := c.call(ctx, op, "vault_getOwners", nil, &raw); err != nil {
		return nil, err
	}
	owners := make([]domain.Address, len(raw))
	for i, s := range raw {
		owners[i] = domain.Address(s)
	}
	return owners, nil
}

// Quorum returns the confirmation threshold the vault reports. The
// client enforces whatever comes back; it never invents a threshold.
func (c *Client) Quorum(ctx context.Context) (int, error) {
	const op = "rpc.Quorum"

	var quorum int
	if err := c.call(ctx, op, "vault_getQuorum", nil, &quorum); err != nil {
		return 0, err
	}
	return quorum, nil
}

// Balance returns the vault's live asset balance.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	const op = "rpc.Balance"

	var balance float64
	if err := c.call(ctx, op, "vault_getBalance", nil, &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// CheckpointAmount returns the per-period withdrawal ceiling.
func (c *Client) CheckpointAmount(ctx context.Context) (float64, error) {
	const op = "rpc.CheckpointAmount"

	var amount float64
	if err := c.call(ctx, op, "vault_getCheckpointAmount", nil, &amount); err != nil {
		return 0, err
	}
	return amount, nil
}

// LastWithdrawBlock returns the block of the most recent execution.
func (c *Client) LastWithdrawBlock(ctx context.Context) (uint64, error) {
	const op = "rpc.LastWithdrawBlock"

	var block uint64
	if err := c.call(ctx, op, "vault_getLastWithdrawBlock", nil, &block); err != nil {
		return 0, err
	}
	return block, nil
}
