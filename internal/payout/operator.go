// Package payout drives the operator workflow against a vault: submit,
// confirm, await quorum, execute. It works against any vault.Client,
// so the same code runs over the in-process ledger in tests and the
// JSON-RPC gateway in production.
package payout

import (
	"context"
	"errors"
	"log"
	"time"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/idhash"
	"affiliate-vault/internal/storage"
	"affiliate-vault/internal/vault"
)

// Default configuration values.
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 1 * time.Second
	DefaultPollInterval = 2 * time.Second
)

// Config configures an Operator.
type Config struct {
	Client vault.Client

	// Audits is the append-only execution log. Optional; nil disables
	// audit recording.
	Audits storage.PayoutAuditStore

	// Chain and Vault feed the deterministic audit ids.
	Chain domain.ChainID
	Vault domain.Address

	// MaxRetries bounds transport retries per call. Rejections are
	// never retried regardless.
	MaxRetries int

	// RetryDelay is the initial backoff delay.
	RetryDelay time.Duration

	// PollInterval paces quorum polling in Run.
	PollInterval time.Duration

	Logger *log.Logger
}

// Operator executes the payout workflow.
type Operator struct {
	client       vault.Client
	audits       storage.PayoutAuditStore
	chain        domain.ChainID
	vault        domain.Address
	maxRetries   int
	retryDelay   time.Duration
	pollInterval time.Duration
	logger       *log.Logger
	now          func() int64
}

// NewOperator creates an Operator.
func NewOperator(cfg Config) (*Operator, error) {
	const op = "payout.NewOperator"

	if cfg.Client == nil {
		return nil, vault.Errorf(vault.KindConfiguration, op, "no vault client")
	}
	if cfg.MaxRetries < 0 {
		return nil, vault.Errorf(vault.KindConfiguration, op, "negative max retries")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Operator{
		client:       cfg.Client,
		audits:       cfg.Audits,
		chain:        cfg.Chain,
		vault:        cfg.Vault,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		pollInterval: cfg.PollInterval,
		logger:       cfg.Logger,
		now:          func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Submit proposes a transaction, retrying transport failures.
func (o *Operator) Submit(ctx context.Context, session domain.Session, kind domain.TxKind, receiver domain.Address, amount float64) (uint64, error) {
	var id uint64
	err := o.withRetry(ctx, func() error {
		var err error
		id, err = o.client.Submit(ctx, session, kind, receiver, amount)
		return err
	})
	if err != nil {
		return 0, err
	}

	o.logger.Printf("submitted %s tx %d: %g to %s", kind, id, amount, receiver)
	return id, nil
}

// Confirm records the caller's confirmation, retrying transport failures.
func (o *Operator) Confirm(ctx context.Context, session domain.Session, kind domain.TxKind, id uint64) error {
	err := o.withRetry(ctx, func() error {
		return o.client.Confirm(ctx, session, kind, id)
	})
	if err != nil {
		return err
	}

	o.logger.Printf("confirmed %s tx %d as %s", kind, id, session.Caller)
	return nil
}

// Execute re-reads the transaction and live balance, refuses to proceed
// on quorum or balance shortfall, then executes. Values fetched earlier
// in the session are never trusted: another owner may have executed or
// drained the vault since.
func (o *Operator) Execute(ctx context.Context, session domain.Session, kind domain.TxKind, id uint64) (*domain.ExecutionReceipt, error) {
	const op = "payout.Execute"

	tx, err := o.client.Transaction(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if tx.Executed {
		return nil, vault.Errorf(vault.KindAlreadyExecuted, op, "%s tx %d already executed", kind, id)
	}

	quorum, err := o.client.Quorum(ctx)
	if err != nil {
		return nil, err
	}
	if tx.Confirmations() < quorum {
		return nil, vault.Errorf(vault.KindInsufficientState, op,
			"%s tx %d has %d of %d confirmations", kind, id, tx.Confirmations(), quorum)
	}

	balance, err := o.client.Balance(ctx)
	if err != nil {
		return nil, err
	}
	if balance < tx.Amount {
		return nil, vault.Errorf(vault.KindInsufficientState, op,
			"vault balance %g below %s tx %d amount %g", balance, kind, id, tx.Amount)
	}

	var receipt *domain.ExecutionReceipt
	err = o.withRetry(ctx, func() error {
		var err error
		receipt, err = o.client.Execute(ctx, session, kind, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	o.logger.Printf("executed %s tx %d: %g to %s, balance %g",
		kind, id, receipt.Amount, receipt.Receiver, receipt.NewBalance)
	o.recordAudit(ctx, receipt)
	return receipt, nil
}

// Run drives the whole workflow for a single owner: submit, confirm,
// poll until quorum, execute. The other owners confirm out of band.
func (o *Operator) Run(ctx context.Context, session domain.Session, kind domain.TxKind, receiver domain.Address, amount float64) (*domain.ExecutionReceipt, error) {
	id, err := o.Submit(ctx, session, kind, receiver, amount)
	if err != nil {
		return nil, err
	}

	if err := o.Confirm(ctx, session, kind, id); err != nil {
		return nil, err
	}

	if err := o.awaitQuorum(ctx, kind, id); err != nil {
		return nil, err
	}

	return o.Execute(ctx, session, kind, id)
}

// awaitQuorum polls IsConfirmed until quorum or context cancellation.
func (o *Operator) awaitQuorum(ctx context.Context, kind domain.TxKind, id uint64) error {
	for {
		confirmed, err := o.client.IsConfirmed(ctx, kind, id)
		if err != nil && !vault.IsKind(err, vault.KindTransport) {
			return err
		}
		if err == nil && confirmed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.pollInterval):
		}
	}
}

// recordAudit appends the execution to the audit log. A duplicate means
// another process already recorded the same execution, which is fine.
func (o *Operator) recordAudit(ctx context.Context, receipt *domain.ExecutionReceipt) {
	if o.audits == nil {
		return
	}

	audit := &domain.PayoutAudit{
		AuditID:    idhash.ComputeAuditID(o.chain, o.vault, receipt.Kind, receipt.ID, receipt.Block),
		Kind:       receipt.Kind,
		TxID:       receipt.ID,
		Receiver:   string(receipt.Receiver),
		Amount:     receipt.Amount,
		Block:      receipt.Block,
		ExecutedAt: o.now(),
	}

	if err := o.audits.Insert(ctx, audit); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		o.logger.Printf("record audit %s: %v", audit.AuditID, err)
	}
}

// withRetry retries fn on TransportError with exponential backoff.
// Every other error kind is terminal: a rejection will not change by
// asking again with the same input.
func (o *Operator) withRetry(ctx context.Context, fn func() error) error {
	delay := o.retryDelay
	var lastErr error

	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !vault.IsKind(lastErr, vault.KindTransport) {
			return lastErr
		}
	}

	return lastErr
}
