package vault

import (
	"context"

	"affiliate-vault/internal/domain"
)

// Client is the vault protocol surface. The in-process ledger and the
// JSON-RPC gateway client both satisfy it, so operator code and tests
// are written once.
//
// Every mutating call carries an explicit Session; there is no ambient
// account state. Reads are eventually consistent with respect to very
// recent writes from other owners, so callers must re-read the
// transaction and the balance immediately before Execute rather than
// trusting values fetched earlier in the session.
type Client interface {
	// Submit appends a new pending transaction to the kind-specific log
	// and returns its id. It does not auto-confirm for the submitter.
	Submit(ctx context.Context, session domain.Session, kind domain.TxKind, receiver domain.Address, amount float64) (uint64, error)

	// Confirm records the session caller's confirmation. An owner may
	// confirm a given transaction at most once.
	Confirm(ctx context.Context, session domain.Session, kind domain.TxKind, id uint64) error

	// IsConfirmed reports whether the transaction has reached quorum.
	IsConfirmed(ctx context.Context, kind domain.TxKind, id uint64) (bool, error)

	// Execute releases the funds of a quorum-confirmed transaction.
	// Exactly one Execute per transaction can ever succeed; the loser
	// of a race fails with AlreadyExecuted.
	Execute(ctx context.Context, session domain.Session, kind domain.TxKind, id uint64) (*domain.ExecutionReceipt, error)

	// TransactionCount returns the length of the kind-specific log.
	TransactionCount(ctx context.Context, kind domain.TxKind) (uint64, error)

	// Transaction returns a copy of the transaction with the given id.
	Transaction(ctx context.Context, kind domain.TxKind, id uint64) (*domain.Transaction, error)

	// Owners returns the fixed owner set.
	Owners(ctx context.Context) ([]domain.Address, error)

	// Quorum returns the confirmation threshold the vault enforces.
	Quorum(ctx context.Context) (int, error)

	// Balance returns the vault's live asset balance. Never cache the
	// result across a payout decision.
	Balance(ctx context.Context) (float64, error)

	// CheckpointAmount returns the per-period withdrawal ceiling.
	CheckpointAmount(ctx context.Context) (float64, error)

	// LastWithdrawBlock returns the block of the most recent execution.
	LastWithdrawBlock(ctx context.Context) (uint64, error)
}
