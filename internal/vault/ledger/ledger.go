// Package ledger implements the multisig payout vault state machine:
// two independently numbered transaction logs (payout, fee) sharing one
// submit -> confirm -> execute lifecycle, with confirmation bookkeeping,
// balance re-validation and a per-period withdrawal checkpoint.
//
// The ledger stands in for the externally-serialized on-chain store: a
// single mutex serializes every state-mutating call, which is what makes
// the execute-once guarantee hold under concurrent owners.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/vault"
)

var errInsufficientFunds = errors.New("insufficient funds")

// Config describes a vault at creation time. The owner set and quorum
// are fixed for the vault's lifetime.
type Config struct {
	VaultAddress domain.Address
	Owners       []domain.Address
	Quorum       int
	Asset        Asset

	// CheckpointAmount caps total withdrawals per period; 0 disables
	// the checkpoint. CheckpointPeriod is the period length in blocks.
	CheckpointAmount float64
	CheckpointPeriod uint64
}

// txLog is one kind-specific transaction sequence. Payout and fee logs
// are two instances of this type; they share the state-machine code but
// never a counter.
type txLog struct {
	kind domain.TxKind
	txs  []*domain.Transaction
}

func (l *txLog) get(id uint64) (*domain.Transaction, bool) {
	if id >= uint64(len(l.txs)) {
		return nil, false
	}
	return l.txs[id], true
}

// Ledger is the in-process multisig vault.
type Ledger struct {
	// mu serializes all access; the execute path depends on it for the
	// exactly-once guarantee.
	mu sync.Mutex

	vaultAddr  domain.Address
	owners     map[domain.Address]struct{}
	ownerOrder []domain.Address
	quorum     int
	asset      Asset
	checkpoint domain.Checkpoint
	block      uint64

	payouts txLog
	fees    txLog
}

// Compile-time interface check.
var _ vault.Client = (*Ledger)(nil)

// New validates cfg and creates a vault ledger.
func New(cfg Config) (*Ledger, error) {
	const op = "ledger.New"

	if cfg.Asset == nil {
		return nil, vault.Errorf(vault.KindConfiguration, op, "no asset")
	}
	if cfg.VaultAddress == "" {
		return nil, vault.Errorf(vault.KindConfiguration, op, "no vault address")
	}
	if len(cfg.Owners) == 0 {
		return nil, vault.Errorf(vault.KindConfiguration, op, "no owners")
	}
	if cfg.Quorum < 1 || cfg.Quorum > len(cfg.Owners) {
		return nil, vault.Errorf(vault.KindConfiguration, op,
			"quorum %d out of range for %d owners", cfg.Quorum, len(cfg.Owners))
	}
	// An active ceiling needs a period, otherwise every block would
	// reset the spent amount and the ceiling caps single transactions
	// instead of a period's total.
	if cfg.CheckpointAmount > 0 && cfg.CheckpointPeriod == 0 {
		return nil, vault.Errorf(vault.KindConfiguration, op,
			"checkpoint amount %v with zero period", cfg.CheckpointAmount)
	}

	owners := make(map[domain.Address]struct{}, len(cfg.Owners))
	order := make([]domain.Address, 0, len(cfg.Owners))
	for _, o := range cfg.Owners {
		if _, dup := owners[o]; dup {
			return nil, vault.Errorf(vault.KindConfiguration, op, "duplicate owner %s", o)
		}
		owners[o] = struct{}{}
		order = append(order, o)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	return &Ledger{
		vaultAddr:  cfg.VaultAddress,
		owners:     owners,
		ownerOrder: order,
		quorum:     cfg.Quorum,
		asset:      cfg.Asset,
		checkpoint: domain.Checkpoint{
			Amount:       cfg.CheckpointAmount,
			PeriodBlocks: cfg.CheckpointPeriod,
		},
		payouts: txLog{kind: domain.TxPayout},
		fees:    txLog{kind: domain.TxFee},
	}, nil
}

// log returns the kind-specific transaction log.
func (l *Ledger) log(kind domain.TxKind) (*txLog, bool) {
	switch kind {
	case domain.TxPayout:
		return &l.payouts, true
	case domain.TxFee:
		return &l.fees, true
	default:
		return nil, false
	}
}

// requireOwner checks the session is connected and its caller holds
// confirmation rights.
func (l *Ledger) requireOwner(op string, session domain.Session) error {
	if !session.Connected() {
		return vault.Errorf(vault.KindConfiguration, op, "no account connected")
	}
	if _, ok := l.owners[session.Caller]; !ok {
		return vault.Errorf(vault.KindAuthorization, op, "%s is not a vault owner", session.Caller)
	}
	return nil
}

// Submit appends a new pending transaction. It does not confirm on
// behalf of the submitter.
func (l *Ledger) Submit(_ context.Context, session domain.Session, kind domain.TxKind, receiver domain.Address, amount float64) (uint64, error) {
	const op = "ledger.Submit"

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwner(op, session); err != nil {
		return 0, err
	}
	log, ok := l.log(kind)
	if !ok {
		return 0, vault.Errorf(vault.KindValidation, op, "unknown transaction kind %q", kind)
	}
	if amount <= 0 {
		return 0, vault.Errorf(vault.KindValidation, op, "amount must be positive, got %v", amount)
	}
	if _, err := domain.ParseAddress(receiver.String()); err != nil {
		return 0, vault.Wrap(vault.KindValidation, op, "bad receiver", err)
	}

	l.block++
	tx := &domain.Transaction{
		Kind:           kind,
		ID:             uint64(len(log.txs)),
		Receiver:       receiver,
		Amount:         amount,
		ConfirmedBy:    make(map[domain.Address]struct{}),
		CreatedAtBlock: l.block,
	}
	log.txs = append(log.txs, tx)
	return tx.ID, nil
}

// Confirm adds the caller to the transaction's confirmation set.
func (l *Ledger) Confirm(_ context.Context, session domain.Session, kind domain.TxKind, id uint64) error {
	const op = "ledger.Confirm"

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwner(op, session); err != nil {
		return err
	}
	log, ok := l.log(kind)
	if !ok {
		return vault.Errorf(vault.KindValidation, op, "unknown transaction kind %q", kind)
	}
	tx, ok := log.get(id)
	if !ok {
		return vault.Errorf(vault.KindValidation, op, "no %s transaction %d", kind, id)
	}
	if tx.Executed {
		return vault.Errorf(vault.KindAlreadyExecuted, op, "%s transaction %d already executed", kind, id)
	}
	if _, done := tx.ConfirmedBy[session.Caller]; done {
		return vault.Errorf(vault.KindAuthorization, op, "%s already confirmed %s transaction %d", session.Caller, kind, id)
	}

	l.block++
	tx.ConfirmedBy[session.Caller] = struct{}{}
	return nil
}

// IsConfirmed reports whether the transaction has reached quorum.
func (l *Ledger) IsConfirmed(_ context.Context, kind domain.TxKind, id uint64) (bool, error) {
	const op = "ledger.IsConfirmed"

	l.mu.Lock()
	defer l.mu.Unlock()

	log, ok := l.log(kind)
	if !ok {
		return false, vault.Errorf(vault.KindValidation, op, "unknown transaction kind %q", kind)
	}
	tx, ok := log.get(id)
	if !ok {
		return false, vault.Errorf(vault.KindValidation, op, "no %s transaction %d", kind, id)
	}
	return tx.Confirmations() >= l.quorum, nil
}

// Execute releases the funds of a quorum-confirmed transaction. The
// whole check-then-act sequence runs under the ledger mutex, so of two
// concurrent Execute calls on one id exactly one debits the balance and
// the other fails with AlreadyExecuted. Rejections are terminal: the
// caller must re-fetch state, not retry.
func (l *Ledger) Execute(_ context.Context, session domain.Session, kind domain.TxKind, id uint64) (*domain.ExecutionReceipt, error) {
	const op = "ledger.Execute"

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.requireOwner(op, session); err != nil {
		return nil, err
	}
	log, ok := l.log(kind)
	if !ok {
		return nil, vault.Errorf(vault.KindValidation, op, "unknown transaction kind %q", kind)
	}
	tx, ok := log.get(id)
	if !ok {
		return nil, vault.Errorf(vault.KindValidation, op, "no %s transaction %d", kind, id)
	}
	if tx.Executed {
		return nil, vault.Errorf(vault.KindAlreadyExecuted, op, "%s transaction %d already executed", kind, id)
	}
	if tx.Confirmations() < l.quorum {
		return nil, vault.Errorf(vault.KindInsufficientState, op,
			"%s transaction %d has %d of %d confirmations", kind, id, tx.Confirmations(), l.quorum)
	}

	// Balance and checkpoint are validated as the last checks before the
	// transfer, against live state, never against an earlier read.
	l.block++
	balance := l.asset.BalanceOf(l.vaultAddr)
	if balance < tx.Amount {
		return nil, vault.Errorf(vault.KindInsufficientState, op,
			"balance %v below amount %v", balance, tx.Amount)
	}
	if !l.checkpoint.Allows(tx.Amount, l.block) {
		return nil, vault.Errorf(vault.KindInsufficientState, op,
			"amount %v breaches checkpoint ceiling %v", tx.Amount, l.checkpoint.Amount)
	}

	if err := l.asset.Transfer(l.vaultAddr, tx.Receiver, tx.Amount); err != nil {
		return nil, vault.Wrap(vault.KindInsufficientState, op, "transfer", err)
	}

	if l.checkpoint.Expired(l.block) {
		l.checkpoint.SpentInPeriod = 0
	}
	l.checkpoint.SpentInPeriod += tx.Amount
	l.checkpoint.LastWithdrawBlock = l.block
	tx.Executed = true
	tx.ExecutedAtBlock = l.block

	return &domain.ExecutionReceipt{
		Kind:       kind,
		ID:         id,
		Receiver:   tx.Receiver,
		Amount:     tx.Amount,
		Block:      l.block,
		NewBalance: l.asset.BalanceOf(l.vaultAddr),
	}, nil
}

// TransactionCount returns the length of the kind-specific log.
func (l *Ledger) TransactionCount(_ context.Context, kind domain.TxKind) (uint64, error) {
	const op = "ledger.TransactionCount"

	l.mu.Lock()
	defer l.mu.Unlock()

	log, ok := l.log(kind)
	if !ok {
		return 0, vault.Errorf(vault.KindValidation, op, "unknown transaction kind %q", kind)
	}
	return uint64(len(log.txs)), nil
}

// Transaction returns a copy of the transaction with the given id.
func (l *Ledger) Transaction(_ context.Context, kind domain.TxKind, id uint64) (*domain.Transaction, error) {
	const op = "ledger.Transaction"

	l.mu.Lock()
	defer l.mu.Unlock()

	log, ok := l.log(kind)
	if !ok {
		return nil, vault.Errorf(vault.KindValidation, op, "unknown transaction kind %q", kind)
	}
	tx, ok := log.get(id)
	if !ok {
		return nil, vault.Errorf(vault.KindValidation, op, "no %s transaction %d", kind, id)
	}
	return tx.Clone(), nil
}

// Owners returns the owner set in stable order.
func (l *Ledger) Owners(_ context.Context) ([]domain.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Address, len(l.ownerOrder))
	copy(out, l.ownerOrder)
	return out, nil
}

// Quorum returns the confirmation threshold.
func (l *Ledger) Quorum(_ context.Context) (int, error) {
	return l.quorum, nil
}

// Balance returns the vault's live asset balance.
func (l *Ledger) Balance(_ context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.asset.BalanceOf(l.vaultAddr), nil
}

// CheckpointAmount returns the per-period withdrawal ceiling.
func (l *Ledger) CheckpointAmount(_ context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkpoint.Amount, nil
}

// LastWithdrawBlock returns the block of the most recent execution.
func (l *Ledger) LastWithdrawBlock(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkpoint.LastWithdrawBlock, nil
}
