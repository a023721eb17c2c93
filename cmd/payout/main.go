// Package main provides the operator CLI for the payout vault:
// submit, confirm, execute, show and run against the JSON-RPC gateway.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/payout"
	"affiliate-vault/internal/storage"
	"affiliate-vault/internal/storage/migrations"
	pgstore "affiliate-vault/internal/storage/postgres"
	"affiliate-vault/internal/vault"
	"affiliate-vault/internal/vault/rpc"
)

const usage = `Usage: payout <command> [flags]

Commands:
  submit    propose a new transaction
  confirm   confirm a pending transaction
  execute   execute a quorum-confirmed transaction
  show      print a transaction
  run       submit, confirm, await quorum, execute

Common flags:
  -gateway   vault gateway endpoint (env VAULT_GATEWAY_URL)
  -caller    owner address acting (env VAULT_CALLER)
  -chain     chain id (default 1)
  -kind      payout | fee (default payout)
`

// cliConfig holds flags shared by all subcommands.
type cliConfig struct {
	gateway     string
	caller      string
	chain       uint64
	kind        string
	id          uint64
	receiver    string
	amount      float64
	vaultAddr   string
	postgresDSN string
	timeout     time.Duration
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	command := os.Args[1]
	fs := flag.NewFlagSet(command, flag.ExitOnError)

	cfg := cliConfig{}
	fs.StringVar(&cfg.gateway, "gateway", os.Getenv("VAULT_GATEWAY_URL"), "Vault gateway endpoint")
	fs.StringVar(&cfg.caller, "caller", os.Getenv("VAULT_CALLER"), "Owner address acting")
	fs.Uint64Var(&cfg.chain, "chain", 1, "Chain id")
	fs.StringVar(&cfg.kind, "kind", "payout", "Transaction kind: payout or fee")
	fs.Uint64Var(&cfg.id, "id", 0, "Transaction id")
	fs.StringVar(&cfg.receiver, "receiver", "", "Receiver address (submit/run)")
	fs.Float64Var(&cfg.amount, "amount", 0, "Amount (submit/run)")
	fs.StringVar(&cfg.vaultAddr, "vault", os.Getenv("VAULT_ADDRESS"), "Vault address (audit ids)")
	fs.StringVar(&cfg.postgresDSN, "postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL DSN for audit recording (optional)")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Minute, "Overall command timeout")
	fs.Parse(os.Args[2:])

	kind := domain.TxKind(strings.ToUpper(cfg.kind))
	if !kind.Valid() {
		fatalf("unknown kind %q: use payout or fee", cfg.kind)
	}
	if cfg.gateway == "" {
		fatalf("-gateway or VAULT_GATEWAY_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	client, err := rpc.New(ctx, cfg.gateway)
	if err != nil {
		fatalf("connect gateway: %v", err)
	}

	session := domain.Session{
		Caller: domain.Address(cfg.caller),
		Chain:  domain.ChainID(cfg.chain),
	}

	switch command {
	case "submit":
		runSubmit(ctx, client, cfg, session, kind)
	case "confirm":
		runConfirm(ctx, client, cfg, session, kind)
	case "execute":
		runExecute(ctx, client, cfg, session, kind)
	case "show":
		runShow(ctx, client, cfg, kind)
	case "run":
		runFull(ctx, client, cfg, session, kind)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

// newOperator assembles the workflow, with the audit log attached when
// a postgres DSN was given.
func newOperator(ctx context.Context, client vault.Client, cfg cliConfig) (*payout.Operator, func()) {
	var audits storage.PayoutAuditStore
	cleanup := func() {}

	if cfg.postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.postgresDSN)
		if err != nil {
			fatalf("connect postgres: %v", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			fatalf("migrate postgres: %v", err)
		}
		audits = pgstore.NewPayoutAuditStore(pool)
		cleanup = pool.Close
	}

	op, err := payout.NewOperator(payout.Config{
		Client: client,
		Audits: audits,
		Chain:  domain.ChainID(cfg.chain),
		Vault:  domain.Address(cfg.vaultAddr),
	})
	if err != nil {
		cleanup()
		fatalf("create operator: %v", err)
	}
	return op, cleanup
}

func runSubmit(ctx context.Context, client vault.Client, cfg cliConfig, session domain.Session, kind domain.TxKind) {
	if cfg.receiver == "" {
		fatalf("-receiver is required")
	}

	op, cleanup := newOperator(ctx, client, cfg)
	defer cleanup()

	id, err := op.Submit(ctx, session, kind, domain.Address(cfg.receiver), cfg.amount)
	if err != nil {
		fatalVaultErr(err)
	}
	fmt.Printf("submitted %s tx %d\n", kind, id)
}

func runConfirm(ctx context.Context, client vault.Client, cfg cliConfig, session domain.Session, kind domain.TxKind) {
	op, cleanup := newOperator(ctx, client, cfg)
	defer cleanup()

	if err := op.Confirm(ctx, session, kind, cfg.id); err != nil {
		fatalVaultErr(err)
	}

	confirmed, err := client.IsConfirmed(ctx, kind, cfg.id)
	if err != nil {
		fatalVaultErr(err)
	}
	if confirmed {
		fmt.Printf("confirmed %s tx %d (quorum reached)\n", kind, cfg.id)
	} else {
		fmt.Printf("confirmed %s tx %d (quorum not yet reached)\n", kind, cfg.id)
	}
}

func runExecute(ctx context.Context, client vault.Client, cfg cliConfig, session domain.Session, kind domain.TxKind) {
	op, cleanup := newOperator(ctx, client, cfg)
	defer cleanup()

	receipt, err := op.Execute(ctx, session, kind, cfg.id)
	if err != nil {
		fatalVaultErr(err)
	}
	fmt.Printf("executed %s tx %d: %g to %s at block %d, vault balance %g\n",
		receipt.Kind, receipt.ID, receipt.Amount, receipt.Receiver, receipt.Block, receipt.NewBalance)
}

func runShow(ctx context.Context, client vault.Client, cfg cliConfig, kind domain.TxKind) {
	tx, err := client.Transaction(ctx, kind, cfg.id)
	if err != nil {
		fatalVaultErr(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(tx)
}

func runFull(ctx context.Context, client vault.Client, cfg cliConfig, session domain.Session, kind domain.TxKind) {
	if cfg.receiver == "" {
		fatalf("-receiver is required")
	}

	op, cleanup := newOperator(ctx, client, cfg)
	defer cleanup()

	fmt.Printf("submitting %s of %g to %s, waiting for quorum...\n", kind, cfg.amount, cfg.receiver)
	receipt, err := op.Run(ctx, session, kind, domain.Address(cfg.receiver), cfg.amount)
	if err != nil {
		fatalVaultErr(err)
	}
	fmt.Printf("executed %s tx %d: %g to %s at block %d, vault balance %g\n",
		receipt.Kind, receipt.ID, receipt.Amount, receipt.Receiver, receipt.Block, receipt.NewBalance)
}

// fatalVaultErr prints the taxonomy kind so the operator knows the
// corrective action, then exits non-zero.
func fatalVaultErr(err error) {
	if kind, ok := vault.KindOf(err); ok {
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", kind, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
