// Package main provides the unified affiliate service:
// - Backend sync (scheduled): lead snapshots into the record cache
// - Eligibility (on sync + HTTP): engine queries and snapshot history
// - Vault watcher (continuous): WebSocket confirmation/execution feed
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"affiliate-vault/internal/backend"
	"affiliate-vault/internal/domain"
	"affiliate-vault/internal/eligibility"
	"affiliate-vault/internal/idhash"
	"affiliate-vault/internal/observability"
	"affiliate-vault/internal/storage"
	chstore "affiliate-vault/internal/storage/clickhouse"
	"affiliate-vault/internal/storage/memory"
	"affiliate-vault/internal/storage/migrations"
	pgstore "affiliate-vault/internal/storage/postgres"
	"affiliate-vault/internal/vault"
	"affiliate-vault/internal/vault/rpc"
	"affiliate-vault/internal/vault/stream"
)

// Server holds all components of the unified service.
type Server struct {
	// Configuration
	backendURL   string
	gatewayURL   string
	streamURL    string
	minDeposit   float64
	minVolume    float64
	syncInterval time.Duration

	// Stores
	stores *allStores

	// Components
	backendClient *backend.Client
	vaultClient   vault.Client
	logger        *log.Logger

	// State
	mu          sync.Mutex
	started     time.Time
	lastSync    time.Time
	syncRunning bool
	syncRuns    int
	recordCount int
}

// allStores holds all storage implementations.
type allStores struct {
	userRecordStore  storage.UserRecordStore
	payoutAuditStore storage.PayoutAuditStore
	snapshotStore    storage.EligibilitySnapshotStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	backendURL := flag.String("backend-url", os.Getenv("BACKEND_URL"), "Affiliate backend base URL")
	gatewayURL := flag.String("gateway-url", os.Getenv("VAULT_GATEWAY_URL"), "Vault JSON-RPC gateway endpoint")
	streamURL := flag.String("stream-url", os.Getenv("VAULT_STREAM_URL"), "Vault WebSocket event endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	minDeposit := flag.Float64("min-deposit", eligibility.DefaultMinDeposit, "Minimum net deposit threshold")
	minVolume := flag.Float64("min-volume", eligibility.DefaultMinVolume, "Minimum volume threshold")
	syncInterval := flag.Duration("sync-interval", 15*time.Minute, "Backend sync interval")
	httpAddr := flag.String("http-addr", ":8080", "HTTP API and metrics address")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *backendURL == "" {
		logger.Fatal("--backend-url is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}
	if *minDeposit < 0 || *minVolume < 0 {
		logger.Fatal("thresholds must be non-negative")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Backend client
	backendClient, err := backend.NewClient(*backendURL)
	if err != nil {
		logger.Fatalf("Failed to create backend client: %v", err)
	}

	// Vault gateway client (optional: eligibility-only deployments run
	// without one)
	var vaultClient vault.Client
	if *gatewayURL != "" {
		vaultClient, err = rpc.New(ctx, *gatewayURL)
		if err != nil {
			logger.Fatalf("Failed to connect vault gateway: %v", err)
		}
		logger.Printf("Connected to vault gateway at %s", *gatewayURL)
	}

	server := &Server{
		backendURL:    *backendURL,
		gatewayURL:    *gatewayURL,
		streamURL:     *streamURL,
		minDeposit:    *minDeposit,
		minVolume:     *minVolume,
		syncInterval:  *syncInterval,
		stores:        stores,
		backendClient: backendClient,
		vaultClient:   vaultClient,
		logger:        logger,
		started:       time.Now(),
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*httpAddr)

	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			userRecordStore:  memory.NewUserRecordStore(),
			payoutAuditStore: memory.NewPayoutAuditStore(),
			snapshotStore:    memory.NewEligibilitySnapshotStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	// ClickHouse (migrations create the database if needed)
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate clickhouse: %w", err)
	}

	stores := &allStores{
		userRecordStore:  pgstore.NewUserRecordStore(pool),
		payoutAuditStore: pgstore.NewPayoutAuditStore(pool),
		snapshotStore:    chstore.NewEligibilitySnapshotStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// Run starts the unified server with all components.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting unified server...")

	errCh := make(chan error, 2)

	// Backend sync loop
	go func() {
		err := s.runSyncLoop(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("backend sync: %w", err)
		}
	}()

	// Vault event watcher
	if s.streamURL != "" {
		go func() {
			err := s.runVaultWatcher(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("vault watcher: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// runSyncLoop syncs the backend snapshot on an interval.
func (s *Server) runSyncLoop(ctx context.Context) error {
	s.logger.Printf("Starting backend sync (interval: %v)...", s.syncInterval)

	// Run immediately on start
	s.runSync(ctx)

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

// runSync fetches the lead snapshot, replaces the cache and persists an
// eligibility snapshot.
func (s *Server) runSync(ctx context.Context) {
	s.mu.Lock()
	if s.syncRunning {
		s.mu.Unlock()
		s.logger.Println("Sync already running, skipping...")
		return
	}
	s.syncRunning = true
	s.mu.Unlock()

	start := time.Now()
	defer func() {
		s.mu.Lock()
		s.syncRunning = false
		s.lastSync = time.Now()
		s.syncRuns++
		s.mu.Unlock()
	}()

	result, err := s.backendClient.FetchUserRecords(ctx)
	if err != nil {
		s.logger.Printf("Backend sync error: %v", err)
		observability.RecordSyncRun("error", time.Since(start).Seconds())
		return
	}
	if result.Coerced > 0 {
		s.logger.Printf("Coerced %d malformed records", result.Coerced)
		observability.DefaultMetrics.MalformedRecords.Add(float64(result.Coerced))
	}

	if err := s.stores.userRecordStore.ReplaceAll(ctx, result.Records); err != nil {
		s.logger.Printf("Record cache replace error: %v", err)
		observability.RecordSyncRun("error", time.Since(start).Seconds())
		return
	}

	s.mu.Lock()
	s.recordCount = len(result.Records)
	s.mu.Unlock()

	observability.RecordSyncRun("success", time.Since(start).Seconds())
	observability.DefaultMetrics.RecordsSynced.Set(float64(len(result.Records)))
	observability.DefaultMetrics.LastSuccessfulSync.SetToCurrentTime()

	s.snapshotEligibility(ctx, result.Records)

	s.logger.Printf("Synced %d records in %v", len(result.Records), time.Since(start))
}

// snapshotEligibility evaluates both engine queries and persists the
// aggregates as one history row.
func (s *Server) snapshotEligibility(ctx context.Context, records []domain.UserRecord) {
	takenAt := time.Now().UnixMilli()

	pending := eligibility.PotentialProfitUsers(records, s.minDeposit, s.minVolume, nil)
	untriggered := eligibility.UntriggeredDeposits(records, s.minDeposit, s.minVolume)

	observability.RecordEvaluation(len(pending.Users), untriggered.Count, untriggered.PotentialCommission)

	snap := &domain.EligibilitySnapshot{
		SnapshotID:          idhash.ComputeSnapshotID(takenAt, s.minDeposit, s.minVolume, len(records)),
		TakenAt:             takenAt,
		MinDeposit:          s.minDeposit,
		MinVolume:           s.minVolume,
		PendingCount:        len(pending.Users),
		TotalMissingDeposit: pending.TotalMissingDeposit,
		TotalMissingVolume:  pending.TotalMissingVolume,
		AvgMissingDeposit:   pending.AvgMissingDeposit,
		AvgMissingVolume:    pending.AvgMissingVolume,
		UntriggeredCount:    untriggered.Count,
		TotalNetDeposits:    untriggered.TotalNetDeposits,
		TotalVolume:         untriggered.TotalVolume,
		ValidTriggerCount:   untriggered.ValidTriggerCount,
		ValidTriggerAmount:  untriggered.ValidTriggerAmount,
		PotentialCommission: untriggered.PotentialCommission,
	}

	if err := s.stores.snapshotStore.Insert(ctx, snap); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			s.logger.Printf("Snapshot insert error: %v", err)
		}
		return
	}
	observability.DefaultMetrics.SnapshotsPersisted.Inc()
}

// runVaultWatcher consumes the vault event stream so confirmations from
// other owners show up in logs and metrics.
func (s *Server) runVaultWatcher(ctx context.Context) error {
	s.logger.Printf("Starting vault watcher on %s...", s.streamURL)

	client, err := stream.NewClient(ctx, s.streamURL, nil)
	if err != nil {
		return fmt.Errorf("connect vault stream: %w", err)
	}
	defer client.Close()

	events, err := client.Subscribe(ctx, stream.Filter{})
	if err != nil {
		return fmt.Errorf("subscribe vault events: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("vault event channel closed")
			}
			observability.RecordStreamEvent(ev.Type)
			s.logger.Printf("Vault event: %s %s tx %d (owner %s, block %d)",
				ev.Type, ev.Kind, ev.ID, ev.Owner, ev.Block)
		}
	}
}

// startHTTPServer starts the HTTP server for the API, health and metrics.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("/metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("/status", s.handleStatus)

	// Eligibility API
	mux.HandleFunc("/api/eligibility/potential-profit", s.handlePotentialProfit)
	mux.HandleFunc("/api/eligibility/untriggered-deposits", s.handleUntriggeredDeposits)

	// Vault read API
	mux.HandleFunc("/api/vault/status", s.handleVaultStatus)
	mux.HandleFunc("/api/vault/transactions", s.handleVaultTransactions)
	mux.HandleFunc("/api/vault/audit", s.handlePayoutAudit)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status      string    `json:"status"`
	Uptime      string    `json:"uptime"`
	LastSync    time.Time `json:"last_sync,omitempty"`
	SyncRuns    int       `json:"sync_runs"`
	SyncRunning bool      `json:"sync_running"`
	RecordCount int       `json:"record_count"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).String(),
		LastSync:    s.lastSync,
		SyncRuns:    s.syncRuns,
		SyncRunning: s.syncRunning,
		RecordCount: s.recordCount,
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// thresholds reads min_deposit/min_volume query overrides, falling back
// to the configured defaults.
func (s *Server) thresholds(r *http.Request) (float64, float64, error) {
	minDeposit, minVolume := s.minDeposit, s.minVolume

	if v := r.URL.Query().Get("min_deposit"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return 0, 0, fmt.Errorf("invalid min_deposit %q", v)
		}
		minDeposit = f
	}
	if v := r.URL.Query().Get("min_volume"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return 0, 0, fmt.Errorf("invalid min_volume %q", v)
		}
		minVolume = f
	}
	return minDeposit, minVolume, nil
}

// handlePotentialProfit serves the potentialProfitUsers query.
func (s *Server) handlePotentialProfit(w http.ResponseWriter, r *http.Request) {
	minDeposit, minVolume, err := s.thresholds(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var sortSpec *eligibility.Sort
	if field := r.URL.Query().Get("sort_by"); field != "" {
		sortSpec, err = eligibility.ParseSort(field, r.URL.Query().Get("order"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	records, err := s.stores.userRecordStore.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "record cache unavailable")
		return
	}

	report := eligibility.PotentialProfitUsers(records, minDeposit, minVolume, sortSpec)
	writeJSON(w, http.StatusOK, report)
}

// handleUntriggeredDeposits serves the untriggeredDeposits query.
func (s *Server) handleUntriggeredDeposits(w http.ResponseWriter, r *http.Request) {
	minDeposit, minVolume, err := s.thresholds(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.stores.userRecordStore.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "record cache unavailable")
		return
	}

	report := eligibility.UntriggeredDeposits(records, minDeposit, minVolume)
	writeJSON(w, http.StatusOK, report)
}

// VaultStatusResponse is the JSON response for /api/vault/status.
type VaultStatusResponse struct {
	Owners            []domain.Address `json:"owners"`
	Quorum            int              `json:"quorum"`
	Balance           float64          `json:"balance"`
	CheckpointAmount  float64          `json:"checkpoint_amount"`
	LastWithdrawBlock uint64           `json:"last_withdraw_block"`
	PayoutCount       uint64           `json:"payout_count"`
	FeeCount          uint64           `json:"fee_count"`
}

// handleVaultStatus returns the vault's current configuration and state.
func (s *Server) handleVaultStatus(w http.ResponseWriter, r *http.Request) {
	if s.vaultClient == nil {
		writeError(w, http.StatusServiceUnavailable, "no vault gateway configured")
		return
	}

	ctx := r.Context()
	resp := VaultStatusResponse{}
	var err error

	if resp.Owners, err = s.vaultClient.Owners(ctx); err == nil {
		if resp.Quorum, err = s.vaultClient.Quorum(ctx); err == nil {
			if resp.Balance, err = s.vaultClient.Balance(ctx); err == nil {
				if resp.CheckpointAmount, err = s.vaultClient.CheckpointAmount(ctx); err == nil {
					if resp.LastWithdrawBlock, err = s.vaultClient.LastWithdrawBlock(ctx); err == nil {
						if resp.PayoutCount, err = s.vaultClient.TransactionCount(ctx, domain.TxPayout); err == nil {
							resp.FeeCount, err = s.vaultClient.TransactionCount(ctx, domain.TxFee)
						}
					}
				}
			}
		}
	}
	if err != nil {
		writeVaultError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleVaultTransactions returns one transaction (?kind=&id=) or the
// log length (?kind= only).
func (s *Server) handleVaultTransactions(w http.ResponseWriter, r *http.Request) {
	if s.vaultClient == nil {
		writeError(w, http.StatusServiceUnavailable, "no vault gateway configured")
		return
	}

	kind := domain.TxKind(strings.ToUpper(r.URL.Query().Get("kind")))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "kind must be PAYOUT or FEE")
		return
	}

	idParam := r.URL.Query().Get("id")
	if idParam == "" {
		count, err := s.vaultClient.TransactionCount(r.Context(), kind)
		if err != nil {
			writeVaultError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]uint64{"count": count})
		return
	}

	id, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}

	tx, err := s.vaultClient.Transaction(r.Context(), kind, id)
	if err != nil {
		writeVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// PayoutAuditResponse is the JSON response for /api/vault/audit.
type PayoutAuditResponse struct {
	Entries   []*domain.PayoutAudit `json:"entries"`
	TotalPaid float64               `json:"total_paid"`
}

// handlePayoutAudit lists the executed-transaction audit log per kind.
// Payout and fee reports never mix.
func (s *Server) handlePayoutAudit(w http.ResponseWriter, r *http.Request) {
	kind := domain.TxKind(strings.ToUpper(r.URL.Query().Get("kind")))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "kind must be PAYOUT or FEE")
		return
	}

	entries, err := s.stores.payoutAuditStore.ListByKind(r.Context(), kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit log unavailable")
		return
	}
	total, err := s.stores.payoutAuditStore.TotalPaid(r.Context(), kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit log unavailable")
		return
	}

	writeJSON(w, http.StatusOK, PayoutAuditResponse{Entries: entries, TotalPaid: total})
}

// writeVaultError maps taxonomy kinds onto HTTP statuses. The point of
// the taxonomy is that the caller can tell these apart, so the API must
// not collapse them to 500.
func writeVaultError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if kind, ok := vault.KindOf(err); ok {
		switch kind {
		case vault.KindValidation:
			status = http.StatusBadRequest
		case vault.KindAuthorization:
			status = http.StatusForbidden
		case vault.KindInsufficientState, vault.KindAlreadyExecuted:
			status = http.StatusConflict
		case vault.KindConfiguration:
			status = http.StatusServiceUnavailable
		case vault.KindTransport:
			status = http.StatusBadGateway
		}
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
