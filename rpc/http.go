package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lottochain/core/events"
	"lottochain/core/types"
	"lottochain/native/lotto"
	"lottochain/observability"
	"lottochain/services/indexer"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	defaultDuplicateTTL    = 2 * time.Minute
	moduleName             = "lotto"
	requestIDHeader        = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeForbidden      = -32003
	codeNotFound       = -32004
	codeDuplicateTx    = -32010
	codeRateLimited    = -32020
	codeStateConflict  = -32030
	codeArithmetic     = -32031
	codeInsufficient   = -32032
	codeUnavailable    = -32040
)

// Ledger is the state machine the server fronts.
type Ledger interface {
	InitializeRound(ctx context.Context, accts lotto.InitializeRoundAccounts, args lotto.InitializeRoundArgs) (*lotto.Round, error)
	JoinRound(ctx context.Context, accts lotto.JoinRoundAccounts, args lotto.JoinRoundArgs) (*lotto.Entry, error)
	SettleRound(ctx context.Context, accts lotto.SettleRoundAccounts) (*lotto.Round, error)
	ClaimPayout(ctx context.Context, accts lotto.ClaimPayoutAccounts) (*lotto.Round, uint64, error)
	ClaimRefund(ctx context.Context, accts lotto.ClaimRefundAccounts) (*lotto.Entry, error)
	AdminClose(ctx context.Context, accts lotto.AdminCloseAccounts, args lotto.AdminCloseArgs) (*lotto.Round, error)
	Airdrop(ctx context.Context, to solana.PublicKey, lamports uint64) (*types.Account, error)

	Round(addr solana.PublicKey) (*lotto.Round, error)
	Entry(addr solana.PublicKey) (*lotto.Entry, error)
	Treasury(addr solana.PublicKey) (*lotto.Treasury, error)
	Balance(addr solana.PublicKey) (uint64, error)
	ListEntries(round solana.PublicKey, offset, limit int) ([]*lotto.Entry, error)
	EntrantEntries(entrant solana.PublicKey) ([]*lotto.Entry, error)
	ListRounds(authority solana.PublicKey, offset, limit int) ([]*lotto.Round, error)
	DeriveAddresses(authority solana.PublicKey, roundID uint64) (lotto.Addresses, error)
	DeriveEntry(round, entrant solana.PublicKey, nonce uint8) (solana.PublicKey, error)
	ProgramID() solana.PublicKey
	Slot() uint64
}

// ActivityFeed serves indexed history.
type ActivityFeed interface {
	Activity(ctx context.Context, wallet string, limit int) ([]indexer.ActivityRecord, error)
	Rounds(ctx context.Context, status string, limit int) ([]indexer.RoundRecord, error)
}

// ServerConfig tunes the JSON-RPC server.
type ServerConfig struct {
	// AuthToken is accepted as a bearer token for admin methods when no JWT
	// secret is configured.
	AuthToken string
	JWTSecret string
	JWTIssuer string

	RateLimitPerSecond float64
	RateLimitBurst     int
	DuplicateTTL       time.Duration
	MaxRequestBytes    int64

	TrustedProxies    []string
	TrustProxyHeaders bool

	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	Logger *slog.Logger
	// Events feeds the websocket stream. Nil disables /ws/events.
	Events *events.Hub
	// Activity backs lotto_listActivity and lotto_indexedRounds. Nil disables
	// both.
	Activity ActivityFeed
}

type Server struct {
	ledger   Ledger
	cfg      ServerConfig
	logger   *slog.Logger
	hub      *events.Hub
	activity ActivityFeed
	auth     *authenticator
	limiter  *sourceLimiter
	trusted  map[string]struct{}

	mu     sync.Mutex
	txSeen map[string]time.Time

	serverMu   sync.Mutex
	httpServer *http.Server
}

func NewServer(ledger Ledger, cfg ServerConfig) *Server {
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = defaultMaxRequestBytes
	}
	if cfg.DuplicateTTL <= 0 {
		cfg.DuplicateTTL = defaultDuplicateTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	trusted := make(map[string]struct{}, len(cfg.TrustedProxies))
	for _, proxy := range cfg.TrustedProxies {
		if trimmed := strings.TrimSpace(proxy); trimmed != "" {
			trusted[trimmed] = struct{}{}
		}
	}
	return &Server{
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "rpc")),
		hub:      cfg.Events,
		activity: cfg.Activity,
		auth:     newAuthenticator(cfg.AuthToken, cfg.JWTSecret, cfg.JWTIssuer),
		limiter:  newSourceLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		trusted:  trusted,
		txSeen:   make(map[string]time.Time),
	}
}

// Handler returns the HTTP surface: JSON-RPC on POST /, the event stream,
// health and metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withRequestID)
	r.Post("/", s.handle)
	r.Get("/ws/events", s.handleEventsWS)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return otelhttp.NewHandler(r, "lotto-rpc")
}

// Serve accepts connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: positiveDuration(s.cfg.ReadHeaderTimeout, 5*time.Second),
		WriteTimeout:      positiveDuration(s.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       positiveDuration(s.cfg.IdleTimeout, 60*time.Second),
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()
	s.logger.Info("json-rpc server listening", slog.String("addr", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func positiveDuration(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

type requestIDKey struct{}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e == nil {
		return ""
	}
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	raw, err := json.Marshal(result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, id, codeServerError, "failed to encode result", err.Error())
		return
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: raw}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	w = recorder
	method := ""
	defer func() {
		observability.ModuleMetrics().Observe(moduleName, method, recorder.status, time.Since(started))
	}()

	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	method = req.Method

	switch req.Method {
	case MethodInitializeRound:
		s.handleInitializeRound(w, r, req)
	case MethodJoinRound:
		s.handleJoinRound(w, r, req)
	case MethodSettleRound:
		s.handleSettleRound(w, r, req)
	case MethodClaimPayout:
		s.handleClaimPayout(w, r, req)
	case MethodClaimRefund:
		s.handleClaimRefund(w, r, req)
	case MethodAdminClose:
		s.handleAdminClose(w, r, req)
	case MethodRequestAirdrop:
		if authErr := s.auth.require(r, scopeAirdrop); authErr != nil {
			status := http.StatusUnauthorized
			if authErr.Code == codeForbidden {
				status = http.StatusForbidden
			}
			writeError(w, status, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleRequestAirdrop(w, r, req)
	case MethodGetRound:
		s.handleGetRound(w, r, req)
	case MethodGetEntry:
		s.handleGetEntry(w, r, req)
	case MethodGetTreasury:
		s.handleGetTreasury(w, r, req)
	case MethodGetBalance:
		s.handleGetBalance(w, r, req)
	case MethodListEntries:
		s.handleListEntries(w, r, req)
	case MethodListRounds:
		s.handleListRounds(w, r, req)
	case MethodGetSlot:
		writeResult(w, req.ID, SlotResult{Slot: s.ledger.Slot()})
	case MethodDeriveAddresses:
		s.handleDeriveAddresses(w, r, req)
	case MethodListActivity:
		s.handleListActivity(w, r, req)
	case MethodIndexedRounds:
		s.handleIndexedRounds(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"slot":      s.ledger.Slot(),
		"programId": s.ledger.ProgramID().String(),
	})
}

// rememberTx records a signature digest and reports whether it is new.
func (s *Server) rememberTx(hash string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for h, seenAt := range s.txSeen {
		if now.Sub(seenAt) > s.cfg.DuplicateTTL {
			delete(s.txSeen, h)
		}
	}
	if _, exists := s.txSeen[hash]; exists {
		return false
	}
	s.txSeen[hash] = now
	return true
}

// forgetTx drops a digest so a request rejected before execution can be
// retried with the same signature.
func (s *Server) forgetTx(hash string) {
	s.mu.Lock()
	delete(s.txSeen, hash)
	s.mu.Unlock()
}

// clientSource identifies the caller for rate limiting. Forwarded headers are
// honoured only from trusted proxies or when explicitly enabled.
func (s *Server) clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	_, trusted := s.trusted[host]
	if !trusted && !s.cfg.TrustProxyHeaders {
		return host
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		candidate := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if candidate != "" {
			return candidate
		}
	}
	return host
}
