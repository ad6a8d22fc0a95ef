package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"dollarpool/native/pool"
	"dollarpool/observability"
	"dollarpool/services/poold/storage"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
}

// PoolView is the read-only slice of the pool engine exposed over HTTP.
type PoolView interface {
	AllCollaterals() ([]*pool.CollateralInformation, error)
	FreeCollateralBalance(index uint64) (*big.Int, error)
	Settings() (*pool.Settings, error)
	CollateralUsdBalance() (*big.Int, error)
	UnclaimedPoolGovernance() (*big.Int, error)
	RedeemCollateralBalance(redeemer common.Address, index uint64) (*big.Int, error)
	RedeemGovernanceBalance(redeemer common.Address) (*big.Int, error)
	RedemptionStatusOf(redeemer common.Address, index uint64) (pool.RedemptionStatus, error)
}

// AmoView is the read-only slice of the AMO borrow ledger exposed over HTTP.
type AmoView interface {
	Amos() ([]common.Address, error)
	BorrowedBalance(amo common.Address) (*big.Int, error)
	TotalBorrowed() (*big.Int, error)
	BorrowCap() (*big.Int, error)
}

// Server hosts the poold read API and health endpoint.
type Server struct {
	cfg     Config
	pool    PoolView
	amo     AmoView
	store   *storage.Storage
	logger  *slog.Logger
	metrics *observability.PoolMetrics
}

// New constructs an HTTP server over the pool and AMO views.
func New(cfg Config, poolView PoolView, amoView AmoView, store *storage.Storage, logger *slog.Logger) (*Server, error) {
	if poolView == nil {
		return nil, fmt.Errorf("pool view required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	return &Server{cfg: cfg, pool: poolView, amo: amoView, store: store, logger: logger}, nil
}

// SetMetrics installs the metrics registry used for request latency.
func (s *Server) SetMetrics(m *observability.PoolMetrics) {
	if s == nil {
		return
	}
	s.metrics = m
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", s.instrument("poold.health", s.handleHealth))
	mux.Handle("GET /v1/pool/status", s.instrument("poold.pool_status", s.handlePoolStatus))
	mux.Handle("GET /v1/pool/collaterals", s.instrument("poold.collaterals", s.handleCollaterals))
	mux.Handle("GET /v1/pool/collaterals/{index}/free", s.instrument("poold.free", s.handleFreeCollateral))
	mux.Handle("GET /v1/pool/collaterals/{index}/history", s.instrument("poold.history", s.handleHistory))
	mux.Handle("GET /v1/pool/redemptions/{address}/{index}", s.instrument("poold.redemption", s.handleRedemption))
	mux.Handle("GET /v1/amo/status", s.instrument("poold.amo_status", s.handleAmoStatus))
	return mux
}

func (s *Server) instrument(route string, handler http.HandlerFunc) http.Handler {
	wrapped := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		handler(w, r)
		s.metrics.ObserveRequest(route, r.Method, time.Since(start))
	})
	return otelhttp.NewHandler(wrapped, route)
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type poolStatusResponse struct {
	CollateralRatio       string `json:"collateralRatio"`
	MintPriceThreshold    string `json:"mintPriceThreshold"`
	RedeemPriceThreshold  string `json:"redeemPriceThreshold"`
	RedemptionDelayBlocks uint64 `json:"redemptionDelayBlocks"`
	CollateralUsdBalance  string `json:"collateralUsdBalance"`
	UnclaimedGovernance   string `json:"unclaimedGovernance"`
}

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	settings, err := s.pool.Settings()
	if err != nil {
		s.fail(w, "load settings", err)
		return
	}
	usd, err := s.pool.CollateralUsdBalance()
	if err != nil {
		s.fail(w, "usd balance", err)
		return
	}
	unclaimed, err := s.pool.UnclaimedPoolGovernance()
	if err != nil {
		s.fail(w, "unclaimed governance", err)
		return
	}
	writeJSON(w, http.StatusOK, poolStatusResponse{
		CollateralRatio:       bigString(settings.CollateralRatio),
		MintPriceThreshold:    bigString(settings.MintPriceThreshold),
		RedeemPriceThreshold:  bigString(settings.RedeemPriceThreshold),
		RedemptionDelayBlocks: settings.RedemptionDelayBlocks,
		CollateralUsdBalance:  bigString(usd),
		UnclaimedGovernance:   bigString(unclaimed),
	})
}

type collateralResponse struct {
	Index          uint64 `json:"index"`
	Symbol         string `json:"symbol"`
	Token          string `json:"token"`
	Enabled        bool   `json:"enabled"`
	Price          string `json:"price"`
	PoolCeiling    string `json:"poolCeiling,omitempty"`
	MintingFee     string `json:"mintingFee"`
	RedemptionFee  string `json:"redemptionFee"`
	IsMintPaused   bool   `json:"isMintPaused"`
	IsRedeemPaused bool   `json:"isRedeemPaused"`
	IsBorrowPaused bool   `json:"isBorrowPaused"`
}

func (s *Server) handleCollaterals(w http.ResponseWriter, r *http.Request) {
	collaterals, err := s.pool.AllCollaterals()
	if err != nil {
		s.fail(w, "list collaterals", err)
		return
	}
	out := make([]collateralResponse, 0, len(collaterals))
	for _, info := range collaterals {
		entry := collateralResponse{
			Index:          info.Index,
			Symbol:         info.Symbol,
			Token:          info.Token.Hex(),
			Enabled:        info.IsEnabled,
			Price:          bigString(info.Price),
			MintingFee:     bigString(info.MintingFee),
			RedemptionFee:  bigString(info.RedemptionFee),
			IsMintPaused:   info.IsMintPaused,
			IsRedeemPaused: info.IsRedeemPaused,
			IsBorrowPaused: info.IsBorrowPaused,
		}
		if info.PoolCeiling != nil {
			entry.PoolCeiling = info.PoolCeiling.String()
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) parseIndex(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := r.PathValue("index")
	index, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid collateral index", http.StatusBadRequest)
		return 0, false
	}
	return index, true
}

func (s *Server) handleFreeCollateral(w http.ResponseWriter, r *http.Request) {
	index, ok := s.parseIndex(w, r)
	if !ok {
		return
	}
	free, err := s.pool.FreeCollateralBalance(index)
	if err != nil {
		http.Error(w, "collateral not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"index": strconv.FormatUint(index, 10),
		"free":  bigString(free),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	index, ok := s.parseIndex(w, r)
	if !ok {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	samples, err := s.store.RecentSamples(r.Context(), index, limit)
	if err != nil {
		s.fail(w, "load history", err)
		return
	}
	type sampleResponse struct {
		RunID      string    `json:"runId"`
		Symbol     string    `json:"symbol"`
		Price      string    `json:"price,omitempty"`
		Outcome    string    `json:"outcome"`
		RecordedAt time.Time `json:"recordedAt"`
	}
	out := make([]sampleResponse, 0, len(samples))
	for _, sample := range samples {
		out = append(out, sampleResponse{
			RunID:      sample.RunID,
			Symbol:     sample.Symbol,
			Price:      sample.Price,
			Outcome:    sample.Outcome,
			RecordedAt: sample.RecordedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRedemption(w http.ResponseWriter, r *http.Request) {
	rawAddr := r.PathValue("address")
	if !common.IsHexAddress(rawAddr) {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	index, ok := s.parseIndex(w, r)
	if !ok {
		return
	}
	redeemer := common.HexToAddress(rawAddr)
	status, err := s.pool.RedemptionStatusOf(redeemer, index)
	if err != nil {
		s.fail(w, "redemption status", err)
		return
	}
	collateral, err := s.pool.RedeemCollateralBalance(redeemer, index)
	if err != nil {
		s.fail(w, "staged collateral", err)
		return
	}
	governance, err := s.pool.RedeemGovernanceBalance(redeemer)
	if err != nil {
		s.fail(w, "staged governance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"redeemer":   redeemer.Hex(),
		"index":      strconv.FormatUint(index, 10),
		"status":     status.String(),
		"collateral": bigString(collateral),
		"governance": bigString(governance),
	})
}

type amoStatusResponse struct {
	TotalBorrowed string            `json:"totalBorrowed"`
	BorrowCap     string            `json:"borrowCap"`
	Balances      map[string]string `json:"balances"`
}

func (s *Server) handleAmoStatus(w http.ResponseWriter, r *http.Request) {
	if s.amo == nil {
		http.Error(w, "amo ledger not configured", http.StatusNotFound)
		return
	}
	total, err := s.amo.TotalBorrowed()
	if err != nil {
		s.fail(w, "total borrowed", err)
		return
	}
	cap, err := s.amo.BorrowCap()
	if err != nil {
		s.fail(w, "borrow cap", err)
		return
	}
	amos, err := s.amo.Amos()
	if err != nil {
		s.fail(w, "list amos", err)
		return
	}
	balances := make(map[string]string, len(amos))
	for _, addr := range amos {
		balance, err := s.amo.BorrowedBalance(addr)
		if err != nil {
			s.fail(w, "borrowed balance", err)
			return
		}
		balances[addr.Hex()] = bigString(balance)
	}
	writeJSON(w, http.StatusOK, amoStatusResponse{
		TotalBorrowed: bigString(total),
		BorrowCap:     bigString(cap),
		Balances:      balances,
	})
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
