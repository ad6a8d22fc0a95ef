package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"dollarpool/native/pool"
	"dollarpool/observability"
	"dollarpool/services/poold/storage"
)

// PoolEngine is the slice of the pool engine the refresh loop drives.
type PoolEngine interface {
	AllCollaterals() ([]*pool.CollateralInformation, error)
	UpdateCollateralPrice(ctx context.Context, index uint64) (*big.Int, error)
	UnclaimedPoolCollateral(index uint64) (*big.Int, error)
}

// BorrowView exposes the borrow ledger total published alongside each refresh.
type BorrowView interface {
	TotalBorrowed() (*big.Int, error)
}

// Manager periodically refreshes the cached collateral prices through the
// pool engine and records the history for operators.
type Manager struct {
	logger   *slog.Logger
	engine   PoolEngine
	store    *storage.Storage
	borrow   BorrowView
	metrics  *observability.PoolMetrics
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	once     sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics installs the metrics registry.
func WithMetrics(pm *observability.PoolMetrics) Option {
	return func(m *Manager) {
		m.metrics = pm
	}
}

// WithBorrowLedger installs the borrow ledger whose total is published as a
// gauge on every tick.
func WithBorrowLedger(v BorrowView) Option {
	return func(m *Manager) {
		m.borrow = v
	}
}

// WithClock overrides the wall clock used for run bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New constructs a manager instance.
func New(engine PoolEngine, store *storage.Storage, interval, timeout time.Duration, opts ...Option) (*Manager, error) {
	if engine == nil {
		return nil, fmt.Errorf("pool engine required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	mgr := &Manager{
		logger:   slog.Default(),
		engine:   engine,
		store:    store,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr, nil
}

// Run blocks, refreshing prices until the context is cancelled. The first
// refresh happens immediately.
func (m *Manager) Run(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.once.Do(func() {
		m.logger.Info("price refresh loop started", "interval", m.interval.String())
	})
	for {
		if err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Error("refresh tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick refreshes every enabled collateral once.
func (m *Manager) Tick(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("manager not configured")
	}
	started := m.now()
	runID, err := m.store.BeginRun(ctx, started)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	collaterals, err := m.engine.AllCollaterals()
	if err != nil {
		return fmt.Errorf("list collaterals: %w", err)
	}
	refreshed, failed := 0, 0
	for _, info := range collaterals {
		if !info.IsEnabled {
			continue
		}
		tickCtx, cancel := context.WithTimeout(ctx, m.timeout)
		price, refreshErr := m.engine.UpdateCollateralPrice(tickCtx, info.Index)
		cancel()
		m.metrics.ObservePriceRefresh(info.Symbol, refreshErr)
		if refreshErr != nil {
			failed++
			m.logger.Warn("collateral refresh failed",
				"symbol", info.Symbol, "index", info.Index, "error", refreshErr)
			if err := m.store.RecordSample(ctx, runID, info.Index, info.Symbol, "", refreshErr.Error(), m.now()); err != nil {
				m.logger.Error("record failed sample", "error", err)
			}
			continue
		}
		refreshed++
		m.metrics.SetCollateralPrice(info.Symbol, price)
		if unclaimed, err := m.engine.UnclaimedPoolCollateral(info.Index); err == nil {
			m.metrics.SetStagedLiability(info.Symbol, unclaimed)
		}
		if err := m.store.RecordSample(ctx, runID, info.Index, info.Symbol, price.String(), "ok", m.now()); err != nil {
			m.logger.Error("record sample", "error", err)
		}
	}
	if m.borrow != nil {
		if total, err := m.borrow.TotalBorrowed(); err == nil {
			m.metrics.SetAmoBorrowed(total)
		} else {
			m.logger.Warn("read borrow total", "error", err)
		}
	}
	if err := m.store.CompleteRun(ctx, runID, refreshed, failed, m.now()); err != nil {
		m.logger.Error("complete run", "error", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d collateral refreshes failed", failed, refreshed+failed)
	}
	return nil
}
