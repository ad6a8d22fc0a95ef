package oracle

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrStalePrice indicates the feed's last answer is older than the
	// caller's staleness threshold. Callers should refresh the upstream feed
	// rather than treat the trade as failed.
	ErrStalePrice = errors.New("oracle: price is stale")
	// ErrInvalidPrice indicates the feed answered with a zero or negative
	// value.
	ErrInvalidPrice = errors.New("oracle: invalid price answer")
	// ErrFeedNotFound is returned when no client is registered for the
	// requested feed address.
	ErrFeedNotFound = errors.New("oracle: feed not registered")
	// ErrPoolNotFound is returned when no client is registered for the
	// requested AMM pool address.
	ErrPoolNotFound = errors.New("oracle: amm pool not registered")
)

// RoundData mirrors the Chainlink aggregator round tuple.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       uint64
	UpdatedAt       uint64
	AnsweredInRound *big.Int
}

// Feed is a Chainlink-style push oracle.
type Feed interface {
	LatestRoundData(ctx context.Context) (RoundData, error)
	Decimals(ctx context.Context) (uint8, error)
}

// CurvePool exposes the EMA price oracle of a Curve AMM pool. Two-asset pools
// answer PriceOracle; metapools take a coin index.
type CurvePool interface {
	PriceOracle(ctx context.Context) (*big.Int, error)
	PriceOracleIndexed(ctx context.Context, i uint64) (*big.Int, error)
}

// pricePrecision is the 6-decimal fixed point the pool engine consumes.
var pricePrecision = big.NewInt(1_000_000)

// curvePrecision is the 18-decimal fixed point Curve pool oracles answer in.
var curvePrecision = big.NewInt(1_000_000_000_000_000_000)

// Adapter composes Chainlink feeds and Curve pool oracles into the uniform
// 6-decimal USD price surface the pool engine consumes. Clients are
// registered per contract address; the adapter never dials on its own.
type Adapter struct {
	mu    sync.RWMutex
	feeds map[common.Address]Feed
	pools map[common.Address]CurvePool
	now   func() time.Time
}

// NewAdapter constructs an empty adapter.
func NewAdapter() *Adapter {
	return &Adapter{
		feeds: make(map[common.Address]Feed),
		pools: make(map[common.Address]CurvePool),
		now:   time.Now,
	}
}

// RegisterFeed binds a Chainlink feed client to its contract address.
func (a *Adapter) RegisterFeed(addr common.Address, feed Feed) {
	if a == nil || feed == nil {
		return
	}
	a.mu.Lock()
	a.feeds[addr] = feed
	a.mu.Unlock()
}

// RegisterPool binds a Curve pool client to its contract address.
func (a *Adapter) RegisterPool(addr common.Address, pool CurvePool) {
	if a == nil || pool == nil {
		return
	}
	a.mu.Lock()
	a.pools[addr] = pool
	a.mu.Unlock()
}

// SetClock overrides the wall clock used for staleness checks in tests.
func (a *Adapter) SetClock(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.mu.Lock()
	a.now = now
	a.mu.Unlock()
}

func (a *Adapter) feed(addr common.Address) (Feed, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	feed, ok := a.feeds[addr]
	if !ok {
		return nil, ErrFeedNotFound
	}
	return feed, nil
}

func (a *Adapter) pool(addr common.Address) (CurvePool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	pool, ok := a.pools[addr]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

func (a *Adapter) clock() func() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.now
}

// chainlinkUsd fetches the feed's latest round, enforces the staleness
// threshold and rescales the feed's native decimals (commonly 8) to the
// 6-decimal pool unit.
func (a *Adapter) chainlinkUsd(ctx context.Context, addr common.Address, stalenessSeconds uint64) (*big.Int, error) {
	feed, err := a.feed(addr)
	if err != nil {
		return nil, err
	}
	round, err := feed.LatestRoundData(ctx)
	if err != nil {
		return nil, err
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	now := uint64(a.clock()().Unix())
	if now > round.UpdatedAt && now-round.UpdatedAt > stalenessSeconds {
		return nil, ErrStalePrice
	}
	decimals, err := feed.Decimals(ctx)
	if err != nil {
		return nil, err
	}
	return rescale(round.Answer, decimals, 6), nil
}

// CollateralPriceUsd answers the 6-decimal USD price of a collateral token
// from its bound Chainlink feed.
func (a *Adapter) CollateralPriceUsd(ctx context.Context, feed common.Address, stalenessSeconds uint64) (*big.Int, error) {
	return a.chainlinkUsd(ctx, feed, stalenessSeconds)
}

// DollarPriceUsd composes the Stable/USD Chainlink leg with the Dollar/Stable
// spot leg read from the Curve metapool oracle (coin index 0). The Chainlink
// leg is staleness-checked; the AMM leg answers live.
func (a *Adapter) DollarPriceUsd(ctx context.Context, stableFeed common.Address, stalenessSeconds uint64, stableDollarPool common.Address) (*big.Int, error) {
	stableUsd, err := a.chainlinkUsd(ctx, stableFeed, stalenessSeconds)
	if err != nil {
		return nil, err
	}
	pool, err := a.pool(stableDollarPool)
	if err != nil {
		return nil, err
	}
	dollarStable, err := pool.PriceOracleIndexed(ctx, 0)
	if err != nil {
		return nil, err
	}
	if dollarStable == nil || dollarStable.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	out := new(big.Int).Mul(stableUsd, dollarStable)
	return out.Quo(out, curvePrecision), nil
}

// GovernancePriceUsd composes the ETH/USD Chainlink leg with the
// Governance/ETH EMA leg from the Curve two-asset pool. The EMA resists
// single-block manipulation of the governance price.
func (a *Adapter) GovernancePriceUsd(ctx context.Context, ethFeed common.Address, stalenessSeconds uint64, governanceEthPool common.Address) (*big.Int, error) {
	ethUsd, err := a.chainlinkUsd(ctx, ethFeed, stalenessSeconds)
	if err != nil {
		return nil, err
	}
	pool, err := a.pool(governanceEthPool)
	if err != nil {
		return nil, err
	}
	governanceEth, err := pool.PriceOracle(ctx)
	if err != nil {
		return nil, err
	}
	if governanceEth == nil || governanceEth.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	out := new(big.Int).Mul(ethUsd, governanceEth)
	return out.Quo(out, curvePrecision), nil
}

// rescale moves a fixed-point value between decimal scales, truncating on the
// way down.
func rescale(v *big.Int, from, to uint8) *big.Int {
	out := new(big.Int).Set(v)
	if from == to {
		return out
	}
	if from > to {
		div := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil)
		return out.Quo(out, div)
	}
	mul := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil)
	return out.Mul(out, mul)
}
