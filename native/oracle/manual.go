package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// ManualFeed is an in-memory Feed used for tests and manual overrides during
// incident response.
type ManualFeed struct {
	mu       sync.RWMutex
	round    RoundData
	decimals uint8
	set      bool
}

// NewManualFeed constructs a feed answering with the given decimals.
func NewManualFeed(decimals uint8) *ManualFeed {
	return &ManualFeed{decimals: decimals}
}

// SetAnswer records the answer and its update timestamp. The round counter is
// advanced on every call.
func (f *ManualFeed) SetAnswer(answer *big.Int, updatedAt uint64) {
	if f == nil || answer == nil {
		return
	}
	f.mu.Lock()
	roundID := new(big.Int).Add(bigOrZero(f.round.RoundID), big.NewInt(1))
	f.round = RoundData{
		RoundID:         roundID,
		Answer:          new(big.Int).Set(answer),
		StartedAt:       updatedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: roundID,
	}
	f.set = true
	f.mu.Unlock()
}

// LatestRoundData implements Feed.
func (f *ManualFeed) LatestRoundData(context.Context) (RoundData, error) {
	if f == nil {
		return RoundData{}, fmt.Errorf("oracle: manual feed not configured")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return RoundData{}, fmt.Errorf("oracle: manual feed has no answer")
	}
	round := f.round
	round.RoundID = new(big.Int).Set(f.round.RoundID)
	round.Answer = new(big.Int).Set(f.round.Answer)
	round.AnsweredInRound = new(big.Int).Set(f.round.AnsweredInRound)
	return round, nil
}

// Decimals implements Feed.
func (f *ManualFeed) Decimals(context.Context) (uint8, error) {
	if f == nil {
		return 0, fmt.Errorf("oracle: manual feed not configured")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.decimals, nil
}

// ManualPool is an in-memory CurvePool for tests and overrides.
type ManualPool struct {
	mu      sync.RWMutex
	price   *big.Int
	indexed map[uint64]*big.Int
}

// NewManualPool constructs an empty manual pool.
func NewManualPool() *ManualPool {
	return &ManualPool{indexed: make(map[uint64]*big.Int)}
}

// SetPrice records the parameterless EMA price (18 decimals).
func (p *ManualPool) SetPrice(price *big.Int) {
	if p == nil || price == nil {
		return
	}
	p.mu.Lock()
	p.price = new(big.Int).Set(price)
	p.mu.Unlock()
}

// SetIndexedPrice records the price for a metapool coin index (18 decimals).
func (p *ManualPool) SetIndexedPrice(i uint64, price *big.Int) {
	if p == nil || price == nil {
		return
	}
	p.mu.Lock()
	p.indexed[i] = new(big.Int).Set(price)
	p.mu.Unlock()
}

// PriceOracle implements CurvePool.
func (p *ManualPool) PriceOracle(context.Context) (*big.Int, error) {
	if p == nil {
		return nil, fmt.Errorf("oracle: manual pool not configured")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.price == nil {
		return nil, fmt.Errorf("oracle: manual pool has no price")
	}
	return new(big.Int).Set(p.price), nil
}

// PriceOracleIndexed implements CurvePool.
func (p *ManualPool) PriceOracleIndexed(_ context.Context, i uint64) (*big.Int, error) {
	if p == nil {
		return nil, fmt.Errorf("oracle: manual pool not configured")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.indexed[i]
	if !ok {
		return nil, fmt.Errorf("oracle: manual pool has no price for index %d", i)
	}
	return new(big.Int).Set(price), nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
