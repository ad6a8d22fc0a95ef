package state

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dollarpool/native/pool"
)

var (
	poolSettingsKey        = []byte("pool/settings")
	poolCollateralCountKey = []byte("pool/collateral-count")
	poolCollateralPrefix   = []byte("pool/collateral/")
	poolCollateralByToken  = []byte("pool/collateral-by-token/")
	poolRedemptionPrefix   = []byte("pool/redemption/")
	poolRedeemGovPrefix    = []byte("pool/redeem-governance/")
	poolLastRedeemedPrefix = []byte("pool/last-redeemed/")
	poolUnclaimedPrefix    = []byte("pool/unclaimed-collateral/")
	poolUnclaimedGovKey    = []byte("pool/unclaimed-governance")
	poolAmoMinterPrefix    = []byte("pool/amo-minter/")
)

func indexedKey(prefix []byte, index uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], index)
	return buf
}

func addressKey(prefix []byte, addr common.Address) []byte {
	buf := make([]byte, len(prefix)+common.AddressLength)
	copy(buf, prefix)
	copy(buf[len(prefix):], addr.Bytes())
	return buf
}

func redemptionKey(redeemer common.Address, index uint64) []byte {
	buf := make([]byte, len(poolRedemptionPrefix)+common.AddressLength+1+8)
	copy(buf, poolRedemptionPrefix)
	copy(buf[len(poolRedemptionPrefix):], redeemer.Bytes())
	buf[len(poolRedemptionPrefix)+common.AddressLength] = ':'
	binary.BigEndian.PutUint64(buf[len(poolRedemptionPrefix)+common.AddressLength+1:], index)
	return buf
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// storedPoolSettings is the RLP shape of the settings singleton.
type storedPoolSettings struct {
	Owner                 common.Address
	PoolAddress           common.Address
	DollarToken           common.Address
	GovernanceToken       common.Address
	CollateralRatio       *big.Int
	MintPriceThreshold    *big.Int
	RedeemPriceThreshold  *big.Int
	RedemptionDelayBlocks uint64
	EthUsdFeed            common.Address
	EthUsdStaleness       uint64
	StableUsdFeed         common.Address
	StableUsdStaleness    uint64
	GovernanceEthPool     common.Address
	StableDollarPool      common.Address
}

// Settings loads the pool settings singleton, nil when never initialised.
func (m *Manager) Settings() (*pool.Settings, error) {
	stored := new(storedPoolSettings)
	ok, err := m.kvGet(poolSettingsKey, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &pool.Settings{
		Owner:                 stored.Owner,
		PoolAddress:           stored.PoolAddress,
		DollarToken:           stored.DollarToken,
		GovernanceToken:       stored.GovernanceToken,
		CollateralRatio:       nonNil(stored.CollateralRatio),
		MintPriceThreshold:    nonNil(stored.MintPriceThreshold),
		RedeemPriceThreshold:  nonNil(stored.RedeemPriceThreshold),
		RedemptionDelayBlocks: stored.RedemptionDelayBlocks,
		EthUsdFeed:            stored.EthUsdFeed,
		EthUsdStaleness:       stored.EthUsdStaleness,
		StableUsdFeed:         stored.StableUsdFeed,
		StableUsdStaleness:    stored.StableUsdStaleness,
		GovernanceEthPool:     stored.GovernanceEthPool,
		StableDollarPool:      stored.StableDollarPool,
	}, nil
}

// PutSettings persists the pool settings singleton.
func (m *Manager) PutSettings(settings *pool.Settings) error {
	if settings == nil {
		return ErrNilValue
	}
	stored := &storedPoolSettings{
		Owner:                 settings.Owner,
		PoolAddress:           settings.PoolAddress,
		DollarToken:           settings.DollarToken,
		GovernanceToken:       settings.GovernanceToken,
		CollateralRatio:       nonNil(settings.CollateralRatio),
		MintPriceThreshold:    nonNil(settings.MintPriceThreshold),
		RedeemPriceThreshold:  nonNil(settings.RedeemPriceThreshold),
		RedemptionDelayBlocks: settings.RedemptionDelayBlocks,
		EthUsdFeed:            settings.EthUsdFeed,
		EthUsdStaleness:       settings.EthUsdStaleness,
		StableUsdFeed:         settings.StableUsdFeed,
		StableUsdStaleness:    settings.StableUsdStaleness,
		GovernanceEthPool:     settings.GovernanceEthPool,
		StableDollarPool:      settings.StableDollarPool,
	}
	return m.kvPut(poolSettingsKey, stored)
}

// storedCollateral is the RLP shape of a registry entry. RLP collapses a nil
// big.Int to zero, so the optional pool ceiling carries an explicit presence
// flag.
type storedCollateral struct {
	Index           uint64
	Symbol          string
	Token           common.Address
	PriceFeed       common.Address
	FeedStaleness   uint64
	IsEnabled       bool
	MissingDecimals uint8
	Price           *big.Int
	HasCeiling      bool
	PoolCeiling     *big.Int
	IsMintPaused    bool
	IsRedeemPaused  bool
	IsBorrowPaused  bool
	MintingFee      *big.Int
	RedemptionFee   *big.Int
}

// CollateralCount returns the number of registered collateral entries.
func (m *Manager) CollateralCount() (uint64, error) {
	var count uint64
	if _, err := m.kvGet(poolCollateralCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Collateral loads the registry entry at index, nil when absent.
func (m *Manager) Collateral(index uint64) (*pool.CollateralInformation, error) {
	stored := new(storedCollateral)
	ok, err := m.kvGet(indexedKey(poolCollateralPrefix, index), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	info := &pool.CollateralInformation{
		Index:           stored.Index,
		Symbol:          stored.Symbol,
		Token:           stored.Token,
		PriceFeed:       stored.PriceFeed,
		FeedStaleness:   stored.FeedStaleness,
		IsEnabled:       stored.IsEnabled,
		MissingDecimals: stored.MissingDecimals,
		Price:           nonNil(stored.Price),
		IsMintPaused:    stored.IsMintPaused,
		IsRedeemPaused:  stored.IsRedeemPaused,
		IsBorrowPaused:  stored.IsBorrowPaused,
		MintingFee:      nonNil(stored.MintingFee),
		RedemptionFee:   nonNil(stored.RedemptionFee),
	}
	if stored.HasCeiling {
		info.PoolCeiling = nonNil(stored.PoolCeiling)
	}
	return info, nil
}

// CollateralIndexByToken resolves the registry index for a collateral token
// address.
func (m *Manager) CollateralIndexByToken(token common.Address) (uint64, bool, error) {
	var index uint64
	ok, err := m.kvGet(addressKey(poolCollateralByToken, token), &index)
	if err != nil {
		return 0, false, err
	}
	return index, ok, nil
}

// PutCollateral persists the registry entry and keeps the count and the
// token-to-index mapping in step.
func (m *Manager) PutCollateral(info *pool.CollateralInformation) error {
	if info == nil {
		return ErrNilValue
	}
	stored := &storedCollateral{
		Index:           info.Index,
		Symbol:          info.Symbol,
		Token:           info.Token,
		PriceFeed:       info.PriceFeed,
		FeedStaleness:   info.FeedStaleness,
		IsEnabled:       info.IsEnabled,
		MissingDecimals: info.MissingDecimals,
		Price:           nonNil(info.Price),
		HasCeiling:      info.PoolCeiling != nil,
		PoolCeiling:     nonNil(info.PoolCeiling),
		IsMintPaused:    info.IsMintPaused,
		IsRedeemPaused:  info.IsRedeemPaused,
		IsBorrowPaused:  info.IsBorrowPaused,
		MintingFee:      nonNil(info.MintingFee),
		RedemptionFee:   nonNil(info.RedemptionFee),
	}
	if err := m.kvPut(indexedKey(poolCollateralPrefix, info.Index), stored); err != nil {
		return err
	}
	if err := m.kvPut(addressKey(poolCollateralByToken, info.Token), info.Index); err != nil {
		return err
	}
	count, err := m.CollateralCount()
	if err != nil {
		return err
	}
	if info.Index >= count {
		return m.kvPut(poolCollateralCountKey, info.Index+1)
	}
	return nil
}

// storedRedemption is the RLP shape of a two-phase redemption record.
type storedRedemption struct {
	Redeemer        common.Address
	CollateralIndex uint64
	Collateral      *big.Int
	StagedAtBlock   uint64
	Status          uint8
}

// Redemption loads the redemption record for the pair, nil when absent.
func (m *Manager) Redemption(redeemer common.Address, index uint64) (*pool.Redemption, error) {
	stored := new(storedRedemption)
	ok, err := m.kvGet(redemptionKey(redeemer, index), stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &pool.Redemption{
		Redeemer:        stored.Redeemer,
		CollateralIndex: stored.CollateralIndex,
		Collateral:      nonNil(stored.Collateral),
		StagedAtBlock:   stored.StagedAtBlock,
		Status:          pool.RedemptionStatus(stored.Status),
	}, nil
}

// PutRedemption persists the redemption record.
func (m *Manager) PutRedemption(record *pool.Redemption) error {
	if record == nil {
		return ErrNilValue
	}
	stored := &storedRedemption{
		Redeemer:        record.Redeemer,
		CollateralIndex: record.CollateralIndex,
		Collateral:      nonNil(record.Collateral),
		StagedAtBlock:   record.StagedAtBlock,
		Status:          uint8(record.Status),
	}
	return m.kvPut(redemptionKey(record.Redeemer, record.CollateralIndex), stored)
}

// RedeemGovernanceBalance returns the staged governance payout for the
// redeemer, zero when never written.
func (m *Manager) RedeemGovernanceBalance(redeemer common.Address) (*big.Int, error) {
	balance := new(big.Int)
	if _, err := m.kvGet(addressKey(poolRedeemGovPrefix, redeemer), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// PutRedeemGovernanceBalance persists the staged governance payout.
func (m *Manager) PutRedeemGovernanceBalance(redeemer common.Address, amount *big.Int) error {
	return m.kvPut(addressKey(poolRedeemGovPrefix, redeemer), nonNil(amount))
}

// LastRedeemedBlock returns the height of the redeemer's most recent staging.
// The boolean reports whether the redeemer has ever staged.
func (m *Manager) LastRedeemedBlock(redeemer common.Address) (uint64, bool, error) {
	var height uint64
	ok, err := m.kvGet(addressKey(poolLastRedeemedPrefix, redeemer), &height)
	if err != nil {
		return 0, false, err
	}
	return height, ok, nil
}

// PutLastRedeemedBlock records the redeemer's latest staging height.
func (m *Manager) PutLastRedeemedBlock(redeemer common.Address, height uint64) error {
	return m.kvPut(addressKey(poolLastRedeemedPrefix, redeemer), height)
}

// UnclaimedCollateral returns the staged but uncollected collateral liability
// for the index.
func (m *Manager) UnclaimedCollateral(index uint64) (*big.Int, error) {
	amount := new(big.Int)
	if _, err := m.kvGet(indexedKey(poolUnclaimedPrefix, index), amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// PutUnclaimedCollateral persists the staged collateral liability.
func (m *Manager) PutUnclaimedCollateral(index uint64, amount *big.Int) error {
	return m.kvPut(indexedKey(poolUnclaimedPrefix, index), nonNil(amount))
}

// UnclaimedGovernance returns the pool-wide staged governance liability.
func (m *Manager) UnclaimedGovernance() (*big.Int, error) {
	amount := new(big.Int)
	if _, err := m.kvGet(poolUnclaimedGovKey, amount); err != nil {
		return nil, err
	}
	return amount, nil
}

// PutUnclaimedGovernance persists the pool-wide staged governance liability.
func (m *Manager) PutUnclaimedGovernance(amount *big.Int) error {
	return m.kvPut(poolUnclaimedGovKey, nonNil(amount))
}

// AmoMinter loads the borrow authorisation for the address, nil when absent.
func (m *Manager) AmoMinter(addr common.Address) (*pool.AmoMinterInfo, error) {
	info := new(pool.AmoMinterInfo)
	ok, err := m.kvGet(addressKey(poolAmoMinterPrefix, addr), info)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return info, nil
}

// PutAmoMinter persists the borrow authorisation.
func (m *Manager) PutAmoMinter(info *pool.AmoMinterInfo) error {
	if info == nil {
		return ErrNilValue
	}
	return m.kvPut(addressKey(poolAmoMinterPrefix, info.Address), info)
}
