package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Curve exposes price_oracle in two shapes: parameterless on two-asset pools
// and coin-indexed on metapools. They are kept in separate ABI definitions so
// the packer never has to disambiguate the overload.
const curvePlainABIJSON = `[
  {"name":"price_oracle","type":"function","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]}
]`

const curveMetaABIJSON = `[
  {"name":"price_oracle","type":"function","stateMutability":"view",
   "inputs":[{"name":"i","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

var (
	curvePlainABI = mustABI(curvePlainABIJSON)
	curveMetaABI  = mustABI(curveMetaABIJSON)
)

// PoolClient reads the EMA oracle of a Curve pool over eth_call.
type PoolClient struct {
	caller   ContractCaller
	contract common.Address
}

// NewPoolClient binds a pool client to the Curve pool at contract.
func NewPoolClient(caller ContractCaller, contract common.Address) *PoolClient {
	return &PoolClient{caller: caller, contract: contract}
}

// PriceOracle implements CurvePool for two-asset pools.
func (c *PoolClient) PriceOracle(ctx context.Context) (*big.Int, error) {
	if c == nil || c.caller == nil {
		return nil, fmt.Errorf("oracle: pool client not configured")
	}
	data, err := curvePlainABI.Pack("price_oracle")
	if err != nil {
		return nil, fmt.Errorf("pack price_oracle: %w", err)
	}
	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call price_oracle: %w", err)
	}
	out, err := curvePlainABI.Unpack("price_oracle", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack price_oracle: %w", err)
	}
	return unpackUint256(out)
}

// PriceOracleIndexed implements CurvePool for metapools.
func (c *PoolClient) PriceOracleIndexed(ctx context.Context, i uint64) (*big.Int, error) {
	if c == nil || c.caller == nil {
		return nil, fmt.Errorf("oracle: pool client not configured")
	}
	data, err := curveMetaABI.Pack("price_oracle", new(big.Int).SetUint64(i))
	if err != nil {
		return nil, fmt.Errorf("pack price_oracle(i): %w", err)
	}
	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call price_oracle(i): %w", err)
	}
	out, err := curveMetaABI.Unpack("price_oracle", raw)
	if err != nil {
		return nil, fmt.Errorf("unpack price_oracle(i): %w", err)
	}
	return unpackUint256(out)
}

func unpackUint256(out []interface{}) (*big.Int, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("oracle: expected one return value, got %d", len(out))
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("oracle: unexpected return type %T", out[0])
	}
	return value, nil
}
