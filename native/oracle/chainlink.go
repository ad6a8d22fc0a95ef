package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller abstracts the eth_call surface of an RPC client so feed and
// pool clients can be tested without a live node. *ethclient.Client satisfies
// it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

const aggregatorABIJSON = `[
  {"name":"latestRoundData","type":"function","stateMutability":"view","inputs":[],
   "outputs":[{"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},
              {"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},
              {"name":"answeredInRound","type":"uint80"}]},
  {"name":"decimals","type":"function","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint8"}]}
]`

var aggregatorABI = mustABI(aggregatorABIJSON)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// FeedClient reads a Chainlink aggregator contract over eth_call.
type FeedClient struct {
	caller   ContractCaller
	contract common.Address
}

// NewFeedClient binds a feed client to the aggregator at contract.
func NewFeedClient(caller ContractCaller, contract common.Address) *FeedClient {
	return &FeedClient{caller: caller, contract: contract}
}

func (c *FeedClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if c == nil || c.caller == nil {
		return nil, fmt.Errorf("oracle: feed client not configured")
	}
	data, err := aggregatorABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := aggregatorABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// LatestRoundData implements Feed.
func (c *FeedClient) LatestRoundData(ctx context.Context) (RoundData, error) {
	out, err := c.call(ctx, "latestRoundData")
	if err != nil {
		return RoundData{}, err
	}
	if len(out) != 5 {
		return RoundData{}, fmt.Errorf("oracle: latestRoundData returned %d values", len(out))
	}
	round := RoundData{}
	var ok bool
	if round.RoundID, ok = out[0].(*big.Int); !ok {
		return RoundData{}, fmt.Errorf("oracle: unexpected roundId type %T", out[0])
	}
	if round.Answer, ok = out[1].(*big.Int); !ok {
		return RoundData{}, fmt.Errorf("oracle: unexpected answer type %T", out[1])
	}
	startedAt, ok := out[2].(*big.Int)
	if !ok {
		return RoundData{}, fmt.Errorf("oracle: unexpected startedAt type %T", out[2])
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return RoundData{}, fmt.Errorf("oracle: unexpected updatedAt type %T", out[3])
	}
	if round.AnsweredInRound, ok = out[4].(*big.Int); !ok {
		return RoundData{}, fmt.Errorf("oracle: unexpected answeredInRound type %T", out[4])
	}
	round.StartedAt = startedAt.Uint64()
	round.UpdatedAt = updatedAt.Uint64()
	return round, nil
}

// Decimals implements Feed.
func (c *FeedClient) Decimals(ctx context.Context) (uint8, error) {
	out, err := c.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("oracle: decimals returned %d values", len(out))
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("oracle: unexpected decimals type %T", out[0])
	}
	return decimals, nil
}
