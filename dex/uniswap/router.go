package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flashscan/dex"
)

// Mainnet addresses, used as configuration defaults
var (
	MainnetRouter = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	WETHAddress   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// RouterABI is the quoting function of IUniswapV2Router02
const RouterABI = `[{
	"inputs": [
		{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
		{"internalType": "address[]", "name": "path", "type": "address[]"}
	],
	"name": "getAmountsOut",
	"outputs": [{"internalType": "uint256[]", "name": "amounts", "type": "uint256[]"}],
	"stateMutability": "view",
	"type": "function"
}]`

// RouterV2 quotes swaps through a Uniswap V2 style router contract. Any fork
// sharing the router ABI (SushiSwap and friends) works with it.
type RouterV2 struct {
	name      string
	address   common.Address
	caller    ethereum.ContractCaller
	routerABI abi.ABI
}

// NewRouterV2 creates a router bound to address
func NewRouterV2(name string, address common.Address, caller ethereum.ContractCaller) (*RouterV2, error) {
	parsedABI, err := abi.JSON(strings.NewReader(RouterABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse router ABI: %w", err)
	}

	return &RouterV2{
		name:      name,
		address:   address,
		caller:    caller,
		routerABI: parsedABI,
	}, nil
}

func (r *RouterV2) Name() string {
	return r.name
}

func (r *RouterV2) Address() common.Address {
	return r.address
}

// GetAmountsOut calls getAmountsOut on the router at the latest block
func (r *RouterV2) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	const method = "getAmountsOut"
	if len(path) < 2 {
		return nil, dex.ErrInvalidPath
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	input, err := r.routerABI.Pack(method, amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	output, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call to %s failed: %w", method, r.name, err)
	}

	values, err := r.routerABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected %s output length %d", method, len(values))
	}

	amounts, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse %s amounts", method)
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("%s returned %d amounts for a %d token path", method, len(amounts), len(path))
	}

	return amounts, nil
}

var _ dex.Router = (*RouterV2)(nil)
