package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const swapMethod = "swapExactTokensForTokens"

// UniswapV2RouterABI is the write side of IUniswapV2Router02 used by bundles
const UniswapV2RouterABI = `[{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"},{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}]`

// SwapParams are the arguments of swapExactTokensForTokens
type SwapParams struct {
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	To           common.Address
	Deadline     *big.Int
}

// TokenIn returns the first token of the path
func (p *SwapParams) TokenIn() common.Address {
	if len(p.Path) == 0 {
		return common.Address{}
	}
	return p.Path[0]
}

// TokenOut returns the last token of the path
func (p *SwapParams) TokenOut() common.Address {
	if len(p.Path) == 0 {
		return common.Address{}
	}
	return p.Path[len(p.Path)-1]
}

// TransactionDecoder packs and unpacks router swap calldata. It holds only
// the parsed ABI and is safe for concurrent use.
type TransactionDecoder struct {
	routerABI abi.ABI
}

// NewTransactionDecoder creates a new transaction decoder
func NewTransactionDecoder() (*TransactionDecoder, error) {
	parsed, err := abi.JSON(strings.NewReader(UniswapV2RouterABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse UniswapV2Router ABI: %w", err)
	}
	return &TransactionDecoder{routerABI: parsed}, nil
}

// EncodeSwap packs params as swapExactTokensForTokens calldata
func (d *TransactionDecoder) EncodeSwap(params *SwapParams) ([]byte, error) {
	if params == nil {
		return nil, fmt.Errorf("params cannot be nil")
	}
	if len(params.Path) < 2 {
		return nil, fmt.Errorf("invalid path")
	}
	if params.AmountIn == nil || params.AmountOutMin == nil || params.Deadline == nil {
		return nil, fmt.Errorf("amounts and deadline are required")
	}

	return d.routerABI.Pack(swapMethod,
		params.AmountIn,
		params.AmountOutMin,
		params.Path,
		params.To,
		params.Deadline,
	)
}

// DecodeSwap unpacks swapExactTokensForTokens calldata
func (d *TransactionDecoder) DecodeSwap(data []byte) (*SwapParams, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("invalid data length")
	}

	method, err := d.routerABI.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("failed to decode method: %w", err)
	}

	params := make(map[string]interface{})
	if err := method.Inputs.UnpackIntoMap(params, data[4:]); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}

	path, ok := params["path"].([]common.Address)
	if !ok || len(path) < 2 {
		return nil, fmt.Errorf("invalid path")
	}
	amountIn, ok := params["amountIn"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid amountIn")
	}
	amountOutMin, ok := params["amountOutMin"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid amountOutMin")
	}
	to, ok := params["to"].(common.Address)
	if !ok {
		return nil, fmt.Errorf("invalid to address")
	}
	deadline, ok := params["deadline"].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid deadline")
	}

	return &SwapParams{
		AmountIn:     amountIn,
		AmountOutMin: amountOutMin,
		Path:         path,
		To:           to,
		Deadline:     deadline,
	}, nil
}
