package sushiswap

import (
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flashscan/dex/uniswap"
)

// MainnetRouter is the SushiSwap V2 router, used as a configuration default
var MainnetRouter = common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F")

// NewRouter returns a SushiSwap router. SushiSwap is a V2 fork so it shares
// the Uniswap router ABI.
func NewRouter(name string, address common.Address, caller ethereum.ContractCaller) (*uniswap.RouterV2, error) {
	if name == "" {
		name = "sushiswap"
	}
	if address == (common.Address{}) {
		address = MainnetRouter
	}
	return uniswap.NewRouterV2(name, address, caller)
}
