package tokens

import "github.com/ethereum/go-ethereum/common"

// Token is the vertex-level view of an ERC20 asset. Instances are snapshots
// supplied by external fetchers and are treated as immutable.
type Token struct {
	Address              common.Address `json:"address"`
	Symbol               string         `json:"symbol"`
	Decimals             uint8          `json:"decimals"`
	FeeOnTransferPercent float64        `json:"feeOnTransferPercent"`
	GasForTransfer       uint64         `json:"gasForTransfer"`
}
