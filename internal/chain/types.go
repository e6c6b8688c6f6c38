package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Receipt is the finalization record of a submitted transaction. Quantity
// fields keep their wire hex encoding; use the accessors.
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	GasUsed         string `json:"gasUsed"`
	Status          string `json:"status"`
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r.Status == "0x1"
}

// GasUsedUnits returns the gas consumed, or 0 when unparsable.
func (r *Receipt) GasUsedUnits() uint64 {
	value, err := hexutil.DecodeUint64(r.GasUsed)
	if err != nil {
		return 0
	}
	return value
}

// CourseDetails is the authoritative on-chain course record.
type CourseDetails struct {
	ID              uint64
	MetadataCID     string
	VideoCID        string
	PriceWei        *big.Int
	Owner           common.Address
	TotalShares     *big.Int
	TotalProfits    *big.Int
	RemainingShares *big.Int
}
