package transactions

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// IDGenerator returns a new transaction id that is unique within (from, chainID).
type IDGenerator func(from common.Address, chainID uint64) TxID

// NewTxID is the default generator. Ids are random uuids, independent of any
// chain hash, so they exist before submission and survive replacement.
func NewTxID(from common.Address, chainID uint64) TxID {
	return TxID(uuid.NewString())
}
