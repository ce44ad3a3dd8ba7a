package walletevent

import (
	"github.com/ethereum/go-ethereum/common"
)

// EventType type for event types.
type EventType string

const (
	// EventPendingTransactionUpdate is emitted when a tracked transaction is added or deleted.
	EventPendingTransactionUpdate EventType = "pending-transaction-update"
	// EventTransactionStatusChanged is emitted when a tracked transaction changes status.
	EventTransactionStatusChanged EventType = "transaction-status-changed"
	// EventRequestQueueUpdated is emitted when a dApp request is added, removed or changes status.
	EventRequestQueueUpdated EventType = "request-queue-updated"
	// EventBlockchainStatusChanged is emitted when every endpoint of a chain goes down or one comes back.
	EventBlockchainStatusChanged EventType = "wallet-blockchain-status-changed"
)

// Event is published on the coordinator feeds.
type Event struct {
	Type      EventType        `json:"type"`
	Accounts  []common.Address `json:"accounts,omitempty"`
	Message   string           `json:"message,omitempty"`
	At        int64            `json:"at"`
	ChainID   uint64           `json:"chainId,omitempty"`
	RequestID string           `json:"requestId,omitempty"`
	TxID      string           `json:"txId,omitempty"`
}
