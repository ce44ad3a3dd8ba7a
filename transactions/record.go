package transactions

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type TxStatus string

const (
	Pending      TxStatus = "Pending"
	Cancelling   TxStatus = "Cancelling"
	Confirmed    TxStatus = "Confirmed"
	Failed       TxStatus = "Failed"
	Canceled     TxStatus = "Canceled"
	FailedCancel TxStatus = "FailedCancel"
)

// IsTerminal reports whether no further transition can be applied.
func (s TxStatus) IsTerminal() bool {
	switch s {
	case Confirmed, Failed, Canceled, FailedCancel:
		return true
	}
	return false
}

// CanTransitionTo implements the record state machine:
// Pending -> {Confirmed, Failed, Cancelling}, Cancelling -> {Canceled, FailedCancel}.
func (s TxStatus) CanTransitionTo(next TxStatus) bool {
	switch s {
	case Pending:
		return next == Confirmed || next == Failed || next == Cancelling
	case Cancelling:
		return next == Canceled || next == FailedCancel
	}
	return false
}

// Outcome maps an observed inclusion outcome to the terminal status matching
// the intent of a record currently in status s.
func (s TxStatus) Outcome(success bool) TxStatus {
	if s == Cancelling {
		if success {
			return Canceled
		}
		return FailedCancel
	}
	if success {
		return Confirmed
	}
	return Failed
}

type TxID string

// TxIdentity addresses a record inside the tracked set.
type TxIdentity struct {
	From    common.Address `json:"from"`
	ChainID uint64         `json:"chainId"`
	ID      TxID           `json:"id"`
}

func (i TxIdentity) String() string {
	return fmt.Sprintf("%s/%d/%s", i.From.Hex(), i.ChainID, i.ID)
}

type TxType string

const (
	TxTypeSend         TxType = "send"
	TxTypeBatchedCalls TxType = "batched-calls"
	TxTypeOrder        TxType = "order"
)

// TypeInfo is display metadata, copied onto replacement records.
type TypeInfo struct {
	Type      TxType `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	DAppURL   string `json:"dAppUrl,omitempty"`
	// ReplacedID points at the record a replacement or cancellation supersedes.
	ReplacedID TxID `json:"replacedId,omitempty"`
}

type SubmissionChannel string

const (
	ChannelPublic       SubmissionChannel = "public"
	ChannelPrivateRelay SubmissionChannel = "private"
)

type SubmissionOptions struct {
	Channel SubmissionChannel `json:"channel"`
}

// ChannelOrDefault falls back to the public provider for records that were
// stored without a channel.
func (o SubmissionOptions) ChannelOrDefault() SubmissionChannel {
	if o.Channel == "" {
		return ChannelPublic
	}
	return o.Channel
}

type QueueStatus string

const QueueStatusSubmitted QueueStatus = "submitted"

// TransactionRecord is a locally tracked transaction or off-chain order.
// ID is generated locally and never derived from a chain hash.
type TransactionRecord struct {
	ID                TxID              `json:"id"`
	Hash              *common.Hash      `json:"hash,omitempty"`
	ChainID           uint64            `json:"chainId"`
	From              common.Address    `json:"from"`
	Nonce             *uint64           `json:"nonce,omitempty"`
	Status            TxStatus          `json:"status"`
	TypeInfo          TypeInfo          `json:"typeInfo"`
	AddedTime         time.Time         `json:"addedTime"`
	SubmissionOptions SubmissionOptions `json:"submissionOptions"`
	Args              *SendTxArgs       `json:"args,omitempty"`
	OrderID           string            `json:"orderId,omitempty"`
	OrderStatus       string            `json:"orderStatus,omitempty"`
	QueueStatus       QueueStatus       `json:"queueStatus,omitempty"`
}

func (r *TransactionRecord) Identity() TxIdentity {
	return TxIdentity{From: r.From, ChainID: r.ChainID, ID: r.ID}
}

// IsOrder reports whether the record mirrors an off-chain order rather than
// a transaction the chain watcher can poll.
func (r *TransactionRecord) IsOrder() bool {
	return r.OrderID != ""
}

// Copy returns a copy safe to hand out of the store.
func (r *TransactionRecord) Copy() *TransactionRecord {
	cp := *r
	if r.Hash != nil {
		h := *r.Hash
		cp.Hash = &h
	}
	if r.Nonce != nil {
		n := *r.Nonce
		cp.Nonce = &n
	}
	if r.Args != nil {
		args := *r.Args
		cp.Args = &args
	}
	return &cp
}
