package orders

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/status-im/connector-txqueue/transactions"
)

type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// IsFinal reports whether the order can no longer change.
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusExpired
}

// TxStatus maps the order status onto the status of its tracked record.
func (s OrderStatus) TxStatus() transactions.TxStatus {
	switch s {
	case OrderStatusFilled:
		return transactions.Confirmed
	case OrderStatusCancelled, OrderStatusExpired:
		return transactions.Failed
	}
	return transactions.Pending
}

// Order is an off-chain order as reported by the order API.
type Order struct {
	OrderHash  string         `json:"orderHash"`
	Owner      common.Address `json:"owner"`
	ChainID    uint64         `json:"chainId"`
	Status     OrderStatus    `json:"status"`
	QuoteID    string         `json:"quoteId,omitempty"`
	SellToken  common.Address `json:"sellToken"`
	BuyToken   common.Address `json:"buyToken"`
	SellAmount string         `json:"sellAmount"`
	BuyAmount  string         `json:"buyAmount"`
	CreatedAt  int64          `json:"createdAt"`
	ExpiresAt  int64          `json:"expiresAt,omitempty"`
	// SettlementHash is the hash of the transaction that filled the order.
	SettlementHash *common.Hash `json:"settlementHash,omitempty"`
}

type OrdersResponse struct {
	Orders []Order `json:"orders"`
}

// SubmitRequest is a signed order handed to the order API for settlement.
type SubmitRequest struct {
	EncodedOrder hexutil.Bytes `json:"encodedOrder"`
	Signature    hexutil.Bytes `json:"signature"`
	QuoteID      string        `json:"quoteId"`
}

type SubmitResponse struct {
	OrderHash string `json:"orderHash"`
}

// API is the off-chain order service.
type API interface {
	FetchLatestOpenOrder(ctx context.Context, owner common.Address, chainID uint64) (*OrdersResponse, error)
	GetOrder(ctx context.Context, chainID uint64, orderHash string) (*Order, error)
	SubmitOrder(ctx context.Context, chainID uint64, req SubmitRequest) (*SubmitResponse, error)
}
