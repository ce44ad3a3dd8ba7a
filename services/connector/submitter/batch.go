package submitter

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/connector-txqueue/services/connector/requests"
	"github.com/status-im/connector-txqueue/transactions"
)

// BatchCallsRequest is an ordered list of calls executed on one chain.
type BatchCallsRequest struct {
	From    common.Address
	ChainID uint64
	Calls   []requests.Call
}

// BatchSender executes batched calls. It returns every transaction that
// was sent, also when a later call failed.
type BatchSender interface {
	SendCalls(ctx context.Context, signer transactions.Signer, batch BatchCallsRequest) ([]*transactions.SentTransaction, error)
}

// SequentialBatchSender sends each call as its own transaction, in order,
// through the classic submission path.
type SequentialBatchSender struct {
	sender transactions.Sender
}

func NewSequentialBatchSender(sender transactions.Sender) *SequentialBatchSender {
	return &SequentialBatchSender{sender: sender}
}

func (b *SequentialBatchSender) SendCalls(ctx context.Context, signer transactions.Signer, batch BatchCallsRequest) ([]*transactions.SentTransaction, error) {
	sent := make([]*transactions.SentTransaction, 0, len(batch.Calls))
	for i, call := range batch.Calls {
		args := transactions.SendTxArgs{
			From:  batch.From,
			To:    call.To,
			Value: call.Value,
			Data:  call.Data,
		}
		tx, err := b.sender.Send(ctx, batch.ChainID, transactions.SubmissionOptions{Channel: transactions.ChannelPublic}, signer, args)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			return sent, ErrBatchPartiallySent.WithCause(fmt.Errorf("call %d of %d: %w", i+1, len(batch.Calls), err))
		}
		sent = append(sent, tx)
	}
	return sent, nil
}
