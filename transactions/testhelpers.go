package transactions

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/stretchr/testify/mock"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockProvider) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	args := m.Called(ctx, account, blockNumber)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockProvider) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(*big.Int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockProvider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockProvider) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockProvider) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	args := m.Called(ctx, txHash)
	if v := args.Get(0); v != nil {
		return v.(*gethtypes.Receipt), args.Error(1)
	}
	return nil, args.Error(1)
}

// StaticProviders resolves providers from a fixed map keyed by chain and channel.
type StaticProviders map[uint64]map[SubmissionChannel]Provider

func (p StaticProviders) Provider(chainID uint64, channel SubmissionChannel) (Provider, error) {
	provider, ok := p[chainID][channel]
	if !ok {
		return nil, fmt.Errorf("no %s provider for chain %d", channel, chainID)
	}
	return provider, nil
}

type MockSigner struct {
	mock.Mock
}

func (m *MockSigner) SignTx(ctx context.Context, tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error) {
	args := m.Called(ctx, tx, chainID)
	if v := args.Get(0); v != nil {
		return v.(*gethtypes.Transaction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSigner) SignHash(ctx context.Context, hash []byte) ([]byte, error) {
	args := m.Called(ctx, hash)
	if v := args.Get(0); v != nil {
		return v.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSignerResolver struct {
	mock.Mock
}

func (m *MockSignerResolver) SignerFor(ctx context.Context, from common.Address) (Signer, error) {
	args := m.Called(ctx, from)
	if v := args.Get(0); v != nil {
		return v.(Signer), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, chainID uint64, opts SubmissionOptions, signer Signer, txArgs SendTxArgs) (*SentTransaction, error) {
	args := m.Called(ctx, chainID, opts, signer, txArgs)
	if v := args.Get(0); v != nil {
		return v.(*SentTransaction), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Register(rec *TransactionRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

func (m *MockRegistry) Delete(id TxIdentity) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyError(intent Intent, id string, err error) {
	m.Called(intent, id, err)
}

// GenerateTestRecords returns count Pending records with distinct senders,
// hashes and nonces on chain 777.
func GenerateTestRecords(count int) []*TransactionRecord {
	if count > 127 {
		panic("can't generate more than 127 distinct records")
	}

	now := time.Now()
	records := make([]*TransactionRecord, count)
	for i := 0; i < count; i++ {
		hash := common.Hash{byte(i + 1)}
		nonce := uint64(i)
		to := common.Address{byte(i * 2)}
		records[i] = &TransactionRecord{
			ID:        TxID(fmt.Sprintf("tx-%d", i)),
			Hash:      &hash,
			ChainID:   777,
			From:      common.Address{byte(i + 1)},
			Nonce:     &nonce,
			Status:    Pending,
			TypeInfo:  TypeInfo{Type: TxTypeSend, DAppURL: "https://app.example"},
			AddedTime: now.Add(time.Duration(i) * time.Second),
			Args:      &SendTxArgs{From: common.Address{byte(i + 1)}, To: &to},
		}
	}
	return records
}
