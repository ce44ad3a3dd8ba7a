package transactions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	ethereum "github.com/ethereum/go-ethereum"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

func setupWatcher(t *testing.T, provider Provider) *Watcher {
	w := NewWatcher(NewRecordStore(nil, nil), StaticProviders{
		777: {ChannelPublic: provider, ChannelPrivateRelay: provider},
	}, WatcherConfig{PollInterval: 10 * time.Millisecond, RPCRateLimit: 1000, RPCBurst: 100})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func requireStatus(t *testing.T, w *Watcher, id TxIdentity, status TxStatus) {
	require.Eventually(t, func() bool {
		rec, ok := w.Records().Get(id)
		return ok && rec.Status == status
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherMapsReceiptToTerminalStatus(t *testing.T) {
	records := GenerateTestRecords(4)
	records[2].Status = Cancelling
	records[3].Status = Cancelling

	provider := &MockProvider{}
	provider.On("TransactionReceipt", mock.Anything, *records[0].Hash).Return(&gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful}, nil)
	provider.On("TransactionReceipt", mock.Anything, *records[1].Hash).Return(&gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed}, nil)
	provider.On("TransactionReceipt", mock.Anything, *records[2].Hash).Return(&gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful}, nil)
	provider.On("TransactionReceipt", mock.Anything, *records[3].Hash).Return(&gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed}, nil)

	w := setupWatcher(t, provider)
	for _, rec := range records {
		require.NoError(t, w.Register(rec))
	}

	requireStatus(t, w, records[0].Identity(), Confirmed)
	requireStatus(t, w, records[1].Identity(), Failed)
	requireStatus(t, w, records[2].Identity(), Canceled)
	requireStatus(t, w, records[3].Identity(), FailedCancel)

	for _, rec := range records {
		id := rec.Identity()
		require.Eventually(t, func() bool { return !w.IsWatched(id) }, time.Second, 10*time.Millisecond)
	}
}

func TestWatcherFailingPollDoesNotBlockOthers(t *testing.T) {
	records := GenerateTestRecords(2)
	records[1].From = records[0].From

	provider := &MockProvider{}
	provider.On("TransactionReceipt", mock.Anything, *records[0].Hash).Return(nil, errors.New("connection refused"))
	provider.On("TransactionReceipt", mock.Anything, *records[1].Hash).Return(nil, ethereum.NotFound).Times(3)
	provider.On("TransactionReceipt", mock.Anything, *records[1].Hash).Return(&gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful}, nil)
	provider.On("NonceAt", mock.Anything, records[0].From, mock.Anything).Return(uint64(0), nil)

	w := setupWatcher(t, provider)
	require.NoError(t, w.Register(records[0]))
	require.NoError(t, w.Register(records[1]))

	requireStatus(t, w, records[1].Identity(), Confirmed)

	rec, _ := w.Records().Get(records[0].Identity())
	require.Equal(t, Pending, rec.Status)
	require.True(t, w.IsWatched(records[0].Identity()))
}

func TestWatcherDetectsSupersededNonce(t *testing.T) {
	rec := GenerateTestRecords(1)[0]
	provider := &MockProvider{}
	provider.On("TransactionReceipt", mock.Anything, *rec.Hash).Return(nil, ethereum.NotFound)
	provider.On("NonceAt", mock.Anything, rec.From, mock.Anything).Return(*rec.Nonce+1, nil)

	w := setupWatcher(t, provider)
	require.NoError(t, w.Register(rec))
	requireStatus(t, w, rec.Identity(), Failed)
}

func TestWatcherTerminalStatusLatches(t *testing.T) {
	rec := GenerateTestRecords(1)[0]
	rec.Status = Cancelling
	provider := &MockProvider{}
	provider.On("TransactionReceipt", mock.Anything, *rec.Hash).Return(&gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed}, nil)

	w := setupWatcher(t, provider)
	require.NoError(t, w.Register(rec))
	requireStatus(t, w, rec.Identity(), FailedCancel)

	applied, err := w.Settle(rec.Identity(), Canceled)
	require.NoError(t, err)
	require.False(t, applied)
	requireStatus(t, w, rec.Identity(), FailedCancel)
}

func TestWatcherResumesStoredRecordsOnStart(t *testing.T) {
	records := GenerateTestRecords(2)
	store := NewRecordStore(nil, nil)
	for _, rec := range records {
		require.NoError(t, store.Add(rec))
	}
	_, err := store.UpdateStatus(records[1].Identity(), Confirmed)
	require.NoError(t, err)

	provider := &MockProvider{}
	provider.On("TransactionReceipt", mock.Anything, *records[0].Hash).Return(&gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful}, nil)

	w := NewWatcher(store, StaticProviders{777: {ChannelPublic: provider}}, WatcherConfig{PollInterval: 10 * time.Millisecond})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	requireStatus(t, w, records[0].Identity(), Confirmed)
	provider.AssertNotCalled(t, "TransactionReceipt", mock.Anything, *records[1].Hash)
}

func TestWatcherDeleteAndUnwatch(t *testing.T) {
	records := GenerateTestRecords(2)
	provider := &MockProvider{}
	provider.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)
	provider.On("NonceAt", mock.Anything, mock.Anything, mock.Anything).Return(uint64(0), nil)

	w := setupWatcher(t, provider)
	for _, rec := range records {
		require.NoError(t, w.Register(rec))
		require.True(t, w.IsWatched(rec.Identity()))
	}

	deleted, err := w.Delete(records[0].Identity())
	require.NoError(t, err)
	require.True(t, deleted)
	w.Unwatch(records[1].Identity())

	for _, rec := range records {
		id := rec.Identity()
		require.Eventually(t, func() bool { return !w.IsWatched(id) }, time.Second, 10*time.Millisecond)
	}
	_, ok := w.Records().Get(records[1].Identity())
	require.True(t, ok)
}

func TestWatcherDoesNotPollOrders(t *testing.T) {
	rec := GenerateTestRecords(1)[0]
	rec.Hash = nil
	rec.OrderID = "0xorder"
	rec.QueueStatus = QueueStatusSubmitted

	w := setupWatcher(t, &MockProvider{})
	require.NoError(t, w.Register(rec))
	require.False(t, w.IsWatched(rec.Identity()))

	require.NoError(t, w.SetOrderStatus(rec.Identity(), "filled"))
	applied, err := w.Settle(rec.Identity(), Confirmed)
	require.NoError(t, err)
	require.True(t, applied)

	got, _ := w.Records().Get(rec.Identity())
	require.Equal(t, Confirmed, got.Status)
	require.Equal(t, "filled", got.OrderStatus)
}

func TestWatcherStopCancelsPolls(t *testing.T) {
	rec := GenerateTestRecords(1)[0]
	provider := &MockProvider{}
	provider.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound)
	provider.On("NonceAt", mock.Anything, mock.Anything, mock.Anything).Return(uint64(0), nil)

	w := NewWatcher(NewRecordStore(nil, nil), StaticProviders{777: {ChannelPublic: provider}}, WatcherConfig{PollInterval: 10 * time.Millisecond})
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Register(rec))

	w.Stop()
	require.False(t, w.IsWatched(rec.Identity()))
}
