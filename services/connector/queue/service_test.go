package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/connector-txqueue/params"
	"github.com/status-im/connector-txqueue/services/connector/requests"
	"github.com/status-im/connector-txqueue/services/connector/submitter"
	"github.com/status-im/connector-txqueue/transactions"
)

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, request requests.ExternalRequest) (*submitter.Result, error) {
	args := m.Called(ctx, request)
	if v := args.Get(0); v != nil {
		return v.(*submitter.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func setupService(t *testing.T) (*Service, *fakeClock, *mockSubmitter, *transactions.MockNotifier) {
	store, clock := newTestStore(nil)
	sub := &mockSubmitter{}
	notifier := &transactions.MockNotifier{}
	return NewService(store, sub, notifier), clock, sub, notifier
}

func requestWithID(id string) interface{} {
	return mock.MatchedBy(func(r requests.ExternalRequest) bool { return r.RequestID == id })
}

func TestConfirmTwoTabsScenario(t *testing.T) {
	service, clock, sub, notifier := setupService(t)

	require.NoError(t, service.Enqueue(sendRequest("tab-7", 7)))
	clock.Advance(2 * time.Second)
	require.NoError(t, service.Enqueue(sendRequest("tab-9", 9)))

	entries := service.Store().SelectAll()
	require.Equal(t, []string{"tab-7", "tab-9"}, requestIDs(entries))

	release := make(chan struct{})
	submitting := make(chan struct{})
	sub.On("Submit", mock.Anything, requestWithID("tab-7")).Run(func(mock.Arguments) {
		close(submitting)
		<-release
	}).Return(&submitter.Result{Kind: requests.KindSendTransaction}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := service.Confirm(context.Background(), "tab-7")
		done <- err
	}()

	<-submitting
	first, _ := service.Store().Get("tab-7")
	second, _ := service.Store().Get("tab-9")
	require.Equal(t, EntryConfirming, first.Status)
	require.Equal(t, EntryPending, second.Status)

	close(release)
	require.NoError(t, <-done)

	entries = service.Store().SelectAll()
	require.Equal(t, []string{"tab-9"}, requestIDs(entries))
	require.Equal(t, EntryPending, entries[0].Status)
	notifier.AssertNotCalled(t, "NotifyError", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmFailureRevertsToPending(t *testing.T) {
	service, _, sub, notifier := setupService(t)
	require.NoError(t, service.Enqueue(sendRequest("a", 1)))

	sub.On("Submit", mock.Anything, requestWithID("a")).Return(nil, transactions.ErrSignerUnavailable).Once()
	notifier.On("NotifyError", transactions.IntentConfirm, "a", mock.Anything).Once()

	_, err := service.Confirm(context.Background(), "a")
	require.ErrorIs(t, err, transactions.ErrSignerUnavailable)

	entry, ok := service.Store().Get("a")
	require.True(t, ok)
	require.Equal(t, EntryPending, entry.Status)
	notifier.AssertExpectations(t)

	// the request can be retried
	sub.On("Submit", mock.Anything, requestWithID("a")).Return(&submitter.Result{}, nil).Once()
	_, err = service.Confirm(context.Background(), "a")
	require.NoError(t, err)
	require.Zero(t, service.Store().Len())
}

func TestConfirmRejectsDoubleSubmission(t *testing.T) {
	service, _, sub, _ := setupService(t)
	require.NoError(t, service.Enqueue(sendRequest("a", 1)))

	_, err := service.Confirm(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRequestNotFound)

	release := make(chan struct{})
	submitting := make(chan struct{})
	sub.On("Submit", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(submitting)
		<-release
	}).Return(&submitter.Result{}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := service.Confirm(context.Background(), "a")
		done <- err
	}()
	<-submitting

	_, err = service.Confirm(context.Background(), "a")
	require.ErrorIs(t, err, ErrRequestAlreadyConfirming)

	close(release)
	require.NoError(t, <-done)
	sub.AssertNumberOfCalls(t, "Submit", 1)
}

func TestConfirmAppliesOptions(t *testing.T) {
	service, _, sub, _ := setupService(t)
	account := common.HexToAddress("0xA")
	require.NoError(t, service.Enqueue(connectRequest("connect", 1)))
	require.NoError(t, service.Enqueue(sendRequest("send", 1)))

	sub.On("Submit", mock.Anything, mock.MatchedBy(func(r requests.ExternalRequest) bool {
		p, ok := r.Payload.(requests.ConnectPayload)
		return ok && p.Account == account
	})).Return(&submitter.Result{Accounts: []common.Address{account}}, nil).Once()
	sub.On("Submit", mock.Anything, mock.MatchedBy(func(r requests.ExternalRequest) bool {
		p, ok := r.Payload.(requests.SendTransactionPayload)
		return ok && p.Channel == transactions.ChannelPrivateRelay
	})).Return(&submitter.Result{}, nil).Once()

	_, err := service.Confirm(context.Background(), "connect", WithSelectedAccount(account), WithSubmissionChannel(transactions.ChannelPrivateRelay))
	require.NoError(t, err)
	_, err = service.Confirm(context.Background(), "send", WithSubmissionChannel(transactions.ChannelPrivateRelay))
	require.NoError(t, err)
	sub.AssertExpectations(t)
}

func TestCancel(t *testing.T) {
	service, _, sub, _ := setupService(t)
	require.NoError(t, service.Enqueue(sendRequest("a", 1)))

	var cancelled []string
	onCancel := func(r requests.ExternalRequest) { cancelled = append(cancelled, r.RequestID) }

	require.NoError(t, service.Cancel("a", onCancel))
	require.NoError(t, service.Cancel("a", onCancel))
	require.Equal(t, []string{"a"}, cancelled)
	require.Zero(t, service.Store().Len())
	sub.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestEnqueueTracksBatchedOrigin(t *testing.T) {
	service, _, _, _ := setupService(t)
	to := common.HexToAddress("0xB")
	batched := requests.ExternalRequest{
		RequestID: "batch",
		Origin:    requests.Origin{TabID: 3, URL: "https://batch.example.org"},
		Payload: requests.SendBatchedCallsPayload{
			From:  common.HexToAddress("0xA"),
			Calls: []requests.Call{{To: &to}},
		},
	}

	require.ErrorIs(t, service.Enqueue(requests.ExternalRequest{RequestID: "x"}), requests.ErrRequestMissingDAppData)
	require.Empty(t, service.MostRecentBatchedOrigin())

	require.NoError(t, service.Enqueue(batched))
	require.Equal(t, "https://batch.example.org", service.MostRecentBatchedOrigin())

	require.NoError(t, service.ClearSession())
	require.Empty(t, service.MostRecentBatchedOrigin())
	require.Zero(t, service.Store().Len())
}

func TestDrain(t *testing.T) {
	service, _, _, _ := setupService(t)
	inbox := make(chan requests.ExternalRequest, 3)
	inbox <- sendRequest("a", 1)
	inbox <- requests.ExternalRequest{RequestID: "invalid"}
	inbox <- connectRequest("b", 2)
	close(inbox)

	require.NoError(t, service.Drain(context.Background(), inbox))
	require.Equal(t, []string{"a", "b"}, requestIDs(service.Store().SelectAll()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, service.Drain(ctx, make(chan requests.ExternalRequest)), context.Canceled)
}

func TestConfirmPartlySentBatchIsNotResent(t *testing.T) {
	from := common.HexToAddress("0xA")
	to := common.HexToAddress("0xB")
	first := transactions.SendTxArgs{From: from, To: &to}
	second := transactions.SendTxArgs{From: from, To: &to, Data: []byte{0x2}}

	signer := &transactions.MockSigner{}
	signers := &transactions.MockSignerResolver{}
	signers.On("SignerFor", mock.Anything, from).Return(signer, nil)
	sender := &transactions.MockSender{}
	sender.On("Send", mock.Anything, uint64(10), mock.Anything, signer, first).Return(&transactions.SentTransaction{Hash: common.Hash{0x1}, Args: first}, nil)
	sender.On("Send", mock.Anything, uint64(10), mock.Anything, signer, second).Return(nil, transactions.ErrBroadcastFailed).Once()
	registry := &transactions.MockRegistry{}
	registry.On("Register", mock.Anything).Return(nil)

	store, _ := newTestStore(nil)
	notifier := &transactions.MockNotifier{}
	service := NewService(store, submitter.New(submitter.Dependencies{
		Signers:  signers,
		Sender:   sender,
		Registry: registry,
		Networks: []params.Network{{ChainID: 10}},
		Batches:  submitter.NewSequentialBatchSender(sender),
	}), notifier)

	chainID := uint64(10)
	require.NoError(t, service.Enqueue(requests.ExternalRequest{
		RequestID: "batch",
		Origin:    requests.Origin{TabID: 3, URL: "https://batch.example.org"},
		ChainID:   &chainID,
		Payload: requests.SendBatchedCallsPayload{
			From:  from,
			Calls: []requests.Call{{To: &to}, {To: &to, Data: []byte{0x2}}},
		},
	}))
	notifier.On("NotifyError", transactions.IntentConfirm, "batch", mock.Anything).Once()

	res, err := service.Confirm(context.Background(), "batch")
	require.ErrorIs(t, err, submitter.ErrBatchPartiallySent)
	require.NotNil(t, res)
	require.Len(t, res.Records, 1)
	require.Zero(t, service.Store().Len())

	_, err = service.Confirm(context.Background(), "batch")
	require.ErrorIs(t, err, ErrRequestNotFound)

	sender.AssertNumberOfCalls(t, "Send", 2)
	registry.AssertNumberOfCalls(t, "Register", 1)
	notifier.AssertExpectations(t)
}
