package queue

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/connector-txqueue/logutils"
	"github.com/status-im/connector-txqueue/services/connector/requests"
	"github.com/status-im/connector-txqueue/services/connector/submitter"
	"github.com/status-im/connector-txqueue/transactions"
)

type Submitter interface {
	Submit(ctx context.Context, request requests.ExternalRequest) (*submitter.Result, error)
}

// ConfirmOption adjusts a request with choices the user made while
// approving it.
type ConfirmOption func(request *requests.ExternalRequest)

// WithSelectedAccount sets the account shared with a site on Connect.
func WithSelectedAccount(account common.Address) ConfirmOption {
	return func(request *requests.ExternalRequest) {
		if p, ok := request.Payload.(requests.ConnectPayload); ok {
			p.Account = account
			request.Payload = p
		}
	}
}

// WithSubmissionChannel routes a transaction through the given channel.
func WithSubmissionChannel(channel transactions.SubmissionChannel) ConfirmOption {
	return func(request *requests.ExternalRequest) {
		if p, ok := request.Payload.(requests.SendTransactionPayload); ok {
			p.Channel = channel
			request.Payload = p
		}
	}
}

// Service is the confirm/cancel surface over the request queue.
type Service struct {
	store     *Store
	submitter Submitter
	notifier  transactions.Notifier
	logger    *zap.Logger
}

func NewService(store *Store, submitter Submitter, notifier transactions.Notifier) *Service {
	if notifier == nil {
		notifier = transactions.SignalNotifier{}
	}
	return &Service{
		store:     store,
		submitter: submitter,
		notifier:  notifier,
		logger:    logutils.ZapLogger().Named("RequestQueueService"),
	}
}

func (s *Service) Store() *Store {
	return s.store
}

// Enqueue validates and queues an inbound request.
func (s *Service) Enqueue(request requests.ExternalRequest) error {
	if err := request.Validate(); err != nil {
		return err
	}
	if request.Kind() == requests.KindSendBatchedCalls {
		if err := s.store.SetMostRecentBatchedOrigin(request.Origin.URL); err != nil {
			return err
		}
	}
	if err := s.store.Add(request); err != nil {
		return err
	}
	s.logger.Debug("request queued",
		zap.String("requestId", request.RequestID),
		zap.String("kind", string(request.Kind())),
		zap.Int("tabId", request.Origin.TabID),
	)
	return nil
}

// Drain queues requests from inbox until it is closed or ctx is done.
// Invalid requests are logged and skipped.
func (s *Service) Drain(ctx context.Context, inbox <-chan requests.ExternalRequest) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case request, ok := <-inbox:
			if !ok {
				return nil
			}
			if err := s.Enqueue(request); err != nil {
				s.logger.Warn("dropping inbound request",
					zap.String("requestId", request.RequestID),
					zap.String("dAppUrl", request.Origin.URL),
					zap.Error(err),
				)
			}
		}
	}
}

// Confirm submits a queued request. The entry is Confirming while the
// submission runs; it is removed on success and put back to Pending on
// failure, in which case the user is notified. A failure that still returns
// a result already sent something: the entry is removed and the user is
// notified, so a retry cannot send it twice.
func (s *Service) Confirm(ctx context.Context, requestID string, opts ...ConfirmOption) (*submitter.Result, error) {
	entry, err := s.store.StartConfirming(requestID)
	if err != nil {
		return nil, err
	}

	request := entry.Request
	for _, opt := range opts {
		opt(&request)
	}

	result, err := s.submitter.Submit(ctx, request)
	if err != nil {
		s.logger.Warn("confirming request failed",
			zap.String("requestId", requestID),
			zap.String("kind", string(request.Kind())),
			zap.Bool("partiallySent", result != nil),
			zap.Error(err),
		)
		if result != nil {
			s.remove(requestID)
		} else if revertErr := s.store.MarkPending(requestID); revertErr != nil {
			s.logger.Error("reverting request to pending failed", zap.String("requestId", requestID), zap.Error(revertErr))
		}
		s.notifier.NotifyError(transactions.IntentConfirm, requestID, err)
		return result, err
	}

	s.remove(requestID)
	return result, nil
}

func (s *Service) remove(requestID string) {
	if err := s.store.Remove(requestID); err != nil {
		s.logger.Error("removing confirmed request failed", zap.String("requestId", requestID), zap.Error(err))
	}
}

// Cancel drops a queued request and hands it to onCancel. Cancelling an
// unknown request is a no-op.
func (s *Service) Cancel(requestID string, onCancel func(requests.ExternalRequest)) error {
	entry, ok := s.store.Get(requestID)
	if !ok {
		return nil
	}
	if err := s.store.Remove(requestID); err != nil {
		return err
	}
	if onCancel != nil {
		onCancel(entry.Request)
	}
	return nil
}

func (s *Service) MostRecentBatchedOrigin() string {
	return s.store.MostRecentBatchedOrigin()
}

// ClearSession drops every queued request and the batched origin.
func (s *Service) ClearSession() error {
	return multierr.Combine(
		s.store.RemoveAll(),
		s.store.SetMostRecentBatchedOrigin(""),
	)
}
