package connector

import (
	"context"

	"github.com/google/uuid"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/connector-txqueue/services/connector/queue"
	"github.com/status-im/connector-txqueue/services/connector/requests"
	"github.com/status-im/connector-txqueue/services/connector/submitter"
	"github.com/status-im/connector-txqueue/transactions"
)

type API struct {
	s *Service
	r *requests.Registry
}

func NewAPI(s *Service) *API {
	return &API{
		s: s,
		r: requests.NewDefaultRegistry(),
	}
}

// CallRPC queues a dApp request and returns its request id. Requests
// without an id get a generated one.
func (api *API) CallRPC(inputJSON string) (string, error) {
	request, err := requests.RPCRequestFromJSON(inputJSON)
	if err != nil {
		return "", err
	}
	if request.RequestID == "" {
		request.RequestID = uuid.NewString()
	}

	external, err := api.r.FromRPCRequest(request)
	if err != nil {
		return "", err
	}
	if err := api.s.Queue().Enqueue(external); err != nil {
		return "", err
	}
	return external.RequestID, nil
}

// Requests lists the queued requests, oldest first.
func (api *API) Requests() []queue.Entry {
	return api.s.Queue().Store().SelectAll()
}

type ConfirmArgs struct {
	RequestID string                         `json:"requestId"`
	Account   *common.Address                `json:"account,omitempty"`
	Channel   transactions.SubmissionChannel `json:"channel,omitempty"`
}

func (api *API) Confirm(ctx context.Context, args ConfirmArgs) (*submitter.Result, error) {
	var opts []queue.ConfirmOption
	if args.Account != nil {
		opts = append(opts, queue.WithSelectedAccount(*args.Account))
	}
	if args.Channel != "" {
		opts = append(opts, queue.WithSubmissionChannel(args.Channel))
	}
	return api.s.Queue().Confirm(ctx, args.RequestID, opts...)
}

func (api *API) Cancel(requestID string) error {
	return api.s.Queue().Cancel(requestID, nil)
}

func (api *API) ClearSession() error {
	return api.s.Queue().ClearSession()
}

func (api *API) MostRecentBatchedOrigin() string {
	return api.s.Queue().MostRecentBatchedOrigin()
}

// Transactions lists the tracked records of an account on a chain, oldest first.
func (api *API) Transactions(from common.Address, chainID uint64) []*transactions.TransactionRecord {
	return api.s.Records().List(from, chainID)
}

// ReplaceTransaction resubmits a tracked transaction with the same nonce and
// the given overrides, typically a higher fee.
func (api *API) ReplaceTransaction(ctx context.Context, id transactions.TxIdentity, args transactions.SendTxArgs) (*transactions.TransactionRecord, error) {
	original, ok := api.s.Records().Get(id)
	if !ok {
		return nil, transactions.ErrRecordNotFound
	}
	return api.s.Replacer().AttemptReplace(ctx, original, args, false)
}

// CancelTransaction submits a zero value self transfer with the nonce of a
// tracked transaction.
func (api *API) CancelTransaction(ctx context.Context, id transactions.TxIdentity, args transactions.SendTxArgs) (*transactions.TransactionRecord, error) {
	original, ok := api.s.Records().Get(id)
	if !ok {
		return nil, transactions.ErrRecordNotFound
	}
	return api.s.Replacer().AttemptReplace(ctx, original, args, true)
}

func (api *API) RecallDAppPermission(origin string) error {
	dApps := api.s.DApps()
	if dApps == nil {
		return ErrPermissionsUnavailable
	}
	return dApps.DeleteDApp(origin)
}
