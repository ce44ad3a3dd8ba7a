package submitter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/status-im/connector-txqueue/logutils"
	"github.com/status-im/connector-txqueue/params"
	"github.com/status-im/connector-txqueue/services/connector/chainutils"
	persistence "github.com/status-im/connector-txqueue/services/connector/database"
	"github.com/status-im/connector-txqueue/services/connector/requests"
	"github.com/status-im/connector-txqueue/services/wallet/orders"
	"github.com/status-im/connector-txqueue/transactions"
)

// Registry starts tracking submitted transactions.
type Registry interface {
	Register(rec *transactions.TransactionRecord) error
}

type OrderSender interface {
	SubmitOrder(ctx context.Context, chainID uint64, req orders.SubmitRequest) (*orders.SubmitResponse, error)
}

type OrderWatcher interface {
	CreateExternallySubmittedOrder(ctx context.Context, address common.Address, chainID uint64) *transactions.TransactionRecord
}

// DAppStore remembers the sites the user connected to.
type DAppStore interface {
	UpsertDApp(dApp *persistence.DApp) error
	SelectDAppByURL(url string) (*persistence.DApp, error)
}

// Dependencies of a Submitter. Optional collaborators may be nil, which
// disables the request kinds that need them.
type Dependencies struct {
	Signers  transactions.SignerResolver
	Sender   transactions.Sender
	Registry Registry
	Networks []params.Network

	Batches      BatchSender
	OrderSender  OrderSender
	OrderWatcher OrderWatcher
	DApps        DAppStore
	NewID        transactions.IDGenerator
}

// Result describes what an approved request produced.
type Result struct {
	Kind      requests.Kind                     `json:"kind"`
	Records   []*transactions.TransactionRecord `json:"records,omitempty"`
	Signature hexutil.Bytes                     `json:"signature,omitempty"`
	OrderHash string                            `json:"orderHash,omitempty"`
	Accounts  []common.Address                  `json:"accounts,omitempty"`
	ChainID   uint64                            `json:"chainId,omitempty"`
}

// Submitter turns approved requests into submitted transactions, orders or
// signatures.
type Submitter struct {
	deps   Dependencies
	now    func() time.Time
	logger *zap.Logger
}

func New(deps Dependencies) *Submitter {
	if deps.NewID == nil {
		deps.NewID = transactions.NewTxID
	}
	return &Submitter{
		deps:   deps,
		now:    time.Now,
		logger: logutils.ZapLogger().Named("Submitter"),
	}
}

// Submit executes an approved request. On failure nothing is tracked and the
// error is returned so the request can be retried. A batch that stopped after
// some calls were sent returns both its result and ErrBatchPartiallySent.
func (s *Submitter) Submit(ctx context.Context, request requests.ExternalRequest) (*Result, error) {
	if err := request.Validate(); err != nil {
		return nil, err
	}

	switch p := request.Payload.(type) {
	case requests.ConnectPayload:
		return s.connect(request, p)
	case requests.SwitchChainPayload:
		return s.switchChain(request, p)
	case requests.SendTransactionPayload:
		return s.sendTransaction(ctx, request, p)
	case requests.SendBatchedCallsPayload:
		return s.sendBatchedCalls(ctx, request, p)
	case requests.SignTypedDataPayload:
		hash, _, err := apitypes.TypedDataAndHash(p.TypedData)
		if err != nil {
			return nil, ErrInvalidTypedData.WithCause(err)
		}
		return s.signMessage(ctx, request, p.Address, hash)
	case requests.PersonalSignPayload:
		return s.signMessage(ctx, request, p.Address, accounts.TextHash(p.Message))
	case requests.SubmitOrderPayload:
		return s.submitOrder(ctx, request, p)
	default:
		return nil, requests.ErrUnsupportedRequestKind
	}
}

func (s *Submitter) connect(request requests.ExternalRequest, p requests.ConnectPayload) (*Result, error) {
	if p.Account == (common.Address{}) {
		return nil, ErrNoAccountSelected
	}
	chainID := request.ChainIDOrZero()
	if chainID == 0 {
		var err error
		if chainID, err = chainutils.GetDefaultChainID(s.deps.Networks); err != nil {
			return nil, err
		}
	} else if err := chainutils.CheckSupported(s.deps.Networks, chainID); err != nil {
		return nil, err
	}

	if s.deps.DApps != nil {
		err := s.deps.DApps.UpsertDApp(&persistence.DApp{
			URL:           request.Origin.URL,
			Name:          request.DAppName,
			IconURL:       request.IconURL,
			SharedAccount: p.Account,
			ChainID:       chainID,
		})
		if err != nil {
			return nil, err
		}
	}
	return &Result{Kind: requests.KindConnect, Accounts: []common.Address{p.Account}, ChainID: chainID}, nil
}

func (s *Submitter) switchChain(request requests.ExternalRequest, p requests.SwitchChainPayload) (*Result, error) {
	if err := chainutils.CheckSupported(s.deps.Networks, p.ChainID); err != nil {
		return nil, err
	}
	if s.deps.DApps != nil {
		dApp, err := s.deps.DApps.SelectDAppByURL(request.Origin.URL)
		if err != nil {
			return nil, err
		}
		if dApp != nil {
			dApp.ChainID = p.ChainID
			if err := s.deps.DApps.UpsertDApp(dApp); err != nil {
				return nil, err
			}
		}
	}
	return &Result{Kind: requests.KindSwitchChain, ChainID: p.ChainID}, nil
}

// chainFor returns the chain named by the request, or the chain the dApp is
// connected on.
func (s *Submitter) chainFor(request requests.ExternalRequest) (uint64, error) {
	if chainID := request.ChainIDOrZero(); chainID != 0 {
		return chainID, chainutils.CheckSupported(s.deps.Networks, chainID)
	}
	if s.deps.DApps != nil {
		dApp, err := s.deps.DApps.SelectDAppByURL(request.Origin.URL)
		if err != nil {
			return 0, err
		}
		if dApp != nil && dApp.ChainID != 0 {
			return dApp.ChainID, nil
		}
	}
	return 0, ErrMissingChainID
}

func (s *Submitter) signer(ctx context.Context, from common.Address) (transactions.Signer, error) {
	signer, err := s.deps.Signers.SignerFor(ctx, from)
	if err != nil {
		return nil, transactions.ErrSignerUnavailable.WithCause(err)
	}
	return signer, nil
}

func (s *Submitter) sendTransaction(ctx context.Context, request requests.ExternalRequest, p requests.SendTransactionPayload) (*Result, error) {
	chainID, err := s.chainFor(request)
	if err != nil {
		return nil, err
	}
	signer, err := s.signer(ctx, p.TxArgs.From)
	if err != nil {
		return nil, err
	}

	opts := transactions.SubmissionOptions{Channel: p.Channel}
	sent, err := s.deps.Sender.Send(ctx, chainID, opts, signer, p.TxArgs)
	if err != nil {
		return nil, err
	}

	rec := s.newRecord(request, chainID, p.TxArgs.From, transactions.TxTypeSend, opts, sent)
	s.register(rec)
	return &Result{Kind: requests.KindSendTransaction, Records: []*transactions.TransactionRecord{rec}, ChainID: chainID}, nil
}

func (s *Submitter) sendBatchedCalls(ctx context.Context, request requests.ExternalRequest, p requests.SendBatchedCallsPayload) (*Result, error) {
	if s.deps.Batches == nil {
		return nil, ErrBatchedCallsUnsupported
	}
	chainID, err := s.chainFor(request)
	if err != nil {
		return nil, err
	}
	signer, err := s.signer(ctx, p.From)
	if err != nil {
		return nil, err
	}

	sent, sendErr := s.deps.Batches.SendCalls(ctx, signer, BatchCallsRequest{From: p.From, ChainID: chainID, Calls: p.Calls})
	// Whatever reached the chain is tracked, even if the batch stopped early.
	records := make([]*transactions.TransactionRecord, 0, len(sent))
	opts := transactions.SubmissionOptions{Channel: transactions.ChannelPublic}
	for _, tx := range sent {
		rec := s.newRecord(request, chainID, p.From, transactions.TxTypeBatchedCalls, opts, tx)
		s.register(rec)
		records = append(records, rec)
	}
	if sendErr != nil && len(records) == 0 {
		return nil, sendErr
	}
	// A partly sent batch is final: its result is returned with the error so
	// the request is not retried from the first call.
	return &Result{Kind: requests.KindSendBatchedCalls, Records: records, ChainID: chainID}, sendErr
}

func (s *Submitter) signMessage(ctx context.Context, request requests.ExternalRequest, address common.Address, hash []byte) (*Result, error) {
	signer, err := s.signer(ctx, address)
	if err != nil {
		return nil, err
	}
	sig, err := signHash(ctx, signer, hash)
	if err != nil {
		return nil, err
	}
	return &Result{Kind: request.Kind(), Signature: sig}, nil
}

func (s *Submitter) submitOrder(ctx context.Context, request requests.ExternalRequest, p requests.SubmitOrderPayload) (*Result, error) {
	if s.deps.OrderSender == nil || s.deps.OrderWatcher == nil {
		return nil, ErrOrdersDisabled
	}
	chainID, err := s.chainFor(request)
	if err != nil {
		return nil, err
	}
	signer, err := s.signer(ctx, p.From)
	if err != nil {
		return nil, err
	}
	sig, err := signHash(ctx, signer, crypto.Keccak256(p.EncodedOrder))
	if err != nil {
		return nil, err
	}

	resp, err := s.deps.OrderSender.SubmitOrder(ctx, chainID, orders.SubmitRequest{
		EncodedOrder: p.EncodedOrder,
		Signature:    sig,
		QuoteID:      p.QuoteID,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order submitted",
		zap.String("requestId", request.RequestID),
		zap.String("orderHash", resp.OrderHash),
		zap.Uint64("chainID", chainID),
	)

	result := &Result{Kind: requests.KindSubmitOrder, OrderHash: resp.OrderHash, ChainID: chainID}
	// The order outlives the confirmation, so its wait is not bound to ctx.
	if rec := s.deps.OrderWatcher.CreateExternallySubmittedOrder(context.WithoutCancel(ctx), p.From, chainID); rec != nil {
		result.Records = []*transactions.TransactionRecord{rec}
	}
	return result, nil
}

func (s *Submitter) newRecord(request requests.ExternalRequest, chainID uint64, from common.Address, typ transactions.TxType, opts transactions.SubmissionOptions, sent *transactions.SentTransaction) *transactions.TransactionRecord {
	hash := sent.Hash
	nonce := sent.Nonce
	args := sent.Args
	return &transactions.TransactionRecord{
		ID:      s.deps.NewID(from, chainID),
		Hash:    &hash,
		ChainID: chainID,
		From:    from,
		Nonce:   &nonce,
		Status:  transactions.Pending,
		TypeInfo: transactions.TypeInfo{
			Type:      typ,
			RequestID: request.RequestID,
			DAppURL:   request.Origin.URL,
		},
		AddedTime:         s.now(),
		SubmissionOptions: opts,
		Args:              &args,
	}
}

// register hands a sent transaction to the watcher. The transaction is
// already on its way, so a failure here is logged and not returned.
func (s *Submitter) register(rec *transactions.TransactionRecord) {
	if err := s.deps.Registry.Register(rec); err != nil {
		s.logger.Error("tracking sent transaction failed",
			zap.Stringer("id", rec.Identity()),
			zap.Stringer("hash", rec.Hash),
			zap.Error(err),
		)
	}
}

// signHash signs hash and moves V into the 27/28 range expected by sites.
func signHash(ctx context.Context, signer transactions.Signer, hash []byte) (hexutil.Bytes, error) {
	sig, err := signer.SignHash(ctx, hash)
	if err != nil {
		return nil, transactions.ErrSigningFailed.WithCause(err)
	}
	if len(sig) == crypto.SignatureLength && sig[crypto.RecoveryIDOffset] < 27 {
		sig[crypto.RecoveryIDOffset] += 27
	}
	return sig, nil
}
