package transactions

import (
	"context"
	"math/big"
	"time"

	"github.com/imdario/mergo"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/params"

	"github.com/status-im/connector-txqueue/errors"
	"github.com/status-im/connector-txqueue/logutils"
)

// Replacer supersedes a stuck transaction with a new one reusing its
// (from, nonce), either with new parameters or as a cancellation.
type Replacer struct {
	registry Registry
	signers  SignerResolver
	sender   Sender
	notifier Notifier
	newID    IDGenerator
	now      func() time.Time
	logger   *zap.Logger
}

func NewReplacer(registry Registry, signers SignerResolver, sender Sender, notifier Notifier, newID IDGenerator) *Replacer {
	if newID == nil {
		newID = NewTxID
	}
	if notifier == nil {
		notifier = SignalNotifier{}
	}
	return &Replacer{
		registry: registry,
		signers:  signers,
		sender:   sender,
		notifier: notifier,
		newID:    newID,
		now:      time.Now,
		logger:   logutils.ZapLogger().Named("Replacer"),
	}
}

// AttemptReplace submits a replacement for original and registers it as a new
// record. The original record is never modified.
//
// An invalid target fails before anything else happens. Any later failure
// deletes the tentative record, if it was registered, and notifies the user
// once with the replace or cancel intent.
func (r *Replacer) AttemptReplace(ctx context.Context, original *TransactionRecord, newArgs SendTxArgs, isCancellation bool) (rec *TransactionRecord, err error) {
	if err := validateReplacementTarget(original); err != nil {
		return nil, err
	}

	intent := IntentReplace
	if isCancellation {
		intent = IntentCancel
	}
	newID := r.newID(original.From, original.ChainID)
	tentative := TxIdentity{From: original.From, ChainID: original.ChainID, ID: newID}

	defer func() {
		if err == nil {
			return
		}
		if _, delErr := r.registry.Delete(tentative); delErr != nil {
			r.logger.Error("rolling back replacement failed",
				zap.Stringer("id", tentative),
				zap.Error(delErr),
			)
		}
		r.logger.Warn("replacement failed",
			zap.String("intent", string(intent)),
			zap.Stringer("original", original.Identity()),
			zap.Error(err),
		)
		r.notifier.NotifyError(intent, string(original.ID), err)
	}()

	signer, err := r.signers.SignerFor(ctx, original.From)
	if err != nil {
		return nil, replacementError(isCancellation, ErrSignerUnavailable.WithCause(err))
	}

	args, err := mergeReplacementArgs(original, newArgs, isCancellation)
	if err != nil {
		return nil, replacementError(isCancellation, err)
	}

	sent, err := r.sender.Send(ctx, original.ChainID, original.SubmissionOptions, signer, args)
	if err != nil {
		return nil, replacementError(isCancellation, err)
	}

	status := Pending
	if isCancellation {
		status = Cancelling
	}
	nonce := *original.Nonce
	hash := sent.Hash
	typeInfo := original.TypeInfo
	typeInfo.ReplacedID = original.ID
	rec = &TransactionRecord{
		ID:                newID,
		Hash:              &hash,
		ChainID:           original.ChainID,
		From:              original.From,
		Nonce:             &nonce,
		Status:            status,
		TypeInfo:          typeInfo,
		AddedTime:         r.now(),
		SubmissionOptions: original.SubmissionOptions,
		Args:              &sent.Args,
	}
	if err = r.registry.Register(rec); err != nil {
		return nil, replacementError(isCancellation, err)
	}

	r.logger.Info("replacement submitted",
		zap.String("intent", string(intent)),
		zap.Stringer("original", original.Identity()),
		zap.Stringer("replacement", tentative),
		zap.Stringer("hash", hash),
	)
	return rec, nil
}

func validateReplacementTarget(original *TransactionRecord) error {
	if original == nil || original.From == (common.Address{}) || original.Nonce == nil {
		return ErrInvalidReplacementTarget
	}
	if original.IsOrder() || original.Status.IsTerminal() {
		return ErrInvalidReplacementTarget
	}
	return nil
}

// mergeReplacementArgs pins from and nonce to the original. A speed up keeps
// every field the caller left empty from the original submission; a
// cancellation is a zero value transfer to self paying the new fees.
func mergeReplacementArgs(original *TransactionRecord, newArgs SendTxArgs, isCancellation bool) (SendTxArgs, error) {
	nonce := hexutil.Uint64(*original.Nonce)

	var args SendTxArgs
	if isCancellation {
		to := original.From
		gas := hexutil.Uint64(params.TxGas)
		args = SendTxArgs{
			To:                   &to,
			Gas:                  &gas,
			Value:                (*hexutil.Big)(new(big.Int)),
			GasPrice:             newArgs.GasPrice,
			MaxFeePerGas:         newArgs.MaxFeePerGas,
			MaxPriorityFeePerGas: newArgs.MaxPriorityFeePerGas,
		}
	} else {
		args = newArgs
		if original.Args != nil {
			if err := mergo.Merge(&args, *original.Args); err != nil {
				return SendTxArgs{}, ErrInvalidSendTxArgs.WithCause(err)
			}
		}
	}

	// new fees of one kind must not be mixed with old fees of the other
	if newArgs.IsDynamicFeeTx() {
		args.GasPrice = nil
	} else if newArgs.GasPrice != nil {
		args.MaxFeePerGas, args.MaxPriorityFeePerGas = nil, nil
	}

	args.From = original.From
	args.Nonce = &nonce
	return args, nil
}

func replacementError(isCancellation bool, cause error) error {
	base := ErrReplacementFailed
	if isCancellation {
		base = ErrCancellationFailed
	}
	wrapped := base.WithCause(cause)
	if kind := errors.KindOf(cause); kind != errors.KindUnknown {
		wrapped.Kind = kind
	}
	return wrapped
}
