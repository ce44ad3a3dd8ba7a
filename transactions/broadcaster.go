package transactions

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/status-im/connector-txqueue/logutils"
)

const defaultRPCCallTimeout = 30 * time.Second

// Provider is the part of an Ethereum client used to submit and observe
// transactions. *ethclient.Client satisfies it.
type Provider interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// ProviderResolver returns the provider used for a chain and submission channel.
type ProviderResolver interface {
	Provider(chainID uint64, channel SubmissionChannel) (Provider, error)
}

// Signer is the signing capability of a single account. Key custody is
// outside of this module.
type Signer interface {
	SignTx(ctx context.Context, tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error)
	SignHash(ctx context.Context, hash []byte) ([]byte, error)
}

// SignerResolver resolves the signer of an account.
type SignerResolver interface {
	SignerFor(ctx context.Context, from common.Address) (Signer, error)
}

// SentTransaction describes a transaction accepted by a provider.
type SentTransaction struct {
	Hash  common.Hash
	Nonce uint64
	// Args are the submitted arguments with nonce, gas and fees filled in.
	Args SendTxArgs
}

// Sender is the submission path shared by first submissions and replacements.
type Sender interface {
	Send(ctx context.Context, chainID uint64, opts SubmissionOptions, signer Signer, args SendTxArgs) (*SentTransaction, error)
}

// Broadcaster builds, signs and propagates classic transactions.
type Broadcaster struct {
	providers      ProviderResolver
	nonce          *Nonce
	rpcCallTimeout time.Duration
	logger         *zap.Logger
}

func NewBroadcaster(providers ProviderResolver, rpcCallTimeout time.Duration) *Broadcaster {
	if rpcCallTimeout <= 0 {
		rpcCallTimeout = defaultRPCCallTimeout
	}
	return &Broadcaster{
		providers:      providers,
		nonce:          NewNonce(),
		rpcCallTimeout: rpcCallTimeout,
		logger:         logutils.ZapLogger().Named("Broadcaster"),
	}
}

// Send validates args, fills missing nonce, gas and gas price from the
// provider, signs with signer and propagates the result. An explicit nonce in
// args is kept as is, which is what makes replacements work.
func (b *Broadcaster) Send(ctx context.Context, chainID uint64, opts SubmissionOptions, signer Signer, args SendTxArgs) (sent *SentTransaction, err error) {
	if !args.Valid() {
		return nil, ErrInvalidSendTxArgs
	}

	provider, err := b.providers.Provider(chainID, opts.ChannelOrDefault())
	if err != nil {
		return nil, ErrNoProvider.WithCause(err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.rpcCallTimeout)
	defer cancel()

	var (
		nonce  uint64
		unlock UnlockNonceFunc
	)
	if args.Nonce != nil {
		nonce = uint64(*args.Nonce)
		unlock = b.nonce.Hold(chainID, args.From)
	} else {
		nonce, unlock, err = b.nonce.Next(ctx, provider, chainID, args.From)
		if err != nil {
			return nil, ErrBroadcastFailed.WithCause(err)
		}
	}
	defer func() {
		unlock(err == nil, nonce)
	}()

	gasPrice := (*big.Int)(args.GasPrice)
	if !args.IsDynamicFeeTx() && args.GasPrice == nil {
		gasPrice, err = provider.SuggestGasPrice(ctx)
		if err != nil {
			return nil, ErrBroadcastFailed.WithCause(err)
		}
	}

	var gas uint64
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	} else {
		msg := ethereum.CallMsg{
			From:  args.From,
			To:    args.To,
			Value: args.ValueOrZero(),
			Data:  args.GetInput(),
		}
		if args.IsDynamicFeeTx() {
			msg.GasFeeCap = (*big.Int)(args.MaxFeePerGas)
			msg.GasTipCap = (*big.Int)(args.MaxPriorityFeePerGas)
		} else {
			msg.GasPrice = gasPrice
		}
		gas, err = provider.EstimateGas(ctx, msg)
		if err != nil {
			return nil, ErrBroadcastFailed.WithCause(err)
		}
	}

	tx := buildTransaction(chainID, nonce, gas, gasPrice, args)
	signedTx, err := signer.SignTx(ctx, tx, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, ErrSigningFailed.WithCause(err)
	}

	if err = provider.SendTransaction(ctx, signedTx); err != nil {
		return nil, ErrBroadcastFailed.WithCause(err)
	}

	b.logger.Info("transaction sent",
		zap.Uint64("chainID", chainID),
		zap.Stringer("from", args.From),
		zap.Uint64("nonce", nonce),
		zap.Stringer("hash", signedTx.Hash()),
		zap.String("channel", string(opts.ChannelOrDefault())),
	)

	filled := args
	n, g := hexutil.Uint64(nonce), hexutil.Uint64(gas)
	filled.Nonce, filled.Gas = &n, &g
	if !args.IsDynamicFeeTx() {
		filled.GasPrice = (*hexutil.Big)(gasPrice)
	}
	return &SentTransaction{Hash: signedTx.Hash(), Nonce: nonce, Args: filled}, nil
}

func buildTransaction(chainID, nonce, gas uint64, gasPrice *big.Int, args SendTxArgs) *gethtypes.Transaction {
	var txData gethtypes.TxData
	if args.IsDynamicFeeTx() {
		txData = &gethtypes.DynamicFeeTx{
			ChainID:   new(big.Int).SetUint64(chainID),
			Nonce:     nonce,
			Gas:       gas,
			GasTipCap: (*big.Int)(args.MaxPriorityFeePerGas),
			GasFeeCap: (*big.Int)(args.MaxFeePerGas),
			To:        args.To,
			Value:     args.ValueOrZero(),
			Data:      args.GetInput(),
		}
	} else {
		txData = &gethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       args.To,
			Value:    args.ValueOrZero(),
			Data:     args.GetInput(),
		}
	}
	return gethtypes.NewTx(txData)
}
