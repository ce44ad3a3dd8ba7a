package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/status-im/connector-txqueue/circuitbreaker"
	"github.com/status-im/connector-txqueue/logutils"
)

// EthClient is the part of *ethclient.Client the wallet uses.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Endpoint is a named client, one per configured RPC URL.
type Endpoint struct {
	Name   string
	Client EthClient
}

// ClientWithFallback tries its endpoints in order, each behind its own
// circuit, so a failing endpoint is skipped until its circuit closes again.
type ClientWithFallback struct {
	ChainID   uint64
	endpoints []Endpoint
	cb        *circuitbreaker.CircuitBreaker
	logger    *zap.Logger

	WalletNotifier func(chainId uint64, message string)

	IsConnected             bool
	consecutiveFailureCount int
	IsConnectedLock         sync.RWMutex
	LastCheckedAt           int64
}

var vmErrors = []error{
	vm.ErrOutOfGas,
	vm.ErrCodeStoreOutOfGas,
	vm.ErrDepth,
	vm.ErrInsufficientBalance,
	vm.ErrContractAddressCollision,
	vm.ErrExecutionReverted,
	vm.ErrMaxCodeSizeExceeded,
	vm.ErrInvalidJump,
	vm.ErrWriteProtection,
	vm.ErrReturnDataOutOfBounds,
	vm.ErrGasUintOverflow,
	vm.ErrInvalidCode,
	vm.ErrNonceUintOverflow,
}

func NewClient(chainID uint64, endpoints []Endpoint, config circuitbreaker.Config) *ClientWithFallback {
	return &ClientWithFallback{
		ChainID:       chainID,
		endpoints:     endpoints,
		cb:            circuitbreaker.NewCircuitBreaker(config),
		logger:        logutils.ZapLogger().Named("ClientWithFallback").With(zap.Uint64("chainID", chainID)),
		IsConnected:   true,
		LastCheckedAt: time.Now().Unix(),
	}
}

func (c *ClientWithFallback) Close() {
	for _, e := range c.endpoints {
		e.Client.Close()
	}
}

// isNodeAnswer reports whether err is an answer of a healthy node, like a
// revert or a rejected transaction, rather than a broken endpoint. Such
// errors neither trip the circuit nor move on to the next endpoint.
func isNodeAnswer(err error) bool {
	if errors.Is(err, ethereum.NotFound) {
		return true
	}
	if strings.HasPrefix(err.Error(), "execution reverted") {
		return true
	}
	for _, vmError := range vmErrors {
		if errors.Is(err, vmError) {
			return true
		}
	}
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

func (c *ClientWithFallback) setIsConnected(value bool) {
	c.IsConnectedLock.Lock()
	defer c.IsConnectedLock.Unlock()
	c.LastCheckedAt = time.Now().Unix()
	if !value {
		c.consecutiveFailureCount++
		if c.consecutiveFailureCount > 1 && c.IsConnected {
			if c.WalletNotifier != nil {
				c.WalletNotifier(c.ChainID, "down")
			}
			c.IsConnected = false
		}
	} else {
		c.consecutiveFailureCount = 0
		if !c.IsConnected {
			c.IsConnected = true
			if c.WalletNotifier != nil {
				c.WalletNotifier(c.ChainID, "up")
			}
		}
	}
}

func (c *ClientWithFallback) Connected() bool {
	c.IsConnectedLock.RLock()
	defer c.IsConnectedLock.RUnlock()
	return c.IsConnected
}

func circuitName(chainID uint64, endpoint string) string {
	return fmt.Sprintf("ethClient_%d_%s", chainID, endpoint)
}

func makeCall[T any](ctx context.Context, c *ClientWithFallback, method string, call func(ctx context.Context, client EthClient) (T, error)) (T, error) {
	var zero T
	if len(c.endpoints) == 0 {
		return zero, fmt.Errorf("no endpoints configured for chain %d", c.ChainID)
	}

	cmd := circuitbreaker.NewCommand(ctx, nil)
	for _, e := range c.endpoints {
		client := e.Client
		cmd.Add(circuitbreaker.NewFunctor(func(ctx context.Context) ([]any, error) {
			res, err := call(ctx, client)
			if err != nil && isNodeAnswer(err) {
				return []any{res, err}, nil
			}
			if err != nil {
				return nil, err
			}
			return []any{res, nil}, nil
		}, circuitName(c.ChainID, e.Name)))
	}

	result := c.cb.Execute(cmd)
	if result.Error() != nil {
		c.setIsConnected(false)
		c.logger.Debug("all endpoints failed", zap.String("method", method), zap.Error(result.Error()))
		return zero, result.Error()
	}
	c.setIsConnected(true)

	res := result.Result()
	if err, _ := res[1].(error); err != nil {
		return zero, err
	}
	return res[0].(T), nil
}

func (c *ClientWithFallback) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return makeCall(ctx, c, "eth_getTransactionCount", func(ctx context.Context, client EthClient) (uint64, error) {
		return client.PendingNonceAt(ctx, account)
	})
}

func (c *ClientWithFallback) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return makeCall(ctx, c, "eth_getTransactionCount", func(ctx context.Context, client EthClient) (uint64, error) {
		return client.NonceAt(ctx, account, blockNumber)
	})
}

func (c *ClientWithFallback) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return makeCall(ctx, c, "eth_gasPrice", func(ctx context.Context, client EthClient) (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
}

func (c *ClientWithFallback) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return makeCall(ctx, c, "eth_estimateGas", func(ctx context.Context, client EthClient) (uint64, error) {
		return client.EstimateGas(ctx, msg)
	})
}

func (c *ClientWithFallback) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return makeCall(ctx, c, "eth_getTransactionReceipt", func(ctx context.Context, client EthClient) (*types.Receipt, error) {
		return client.TransactionReceipt(ctx, txHash)
	})
}

// SendTransaction treats "already known" as success: the transaction reached
// the node through an endpoint that timed out before answering.
func (c *ClientWithFallback) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := makeCall(ctx, c, "eth_sendRawTransaction", func(ctx context.Context, client EthClient) (struct{}, error) {
		return struct{}{}, client.SendTransaction(ctx, tx)
	})
	if err != nil && strings.Contains(err.Error(), "already known") {
		return nil
	}
	return err
}
