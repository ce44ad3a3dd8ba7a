package transactions

import (
	"context"
	"errors"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	ethereum "github.com/ethereum/go-ethereum"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/status-im/connector-txqueue/logutils"
	"github.com/status-im/connector-txqueue/metrics"
	"github.com/status-im/connector-txqueue/services/wallet/async"
)

const (
	DefaultPollInterval = 4 * time.Second
	DefaultRPCRateLimit = 10
	DefaultRPCBurst     = 5
)

// Registry is the registration surface used by submitters and the replacer.
type Registry interface {
	Register(rec *TransactionRecord) error
	Delete(id TxIdentity) (bool, error)
}

type WatcherConfig struct {
	PollInterval time.Duration
	// RPCRateLimit bounds receipt and nonce calls per second across all records.
	RPCRateLimit float64
	RPCBurst     int
}

// Watcher polls chain state for every Pending and Cancelling record, each
// record in its own goroutine, until a terminal status is written.
type Watcher struct {
	store     *RecordStore
	providers ProviderResolver
	limiter   *rate.Limiter
	interval  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	group   *async.Group
	cancels map[TxIdentity]context.CancelFunc
	active  mapset.Set
}

func NewWatcher(store *RecordStore, providers ProviderResolver, config WatcherConfig) *Watcher {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.RPCRateLimit <= 0 {
		config.RPCRateLimit = DefaultRPCRateLimit
	}
	if config.RPCBurst <= 0 {
		config.RPCBurst = DefaultRPCBurst
	}
	return &Watcher{
		store:     store,
		providers: providers,
		limiter:   rate.NewLimiter(rate.Limit(config.RPCRateLimit), config.RPCBurst),
		interval:  config.PollInterval,
		logger:    logutils.ZapLogger().Named("TransactionWatcher"),
		cancels:   make(map[TxIdentity]context.CancelFunc),
		active:    mapset.NewSet(),
	}
}

func (w *Watcher) Records() *RecordStore {
	return w.store
}

// Start resumes polling of every non terminal record already in the store.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.group != nil {
		w.mu.Unlock()
		return nil
	}
	w.group = async.NewGroup(ctx)
	w.mu.Unlock()

	active := w.store.Active()
	for _, rec := range active {
		w.watch(rec)
	}
	w.logger.Info("transaction watcher started", zap.Int("resumed", len(active)))
	return nil
}

// Stop cancels every poll and waits for the goroutines to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	group := w.group
	w.group = nil
	w.mu.Unlock()
	if group == nil {
		return
	}
	group.Stop()
	group.Wait()
}

// Register adds a record to the tracked set and starts polling it when it
// carries a hash. Orders are settled through Settle instead.
func (w *Watcher) Register(rec *TransactionRecord) error {
	if err := w.store.Add(rec); err != nil {
		return err
	}
	w.watch(rec)
	return nil
}

// Delete stops polling and removes the record. Absent records are ignored.
func (w *Watcher) Delete(id TxIdentity) (bool, error) {
	w.Unwatch(id)
	return w.store.Delete(id)
}

// Unwatch stops polling a record and keeps it in the store.
func (w *Watcher) Unwatch(id TxIdentity) {
	w.mu.Lock()
	cancel, ok := w.cancels[id]
	w.mu.Unlock()
	if ok {
		cancel()
	}
}

// Settle writes a status observed outside of chain polling, e.g. by the
// order watcher. Terminal statuses latch like polled ones.
func (w *Watcher) Settle(id TxIdentity, status TxStatus) (bool, error) {
	applied, err := w.store.UpdateStatus(id, status)
	if err != nil {
		return false, err
	}
	if status.IsTerminal() {
		w.Unwatch(id)
	}
	return applied, nil
}

func (w *Watcher) SetOrderStatus(id TxIdentity, orderStatus string) error {
	return w.store.SetOrderStatus(id, orderStatus)
}

// IsWatched reports whether a poll is running for the record.
func (w *Watcher) IsWatched(id TxIdentity) bool {
	return w.active.Contains(id)
}

func (w *Watcher) watch(rec *TransactionRecord) {
	if rec.IsOrder() || rec.Hash == nil || rec.Status.IsTerminal() {
		return
	}
	key := rec.Identity()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.group == nil || !w.active.Add(key) {
		return
	}
	metrics.WatchedTransactions.Inc()

	poll := async.PollCommand{
		Interval: w.interval,
		OnError: func(err error) {
			metrics.TransientErrors.WithLabelValues("transactions").Inc()
			w.logger.Warn("polling transaction failed",
				zap.Stringer("id", key),
				zap.Error(err),
			)
		},
		Runable: func(ctx context.Context) (bool, error) {
			return w.poll(ctx, key)
		},
	}
	w.cancels[key] = w.group.AddCancellable(func(ctx context.Context) error {
		defer w.forget(key)
		return poll.Run(ctx)
	})
}

func (w *Watcher) forget(key TxIdentity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.cancels, key)
	if w.active.Contains(key) {
		w.active.Remove(key)
		metrics.WatchedTransactions.Dec()
	}
}

func (w *Watcher) poll(ctx context.Context, key TxIdentity) (done bool, err error) {
	rec, ok := w.store.Get(key)
	if !ok || rec.Status.IsTerminal() {
		return true, nil
	}
	if err := w.limiter.Wait(ctx); err != nil {
		// only fails once ctx is done
		return true, nil
	}

	provider, err := w.providers.Provider(rec.ChainID, rec.SubmissionOptions.ChannelOrDefault())
	if err != nil {
		return false, ErrNoProvider.WithCause(err)
	}

	receipt, err := fetchReceipt(ctx, provider, rec)
	if err != nil {
		return false, err
	}
	if receipt != nil {
		return w.settle(key, rec.Status.Outcome(receipt.Status == gethtypes.ReceiptStatusSuccessful))
	}

	if rec.Nonce == nil {
		return false, nil
	}
	minedNonce, err := provider.NonceAt(ctx, rec.From, nil)
	if err != nil {
		return false, ErrChainStateUnavailable.WithCause(err)
	}
	if minedNonce <= *rec.Nonce {
		return false, nil
	}

	// Nonce consumed. Check the receipt again in case it was mined in between.
	receipt, err = fetchReceipt(ctx, provider, rec)
	if err != nil {
		return false, err
	}
	if receipt != nil {
		return w.settle(key, rec.Status.Outcome(receipt.Status == gethtypes.ReceiptStatusSuccessful))
	}
	w.logger.Info("transaction superseded by another one with the same nonce",
		zap.Stringer("id", key),
		zap.Uint64("nonce", *rec.Nonce),
	)
	return w.settle(key, rec.Status.Outcome(false))
}

func fetchReceipt(ctx context.Context, provider Provider, rec *TransactionRecord) (*gethtypes.Receipt, error) {
	receipt, err := provider.TransactionReceipt(ctx, *rec.Hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, ErrChainStateUnavailable.WithCause(err)
	}
	return receipt, nil
}

func (w *Watcher) settle(key TxIdentity, status TxStatus) (bool, error) {
	_, err := w.store.UpdateStatus(key, status)
	if errors.Is(err, ErrRecordNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
