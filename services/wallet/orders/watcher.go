package orders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/connector-txqueue/logutils"
	"github.com/status-im/connector-txqueue/metrics"
	"github.com/status-im/connector-txqueue/services/wallet/async"
	"github.com/status-im/connector-txqueue/transactions"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultSeenOrderTTL = time.Hour
)

// Registry receives the records mirroring orders.
type Registry interface {
	Register(rec *transactions.TransactionRecord) error
	Settle(id transactions.TxIdentity, status transactions.TxStatus) (bool, error)
	SetOrderStatus(id transactions.TxIdentity, orderStatus string) error
}

type Config struct {
	PollInterval time.Duration
	// WaitTimeout bounds a single WaitForOrder. Zero means no bound.
	WaitTimeout time.Duration
	SeenOrderTTL time.Duration
}

// Watcher discovers orders submitted through the order API, tracks them
// right away and reconciles their record once the order settles.
type Watcher struct {
	api      API
	registry Registry
	newID    transactions.IDGenerator
	config   Config
	logger   *zap.Logger

	seen *ttlcache.Cache[string, transactions.TxIdentity]

	mu sync.Mutex
	// group is nil while the watcher is stopped.
	group *async.Group
}

// NewWatcher creates a watcher. logger defaults to the process logger.
func NewWatcher(api API, registry Registry, newID transactions.IDGenerator, config Config, logger *zap.Logger) *Watcher {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.SeenOrderTTL <= 0 {
		config.SeenOrderTTL = DefaultSeenOrderTTL
	}
	if newID == nil {
		newID = transactions.NewTxID
	}
	if logger == nil {
		logger = logutils.ZapLogger()
	}
	return &Watcher{
		api:      api,
		registry: registry,
		newID:    newID,
		config:   config,
		logger:   logger.Named("OrderWatcher"),
		seen: ttlcache.New[string, transactions.TxIdentity](
			ttlcache.WithTTL[string, transactions.TxIdentity](config.SeenOrderTTL),
			ttlcache.WithDisableTouchOnHit[string, transactions.TxIdentity](),
		),
	}
}

// Start runs expiration of remembered orders and accepts order waits until
// Stop. A stopped watcher can be started again.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.group != nil {
		return
	}
	w.group = async.NewGroup(context.Background())
	go w.seen.Start()
}

// Stop cancels every outstanding WaitForOrder and waits for them to return.
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
	w.seen.Stop()
}

// ResumeOrders watches the unsettled order records again, typically the
// persisted ones after a restart. It returns how many orders are watched.
func (w *Watcher) ResumeOrders(records []*transactions.TransactionRecord) int {
	resumed := 0
	for _, rec := range records {
		if !rec.IsOrder() || rec.Status.IsTerminal() {
			continue
		}
		if item := w.seen.Get(rec.OrderID); item != nil {
			continue
		}
		if !w.watch(context.Background(), rec.Identity(), rec.ChainID, rec.OrderID) {
			continue
		}
		w.seen.Set(rec.OrderID, rec.Identity(), ttlcache.DefaultTTL)
		resumed++
	}
	if resumed > 0 {
		w.logger.Info("resumed watching orders", zap.Int("count", resumed))
	}
	return resumed
}

// CreateExternallySubmittedOrder looks up the latest open order of address and,
// if there is one, registers a Pending record for it before the order settles.
// The order is then watched until it settles or Stop is called or ctx is done.
// Fetch failures are logged and nothing is registered.
func (w *Watcher) CreateExternallySubmittedOrder(ctx context.Context, address common.Address, chainID uint64) *transactions.TransactionRecord {
	resp, err := w.api.FetchLatestOpenOrder(ctx, address, chainID)
	if err != nil {
		metrics.TransientErrors.WithLabelValues("orders").Inc()
		w.logger.Error("fetching latest open order failed",
			zap.String("function", "createExternallySubmittedOrder"),
			zap.Stringer("address", address),
			zap.Uint64("chainID", chainID),
			zap.Error(err),
		)
		return nil
	}
	if resp == nil || len(resp.Orders) == 0 {
		return nil
	}

	order := resp.Orders[0]
	if item := w.seen.Get(order.OrderHash); item != nil {
		w.logger.Debug("order already tracked", zap.String("orderHash", order.OrderHash))
		return nil
	}

	rec := &transactions.TransactionRecord{
		ID:          w.newID(address, chainID),
		ChainID:     chainID,
		From:        address,
		Status:      transactions.Pending,
		TypeInfo:    transactions.TypeInfo{Type: transactions.TxTypeOrder},
		AddedTime:   time.Now(),
		OrderID:     order.OrderHash,
		OrderStatus: string(order.Status),
		QueueStatus: transactions.QueueStatusSubmitted,
	}
	if err := w.registry.Register(rec); err != nil {
		w.logger.Error("registering order failed",
			zap.String("function", "createExternallySubmittedOrder"),
			zap.String("orderHash", order.OrderHash),
			zap.Error(err),
		)
		return nil
	}
	w.seen.Set(order.OrderHash, rec.Identity(), ttlcache.DefaultTTL)

	w.watch(ctx, rec.Identity(), chainID, order.OrderHash)
	return rec
}

// watch waits for the order in the background. It returns false when the
// watcher is not running; the record then stays Pending until it is resumed.
func (w *Watcher) watch(ctx context.Context, id transactions.TxIdentity, chainID uint64, orderHash string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.group == nil {
		w.logger.Debug("watcher not running, order not watched", zap.String("orderHash", orderHash))
		return false
	}

	w.group.Add(func(groupCtx context.Context) error {
		waitCtx, cancel := context.WithCancel(groupCtx)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		order, err := w.WaitForOrder(waitCtx, chainID, orderHash)
		if err != nil {
			if waitCtx.Err() != nil {
				w.logger.Debug("stopped waiting for order", zap.String("orderHash", orderHash))
				return err
			}
			w.logger.Warn("waiting for order failed", zap.String("orderHash", orderHash), zap.Error(err))
			return err
		}
		w.reconcile(id, order)
		return nil
	})
	return true
}

func (w *Watcher) reconcile(id transactions.TxIdentity, order *Order) {
	if err := w.registry.SetOrderStatus(id, string(order.Status)); err != nil {
		w.logger.Error("mirroring order status failed", zap.Stringer("id", id), zap.Error(err))
	}
	applied, err := w.registry.Settle(id, order.Status.TxStatus())
	if err != nil {
		w.logger.Error("settling order failed", zap.Stringer("id", id), zap.Error(err))
		return
	}
	w.logger.Info("order settled",
		zap.Stringer("id", id),
		zap.String("orderHash", order.OrderHash),
		zap.String("status", string(order.Status)),
		zap.Bool("applied", applied),
	)
}

func (w *Watcher) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.config.PollInterval
	b.MaxInterval = 10 * w.config.PollInterval
	b.MaxElapsedTime = 0
	return b
}

// WaitForOrder polls the order until it is filled, cancelled or expired.
// Transient failures are retried with backoff; an unknown order is not.
func (w *Watcher) WaitForOrder(ctx context.Context, chainID uint64, orderHash string) (*Order, error) {
	if w.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.WaitTimeout)
		defer cancel()
	}

	var settled *Order
	operation := func() error {
		order, err := w.api.GetOrder(ctx, chainID, orderHash)
		if errors.Is(err, ErrOrderNotFound) {
			return backoff.Permanent(err)
		}
		if err != nil {
			metrics.TransientErrors.WithLabelValues("orders").Inc()
			w.logger.Warn("polling order failed", zap.String("orderHash", orderHash), zap.Error(err))
			return err
		}
		if !order.Status.IsFinal() {
			return ErrOrderNotSettled
		}
		settled = order
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(w.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return settled, nil
}
