package connector

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/event"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/status-im/connector-txqueue/logutils"
	"github.com/status-im/connector-txqueue/params"
	"github.com/status-im/connector-txqueue/services/connector/chainutils"
	persistence "github.com/status-im/connector-txqueue/services/connector/database"
	"github.com/status-im/connector-txqueue/services/connector/queue"
	"github.com/status-im/connector-txqueue/services/connector/submitter"
	"github.com/status-im/connector-txqueue/services/wallet/orders"
	"github.com/status-im/connector-txqueue/sqlite"
	"github.com/status-im/connector-txqueue/transactions"
)

const (
	transactionsMigrationsTable = "tracked_transactions_migrations"
	queueMigrationsTable        = "connector_requests_migrations"
	dAppsMigrationsTable        = "connector_dapps_migrations"
)

// Dependencies are the collaborators the service does not build itself.
type Dependencies struct {
	// DB keeps the queue, tracked transactions and dApp permissions. The
	// queue and the tracked set live in memory only when nil.
	DB        *sql.DB
	Providers transactions.ProviderResolver
	Signers   transactions.SignerResolver
	// OrderAPI enables wallet_submitOrder and order watching when set.
	OrderAPI orders.API
	Feed     *event.Feed
	Notifier transactions.Notifier
}

// Service wires the request queue to submission and transaction tracking.
type Service struct {
	config *params.Config

	records      *transactions.RecordStore
	watcher      *transactions.Watcher
	replacer     *transactions.Replacer
	orderWatcher *orders.Watcher
	queue        *queue.Service
	dApps        *persistence.DB

	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewService(config *params.Config, deps Dependencies) (*Service, error) {
	if _, err := chainutils.GetDefaultChainID(config.Networks); err != nil {
		return nil, err
	}

	var (
		recordPersistence transactions.Persistence
		queueStorage      queue.Storage = queue.NewInMemStorage()
		dApps             *persistence.DB
	)
	if deps.DB != nil {
		err := multierr.Combine(
			sqlite.Migrate(deps.DB, transactionsMigrationsTable, transactions.Migrations),
			sqlite.Migrate(deps.DB, queueMigrationsTable, queue.Migrations),
			sqlite.Migrate(deps.DB, dAppsMigrationsTable, persistence.Migrations),
		)
		if err != nil {
			return nil, err
		}
		recordPersistence = transactions.NewDBPersistence(deps.DB)
		queueStorage = queue.NewDBStorage(deps.DB)
		dApps = persistence.NewDB(deps.DB)
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = transactions.SignalNotifier{}
	}

	records := transactions.NewRecordStore(recordPersistence, deps.Feed)
	watcher := transactions.NewWatcher(records, deps.Providers, transactions.WatcherConfig{
		PollInterval: config.WatcherConfig.PollInterval(),
		RPCRateLimit: config.WatcherConfig.RPCRateLimit,
		RPCBurst:     config.WatcherConfig.RPCBurst,
	})
	broadcaster := transactions.NewBroadcaster(deps.Providers, time.Duration(config.RPCCallTimeoutSeconds)*time.Second)

	subDeps := submitter.Dependencies{
		Signers:  deps.Signers,
		Sender:   broadcaster,
		Registry: watcher,
		Networks: config.Networks,
		Batches:  submitter.NewSequentialBatchSender(broadcaster),
	}
	if dApps != nil {
		subDeps.DApps = dApps
	}

	s := &Service{
		config:   config,
		records:  records,
		watcher:  watcher,
		replacer: transactions.NewReplacer(watcher, deps.Signers, broadcaster, notifier, nil),
		dApps:    dApps,
		logger:   logutils.ZapLogger().Named("ConnectorService"),
	}

	if deps.OrderAPI != nil {
		s.orderWatcher = orders.NewWatcher(deps.OrderAPI, watcher, nil, orders.Config{
			PollInterval: time.Duration(config.OrdersConfig.PollIntervalMs) * time.Millisecond,
			WaitTimeout:  time.Duration(config.OrdersConfig.WaitTimeoutSeconds) * time.Second,
			SeenOrderTTL: time.Duration(config.OrdersConfig.SeenOrderTTLSeconds) * time.Second,
		}, nil)
		subDeps.OrderSender = deps.OrderAPI
		subDeps.OrderWatcher = s.orderWatcher
	}

	s.queue = queue.NewService(queue.NewStore(queueStorage, deps.Feed), submitter.New(subDeps), notifier)
	return s, nil
}

// Start restores persisted state and resumes watching. It is a no-op when
// the service is already running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	if err := s.queue.Store().Rehydrate(); err != nil {
		return err
	}
	if err := s.records.Load(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := s.watcher.Start(ctx); err != nil {
		cancel()
		return err
	}
	resumed := 0
	if s.orderWatcher != nil {
		s.orderWatcher.Start()
		resumed = s.orderWatcher.ResumeOrders(s.records.Active())
	}
	s.cancel = cancel

	s.logger.Info("connector service started",
		zap.Int("queued", s.queue.Store().Len()),
		zap.Bool("orders", s.orderWatcher != nil),
		zap.Int("resumedOrders", resumed),
	)
	return nil
}

func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil

	if s.orderWatcher != nil {
		s.orderWatcher.Stop()
	}
	s.watcher.Stop()
	s.logger.Info("connector service stopped")
	return nil
}

func (s *Service) Queue() *queue.Service {
	return s.queue
}

func (s *Service) Replacer() *transactions.Replacer {
	return s.replacer
}

func (s *Service) Records() *transactions.RecordStore {
	return s.records
}

func (s *Service) Watcher() *transactions.Watcher {
	return s.watcher
}

// DApps is nil when the service runs without a database.
func (s *Service) DApps() *persistence.DB {
	return s.dApps
}

func (s *Service) APIs() []gethrpc.API {
	return []gethrpc.API{
		{
			Namespace: "connector",
			Version:   "0.1.0",
			Service:   NewAPI(s),
		},
	}
}
