package transactions

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/status-im/connector-txqueue/logutils"
	"github.com/status-im/connector-txqueue/metrics"
	"github.com/status-im/connector-txqueue/services/wallet/walletevent"
	"github.com/status-im/connector-txqueue/signal"
)

// Persistence stores tracked records outside of the process.
type Persistence interface {
	SaveRecord(rec *TransactionRecord) error
	DeleteRecord(id TxIdentity) error
	LoadRecords() ([]*TransactionRecord, error)
}

type chainRecords map[uint64]map[TxID]*TransactionRecord

// RecordStore holds every tracked record keyed by address, chain and id.
// Records are retired in place once terminal and only deleted explicitly.
type RecordStore struct {
	mu          sync.RWMutex
	records     map[common.Address]chainRecords
	persistence Persistence
	feed        *event.Feed
	logger      *zap.Logger
}

// NewRecordStore creates a store. persistence and feed are optional.
func NewRecordStore(persistence Persistence, feed *event.Feed) *RecordStore {
	return &RecordStore{
		records:     make(map[common.Address]chainRecords),
		persistence: persistence,
		feed:        feed,
		logger:      logutils.ZapLogger().Named("RecordStore"),
	}
}

// Load replaces the in-memory state with what persistence holds.
func (s *RecordStore) Load() error {
	if s.persistence == nil {
		return nil
	}
	records, err := s.persistence.LoadRecords()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[common.Address]chainRecords)
	for _, rec := range records {
		s.put(rec)
	}
	s.logger.Info("loaded tracked transactions", zap.Int("count", len(records)))
	return nil
}

func (s *RecordStore) put(rec *TransactionRecord) {
	byChain, ok := s.records[rec.From]
	if !ok {
		byChain = make(chainRecords)
		s.records[rec.From] = byChain
	}
	byID, ok := byChain[rec.ChainID]
	if !ok {
		byID = make(map[TxID]*TransactionRecord)
		byChain[rec.ChainID] = byID
	}
	byID[rec.ID] = rec
}

func (s *RecordStore) get(id TxIdentity) (*TransactionRecord, bool) {
	rec, ok := s.records[id.From][id.ChainID][id.ID]
	return rec, ok
}

// Add tracks a new record. Ids are never reused, so adding an identity that
// is already present fails.
func (s *RecordStore) Add(rec *TransactionRecord) error {
	if rec.ID == "" || rec.From == (common.Address{}) {
		return ErrInvalidSendTxArgs
	}

	s.mu.Lock()
	if _, exists := s.get(rec.Identity()); exists {
		s.mu.Unlock()
		return ErrRecordExists
	}
	stored := rec.Copy()
	if s.persistence != nil {
		if err := s.persistence.SaveRecord(stored); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.put(stored)
	s.mu.Unlock()

	s.notify(walletevent.EventPendingTransactionUpdate, stored)
	return nil
}

// Delete removes a record. Deleting an absent record is not an error and
// reports false.
func (s *RecordStore) Delete(id TxIdentity) (bool, error) {
	s.mu.Lock()
	rec, ok := s.get(id)
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	if s.persistence != nil {
		if err := s.persistence.DeleteRecord(id); err != nil {
			s.mu.Unlock()
			return false, err
		}
	}
	delete(s.records[id.From][id.ChainID], id.ID)
	if len(s.records[id.From][id.ChainID]) == 0 {
		delete(s.records[id.From], id.ChainID)
	}
	if len(s.records[id.From]) == 0 {
		delete(s.records, id.From)
	}
	s.mu.Unlock()

	s.notify(walletevent.EventPendingTransactionUpdate, rec)
	return true, nil
}

// Get returns a copy of the record.
func (s *RecordStore) Get(id TxIdentity) (*TransactionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.get(id)
	if !ok {
		return nil, false
	}
	return rec.Copy(), true
}

// List returns copies of the records of an account on a chain, oldest first.
func (s *RecordStore) List(from common.Address, chainID uint64) []*TransactionRecord {
	s.mu.RLock()
	res := make([]*TransactionRecord, 0, len(s.records[from][chainID]))
	for _, rec := range s.records[from][chainID] {
		res = append(res, rec.Copy())
	}
	s.mu.RUnlock()

	sortByAddedTime(res)
	return res
}

// Active returns copies of all Pending and Cancelling records, oldest first.
func (s *RecordStore) Active() []*TransactionRecord {
	s.mu.RLock()
	var res []*TransactionRecord
	for _, byChain := range s.records {
		for _, byID := range byChain {
			for _, rec := range byID {
				if !rec.Status.IsTerminal() {
					res = append(res, rec.Copy())
				}
			}
		}
	}
	s.mu.RUnlock()

	sortByAddedTime(res)
	return res
}

// UpdateStatus applies a status transition. The first terminal status written
// to a record latches: later updates report applied=false without error.
func (s *RecordStore) UpdateStatus(id TxIdentity, next TxStatus) (applied bool, err error) {
	s.mu.Lock()
	rec, ok := s.get(id)
	if !ok {
		s.mu.Unlock()
		return false, ErrRecordNotFound
	}
	if rec.Status.IsTerminal() || rec.Status == next {
		s.mu.Unlock()
		return false, nil
	}
	if !rec.Status.CanTransitionTo(next) {
		s.mu.Unlock()
		return false, ErrInvalidTransition
	}

	updated := rec.Copy()
	updated.Status = next
	if s.persistence != nil {
		if err := s.persistence.SaveRecord(updated); err != nil {
			s.mu.Unlock()
			return false, err
		}
	}
	s.put(updated)
	s.mu.Unlock()

	if next.IsTerminal() {
		metrics.TransactionOutcomes.WithLabelValues(string(next)).Inc()
	}
	s.logger.Debug("transaction status changed",
		zap.Stringer("id", id),
		zap.String("status", string(next)),
	)
	s.notify(walletevent.EventTransactionStatusChanged, updated)
	return true, nil
}

// SetOrderStatus mirrors the latest observed off-chain order status.
func (s *RecordStore) SetOrderStatus(id TxIdentity, orderStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.get(id)
	if !ok {
		return ErrRecordNotFound
	}
	updated := rec.Copy()
	updated.OrderStatus = orderStatus
	if s.persistence != nil {
		if err := s.persistence.SaveRecord(updated); err != nil {
			return err
		}
	}
	s.put(updated)
	return nil
}

func (s *RecordStore) notify(typ walletevent.EventType, rec *TransactionRecord) {
	if s.feed != nil {
		s.feed.Send(walletevent.Event{
			Type:     typ,
			ChainID:  rec.ChainID,
			Accounts: []common.Address{rec.From},
			At:       time.Now().Unix(),
			TxID:     string(rec.ID),
		})
	}

	if typ == walletevent.EventTransactionStatusChanged {
		sig := signal.TransactionStatusChangedSignal{
			ID:      string(rec.ID),
			ChainID: rec.ChainID,
			From:    rec.From.Hex(),
			Status:  string(rec.Status),
		}
		if rec.Hash != nil {
			sig.Hash = rec.Hash.Hex()
		}
		signal.SendWalletEvent(signal.TransactionStatusChanged, sig)
	}
}

func sortByAddedTime(records []*TransactionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].AddedTime.Before(records[j].AddedTime)
	})
}
