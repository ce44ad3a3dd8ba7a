package queue

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/event"

	"github.com/status-im/connector-txqueue/logutils"
	"github.com/status-im/connector-txqueue/metrics"
	"github.com/status-im/connector-txqueue/services/connector/requests"
	"github.com/status-im/connector-txqueue/services/wallet/walletevent"
	"github.com/status-im/connector-txqueue/signal"
)

// Store is the queue of requests waiting for the user, keyed by request id.
// Entries are kept in a map; read order is computed on every read.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
	seq     uint64
	origin  string
	storage Storage
	feed    *event.Feed
	now     func() time.Time
	logger  *zap.Logger
}

// NewStore creates a store backed by storage. feed is optional.
func NewStore(storage Storage, feed *event.Feed) *Store {
	if storage == nil {
		storage = NewInMemStorage()
	}
	return &Store{
		entries: make(map[string]*Entry),
		storage: storage,
		feed:    feed,
		now:     time.Now,
		logger:  logutils.ZapLogger().Named("RequestQueue"),
	}
}

// Rehydrate loads the persisted queue. Entries that were being confirmed when
// the previous session ended are put back to Pending.
func (s *Store) Rehydrate() error {
	entries, err := s.storage.LoadEntries()
	if err != nil {
		return err
	}
	origin, err := s.storage.LoadMostRecentBatchedOrigin()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = make(map[string]*Entry, len(entries))
	s.origin = origin
	reset := 0
	for i := range entries {
		entry := entries[i]
		if entry.Status == EntryConfirming {
			entry.Status = EntryPending
			if err := s.storage.SaveEntry(entry); err != nil {
				s.mu.Unlock()
				return err
			}
			reset++
		}
		if entry.Seq > s.seq {
			s.seq = entry.Seq
		}
		s.entries[entry.Request.RequestID] = &entry
	}
	count := len(s.entries)
	s.mu.Unlock()

	metrics.QueuedRequests.Set(float64(count))
	s.logger.Info("request queue rehydrated", zap.Int("count", count), zap.Int("reset", reset))
	return nil
}

// Add queues request as Pending. A Connect request evicts any Connect request
// of the same tab. Adding an id that is already queued replaces that entry.
func (s *Store) Add(request requests.ExternalRequest) error {
	s.mu.Lock()
	var evicted []string
	if request.Kind() == requests.KindConnect {
		for id, e := range s.entries {
			if id != request.RequestID && e.Request.Kind() == requests.KindConnect && e.Request.Origin.TabID == request.Origin.TabID {
				evicted = append(evicted, id)
			}
		}
	}
	for _, id := range evicted {
		if err := s.storage.DeleteEntry(id); err != nil {
			s.mu.Unlock()
			return err
		}
		delete(s.entries, id)
	}

	s.seq++
	entry := &Entry{
		Request:   request,
		Status:    EntryPending,
		CreatedAt: s.now(),
		Seq:       s.seq,
	}
	if err := s.storage.SaveEntry(*entry); err != nil {
		s.mu.Unlock()
		return err
	}
	s.entries[request.RequestID] = entry
	count := len(s.entries)
	s.mu.Unlock()

	for _, id := range evicted {
		s.logger.Debug("connect request evicted", zap.String("requestId", id), zap.Int("tabId", request.Origin.TabID))
	}
	s.notify(*entry, count)
	return nil
}

// Remove drops the entry. Removing an absent id is a no-op.
func (s *Store) Remove(requestID string) error {
	s.mu.Lock()
	entry, ok := s.entries[requestID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if err := s.storage.DeleteEntry(requestID); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.entries, requestID)
	count := len(s.entries)
	s.mu.Unlock()

	removed := *entry
	removed.Status = entryRemoved
	s.notify(removed, count)
	return nil
}

// RemoveAll clears the queue.
func (s *Store) RemoveAll() error {
	s.mu.Lock()
	if err := s.storage.DeleteAllEntries(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.entries = make(map[string]*Entry)
	s.mu.Unlock()

	s.notify(Entry{Status: entryRemoved}, 0)
	return nil
}

// StartConfirming moves a Pending entry to Confirming and returns it.
func (s *Store) StartConfirming(requestID string) (Entry, error) {
	return s.setStatus(requestID, EntryPending, EntryConfirming)
}

// MarkConfirming sets the entry to Confirming. It is a no-op if the entry is
// gone.
func (s *Store) MarkConfirming(requestID string) error {
	_, err := s.setStatus(requestID, "", EntryConfirming)
	if err == ErrRequestNotFound {
		return nil
	}
	return err
}

// MarkPending puts an entry back to Pending. It is a no-op if the entry is
// gone.
func (s *Store) MarkPending(requestID string) error {
	_, err := s.setStatus(requestID, "", EntryPending)
	if err == ErrRequestNotFound {
		return nil
	}
	return err
}

// setStatus moves an entry to next. If from is set the entry must currently
// be in that status.
func (s *Store) setStatus(requestID string, from, next EntryStatus) (Entry, error) {
	s.mu.Lock()
	entry, ok := s.entries[requestID]
	if !ok {
		s.mu.Unlock()
		return Entry{}, ErrRequestNotFound
	}
	if from != "" && entry.Status != from {
		s.mu.Unlock()
		return Entry{}, ErrRequestAlreadyConfirming
	}
	if entry.Status == next {
		s.mu.Unlock()
		return *entry, nil
	}
	updated := *entry
	updated.Status = next
	if err := s.storage.SaveEntry(updated); err != nil {
		s.mu.Unlock()
		return Entry{}, err
	}
	s.entries[requestID] = &updated
	count := len(s.entries)
	s.mu.Unlock()

	s.notify(updated, count)
	return updated, nil
}

// SelectAll returns the queued entries, oldest first.
func (s *Store) SelectAll() []Entry {
	s.mu.Lock()
	res := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		res = append(res, *e)
	}
	s.mu.Unlock()

	sortEntries(res)
	return res
}

func (s *Store) Get(requestID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[requestID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) SetMostRecentBatchedOrigin(origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storage.SaveMostRecentBatchedOrigin(origin); err != nil {
		return err
	}
	s.origin = origin
	return nil
}

func (s *Store) MostRecentBatchedOrigin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin
}

func (s *Store) notify(entry Entry, count int) {
	metrics.QueuedRequests.Set(float64(count))

	if s.feed != nil {
		s.feed.Send(walletevent.Event{
			Type:      walletevent.EventRequestQueueUpdated,
			At:        time.Now().Unix(),
			ChainID:   entry.Request.ChainIDOrZero(),
			RequestID: entry.Request.RequestID,
		})
	}
	signal.SendConnectorRequestQueueUpdated(signal.ConnectorRequestQueueSignal{
		RequestID: entry.Request.RequestID,
		Kind:      string(entry.Request.Kind()),
		DAppURL:   entry.Request.Origin.URL,
		TabID:     entry.Request.Origin.TabID,
		Status:    string(entry.Status),
		Pending:   count,
	})
}
