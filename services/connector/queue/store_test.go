package queue

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/status-im/connector-txqueue/services/connector/requests"
	"github.com/status-im/connector-txqueue/services/wallet/walletevent"
	"github.com/status-im/connector-txqueue/signal"
	"github.com/status-im/connector-txqueue/sqlite"
	"github.com/status-im/connector-txqueue/transactions"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(storage Storage) (*Store, *fakeClock) {
	clock := newFakeClock()
	store := NewStore(storage, nil)
	store.now = clock.Now
	return store, clock
}

func connectRequest(id string, tabID int) requests.ExternalRequest {
	return requests.ExternalRequest{
		RequestID: id,
		Origin:    requests.Origin{TabID: tabID, URL: "https://app.example.org"},
		Payload:   requests.ConnectPayload{},
	}
}

func sendRequest(id string, tabID int) requests.ExternalRequest {
	chainID := uint64(10)
	to := common.HexToAddress("0xB")
	return requests.ExternalRequest{
		RequestID: id,
		Origin:    requests.Origin{TabID: tabID, URL: "https://app.example.org"},
		ChainID:   &chainID,
		Payload: requests.SendTransactionPayload{
			TxArgs: transactions.SendTxArgs{From: common.HexToAddress("0xA"), To: &to},
		},
	}
}

func requestIDs(entries []Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Request.RequestID)
	}
	return ids
}

func TestConnectRequestsAreDedupedPerTab(t *testing.T) {
	store, clock := newTestStore(nil)

	require.NoError(t, store.Add(connectRequest("connect-1", 7)))
	clock.Advance(time.Second)
	require.NoError(t, store.Add(sendRequest("send-1", 7)))
	clock.Advance(time.Second)
	require.NoError(t, store.Add(connectRequest("connect-9", 9)))
	clock.Advance(time.Second)
	require.NoError(t, store.Add(connectRequest("connect-2", 7)))

	require.Equal(t, []string{"send-1", "connect-9", "connect-2"}, requestIDs(store.SelectAll()))
	_, ok := store.Get("connect-1")
	require.False(t, ok)
}

func TestSelectAllOrdersByCreationTime(t *testing.T) {
	store, clock := newTestStore(nil)
	base := clock.Now()

	clock.Set(base.Add(2 * time.Second))
	require.NoError(t, store.Add(sendRequest("c", 1)))
	clock.Set(base)
	require.NoError(t, store.Add(sendRequest("a", 2)))
	clock.Set(base.Add(time.Second))
	require.NoError(t, store.Add(sendRequest("b", 3)))
	// same tick keeps insertion order
	require.NoError(t, store.Add(sendRequest("b2", 4)))

	entries := store.SelectAll()
	require.Equal(t, []string{"a", "b", "b2", "c"}, requestIDs(entries))
	for i := 1; i < len(entries); i++ {
		require.False(t, entries[i].CreatedAt.Before(entries[i-1].CreatedAt))
	}
}

func TestAddSameRequestIDKeepsOneEntry(t *testing.T) {
	store, _ := newTestStore(nil)
	require.NoError(t, store.Add(sendRequest("a", 1)))
	require.NoError(t, store.Add(sendRequest("a", 2)))

	require.Equal(t, 1, store.Len())
	entry, ok := store.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, entry.Request.Origin.TabID)
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, _ := newTestStore(nil)
	require.NoError(t, store.Add(sendRequest("a", 1)))

	require.NoError(t, store.Remove("missing"))
	require.Equal(t, []string{"a"}, requestIDs(store.SelectAll()))

	require.NoError(t, store.Remove("a"))
	require.NoError(t, store.Remove("a"))
	require.Zero(t, store.Len())
}

func TestConfirmingTransitions(t *testing.T) {
	store, _ := newTestStore(nil)
	require.NoError(t, store.Add(sendRequest("a", 1)))

	require.NoError(t, store.MarkConfirming("missing"))
	require.NoError(t, store.MarkPending("missing"))
	_, err := store.StartConfirming("missing")
	require.ErrorIs(t, err, ErrRequestNotFound)

	entry, err := store.StartConfirming("a")
	require.NoError(t, err)
	require.Equal(t, EntryConfirming, entry.Status)

	_, err = store.StartConfirming("a")
	require.ErrorIs(t, err, ErrRequestAlreadyConfirming)

	require.NoError(t, store.MarkPending("a"))
	entry, _ = store.Get("a")
	require.Equal(t, EntryPending, entry.Status)

	require.NoError(t, store.MarkConfirming("a"))
	entry, _ = store.Get("a")
	require.Equal(t, EntryConfirming, entry.Status)
}

func TestRemoveAll(t *testing.T) {
	store, _ := newTestStore(nil)
	require.NoError(t, store.Add(sendRequest("a", 1)))
	require.NoError(t, store.Add(connectRequest("b", 2)))

	require.NoError(t, store.RemoveAll())
	require.Empty(t, store.SelectAll())
}

func TestStoreNotifiesChanges(t *testing.T) {
	feed := &event.Feed{}
	ch := make(chan walletevent.Event, 10)
	sub := feed.Subscribe(ch)
	defer sub.Unsubscribe()

	var (
		mu      sync.Mutex
		signals []signal.ConnectorRequestQueueSignal
	)
	signal.SetDefaultNodeNotificationHandler(func(jsonEvent string) {
		var envelope struct {
			Type  string                             `json:"type"`
			Event signal.ConnectorRequestQueueSignal `json:"event"`
		}
		if err := json.Unmarshal([]byte(jsonEvent), &envelope); err == nil && envelope.Type == signal.EventConnectorRequestQueueUpdated {
			mu.Lock()
			signals = append(signals, envelope.Event)
			mu.Unlock()
		}
	})
	defer signal.ResetDefaultNodeNotificationHandler()

	store := NewStore(nil, feed)
	require.NoError(t, store.Add(sendRequest("a", 7)))
	require.NoError(t, store.Remove("a"))

	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			require.Equal(t, walletevent.EventRequestQueueUpdated, ev.Type)
			require.Equal(t, "a", ev.RequestID)
			require.EqualValues(t, 10, ev.ChainID)
		case <-time.After(time.Second):
			t.Fatal("no queue event")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, signals, 2)
	require.Equal(t, "Pending", signals[0].Status)
	require.Equal(t, 1, signals[0].Pending)
	require.Equal(t, 7, signals[0].TabID)
	require.Equal(t, "Removed", signals[1].Status)
	require.Equal(t, 0, signals[1].Pending)
}

func setupTestDBStorage(t *testing.T) *DBStorage {
	db, err := sqlite.OpenDB(filepath.Join(t.TempDir(), "queue.db"), "test")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db, "connector_queue_migrations", Migrations))
	return NewDBStorage(db)
}

func TestRehydrateResetsConfirmingEntries(t *testing.T) {
	for name, storage := range map[string]Storage{
		"memory": NewInMemStorage(),
		"sqlite": setupTestDBStorage(t),
	} {
		t.Run(name, func(t *testing.T) {
			store, clock := newTestStore(storage)
			require.NoError(t, store.Add(sendRequest("a", 7)))
			clock.Advance(2 * time.Second)
			require.NoError(t, store.Add(connectRequest("b", 9)))
			_, err := store.StartConfirming("a")
			require.NoError(t, err)
			require.NoError(t, store.SetMostRecentBatchedOrigin("https://batch.example.org"))

			restored := NewStore(storage, nil)
			require.NoError(t, restored.Rehydrate())

			entries := restored.SelectAll()
			require.Equal(t, []string{"a", "b"}, requestIDs(entries))
			require.Equal(t, EntryPending, entries[0].Status)
			require.Equal(t, requests.KindSendTransaction, entries[0].Request.Kind())
			require.Equal(t, requests.Origin{TabID: 7, URL: "https://app.example.org"}, entries[0].Request.Origin)
			require.EqualValues(t, 10, entries[0].Request.ChainIDOrZero())
			require.Equal(t, common.HexToAddress("0xA"), entries[0].Request.Payload.(requests.SendTransactionPayload).TxArgs.From)
			require.Equal(t, "https://batch.example.org", restored.MostRecentBatchedOrigin())

			// new entries sort after the restored ones within the same tick
			restored.now = func() time.Time { return entries[1].CreatedAt }
			require.NoError(t, restored.Add(sendRequest("c", 1)))
			require.Equal(t, []string{"a", "b", "c"}, requestIDs(restored.SelectAll()))
		})
	}
}
