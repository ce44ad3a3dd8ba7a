package queue

import (
	"sort"
	"time"

	"github.com/status-im/connector-txqueue/services/connector/requests"
)

type EntryStatus string

const (
	EntryPending    EntryStatus = "Pending"
	EntryConfirming EntryStatus = "Confirming"

	// entryRemoved is only reported in queue signals.
	entryRemoved EntryStatus = "Removed"
)

// Entry is a queued request waiting for the user.
type Entry struct {
	Request   requests.ExternalRequest `json:"request"`
	Status    EntryStatus              `json:"status"`
	CreatedAt time.Time                `json:"createdAt"`
	// Seq orders entries added within the same clock tick.
	Seq uint64 `json:"seq"`
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].Seq < entries[j].Seq
	})
}
