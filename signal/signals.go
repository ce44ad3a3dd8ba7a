package signal

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/status-im/connector-txqueue/logutils"
)

// Envelope is a general signal sent upward from the coordinator to the UI.
type Envelope struct {
	Type  string      `json:"type"`
	Event interface{} `json:"event"`
}

// NodeNotificationHandler defines a handler able to process incoming node events.
// Events are encoded as JSON strings.
type NodeNotificationHandler func(jsonEvent string)

var (
	handlerMu sync.RWMutex
	handler   NodeNotificationHandler = func(string) {}
)

// SetDefaultNodeNotificationHandler sets notification handler to invoke on send
func SetDefaultNodeNotificationHandler(fn NodeNotificationHandler) {
	handlerMu.Lock()
	defer handlerMu.Unlock()
	handler = fn
}

// ResetDefaultNodeNotificationHandler sets notification handler to default one
func ResetDefaultNodeNotificationHandler() {
	SetDefaultNodeNotificationHandler(func(string) {})
}

func send(typ string, event interface{}) {
	data, err := json.Marshal(&Envelope{Type: typ, Event: event})
	if err != nil {
		logutils.ZapLogger().Error("marshalling signal envelope", zap.String("type", typ), zap.Error(err))
		return
	}

	handlerMu.RLock()
	fn := handler
	handlerMu.RUnlock()
	fn(string(data))
}
