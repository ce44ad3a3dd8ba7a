package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendDeliversEnvelope(t *testing.T) {
	var received []string
	SetDefaultNodeNotificationHandler(func(jsonEvent string) {
		received = append(received, jsonEvent)
	})
	t.Cleanup(ResetDefaultNodeNotificationHandler)

	SendWalletEvent(TransactionStatusChanged, TransactionStatusChangedSignal{
		ID:      "tx-1",
		ChainID: 1,
		Status:  "Confirmed",
	})

	require.Len(t, received, 1)
	var envelope struct {
		Type  string                         `json:"type"`
		Event TransactionStatusChangedSignal `json:"event"`
	}
	require.NoError(t, json.Unmarshal([]byte(received[0]), &envelope))
	require.Equal(t, string(TransactionStatusChanged), envelope.Type)
	require.Equal(t, "tx-1", envelope.Event.ID)
	require.Equal(t, "Confirmed", envelope.Event.Status)
}
