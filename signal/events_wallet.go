package signal

type SignalType string

const (
	TransactionStatusChanged = SignalType("wallet.transaction.status-changed")
	UserNotification         = SignalType("wallet.user-notification")
)

// SendWalletEvent sends event from the wallet side of the coordinator.
func SendWalletEvent(signalType SignalType, event interface{}) {
	send(string(signalType), event)
}

// TransactionStatusChangedSignal carries a status transition of a tracked transaction.
type TransactionStatusChangedSignal struct {
	ID      string `json:"id"`
	ChainID uint64 `json:"chainId"`
	From    string `json:"from"`
	Hash    string `json:"hash,omitempty"`
	Status  string `json:"status"`
}

// UserNotificationSignal is an error the user has to be told about.
type UserNotificationSignal struct {
	Intent string `json:"intent"`
	Title  string `json:"title"`
	ID     string `json:"id"`
	Code   string `json:"code"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}
