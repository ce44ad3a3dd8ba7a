package signal

const (
	EventConnectorRequestQueueUpdated = "connector.requestQueueUpdated"
)

// ConnectorRequestQueueSignal is triggered every time the request queue changes.
type ConnectorRequestQueueSignal struct {
	RequestID string `json:"requestId"`
	Kind      string `json:"kind"`
	DAppURL   string `json:"dAppUrl"`
	TabID     int    `json:"tabId"`
	Status    string `json:"status"`
	Pending   int    `json:"pending"`
}

func SendConnectorRequestQueueUpdated(sig ConnectorRequestQueueSignal) {
	send(EventConnectorRequestQueueUpdated, sig)
}
