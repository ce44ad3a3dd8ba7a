package transactions

import (
	"github.com/status-im/connector-txqueue/errors"
	"github.com/status-im/connector-txqueue/signal"
)

// Intent tells the user which action failed.
type Intent string

const (
	IntentConfirm Intent = "confirm"
	IntentReplace Intent = "replace"
	IntentCancel  Intent = "cancel"
)

var intentTitles = map[Intent]string{
	IntentConfirm: "Request could not be completed",
	IntentReplace: "Unable to speed up transaction",
	IntentCancel:  "Unable to cancel transaction",
}

// Notifier surfaces user-impacting errors.
type Notifier interface {
	NotifyError(intent Intent, id string, err error)
}

// SignalNotifier delivers notifications to the UI through signals.
type SignalNotifier struct{}

func (SignalNotifier) NotifyError(intent Intent, id string, err error) {
	sig := signal.UserNotificationSignal{
		Intent: string(intent),
		Title:  intentTitles[intent],
		ID:     id,
		Kind:   string(errors.KindOf(err)),
	}
	if resp, ok := errors.CreateErrorResponseFromError(err).(*errors.ErrorResponse); ok {
		sig.Code = string(resp.Code)
		sig.Error = resp.Details
	}
	signal.SendWalletEvent(signal.UserNotification, sig)
}
