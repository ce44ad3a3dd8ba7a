// Package signal implements event-based signalling between the coordinator and
// the UI collaborator. Every signal is a JSON encoded Envelope delivered to the
// handler installed with SetDefaultNodeNotificationHandler.
package signal
