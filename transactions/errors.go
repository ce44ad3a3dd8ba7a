package transactions

import (
	"github.com/status-im/connector-txqueue/errors"
)

// Abbreviation `TX` for the error code stands for Transactions
var (
	ErrInvalidSendTxArgs        = &errors.ErrorResponse{Code: errors.ErrorCode("TX-001"), Details: "invalid transaction arguments", Kind: errors.KindValidation}
	ErrInvalidReplacementTarget = &errors.ErrorResponse{Code: errors.ErrorCode("TX-002"), Details: "replacement target requires a sender and a nonce", Kind: errors.KindValidation}
	ErrSignerUnavailable        = &errors.ErrorResponse{Code: errors.ErrorCode("TX-003"), Details: "no signer available for account", Kind: errors.KindSigning}
	ErrSigningFailed            = &errors.ErrorResponse{Code: errors.ErrorCode("TX-004"), Details: "signing failed", Kind: errors.KindSigning}
	ErrBroadcastFailed          = &errors.ErrorResponse{Code: errors.ErrorCode("TX-005"), Details: "broadcast rejected", Kind: errors.KindSubmission}
	ErrNoProvider               = &errors.ErrorResponse{Code: errors.ErrorCode("TX-006"), Details: "no provider for chain and channel", Kind: errors.KindSubmission}
	ErrChainStateUnavailable    = &errors.ErrorResponse{Code: errors.ErrorCode("TX-007"), Details: "chain state unavailable", Kind: errors.KindTransientFetch}
	ErrRecordExists             = &errors.ErrorResponse{Code: errors.ErrorCode("TX-008"), Details: "transaction record already tracked", Kind: errors.KindValidation}
	ErrRecordNotFound           = &errors.ErrorResponse{Code: errors.ErrorCode("TX-009"), Details: "transaction record not found", Kind: errors.KindValidation}
	ErrInvalidTransition        = &errors.ErrorResponse{Code: errors.ErrorCode("TX-010"), Details: "invalid status transition", Kind: errors.KindValidation}
	ErrReplacementFailed        = &errors.ErrorResponse{Code: errors.ErrorCode("TX-011"), Details: "replacement transaction failed", Kind: errors.KindSubmission}
	ErrCancellationFailed       = &errors.ErrorResponse{Code: errors.ErrorCode("TX-012"), Details: "cancellation transaction failed", Kind: errors.KindSubmission}
)
