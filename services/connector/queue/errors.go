package queue

import (
	"github.com/status-im/connector-txqueue/errors"
)

// Abbreviation `CQ` for the error code stands for Connector Queue
var (
	ErrRequestNotFound          = &errors.ErrorResponse{Code: errors.ErrorCode("CQ-001"), Details: "request not found in queue", Kind: errors.KindValidation}
	ErrRequestAlreadyConfirming = &errors.ErrorResponse{Code: errors.ErrorCode("CQ-002"), Details: "request is already being confirmed", Kind: errors.KindValidation}
)
