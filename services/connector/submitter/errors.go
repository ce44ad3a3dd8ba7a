package submitter

import (
	"github.com/status-im/connector-txqueue/errors"
)

// Abbreviation `SB` for the error code stands for Submitter
var (
	ErrMissingChainID          = &errors.ErrorResponse{Code: errors.ErrorCode("SB-001"), Details: "request does not name a chain", Kind: errors.KindValidation}
	ErrNoAccountSelected       = &errors.ErrorResponse{Code: errors.ErrorCode("SB-002"), Details: "no account selected for the dApp", Kind: errors.KindValidation}
	ErrInvalidTypedData        = &errors.ErrorResponse{Code: errors.ErrorCode("SB-003"), Details: "typed data cannot be hashed", Kind: errors.KindValidation}
	ErrOrdersDisabled          = &errors.ErrorResponse{Code: errors.ErrorCode("SB-004"), Details: "off-chain orders are not enabled", Kind: errors.KindValidation}
	ErrBatchedCallsUnsupported = &errors.ErrorResponse{Code: errors.ErrorCode("SB-005"), Details: "batched calls are not supported", Kind: errors.KindValidation}
	ErrBatchPartiallySent      = &errors.ErrorResponse{Code: errors.ErrorCode("SB-006"), Details: "batch was only partially sent", Kind: errors.KindSubmission}
)
