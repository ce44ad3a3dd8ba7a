package requests

import (
	"github.com/status-im/connector-txqueue/errors"
)

// Abbreviation `CR` for the error code stands for Connector Requests
var (
	ErrRequestMissingDAppData = &errors.ErrorResponse{Code: errors.ErrorCode("CR-001"), Details: "request missing dApp data", Kind: errors.KindValidation}
	ErrEmptyRPCParams         = &errors.ErrorResponse{Code: errors.ErrorCode("CR-002"), Details: "empty rpc params", Kind: errors.KindValidation}
	ErrInvalidRPCParams       = &errors.ErrorResponse{Code: errors.ErrorCode("CR-003"), Details: "invalid rpc params", Kind: errors.KindValidation}
	ErrUnsupportedMethod      = &errors.ErrorResponse{Code: errors.ErrorCode("CR-004"), Details: "method not supported by the connector", Kind: errors.KindValidation}
	ErrUnsupportedRequestKind = &errors.ErrorResponse{Code: errors.ErrorCode("CR-005"), Details: "unsupported request kind", Kind: errors.KindValidation}
	ErrMissingRequestID       = &errors.ErrorResponse{Code: errors.ErrorCode("CR-006"), Details: "request id is required", Kind: errors.KindValidation}
	ErrNoChainIDInParams      = &errors.ErrorResponse{Code: errors.ErrorCode("CR-007"), Details: "no chain id in params", Kind: errors.KindValidation}
	ErrInvalidRequestJSON     = &errors.ErrorResponse{Code: errors.ErrorCode("CR-008"), Details: "error unmarshalling request", Kind: errors.KindValidation}
)
