package orders

import (
	"github.com/status-im/connector-txqueue/errors"
)

// Abbreviation `OR` for the error code stands for Orders
var (
	ErrOrderAPIUnavailable  = &errors.ErrorResponse{Code: errors.ErrorCode("OR-001"), Details: "order api unavailable", Kind: errors.KindTransientFetch}
	ErrInvalidOrderResponse = &errors.ErrorResponse{Code: errors.ErrorCode("OR-002"), Details: "invalid order api response", Kind: errors.KindTransientFetch}
	ErrOrderNotFound        = &errors.ErrorResponse{Code: errors.ErrorCode("OR-003"), Details: "order not found", Kind: errors.KindValidation}
	ErrOrderRejected        = &errors.ErrorResponse{Code: errors.ErrorCode("OR-004"), Details: "order rejected", Kind: errors.KindSubmission}
	ErrOrderNotSettled      = &errors.ErrorResponse{Code: errors.ErrorCode("OR-005"), Details: "order not settled yet", Kind: errors.KindTransientFetch}
)
