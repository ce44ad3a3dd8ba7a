package connector

import (
	"github.com/status-im/connector-txqueue/errors"
)

// Abbreviation `CN` for the error code stands for Connector
var (
	ErrPermissionsUnavailable = &errors.ErrorResponse{Code: errors.ErrorCode("CN-001"), Details: "dApp permissions are not persisted", Kind: errors.KindValidation}
)
