package chainutils

import (
	"slices"

	"github.com/status-im/connector-txqueue/errors"
	"github.com/status-im/connector-txqueue/params"
)

var (
	ErrNoActiveNetworks   = &errors.ErrorResponse{Code: errors.ErrorCode("CC-001"), Details: "no active networks available", Kind: errors.KindValidation}
	ErrUnsupportedNetwork = &errors.ErrorResponse{Code: errors.ErrorCode("CC-002"), Details: "unsupported network", Kind: errors.KindValidation}
)

// GetSupportedChainIDs returns the chain ids of the configured networks in
// configuration order.
func GetSupportedChainIDs(networks []params.Network) ([]uint64, error) {
	if len(networks) < 1 {
		return nil, ErrNoActiveNetworks
	}

	chainIDs := make([]uint64, len(networks))
	for i, network := range networks {
		chainIDs[i] = network.ChainID
	}

	return chainIDs, nil
}

func GetDefaultChainID(networks []params.Network) (uint64, error) {
	chainIDs, err := GetSupportedChainIDs(networks)
	if err != nil {
		return 0, err
	}

	return chainIDs[0], nil
}

// CheckSupported fails with ErrUnsupportedNetwork unless chainID is configured.
func CheckSupported(networks []params.Network, chainID uint64) error {
	chainIDs, err := GetSupportedChainIDs(networks)
	if err != nil {
		return err
	}
	if !slices.Contains(chainIDs, chainID) {
		return ErrUnsupportedNetwork
	}
	return nil
}
