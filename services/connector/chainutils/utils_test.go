package chainutils

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/status-im/connector-txqueue/params"
)

func TestSupportedChains(t *testing.T) {
	_, err := GetDefaultChainID(nil)
	require.ErrorIs(t, err, ErrNoActiveNetworks)

	networks := []params.Network{{ChainID: 10}, {ChainID: 1}}
	chainID, err := GetDefaultChainID(networks)
	require.NoError(t, err)
	require.EqualValues(t, 10, chainID)

	require.NoError(t, CheckSupported(networks, 1))
	require.ErrorIs(t, CheckSupported(networks, 137), ErrUnsupportedNetwork)
}
