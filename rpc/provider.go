package rpc

import (
	"sort"

	"github.com/status-im/connector-txqueue/params"
	"github.com/status-im/connector-txqueue/transactions"
)

const (
	ProviderMain         = "main"
	ProviderFallback     = "fallback"
	ProviderPrivateRelay = "private-relay"
)

type Provider struct {
	Key      string
	URL      string
	Auth     string
	Priority int
}

func (p Provider) authenticationNeeded() bool {
	return len(p.Auth) > 0
}

func createProvider(key, url, credentials string, priority int, providers *[]Provider) {
	if url == "" {
		return
	}
	*providers = append(*providers, Provider{
		Key:      key,
		URL:      url,
		Auth:     credentials,
		Priority: priority,
	})
}

// prepareProviders lists the endpoints serving a channel of a network, most
// preferred first. A private channel without a relay uses the public endpoints.
func prepareProviders(network params.Network, channel transactions.SubmissionChannel) []Provider {
	var providers []Provider

	if channel == transactions.ChannelPrivateRelay {
		createProvider(ProviderPrivateRelay, network.PrivateRelayURL, network.Auth, 0, &providers)
		if len(providers) > 0 {
			return providers
		}
	}

	createProvider(ProviderMain, network.RPCURL, network.Auth, 0, &providers)
	createProvider(ProviderFallback, network.FallbackURL, network.Auth, 1, &providers)

	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].Priority < providers[j].Priority
	})

	return providers
}
