package rpc

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/status-im/connector-txqueue/circuitbreaker"
	"github.com/status-im/connector-txqueue/logutils"
	"github.com/status-im/connector-txqueue/params"
	"github.com/status-im/connector-txqueue/rpc/chain"
	"github.com/status-im/connector-txqueue/services/wallet/walletevent"
	"github.com/status-im/connector-txqueue/transactions"
)

const (
	// DefaultDialTimeout bounds establishing a client to a single endpoint.
	DefaultDialTimeout = 10 * time.Second
)

// Dialer connects to one endpoint.
type Dialer func(ctx context.Context, provider Provider) (chain.EthClient, error)

// DialEthClient connects with go-ethereum's client, sending basic auth
// credentials when the provider has any.
func DialEthClient(ctx context.Context, provider Provider) (chain.EthClient, error) {
	var opts []gethrpc.ClientOption
	if provider.authenticationNeeded() {
		token := base64.StdEncoding.EncodeToString([]byte(provider.Auth))
		opts = append(opts, gethrpc.WithHeader("Authorization", "Basic "+token))
	}
	rpcClient, err := gethrpc.DialOptions(ctx, provider.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", provider.Key, err)
	}
	return ethclient.NewClient(rpcClient), nil
}

// Client hands out one ClientWithFallback per chain and submission channel,
// connecting lazily on first use.
type Client struct {
	mu       sync.Mutex
	networks map[uint64]params.Network
	clients  map[uint64]map[transactions.SubmissionChannel]*chain.ClientWithFallback

	cbConfig circuitbreaker.Config
	dial     Dialer
	feed     *event.Feed
	logger   *zap.Logger
}

// NewClient creates a client for networks. dial defaults to DialEthClient;
// feed, when set, receives chain connectivity changes.
func NewClient(networks []params.Network, cbConfig circuitbreaker.Config, dial Dialer, feed *event.Feed) *Client {
	if dial == nil {
		dial = DialEthClient
	}
	byChain := make(map[uint64]params.Network, len(networks))
	for _, n := range networks {
		byChain[n.ChainID] = n
	}
	return &Client{
		networks: byChain,
		clients:  make(map[uint64]map[transactions.SubmissionChannel]*chain.ClientWithFallback),
		cbConfig: cbConfig,
		dial:     dial,
		feed:     feed,
		logger:   logutils.ZapLogger().Named("rpc.Client"),
	}
}

// Provider implements transactions.ProviderResolver.
func (c *Client) Provider(chainID uint64, channel transactions.SubmissionChannel) (transactions.Provider, error) {
	return c.EthClient(chainID, channel)
}

func (c *Client) EthClient(chainID uint64, channel transactions.SubmissionChannel) (*chain.ClientWithFallback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[chainID][channel]; ok {
		return client, nil
	}

	network, ok := c.networks[chainID]
	if !ok {
		return nil, fmt.Errorf("network %d is not configured", chainID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultDialTimeout)
	defer cancel()

	var endpoints []chain.Endpoint
	for _, provider := range prepareProviders(network, channel) {
		ethClient, err := c.dial(ctx, provider)
		if err != nil {
			c.logger.Warn("dialing endpoint failed",
				zap.Uint64("chainID", chainID),
				zap.String("provider", provider.Key),
				zap.Error(err),
			)
			continue
		}
		endpoints = append(endpoints, chain.Endpoint{Name: string(channel) + "_" + provider.Key, Client: ethClient})
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no reachable endpoint for network %d", chainID)
	}

	client := chain.NewClient(chainID, endpoints, c.cbConfig)
	client.WalletNotifier = c.notifyStatus
	if _, ok := c.clients[chainID]; !ok {
		c.clients[chainID] = make(map[transactions.SubmissionChannel]*chain.ClientWithFallback)
	}
	c.clients[chainID][channel] = client
	return client, nil
}

func (c *Client) notifyStatus(chainID uint64, message string) {
	c.logger.Info("chain connection status changed", zap.Uint64("chainID", chainID), zap.String("status", message))
	if c.feed != nil {
		c.feed.Send(walletevent.Event{
			Type:    walletevent.EventBlockchainStatusChanged,
			ChainID: chainID,
			Message: message,
			At:      time.Now().Unix(),
		})
	}
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, byChannel := range c.clients {
		for _, client := range byChannel {
			client.Close()
		}
	}
	c.clients = make(map[uint64]map[transactions.SubmissionChannel]*chain.ClientWithFallback)
}
