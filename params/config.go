package params

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	validator "gopkg.in/go-playground/validator.v9"

	"github.com/status-im/connector-txqueue/circuitbreaker"
	"github.com/status-im/connector-txqueue/logutils"
)

// ----------
// Network
// ----------

// Network describes the RPC endpoints of a single chain.
type Network struct {
	ChainID   uint64 `json:"chainId" validate:"required"`
	ChainName string `json:"chainName"`
	// RPCURL is the main public endpoint.
	RPCURL string `json:"rpcUrl" validate:"required,url"`
	// FallbackURL is tried when the main endpoint circuit is open.
	FallbackURL string `json:"fallbackUrl" validate:"omitempty,url"`
	// PrivateRelayURL receives transactions submitted through the private
	// channel. Public endpoints are used for it when empty.
	PrivateRelayURL string `json:"privateRelayUrl" validate:"omitempty,url"`
	// Auth is sent as basic auth credentials ("user:password") to every endpoint.
	Auth string `json:"auth"`
}

// ----------
// WatcherConfig
// ----------

// WatcherConfig configures the transaction watcher.
type WatcherConfig struct {
	// PollIntervalMs is the delay between two receipt polls of one transaction.
	PollIntervalMs int `validate:"min=0"`
	// RPCRateLimit bounds the number of polling calls per second across all transactions.
	RPCRateLimit float64 `validate:"min=0"`
	RPCBurst     int     `validate:"min=0"`
}

func (c WatcherConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ----------
// OrdersConfig
// ----------

// OrdersConfig configures the off-chain order API client and watcher.
type OrdersConfig struct {
	Enabled     bool
	APIURL      string `validate:"required,url"`
	FallbackURL string `validate:"omitempty,url"`
	// PollIntervalMs is the delay between two status checks of an order.
	PollIntervalMs int `validate:"min=0"`
	// WaitTimeoutSeconds bounds how long an order is watched. Zero waits
	// until the order settles or the service stops.
	WaitTimeoutSeconds int `validate:"min=0"`
	// SeenOrderTTLSeconds is how long a registered order hash is remembered
	// to avoid registering it twice.
	SeenOrderTTLSeconds int `validate:"min=0"`
}

// Validate validates the OrdersConfig struct and returns an error if inconsistent values are found
func (c *OrdersConfig) Validate(validate *validator.Validate) error {
	if !c.Enabled {
		return nil
	}
	return validate.Struct(c)
}

// ----------
// MetricsConfig
// ----------

type MetricsConfig struct {
	Enabled bool
	Port    int `validate:"min=1,max=65535"`
}

// Validate validates the MetricsConfig struct and returns an error if inconsistent values are found
func (c *MetricsConfig) Validate(validate *validator.Validate) error {
	if !c.Enabled {
		return nil
	}
	return validate.Struct(c)
}

// ----------
// Config
// ----------

// Config is the configuration of the connector daemon.
type Config struct {
	// DataDir holds the database. Queue and transactions are kept in
	// memory only when empty.
	DataDir string
	// DBPassword derives the sqlcipher key.
	DBPassword string
	// KeyStoreDir holds the accounts able to sign.
	KeyStoreDir string

	LogSettings logutils.LogSettings `validate:"structonly"`

	Networks []Network `validate:"required,min=1,dive"`

	// RPCCallTimeoutSeconds bounds a single submission round trip.
	RPCCallTimeoutSeconds int `validate:"min=0"`

	CircuitBreaker circuitbreaker.Config

	WatcherConfig WatcherConfig
	OrdersConfig  OrdersConfig  `validate:"structonly"`
	MetricsConfig MetricsConfig `validate:"structonly"`
}

// NewConfig returns a config with defaults for everything but the networks.
func NewConfig() *Config {
	return &Config{
		LogSettings: logutils.LogSettings{
			Enabled:    true,
			Level:      "INFO",
			MaxSize:    100,
			MaxBackups: 3,
		},
		RPCCallTimeoutSeconds: 30,
		CircuitBreaker: circuitbreaker.Config{
			Timeout:               20000,
			MaxConcurrentRequests: 100,
			SleepWindow:           300000,
			ErrorPercentThreshold: 25,
		},
		WatcherConfig: WatcherConfig{
			PollIntervalMs: 4000,
			RPCRateLimit:   10,
			RPCBurst:       5,
		},
		OrdersConfig: OrdersConfig{
			PollIntervalMs:      5000,
			WaitTimeoutSeconds:  3600,
			SeenOrderTTLSeconds: 3600,
		},
		MetricsConfig: MetricsConfig{
			Port: 9305,
		},
	}
}

// NewConfigFromJSON parses incoming JSON over the defaults and validates the result.
func NewConfigFromJSON(configJSON string) (*Config, error) {
	config := NewConfig()
	if err := loadConfigFromJSON(configJSON, config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigFromFile reads a JSON config file over the defaults and validates the result.
func LoadConfigFromFile(path string) (*Config, error) {
	jsonConfig, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfigFromJSON(string(jsonConfig))
}

func loadConfigFromJSON(configJSON string, config *Config) error {
	decoder := json.NewDecoder(strings.NewReader(configJSON))
	decoder.DisallowUnknownFields()
	// override default configuration with values by JSON input
	return decoder.Decode(config)
}

// NewValidator returns a validator with the custom rules used by the config.
func NewValidator() *validator.Validate {
	return validator.New()
}

// Validate checks if Config fields have valid values.
//
// It returns nil if there are no errors, otherwise one or more errors
// can be returned. Multiple errors are joined with a new line.
func (c *Config) Validate() error {
	validate := NewValidator()

	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := validate.Struct(c.LogSettings); err != nil {
		return err
	}

	seen := make(map[uint64]bool, len(c.Networks))
	for _, n := range c.Networks {
		if seen[n.ChainID] {
			return fmt.Errorf("network %d is configured twice", n.ChainID)
		}
		seen[n.ChainID] = true
		if n.Auth != "" && !strings.Contains(n.Auth, ":") {
			return fmt.Errorf("network %d auth must be in user:password form", n.ChainID)
		}
		if _, err := url.ParseRequestURI(n.RPCURL); err != nil {
			return fmt.Errorf("network %d rpcUrl '%s' is invalid: %v", n.ChainID, n.RPCURL, err)
		}
	}

	if c.DataDir != "" && c.DBPassword == "" {
		return fmt.Errorf("DBPassword must be specified when DataDir is set")
	}

	return c.validateChildStructs(validate)
}

func (c *Config) validateChildStructs(validate *validator.Validate) error {
	if err := c.OrdersConfig.Validate(validate); err != nil {
		return err
	}
	if err := c.MetricsConfig.Validate(validate); err != nil {
		return err
	}
	return nil
}

// Network returns the configuration of a chain.
func (c *Config) Network(chainID uint64) (Network, bool) {
	for _, n := range c.Networks {
		if n.ChainID == chainID {
			return n, true
		}
	}
	return Network{}, false
}

// Save writes the config as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
