package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/ethereum/go-ethereum/event"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/status-im/connector-txqueue/logutils"
	"github.com/status-im/connector-txqueue/metrics"
	"github.com/status-im/connector-txqueue/params"
	"github.com/status-im/connector-txqueue/rpc"
	"github.com/status-im/connector-txqueue/services/connector"
	"github.com/status-im/connector-txqueue/services/connector/requests"
	"github.com/status-im/connector-txqueue/services/wallet/orders"
	msignal "github.com/status-im/connector-txqueue/signal"
	"github.com/status-im/connector-txqueue/sqlite"
)

const (
	ConfigFlag             = "config"
	HTTPAddrFlag           = "http-addr"
	StdinFlag              = "stdin"
	KeyStorePasswordFlag   = "keystore-password"
	DebugLevelFlag         = "debug"
	PrintSignalsFlag       = "print-signals"
	databaseFileName       = "connector.db"
	shutdownTimeout        = 10 * time.Second
	httpReadHeaderTimeout  = 5 * time.Second
	defaultHTTPListenAddr  = "127.0.0.1:8645"
	keyStorePasswordEnvVar = "CONNECTORD_KEYSTORE_PASSWORD"
)

func main() {
	app := &cli.App{
		Name:  "connectord",
		Usage: "Queue dApp requests and track the transactions they produce",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     ConfigFlag,
				Aliases:  []string{"c"},
				Usage:    "JSON config file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  HTTPAddrFlag,
				Usage: "Listen address of the JSON-RPC endpoint",
				Value: defaultHTTPListenAddr,
			},
			&cli.BoolFlag{
				Name:  StdinFlag,
				Usage: "Queue JSON-RPC requests read line by line from stdin",
			},
			&cli.StringFlag{
				Name:    KeyStorePasswordFlag,
				Usage:   "Passphrase of the keystore accounts",
				EnvVars: []string{keyStorePasswordEnvVar},
			},
			&cli.BoolFlag{
				Name:  DebugLevelFlag,
				Usage: "Log at debug level",
			},
			&cli.BoolFlag{
				Name:  PrintSignalsFlag,
				Usage: "Write signals to stdout as JSON lines",
				Value: true,
			},
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cCtx *cli.Context) (*params.Config, error) {
	config, err := params.LoadConfigFromFile(cCtx.String(ConfigFlag))
	if err != nil {
		return nil, err
	}
	if cCtx.Bool(DebugLevelFlag) {
		config.LogSettings.Level = "DEBUG"
	}
	return config, nil
}

func serve(cCtx *cli.Context) error {
	config, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	if err := logutils.OverrideRootLogWithConfig(config.LogSettings); err != nil {
		return err
	}
	logger := logutils.ZapLogger().Named("connectord")
	defer func() { _ = logger.Sync() }()

	if cCtx.Bool(PrintSignalsFlag) {
		msignal.SetDefaultNodeNotificationHandler(func(jsonEvent string) {
			fmt.Fprintln(os.Stdout, jsonEvent)
		})
	}

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := connector.Dependencies{
		Feed: new(event.Feed),
	}
	if config.DataDir != "" {
		if err := os.MkdirAll(config.DataDir, 0700); err != nil {
			return err
		}
		db, err := sqlite.OpenDB(filepath.Join(config.DataDir, databaseFileName), config.DBPassword)
		if err != nil {
			return err
		}
		defer db.Close()
		deps.DB = db
	}

	rpcClient := rpc.NewClient(config.Networks, config.CircuitBreaker, rpc.DialEthClient, deps.Feed)
	defer rpcClient.Close()
	deps.Providers = rpcClient

	if config.KeyStoreDir != "" {
		signers := newKeyStoreSigners(config.KeyStoreDir, cCtx.String(KeyStorePasswordFlag))
		logger.Info("keystore opened", zap.String("dir", config.KeyStoreDir), zap.Int("accounts", len(signers.Accounts())))
		deps.Signers = signers
	} else {
		logger.Warn("no keystore configured, signing requests will fail")
		deps.Signers = noSigners{}
	}

	if config.OrdersConfig.Enabled {
		deps.OrderAPI = orders.NewClient(
			[]string{config.OrdersConfig.APIURL, config.OrdersConfig.FallbackURL},
			nil,
			config.CircuitBreaker,
		)
	}

	service, err := connector.NewService(config, deps)
	if err != nil {
		return err
	}
	if err := service.Start(ctx); err != nil {
		return err
	}

	rpcServer := gethrpc.NewServer()
	for _, api := range service.APIs() {
		if err := rpcServer.RegisterName(api.Namespace, api.Service); err != nil {
			return multierr.Append(err, service.Stop())
		}
	}
	httpServer := &http.Server{
		Addr:              cCtx.String(HTTPAddrFlag),
		Handler:           rpcServer,
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}
	go func() {
		logger.Info("json-rpc endpoint listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("json-rpc endpoint failed", zap.Error(err))
			stop()
		}
	}()

	var metricsServer *metrics.Server
	if config.MetricsConfig.Enabled {
		metricsServer = metrics.NewMetricsServer(config.MetricsConfig.Port, prom.DefaultGatherer)
		go metricsServer.Listen()
	}

	if cCtx.Bool(StdinFlag) {
		inbox := make(chan requests.ExternalRequest)
		go func() {
			if err := readRequests(ctx, os.Stdin, inbox, logger); err != nil && ctx.Err() == nil {
				logger.Error("reading requests from stdin failed", zap.Error(err))
			}
		}()
		go func() {
			if err := service.Queue().Drain(ctx, inbox); err != nil && ctx.Err() == nil {
				logger.Error("draining requests failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = multierr.Combine(
		httpServer.Shutdown(shutdownCtx),
		service.Stop(),
	)
	if metricsServer != nil {
		err = multierr.Append(err, metricsServer.Stop(shutdownCtx))
	}
	rpcServer.Stop()
	return err
}
