//go:build wireinject
// +build wireinject

// Package di provides dependency injection providers for the application using Google Wire.
// It defines the dependency graph and provides functions for creating and wiring
// application components together.
//
// This package uses Google Wire for compile-time dependency injection, ensuring
// that all dependencies are properly resolved at build time rather than runtime.
package di

import (
	"context"
	"log/slog"

	"github.com/google/wire"

	"github.com/warrant1/chain-xrpl-ilp/internal/api"
	"github.com/warrant1/chain-xrpl-ilp/internal/config"
	"github.com/warrant1/chain-xrpl-ilp/internal/corekind"
	"github.com/warrant1/chain-xrpl-ilp/internal/datahandler"
	"github.com/warrant1/chain-xrpl-ilp/internal/ilppacket"
	"github.com/warrant1/chain-xrpl-ilp/internal/ledger"
	"github.com/warrant1/chain-xrpl-ilp/internal/logger"
	"github.com/warrant1/chain-xrpl-ilp/internal/paychan"
	"github.com/warrant1/chain-xrpl-ilp/internal/peer"
	"github.com/warrant1/chain-xrpl-ilp/internal/server"
	"github.com/warrant1/chain-xrpl-ilp/internal/store"
	"github.com/warrant1/chain-xrpl-ilp/internal/txsubmitter"
)

// ProvideLogger returns a new slog.Logger instance using the logger package and the provided LogConfig.
// This provider creates a configured logger that can be used throughout the application.
//
// Parameters:
// - cfg: Logging configuration including level and format settings
//
// Returns a configured slog.Logger instance.
func ProvideLogger(cfg config.LogConfig) *slog.Logger {
	return logger.NewLogger(cfg)
}

// ProvideStoreOrPanic returns the Store backend selected by cfg: an in-memory
// map, or a JSON file store when cfg.Path names a filesystem path.
// It panics if the file store cannot be opened, which is appropriate at
// application startup where a usable account registry is essential.
func ProvideStoreOrPanic(cfg config.StoreConfig) store.Store {
	if cfg.Path == "" || cfg.Path == "memory" {
		return store.NewMemoryStore()
	}
	fs, err := store.NewFileStore(cfg.Path)
	if err != nil {
		slog.Error("failed to open file store", "error", err)
		panic(err)
	}
	return fs
}

// ProvideStoreWrapper wraps the selected Store with the write-through cache
// the rest of the connector consumes.
func ProvideStoreWrapper(st store.Store, l *slog.Logger) *store.Wrapper {
	return store.NewWrapper(st, l)
}

// ProvideLedgerClientOrPanic returns a new XRPLClient using the provided
// LedgerConfig, deriving the connector's own operating wallet.
// It panics if the client cannot be built, which is appropriate for
// application startup where ledger connectivity is essential.
func ProvideLedgerClientOrPanic(cfg config.LedgerConfig) ledger.Client {
	c, err := ledger.NewXRPLClient(cfg)
	if err != nil {
		slog.Error("failed to create ledger client", "error", err)
		panic(err)
	}
	return c
}

// ProvideSubmitter wraps the ledger client in the serializing, retrying
// transaction submitter every write to the ledger goes through.
func ProvideSubmitter(client ledger.Client, l *slog.Logger) *txsubmitter.Submitter {
	return txsubmitter.New(client, l, txsubmitter.DefaultConfig())
}

// ProvideSettingsOrPanic resolves the orchestrator's policy from config,
// using the ledger client's own address as the server side of every
// channel (the operative address when LedgerConfig.HexSeed is used instead
// of a literal secret is only known after the wallet has been derived).
func ProvideSettingsOrPanic(ledgerCfg config.LedgerConfig, paychanCfg config.PaychanConfig, client ledger.Client) paychan.Settings {
	settings, err := paychan.NewSettings(ledgerCfg, paychanCfg, client.Address())
	if err != nil {
		slog.Error("failed to resolve paychan settings", "error", err)
		panic(err)
	}
	return settings
}

// ProvideDataHandler returns the DataHandler PREPARE packets are forwarded
// to. With no URL configured, every PREPARE is rejected as unreachable.
func ProvideDataHandler(cfg config.DataHandlerConfig, l *slog.Logger) paychan.DataHandler {
	if cfg.URL == "" {
		l.Warn("no dataHandler.url configured, every PREPARE will be rejected")
		return paychan.DataHandlerFunc(rejectAllData)
	}
	return datahandler.NewHTTP(cfg.URL, cfg.Timeout, l)
}

func rejectAllData(_ context.Context, _ string, _ ilppacket.Prepare) (ilppacket.Fulfill, error) {
	return ilppacket.Fulfill{}, corekind.ErrUnreachable
}

// ProvideOrchestrator returns the claim & admission engine, wiring together
// the resolved settings, account store, ledger client, transaction
// submitter, and data handler.
func ProvideOrchestrator(settings paychan.Settings, w *store.Wrapper, client ledger.Client, submitter *txsubmitter.Submitter, l *slog.Logger, data paychan.DataHandler) *paychan.Orchestrator {
	return paychan.New(settings, w, client, submitter, l, data)
}

// ProvidePeerListener returns the peer transport listener, dispatching every
// inbound message to the orchestrator.
func ProvidePeerListener(l *slog.Logger, orch *paychan.Orchestrator) *peer.Listener {
	return peer.NewListener(l, orch.HandleMessage)
}

// ProvideConnector returns the operational GetAccount API over the
// orchestrator's account registry.
func ProvideConnector(l *slog.Logger, orch *paychan.Orchestrator) *api.Connector {
	return api.NewConnector(l, orch)
}

// ProvideAppServer returns the application Server, registering connector and
// the standard health service on an internal gRPC server and pairing it with
// peerListener so both transports shut down together.
func ProvideAppServer(l *slog.Logger, connector *api.Connector, peerListener *peer.Listener) *server.Server {
	return server.NewServerWithConnector(l, connector, peerListener)
}

// InitializeServer creates and initializes a new application server using dependency injection
// and the provided configuration.
//
// This is the main entry point for the Wire dependency injection system.
// It defines the complete dependency graph and ensures all components are properly wired.
//
// The function uses Wire's Build function to create the dependency graph:
// - Logger, Store, Ledger client → Settings, Submitter → Orchestrator → Peer listener, Connector → gRPC server → Application server
//
// Parameters:
// - logCfg: Logging configuration
// - ledgerCfg: The connector's own XRP account and RPC endpoint
// - paychanCfg: Admission-control and settlement policy
// - storeCfg: Account-registry persistence backend selection
// - dataCfg: Downstream PREPARE forwarding configuration
//
// Returns a fully configured and wired application server.
func InitializeServer(logCfg config.LogConfig, ledgerCfg config.LedgerConfig, paychanCfg config.PaychanConfig, storeCfg config.StoreConfig, dataCfg config.DataHandlerConfig) *server.Server {
	wire.Build(
		ProvideLogger,
		ProvideStoreOrPanic,
		ProvideStoreWrapper,
		ProvideLedgerClientOrPanic,
		ProvideSubmitter,
		ProvideSettingsOrPanic,
		ProvideDataHandler,
		ProvideOrchestrator,
		ProvidePeerListener,
		ProvideConnector,
		ProvideAppServer,
	)
	return &server.Server{}
}
