// Hand-written to the provider order of wire.go's wire.Build; running wire regenerates it.

//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package di

import (
	"context"
	"log/slog"

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

// InitializeServer creates and initializes a new application server using dependency injection
// and the provided configuration.
func InitializeServer(logCfg config.LogConfig, ledgerCfg config.LedgerConfig, paychanCfg config.PaychanConfig, storeCfg config.StoreConfig, dataCfg config.DataHandlerConfig) *server.Server {
	l := logger.NewLogger(logCfg)

	st := provideStoreOrPanic(storeCfg)
	wrapper := store.NewWrapper(st, l)

	ledgerClient := provideLedgerClientOrPanic(ledgerCfg)
	submitter := txsubmitter.New(ledgerClient, l, txsubmitter.DefaultConfig())

	settings := provideSettingsOrPanic(ledgerCfg, paychanCfg, ledgerClient)
	dataHandler := provideDataHandler(dataCfg, l)

	orch := paychan.New(settings, wrapper, ledgerClient, submitter, l, dataHandler)
	peerListener := peer.NewListener(l, orch.HandleMessage)
	connector := api.NewConnector(l, orch)

	return server.NewServerWithConnector(l, connector, peerListener)
}

func provideStoreOrPanic(cfg config.StoreConfig) store.Store {
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

func provideLedgerClientOrPanic(cfg config.LedgerConfig) ledger.Client {
	c, err := ledger.NewXRPLClient(cfg)
	if err != nil {
		slog.Error("failed to create ledger client", "error", err)
		panic(err)
	}
	return c
}

func provideSettingsOrPanic(ledgerCfg config.LedgerConfig, paychanCfg config.PaychanConfig, client ledger.Client) paychan.Settings {
	settings, err := paychan.NewSettings(ledgerCfg, paychanCfg, client.Address())
	if err != nil {
		slog.Error("failed to resolve paychan settings", "error", err)
		panic(err)
	}
	return settings
}

func provideDataHandler(cfg config.DataHandlerConfig, l *slog.Logger) paychan.DataHandler {
	if cfg.URL == "" {
		l.Warn("no dataHandler.url configured, every PREPARE will be rejected")
		return paychan.DataHandlerFunc(rejectAllData)
	}
	return datahandler.NewHTTP(cfg.URL, cfg.Timeout, l)
}

func rejectAllData(_ context.Context, _ string, _ ilppacket.Prepare) (ilppacket.Fulfill, error) {
	return ilppacket.Fulfill{}, corekind.ErrUnreachable
}
