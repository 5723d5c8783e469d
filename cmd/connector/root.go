package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warrant1/chain-xrpl-ilp/internal/config"
	"github.com/warrant1/chain-xrpl-ilp/internal/di"
)

var cfgFile string

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("CHAIN")
	viper.AutomaticEnv()

	// Bind specific environment variables to config keys
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("log.format", "LOG_FORMAT")
	viper.BindEnv("server.listen")
	viper.BindEnv("server.grpcListen")
	viper.BindEnv("ledger.xrpServer")
	viper.BindEnv("ledger.secret")
	viper.BindEnv("ledger.hexSeed")
	viper.BindEnv("store.path")
	viper.BindEnv("dataHandler.url")

	// Set defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "logfmt")
	viper.SetDefault("server.listen", ":8076")
	viper.SetDefault("server.grpcListen", ":8099")
	viper.SetDefault("store.path", "memory")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

var rootCmd = &cobra.Command{
	Use:   "connector",
	Short: "ILP payment-channel connector",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		fmt.Println(cfg.RedactedConfigLog())

		srv := di.InitializeServer(cfg.Log, cfg.Ledger, cfg.Paychan, cfg.Store, cfg.DataHandler)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := srv.RunWithGracefulShutdown(ctx, cfg.Server.GRPCListen, cfg.Server.Listen); err != nil {
			return err
		}

		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to run connector: %v\n", err)
		os.Exit(1)
	}
}
