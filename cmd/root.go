package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashscan/config"
	"github.com/michaelpento.lv/flashscan/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "flashscan",
	Short: "Cross-router arbitrage scanner with private bundle submission",
	Long: `flashscan quotes a token set across on-chain swap routers, filters the
results by per-pair profit thresholds and submits profitable trades to a
Flashbots relay as private bundles.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flashscan.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig reads the config file and initializes the global logger from it
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log := utils.InitLogger(debug || cfg.Log.Debug, cfg.Log.OutputPaths...)
	cfg.Logger = log
	return cfg, log, nil
}
