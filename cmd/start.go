package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flashscan/cmd/bot"
	"github.com/michaelpento.lv/flashscan/config"
	"github.com/michaelpento.lv/flashscan/utils"
)

var simulateOnly bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start scanning and submitting bundles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer utils.CleanupLogger()

		if simulateOnly {
			cfg.Relay.SimulateOnly = true
		}

		secure, err := config.LoadSecureConfig()
		if err != nil {
			return fmt.Errorf("failed to load secrets: %w", err)
		}

		ctx := cmd.Context()
		b, err := bot.New(ctx, cfg, secure, log)
		if err != nil {
			log.Error("Failed to create bot", zap.Error(err))
			return err
		}
		defer b.Close()

		return b.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	startCmd.Flags().BoolVar(&simulateOnly, "simulate", false, "send eth_callBundle instead of eth_sendBundle")
}
