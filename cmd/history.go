package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/flashscan/store"
	"github.com/michaelpento.lv/flashscan/types"
	"github.com/michaelpento.lv/flashscan/utils"
)

var (
	historyLimit int
	historyState string
	historyPrune time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List submitted opportunities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		defer utils.CleanupLogger()

		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is not configured")
		}
		db, err := store.NewSQLiteStore(cfg.Storage.DSN)
		if err != nil {
			return err
		}
		defer db.Close()

		if historyPrune > 0 {
			n, err := db.Prune(cmd.Context(), time.Now().Add(-historyPrune))
			if err != nil {
				return err
			}
			fmt.Printf("pruned %d records\n", n)
		}

		recs, err := db.ListRecords(cmd.Context(), store.ListFilter{
			State: types.RecordState(historyState),
			Limit: historyLimit,
		})
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Updated", "State", "Token In", "Profit", "Bundle", "Tx", "Error")
		for _, rec := range recs {
			table.Append(
				rec.UpdatedAt.Local().Format(time.DateTime),
				string(rec.State),
				rec.TokenIn,
				rec.Profit,
				rec.BundleHash,
				rec.TxHash,
				rec.Error,
			)
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of records")
	historyCmd.Flags().StringVar(&historyState, "state", "", "filter by state (executed, failed)")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "delete records older than this before listing")
}
