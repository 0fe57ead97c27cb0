package cmd

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/flashscan/cmd/bot"
	"github.com/michaelpento.lv/flashscan/config"
	"github.com/michaelpento.lv/flashscan/strategies/arbitrage"
	"github.com/michaelpento.lv/flashscan/types"
	"github.com/michaelpento.lv/flashscan/utils"
)

var scanAll bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one detection cycle and print the opportunities without submitting",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer utils.CleanupLogger()

		client, err := bot.Dial(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		detector, evaluator, err := bot.NewDetector(cfg, client, nil, log)
		if err != nil {
			return err
		}

		tokens := bot.Tokens(cfg)
		var opps []*types.Opportunity
		if scanAll {
			opps, err = detector.Candidates(cmd.Context(), tokens)
		} else {
			opps, err = detector.DetectOpportunities(cmd.Context(), tokens)
		}
		if err != nil {
			return err
		}

		return renderOpportunities(cfg, detector, evaluator, opps)
	},
}

func renderOpportunities(cfg *config.Config, detector *arbitrage.Detector, evaluator *arbitrage.Evaluator, opps []*types.Opportunity) error {
	names := make(map[common.Address]string)
	for _, r := range detector.Routers() {
		names[r.Address()] = r.Name()
	}

	bundler, err := utils.NewBundler(utils.BundlerConfig{
		ChainID:        big.NewInt(cfg.Network.ChainID),
		Beneficiary:    common.HexToAddress(cfg.Execution.Beneficiary),
		SlippageBps:    cfg.Execution.SlippageBps,
		DeadlineWindow: cfg.Execution.DeadlineWindow,
	})
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Token", "Routers", "Amount In", "Gross Out", "Profit", "Threshold", "Best Router", "Min Out", "ID")
	for _, opp := range opps {
		profit, evalErr := evaluator.Evaluate(opp)
		threshold := "-"
		if th, ok := evaluator.Threshold(opp.Pair()); ok {
			threshold = th.String()
		}
		if evalErr != nil {
			threshold += " (below)"
		}

		best := utils.BestRouter(opp)
		minOut := utils.MinAmountOut(opp.ExpectedAmountsOut[best], cfg.Execution.SlippageBps)

		table.Append(
			opp.TokenIn.Hex(),
			strconv.Itoa(len(opp.CandidateRouters)),
			opp.AmountIn.String(),
			opp.GrossOut().String(),
			profit.String(),
			threshold,
			names[opp.CandidateRouters[best]],
			minOut.String(),
			opp.ID().Hex()[:18],
		)
	}
	table.Render()

	// show the calldata of the first profitable opportunity
	for _, opp := range opps {
		if _, err := evaluator.Evaluate(opp); err != nil {
			continue
		}
		desc, err := bundler.Build(opp, &types.FeeQuote{MaxFeePerGas: new(big.Int), MaxPriorityFeePerGas: new(big.Int)})
		if err != nil {
			return err
		}
		params, err := bundler.Decoder().DecodeSwap(desc.Payload)
		if err != nil {
			return err
		}
		fmt.Printf("\nswapExactTokensForTokens via %s (%s)\n", names[desc.Recipient], desc.Recipient.Hex())
		fmt.Printf("  amountIn:     %s\n", params.AmountIn)
		fmt.Printf("  amountOutMin: %s\n", params.AmountOutMin)
		fmt.Printf("  to:           %s\n", params.To.Hex())
		fmt.Printf("  deadline:     %s\n", time.Unix(params.Deadline.Int64(), 0).UTC().Format(time.RFC3339))
		break
	}
	return nil
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "include opportunities below their threshold")
}
