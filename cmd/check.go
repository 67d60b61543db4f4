package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/liquidator/cmd/bot"
	"github.com/michaelpento.lv/liquidator/dex/uniswap"
	"github.com/michaelpento.lv/liquidator/protocol"
	"github.com/michaelpento.lv/liquidator/utils"
	"github.com/michaelpento.lv/liquidator/utils/math"
)

var checkProtocol string

var checkCmd = &cobra.Command{
	Use:   "check <user>",
	Short: "Size the liquidation of a single user without sending it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid user address %q", args[0])
		}
		user := common.HexToAddress(args[0])

		log := utils.GetLogger()
		defer utils.CleanupLogger()

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}
		cfg.ReadOnly = true
		if checkProtocol != "" {
			cfg.Protocols = []string{checkProtocol}
			if err := cfg.ValidateConfig(); err != nil {
				return err
			}
		}

		s, err := buildStack(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer s.Close()

		out := cmd.OutOrStdout()
		for _, b := range s.bots {
			e, err := b.Evaluate(cmd.Context(), user)
			if err != nil {
				fmt.Fprintf(out, "%s: %v\n", b.Name(), err)
				continue
			}
			printEvaluation(out, b.Name(), e)
		}
		return nil
	},
}

func printEvaluation(out io.Writer, name string, e *bot.Evaluation) {
	debt, collateral := e.Params.DebtMarket, e.Params.CollateralMarket
	fmt.Fprintf(out, "%s\n", name)
	fmt.Fprintf(out, "  debt market:       %s (%s USD borrowed)\n", debt.Market.Hex(), math.FormatUnits(debt.TotalBorrowBalanceUSD, 8))
	fmt.Fprintf(out, "  collateral market: %s (%s USD supplied, covers %s USD)\n",
		collateral.Market.Hex(),
		math.FormatUnits(collateral.TotalSupplyBalanceUSD, 8),
		math.FormatUnits(protocol.RepayCapacityUSD(collateral), 8))
	fmt.Fprintf(out, "  to liquidate:      %s\n", math.FormatUnits(e.Params.ToLiquidate, debt.Decimals))
	fmt.Fprintf(out, "  rewarded:          %s USD\n", math.FormatUnits(e.Params.RewardedUSD, 8))
	if e.Liquidation != nil {
		fmt.Fprintf(out, "  swap route:        %s\n", formatRoute(e.Liquidation.SwapPath))
	}
	fmt.Fprintf(out, "  gas:               %d (%s USD)\n", e.GasLimit, math.FormatUnits(e.GasCostUSD, 8))
	fmt.Fprintf(out, "  expected profit:   %s USD\n", math.FormatUnits(e.ExpectedProfit, 8))
	fmt.Fprintf(out, "  profitable:        %t\n", e.Profitable)
}

// formatRoute renders a packed swap path as token -(fee)-> token
func formatRoute(path []byte) string {
	if len(path) == 0 {
		return "none"
	}
	tokens, fees, err := uniswap.DecodePath(path)
	if err != nil {
		return fmt.Sprintf("invalid (%v)", err)
	}
	var b strings.Builder
	for i, token := range tokens {
		if i > 0 {
			fmt.Fprintf(&b, " -(%d)-> ", fees[i-1])
		}
		b.WriteString(token.Hex())
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkProtocol, "protocol", "", "only check this protocol")
}
