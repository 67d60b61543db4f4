package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/michaelpento.lv/liquidator/utils"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "liquidator",
	Short: "A liquidation bot for Aave style lending pools",
	Long: `A liquidation bot that pages through lending pool borrowers, finds the
positions below a health factor of one and liquidates the ones that pay for
their gas, either from the wallet or through a flash liquidator contract.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./liquidator.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func initConfig() {
	utils.InitLogger(debug)
}
