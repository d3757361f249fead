package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "match_service",
	Short: "Three-way match service for procurement documents",
	Long: `A service that ingests purchase orders, invoices, and goods receipt
notes from a PDF data lake, reconciles them with a three-way match, and
exposes an API for the reconciliation report and decision ledger.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize()
}
