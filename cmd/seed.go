package cmd

import (
	"context"
	"os"
	"time"

	"example.com/procurement/services/match/config"
	"example.com/procurement/services/match/internal/database"
	"example.com/procurement/services/match/internal/services"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	seedPurchaseOrders int
	seedChaosRate      float64
	seedRandomSeed     int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the store with a simulated document set",
	Long:  `Generate simulated purchase orders, invoices, and goods receipt notes with configurable chaos, straight into the document store`,
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedPurchaseOrders, "purchase-orders", 0, "number of transaction sets to generate (defaults to the configured count)")
	seedCmd.Flags().Float64Var(&seedChaosRate, "chaos", -1, "fraction of transactions given a deliberate defect (defaults to the configured rate)")
	seedCmd.Flags().Int64Var(&seedRandomSeed, "seed", 0, "random seed for a reproducible set (defaults to the current time)")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	opts := services.SeedOptions{
		PurchaseOrders: seedPurchaseOrders,
		ChaosRate:      seedChaosRate,
		Seed:           seedRandomSeed,
	}
	if opts.PurchaseOrders <= 0 {
		opts.PurchaseOrders = cfg.Seed.PurchaseOrders
	}
	if opts.ChaosRate < 0 {
		opts.ChaosRate = cfg.Seed.ChaosRate
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}

	// Initialize database connections
	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	seedService := services.NewSeedService(db, readOnlyDB)
	return seedService.Run(context.Background(), opts)
}
