package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/procurement/services/match/config"
	"example.com/procurement/services/match/internal/database"
	"example.com/procurement/services/match/internal/extraction"
	"example.com/procurement/services/match/internal/messaging"
	"example.com/procurement/services/match/internal/metrics"
	"example.com/procurement/services/match/internal/search"
	"example.com/procurement/services/match/internal/services"
	"example.com/procurement/services/match/internal/tracing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var ingestPath string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Scan the data lake and ingest new PDFs",
	Long:  `Walk the data lake for PDF documents, extract their contents, persist the records, and file the PDFs away by type`,
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestPath, "path", "", "data lake root to scan (defaults to the configured path)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling so a long scan can be interrupted
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	root := ingestPath
	if root == "" {
		root = cfg.Ingest.DataLakePath
	}

	// Initialize database connections
	db, readOnlyDB, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	// Initialize Azure Service Bus client; events are optional for ingest runs
	var azureBus messaging.ServiceBusClient
	if cfg.Azure.ConnectionString != "" {
		azureBus, err = messaging.NewAzureServiceBus(cfg.Azure, "match-ingest", tracer)
		if err != nil {
			return err
		}
		defer func() {
			if err := azureBus.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close Service Bus client")
			}
		}()
	} else {
		log.Warn().Msg("Azure Service Bus connection string not provided, skipping document events")
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize the extraction client and the ingest service
	extractor := extraction.NewClient(cfg.Anthropic, tracer)
	ingestService := services.NewIngestService(db, readOnlyDB, extractor, azureBus, elasticClient, metricsCollector, tracer)

	summary, err := ingestService.Run(ctx, root)
	if err != nil {
		return err
	}

	log.Info().
		Int("processed", summary.Processed).
		Int("moved", summary.Moved).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Ingest complete")

	return nil
}
