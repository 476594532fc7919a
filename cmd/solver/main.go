package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/speedrun-hq/solver/clients/evm"
	"github.com/speedrun-hq/solver/config"
	"github.com/speedrun-hq/solver/db"
	"github.com/speedrun-hq/solver/handlers"
	solverhttp "github.com/speedrun-hq/solver/http"
	"github.com/speedrun-hq/solver/logging"
	"github.com/speedrun-hq/solver/pricing"
	"github.com/speedrun-hq/solver/services"
)

const (
	shutdownTimeout = 30 * time.Second
)

func main() {
	flags := parseFlags()
	log := logging.New(os.Stdout, flags.LogLevel, flags.LogJSON)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()

	// Initialize database
	log.Info().Msg("Initializing database connection")
	database, err := db.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	log.Info().Msg("Database connection established successfully")

	// Dial every configured chain
	chains, err := evm.Dial(ctx, *cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to dial chains")
	}

	// Assemble the solver context shared by all order services
	oracle := pricing.NewOracle(cfg.PriceAPIURL, log)
	solverContext := services.NewSolverContext(cfg, chains, oracle)

	// Create metrics service
	metricsService := services.NewMetricsService(log)

	// Create order services for all chains with a registry configured
	orderServices, err := createOrderServices(chains, solverContext, database, metricsService, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create order services")
	}

	for chainID, orderService := range orderServices {
		if err := orderService.StartListening(ctx); err != nil {
			log.Error().Err(err).Uint64(logging.FieldChain, chainID).Msg("Failed to start order service")
		}
	}

	// Create and start the server
	server := handlers.New(handlers.Config{
		Addr:           fmt.Sprintf(":%s", cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log,
		LogRequests:    true,
		Dependencies: handlers.Dependencies{
			Database: database,
			Metrics:  metricsService,
		},
	})

	serverShutdown := solverhttp.StartAsync(server, log)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("Shutdown signal received, cleaning up services...")

	// Shutdown HTTP server first
	serverShutdown(ctx)

	// Shutdown all services gracefully
	var shutdownErrors []error

	for chainID, orderService := range orderServices {
		log.Info().Uint64(logging.FieldChain, chainID).Msg("Shutting down order service")
		if err := orderService.Shutdown(shutdownTimeout); err != nil {
			err = errors.Wrap(err, "failed to shutdown order service")
			shutdownErrors = append(shutdownErrors, err)
		}
	}

	if len(shutdownErrors) > 0 {
		log.Error().Int("errors_count", len(shutdownErrors)).Msg("Encountered errors during shutdown")
		for _, err := range shutdownErrors {
			log.Error().Err(err).Msg("Error during shutdown")
		}
		return
	}

	log.Info().Msg("All services shut down successfully")
}

// createOrderServices creates an order ingestion service per chain that has
// an order registry configured.
func createOrderServices(
	chains map[uint64]*evm.ChainClients,
	solverContext *services.SolverContext,
	database db.Database,
	metrics *services.MetricsService,
	cfg *config.Config,
	logger zerolog.Logger,
) (map[uint64]*services.OrderService, error) {
	orderServices := make(map[uint64]*services.OrderService)

	for chainID, chain := range chains {
		registry := cfg.Chains[chainID].OrderRegistry
		if registry == (common.Address{}) {
			logger.Info().Uint64(logging.FieldChain, chainID).Msg("No order registry configured, skipping ingestion")
			continue
		}

		orderService, err := services.NewOrderService(
			chain.Raw,
			solverContext,
			database,
			metrics,
			chainID,
			registry,
			logger,
		)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create order service for chain %d", chainID)
		}
		orderServices[chainID] = orderService
	}

	return orderServices, nil
}

type flagSet struct {
	LogJSON  bool
	LogLevel zerolog.Level
}

func parseFlags() flagSet {
	var (
		logJSON        bool
		logLevel       string
		logLevelParsed zerolog.Level
	)

	flag.BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")
	flag.StringVar(&logLevel, "log-level", "info", "Set log level (debug, info, warn, error)")

	flag.Parse()

	switch logLevel {
	case "debug":
		logLevelParsed = zerolog.DebugLevel
	case "warn":
		logLevelParsed = zerolog.WarnLevel
	case "error":
		logLevelParsed = zerolog.ErrorLevel
	default:
		logLevelParsed = zerolog.InfoLevel
	}

	return flagSet{
		LogJSON:  logJSON,
		LogLevel: logLevelParsed,
	}
}
