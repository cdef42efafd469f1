package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/chutulu/service/config"
	"github.com/brojonat/chutulu/service/metrics"
	"github.com/brojonat/chutulu/service/nats"
	"github.com/brojonat/chutulu/service/server"
	"github.com/brojonat/chutulu/service/solana"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	// Decode the fee payer once; the raw secret is not kept around
	payer, err := solana.LoadPayer(cfg.PayerSecretKey.Reveal())
	if err != nil {
		logger.Error("failed to load payer key", "error", err)
		os.Exit(1)
	}
	cfg.PayerSecretKey = ""
	defer payer.Zero()
	logger.Info("loaded fee payer", "payer", payer)

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	solanaRPC := solana.NewRPCClient(cfg.SolanaRPCURL)
	solanaClient := solana.NewClient(solanaRPC, cfg.SolanaCommitment, rpcEndpointLabel(cfg.SolanaRPCURL), m, logger)
	logger.Info("initialized solana RPC client",
		"endpoint", rpcEndpointLabel(cfg.SolanaRPCURL),
		"commitment", cfg.SolanaCommitment,
	)

	provisioner := solana.NewTokenAccountProvisioner(solanaClient, payer, m, logger)
	builder := solana.NewFireBuilder(
		solana.Game{ProgramID: cfg.ProgramID, Mint: cfg.TokenMint},
		solanaClient,
		provisioner,
		payer,
		m,
		logger,
	)

	// Optional NATS fire events
	var publisher nats.Publisher
	var natsClient *nats.CorePublisher
	if cfg.NATSURL != "" {
		natsClient, err = nats.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		publisher = natsClient
	} else {
		logger.Info("NATS_URL not set, fire events disabled")
	}

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, builder, publisher, m, logger)
	if natsClient != nil {
		httpServer.WithEventStream(natsClient)
	}

	logger.Info("server initialized, all dependencies ready",
		"program_id", cfg.ProgramID.String(),
		"mint", cfg.TokenMint.String(),
		"fee_payer", payer.PublicKey().String(),
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		payer.Zero()
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			payer.Zero()
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// rpcEndpointLabel reduces an RPC URL to its host so API keys in the path or
// query never reach logs or metric labels.
func rpcEndpointLabel(rpcURL string) string {
	u, err := url.Parse(rpcURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
