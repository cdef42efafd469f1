package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/chutulu/service/config"
	"github.com/brojonat/chutulu/service/metrics"
	"github.com/brojonat/chutulu/service/nats"
	"github.com/brojonat/chutulu/service/solana"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// ActionVersion is the Solana Actions protocol version this server speaks.
	ActionVersion = "2.1.3"

	blockchainMainnet = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	blockchainDevnet  = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
)

// Server represents the HTTP server for the fire action.
type Server struct {
	addr      string
	cfg       *config.Config
	builder   FireBuilder
	publisher nats.Publisher
	events    FireEventSource
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server

	// closed on Shutdown so open event streams end
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new HTTP server with the given dependencies.
// The publisher is optional - if nil, no fire events are published.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, builder FireBuilder, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		builder:   builder,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// WithEventStream enables the SSE fire event endpoints backed by source.
func (s *Server) WithEventStream(source FireEventSource) *Server {
	s.events = source
	return s
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	game := solana.Game{ProgramID: s.cfg.ProgramID, Mint: s.cfg.TokenMint}
	meta := ActionMetadata{
		Label:   s.cfg.ActionLabel,
		Icon:    s.cfg.ActionIcon,
		Message: s.cfg.ActionMessage,
	}

	// Action endpoint, every method lands here so unsupported ones get a JSON 405
	action := handleAction(s.builder, s.publisher, game, meta, s.cfg.RequestTimeout, s.logger)
	mux.Handle("/{$}", metrics.HTTPMetricsMiddleware(s.metrics, "/")(action))
	mux.Handle("GET /actions.json", metrics.HTTPMetricsMiddleware(s.metrics, "/actions.json")(handleActionsManifest()))

	// SSE streaming endpoints (if an event source is configured)
	if s.events != nil {
		mux.Handle("GET /events", handleStreamFireEvents(s.events, s.done, s.logger))
		mux.Handle("GET /events/{player}", handleStreamFireEvents(s.events, s.done, s.logger))
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux, blockchainID(s.cfg.SolanaRPCURL), s.cfg.AllowPreflight)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server",
		"addr", s.addr,
		"program_id", s.cfg.ProgramID.String(),
		"mint", s.cfg.TokenMint.String(),
		"publish_events", s.publisher != nil,
		"stream_events", s.events != nil,
		"metrics", s.metrics != nil,
	)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Shutdown does not cancel running handlers
	s.closeOnce.Do(func() { close(s.done) })

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// blockchainID returns the CAIP-2 chain id advertised in X-Blockchain-Ids.
func blockchainID(rpcURL string) string {
	if strings.Contains(rpcURL, "mainnet") {
		return blockchainMainnet
	}
	return blockchainDevnet
}

// corsMiddleware adds the CORS and Actions headers to all responses.
// OPTIONS preflight is answered only when allowPreflight is set; otherwise
// it reaches the routes like any other method.
func corsMiddleware(next http.Handler, chainID string, allowPreflight bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Content-Encoding, Accept-Encoding, X-Action-Version, X-Blockchain-Ids")
		w.Header().Set("Access-Control-Expose-Headers", "X-Action-Version, X-Blockchain-Ids")
		w.Header().Set("Access-Control-Max-Age", "3600")
		w.Header().Set("X-Action-Version", ActionVersion)
		w.Header().Set("X-Blockchain-Ids", chainID)

		if allowPreflight && r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Pass through to next handler
		next.ServeHTTP(w, r)
	})
}
