// Package scimproxy wires the proxy's pieces (upstream client, SCIM server,
// middleware chain) into a single HTTP handler, mirroring the teacher's
// Gateway-as-composition-root shape.
package scimproxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreward/scimproxy/config"
	"github.com/coreward/scimproxy/internal/telemetry"
	"github.com/coreward/scimproxy/scim"
	"github.com/coreward/scimproxy/upstream"
	"github.com/rs/zerolog"
)

// Gateway composes the upstream client, the SCIM server, and the
// middleware chain into a single HTTP handler.
type Gateway struct {
	config  *config.Config
	client  *upstream.Client
	server  *scim.Server
	metrics *telemetry.Counters
	handler http.Handler
	logger  zerolog.Logger
}

// New creates a new Gateway from cfg. Call Initialize before Handler.
func New(cfg *config.Config) *Gateway {
	return &Gateway{
		config: cfg,
		logger: scim.DiscardLogger(),
	}
}

// NewWithDefaults creates a Gateway with default configuration.
func NewWithDefaults() *Gateway {
	return New(config.DefaultConfig())
}

// SetLogger overrides the gateway's logger. Pass a discard logger to
// silence logging entirely (the default).
func (g *Gateway) SetLogger(logger zerolog.Logger) {
	g.logger = logger
}

// Initialize validates configuration, builds the upstream client, the
// metrics provider, the SCIM server, and assembles the middleware chain
// into g.handler. It must be called before Handler.
func (g *Gateway) Initialize() error {
	if err := g.config.Validate(); err != nil {
		g.logger.Error().Err(err).Msg("configuration validation failed")
		return fmt.Errorf("invalid configuration: %w", err)
	}

	g.logger.Info().
		Str("upstream_base_url", g.config.UpstreamBaseURL).
		Int("proxy_port", g.config.ProxyPort).
		Msg("initializing SCIM proxy")

	g.client = upstream.NewClient(upstream.Config{
		BaseURL:           g.config.UpstreamBaseURL,
		Timeout:           time.Duration(g.config.UpstreamTimeout) * time.Second,
		MaxConnections:    g.config.UpstreamMaxConnections,
		MaxKeepAliveConns: g.config.MaxKeepAliveConns,
	})

	metrics, err := telemetry.New(g.config.LogLevel == "debug")
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	g.metrics = metrics

	baseURL := fmt.Sprintf("http://%s:%d", g.config.ProxyHost, g.config.ProxyPort)
	g.server = scim.NewServer(scim.Options{
		BaseURL:               baseURL,
		Client:                g.client,
		Metrics:               metricsAdapter{metrics},
		Logger:                g.logger,
		FilterFetchMultiplier: g.config.FilterFetchMultiplier,
		MaxFilterFetchSize:    g.config.MaxFilterFetchSize,
		MaxFilterComplexity:   g.config.MaxFilterComplexity,
	})

	var handler http.Handler = g.server
	handler = LoggingMiddleware(g.logger)(handler)
	handler = CORSMiddleware(g.config.CORSOrigins)(handler)
	handler = RequestIDMiddleware()(handler)

	g.handler = handler

	g.logger.Info().Msg("SCIM proxy initialized successfully")
	return nil
}

// Handler returns the HTTP handler for the gateway. Returns an error if the
// gateway has not been initialized.
func (g *Gateway) Handler() (http.Handler, error) {
	if g.handler == nil {
		return nil, fmt.Errorf("gateway not initialized - call Initialize() first")
	}
	return g.handler, nil
}

// Config returns the gateway configuration.
func (g *Gateway) Config() *config.Config {
	return g.config
}

// Shutdown releases the gateway's metrics provider.
func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.metrics == nil {
		return nil
	}
	return g.metrics.Shutdown(ctx)
}

// metricsAdapter bridges *telemetry.Counters to scim.Metrics so the scim
// package never needs to see otel types directly.
type metricsAdapter struct {
	counters *telemetry.Counters
}

func (m metricsAdapter) IncUndercount(ctx context.Context) {
	m.counters.IncUndercount(ctx)
}

func (m metricsAdapter) AddBackfillPages(ctx context.Context, n int) {
	m.counters.AddBackfillPages(ctx, n)
}

func (m metricsAdapter) IncPatchRewrite(ctx context.Context, applied bool) {
	m.counters.IncPatchRewrite(ctx, applied)
}
