package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/seriescache/internal/server"
	"github.com/Sumatoshi-tech/seriescache/internal/service"
	"github.com/Sumatoshi-tech/seriescache/pkg/mcp"
	"github.com/Sumatoshi-tech/seriescache/pkg/observability"
)

const meterName = "seriescache"

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cache over HTTP",
		Long: `Serve range reads over HTTP until interrupted.

Routes:
  GET    /range?start=&end=   read a range through the cache
  GET    /gaps?start=&end=    list uncached sub-ranges
  GET    /stats               cache statistics
  POST   /batch               read several ranges at once
  POST   /snapshot            save a snapshot
  DELETE /cache               drop all cached records
  GET    /healthz, /readyz    liveness and readiness
  GET    /metrics             Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cmd.SetContext(ctx)

			return opts.withService(cmd, observability.ModeServe, false,
				func(ctx context.Context, rt *runtime, svc *service.Service) error {
					if cmd.Flags().Changed("host") {
						rt.cfg.Server.Host = host
					}

					if cmd.Flags().Changed("port") {
						rt.cfg.Server.Port = port
					}

					return serve(ctx, rt, svc)
				})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")

	return cmd
}

func serve(ctx context.Context, rt *runtime, svc *service.Service) error {
	metricsHandler, meterProvider, err := observability.PrometheusHandler()
	if err != nil {
		return err
	}

	meter := meterProvider.Meter(meterName)

	red, err := observability.NewREDMetrics(meter)
	if err != nil {
		return fmt.Errorf("create RED metrics: %w", err)
	}

	providers := map[string]observability.CacheStatsProvider{meterName: svc}

	err = observability.RegisterCacheMetrics(meter, providers)
	if err != nil {
		return fmt.Errorf("register cache metrics: %w", err)
	}

	// Also export cache gauges through OTLP when a collector is configured.
	if rt.cfg.Observability.OTLPEndpoint != "" {
		err = observability.RegisterCacheMetrics(rt.providers.Meter, providers)
		if err != nil {
			return fmt.Errorf("register cache metrics: %w", err)
		}
	}

	srv, err := server.New(rt.cfg.Server, svc, server.Deps{
		Logger:  rt.providers.Logger,
		Tracer:  rt.providers.Tracer,
		RED:     red,
		Metrics: metricsHandler,
	})
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

func newMCPCommand(opts *rootOptions) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes the cache as tools that AI agents can discover and
invoke:
  - series_range: read a range through the cache
  - series_gaps: list uncached sub-ranges
  - series_stats: cache statistics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if debug {
				opts.verbose = true
			}

			return opts.withService(cmd, observability.ModeMCP, false,
				func(ctx context.Context, rt *runtime, svc *service.Service) error {
					red, err := observability.NewREDMetrics(rt.providers.Meter)
					if err != nil {
						return fmt.Errorf("create RED metrics: %w", err)
					}

					srv := mcp.NewServer(svc, mcp.ServerDeps{
						Logger:  rt.providers.Logger,
						Metrics: red,
						Tracer:  rt.providers.Tracer,
					})

					return srv.Run(ctx)
				})
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}
