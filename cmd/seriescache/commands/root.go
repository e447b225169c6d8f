// Package commands implements the seriescache CLI subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/seriescache/internal/service"
	"github.com/Sumatoshi-tech/seriescache/pkg/config"
	"github.com/Sumatoshi-tech/seriescache/pkg/observability"
	"github.com/Sumatoshi-tech/seriescache/pkg/version"
)

// ErrBadIndex is returned for range arguments that are not integers.
var ErrBadIndex = errors.New("index must be an integer")

const (
	boundsArgCount = 2
	formatFlag     = "format"
	formatUsage    = "output format: table, json or yaml"
)

type rootOptions struct {
	configPath string
	verbose    bool
	quiet      bool
}

// NewRootCommand builds the seriescache command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "seriescache",
		Short: "Sparse self-merging cache for index-keyed series",
		Long: `seriescache reads ordered, index-keyed records through a sparse cache
that remembers which index ranges it holds and fetches only the gaps.

Commands:
  query     Read a range through the cache
  gaps      List uncached sub-ranges
  stats     Show cache statistics
  serve     Serve the cache over HTTP
  mcp       Serve the cache as MCP tools on stdio
  seed      Fill a SQLite source with generated points
  snapshot  Save or inspect cache snapshots`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is ./seriescache.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(
		newQueryCommand(opts),
		newGapsCommand(opts),
		newStatsCommand(opts),
		newServeCommand(opts),
		newMCPCommand(opts),
		newSeedCommand(opts),
		newSnapshotCommand(opts),
		newVersionCommand(),
	)

	return rootCmd
}

// runtime is the loaded configuration and telemetry of one command run.
type runtime struct {
	cfg       *config.Config
	providers observability.Providers
}

func (o *rootOptions) setup(mode observability.AppMode) (*runtime, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}

	obsCfg, err := o.observabilityConfig(cfg, mode)
	if err != nil {
		return nil, err
	}

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	return &runtime{cfg: cfg, providers: providers}, nil
}

func (o *rootOptions) observabilityConfig(cfg *config.Config, mode observability.AppMode) (observability.Config, error) {
	level, err := observability.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return observability.Config{}, err
	}

	switch {
	case o.verbose:
		level = slog.LevelDebug
	case o.quiet:
		level = slog.LevelError
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Get().Version
	obsCfg.Environment = cfg.Observability.Environment
	obsCfg.Mode = mode
	obsCfg.SourceKind = cfg.Source.Kind
	obsCfg.DebugTrace = o.verbose
	obsCfg.OTLPEndpoint = cfg.Observability.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Observability.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Observability.OTLPInsecure
	obsCfg.SampleRatio = cfg.Observability.SampleRatio
	obsCfg.TraceFetches = cfg.Observability.TraceFetches
	obsCfg.LogLevel = level
	// MCP owns stdout; its logs must stay machine-readable on stderr.
	obsCfg.LogJSON = cfg.Logging.Format == config.FormatJSON || mode == observability.ModeMCP

	return obsCfg, nil
}

func (r *runtime) shutdown() {
	err := r.providers.Shutdown(context.Background())
	if err != nil {
		r.providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}

// withService runs fn against a service opened from the loaded config and
// closes it afterwards. loadSnapshot forces restoring an existing snapshot.
func (o *rootOptions) withService(
	cmd *cobra.Command,
	mode observability.AppMode,
	loadSnapshot bool,
	fn func(ctx context.Context, rt *runtime, svc *service.Service) error,
) (err error) {
	rt, err := o.setup(mode)
	if err != nil {
		return err
	}

	defer rt.shutdown()

	if loadSnapshot {
		rt.cfg.Snapshot.LoadOnStart = true
	}

	ctx := cmd.Context()

	svc, err := service.Open(ctx, rt.cfg, rt.providers.Logger, rt.providers.Tracer)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, svc.Close(context.WithoutCancel(ctx)))
	}()

	return fn(ctx, rt, svc)
}

func parseBounds(args []string) (start, end int64, err error) {
	start, err = strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: start %q", ErrBadIndex, args[0])
	}

	end, err = strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: end %q", ErrBadIndex, args[1])
	}

	return start, end, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
		},
	}
}
