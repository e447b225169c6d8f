package commands

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/seriescache/internal/render"
	"github.com/Sumatoshi-tech/seriescache/internal/service"
	"github.com/Sumatoshi-tech/seriescache/pkg/config"
	"github.com/Sumatoshi-tech/seriescache/pkg/observability"
	"github.com/Sumatoshi-tech/seriescache/pkg/persist"
)

func newSnapshotCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save or inspect cache snapshots",
		Long: `Snapshots live in snapshot.dir as <name>.json (manifest) and
<name>.snap or <name>.snap.lz4 (records).`,
	}

	cmd.AddCommand(newSnapshotSaveCommand(opts), newSnapshotShowCommand(opts))

	return cmd
}

func newSnapshotSaveCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "save <start> <end>",
		Short: "Warm the cache with a range and save it",
		Long: `Restore the existing snapshot if any, read [start, end] through the
cache and save the result.`,
		Args: cobra.ExactArgs(boundsArgCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseBounds(args)
			if err != nil {
				return err
			}

			outFormat, err := render.ParseFormat(format)
			if err != nil {
				return err
			}

			return opts.withService(cmd, observability.ModeCLI, true,
				func(ctx context.Context, rt *runtime, svc *service.Service) error {
					_, rangeErr := svc.Range(ctx, start, end)
					if rangeErr != nil {
						return rangeErr
					}

					manifest, saveErr := svc.SaveSnapshot()
					if saveErr != nil {
						return saveErr
					}

					return render.Manifest(cmd.OutOrStdout(), outFormat, "saved", manifest,
						payloadSize(rt.cfg.Snapshot, manifest))
				})
		},
	}

	cmd.Flags().StringVarP(&format, formatFlag, "f", string(render.FormatTable), formatUsage)

	return cmd
}

func newSnapshotShowCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Load the snapshot and print its manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outFormat, err := render.ParseFormat(format)
			if err != nil {
				return err
			}

			return opts.withService(cmd, observability.ModeCLI, false,
				func(_ context.Context, rt *runtime, svc *service.Service) error {
					manifest, loadErr := svc.LoadSnapshot()
					if loadErr != nil {
						return loadErr
					}

					return render.Manifest(cmd.OutOrStdout(), outFormat, "loaded", manifest,
						payloadSize(rt.cfg.Snapshot, manifest))
				})
		},
	}

	cmd.Flags().StringVarP(&format, formatFlag, "f", string(render.FormatTable), formatUsage)

	return cmd
}

// payloadSize returns the payload file size, or -1 when it cannot be read.
func payloadSize(cfg config.SnapshotConfig, manifest persist.Manifest) int64 {
	info, err := os.Stat(persist.PayloadPath(cfg.Dir, cfg.Name, manifest.Compression))
	if err != nil {
		return -1
	}

	return info.Size()
}
