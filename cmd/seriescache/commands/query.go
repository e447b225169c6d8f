package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/seriescache/internal/render"
	"github.com/Sumatoshi-tech/seriescache/internal/service"
	"github.com/Sumatoshi-tech/seriescache/pkg/observability"
)

const chartFilePerm = 0o600

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var (
		format    string
		chartPath string
	)

	cmd := &cobra.Command{
		Use:   "query <start> <end>",
		Short: "Read an inclusive index range through the cache",
		Long: `Read the records with index in [start, end]. Uncached sub-ranges are
fetched from the configured source and merged into the cache.

With snapshot.load_on_start and snapshot.save_on_exit enabled, the cache
persists across invocations.`,
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

			return opts.withService(cmd, observability.ModeCLI, false,
				func(ctx context.Context, _ *runtime, svc *service.Service) error {
					res, rangeErr := svc.Range(ctx, start, end)
					if rangeErr != nil {
						return rangeErr
					}

					if chartPath != "" {
						chartErr := writeChart(chartPath, fmt.Sprintf("series [%d, %d]", start, end), res)
						if chartErr != nil {
							return chartErr
						}
					}

					return render.Range(cmd.OutOrStdout(), outFormat, res)
				})
		},
	}

	cmd.Flags().StringVarP(&format, formatFlag, "f", string(render.FormatTable), formatUsage)
	cmd.Flags().StringVar(&chartPath, "chart", "", "also write an HTML line chart to this file")

	return cmd
}

func writeChart(path, title string, res service.RangeResult) (err error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, chartFilePerm)
	if err != nil {
		return fmt.Errorf("create chart: %w", err)
	}

	defer func() {
		closeErr := file.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("close chart: %w", closeErr)
		}
	}()

	return render.Chart(file, title, res.Points)
}

func newGapsCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "gaps <start> <end>",
		Short: "List uncached sub-ranges of an inclusive index range",
		Long: `List the sub-ranges of [start, end] that the cache does not hold.
The configured snapshot is restored first when it exists. Nothing is fetched.`,
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
				func(_ context.Context, _ *runtime, svc *service.Service) error {
					gaps, gapsErr := svc.Gaps(start, end)
					if gapsErr != nil {
						return gapsErr
					}

					return render.Gaps(cmd.OutOrStdout(), outFormat, gaps)
				})
		},
	}

	cmd.Flags().StringVarP(&format, formatFlag, "f", string(render.FormatTable), formatUsage)

	return cmd
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics of the snapshot-restored cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outFormat, err := render.ParseFormat(format)
			if err != nil {
				return err
			}

			return opts.withService(cmd, observability.ModeCLI, true,
				func(_ context.Context, _ *runtime, svc *service.Service) error {
					return render.Stats(cmd.OutOrStdout(), outFormat, svc.Stats())
				})
		},
	}

	cmd.Flags().StringVarP(&format, formatFlag, "f", string(render.FormatTable), formatUsage)

	return cmd
}
