package commands

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/seriescache/internal/source"
	"github.com/Sumatoshi-tech/seriescache/pkg/config"
	"github.com/Sumatoshi-tech/seriescache/pkg/observability"
)

// Seed errors.
var (
	ErrNotSeedable   = errors.New("seed needs a sqlite source")
	ErrInvalidPoints = errors.New("points must be positive")
)

const seedBatch = 50_000

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var (
		points int
		from   int64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the SQLite source with generated points",
		Long: `Write generated points into the configured SQLite source, one every
source.step indices starting at --from. Existing indices are replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			rt, err := opts.setup(observability.ModeCLI)
			if err != nil {
				return err
			}

			defer rt.shutdown()

			if rt.cfg.Source.Kind != config.SourceSQLite {
				return fmt.Errorf("%w: source.kind is %q", ErrNotSeedable, rt.cfg.Source.Kind)
			}

			if !cmd.Flags().Changed("points") {
				points = rt.cfg.Source.SeedPoints
			}

			if points <= 0 {
				return fmt.Errorf("%w: %d", ErrInvalidPoints, points)
			}

			ctx := cmd.Context()

			db, err := source.OpenSQLite(ctx, rt.cfg.Source.DSN, rt.cfg.Source.Table)
			if err != nil {
				return err
			}

			defer func() {
				err = errors.Join(err, db.Close())
			}()

			step := rt.cfg.Source.Step
			next := from

			for written := 0; written < points; {
				batch := source.Generate(next, min(seedBatch, points-written), step)

				err = db.Seed(ctx, batch)
				if err != nil {
					return err
				}

				written += len(batch)
				next = batch[len(batch)-1].Index + step

				rt.providers.Logger.DebugContext(ctx, "seeded batch", "points", written)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "seeded %s points into %s (%s)\n",
				humanize.Comma(int64(points)), rt.cfg.Source.DSN, rt.cfg.Source.Table)

			return nil
		},
	}

	cmd.Flags().IntVarP(&points, "points", "n", 0, "number of points (default source.seed_points)")
	cmd.Flags().Int64Var(&from, "from", 0, "first index")

	return cmd
}
