package cmd

import (
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/vmap-go/internal/elevation"
	"github.com/wegman-software/vmap-go/internal/logger"
	"github.com/wegman-software/vmap-go/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build <coverage>",
	Short: "Build the features of a VPF coverage into Parquet files",
	Long: `Build every feature class of a VPF coverage and write the features to
Parquet files in the output directory:

  - points.parquet   (point and text features)
  - lines.parquet    (edge features)
  - polygons.parquet (area features, rebuilt from face topology)

Feature classes are built in parallel. Use the load command to copy the
files into PostgreSQL.`,
	Args: cobra.ExactArgs(1),
	Run:  runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	addFeatureFlags(buildCmd)
}

// newCoordinator creates the pipeline, with an elevation manager when
// heights are requested
func newCoordinator() (*pipeline.Coordinator, *elevation.Manager) {
	var heights *elevation.Manager
	if cfg.Heights {
		m, err := newElevationManager()
		if err != nil {
			exitWithError("failed to set up elevation", err)
		}
		heights = m
	}

	coordinator, err := pipeline.NewCoordinator(cfg, heights, pipeline.CoordinatorConfig{ChannelBuffer: channelBuffer})
	if err != nil {
		exitWithError("failed to create pipeline", err)
	}
	return coordinator, heights
}

func runBuild(cmd *cobra.Command, args []string) {
	applyFeatureFlags(args[0])
	log := logger.Get()

	log.Info("Starting feature build",
		zap.String("coverage", cfg.CoveragePath),
		zap.String("output", cfg.OutputDir),
		zap.Int("workers", cfg.Workers),
		zap.Int("projection", cfg.Projection),
		zap.Bool("heights", cfg.Heights),
	)

	start := time.Now()
	coordinator, heights := newCoordinator()
	if heights != nil {
		defer heights.CloseAllCells()
	}

	ctx, cancel := signalContext()
	defer cancel()

	stats, err := coordinator.Build(ctx)
	if err != nil {
		exitWithError("build failed", err)
	}

	elapsed := time.Since(start)
	log.Info("Build complete",
		zap.Duration("duration", elapsed.Round(time.Millisecond)),
		zap.Int64("classes", stats.Extract.Classes),
		zap.Int64("failed_classes", stats.Extract.Failed),
		zap.Int64("rows", stats.Extract.Rows),
		zap.Int64("features", stats.Extract.Emitted),
		zap.Int64("rejected", stats.Extract.Rejected),
		zap.Int64("filtered", stats.Extract.Filtered),
		zap.Int64("out_of_bbox", stats.Extract.OutOfBBox),
		zap.String("throughput", pipeline.FormatThroughput(float64(stats.Extract.Emitted)/elapsed.Seconds())),
	)
}
