package cmd

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/vmap-go/internal/loader"
	"github.com/wegman-software/vmap-go/internal/logger"
)

var importCmd = &cobra.Command{
	Use:   "import <coverage>",
	Short: "Run the full pipeline (build → load)",
	Long: `Build the features of a VPF coverage and stream them straight into
PostgreSQL/PostGIS without intermediate files.

Each output table is fed by its own COPY stream while feature classes are
still being built, so loading overlaps with topology reconstruction.`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	addFeatureFlags(importCmd)
	addTableFlags(importCmd)
}

func runImport(cmd *cobra.Command, args []string) {
	applyFeatureFlags(args[0])
	log := logger.Get()

	logFields := []zap.Field{
		zap.String("coverage", cfg.CoveragePath),
		zap.String("output", fmt.Sprintf("%s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)),
		zap.Int("workers", cfg.Workers),
		zap.Int("channel_buffer", channelBuffer),
		zap.Int("projection", cfg.Projection),
	}
	if cfg.BBox != nil && cfg.BBox.IsSet {
		logFields = append(logFields, zap.String("bbox",
			fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", cfg.BBox.MinLon, cfg.BBox.MinLat, cfg.BBox.MaxLon, cfg.BBox.MaxLat)))
	}
	if cfg.StyleFile != "" {
		logFields = append(logFields, zap.String("style", cfg.StyleFile))
	}
	log.Info("Starting vmap-go pipelined import", logFields...)

	totalStart := time.Now()
	ctx, cancel := signalContext()
	defer cancel()

	coordinator, heights := newCoordinator()
	if heights != nil {
		defer heights.CloseAllCells()
	}

	ldr, err := loader.New(ctx, cfg)
	if err != nil {
		exitWithError("failed to create loader", err)
	}
	defer ldr.Close()

	stats, err := coordinator.Import(ctx, ldr)
	if err != nil {
		exitWithError("import failed", err)
	}

	totalElapsed := time.Since(totalStart)
	log.Info("Import complete",
		zap.Duration("total_time", totalElapsed.Round(time.Second)),
		zap.Int64("classes", stats.Extract.Classes),
		zap.Int64("failed_classes", stats.Extract.Failed),
		zap.Int64("rejected", stats.Extract.Rejected),
		zap.Int64("with_height", stats.Extract.WithHeight),
		zap.Int64("points", stats.PointsLoad.RowsLoaded),
		zap.Int64("lines", stats.LinesLoad.RowsLoaded),
		zap.Int64("polygons", stats.PolysLoad.RowsLoaded),
		zap.Int64("total_rows", stats.TotalRows),
		zap.Float64("throughput_rows_s", float64(stats.TotalRows)/totalElapsed.Seconds()),
	)
}
