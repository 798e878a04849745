package cmd

import (
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/vmap-go/internal/loader"
	"github.com/wegman-software/vmap-go/internal/logger"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load feature Parquet files into PostgreSQL",
	Long: `Bulk load the Parquet files written by build into PostgreSQL/PostGIS.

This stage:
  1. Creates target tables (vmap_point, vmap_line, vmap_polygon)
  2. Uses COPY for high-speed bulk loading
  3. Optionally creates spatial indexes

Tables are loaded in parallel, one COPY stream each.`,
	Run: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
	addTableFlags(loadCmd)
	loadCmd.Flags().IntVarP(&loadSRID, "srid", "s", 0, "Geometry column SRID; match the build projection (default: 4326)")
}

// addTableFlags registers the flags controlling table setup
func addTableFlags(c *cobra.Command) {
	c.Flags().BoolVar(&cfg.CreateIndexes, "create-indexes", cfg.CreateIndexes, "Create spatial indexes after loading")
	c.Flags().BoolVar(&cfg.DropExisting, "drop-existing", cfg.DropExisting, "Drop existing tables before loading (truncate otherwise)")
}

var loadSRID int

func runLoad(cmd *cobra.Command, args []string) {
	log := logger.Get()
	if loadSRID != 0 {
		cfg.Projection = loadSRID
	}
	log.Info("Starting PostgreSQL load",
		zap.String("input_dir", cfg.OutputDir),
		zap.String("database", cfg.DBName),
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("user", cfg.DBUser),
		zap.String("schema", cfg.DBSchema),
	)

	start := time.Now()
	ctx, cancel := signalContext()
	defer cancel()

	ldr, err := loader.New(ctx, cfg)
	if err != nil {
		exitWithError("failed to create loader", err)
	}
	defer ldr.Close()

	stats, err := ldr.Run(ctx)
	if err != nil {
		exitWithError("load failed", err)
	}

	elapsed := time.Since(start)
	log.Info("Load complete",
		zap.Duration("duration", elapsed.Round(time.Second)),
		zap.Int64("rows", stats.RowsLoaded),
		zap.Float64("throughput_rows_s", float64(stats.RowsLoaded)/elapsed.Seconds()),
	)
}
