package cmd

import (
	"fmt"
	"math"
	"os"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/vmap-go/internal/config"
	"github.com/wegman-software/vmap-go/internal/elevation"
	"github.com/wegman-software/vmap-go/internal/keywordlist"
	"github.com/wegman-software/vmap-go/internal/logger"
	"github.com/wegman-software/vmap-go/internal/proj"
)

// statePrefix is the keyword prefix of saved elevation state
const statePrefix = "elevation_manager."

var (
	channelBuffer int
	bboxStr       string
	projectionStr string
)

// addFeatureFlags registers the flags shared by build and import
func addFeatureFlags(c *cobra.Command) {
	c.Flags().StringSliceVarP(&cfg.Classes, "class", "c", nil, "Feature classes to build (default: all in the coverage)")
	c.Flags().StringVarP(&bboxStr, "bbox", "b", "", "Bounding box filter: minlon,minlat,maxlon,maxlat")
	c.Flags().StringVarP(&projectionStr, "projection", "E", "4326", "Target projection SRID (4326 or 3857)")
	c.Flags().StringVarP(&cfg.StyleFile, "style", "S", "", "Style YAML file enabling and filtering feature classes")
	c.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per Parquet row group")
	c.Flags().IntVar(&channelBuffer, "channel-buffer", 10000, "Buffer size for record channels")
	c.Flags().BoolVar(&cfg.Heights, "heights", false, "Add elevation_msl to point and text features")
	addElevationFlags(c)
}

// addElevationFlags registers the flags configuring the elevation manager
func addElevationFlags(c *cobra.Command) {
	c.Flags().StringSliceVar(&cfg.ElevationPaths, "elevation-path", nil, "Elevation cell or directory to load (repeatable)")
	c.Flags().StringVar(&cfg.ElevationState, "elevation-state", "", "Keyword list file with saved elevation state")
	c.Flags().Float64Var(&cfg.GeoidOffset, "geoid-offset", math.NaN(), "Constant geoid offset in meters for ellipsoid heights")
}

// applyFeatureFlags parses the flag values that need conversion
func applyFeatureFlags(coverage string) {
	cfg.CoveragePath = coverage

	if bboxStr != "" {
		bbox, err := config.ParseBBox(bboxStr)
		if err != nil {
			exitWithError("invalid bbox", err)
		}
		cfg.BBox = bbox
	}

	srid, err := proj.ParseSRID(projectionStr)
	if err != nil {
		exitWithError("invalid projection", err)
	}
	cfg.Projection = srid

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}
}

// newElevationManager builds a manager from the standard directories, the
// saved state and the --elevation-path entries, in that order
func newElevationManager() (*elevation.Manager, error) {
	log := logger.Named("elevation")

	opts := elevation.DefaultOptions()
	opts.Log = log
	if !math.IsNaN(cfg.GeoidOffset) {
		opts.Geoid = elevation.ConstantGeoid(cfg.GeoidOffset)
	}
	m := elevation.NewManager(opts)
	m.EnsureInitialized()

	if cfg.ElevationState != "" {
		kwl, err := keywordlist.ParseFile(cfg.ElevationState)
		if err != nil {
			return nil, fmt.Errorf("failed to read elevation state: %w", err)
		}
		if !m.LoadState(kwl, statePrefix) {
			log.Warn("Elevation state partially applied", zap.String("file", cfg.ElevationState))
		}
	}

	for _, path := range cfg.ElevationPaths {
		var ok bool
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			ok = m.OpenCell(path)
		} else {
			ok = m.LoadElevationPath(path)
		}
		if !ok {
			log.Warn("No elevation data loaded", zap.String("path", path))
		}
	}

	log.Info("Elevation ready",
		zap.Int("cells", m.Registry().Len()),
		zap.Int("factories", len(m.Registry().Factories())))
	return m, nil
}
