package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/vmap-go/internal/config"
	"github.com/wegman-software/vmap-go/internal/elevation"
	"github.com/wegman-software/vmap-go/internal/loader"
	"github.com/wegman-software/vmap-go/internal/logger"
	"github.com/wegman-software/vmap-go/internal/metrics"
	"github.com/wegman-software/vmap-go/internal/parquet"
)

// CoordinatorConfig holds pipeline-specific configuration
type CoordinatorConfig struct {
	ChannelBuffer    int
	ProgressInterval time.Duration
}

// Coordinator runs the extractor into Parquet files or straight into PostGIS
type Coordinator struct {
	cfg       *config.Config
	pipeCfg   CoordinatorConfig
	extractor *Extractor
	heights   *elevation.Manager
	log       *zap.Logger

	// rows handed to the sinks, indexed like loader.Targets
	sunk [3]atomic.Int64
}

// NewCoordinator creates a new pipeline coordinator. heights may be nil to
// skip elevation lookups.
func NewCoordinator(cfg *config.Config, heights *elevation.Manager, pipeCfg CoordinatorConfig) (*Coordinator, error) {
	if pipeCfg.ProgressInterval <= 0 {
		pipeCfg.ProgressInterval = 5 * time.Second
	}

	var src HeightSource
	if heights != nil {
		src = heights
	}
	extractor, err := NewExtractor(cfg, src, pipeCfg.ChannelBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	return &Coordinator{
		cfg:       cfg,
		pipeCfg:   pipeCfg,
		extractor: extractor,
		heights:   heights,
		log:       logger.Named("pipeline"),
	}, nil
}

// Extractor returns the underlying extractor
func (c *Coordinator) Extractor() *Extractor { return c.extractor }

// startBackground starts metrics collection and progress reporting; the
// returned func stops both
func (c *Coordinator) startBackground(ctx context.Context, totalClasses int) context.CancelFunc {
	bgCtx, cancel := context.WithCancel(ctx)

	if c.cfg.MetricsInterval > 0 {
		collector := metrics.NewCollector(c.cfg.MetricsInterval, c.log)
		if c.heights != nil {
			collector.AddGauge("elevation_cells", c.heights.Registry().Len)
		}
		go collector.Start(bgCtx)
		c.log.Info("System metrics collection started",
			zap.Duration("interval", c.cfg.MetricsInterval))
	}

	go c.reportLiveProgress(bgCtx, NewProgressTracker(int64(totalClasses), "features"))
	return cancel
}

// streamsByTarget pairs each target with its stream, in loader.Targets order
func streamsByTarget(s *FeatureStreams) [3]<-chan parquet.Record {
	return [3]<-chan parquet.Record{s.Points, s.Lines, s.Polygons}
}

// Build extracts every class into points, lines and polygons Parquet files
// in the output directory
func (c *Coordinator) Build(ctx context.Context) (*BuildStats, error) {
	if err := os.MkdirAll(c.cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	classes, err := c.extractor.Classes()
	if err != nil {
		return nil, err
	}
	stop := c.startBackground(ctx, len(classes))
	defer stop()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	streams, err := c.extractor.Run(gctx)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	written := make([]int64, len(loader.Targets))
	outs := streamsByTarget(streams)
	for i, target := range loader.Targets {
		records := outs[i]
		g.Go(func() error {
			n, err := c.writeParquet(gctx, filepath.Join(c.cfg.OutputDir, target.File), records, &c.sunk[i])
			if err != nil {
				return fmt.Errorf("%s: %w", target.File, err)
			}
			written[i] = n
			return nil
		})
	}

	g.Go(func() error {
		for err := range streams.Errors {
			if err != nil {
				return fmt.Errorf("extraction error: %w", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &BuildStats{Extract: c.extractor.Stats(), Files: make(map[string]int64, len(loader.Targets))}
	fields := []zap.Field{
		zap.Int64("classes", stats.Extract.Classes),
		zap.Int64("features", stats.Extract.Emitted),
		zap.Int64("with_height", stats.Extract.WithHeight),
	}
	for i, target := range loader.Targets {
		stats.Files[target.File] = written[i]
		fields = append(fields, zap.Int64(target.Table, written[i]))
	}
	fields = append(fields, zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	c.log.Info("Build complete", fields...)

	return stats, nil
}

// writeParquet drains records into one Parquet file
func (c *Coordinator) writeParquet(ctx context.Context, path string, records <-chan parquet.Record, counter *atomic.Int64) (int64, error) {
	w, err := parquet.NewFeatureWriter(path, c.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	for {
		select {
		case <-ctx.Done():
			w.Close()
			return 0, ctx.Err()
		case r, ok := <-records:
			if !ok {
				if err := w.Close(); err != nil {
					return 0, err
				}
				if info, err := os.Stat(path); err == nil {
					c.log.Debug("Parquet file written",
						zap.String("file", filepath.Base(path)),
						zap.Int64("rows", w.Count()),
						zap.String("size", FormatBytes(info.Size())))
				}
				return w.Count(), nil
			}
			if err := w.Write(r); err != nil {
				w.Close()
				return 0, err
			}
			counter.Add(1)
		}
	}
}

// Import streams every class straight into the PostGIS feature tables
func (c *Coordinator) Import(ctx context.Context, ld *loader.Loader) (*ImportStats, error) {
	if err := ld.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	for _, target := range loader.Targets {
		if err := ld.PrepareTable(ctx, target.Table); err != nil {
			return nil, fmt.Errorf("failed to prepare table %s: %w", target.Table, err)
		}
	}

	classes, err := c.extractor.Classes()
	if err != nil {
		return nil, err
	}
	stop := c.startBackground(ctx, len(classes))
	defer stop()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	streams, err := c.extractor.Run(gctx)
	if err != nil {
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	loaded := make([]int64, len(loader.Targets))
	outs := streamsByTarget(streams)
	for i, target := range loader.Targets {
		records := outs[i]
		g.Go(func() error {
			n, err := ld.CopyStream(gctx, target.Table, records, &c.sunk[i])
			if err != nil {
				return fmt.Errorf("%s load failed: %w", target.Table, err)
			}
			loaded[i] = n
			return nil
		})
	}

	g.Go(func() error {
		for err := range streams.Errors {
			if err != nil {
				return fmt.Errorf("extraction error: %w", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &ImportStats{
		Extract:    c.extractor.Stats(),
		PointsLoad: LoadStats{Table: loader.PointTarget.Table, RowsLoaded: loaded[0]},
		LinesLoad:  LoadStats{Table: loader.LineTarget.Table, RowsLoaded: loaded[1]},
		PolysLoad:  LoadStats{Table: loader.PolygonTarget.Table, RowsLoaded: loaded[2]},
		TotalRows:  loaded[0] + loaded[1] + loaded[2],
	}
	c.log.Info("Extraction and loading complete",
		zap.Int64("classes", stats.Extract.Classes),
		zap.Int64("points", loaded[0]),
		zap.Int64("lines", loaded[1]),
		zap.Int64("polygons", loaded[2]),
		zap.Duration("duration", time.Since(start).Round(time.Second)))

	if c.cfg.CreateIndexes {
		indexStart := time.Now()
		c.log.Info("Creating indexes in parallel")

		ig, igctx := errgroup.WithContext(ctx)
		for _, target := range loader.Targets {
			ig.Go(func() error {
				return ld.CreateIndexes(igctx, target.Table)
			})
		}
		if err := ig.Wait(); err != nil {
			return nil, fmt.Errorf("index creation failed: %w", err)
		}
		c.log.Info("All indexes created", zap.Duration("duration", time.Since(indexStart).Round(time.Second)))
	}

	return stats, nil
}

// reportLiveProgress periodically logs class completion and sink rates
func (c *Coordinator) reportLiveProgress(ctx context.Context, tracker *ProgressTracker) {
	ticker := time.NewTicker(c.pipeCfg.ProgressInterval)
	defer ticker.Stop()

	var last [3]int64
	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			elapsed := now.Sub(lastTime).Seconds()

			var cur [3]int64
			var total int64
			fields := make([]zap.Field, 0, 8)
			for i, target := range loader.Targets {
				cur[i] = c.sunk[i].Load()
				total += cur[i]
				var rate float64
				if elapsed > 0 {
					rate = float64(cur[i]-last[i]) / elapsed
				}
				fields = append(fields, zap.Int64(target.Table, cur[i]), zap.String(target.Table+"_rate", FormatThroughput(rate)))
			}

			p := tracker.Calculate(c.extractor.Stats().Classes, total)
			fields = append(fields,
				zap.String("classes", fmt.Sprintf("%d/%d", p.Classes, p.Total)),
				zap.String("progress", fmt.Sprintf("%.1f%%", p.Percentage)),
				zap.String("eta", FormatETA(p.ETA)),
				zap.String("total_rate", FormatThroughput(p.Throughput)))
			c.log.Info("Progress", fields...)

			last = cur
			lastTime = now
		}
	}
}
