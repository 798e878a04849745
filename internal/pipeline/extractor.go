package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/vmap-go/internal/annotation"
	"github.com/wegman-software/vmap-go/internal/config"
	"github.com/wegman-software/vmap-go/internal/loader"
	"github.com/wegman-software/vmap-go/internal/logger"
	"github.com/wegman-software/vmap-go/internal/parquet"
	"github.com/wegman-software/vmap-go/internal/proj"
	"github.com/wegman-software/vmap-go/internal/style"
	"github.com/wegman-software/vmap-go/internal/vpf"
	"github.com/wegman-software/vmap-go/internal/wkb"
)

// HeightSource answers terrain height queries for point features
type HeightSource interface {
	HeightAboveMSL(pt orb.Point) (float64, bool)
}

var errEmptyGeometry = errors.New("empty geometry")

// Extractor builds the features of a coverage and streams them as records
type Extractor struct {
	cfg           *config.Config
	cov           *vpf.Coverage
	styles        *style.Config
	heights       HeightSource
	transformer   *proj.Transformer
	channelBuffer int
	log           *zap.Logger

	stats liveStats
}

// NewExtractor opens the coverage and style named by cfg. heights may be nil,
// in which case no elevation is attached.
func NewExtractor(cfg *config.Config, heights HeightSource, channelBuffer int) (*Extractor, error) {
	cov, err := vpf.OpenCoverage(cfg.CoveragePath)
	if err != nil {
		return nil, err
	}

	styles := style.DefaultConfig()
	if cfg.StyleFile != "" {
		styles, err = style.LoadConfig(cfg.StyleFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load style config: %w", err)
		}
	}

	transformer, err := proj.NewTransformer(proj.SRID4326, cfg.Projection)
	if err != nil {
		return nil, err
	}

	if channelBuffer <= 0 {
		channelBuffer = 10000
	}

	return &Extractor{
		cfg:           cfg,
		cov:           cov,
		styles:        styles,
		heights:       heights,
		transformer:   transformer,
		channelBuffer: channelBuffer,
		log:           logger.Named("extract"),
	}, nil
}

// Stats returns a snapshot of the extraction counters
func (e *Extractor) Stats() ExtractStats {
	return e.stats.snapshot()
}

// Classes returns the feature classes to build: the configured ones, or
// every class in the coverage schema.
func (e *Extractor) Classes() ([]string, error) {
	if len(e.cfg.Classes) > 0 {
		return e.cfg.Classes, nil
	}
	classes, err := e.cov.FeatureClasses()
	if err != nil {
		return nil, fmt.Errorf("failed to list feature classes: %w", err)
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("coverage %s has no feature classes", e.cov.Name)
	}
	return classes, nil
}

// Run starts building every class in the background and returns the record
// streams. The streams are closed once all classes are done; the error
// channel carries at most one error and is closed last.
func (e *Extractor) Run(ctx context.Context) (*FeatureStreams, error) {
	classes, err := e.Classes()
	if err != nil {
		return nil, err
	}

	points := make(chan parquet.Record, e.channelBuffer)
	lines := make(chan parquet.Record, e.channelBuffer)
	polygons := make(chan parquet.Record, e.channelBuffer)
	errCh := make(chan error, 1)

	out := map[loader.Target]chan<- parquet.Record{
		loader.PointTarget:   points,
		loader.LineTarget:    lines,
		loader.PolygonTarget: polygons,
	}

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	e.log.Info("Building feature classes",
		zap.String("coverage", e.cov.Name),
		zap.Int("classes", len(classes)),
		zap.Int("workers", workers))

	go func() {
		defer close(errCh)
		defer close(polygons)
		defer close(lines)
		defer close(points)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, class := range classes {
			g.Go(func() error {
				return e.extractClass(gctx, class, out)
			})
		}
		if err := g.Wait(); err != nil {
			errCh <- err
			return
		}

		s := e.stats.snapshot()
		e.log.Info("Extraction complete",
			zap.Int64("classes", s.Classes),
			zap.Int64("failed", s.Failed),
			zap.Int64("built", s.Built),
			zap.Int64("rejected", s.Rejected),
			zap.Int64("emitted", s.Emitted))
	}()

	return &FeatureStreams{
		Points:   points,
		Lines:    lines,
		Polygons: polygons,
		Errors:   errCh,
	}, nil
}

// extractClass builds one class and sends its records. A class that fails
// part way is logged and its partial features are still emitted; only
// cancellation stops the run.
func (e *Extractor) extractClass(ctx context.Context, class string, out map[loader.Target]chan<- parquet.Record) error {
	defer e.stats.classes.Add(1)

	res, err := annotation.NewBuilder(e.cov, class, e.styles.ForClass(class)).WithLogger(e.log).Build(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		e.stats.failed.Add(1)
		e.log.Warn("Feature class failed", zap.String("class", class), zap.Error(err))
		if res == nil {
			return nil
		}
	}

	e.stats.rows.Add(int64(res.Stats.Rows))
	e.stats.built.Add(int64(res.Stats.Built))
	e.stats.rejected.Add(int64(res.Stats.Rejected))
	e.stats.filtered.Add(int64(res.Stats.Filtered))

	target, ok := loader.TargetFor(res.Type.String())
	if !ok || len(res.Features) == 0 {
		return nil
	}

	features := e.selectFeatures(res)
	ch := out[target]
	enc := wkb.NewEncoderWithSRID(1024, e.cfg.Projection)

	for _, f := range features {
		rec, err := e.record(f, enc)
		if err != nil {
			e.stats.rejected.Add(1)
			e.log.Debug("Feature not encoded", zap.String("class", f.Class), zap.Int("id", f.ID), zap.Error(err))
			continue
		}
		select {
		case ch <- rec:
			e.stats.emitted.Add(1)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.log.Debug("Feature class built",
		zap.String("class", res.Class),
		zap.String("type", res.Type.String()),
		zap.Int("features", len(features)),
		zap.Int("tiles", res.Stats.Tiles))
	return nil
}

// selectFeatures applies the bbox filter through a spatial index, keeping
// feature table order
func (e *Extractor) selectFeatures(res *annotation.Result) []*annotation.Feature {
	if e.cfg.BBox == nil {
		return res.Features
	}
	features := annotation.NewIndex(res).Query(e.cfg.BBox.Bound())
	sort.Slice(features, func(i, j int) bool { return features[i].ID < features[j].ID })
	e.stats.outOfBBox.Add(int64(len(res.Features) - len(features)))
	return features
}

// record converts a feature to an output record. The geometry bytes are
// copied out of the encoder buffer.
func (e *Extractor) record(f *annotation.Feature, enc *wkb.Encoder) (parquet.Record, error) {
	rec := parquet.Record{
		Class:     f.Class,
		FeatureID: int64(f.ID),
		Tile:      int32(f.Tile),
		Type:      f.Type.String(),
		Attrs:     parquet.AttrsToJSON(f.Attrs),
		Label:     f.Label,
	}

	if e.heights != nil && (f.Type == annotation.Point || f.Type == annotation.Text) {
		if pt, ok := anchor(f.Geometry); ok {
			if h, ok := e.heights.HeightAboveMSL(pt); ok {
				rec.Elevation = &h
				e.stats.withHeight.Add(1)
			}
		}
	}

	b, err := enc.Encode(e.transformer.Geometry(f.Geometry))
	if err != nil {
		return rec, err
	}
	if b == nil {
		return rec, errEmptyGeometry
	}
	rec.Geom = append([]byte(nil), b...)
	return rec, nil
}

// anchor returns the lon/lat position a height is sampled at
func anchor(g orb.Geometry) (orb.Point, bool) {
	switch g := g.(type) {
	case orb.Point:
		return g, true
	case orb.MultiPoint:
		if len(g) > 0 {
			return g[0], true
		}
	}
	return orb.Point{}, false
}
