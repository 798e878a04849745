package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/vmap-go/internal/config"
	"github.com/wegman-software/vmap-go/internal/logger"
	"github.com/wegman-software/vmap-go/internal/parquet"
)

// Target pairs an output table with its intermediate Parquet file
type Target struct {
	Table string
	File  string
}

// Output targets. Text features are stored with points and carry a label.
var (
	PointTarget   = Target{Table: "vmap_point", File: "points.parquet"}
	LineTarget    = Target{Table: "vmap_line", File: "lines.parquet"}
	PolygonTarget = Target{Table: "vmap_polygon", File: "polygons.parquet"}

	Targets = []Target{PointTarget, LineTarget, PolygonTarget}
)

// TargetFor returns the target for a feature type name
func TargetFor(featureType string) (Target, bool) {
	switch featureType {
	case "point", "text":
		return PointTarget, true
	case "line":
		return LineTarget, true
	case "polygon":
		return PolygonTarget, true
	}
	return Target{}, false
}

// copyColumns are the table columns filled by COPY, in record order
var copyColumns = []string{"feature_class", "feature_id", "tile_id", "feature_type", "attrs", "label", "elevation_msl", "geom"}

// TableSQL returns the CREATE TABLE statement for a feature table
func TableSQL(schema, table string, srid int) string {
	if srid == 0 {
		srid = 4326
	}
	return fmt.Sprintf(`
		CREATE UNLOGGED TABLE IF NOT EXISTS %s (
			feature_class TEXT NOT NULL,
			feature_id BIGINT NOT NULL,
			tile_id INTEGER NOT NULL,
			feature_type TEXT NOT NULL,
			attrs JSONB,
			label TEXT,
			elevation_msl DOUBLE PRECISION,
			geom GEOMETRY(Geometry, %d)
		)
	`, pgx.Identifier{schema, table}.Sanitize(), srid)
}

// recordRow converts a record to COPY values. PostGIS accepts EWKB bytes
// for geometry columns directly.
func recordRow(r parquet.Record) []any {
	var label any
	if r.Label != "" {
		label = r.Label
	}
	var elev any
	if r.Elevation != nil {
		elev = *r.Elevation
	}
	return []any{r.Class, r.FeatureID, r.Tile, r.Type, r.Attrs, label, elev, r.Geom}
}

// Stats holds loader statistics
type Stats struct {
	RowsLoaded int64
}

// Loader loads feature records into PostgreSQL
type Loader struct {
	cfg  *config.Config
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New connects to PostgreSQL
func New(ctx context.Context, cfg *config.Config) (*Loader, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// one connection per table plus one for setup
	maxConns := cfg.Workers
	if maxConns < len(Targets)+1 {
		maxConns = len(Targets) + 1
	}
	poolConfig.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &Loader{cfg: cfg, pool: pool, log: logger.Named("loader")}, nil
}

// Close closes connections
func (l *Loader) Close() error {
	l.pool.Close()
	return nil
}

// EnsureSchema creates the PostGIS extension and schema if needed
func (l *Loader) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}
	if l.cfg.DBSchema != "public" {
		if _, err := l.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{l.cfg.DBSchema}.Sanitize()); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func (l *Loader) fullName(table string) string {
	return pgx.Identifier{l.cfg.DBSchema, table}.Sanitize()
}

// PrepareTable creates the table, dropping or truncating an existing one
func (l *Loader) PrepareTable(ctx context.Context, table string) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if l.cfg.DropExisting {
		if _, err := conn.Exec(ctx, "DROP TABLE IF EXISTS "+l.fullName(table)+" CASCADE"); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	if _, err := conn.Exec(ctx, TableSQL(l.cfg.DBSchema, table, l.cfg.Projection)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if !l.cfg.DropExisting {
		if _, err := conn.Exec(ctx, "TRUNCATE "+l.fullName(table)); err != nil {
			return fmt.Errorf("failed to truncate table: %w", err)
		}
	}
	return nil
}

// CopyStream COPYs records from a channel into a table until the channel is
// closed. counter, when non-nil, tracks rows handed to COPY.
func (l *Loader) CopyStream(ctx context.Context, table string, records <-chan parquet.Record, counter *atomic.Int64) (int64, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	n, err := conn.Conn().CopyFrom(ctx, pgx.Identifier{l.cfg.DBSchema, table}, copyColumns, &recordSource{ctx: ctx, records: records, counter: counter})
	if err != nil {
		return 0, fmt.Errorf("COPY into %s failed: %w", table, err)
	}

	if _, err := conn.Exec(ctx, "ALTER TABLE "+l.fullName(table)+" SET LOGGED"); err != nil {
		l.log.Debug("SET LOGGED failed", zap.String("table", table), zap.Error(err))
	}
	return n, nil
}

// LoadParquet COPYs one feature Parquet file into a table
func (l *Loader) LoadParquet(ctx context.Context, table, path string) (int64, error) {
	records := make(chan parquet.Record, 1024)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(records)
		_, err := parquet.ReadFeatures(gctx, path, func(r parquet.Record) error {
			r.Geom = append([]byte(nil), r.Geom...)
			select {
			case records <- r:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		return err
	})

	var count int64
	g.Go(func() error {
		n, err := l.CopyStream(gctx, table, records, nil)
		count = n
		return err
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return count, nil
}

// CreateIndexes creates the spatial and id indexes on a table
func (l *Loader) CreateIndexes(ctx context.Context, table string) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SET maintenance_work_mem = '1GB'"); err != nil {
		l.log.Debug("maintenance_work_mem not set", zap.Error(err))
	}

	full := l.fullName(table)
	stmts := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)", pgx.Identifier{table + "_geom_idx"}.Sanitize(), full),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (feature_class, feature_id)", pgx.Identifier{table + "_feature_idx"}.Sanitize(), full),
		"ANALYZE " + full,
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("index %s: %w", table, err)
		}
	}
	return nil
}

// Run loads every Parquet file present in the output directory, tables in
// parallel, then indexes them.
func (l *Loader) Run(ctx context.Context) (*Stats, error) {
	if err := l.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	var present []Target
	for _, t := range Targets {
		if _, err := os.Stat(filepath.Join(l.cfg.OutputDir, t.File)); errors.Is(err, os.ErrNotExist) {
			l.log.Debug("Skipping table (no source file)", zap.String("table", t.Table))
			continue
		}
		present = append(present, t)
	}

	stats := &Stats{}
	var total atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range present {
		g.Go(func() error {
			if err := l.PrepareTable(gctx, t.Table); err != nil {
				return err
			}
			l.log.Info("Loading table", zap.String("table", t.Table))
			n, err := l.LoadParquet(gctx, t.Table, filepath.Join(l.cfg.OutputDir, t.File))
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", t.Table, err)
			}
			total.Add(n)
			l.log.Info("Table loaded", zap.String("table", t.Table), zap.Int64("rows", n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stats.RowsLoaded = total.Load()

	if l.cfg.CreateIndexes && len(present) > 0 {
		l.log.Info("Creating indexes in parallel", zap.Int("tables", len(present)))
		g, gctx := errgroup.WithContext(ctx)
		for _, t := range present {
			g.Go(func() error { return l.CreateIndexes(gctx, t.Table) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		l.log.Info("All indexes created")
	}

	return stats, nil
}

// recordSource implements pgx.CopyFromSource over a record channel
type recordSource struct {
	ctx     context.Context
	records <-chan parquet.Record
	counter *atomic.Int64
	current []any
	err     error
}

func (s *recordSource) Next() bool {
	select {
	case r, ok := <-s.records:
		if !ok {
			return false
		}
		s.current = recordRow(r)
		if s.counter != nil {
			s.counter.Add(1)
		}
		return true
	case <-s.ctx.Done():
		s.err = s.ctx.Err()
		return false
	}
}

func (s *recordSource) Values() ([]any, error) {
	return s.current, nil
}

func (s *recordSource) Err() error {
	return s.err
}
