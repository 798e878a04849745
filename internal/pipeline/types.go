package pipeline

import (
	"sync/atomic"

	"github.com/wegman-software/vmap-go/internal/parquet"
)

// FeatureStreams holds the output channels of the extractor, one per
// target table
type FeatureStreams struct {
	Points   <-chan parquet.Record
	Lines    <-chan parquet.Record
	Polygons <-chan parquet.Record
	Errors   <-chan error
}

// ExtractStats holds extraction statistics summed over feature classes
type ExtractStats struct {
	Classes    int64 // classes finished, failed ones included
	Failed     int64 // classes stopped by an error
	Rows       int64
	Built      int64
	Rejected   int64
	Filtered   int64
	OutOfBBox  int64
	WithHeight int64
	Emitted    int64
}

// liveStats are the counters updated while builders run
type liveStats struct {
	classes    atomic.Int64
	failed     atomic.Int64
	rows       atomic.Int64
	built      atomic.Int64
	rejected   atomic.Int64
	filtered   atomic.Int64
	outOfBBox  atomic.Int64
	withHeight atomic.Int64
	emitted    atomic.Int64
}

func (s *liveStats) snapshot() ExtractStats {
	return ExtractStats{
		Classes:    s.classes.Load(),
		Failed:     s.failed.Load(),
		Rows:       s.rows.Load(),
		Built:      s.built.Load(),
		Rejected:   s.rejected.Load(),
		Filtered:   s.filtered.Load(),
		OutOfBBox:  s.outOfBBox.Load(),
		WithHeight: s.withHeight.Load(),
		Emitted:    s.emitted.Load(),
	}
}

// LoadStats holds loading statistics per table
type LoadStats struct {
	Table      string
	RowsLoaded int64
}

// BuildStats holds statistics of a Parquet build
type BuildStats struct {
	Extract ExtractStats
	Files   map[string]int64 // Parquet file name -> rows written
}

// ImportStats holds combined import statistics
type ImportStats struct {
	Extract    ExtractStats
	PointsLoad LoadStats
	LinesLoad  LoadStats
	PolysLoad  LoadStats
	TotalRows  int64
}
