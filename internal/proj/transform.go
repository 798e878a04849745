package proj

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// SRID constants for common projections
const (
	SRID4326 = 4326 // WGS84 (lat/lon)
	SRID3857 = 3857 // Web Mercator
)

// Transformer reprojects feature geometry from WGS84
type Transformer struct {
	SourceSRID int
	TargetSRID int

	fn orb.Projection
}

// NewTransformer creates a transformer from source to target SRID
func NewTransformer(sourceSRID, targetSRID int) (*Transformer, error) {
	if sourceSRID != SRID4326 {
		return nil, fmt.Errorf("unsupported source SRID: %d (only 4326 supported)", sourceSRID)
	}

	t := &Transformer{SourceSRID: sourceSRID, TargetSRID: targetSRID}
	switch targetSRID {
	case SRID4326:
	case SRID3857:
		t.fn = toWebMercator
	default:
		return nil, fmt.Errorf("unsupported target SRID: %d (only 4326 and 3857 supported)", targetSRID)
	}
	return t, nil
}

// NeedsTransform returns true if transformation is required
func (t *Transformer) NeedsTransform() bool {
	return t.fn != nil
}

// Point converts one lon/lat coordinate
func (t *Transformer) Point(p orb.Point) orb.Point {
	if t.fn == nil {
		return p
	}
	return t.fn(p)
}

// Geometry returns a reprojected copy of g; g itself is not modified
func (t *Transformer) Geometry(g orb.Geometry) orb.Geometry {
	if t.fn == nil || g == nil {
		return g
	}
	return project.Geometry(orb.Clone(g), t.fn)
}

// Mercator latitude limit; beyond it y diverges
const maxLat = 85.06

// toWebMercator clamps latitude before handing off to the spherical
// pseudo-Mercator projection.
func toWebMercator(p orb.Point) orb.Point {
	if p[1] > maxLat {
		p[1] = maxLat
	} else if p[1] < -maxLat {
		p[1] = -maxLat
	}
	return project.WGS84.ToMercator(p)
}

// ParseSRID parses a projection string to SRID
// Accepts: "4326", "3857", "EPSG:4326", "EPSG:3857"
func ParseSRID(s string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "4326", "EPSG:4326":
		return SRID4326, nil
	case "3857", "EPSG:3857":
		return SRID3857, nil
	default:
		return 0, fmt.Errorf("unsupported projection: %s (supported: 4326, 3857)", s)
	}
}
