package annotation

import (
	"strings"

	"github.com/paulmach/orb"

	"github.com/wegman-software/vmap-go/internal/vpf"
)

// FeatureType is the geometric kind of a feature class
type FeatureType int

const (
	Unknown FeatureType = iota
	Point
	Line
	Polygon
	Text
)

func (t FeatureType) String() string {
	switch t {
	case Point:
		return "point"
	case Line:
		return "line"
	case Polygon:
		return "polygon"
	case Text:
		return "text"
	}
	return "unknown"
}

// TypeForPrimitive resolves the feature type from a primitive table name
func TypeForPrimitive(prim string) FeatureType {
	prim = strings.ToLower(prim)
	switch {
	case strings.Contains(prim, vpf.PrimEdge):
		return Line
	case strings.Contains(prim, vpf.PrimText):
		return Text
	case strings.Contains(prim, vpf.PrimFace):
		return Polygon
	case strings.Contains(prim, vpf.PrimConnNode),
		strings.Contains(prim, vpf.PrimEntityNode),
		strings.Contains(prim, vpf.PrimEntNode):
		return Point
	}
	return Unknown
}

// Feature is one built feature of a class
type Feature struct {
	Class    string
	ID       int // one-based feature table row
	Type     FeatureType
	Tile     int
	Geometry orb.Geometry
	Attrs    map[string]string
	Label    string // text features only
}

// Bound returns the geometry's bounding box
func (f *Feature) Bound() orb.Bound {
	return f.Geometry.Bound()
}

// Stats counts what happened while building a class
type Stats struct {
	Rows     int
	Built    int
	Rejected int
	Filtered int
	Tiles    int
}

// Result holds the features of one class
type Result struct {
	Class    string
	Type     FeatureType
	Features []*Feature
	Stats    Stats
}
