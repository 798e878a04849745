package wkb

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
)

// Common SRID constants
const (
	SRID4326 = 4326 // WGS84
	SRID3857 = 3857 // Web Mercator
)

// Encoder encodes feature geometry as little-endian EWKB carrying an SRID.
// The returned slices alias an internal buffer that is reused by the next
// call; copy them if they must outlive it.
type Encoder struct {
	buf  bytes.Buffer
	enc  *ewkb.Encoder
	srid int
}

// NewEncoder creates an encoder with default SRID 4326
func NewEncoder(initialSize int) *Encoder {
	return NewEncoderWithSRID(initialSize, SRID4326)
}

// NewEncoderWithSRID creates an encoder with specified SRID
func NewEncoderWithSRID(initialSize int, srid int) *Encoder {
	e := &Encoder{srid: srid}
	e.buf.Grow(initialSize)
	e.enc = ewkb.NewEncoder(&e.buf).SetByteOrder(binary.LittleEndian).SetSRID(srid)
	return e
}

// SRID returns the encoder's current SRID
func (e *Encoder) SRID() int {
	return e.srid
}

// Encode encodes a point, multipoint, linestring, polygon (holes included)
// or multipolygon. Empty geometry encodes to nil.
func (e *Encoder) Encode(geom orb.Geometry) ([]byte, error) {
	e.buf.Reset()
	switch g := geom.(type) {
	case orb.Point, orb.MultiPoint, orb.LineString, orb.MultiLineString, orb.Polygon, orb.MultiPolygon:
		if isEmpty(g) {
			return nil, nil
		}
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("wkb: unsupported geometry %s", geom.GeoJSONType())
	}

	if err := e.enc.Encode(geom); err != nil {
		return nil, fmt.Errorf("wkb: %w", err)
	}
	return e.buf.Bytes(), nil
}

// EncodePoint encodes a lon/lat point
func (e *Encoder) EncodePoint(lon, lat float64) ([]byte, error) {
	return e.Encode(orb.Point{lon, lat})
}

func isEmpty(g orb.Geometry) bool {
	switch g := g.(type) {
	case orb.MultiPoint:
		return len(g) == 0
	case orb.LineString:
		return len(g) == 0
	case orb.MultiLineString:
		return len(g) == 0
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) == 0
	case orb.MultiPolygon:
		return len(g) == 0
	}
	return false
}
