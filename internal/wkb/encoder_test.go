package wkb

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
)

func TestEncodeHeader(t *testing.T) {
	tests := []struct {
		name     string
		geom     orb.Geometry
		srid     int
		wantType uint32
	}{
		{"point", orb.Point{1, 2}, SRID4326, 1},
		{"linestring", orb.LineString{{0, 0}, {1, 1}}, SRID4326, 2},
		{"polygon", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, SRID3857, 3},
		{"multipoint", orb.MultiPoint{{0, 0}, {1, 1}}, SRID4326, 4},
		{"multipolygon", orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}, SRID4326, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := NewEncoderWithSRID(64, tt.srid).Encode(tt.geom)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			if data[0] != 0x01 {
				t.Errorf("byte order = %#x, want little-endian", data[0])
			}
			if got := binary.LittleEndian.Uint32(data[1:5]); got != tt.wantType|0x20000000 {
				t.Errorf("type = %#x, want %#x with SRID flag", got, tt.wantType)
			}
			if got := binary.LittleEndian.Uint32(data[5:9]); got != uint32(tt.srid) {
				t.Errorf("SRID = %d, want %d", got, tt.srid)
			}
		})
	}
}

func TestEncodePolygonWithHoles(t *testing.T) {
	poly := orb.Polygon{
		{{0, 0}, {0, 1}, {1, 1}, {1, 0}, {0, 0}},
		{{0.2, 0.2}, {0.8, 0.2}, {0.8, 0.8}, {0.2, 0.8}, {0.2, 0.2}},
	}

	data, err := NewEncoder(128).Encode(poly)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	got, srid, err := ewkb.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if srid != SRID4326 {
		t.Errorf("SRID = %d, want 4326", srid)
	}
	if diff := cmp.Diff(poly, got); diff != "" {
		t.Errorf("polygon mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeEmpty(t *testing.T) {
	e := NewEncoder(16)
	for _, g := range []orb.Geometry{nil, orb.LineString{}, orb.Polygon{}, orb.MultiPolygon{}} {
		data, err := e.Encode(g)
		if err != nil || data != nil {
			t.Errorf("Encode(%v) = %v, %v; want nil, nil", g, data, err)
		}
	}

	if _, err := e.Encode(orb.Collection{orb.Point{1, 1}}); err == nil {
		t.Error("Encode(collection) succeeded")
	}
}

func TestEncoderReuse(t *testing.T) {
	e := NewEncoder(8)
	first, err := e.EncodePoint(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	saved := append([]byte(nil), first...)

	if _, err := e.Encode(orb.LineString{{0, 0}, {5, 5}}); err != nil {
		t.Fatal(err)
	}
	again, err := e.EncodePoint(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(saved, again); diff != "" {
		t.Errorf("reused encoder output differs (-want +got):\n%s", diff)
	}
}
