package topology

import (
	"errors"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// RingRow is one row of a ring table
type RingRow struct {
	ID        int
	Face      int
	StartEdge int
}

// FaceReader resolves a face id to its first ring row
type FaceReader interface {
	NumFaces() int
	RingPointer(face int) (int, error)
}

// RingReader reads ring table rows by one-based row id
type RingReader interface {
	NumRings() int
	ReadRing(id int) (RingRow, error)
}

// Polygon is a face reconstructed as an outer ring with holes
type Polygon struct {
	Face          int
	Outer         Ring
	Holes         []Ring
	Geometry      orb.Polygon
	RejectedHoles []*RejectError
}

// Assembler builds polygons from the face, ring and edge tables of one
// coverage or tile. It is not safe for concurrent use when the readers aren't.
type Assembler struct {
	Faces FaceReader
	Rings RingReader
	Edges EdgeReader
	Log   *zap.Logger
}

// BuildPolygon reconstructs a face. Rejected holes are recorded on the
// polygon; a face whose outer ring cannot be built returns a *RejectError.
func (a *Assembler) BuildPolygon(face int) (*Polygon, error) {
	log := a.Log
	if log == nil {
		log = zap.NewNop()
	}

	if face < 1 || face > a.Faces.NumFaces() {
		return nil, reject(face, 0, ErrFaceOutOfRange, "face table has %d rows", a.Faces.NumFaces())
	}

	ringID, err := a.Faces.RingPointer(face)
	if err != nil {
		return nil, err
	}
	if ringID < 1 || ringID > a.Rings.NumRings() {
		return nil, reject(face, 0, ErrNoRing, "ring pointer %d", ringID)
	}

	outerRow, err := a.Rings.ReadRing(ringID)
	if err != nil {
		return nil, err
	}
	if outerRow.Face != face {
		return nil, reject(face, outerRow.StartEdge, ErrRingFaceMismatch, "ring %d belongs to face %d", ringID, outerRow.Face)
	}
	if outerRow.StartEdge <= 0 {
		return nil, reject(face, 0, ErrNoRing, "ring %d has no start edge", ringID)
	}

	outer, err := BuildRing(face, outerRow.StartEdge, a.Edges)
	if err != nil {
		return nil, err
	}
	outerPts, err := Points(outer, a.Edges)
	if err != nil {
		return nil, err
	}

	poly := &Polygon{
		Face:     face,
		Outer:    outer,
		Geometry: orb.Polygon{outerPts},
	}

	for id := ringID + 1; id <= a.Rings.NumRings(); id++ {
		row, err := a.Rings.ReadRing(id)
		if err != nil {
			return nil, err
		}
		if row.Face != face {
			break
		}

		if row.StartEdge == outerRow.StartEdge {
			rej := reject(face, row.StartEdge, ErrHoleSharesStartEdge, "ring %d", id)
			poly.RejectedHoles = append(poly.RejectedHoles, rej)
			log.Debug("Hole rejected", zap.Int("face", face), zap.Int("ring", id), zap.Error(rej))
			continue
		}
		if row.StartEdge <= 0 {
			continue
		}

		hole, err := BuildRing(face, row.StartEdge, a.Edges)
		if err != nil {
			var rej *RejectError
			if !errors.As(err, &rej) {
				return nil, err
			}
			poly.RejectedHoles = append(poly.RejectedHoles, rej)
			log.Debug("Hole rejected", zap.Int("face", face), zap.Int("ring", id), zap.Error(rej))
			continue
		}

		pts, err := Points(hole, a.Edges)
		if err != nil {
			return nil, err
		}
		if len(pts) == 0 {
			continue
		}
		poly.Holes = append(poly.Holes, hole)
		poly.Geometry = append(poly.Geometry, pts)
	}

	return poly, nil
}
