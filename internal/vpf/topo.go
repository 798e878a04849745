package vpf

import (
	"fmt"

	"github.com/wegman-software/vmap-go/internal/topology"
)

func requireColumns(t *Table, names ...string) ([]int, error) {
	pos := make([]int, len(names))
	for i, n := range names {
		pos[i] = t.ColumnPosition(n)
		if pos[i] < 0 {
			return nil, &TableError{Path: t.Path(), Reason: fmt.Sprintf("no column %q", n)}
		}
	}
	return pos, nil
}

func rowInt(row Row, pos int) int {
	n, _ := row.Int(pos)
	return n
}

// EdgeTable reads topology edges from an edge primitive table
type EdgeTable struct {
	t   *Table
	pos []int
}

// NewEdgeTable resolves the edge table's columns
func NewEdgeTable(t *Table) (*EdgeTable, error) {
	pos, err := requireColumns(t, "start_node", "end_node", "left_face", "right_face", "left_edge", "right_edge", "coordinates")
	if err != nil {
		return nil, err
	}
	return &EdgeTable{t: t, pos: pos}, nil
}

// ReadEdge reads the edge with the given id (its row number)
func (e *EdgeTable) ReadEdge(id int) (topology.Edge, error) {
	row, err := e.t.ReadRow(id)
	if err != nil {
		return topology.Edge{}, err
	}
	return topology.Edge{
		ID:          id,
		StartNode:   rowInt(row, e.pos[0]),
		EndNode:     rowInt(row, e.pos[1]),
		LeftFace:    rowInt(row, e.pos[2]),
		RightFace:   rowInt(row, e.pos[3]),
		LeftEdge:    rowInt(row, e.pos[4]),
		RightEdge:   rowInt(row, e.pos[5]),
		Coordinates: row.Coordinates(e.pos[6]),
	}, nil
}

// FaceTable reads ring pointers from a face primitive table
type FaceTable struct {
	t       *Table
	ringPtr int
}

// NewFaceTable resolves the face table's columns
func NewFaceTable(t *Table) (*FaceTable, error) {
	pos, err := requireColumns(t, "ring_ptr")
	if err != nil {
		return nil, err
	}
	return &FaceTable{t: t, ringPtr: pos[0]}, nil
}

// NumFaces returns the number of face rows
func (f *FaceTable) NumFaces() int {
	return f.t.NumRows()
}

// RingPointer returns the first ring row of a face
func (f *FaceTable) RingPointer(face int) (int, error) {
	row, err := f.t.ReadRow(face)
	if err != nil {
		return 0, err
	}
	return rowInt(row, f.ringPtr), nil
}

// RingTable reads ring rows
type RingTable struct {
	t   *Table
	pos []int
}

// NewRingTable resolves the ring table's columns
func NewRingTable(t *Table) (*RingTable, error) {
	pos, err := requireColumns(t, "face_id", "start_edge")
	if err != nil {
		return nil, err
	}
	return &RingTable{t: t, pos: pos}, nil
}

// NumRings returns the number of ring rows
func (r *RingTable) NumRings() int {
	return r.t.NumRows()
}

// ReadRing reads a ring row
func (r *RingTable) ReadRing(id int) (topology.RingRow, error) {
	row, err := r.t.ReadRow(id)
	if err != nil {
		return topology.RingRow{}, err
	}
	return topology.RingRow{
		ID:        id,
		Face:      rowInt(row, r.pos[0]),
		StartEdge: rowInt(row, r.pos[1]),
	}, nil
}
