package topology

import (
	"github.com/paulmach/orb"
)

// Edge is one row of an edge primitive table
type Edge struct {
	ID          int
	StartNode   int
	EndNode     int
	LeftFace    int
	RightFace   int
	LeftEdge    int
	RightEdge   int
	Coordinates []orb.Point // lon, lat
}

// Dangling reports whether the same face lies on both sides of the edge
func (e Edge) Dangling() bool {
	return e.LeftFace == e.RightFace
}

// EdgeReader fetches edges by id
type EdgeReader interface {
	ReadEdge(id int) (Edge, error)
}

// DirectedEdge is an edge of a ring. Forward edges have the ring's face on
// their right and contribute points in stored order; the others are reversed.
type DirectedEdge struct {
	ID      int
	Forward bool
}

// Ring is an ordered boundary of one face
type Ring struct {
	Face  int
	Edges []DirectedEdge
}

// BuildRing walks the winged-edge topology from startEdge around face until
// the boundary closes on its first node.
func BuildRing(face, startEdge int, edges EdgeReader) (Ring, error) {
	start, err := edges.ReadEdge(startEdge)
	if err != nil {
		return Ring{}, err
	}

	if start.StartNode == start.EndNode {
		return Ring{Face: face, Edges: []DirectedEdge{{ID: start.ID, Forward: start.RightFace == face}}}, nil
	}

	if start.Dangling() {
		if start.LeftEdge == start.RightEdge {
			return Ring{}, reject(face, start.ID, ErrFloatingLine, "left and right edge are both %d", start.LeftEdge)
		}
		start, err = leaveDanglingStart(face, start, edges)
		if err != nil {
			return Ring{}, err
		}
	}

	var next, firstNode, lastNode int
	switch {
	case start.RightFace == face:
		next, firstNode, lastNode = start.RightEdge, start.StartNode, start.EndNode
	case start.LeftFace == face:
		next, firstNode, lastNode = start.LeftEdge, start.EndNode, start.StartNode
	default:
		return Ring{}, reject(face, start.ID, ErrFaceNotOnEdge, "edge faces are %d/%d", start.LeftFace, start.RightFace)
	}

	ring := Ring{Face: face, Edges: []DirectedEdge{{ID: start.ID, Forward: start.RightFace == face}}}
	visited := map[int]bool{start.ID: true}
	prev := start

	for {
		cur, err := edges.ReadEdge(next)
		if err != nil {
			return Ring{}, err
		}

		if cur.Dangling() {
			cur, err = skipDangling(face, prev, cur, edges)
			if err != nil {
				return Ring{}, err
			}
		}

		if visited[cur.ID] {
			return Ring{}, reject(face, cur.ID, ErrRingNotClosed, "edge revisited after %d edges", len(ring.Edges))
		}
		visited[cur.ID] = true
		ring.Edges = append(ring.Edges, DirectedEdge{ID: cur.ID, Forward: cur.RightFace == face})

		var lastEnd int
		switch {
		case cur.RightFace == face:
			if lastNode != cur.StartNode {
				return Ring{}, reject(face, cur.ID, ErrBadFace, "node %d does not meet start node %d", lastNode, cur.StartNode)
			}
			lastEnd = cur.EndNode
		case cur.LeftFace == face:
			if lastNode != cur.EndNode {
				return Ring{}, reject(face, cur.ID, ErrBadFace, "node %d does not meet end node %d", lastNode, cur.EndNode)
			}
			lastEnd = cur.StartNode
		default:
			return Ring{}, reject(face, cur.ID, ErrBadFace, "edge faces are %d/%d", cur.LeftFace, cur.RightFace)
		}

		if lastEnd == firstNode {
			return ring, nil
		}

		prev = cur
		if cur.RightFace == face {
			next, lastNode = cur.RightEdge, cur.EndNode
		} else {
			next, lastNode = cur.LeftEdge, cur.StartNode
		}
	}
}

// leaveDanglingStart follows right edges (then left edges once a right edge
// loops back on itself) from a dangling start edge until it reaches an edge
// that separates two faces.
func leaveDanglingStart(face int, start Edge, edges EdgeReader) (Edge, error) {
	visited := map[int]bool{start.ID: true}
	goingRight := true
	cur := start

	for cur.Dangling() {
		var next int
		if goingRight {
			next = cur.RightEdge
			if next == cur.ID {
				goingRight = false
				continue
			}
		} else {
			next = cur.LeftEdge
			if next == cur.ID {
				return Edge{}, reject(face, cur.ID, ErrFloatingLine, "multiple floating lines")
			}
		}

		if visited[next] {
			return Edge{}, reject(face, next, ErrMobiusFace, "dangling chain from edge %d returns to itself", start.ID)
		}
		visited[next] = true

		e, err := edges.ReadEdge(next)
		if err != nil {
			return Edge{}, err
		}
		cur = e
	}
	return cur, nil
}

// skipDangling resolves dangling edges met mid-ring by pivoting on the node
// where prev ends along the face.
func skipDangling(face int, prev, cur Edge, edges EdgeReader) (Edge, error) {
	pivot := prev.StartNode
	if prev.RightFace == face {
		pivot = prev.EndNode
	}

	seen := make(map[int]bool)
	for cur.Dangling() {
		seen[cur.ID] = true

		var next int
		switch pivot {
		case cur.StartNode:
			next = cur.LeftEdge
		case cur.EndNode:
			next = cur.RightEdge
		default:
			return Edge{}, reject(face, cur.ID, ErrBadFace, "dangling edge does not touch node %d", pivot)
		}

		if next == prev.ID || seen[next] {
			return Edge{}, reject(face, next, ErrBadFace, "dangling edges loop back")
		}

		e, err := edges.ReadEdge(next)
		if err != nil {
			return Edge{}, err
		}
		cur = e
	}
	return cur, nil
}

// Points converts a ring to coordinates. Forward edges keep their point order,
// the others are reversed; points outside lon [-180, 180] or lat [-90, 90]
// are dropped.
func Points(ring Ring, edges EdgeReader) (orb.Ring, error) {
	var pts orb.Ring
	for _, de := range ring.Edges {
		e, err := edges.ReadEdge(de.ID)
		if err != nil {
			return nil, err
		}

		n := len(e.Coordinates)
		for i := 0; i < n; i++ {
			p := e.Coordinates[i]
			if !de.Forward {
				p = e.Coordinates[n-1-i]
			}
			if !ValidLonLat(p) {
				continue
			}
			pts = append(pts, p)
		}
	}
	return pts, nil
}

// ValidLonLat reports whether a point is within geographic bounds
func ValidLonLat(p orb.Point) bool {
	return p[0] >= -180 && p[0] <= 180 && p[1] >= -90 && p[1] <= 90
}
