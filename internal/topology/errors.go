package topology

import (
	"errors"
	"fmt"
)

// Rejection kinds. A RejectError wraps exactly one of these.
var (
	// ErrFloatingLine is an edge with the same face on both sides and no
	// way to continue along the face boundary.
	ErrFloatingLine = errors.New("floating line")
	// ErrMobiusFace is a chain of dangling edges that returns to itself.
	ErrMobiusFace = errors.New("mobius face")
	// ErrFaceNotOnEdge means the start edge does not border the face.
	ErrFaceNotOnEdge = errors.New("face not on start edge")
	// ErrBadFace covers broken node continuity and unresolvable dangling edges.
	ErrBadFace = errors.New("bad face")
	// ErrRingNotClosed means the walk revisited an edge before closing.
	ErrRingNotClosed = errors.New("ring does not close")
	// ErrFaceOutOfRange is a face id beyond the face table.
	ErrFaceOutOfRange = errors.New("face id out of range")
	// ErrNoRing is a face without a usable ring row.
	ErrNoRing = errors.New("face has no ring")
	// ErrRingFaceMismatch is a ring row that belongs to a different face.
	ErrRingFaceMismatch = errors.New("ring belongs to another face")
	// ErrHoleSharesStartEdge is a hole whose start edge is the outer ring's.
	ErrHoleSharesStartEdge = errors.New("hole shares outer start edge")
)

// RejectError describes a face or ring that could not be reconstructed
type RejectError struct {
	Face   int
	Edge   int
	Kind   error
	Reason string
}

func (e *RejectError) Error() string {
	msg := fmt.Sprintf("face %d", e.Face)
	if e.Edge != 0 {
		msg += fmt.Sprintf(" edge %d", e.Edge)
	}
	msg += ": " + e.Kind.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *RejectError) Unwrap() error {
	return e.Kind
}

func reject(face, edge int, kind error, format string, args ...any) *RejectError {
	return &RejectError{Face: face, Edge: edge, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}
