package annotation

import (
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// minExtent pads degenerate bounds (points, axis-aligned lines) so they can
// be stored as rectangles.
const minExtent = 1e-9

type indexEntry struct {
	f    *Feature
	rect rtreego.Rect
}

func (e *indexEntry) Bounds() rtreego.Rect {
	return e.rect
}

// Index is a spatial index over built features
type Index struct {
	tree *rtreego.Rtree
}

// NewIndex indexes the features of one or more results
func NewIndex(results ...*Result) *Index {
	idx := &Index{tree: rtreego.NewTree(2, 25, 50)}
	for _, r := range results {
		for _, f := range r.Features {
			idx.Insert(f)
		}
	}
	return idx
}

// Insert adds a feature. Features without a usable bound are ignored.
func (idx *Index) Insert(f *Feature) {
	rect, ok := boundRect(f.Bound())
	if !ok {
		return
	}
	idx.tree.Insert(&indexEntry{f: f, rect: rect})
}

// Len returns the number of indexed features
func (idx *Index) Len() int {
	return idx.tree.Size()
}

// Query returns the features whose bounds intersect b
func (idx *Index) Query(b orb.Bound) []*Feature {
	rect, ok := boundRect(b)
	if !ok {
		return nil
	}
	hits := idx.tree.SearchIntersect(rect)
	out := make([]*Feature, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*indexEntry).f)
	}
	return out
}

func boundRect(b orb.Bound) (rtreego.Rect, bool) {
	w := b.Max[0] - b.Min[0]
	h := b.Max[1] - b.Min[1]
	if w < 0 || h < 0 {
		return rtreego.Rect{}, false
	}
	rect, err := rtreego.NewRect(
		rtreego.Point{b.Min[0], b.Min[1]},
		[]float64{w + minExtent, h + minExtent},
	)
	if err != nil {
		return rtreego.Rect{}, false
	}
	return rect, true
}
