package elevation

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// Factory opens sources on demand from a directory of cells
type Factory interface {
	Directory() string
	Kind() Kind
	// NewSource opens a source covering pt, or returns nil
	NewSource(pt orb.Point) Source
}

func floorInt(v float64) int {
	return int(math.Floor(v))
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// DtedFactory opens cells laid out as <dir>/<e|w>DDD/<n|s>DD.dt?
type DtedFactory struct {
	dir string
}

func NewDtedFactory(dir string) *DtedFactory {
	return &DtedFactory{dir: dir}
}

func (f *DtedFactory) Directory() string { return f.dir }
func (f *DtedFactory) Kind() Kind        { return KindDtedDirectory }

// NewSource prefers the finest level present
func (f *DtedFactory) NewSource(pt orb.Point) Source {
	for _, ext := range []string{"dt2", "dt1", "dt0"} {
		path := DtedCellPath(f.dir, pt[1], pt[0], ext)
		if !isFile(path) {
			continue
		}
		src, err := OpenDtedCell(path)
		if err != nil {
			continue
		}
		if src.PointHasCoverage(pt) {
			return src
		}
		src.Close()
	}
	return nil
}

// SrtmFactory opens cells named NDDWDDD.hgt[.gz] directly under a directory
type SrtmFactory struct {
	dir string
}

func NewSrtmFactory(dir string) *SrtmFactory {
	return &SrtmFactory{dir: dir}
}

func (f *SrtmFactory) Directory() string { return f.dir }
func (f *SrtmFactory) Kind() Kind        { return KindSrtmDirectory }

func (f *SrtmFactory) NewSource(pt orb.Point) Source {
	name := SrtmCellName(pt[1], pt[0])
	candidates := []string{name, strings.ToLower(name), name + ".gz", strings.ToLower(name) + ".gz"}
	for _, c := range candidates {
		path := filepath.Join(f.dir, c)
		if !isFile(path) {
			continue
		}
		src, err := OpenSrtmCell(path)
		if err != nil {
			continue
		}
		if src.PointHasCoverage(pt) {
			return src
		}
		src.Close()
	}
	return nil
}

// rasterEntry is an indexed general raster cell
type rasterEntry struct {
	path   string
	bounds orb.Bound
}

func (e *rasterEntry) Bounds() rtreego.Rect {
	return boundRect(e.bounds)
}

func boundRect(b orb.Bound) rtreego.Rect {
	const eps = 0.0001
	lonLen := b.Max[0] - b.Min[0]
	latLen := b.Max[1] - b.Min[1]
	if lonLen <= 0 {
		lonLen = eps
	}
	if latLen <= 0 {
		latLen = eps
	}
	rect, _ := rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{lonLen, latLen})
	return rect
}

// GeneralRasterFactory indexes the bounds of every .ras cell in a directory
type GeneralRasterFactory struct {
	dir   string
	tree  *rtreego.Rtree
	cells int
}

// NewGeneralRasterFactory scans dir for .ras cells with .omd sidecars.
// Cells whose metadata cannot be read are skipped.
func NewGeneralRasterFactory(dir string) (*GeneralRasterFactory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	f := &GeneralRasterFactory{dir: dir, tree: rtreego.NewTree(2, 25, 50)}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".ras") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info, err := readRasterInfo(path)
		if err != nil {
			continue
		}
		grid := postGrid{
			lines:      info.lines,
			samples:    info.samples,
			north:      info.north,
			west:       info.west,
			latSpacing: info.latSpacing,
			lonSpacing: info.lonSpacing,
		}
		f.tree.Insert(&rasterEntry{path: path, bounds: grid.bounds()})
		f.cells++
	}
	return f, nil
}

func (f *GeneralRasterFactory) Directory() string { return f.dir }
func (f *GeneralRasterFactory) Kind() Kind        { return KindGeneralRasterDirectory }

// Len returns the number of indexed cells
func (f *GeneralRasterFactory) Len() int { return f.cells }

func (f *GeneralRasterFactory) NewSource(pt orb.Point) Source {
	query := boundRect(orb.Bound{Min: pt, Max: pt})
	for _, item := range f.tree.SearchIntersect(query) {
		entry, ok := item.(*rasterEntry)
		if !ok || !entry.bounds.Contains(pt) {
			continue
		}
		src, err := OpenGeneralRasterCell(entry.path)
		if err != nil {
			continue
		}
		return src
	}
	return nil
}
