package elevation

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/paulmach/orb"
)

// Kind identifies a source or factory type, as written in saved state
type Kind int

const (
	KindUnknown Kind = iota
	KindDtedCell
	KindSrtmCell
	KindGeneralRasterCell
	KindDtedDirectory
	KindSrtmDirectory
	KindGeneralRasterDirectory
)

var kindNames = map[Kind]string{
	KindDtedCell:               "dted_cell",
	KindSrtmCell:               "srtm_cell",
	KindGeneralRasterCell:      "general_raster_cell",
	KindDtedDirectory:          "dted_directory",
	KindSrtmDirectory:          "srtm_directory",
	KindGeneralRasterDirectory: "general_raster_directory",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind parses a saved-state type name
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindUnknown, false
}

// Source is an open elevation cell. Close releases the file mapping; the
// next height query reopens it.
type Source interface {
	Filename() string
	Kind() Kind
	Bounds() orb.Bound
	PointHasCoverage(pt orb.Point) bool
	HeightAboveMSL(pt orb.Point) (float64, bool)
	MinHeight() float64
	MaxHeight() float64
	NullHeight() float64
	MeanSpacingMeters() float64
	// AccuracyCE90 and AccuracyLE90 are the absolute horizontal and
	// vertical accuracy in meters at 90% confidence; zero when unknown.
	AccuracyCE90() float64
	AccuracyLE90() float64
	Close() error
}

const metersPerDegree = 111319.490793

// postGrid locates regularly spaced posts. Post (0, 0) is the north-west
// corner; lines increase southward, samples eastward.
type postGrid struct {
	lines, samples int
	north, west    float64
	latSpacing     float64
	lonSpacing     float64
}

func (g postGrid) bounds() orb.Bound {
	south := g.north - float64(g.lines-1)*g.latSpacing
	east := g.west + float64(g.samples-1)*g.lonSpacing
	return orb.Bound{Min: orb.Point{g.west, south}, Max: orb.Point{east, g.north}}
}

func (g postGrid) meanSpacingMeters() float64 {
	center := g.bounds().Center()
	lon := g.lonSpacing * math.Cos(center[1]*math.Pi/180)
	return (g.latSpacing + lon) / 2 * metersPerDegree
}

// locate returns pt's fractional post position, tolerating rounding at
// the cell edges.
func (g postGrid) locate(pt orb.Point) (line, samp float64, ok bool) {
	const eps = 1e-9
	line = (g.north - pt[1]) / g.latSpacing
	samp = (pt[0] - g.west) / g.lonSpacing
	if line < -eps || samp < -eps || line > float64(g.lines-1)+eps || samp > float64(g.samples-1)+eps {
		return 0, 0, false
	}
	return line, samp, true
}

// interpolate returns a bilinear height from the four surrounding posts,
// reweighting over posts that are not null.
func (g postGrid) interpolate(pt orb.Point, at func(line, samp int) (float64, bool)) (float64, bool) {
	line, samp, ok := g.locate(pt)
	if !ok {
		return 0, false
	}
	line = math.Max(0, math.Min(line, float64(g.lines-1)))
	samp = math.Max(0, math.Min(samp, float64(g.samples-1)))

	l0, s0 := int(line), int(samp)
	l1, s1 := l0+1, s0+1
	if l1 >= g.lines {
		l1 = l0
	}
	if s1 >= g.samples {
		s1 = s0
	}
	fl, fs := line-float64(l0), samp-float64(s0)

	posts := [4]struct {
		line, samp int
		w          float64
	}{
		{l0, s0, (1 - fl) * (1 - fs)},
		{l0, s1, (1 - fl) * fs},
		{l1, s0, fl * (1 - fs)},
		{l1, s1, fl * fs},
	}

	var sum, weight float64
	for _, p := range posts {
		if p.w == 0 {
			continue
		}
		h, ok := at(p.line, p.samp)
		if !ok {
			continue
		}
		sum += h * p.w
		weight += p.w
	}
	if weight == 0 {
		return 0, false
	}
	return sum / weight, true
}

// loader returns a cell's bytes and a function releasing them
type loader func() ([]byte, func() error, error)

// mapLoader memory-maps a file read-only
func mapLoader(path string) loader {
	return func() ([]byte, func() error, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		m, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("mmap %s: %w", path, err)
		}
		release := func() error {
			uerr := m.Unmap()
			cerr := f.Close()
			if uerr != nil {
				return uerr
			}
			return cerr
		}
		return m, release, nil
	}
}

// cell implements Source over a post grid held in a lazily loaded buffer
type cell struct {
	filename string
	kind     Kind
	grid     postGrid
	null     float64
	min, max float64
	ce90     float64
	le90     float64

	// size is the byte length the post grid needs
	size   int
	load   loader
	decode func(data []byte, line, samp int) float64

	mu      sync.Mutex
	data    []byte
	release func() error
}

func (c *cell) Filename() string           { return c.filename }
func (c *cell) Kind() Kind                 { return c.kind }
func (c *cell) Bounds() orb.Bound          { return c.grid.bounds() }
func (c *cell) MinHeight() float64         { return c.min }
func (c *cell) MaxHeight() float64         { return c.max }
func (c *cell) NullHeight() float64        { return c.null }
func (c *cell) MeanSpacingMeters() float64 { return c.grid.meanSpacingMeters() }
func (c *cell) AccuracyCE90() float64      { return c.ce90 }
func (c *cell) AccuracyLE90() float64      { return c.le90 }

func (c *cell) PointHasCoverage(pt orb.Point) bool {
	_, _, ok := c.grid.locate(pt)
	return ok
}

func (c *cell) HeightAboveMSL(pt orb.Point) (float64, bool) {
	if !c.PointHasCoverage(pt) {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.open(); err != nil {
		return 0, false
	}
	return c.grid.interpolate(pt, c.post)
}

func (c *cell) post(line, samp int) (float64, bool) {
	h := c.decode(c.data, line, samp)
	if math.IsNaN(h) || h == c.null {
		return 0, false
	}
	return h, true
}

// open loads the cell data if it is not resident. Callers hold c.mu.
func (c *cell) open() error {
	if c.data != nil {
		return nil
	}
	data, release, err := c.load()
	if err != nil {
		return err
	}
	if len(data) < c.size {
		if release != nil {
			release()
		}
		return fmt.Errorf("%s: truncated to %d bytes, want %d", c.filename, len(data), c.size)
	}
	c.data, c.release = data, release
	return nil
}

// computeMinMax scans every post. Callers hold c.mu with the data loaded.
func (c *cell) computeMinMax() {
	c.min, c.max = math.NaN(), math.NaN()
	for l := 0; l < c.grid.lines; l++ {
		for s := 0; s < c.grid.samples; s++ {
			h, ok := c.post(l, s)
			if !ok {
				continue
			}
			if math.IsNaN(c.min) || h < c.min {
				c.min = h
			}
			if math.IsNaN(c.max) || h > c.max {
				c.max = h
			}
		}
	}
}

func (c *cell) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data == nil {
		return nil
	}
	var err error
	if c.release != nil {
		err = c.release()
	}
	c.data, c.release = nil, nil
	return err
}
