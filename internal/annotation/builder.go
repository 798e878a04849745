package annotation

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wegman-software/vmap-go/internal/style"
	"github.com/wegman-software/vmap-go/internal/topology"
	"github.com/wegman-software/vmap-go/internal/vpf"
)

// Builder builds the features of one feature class. A Builder is not safe
// for concurrent use.
type Builder struct {
	cov   *vpf.Coverage
	class string
	style *style.ClassStyle
	log   *zap.Logger
}

// NewBuilder creates a builder for className. A nil style enables the class.
func NewBuilder(cov *vpf.Coverage, className string, st *style.ClassStyle) *Builder {
	return &Builder{
		cov:   cov,
		class: className,
		style: st,
		log:   zap.NewNop(),
	}
}

// WithLogger sets the logger rejections are reported to
func (b *Builder) WithLogger(log *zap.Logger) *Builder {
	if log != nil {
		b.log = log
	}
	return b
}

// Build reads the feature table and builds a feature per row. Rows whose
// primitive cannot be reconstructed are counted and skipped. A primitive
// table that cannot be opened stops the class; the features built so far are
// returned along with the error.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	fc, err := b.cov.FeatureClass(b.class)
	if err != nil {
		return nil, err
	}

	res := &Result{Class: fc.Name, Type: TypeForPrimitive(fc.Primitive)}
	if res.Type == Unknown {
		b.log.Debug("Primitive not handled", zap.String("class", fc.Name), zap.String("primitive", fc.Primitive))
		return res, nil
	}
	if !b.style.IsEnabled() {
		return res, nil
	}

	ft, err := vpf.OpenTable(b.cov.TablePath(fc.Table))
	if err != nil {
		return nil, fmt.Errorf("feature table for %s: %w", fc.Name, err)
	}
	defer ft.Close()

	keyPos := ft.ColumnPosition(fc.TableKey)
	if keyPos < 0 {
		return nil, &vpf.TableError{Path: ft.Path(), Reason: fmt.Sprintf("no key column %q", fc.TableKey)}
	}
	tilePos := ft.ColumnPosition("tile_id")

	var filter *style.Filter
	if b.style != nil && b.style.Filter != nil {
		filter = style.NewFilter(b.style.Filter)
	}

	cur := &cursor{cov: b.cov, prim: fc.Primitive, kind: res.Type, tile: -1, log: b.log}
	defer cur.close()

	if tilePos < 0 {
		if err := cur.open(""); err != nil {
			return res, err
		}
		res.Stats.Tiles = 1
	}

	cols := ft.Columns()
	for n := 1; n <= ft.NumRows(); n++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Stats.Rows++

		row, err := ft.ReadRow(n)
		if err != nil {
			res.Stats.Rejected++
			b.log.Debug("Feature row unreadable", zap.String("class", fc.Name), zap.Int("row", n), zap.Error(err))
			continue
		}

		tile := 0
		if tilePos >= 0 {
			tile, _ = row.Int(tilePos)
			if tile != cur.tile {
				name, err := b.cov.Library.TileName(tile)
				if err != nil {
					return res, fmt.Errorf("%s row %d: %w", fc.Name, n, err)
				}
				if err := cur.open(name); err != nil {
					return res, err
				}
				cur.tile = tile
				res.Stats.Tiles++
			}
		}

		attrs := make(map[string]string, len(cols))
		for i, c := range cols {
			attrs[c.Name] = row.String(i)
		}
		if filter != nil && !filter.Match(attrs) {
			res.Stats.Filtered++
			continue
		}

		id, _ := row.Int(keyPos)
		f, err := cur.build(id)
		if err != nil {
			res.Stats.Rejected++
			b.log.Debug("Feature rejected",
				zap.String("class", fc.Name),
				zap.Int("row", n),
				zap.Int("primitive", id),
				zap.Int("tile", tile),
				zap.Error(err))
			continue
		}
		f.Class = fc.Name
		f.ID = n
		f.Tile = tile
		f.Attrs = attrs
		res.Features = append(res.Features, f)
		res.Stats.Built++
	}

	return res, nil
}

var errNoCoordinates = errors.New("no valid coordinates")

// cursor holds the primitive tables of the current tile
type cursor struct {
	cov  *vpf.Coverage
	prim string
	kind FeatureType
	tile int
	log  *zap.Logger

	tables []*vpf.Table
	prims  *vpf.Table
	pos    int // coordinate column of prims
	strPos int // text string column

	assembler *topology.Assembler
}

// open swaps in the primitive tables of a tile; "" is the coverage root
func (c *cursor) open(tile string) error {
	if err := c.close(); err != nil {
		c.log.Debug("Closing primitive tables", zap.Error(err))
	}

	openTable := func(name string) (*vpf.Table, error) {
		t, err := vpf.OpenTable(c.cov.PrimitivePath(tile, name))
		if err != nil {
			return nil, fmt.Errorf("primitive table %s for tile %q: %w", name, tile, err)
		}
		c.tables = append(c.tables, t)
		return t, nil
	}

	switch c.kind {
	case Polygon:
		fac, err := openTable(vpf.PrimFace)
		if err != nil {
			return err
		}
		rng, err := openTable(vpf.PrimRing)
		if err != nil {
			return err
		}
		edg, err := openTable(vpf.PrimEdge)
		if err != nil {
			return err
		}
		faces, err := vpf.NewFaceTable(fac)
		if err != nil {
			return err
		}
		rings, err := vpf.NewRingTable(rng)
		if err != nil {
			return err
		}
		edges, err := vpf.NewEdgeTable(edg)
		if err != nil {
			return err
		}
		c.assembler = &topology.Assembler{Faces: faces, Rings: rings, Edges: edges, Log: c.log}

	case Line:
		t, err := openTable(vpf.PrimEdge)
		if err != nil {
			return err
		}
		c.prims, c.pos = t, t.ColumnPosition("coordinates")

	case Text:
		t, err := openTable(vpf.PrimText)
		if err != nil {
			return err
		}
		c.prims, c.pos = t, t.ColumnPosition("shape_line")
		c.strPos = t.ColumnPosition("string")

	case Point:
		t, err := openTable(c.prim)
		if err != nil {
			return err
		}
		c.prims, c.pos = t, t.ColumnPosition("coordinate")
	}
	return nil
}

func (c *cursor) close() error {
	var err error
	for _, t := range c.tables {
		err = multierr.Append(err, t.Close())
	}
	c.tables = nil
	c.prims = nil
	c.assembler = nil
	return err
}

// build reads primitive id from the current tables
func (c *cursor) build(id int) (*Feature, error) {
	if c.kind == Polygon {
		poly, err := c.assembler.BuildPolygon(id)
		if err != nil {
			return nil, err
		}
		if len(poly.Geometry) == 0 || len(poly.Geometry[0]) == 0 {
			return nil, errNoCoordinates
		}
		return &Feature{Type: Polygon, Geometry: poly.Geometry}, nil
	}

	if id < 1 || id > c.prims.NumRows() {
		return nil, fmt.Errorf("primitive %d not in %s (%d rows)", id, c.prims.Path(), c.prims.NumRows())
	}
	row, err := c.prims.ReadRow(id)
	if err != nil {
		return nil, err
	}
	pts := validPoints(row.Coordinates(c.pos))

	switch c.kind {
	case Line:
		if len(pts) < 2 {
			return nil, errNoCoordinates
		}
		return &Feature{Type: Line, Geometry: orb.LineString(pts)}, nil

	case Text:
		if len(pts) == 0 {
			return nil, errNoCoordinates
		}
		return &Feature{Type: Text, Geometry: pts[0], Label: row.String(c.strPos)}, nil

	default:
		switch len(pts) {
		case 0:
			return nil, errNoCoordinates
		case 1:
			return &Feature{Type: Point, Geometry: pts[0]}, nil
		}
		return &Feature{Type: Point, Geometry: orb.MultiPoint(pts)}, nil
	}
}

func validPoints(in []orb.Point) []orb.Point {
	out := make([]orb.Point, 0, len(in))
	for _, p := range in {
		if topology.ValidLonLat(p) {
			out = append(out, p)
		}
	}
	return out
}
