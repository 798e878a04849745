package vpf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrFeatureClassNotFound is returned when a coverage has no schema row for a class
var ErrFeatureClassNotFound = errors.New("feature class not found")

// Primitive table names
const (
	PrimEdge       = "edg"
	PrimFace       = "fac"
	PrimText       = "txt"
	PrimConnNode   = "cnd"
	PrimEntityNode = "end"
	PrimEntNode    = "ent"
	PrimRing       = "rng"
)

// FeatureClass is a feature class schema entry: the feature table and the
// primitive table it joins to.
type FeatureClass struct {
	Name         string
	Table        string
	TableKey     string
	Primitive    string
	PrimitiveKey string
}

// Coverage is a directory of feature and primitive tables inside a library
type Coverage struct {
	Path    string
	Name    string
	Library *Library
}

// Library is the directory containing coverages, including the tileref coverage
type Library struct {
	Path string

	mu        sync.Mutex
	tileNames map[int]string
}

// OpenCoverage opens a coverage directory
func OpenCoverage(path string) (*Coverage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open coverage: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open coverage: %s is not a directory", path)
	}

	clean := filepath.Clean(path)
	return &Coverage{
		Path:    clean,
		Name:    filepath.Base(clean),
		Library: &Library{Path: filepath.Dir(clean)},
	}, nil
}

// TablePath resolves a table name inside the coverage, trying the name as
// given then lower-cased.
func (c *Coverage) TablePath(name string) string {
	return resolve(c.Path, name)
}

// PrimitivePath resolves a primitive table for a tile. An empty tile name
// addresses the coverage root.
func (c *Coverage) PrimitivePath(tile, name string) string {
	if tile == "" {
		return resolve(c.Path, name)
	}
	tile = strings.ReplaceAll(strings.TrimSpace(tile), `\`, "/")
	dir := filepath.Join(c.Path, filepath.FromSlash(tile))
	if _, err := os.Stat(dir); err != nil {
		dir = filepath.Join(c.Path, filepath.FromSlash(strings.ToLower(tile)))
	}
	return resolve(dir, name)
}

func resolve(dir, name string) string {
	p := filepath.Join(dir, name)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	lower := filepath.Join(dir, strings.ToLower(name))
	if _, err := os.Stat(lower); err == nil {
		return lower
	}
	return p
}

// FeatureClasses lists the distinct feature class names in the schema table
func (c *Coverage) FeatureClasses() ([]string, error) {
	fcs, err := OpenTable(c.TablePath("fcs"))
	if err != nil {
		return nil, err
	}
	defer fcs.Close()

	names, err := fcs.ColumnValues("feature_class")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	for _, n := range names {
		if n == "" || seen[strings.ToLower(n)] {
			continue
		}
		seen[strings.ToLower(n)] = true
		out = append(out, n)
	}
	return out, nil
}

// FeatureClass returns the schema row joining a feature class to a primitive
func (c *Coverage) FeatureClass(name string) (FeatureClass, error) {
	fcs, err := OpenTable(c.TablePath("fcs"))
	if err != nil {
		return FeatureClass{}, err
	}
	defer fcs.Close()

	cols := []string{"feature_class", "table1", "table1_key", "table2", "table2_key"}
	pos := make([]int, len(cols))
	for i, col := range cols {
		pos[i] = fcs.ColumnPosition(col)
		if pos[i] < 0 {
			return FeatureClass{}, &TableError{Path: fcs.Path(), Reason: fmt.Sprintf("no column %q", col)}
		}
	}

	for n := 1; n <= fcs.NumRows(); n++ {
		row, err := fcs.ReadRow(n)
		if err != nil {
			return FeatureClass{}, err
		}
		if !strings.EqualFold(row.String(pos[0]), name) {
			continue
		}
		prim := strings.ToLower(row.String(pos[3]))
		if !IsPrimitive(prim) {
			continue
		}
		return FeatureClass{
			Name:         row.String(pos[0]),
			Table:        row.String(pos[1]),
			TableKey:     row.String(pos[2]),
			Primitive:    prim,
			PrimitiveKey: row.String(pos[4]),
		}, nil
	}

	return FeatureClass{}, fmt.Errorf("%s in %s: %w", name, c.Path, ErrFeatureClassNotFound)
}

// IsPrimitive reports whether a table name is a geometric primitive table
func IsPrimitive(name string) bool {
	switch strings.ToLower(strings.TrimSuffix(name, ".")) {
	case PrimEdge, PrimFace, PrimText, PrimConnNode, PrimEntityNode, PrimEntNode:
		return true
	}
	return false
}

// TileName returns the tile directory name for a tile id from the library's
// tileref coverage.
func (l *Library) TileName(id int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tileNames == nil {
		if err := l.loadTileNames(); err != nil {
			return "", err
		}
	}
	name, ok := l.tileNames[id]
	if !ok {
		return "", fmt.Errorf("tile %d not in tileref", id)
	}
	return name, nil
}

func (l *Library) loadTileNames() error {
	t, err := OpenTable(resolve(resolve(l.Path, "tileref"), "tileref.aft"))
	if err != nil {
		return err
	}
	defer t.Close()

	idPos := t.ColumnPosition("id")
	namePos := t.ColumnPosition("tile_name")
	if namePos < 0 {
		return &TableError{Path: t.Path(), Reason: "no column tile_name"}
	}

	names := make(map[int]string, t.NumRows())
	for n := 1; n <= t.NumRows(); n++ {
		row, err := t.ReadRow(n)
		if err != nil {
			return err
		}
		id, ok := row.Int(idPos)
		if !ok {
			id = n
		}
		names[id] = row.String(namePos)
	}
	l.tileNames = names
	return nil
}
