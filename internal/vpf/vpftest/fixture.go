package vpftest

import (
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
)

// Tile names written to tileref by a tiled fixture. Primitive directories
// are created lower-cased.
var FixtureTiles = []string{`A\B`, `C\D`}

// WriteCoverage writes a library with one coverage named "bnd" under root and
// returns the coverage path. The coverage holds a unit square face (face 2)
// with a spur and a hole (face 3), text at the top of the square and two
// connected nodes, with feature classes POLBNDA (fac), POLBNDL (edg),
// POLBNDT (txt) and POLBNDP (cnd).
//
// When tiled is true the primitives are duplicated into one directory per
// entry of FixtureTiles and every feature table gains a tile_id column.
func WriteCoverage(root string, tiled bool) (string, error) {
	cov := filepath.Join(root, "bnd")
	if err := os.MkdirAll(cov, 0755); err != nil {
		return "", err
	}

	if err := schemaTable().Write(filepath.Join(cov, "fcs")); err != nil {
		return "", err
	}

	primDirs := []string{cov}
	if tiled {
		primDirs = nil
		tileRows := make([][]any, 0, len(FixtureTiles))
		for i, name := range FixtureTiles {
			dir := filepath.Join(cov, filepath.FromSlash(lowerSlash(name)))
			primDirs = append(primDirs, dir)
			tileRows = append(tileRows, []any{i + 1, name})
		}
		tileref := filepath.Join(root, "tileref")
		if err := os.MkdirAll(tileref, 0755); err != nil {
			return "", err
		}
		err := Table{
			Description: "Tile reference area",
			Columns:     []Column{{Name: "id", Type: 'I', Count: 1}, {Name: "tile_name", Type: 'T', Count: -1}},
			Rows:        tileRows,
		}.Write(filepath.Join(tileref, "tileref.aft"))
		if err != nil {
			return "", err
		}
	}

	for _, dir := range primDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
		for name, tbl := range primitiveTables() {
			if err := tbl.Write(filepath.Join(dir, name)); err != nil {
				return "", err
			}
		}
	}

	for name, tbl := range featureTables(tiled) {
		if err := tbl.Write(filepath.Join(cov, name)); err != nil {
			return "", err
		}
	}
	return cov, nil
}

func lowerSlash(tile string) string {
	b := []byte(tile)
	for i, c := range b {
		switch {
		case c == '\\':
			b[i] = '/'
		case c >= 'A' && c <= 'Z':
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

func schemaTable() Table {
	return Table{
		Description: "Feature class schema",
		Columns: []Column{
			{Name: "id", Type: 'I', Count: 1},
			{Name: "feature_class", Type: 'T', Count: -1},
			{Name: "table1", Type: 'T', Count: -1},
			{Name: "table1_key", Type: 'T', Count: -1},
			{Name: "table2", Type: 'T', Count: -1},
			{Name: "table2_key", Type: 'T', Count: -1},
		},
		Rows: [][]any{
			{1, "POLBNDA", "fac", "ring_ptr", "rng", "id"},
			{2, "POLBNDA", "polbnda.aft", "fac_id", "fac", "id"},
			{3, "POLBNDL", "polbndl.lft", "edg_id", "edg", "id"},
			{4, "POLBNDT", "polbndt.tft", "txt_id", "txt", "id"},
			{5, "POLBNDP", "polbndp.pft", "cnd_id", "cnd", "id"},
		},
	}
}

func primitiveTables() map[string]Table {
	p := func(x, y float64) orb.Point { return orb.Point{x, y} }
	k := func(id int) Key { return Key{ID: id} }
	edge := func(id, start, end, right, left, rightEdge, leftEdge int, pts ...orb.Point) []any {
		return []any{id, start, end, k(right), k(left), k(rightEdge), k(leftEdge), pts}
	}

	return map[string]Table{
		"edg": {
			Description: "Edge primitive",
			Columns: []Column{
				{Name: "id", Type: 'I', Count: 1},
				{Name: "start_node", Type: 'I', Count: 1},
				{Name: "end_node", Type: 'I', Count: 1},
				{Name: "right_face", Type: 'K', Count: 1},
				{Name: "left_face", Type: 'K', Count: 1},
				{Name: "right_edge", Type: 'K', Count: 1},
				{Name: "left_edge", Type: 'K', Count: 1},
				{Name: "coordinates", Type: 'C', Count: -1},
			},
			Rows: [][]any{
				edge(1, 1, 4, 2, 1, 2, 4, p(0, 0), p(0, 1)),
				edge(2, 4, 3, 2, 1, 5, 1, p(0, 1), p(1, 1)),
				edge(3, 3, 2, 2, 1, 4, 2, p(1, 1), p(1, 0)),
				edge(4, 2, 1, 2, 1, 1, 3, p(1, 0), p(0, 0)),
				edge(5, 3, 5, 2, 2, 5, 3, p(1, 1), p(0.5, 0.5)),
				edge(6, 11, 12, 3, 2, 7, 9, p(0.2, 0.2), p(0.2, 0.8)),
				edge(7, 12, 13, 3, 2, 8, 6, p(0.2, 0.8), p(0.8, 0.8)),
				edge(8, 13, 14, 3, 2, 9, 7, p(0.8, 0.8), p(0.8, 0.2)),
				edge(9, 14, 11, 3, 2, 6, 8, p(0.8, 0.2), p(0.2, 0.2)),
			},
		},
		"fac": {
			Description: "Face primitive",
			Columns:     []Column{{Name: "id", Type: 'I', Count: 1}, {Name: "ring_ptr", Type: 'I', Count: 1}},
			Rows:        [][]any{{1, 1}, {2, 2}, {3, 4}},
		},
		"rng": {
			Description: "Ring primitive",
			Columns: []Column{
				{Name: "id", Type: 'I', Count: 1},
				{Name: "face_id", Type: 'I', Count: 1},
				{Name: "start_edge", Type: 'I', Count: 1},
			},
			Rows: [][]any{{1, 1, 1}, {2, 2, 1}, {3, 2, 6}, {4, 3, 6}},
		},
		"txt": {
			Description: "Text primitive",
			Columns: []Column{
				{Name: "id", Type: 'I', Count: 1},
				{Name: "string", Type: 'T', Count: -1},
				{Name: "shape_line", Type: 'C', Count: -1},
			},
			Rows: [][]any{{1, "Square", []orb.Point{p(0.5, 0.9), p(0.7, 0.9)}}},
		},
		"cnd": {
			Description: "Connected node primitive",
			Columns: []Column{
				{Name: "id", Type: 'I', Count: 1},
				{Name: "first_edge", Type: 'I', Count: 1},
				{Name: "coordinate", Type: 'C', Count: 1},
			},
			Rows: [][]any{{1, 1, []orb.Point{p(0, 0)}}, {2, 3, []orb.Point{p(1, 1)}}},
		},
	}
}

func featureTables(tiled bool) map[string]Table {
	tables := map[string]Table{
		"polbnda.aft": {
			Description: "Political boundary areas",
			Columns: []Column{
				{Name: "id", Type: 'I', Count: 1},
				{Name: "f_code", Type: 'T', Count: 5},
				{Name: "nam", Type: 'T', Count: -1},
				{Name: "fac_id", Type: 'I', Count: 1},
			},
			Rows: [][]any{{1, "FA001", "Outer", 2}, {2, "FA001", "Inner", 3}, {3, "FA001", "Bogus", 99}},
		},
		"polbndl.lft": {
			Description: "Political boundary lines",
			Columns: []Column{
				{Name: "id", Type: 'I', Count: 1},
				{Name: "f_code", Type: 'T', Count: 5},
				{Name: "edg_id", Type: 'I', Count: 1},
			},
			Rows: [][]any{{1, "FA110", 1}, {2, "FA110", 3}},
		},
		"polbndt.tft": {
			Description: "Political boundary text",
			Columns: []Column{
				{Name: "id", Type: 'I', Count: 1},
				{Name: "f_code", Type: 'T', Count: 5},
				{Name: "txt_id", Type: 'I', Count: 1},
			},
			Rows: [][]any{{1, "ZD040", 1}},
		},
		"polbndp.pft": {
			Description: "Political boundary points",
			Columns: []Column{
				{Name: "id", Type: 'I', Count: 1},
				{Name: "f_code", Type: 'T', Count: 5},
				{Name: "cnd_id", Type: 'I', Count: 1},
			},
			Rows: [][]any{{1, "AL020", 1}, {2, "AL020", 2}},
		},
	}
	if !tiled {
		return tables
	}

	// Every feature is duplicated into each tile, ordered by tile.
	for name, tbl := range tables {
		cols := append([]Column{}, tbl.Columns...)
		cols = append(cols, Column{Name: "tile_id", Type: 'S', Count: 1})
		var rows [][]any
		for tile := range FixtureTiles {
			for _, r := range tbl.Rows {
				row := append([]any{}, r...)
				row[0] = len(rows) + 1
				row = append(row, tile+1)
				rows = append(rows, row)
			}
		}
		tbl.Columns = cols
		tbl.Rows = rows
		tables[name] = tbl
	}
	return tables
}
