package vpf_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/wegman-software/vmap-go/internal/vpf"
	"github.com/wegman-software/vmap-go/internal/vpf/vpftest"
)

func writeTable(t *testing.T, path string, tbl vpftest.Table) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Write(path); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestOpenTableFixedLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "polbnda.aft")
	writeTable(t, path, vpftest.Table{
		Description: "Political boundary areas",
		Columns: []vpftest.Column{
			{Name: "id", Type: 'I', Count: 1},
			{Name: "f_code", Type: 'T', Count: 5},
			{Name: "rank", Type: 'S', Count: 1},
			{Name: "area", Type: 'F', Count: 1},
			{Name: "length", Type: 'R', Count: 1},
			{Name: "updated", Type: 'D', Count: 1},
			{Name: "anchor", Type: 'C', Count: 1},
		},
		Rows: [][]any{
			{1, "FA000", 3, 1.5, 2.25, "20240115000000.0000", []orb.Point{{10, 20}}},
			{2, "FA001", -4, 0.5, 8.0, "20240116000000.0000", []orb.Point{{-120.5, 37.25}}},
		},
	})

	tbl, err := vpf.OpenTable(path)
	if err != nil {
		t.Fatalf("OpenTable() error: %v", err)
	}
	defer tbl.Close()

	if tbl.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", tbl.NumRows())
	}
	if tbl.Description != "Political boundary areas" {
		t.Errorf("Description = %q", tbl.Description)
	}
	if got := tbl.ColumnPosition("F_CODE"); got != 1 {
		t.Errorf("ColumnPosition(F_CODE) = %d, want 1", got)
	}
	if got := tbl.ColumnPosition("missing"); got != -1 {
		t.Errorf("ColumnPosition(missing) = %d, want -1", got)
	}

	row, err := tbl.ReadRow(2)
	if err != nil {
		t.Fatalf("ReadRow(2) error: %v", err)
	}

	tests := []struct {
		col  int
		want string
	}{
		{0, "2"},
		{1, "FA001"},
		{2, "-4"},
		{3, "0.5"},
		{4, "8"},
		{5, "20240116000000.0000"},
		{6, "-120.5 37.25"},
	}
	for _, tt := range tests {
		if got := row.String(tt.col); got != tt.want {
			t.Errorf("row.String(%d) = %q, want %q", tt.col, got, tt.want)
		}
	}

	if n, ok := row.Int(2); !ok || n != -4 {
		t.Errorf("row.Int(rank) = %d, %v, want -4, true", n, ok)
	}

	if _, err := tbl.ReadRow(3); !errors.Is(err, vpf.ErrRowOutOfRange) {
		t.Errorf("ReadRow(3) error = %v, want ErrRowOutOfRange", err)
	}
	if _, err := tbl.ReadRow(0); !errors.Is(err, vpf.ErrRowOutOfRange) {
		t.Errorf("ReadRow(0) error = %v, want ErrRowOutOfRange", err)
	}

	codes, err := tbl.ColumnValues("f_code")
	if err != nil {
		t.Fatalf("ColumnValues() error: %v", err)
	}
	if diff := cmp.Diff([]string{"FA000", "FA001"}, codes); diff != "" {
		t.Errorf("ColumnValues() mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenTableVariableLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edg")
	writeTable(t, path, vpftest.Table{
		Description: "Edge primitive",
		Columns: []vpftest.Column{
			{Name: "id", Type: 'I', Count: 1},
			{Name: "start_node", Type: 'I', Count: 1},
			{Name: "right_face", Type: 'K', Count: 1},
			{Name: "name", Type: 'T', Count: -1},
			{Name: "coordinates", Type: 'C', Count: -1},
			{Name: "dbl", Type: 'B', Count: -1},
			{Name: "tri", Type: 'Z', Count: -1},
			{Name: "dbltri", Type: 'Y', Count: -1},
		},
		Rows: [][]any{
			{1, 10, vpftest.Key{ID: 7, TileID: 3}, "short", []orb.Point{{1, 2}, {3, 4}},
				[]orb.Point{{0.125, 0.25}}, []orb.Point{{5, 6}}, []orb.Point{{7.5, 8.5}, {9, 10}}},
			{2, 11, vpftest.Key{ID: 300000}, "a longer name", []orb.Point{{-1, -2}},
				[]orb.Point{}, []orb.Point{}, []orb.Point{}},
		},
	})

	if _, err := os.Stat(filepath.Join(filepath.Dir(path), "edx")); err != nil {
		t.Fatalf("index file not written: %v", err)
	}

	tbl, err := vpf.OpenTable(path)
	if err != nil {
		t.Fatalf("OpenTable() error: %v", err)
	}
	defer tbl.Close()

	if tbl.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", tbl.NumRows())
	}

	row, err := tbl.ReadRow(1)
	if err != nil {
		t.Fatalf("ReadRow(1) error: %v", err)
	}
	if row[2].Key.ID != 7 || row[2].Key.TileID != 3 || row[2].Key.ExtID != 0 {
		t.Errorf("key = %+v, want id 7 tile 3", row[2].Key)
	}
	if row.String(3) != "short" {
		t.Errorf("name = %q, want short", row.String(3))
	}
	if diff := cmp.Diff([]orb.Point{{1, 2}, {3, 4}}, row.Coordinates(4)); diff != "" {
		t.Errorf("C coordinates mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]orb.Point{{0.125, 0.25}}, row.Coordinates(5)); diff != "" {
		t.Errorf("B coordinates mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]orb.Point{{5, 6}}, row.Coordinates(6)); diff != "" {
		t.Errorf("Z coordinates mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]orb.Point{{7.5, 8.5}, {9, 10}}, row.Coordinates(7)); diff != "" {
		t.Errorf("Y coordinates mismatch (-want +got):\n%s", diff)
	}

	row, err = tbl.ReadRow(2)
	if err != nil {
		t.Fatalf("ReadRow(2) error: %v", err)
	}
	if n, ok := row.Int(2); !ok || n != 300000 {
		t.Errorf("key id = %d, %v, want 300000", n, ok)
	}
	if row.String(3) != "a longer name" {
		t.Errorf("name = %q", row.String(3))
	}
	if len(row.Coordinates(5)) != 0 {
		t.Errorf("empty B coordinates = %v", row.Coordinates(5))
	}
}

func TestOpenTableErrors(t *testing.T) {
	dir := t.TempDir()

	noID := filepath.Join(dir, "bad.tbl")
	writeTable(t, noID, vpftest.Table{
		Columns: []vpftest.Column{{Name: "name", Type: 'T', Count: 4}},
	})

	short := filepath.Join(dir, "short.tbl")
	if err := os.WriteFile(short, []byte{1, 0}, 0644); err != nil {
		t.Fatal(err)
	}

	missingIndex := filepath.Join(dir, "lone")
	writeTable(t, missingIndex, vpftest.Table{
		Columns: []vpftest.Column{{Name: "id", Type: 'I', Count: 1}, {Name: "txt", Type: 'T', Count: -1}},
		Rows:    [][]any{{1, "x"}},
	})
	if err := os.Remove(filepath.Join(dir, "lonx")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"first column not id", noID},
		{"file too short", short},
		{"missing file", filepath.Join(dir, "nope")},
		{"variable table without index", missingIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vpf.OpenTable(tt.path)
			var terr *vpf.TableError
			if !errors.As(err, &terr) {
				t.Errorf("OpenTable() error = %v, want *TableError", err)
			}
		})
	}
}

func TestIndexPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/v/cov/edg", "/v/cov/edx"},
		{"/v/cov/txt", "/v/cov/txx"},
		{"/v/cov/fcs.", "/v/cov/fcx."},
		{"/v/cov/polbndl.lft", "/v/cov/polbndl.lfx"},
	}
	for _, tt := range tests {
		if got := vpf.IndexPath(tt.in); got != tt.want {
			t.Errorf("IndexPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReadRowCorruptCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edg")
	writeTable(t, path, vpftest.Table{
		Columns: []vpftest.Column{
			{Name: "id", Type: 'I', Count: 1},
			{Name: "coordinates", Type: 'C', Count: -1},
		},
		Rows: [][]any{{1, []orb.Point{{1.5, 2.5}}}},
	})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var row []byte
	row = binary.LittleEndian.AppendUint32(row, 1)
	row = binary.LittleEndian.AppendUint32(row, 1)
	row = binary.LittleEndian.AppendUint32(row, math.Float32bits(1.5))
	row = binary.LittleEndian.AppendUint32(row, math.Float32bits(2.5))
	at := bytes.Index(data, row)
	if at < 0 {
		t.Fatal("row bytes not found")
	}
	binary.LittleEndian.PutUint32(data[at+4:], 0x7fffffff)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	tbl, err := vpf.OpenTable(path)
	if err != nil {
		t.Fatalf("OpenTable() error: %v", err)
	}
	defer tbl.Close()

	_, err = tbl.ReadRow(1)
	var terr *vpf.TableError
	if !errors.As(err, &terr) {
		t.Errorf("ReadRow() error = %v, want *TableError", err)
	}
}
