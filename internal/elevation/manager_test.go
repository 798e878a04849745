package elevation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/wegman-software/vmap-go/internal/keywordlist"
)

func testManager(opts Options) *Manager {
	if opts.EnvVar == "" {
		opts.EnvVar = "VMAP_TEST_ELEVATION_PATH_UNSET"
	}
	return NewManager(opts)
}

// elevationTree writes root/dted, root/srtm and root/raster directories,
// each covering a different area, plus an unrelated directory.
func elevationTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeDted(t, filepath.Join(root, "dted", "w120", "n37.dt1"), 37, -120, func(x, y int) int { return 500 })
	writeSrtm(t, filepath.Join(root, "srtm", "N10E020.hgt"), func(l, s int) int16 { return 250 })
	writeRaster(t, filepath.Join(root, "raster", "patch.ras"), -10, 50, 0.5, 3, 3, "", func(l, s int) int16 { return 75 })
	if err := os.MkdirAll(filepath.Join(root, "docs"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "docs", "readme.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestDetectDirectory(t *testing.T) {
	root := elevationTree(t)

	tests := []struct {
		dir  string
		want Kind
	}{
		{"dted", KindDtedDirectory},
		{"srtm", KindSrtmDirectory},
		{"raster", KindGeneralRasterDirectory},
		{"docs", KindUnknown},
		{"missing", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			if got := DetectDirectory(filepath.Join(root, tt.dir)); got != tt.want {
				t.Errorf("DetectDirectory() = %v, want %v", got, tt.want)
			}
		})
	}

	if !IsGeneralRasterDirectory(filepath.Join(root, "raster", "patch.ras")) {
		t.Error("IsGeneralRasterDirectory(file with sidecar) = false")
	}
}

func TestDetectDirectoryScanCap(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3*maxSniffEntries; i++ {
		name := filepath.Join(dir, fmt.Sprintf("file%03d.txt", i))
		if err := os.WriteFile(name, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	if IsSrtmDirectory(dir) {
		t.Error("IsSrtmDirectory() = true for directory without cells")
	}
}

func TestManagerLoadElevationPath(t *testing.T) {
	root := elevationTree(t)
	m := testManager(Options{})

	if !m.LoadElevationPath(root) {
		t.Fatal("LoadElevationPath() = false")
	}
	var kinds []Kind
	for _, f := range m.Registry().Factories() {
		kinds = append(kinds, f.Kind())
	}
	if len(kinds) != 3 {
		t.Fatalf("factories = %v, want 3", kinds)
	}

	tests := []struct {
		name string
		pt   orb.Point
		want float64
	}{
		{"dted", orb.Point{-119.5, 37.5}, 500},
		{"srtm", orb.Point{20.5, 10.5}, 250},
		{"raster", orb.Point{50.5, -10.5}, 75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, ok := m.HeightAboveMSL(tt.pt)
			if !ok || !near(h, tt.want) {
				t.Errorf("HeightAboveMSL(%v) = %g, %v, want %g", tt.pt, h, ok, tt.want)
			}
		})
	}
	if m.Registry().Len() != 3 {
		t.Errorf("Len() = %d, want one auto-loaded cell per factory", m.Registry().Len())
	}
	if _, ok := m.HeightAboveMSL(orb.Point{0.5, 0.5}); ok {
		t.Error("HeightAboveMSL(uncovered) succeeded")
	}

	name, ok := m.CellFilenameForPoint(orb.Point{20.5, 10.5})
	if !ok || filepath.Base(name) != "N10E020.hgt" {
		t.Errorf("CellFilenameForPoint() = %q, %v", name, ok)
	}

	if m.LoadElevationPath(filepath.Join(root, "nope")) {
		t.Error("LoadElevationPath(missing) = true")
	}
	if diff := cmp.Diff([]string{root}, m.SearchPaths()); diff != "" {
		t.Errorf("SearchPaths() mismatch (-want +got):\n%s", diff)
	}
}

func TestManagerAccuracy(t *testing.T) {
	root := elevationTree(t)
	m := testManager(Options{})
	if !m.LoadElevationPath(root) {
		t.Fatal("LoadElevationPath() = false")
	}

	type accuracy struct {
		CE90, LE90 float64
		OK         bool
	}
	tests := []struct {
		name string
		pt   orb.Point
		want accuracy
	}{
		{"dted", orb.Point{-119.5, 37.5}, accuracy{25, 11, true}},
		{"srtm", orb.Point{20.5, 10.5}, accuracy{srtmCE90, srtmLE90, true}},
		{"raster", orb.Point{50.5, -10.5}, accuracy{0, 0, true}},
		{"uncovered", orb.Point{0.5, 0.5}, accuracy{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got accuracy
			var okLE bool
			got.CE90, got.OK = m.AccuracyCE90(tt.pt)
			got.LE90, okLE = m.AccuracyLE90(tt.pt)
			if okLE != got.OK {
				t.Errorf("AccuracyLE90 ok = %v, AccuracyCE90 ok = %v", okLE, got.OK)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("accuracy mismatch (-want +got):\n%s", diff)
			}
		})
	}

	m.SetEnabled(false)
	if _, ok := m.AccuracyCE90(orb.Point{20.5, 10.5}); ok {
		t.Error("AccuracyCE90() with elevation disabled succeeded")
	}
}

func TestManagerOpenCell(t *testing.T) {
	root := t.TempDir()
	srtm := filepath.Join(root, "N01E001.hgt.gz")
	writeSrtm(t, srtm, func(l, s int) int16 { return 12 })
	dted := filepath.Join(root, "n37.dt1")
	writeDted(t, dted, 37, -120, func(x, y int) int { return 3 })
	raster := filepath.Join(root, "patch.ras")
	writeRaster(t, raster, -10, 50, 0.5, 3, 3, "", func(l, s int) int16 { return 8 })
	other := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(other, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	m := testManager(Options{})
	m.SetAutoLoad(false)

	tests := []struct {
		name string
		file string
		want bool
	}{
		{"srtm via gz retry", strings.TrimSuffix(srtm, ".gz"), true},
		{"dted", dted, true},
		{"raster", raster, true},
		{"unrecognized", other, false},
		{"missing", filepath.Join(root, "N02E002.hgt"), false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.OpenCell(tt.file); got != tt.want {
				t.Errorf("OpenCell(%q) = %v, want %v", tt.file, got, tt.want)
			}
		})
	}

	if m.Registry().Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Registry().Len())
	}
	if !m.OpenDtedCell(dted) || m.Registry().Len() != 3 {
		t.Error("reopening an open cell must succeed without registering it twice")
	}
	if h, ok := m.HeightAboveMSL(orb.Point{1.5, 1.5}); !ok || h != 12 {
		t.Errorf("HeightAboveMSL(srtm) = %g, %v, want 12", h, ok)
	}

	if !m.CloseCell(dted) || m.IsCellOpen(dted) {
		t.Error("CloseCell(dted) failed")
	}
	if err := m.CloseAllCells(); err != nil {
		t.Errorf("CloseAllCells() error: %v", err)
	}
	if len(m.OpenCells()) != 0 {
		t.Errorf("OpenCells() = %v after CloseAllCells", m.OpenCells())
	}
}

func TestManagerOpenDirectory(t *testing.T) {
	root := t.TempDir()
	writeSrtm(t, filepath.Join(root, "N01E001.hgt"), func(l, s int) int16 { return 1 })
	writeSrtm(t, filepath.Join(root, "N01E002.hgt"), func(l, s int) int16 { return 2 })

	m := testManager(Options{})
	if !m.OpenDirectory(root) {
		t.Fatal("OpenDirectory() = false")
	}
	if m.Registry().Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Registry().Len())
	}
	if m.OpenDirectory(filepath.Join(root, "missing")) {
		t.Error("OpenDirectory(missing) = true")
	}
}

func TestManagerHeightAboveEllipsoid(t *testing.T) {
	root := t.TempDir()
	writeSrtm(t, filepath.Join(root, "N01E001.hgt"), func(l, s int) int16 { return 100 })

	tests := []struct {
		name  string
		geoid GeoidProvider
		pt    orb.Point
		want  float64
		ok    bool
	}{
		{"height plus offset", ConstantGeoid(-30), orb.Point{1.5, 1.5}, 70, true},
		{"offset alone without height", ConstantGeoid(-30), orb.Point{5, 5}, -30, true},
		{"no offset", NoGeoid{}, orb.Point{1.5, 1.5}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testManager(Options{Geoid: tt.geoid})
			m.AddSrtmFactory(root)
			h, ok := m.HeightAboveEllipsoid(tt.pt)
			if ok != tt.ok || (ok && !near(h, tt.want)) {
				t.Errorf("HeightAboveEllipsoid() = %g, %v, want %g, %v", h, ok, tt.want, tt.ok)
			}
		})
	}

	m := testManager(Options{Geoid: ConstantGeoid(1)})
	m.AddSrtmFactory(root)
	m.SetEnabled(false)
	if _, ok := m.HeightAboveMSL(orb.Point{1.5, 1.5}); ok {
		t.Error("disabled manager returned a height")
	}
	if _, ok := m.HeightAboveEllipsoid(orb.Point{1.5, 1.5}); ok {
		t.Error("disabled manager returned an ellipsoid height")
	}
}

func TestManagerEnsureInitialized(t *testing.T) {
	root := elevationTree(t)
	extra := t.TempDir()
	writeSrtm(t, filepath.Join(extra, "N05E005.hgt"), func(l, s int) int16 { return 9 })

	t.Setenv("VMAP_TEST_ELEVATION_PATH", strings.Join([]string{extra, filepath.Join(root, "missing")}, string(os.PathListSeparator)))
	m := NewManager(Options{
		UserDir:    filepath.Join(root, "dted"),
		InstallDir: filepath.Join(root, "srtm"),
		EnvVar:     "VMAP_TEST_ELEVATION_PATH",
	})
	if len(m.Registry().Factories()) != 0 {
		t.Fatal("NewManager() scanned directories before EnsureInitialized")
	}

	m.EnsureInitialized()
	m.EnsureInitialized()

	var dirs []string
	for _, f := range m.Registry().Factories() {
		dirs = append(dirs, f.Directory())
	}
	want := []string{filepath.Join(root, "dted"), filepath.Join(root, "srtm"), extra}
	if diff := cmp.Diff(want, dirs); diff != "" {
		t.Errorf("factory directories mismatch (-want +got):\n%s", diff)
	}
	if h, ok := m.HeightAboveMSL(orb.Point{5.5, 5.5}); !ok || h != 9 {
		t.Errorf("HeightAboveMSL(env path) = %g, %v, want 9", h, ok)
	}
}

func TestManagerState(t *testing.T) {
	root := elevationTree(t)
	cell := filepath.Join(root, "srtm", "N10E020.hgt")

	kwl, err := keywordlist.Parse(strings.NewReader(strings.Join([]string{
		"elev.elevation.enabled: true",
		"elev.elevation.auto_load_dted.enabled: false",
		"elev.elevation.auto_sort.enabled: no",
		"elev.default_elevation_path: " + root,
		"elev.elevation_source2.filename: " + filepath.Join(root, "raster"),
		"elev.elevation_source2.type: general_raster_directory",
		"elev.elevation_source0.filename: " + cell,
		"elev.elevation_source0.type: srtm_cell",
		"elev.elevation_source1.filename: " + filepath.Join(root, "dted"),
		"elev.dted_cell: " + filepath.Join(root, "dted", "w120", "n37.dt1"),
	}, "\n")))
	if err != nil {
		t.Fatal(err)
	}

	m := testManager(Options{})
	if !m.LoadState(kwl, "elev.") {
		t.Fatal("LoadState() = false")
	}
	if m.Registry().AutoLoad() || m.Registry().AutoSort() {
		t.Error("auto-load and auto-sort should be off")
	}
	if m.DefaultElevationPath() != root {
		t.Errorf("DefaultElevationPath() = %q", m.DefaultElevationPath())
	}
	wantCells := []string{cell, filepath.Join(root, "dted", "w120", "n37.dt1")}
	if diff := cmp.Diff(wantCells, m.OpenCells()); diff != "" {
		t.Errorf("OpenCells() mismatch (-want +got):\n%s", diff)
	}
	var kinds []Kind
	for _, f := range m.Registry().Factories() {
		kinds = append(kinds, f.Kind())
	}
	if diff := cmp.Diff([]Kind{KindDtedDirectory, KindGeneralRasterDirectory}, kinds); diff != "" {
		t.Errorf("factory kinds mismatch (-want +got):\n%s", diff)
	}

	out := keywordlist.New()
	m.SaveState(out, "elev.")
	m2 := testManager(Options{})
	if !m2.LoadState(out, "elev.") {
		t.Fatal("LoadState(saved) = false")
	}
	if diff := cmp.Diff(m.OpenCells(), m2.OpenCells()); diff != "" {
		t.Errorf("round trip cells mismatch (-want +got):\n%s", diff)
	}
	if len(m2.Registry().Factories()) != 2 {
		t.Errorf("round trip factories = %d, want 2", len(m2.Registry().Factories()))
	}
	if v, _ := out.Find("elev.", "elevation_source0.type"); v != "srtm_cell" {
		t.Errorf("saved type = %q, want srtm_cell", v)
	}
}

func TestManagerLoadStateErrors(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{"type without filename", []string{"elevation_source0.type: dted_directory"}},
		{"empty filename", []string{"elevation_source0.filename:", "elevation_source0.type: srtm_cell"}},
		{"unknown type", []string{"elevation_source0.filename: /tmp", "elevation_source0.type: strm_directory"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kwl, err := keywordlist.Parse(strings.NewReader(strings.Join(tt.lines, "\n")))
			if err != nil {
				t.Fatal(err)
			}
			if testManager(Options{}).LoadState(kwl, "") {
				t.Error("LoadState() = true, want false")
			}
		})
	}
}
