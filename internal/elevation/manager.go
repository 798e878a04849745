package elevation

import (
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/wegman-software/vmap-go/internal/logger"
)

// EnvElevationPath lists extra elevation directories, separated by the OS
// path list separator.
const EnvElevationPath = "ELEVATION_PATH"

// GeoidProvider returns the geoid height above the ellipsoid at a point,
// or NaN when unknown.
type GeoidProvider interface {
	OffsetFromEllipsoid(pt orb.Point) float64
}

// NoGeoid knows no offsets
type NoGeoid struct{}

func (NoGeoid) OffsetFromEllipsoid(orb.Point) float64 { return math.NaN() }

// ConstantGeoid applies one offset everywhere
type ConstantGeoid float64

func (g ConstantGeoid) OffsetFromEllipsoid(orb.Point) float64 { return float64(g) }

// Options configures a Manager
type Options struct {
	// UserDir and InstallDir are scanned, in that order, by EnsureInitialized
	UserDir    string
	InstallDir string
	// EnvVar names the environment variable holding extra directories.
	// Empty disables the lookup.
	EnvVar string
	Geoid  GeoidProvider
	Log    *zap.Logger
}

// DefaultOptions returns the standard directory layout
func DefaultOptions() Options {
	opts := Options{
		InstallDir: "/usr/local/share/vmap/elevation",
		EnvVar:     EnvElevationPath,
		Geoid:      NoGeoid{},
	}
	if home, err := os.UserHomeDir(); err == nil {
		opts.UserDir = filepath.Join(home, ".vmap", "elevation")
	}
	return opts
}

// Manager answers height queries from a Registry and loads cells and
// directories into it.
type Manager struct {
	opts Options
	reg  *Registry
	log  *zap.Logger
	once sync.Once

	mu          sync.Mutex
	enabled     bool
	defaultPath string
	searchPaths []string
}

// NewManager returns an enabled manager with an empty registry. Nothing is
// scanned until EnsureInitialized.
func NewManager(opts Options) *Manager {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Geoid == nil {
		opts.Geoid = NoGeoid{}
	}
	return &Manager{
		opts:    opts,
		reg:     NewRegistry(opts.Log),
		log:     opts.Log,
		enabled: true,
	}
}

var (
	defaultManager *Manager
	defaultOnce    sync.Once
)

// Default returns the process-wide manager, initialized on first use
func Default() *Manager {
	defaultOnce.Do(func() {
		opts := DefaultOptions()
		opts.Log = logger.Get().Named("elevation")
		defaultManager = NewManager(opts)
	})
	defaultManager.EnsureInitialized()
	return defaultManager
}

// EnsureInitialized scans the user and install directories, then every
// entry of the environment path. Later calls do nothing.
func (m *Manager) EnsureInitialized() {
	m.once.Do(func() {
		for _, dir := range []string{m.opts.UserDir, m.opts.InstallDir} {
			if dir != "" {
				m.LoadElevationPath(dir)
			}
		}
		if m.opts.EnvVar == "" {
			return
		}
		for _, dir := range filepath.SplitList(os.Getenv(m.opts.EnvVar)) {
			if dir != "" && exists(dir) {
				m.LoadElevationPath(dir)
			}
		}
		m.log.Debug("Elevation initialized",
			zap.Int("cells", m.reg.Len()),
			zap.Int("factories", len(m.reg.Factories())))
	})
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Registry exposes the underlying registry
func (m *Manager) Registry() *Registry { return m.reg }

func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *Manager) SetEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = on
}

func (m *Manager) SetAutoLoad(on bool) { m.reg.SetAutoLoad(on) }
func (m *Manager) SetAutoSort(on bool) { m.reg.SetAutoSort(on) }

func (m *Manager) DefaultElevationPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultPath
}

func (m *Manager) SetDefaultElevationPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPath = path
}

// SearchPaths returns the existing directories passed to LoadElevationPath
func (m *Manager) SearchPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.searchPaths...)
}

// HeightAboveMSL returns the terrain height above mean sea level
func (m *Manager) HeightAboveMSL(pt orb.Point) (float64, bool) {
	if !m.Enabled() {
		return 0, false
	}
	return m.reg.HeightAboveMSL(pt)
}

// HeightAboveEllipsoid adds the geoid offset to the MSL height. With no MSL
// height the offset alone is returned; with no offset there is no result.
func (m *Manager) HeightAboveEllipsoid(pt orb.Point) (float64, bool) {
	if !m.Enabled() {
		return 0, false
	}
	d := m.opts.Geoid.OffsetFromEllipsoid(pt)
	if math.IsNaN(d) {
		return 0, false
	}
	if h, ok := m.reg.HeightAboveMSL(pt); ok {
		return h + d, true
	}
	return d, true
}

func (m *Manager) PointHasCoverage(pt orb.Point) bool {
	if !m.Enabled() {
		return false
	}
	return m.reg.PointHasCoverage(pt)
}

func (m *Manager) CellFilenameForPoint(pt orb.Point) (string, bool) {
	if !m.Enabled() {
		return "", false
	}
	return m.reg.CellFilenameForPoint(pt)
}

// AccuracyCE90 returns the absolute horizontal accuracy in meters at 90%
// confidence of the cell covering pt. Zero means the cell does not say.
func (m *Manager) AccuracyCE90(pt orb.Point) (float64, bool) {
	if !m.Enabled() {
		return 0, false
	}
	ce90, _, ok := m.reg.Accuracy(pt)
	return ce90, ok
}

// AccuracyLE90 is the vertical counterpart of AccuracyCE90
func (m *Manager) AccuracyLE90(pt orb.Point) (float64, bool) {
	if !m.Enabled() {
		return 0, false
	}
	_, le90, ok := m.reg.Accuracy(pt)
	return le90, ok
}

func (m *Manager) MeanSpacingMeters() (float64, bool) { return m.reg.MeanSpacingMeters() }
func (m *Manager) MinHeight() float64                  { return m.reg.MinHeight() }
func (m *Manager) MaxHeight() float64                  { return m.reg.MaxHeight() }

// OpenCell opens file as whichever cell type its name indicates, trying
// file.gz when file itself does not exist.
func (m *Manager) OpenCell(file string) bool {
	if file == "" {
		return false
	}
	if !isFile(file) {
		file += ".gz"
	}
	if !isFile(file) {
		return false
	}

	switch DetectCell(file) {
	case KindDtedCell:
		return m.OpenDtedCell(file)
	case KindSrtmCell:
		return m.OpenSrtmCell(file)
	case KindGeneralRasterCell:
		return m.OpenGeneralRasterCell(file)
	}
	m.log.Debug("Could not detect cell type", zap.String("file", file))
	return false
}

func (m *Manager) OpenDtedCell(file string) bool {
	return m.openWith(file, OpenDtedCell)
}

func (m *Manager) OpenSrtmCell(file string) bool {
	return m.openWith(file, OpenSrtmCell)
}

func (m *Manager) OpenGeneralRasterCell(file string) bool {
	return m.openWith(file, OpenGeneralRasterCell)
}

func (m *Manager) openWith(file string, open func(string) (Source, error)) bool {
	if m.reg.IsCellOpen(file) {
		return true
	}
	src, err := open(file)
	if err != nil {
		m.log.Debug("Open elevation cell failed", zap.String("file", file), zap.Error(err))
		return false
	}
	m.reg.AddSource(src)
	return true
}

// OpenDirectory opens every cell file directly under dir. A directory that
// already has a factory is reported as open.
func (m *Manager) OpenDirectory(dir string) bool {
	if _, ok := m.reg.FactoryForDirectory(dir); ok {
		return true
	}
	if !isDir(dir) {
		return false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}

	opened := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if m.OpenCell(filepath.Join(dir, e.Name())) {
			opened = true
		}
	}
	return opened
}

func (m *Manager) AddDtedFactory(dir string) bool {
	return m.addFactory(dir, func() (Factory, error) { return NewDtedFactory(dir), nil })
}

func (m *Manager) AddSrtmFactory(dir string) bool {
	return m.addFactory(dir, func() (Factory, error) { return NewSrtmFactory(dir), nil })
}

func (m *Manager) AddGeneralRasterFactory(dir string) bool {
	return m.addFactory(dir, func() (Factory, error) { return NewGeneralRasterFactory(dir) })
}

func (m *Manager) addFactory(dir string, build func() (Factory, error)) bool {
	if _, ok := m.reg.FactoryForDirectory(dir); ok {
		return true
	}
	if !isDir(dir) {
		return false
	}
	f, err := build()
	if err != nil {
		m.log.Debug("Add elevation factory failed", zap.String("dir", dir), zap.Error(err))
		return false
	}
	m.reg.AddFactory(f)
	m.log.Debug("Added elevation factory", zap.String("dir", dir), zap.Stringer("kind", f.Kind()))
	return true
}

// addDetected adds a factory for dir when its layout is recognized
func (m *Manager) addDetected(dir string) bool {
	switch DetectDirectory(dir) {
	case KindDtedDirectory:
		return m.AddDtedFactory(dir)
	case KindSrtmDirectory:
		return m.AddSrtmFactory(dir)
	case KindGeneralRasterDirectory:
		return m.AddGeneralRasterFactory(dir)
	}
	return false
}

// LoadElevationPath adds a factory for path itself when its layout is
// recognized, otherwise for each recognized immediate subdirectory.
func (m *Manager) LoadElevationPath(path string) bool {
	if !exists(path) {
		return false
	}
	m.mu.Lock()
	m.searchPaths = append(m.searchPaths, path)
	m.mu.Unlock()

	if m.addDetected(path) {
		return true
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}
	found := false
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if m.addDetected(filepath.Join(path, e.Name())) {
			found = true
		}
	}
	return found
}

func (m *Manager) CloseCell(file string) bool { return m.reg.CloseCell(file) }
func (m *Manager) CloseAllCells() error       { return m.reg.CloseAll() }
func (m *Manager) OpenCells() []string        { return m.reg.OpenCells() }
func (m *Manager) IsCellOpen(file string) bool {
	return m.reg.IsCellOpen(file)
}

func (m *Manager) MoveCellUpOne(file string) bool    { return m.reg.MoveUpOne(file) }
func (m *Manager) MoveCellDownOne(file string) bool  { return m.reg.MoveDownOne(file) }
func (m *Manager) MoveCellToTop(file string) bool    { return m.reg.MoveToTop(file) }
func (m *Manager) MoveCellToBottom(file string) bool { return m.reg.MoveToBottom(file) }
