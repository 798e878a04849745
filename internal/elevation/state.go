package elevation

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wegman-software/vmap-go/internal/keywordlist"
)

// Keywords recognized in a manager keyword list
const (
	KeyEnabled              = "elevation.enabled"
	KeyAutoLoad             = "elevation.auto_load_dted.enabled"
	KeyAutoSort             = "elevation.auto_sort.enabled"
	KeyDefaultElevationPath = "default_elevation_path"
	KeySourceBase           = "elevation_source"
	KeyFilenameSuffix       = ".filename"
	KeyTypeSuffix           = ".type"

	keyLegacyDtedCell      = "dted_cell"
	keyLegacyDtedDirectory = "dted_directory"
	keyLegacySrtmDirectory = "srtm_directory"
)

// LoadState configures the manager from kwl. Every key is looked up under
// prefix. It returns false when a numbered source has no filename or names
// an unknown type; the remaining entries are still applied.
func (m *Manager) LoadState(kwl *keywordlist.List, prefix string) bool {
	if v, ok := kwl.FindBool(prefix, KeyEnabled); ok {
		m.SetEnabled(v)
	}
	if v, ok := kwl.FindBool(prefix, KeyAutoLoad); ok {
		m.SetAutoLoad(v)
	}
	if v, ok := kwl.FindBool(prefix, KeyAutoSort); ok {
		m.SetAutoSort(v)
	}
	if v, ok := kwl.Find(prefix, KeyDefaultElevationPath); ok {
		m.SetDefaultElevationPath(v)
	} else if v, ok := kwl.Find("", KeyDefaultElevationPath); ok {
		m.SetDefaultElevationPath(v)
	}

	ok := true
	for _, n := range sourceNumbers(kwl, prefix) {
		base := fmt.Sprintf("%s%d", KeySourceBase, n)
		file, _ := kwl.Find(prefix, base+KeyFilenameSuffix)
		file = strings.TrimSpace(file)
		if file == "" {
			m.log.Warn("Elevation source has no filename", zap.String("key", prefix+base))
			ok = false
			continue
		}

		typ, hasType := kwl.Find(prefix, base+KeyTypeSuffix)
		if !hasType {
			m.openDetected(file)
			continue
		}
		kind, known := ParseKind(typ)
		if !known {
			m.log.Warn("Unknown elevation source type", zap.String("key", prefix+base), zap.String("type", typ))
			ok = false
			continue
		}
		m.openKind(kind, file)
	}

	m.loadLegacy(kwl, prefix, keyLegacyDtedCell, m.OpenDtedCell)
	m.loadLegacy(kwl, prefix, keyLegacyDtedDirectory, m.AddDtedFactory)
	m.loadLegacy(kwl, prefix, keyLegacySrtmDirectory, m.AddSrtmFactory)
	return ok
}

// sourceNumbers returns the sorted N of every elevation_sourceN keyword
func sourceNumbers(kwl *keywordlist.List, prefix string) []int {
	seen := make(map[int]bool)
	for _, suffix := range []string{KeyFilenameSuffix, KeyTypeSuffix} {
		for _, n := range kwl.NumberedPrefixes(prefix, KeySourceBase, suffix) {
			seen[n] = true
		}
	}
	nums := make([]int, 0, len(seen))
	for n := range seen {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func (m *Manager) openKind(kind Kind, file string) bool {
	switch kind {
	case KindDtedCell:
		return m.OpenDtedCell(file)
	case KindSrtmCell:
		return m.OpenSrtmCell(file)
	case KindGeneralRasterCell:
		return m.OpenGeneralRasterCell(file)
	case KindDtedDirectory:
		return m.AddDtedFactory(file)
	case KindSrtmDirectory:
		return m.AddSrtmFactory(file)
	case KindGeneralRasterDirectory:
		return m.AddGeneralRasterFactory(file)
	}
	return false
}

func (m *Manager) openDetected(file string) bool {
	if isDir(file) {
		return m.addDetected(file)
	}
	return m.OpenCell(file)
}

// loadLegacy applies the bare keyword and its numbered forms, e.g.
// dted_cell, dted_cell0, dted_cell1.
func (m *Manager) loadLegacy(kwl *keywordlist.List, prefix, key string, apply func(string) bool) {
	if v, ok := kwl.Find(prefix, key); ok && v != "" {
		apply(v)
	}
	for _, n := range kwl.NumberedPrefixes(prefix, key, "") {
		if v, ok := kwl.Find(prefix, fmt.Sprintf("%s%d", key, n)); ok && v != "" {
			apply(v)
		}
	}
}

// SaveState writes the manager settings, open cells and factories to kwl.
// Cells are numbered first, in priority order, then factories.
func (m *Manager) SaveState(kwl *keywordlist.List, prefix string) {
	kwl.AddBool(prefix+KeyEnabled, m.Enabled())
	kwl.AddBool(prefix+KeyAutoLoad, m.reg.AutoLoad())
	kwl.AddBool(prefix+KeyAutoSort, m.reg.AutoSort())
	if p := m.DefaultElevationPath(); p != "" {
		kwl.Add(prefix+KeyDefaultElevationPath, p)
	}

	n := 0
	add := func(file string, kind Kind) {
		base := fmt.Sprintf("%s%s%d", prefix, KeySourceBase, n)
		kwl.Add(base+KeyFilenameSuffix, file)
		kwl.Add(base+KeyTypeSuffix, kind.String())
		n++
	}
	for _, s := range m.reg.Sources() {
		add(s.Filename(), s.Kind())
	}
	for _, f := range m.reg.Factories() {
		add(f.Directory(), f.Kind())
	}
}
