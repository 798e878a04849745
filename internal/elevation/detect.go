package elevation

import (
	"os"
	"path/filepath"
	"strings"
)

// maxSniffEntries bounds how much of a directory is read when guessing its
// layout.
const maxSniffEntries = 25

// sniff reads up to maxSniffEntries entries of dir and reports whether any
// satisfies match.
func sniff(dir string, match func(os.DirEntry) bool) bool {
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	defer f.Close()

	entries, _ := f.ReadDir(maxSniffEntries)
	for _, e := range entries {
		if match(e) {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// IsDtedDirectory reports whether dir holds e###/w### longitude directories
func IsDtedDirectory(dir string) bool {
	if !isDir(dir) {
		return false
	}
	return sniff(dir, func(e os.DirEntry) bool {
		name := strings.ToLower(e.Name())
		return isDir(filepath.Join(dir, e.Name())) && len(name) == 4 && (name[0] == 'e' || name[0] == 'w')
	})
}

// IsSrtmDirectory reports whether dir holds SRTM named cells
func IsSrtmDirectory(dir string) bool {
	if !isDir(dir) {
		return false
	}
	return sniff(dir, func(e os.DirEntry) bool {
		return !e.IsDir() && IsSrtmFilename(e.Name())
	})
}

// IsGeneralRasterDirectory reports whether dir holds .ras cells. For a
// file it reports whether an .omd sidecar exists.
func IsGeneralRasterDirectory(path string) bool {
	if !isDir(path) {
		return IsGeneralRaster(path)
	}
	return sniff(path, func(e os.DirEntry) bool {
		return !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".ras")
	})
}

// DetectDirectory returns the factory kind matching dir's layout
func DetectDirectory(dir string) Kind {
	switch {
	case IsDtedDirectory(dir):
		return KindDtedDirectory
	case IsSrtmDirectory(dir):
		return KindSrtmDirectory
	case isDir(dir) && IsGeneralRasterDirectory(dir):
		return KindGeneralRasterDirectory
	}
	return KindUnknown
}

// DetectCell returns the cell kind matching a file name
func DetectCell(path string) Kind {
	switch {
	case IsDtedFilename(path):
		return KindDtedCell
	case IsSrtmFilename(path):
		return KindSrtmCell
	case IsGeneralRaster(path):
		return KindGeneralRasterCell
	}
	return KindUnknown
}
