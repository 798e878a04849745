package elevation

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const srtmNull = -32768

// Published SRTM absolute accuracy in meters
const (
	srtmCE90 = 20
	srtmLE90 = 16
)

// SRTM cell layouts keyed by file size
var srtmLayouts = map[int64]struct {
	posts int
	float bool
}{
	1201 * 1201 * 2: {1201, false},
	1201 * 1201 * 4: {1201, true},
	3601 * 3601 * 2: {3601, false},
	3601 * 3601 * 4: {3601, true},
}

// IsSrtmFilename reports whether a base name looks like N37W120.hgt or
// N37W120.hgt.gz in either case.
func IsSrtmFilename(path string) bool {
	base := filepath.Base(path)
	if len(base) != 11 && len(base) != 14 {
		return false
	}
	lower := strings.ToLower(base)
	if lower[0] != 'n' && lower[0] != 's' {
		return false
	}
	if lower[3] != 'e' && lower[3] != 'w' {
		return false
	}
	if lower[7] != '.' || !strings.HasPrefix(lower[8:], "hgt") {
		return false
	}
	if len(base) == 14 && lower[11:] != ".gz" {
		return false
	}
	return true
}

// parseSrtmCorner returns the south-west corner encoded in a cell name
func parseSrtmCorner(path string) (lat, lon float64, err error) {
	base := strings.ToLower(filepath.Base(path))
	if !IsSrtmFilename(base) {
		return 0, 0, fmt.Errorf("not an SRTM cell name: %s", base)
	}
	la, err := strconv.Atoi(base[1:3])
	if err != nil {
		return 0, 0, fmt.Errorf("bad latitude in %s: %w", base, err)
	}
	lo, err := strconv.Atoi(base[4:7])
	if err != nil {
		return 0, 0, fmt.Errorf("bad longitude in %s: %w", base, err)
	}
	lat, lon = float64(la), float64(lo)
	if base[0] == 's' {
		lat = -lat
	}
	if base[3] == 'w' {
		lon = -lon
	}
	return lat, lon, nil
}

// gzipLoader decompresses a cell into memory
func gzipLoader(path string) loader {
	return func() ([]byte, func() error, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()

		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		defer zr.Close()

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, zr); err != nil {
			return nil, nil, fmt.Errorf("decompress %s: %w", path, err)
		}
		return buf.Bytes(), nil, nil
	}
}

// OpenSrtmCell opens an SRTM .hgt or .hgt.gz cell, scanning it once for its
// height range.
func OpenSrtmCell(path string) (Source, error) {
	lat, lon, err := parseSrtmCorner(path)
	if err != nil {
		return nil, err
	}

	load := mapLoader(path)
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		load = gzipLoader(path)
	}
	data, release, err := load()
	if err != nil {
		return nil, err
	}

	layout, ok := srtmLayouts[int64(len(data))]
	if !ok {
		if release != nil {
			release()
		}
		return nil, fmt.Errorf("srtm %s: unexpected size %d", path, len(data))
	}

	n := layout.posts
	spacing := 1 / float64(n-1)
	c := &cell{
		filename: path,
		kind:     KindSrtmCell,
		grid: postGrid{
			lines:      n,
			samples:    n,
			north:      lat + 1,
			west:       lon,
			latSpacing: spacing,
			lonSpacing: spacing,
		},
		null:    srtmNull,
		ce90:    srtmCE90,
		le90:    srtmLE90,
		size:    len(data),
		load:    load,
		data:    data,
		release: release,
	}
	if layout.float {
		c.decode = func(b []byte, line, samp int) float64 {
			off := (line*n + samp) * 4
			return float64(math.Float32frombits(binary.BigEndian.Uint32(b[off:])))
		}
	} else {
		c.decode = func(b []byte, line, samp int) float64 {
			off := (line*n + samp) * 2
			return float64(int16(binary.BigEndian.Uint16(b[off:])))
		}
	}

	c.computeMinMax()
	return c, nil
}

// SrtmCellName returns the cell base name covering pt, e.g. N37W120.hgt
func SrtmCellName(lat, lon float64) string {
	la := int(math.Floor(lat))
	lo := int(math.Floor(lon))
	ns, ew := 'N', 'E'
	if la < 0 {
		ns, la = 'S', -la
	}
	if lo < 0 {
		ew, lo = 'W', -lo
	}
	return fmt.Sprintf("%c%02d%c%03d.hgt", ns, la, ew, lo)
}
