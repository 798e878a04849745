package elevation

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	dtedUHLSize    = 80
	dtedACCOffset  = 728
	dtedDataOffset = 3428
	dtedNull       = -32767
)

// IsDtedFilename reports whether a base name looks like n32.dt2
func IsDtedFilename(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if len(base) != 7 {
		return false
	}
	return (base[0] == 'n' || base[0] == 's') && base[3] == '.' && base[4] == 'd' && base[5] == 't'
}

// parseDtedAngle decodes a DDDMMSSH origin field
func parseDtedAngle(field string) (float64, error) {
	if len(field) != 8 {
		return 0, fmt.Errorf("bad angle %q", field)
	}
	deg, err := strconv.Atoi(strings.TrimSpace(field[0:3]))
	if err != nil {
		return 0, fmt.Errorf("bad degrees %q: %w", field, err)
	}
	minutes, err := strconv.Atoi(field[3:5])
	if err != nil {
		return 0, fmt.Errorf("bad minutes %q: %w", field, err)
	}
	sec, err := strconv.Atoi(field[5:7])
	if err != nil {
		return 0, fmt.Errorf("bad seconds %q: %w", field, err)
	}
	v := float64(deg) + float64(minutes)/60 + float64(sec)/3600
	switch field[7] {
	case 'S', 's', 'W', 'w':
		v = -v
	}
	return v, nil
}

func parseDtedInt(field string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(field))
}

// dtedHeader holds the UHL fields needed to address posts
type dtedHeader struct {
	lon, lat             float64
	lonInterval          float64
	latInterval          float64
	numLonLines, numLats int
	absCE, absLE         float64
}

// parseDtedAccuracy reads a four character accuracy field; NA and blank
// fields are unknown.
func parseDtedAccuracy(field string) float64 {
	v, err := strconv.Atoi(strings.TrimSpace(field))
	if err != nil || v < 0 {
		return 0
	}
	return float64(v)
}

func parseDtedHeader(b []byte) (dtedHeader, error) {
	var h dtedHeader
	if len(b) < dtedDataOffset {
		return h, fmt.Errorf("file too short for header")
	}
	uhl := string(b[:dtedUHLSize])
	if !strings.HasPrefix(uhl, "UHL") {
		return h, fmt.Errorf("missing UHL record")
	}

	var err error
	if h.lon, err = parseDtedAngle(uhl[4:12]); err != nil {
		return h, err
	}
	if h.lat, err = parseDtedAngle(uhl[12:20]); err != nil {
		return h, err
	}
	lonTenths, err := parseDtedInt(uhl[20:24])
	if err != nil {
		return h, fmt.Errorf("bad longitude interval: %w", err)
	}
	latTenths, err := parseDtedInt(uhl[24:28])
	if err != nil {
		return h, fmt.Errorf("bad latitude interval: %w", err)
	}
	if h.numLonLines, err = parseDtedInt(uhl[47:51]); err != nil {
		return h, fmt.Errorf("bad longitude line count: %w", err)
	}
	if h.numLats, err = parseDtedInt(uhl[51:55]); err != nil {
		return h, fmt.Errorf("bad latitude point count: %w", err)
	}
	if lonTenths <= 0 || latTenths <= 0 || h.numLonLines < 2 || h.numLats < 2 {
		return h, fmt.Errorf("degenerate post grid")
	}
	h.lonInterval = float64(lonTenths) / 36000
	h.latInterval = float64(latTenths) / 36000

	if acc := string(b[dtedACCOffset : dtedACCOffset+11]); strings.HasPrefix(acc, "ACC") {
		h.absCE = parseDtedAccuracy(acc[3:7])
		h.absLE = parseDtedAccuracy(acc[7:11])
	}
	return h, nil
}

// OpenDtedCell opens a DTED level 0/1/2 cell
func OpenDtedCell(path string) (Source, error) {
	load := mapLoader(path)
	data, release, err := load()
	if err != nil {
		return nil, err
	}

	h, err := parseDtedHeader(data)
	recLen := 12 + 2*h.numLats
	want := dtedDataOffset + recLen*h.numLonLines
	if err == nil && len(data) < want {
		err = fmt.Errorf("file holds %d bytes, want %d", len(data), want)
	}
	if err != nil {
		release()
		return nil, fmt.Errorf("dted %s: %w", path, err)
	}

	lats := h.numLats
	c := &cell{
		filename: path,
		kind:     KindDtedCell,
		grid: postGrid{
			lines:      h.numLats,
			samples:    h.numLonLines,
			north:      h.lat + float64(h.numLats-1)*h.latInterval,
			west:       h.lon,
			latSpacing: h.latInterval,
			lonSpacing: h.lonInterval,
		},
		null:    dtedNull,
		ce90:    h.absCE,
		le90:    h.absLE,
		size:    want,
		load:    load,
		data:    data,
		release: release,
		decode: func(b []byte, line, samp int) float64 {
			// records run west to east, posts within a record south to north
			off := dtedDataOffset + samp*recLen + 8 + (lats-1-line)*2
			u := binary.BigEndian.Uint16(b[off:])
			v := int(u & 0x7fff)
			if u&0x8000 != 0 {
				v = -v
			}
			return float64(v)
		},
	}

	c.computeMinMax()
	return c, nil
}

// DtedCellPath returns <dir>/<e|w>DDD/<n|s>DD.<ext> for the cell covering
// lat, lon.
func DtedCellPath(dir string, lat, lon float64, ext string) string {
	la, lo := floorInt(lat), floorInt(lon)
	ew, ns := 'e', 'n'
	if lo < 0 {
		ew, lo = 'w', -lo
	}
	if la < 0 {
		ns, la = 's', -la
	}
	return filepath.Join(dir, fmt.Sprintf("%c%03d", ew, lo), fmt.Sprintf("%c%02d.%s", ns, la, ext))
}
