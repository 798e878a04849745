package elevation

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wegman-software/vmap-go/internal/keywordlist"
)

// OmdPath returns the metadata sidecar path for a general raster cell
func OmdPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".omd"
}

// IsGeneralRaster reports whether path has an .omd sidecar
func IsGeneralRaster(path string) bool {
	st, err := os.Stat(OmdPath(path))
	return err == nil && !st.IsDir()
}

// rasterInfo is the .omd description of a general raster cell
type rasterInfo struct {
	lines, samples int
	north, west    float64
	latSpacing     float64
	lonSpacing     float64
	scalar         string
	order          binary.ByteOrder
	null           float64
	min, max       float64
	hasMinMax      bool
}

func readRasterInfo(path string) (rasterInfo, error) {
	var info rasterInfo
	kwl, err := keywordlist.ParseFile(OmdPath(path))
	if err != nil {
		return info, err
	}

	ints := map[string]*int{"number_lines": &info.lines, "number_samples": &info.samples}
	for key, dst := range ints {
		v, ok := kwl.Find("", key)
		if !ok {
			return info, fmt.Errorf("missing %s", key)
		}
		if *dst, err = strconv.Atoi(strings.TrimSpace(v)); err != nil {
			return info, fmt.Errorf("bad %s: %w", key, err)
		}
	}

	floats := map[string]*float64{
		"tie_point_lat":                 &info.north,
		"tie_point_lon":                 &info.west,
		"decimal_degrees_per_pixel_lat": &info.latSpacing,
		"decimal_degrees_per_pixel_lon": &info.lonSpacing,
	}
	for key, dst := range floats {
		v, ok := kwl.Find("", key)
		if !ok {
			return info, fmt.Errorf("missing %s", key)
		}
		if *dst, err = strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return info, fmt.Errorf("bad %s: %w", key, err)
		}
	}
	if info.lines < 2 || info.samples < 2 || info.latSpacing <= 0 || info.lonSpacing <= 0 {
		return info, fmt.Errorf("degenerate post grid")
	}

	info.scalar = "int16"
	if v, ok := kwl.Find("", "scalar_type"); ok {
		info.scalar = strings.ToLower(strings.TrimSpace(v))
	}
	if scalarSize(info.scalar) == 0 {
		return info, fmt.Errorf("unsupported scalar_type %q", info.scalar)
	}

	info.order = binary.BigEndian
	if v, ok := kwl.Find("", "byte_order"); ok && strings.HasPrefix(strings.ToLower(strings.TrimSpace(v)), "little") {
		info.order = binary.LittleEndian
	}

	info.null = srtmNull
	if v, ok := kwl.Find("", "null_value"); ok {
		if info.null, err = strconv.ParseFloat(strings.TrimSpace(v), 64); err != nil {
			return info, fmt.Errorf("bad null_value: %w", err)
		}
	}

	minV, minOK := kwl.Find("", "min_value")
	maxV, maxOK := kwl.Find("", "max_value")
	if minOK && maxOK {
		info.min, err = strconv.ParseFloat(strings.TrimSpace(minV), 64)
		if err == nil {
			info.max, err = strconv.ParseFloat(strings.TrimSpace(maxV), 64)
		}
		info.hasMinMax = err == nil
	}
	return info, nil
}

func scalarSize(scalar string) int {
	switch scalar {
	case "int16", "uint16":
		return 2
	case "float32":
		return 4
	case "float64":
		return 8
	}
	return 0
}

// OpenGeneralRasterCell opens a .ras cell described by its .omd sidecar.
// Posts are stored line by line from the north-west tie point.
func OpenGeneralRasterCell(path string) (Source, error) {
	info, err := readRasterInfo(path)
	if err != nil {
		return nil, fmt.Errorf("general raster %s: %w", path, err)
	}

	size := scalarSize(info.scalar)
	if info.lines > math.MaxInt/size/info.samples {
		return nil, fmt.Errorf("general raster %s: %d x %d posts overflow", path, info.lines, info.samples)
	}
	want := info.lines * info.samples * size

	load := mapLoader(path)
	data, release, err := load()
	if err != nil {
		return nil, err
	}
	if len(data) < want {
		release()
		return nil, fmt.Errorf("general raster %s: file holds %d bytes, want %d", path, len(data), want)
	}

	samples, order := info.samples, info.order
	var decode func([]byte, int, int) float64
	switch info.scalar {
	case "int16":
		decode = func(b []byte, line, samp int) float64 {
			return float64(int16(order.Uint16(b[(line*samples+samp)*2:])))
		}
	case "uint16":
		decode = func(b []byte, line, samp int) float64 {
			return float64(order.Uint16(b[(line*samples+samp)*2:]))
		}
	case "float32":
		decode = func(b []byte, line, samp int) float64 {
			return float64(math.Float32frombits(order.Uint32(b[(line*samples+samp)*4:])))
		}
	default:
		decode = func(b []byte, line, samp int) float64 {
			return math.Float64frombits(order.Uint64(b[(line*samples+samp)*8:]))
		}
	}

	c := &cell{
		filename: path,
		kind:     KindGeneralRasterCell,
		grid: postGrid{
			lines:      info.lines,
			samples:    info.samples,
			north:      info.north,
			west:       info.west,
			latSpacing: info.latSpacing,
			lonSpacing: info.lonSpacing,
		},
		null:    info.null,
		size:    want,
		load:    load,
		decode:  decode,
		data:    data,
		release: release,
	}
	if info.hasMinMax {
		c.min, c.max = info.min, info.max
	} else {
		c.computeMinMax()
	}
	return c, nil
}
