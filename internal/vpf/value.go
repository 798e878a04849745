package vpf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

var errShortRow = errors.New("row data truncated")

// Key is an id triplet: a primitive id, a tile id and an external id.
// Absent components are zero.
type Key struct {
	ID     int
	TileID int
	ExtID  int
}

// Value is one decoded field of a row
type Value struct {
	Type   byte
	Text   string
	Ints   []int64
	Floats []float64
	Coords []orb.Point
	Key    Key
}

// Row is a decoded table row, indexed by column position
type Row []Value

// String returns the value of column i as text. Numeric arrays are joined
// with spaces; coordinate columns are rendered as "lon lat" pairs.
func (r Row) String(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	v := r[i]
	switch v.Type {
	case 'T', 'D':
		return v.Text
	case 'I', 'S':
		return joinInts(v.Ints)
	case 'F', 'R':
		return joinFloats(v.Floats)
	case 'K':
		return strconv.Itoa(v.Key.ID)
	case 'C', 'Z', 'B', 'Y':
		parts := make([]string, 0, len(v.Coords))
		for _, p := range v.Coords {
			parts = append(parts, strconv.FormatFloat(p[0], 'f', -1, 64)+" "+strconv.FormatFloat(p[1], 'f', -1, 64))
		}
		return strings.Join(parts, ",")
	}
	return ""
}

// Int returns column i as an integer. Key columns yield the triplet's id;
// text columns are parsed.
func (r Row) Int(i int) (int, bool) {
	if i < 0 || i >= len(r) {
		return 0, false
	}
	v := r[i]
	switch v.Type {
	case 'I', 'S':
		if len(v.Ints) == 0 {
			return 0, false
		}
		return int(v.Ints[0]), true
	case 'K':
		return v.Key.ID, true
	case 'F', 'R':
		if len(v.Floats) == 0 || math.IsNaN(v.Floats[0]) {
			return 0, false
		}
		return int(v.Floats[0]), true
	case 'T':
		n, err := strconv.Atoi(strings.TrimSpace(v.Text))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Key returns the id triplet of a key column
func (r Row) Key(i int) (Key, bool) {
	if i < 0 || i >= len(r) || r[i].Type != 'K' {
		return Key{}, false
	}
	return r[i].Key, true
}

// Coordinates returns the points of a coordinate column (C, Z, B or Y) as
// lon/lat pairs; the third dimension is dropped.
func (r Row) Coordinates(i int) []orb.Point {
	if i < 0 || i >= len(r) {
		return nil
	}
	return r[i].Coords
}

func joinInts(v []int64) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.FormatInt(n, 10)
	}
	return strings.Join(parts, " ")
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// reader walks the bytes of one row
type reader struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, errShortRow
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) readInt32() (int32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(r.order.Uint32(b)), nil
}

func (r *reader) readFloat32() (float64, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return float64(math.Float32frombits(r.order.Uint32(b))), nil
}

func (r *reader) readFloat64() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(r.order.Uint64(b)), nil
}

func (r *reader) value(col Column) (Value, error) {
	v := Value{Type: col.Type}

	count := col.Count
	if col.Variable() && col.Type != 'K' && col.Type != 'X' {
		n, err := r.readInt32()
		if err != nil {
			return v, err
		}
		count = int(n)
		if count < 0 {
			return v, fmt.Errorf("negative element count %d", count)
		}
	}
	if size := elementSize(col.Type); size > 0 && count > r.remaining()/size {
		return v, errShortRow
	}

	switch col.Type {
	case 'T':
		b, err := r.take(count)
		if err != nil {
			return v, err
		}
		v.Text = strings.TrimSpace(strings.TrimRight(string(b), "\x00"))
	case 'D':
		b, err := r.take(20 * count)
		if err != nil {
			return v, err
		}
		v.Text = strings.TrimSpace(string(b))
	case 'S':
		v.Ints = make([]int64, count)
		for i := range v.Ints {
			b, err := r.take(2)
			if err != nil {
				return v, err
			}
			v.Ints[i] = int64(int16(r.order.Uint16(b)))
		}
	case 'I':
		v.Ints = make([]int64, count)
		for i := range v.Ints {
			n, err := r.readInt32()
			if err != nil {
				return v, err
			}
			v.Ints[i] = int64(n)
		}
	case 'F':
		v.Floats = make([]float64, count)
		for i := range v.Floats {
			f, err := r.readFloat32()
			if err != nil {
				return v, err
			}
			v.Floats[i] = f
		}
	case 'R':
		v.Floats = make([]float64, count)
		for i := range v.Floats {
			f, err := r.readFloat64()
			if err != nil {
				return v, err
			}
			v.Floats[i] = f
		}
	case 'K':
		k, err := r.key()
		if err != nil {
			return v, err
		}
		v.Key = k
	case 'C', 'Z', 'B', 'Y':
		pts, err := r.coords(col.Type, count)
		if err != nil {
			return v, err
		}
		v.Coords = pts
	case 'X':
	}
	return v, nil
}

// coords dispatches on the coordinate encoding: C and Z are float32 with two
// or three components, B and Y are float64 with two or three.
func (r *reader) coords(typ byte, count int) ([]orb.Point, error) {
	read := r.readFloat32
	dims := 2
	switch typ {
	case 'Z':
		dims = 3
	case 'B':
		read = r.readFloat64
	case 'Y':
		read = r.readFloat64
		dims = 3
	}

	pts := make([]orb.Point, 0, count)
	for i := 0; i < count; i++ {
		x, err := read()
		if err != nil {
			return nil, err
		}
		y, err := read()
		if err != nil {
			return nil, err
		}
		if dims == 3 {
			if _, err := read(); err != nil {
				return nil, err
			}
		}
		pts = append(pts, orb.Point{x, y})
	}
	return pts, nil
}

// key decodes an id triplet. The leading type byte packs three 2-bit size
// codes (0 absent, 1 byte, 2 short, 3 int) for id, tile id and external id.
func (r *reader) key() (Key, error) {
	b, err := r.take(1)
	if err != nil {
		return Key{}, err
	}
	var k Key

	fields := []*int{&k.ID, &k.TileID, &k.ExtID}
	for i, dst := range fields {
		code := (b[0] >> (6 - 2*uint(i))) & 3
		n, err := r.sized(code)
		if err != nil {
			return Key{}, err
		}
		*dst = n
	}
	return k, nil
}

func (r *reader) sized(code byte) (int, error) {
	switch code {
	case 1:
		b, err := r.take(1)
		if err != nil {
			return 0, err
		}
		return int(b[0]), nil
	case 2:
		b, err := r.take(2)
		if err != nil {
			return 0, err
		}
		return int(int16(r.order.Uint16(b))), nil
	case 3:
		n, err := r.readInt32()
		return int(n), err
	}
	return 0, nil
}
