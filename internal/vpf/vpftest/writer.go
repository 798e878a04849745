// Package vpftest writes small little-endian VPF tables for tests.
package vpftest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/paulmach/orb"
)

// Column defines a field. Count -1 marks a variable-length field.
type Column struct {
	Name  string
	Type  byte
	Count int
}

// Key is an id triplet value for K columns
type Key struct {
	ID     int
	TileID int
	ExtID  int
}

// Table is a table definition with rows of Go values: string for T and D,
// int for I and S, float64 for F and R, Key for K and []orb.Point for the
// coordinate types.
type Table struct {
	Description string
	Columns     []Column
	Rows        [][]any
}

// Variable reports whether rows need an index file
func (t Table) Variable() bool {
	for _, c := range t.Columns {
		if c.Count < 0 || c.Type == 'K' {
			return true
		}
	}
	return false
}

// Write writes the table, and its index file when rows are variable length
func (t Table) Write(path string) error {
	var header strings.Builder
	header.WriteString("L;")
	header.WriteString(t.Description)
	header.WriteString(";-;")
	for _, c := range t.Columns {
		count := "*"
		if c.Count >= 0 {
			count = fmt.Sprint(c.Count)
		}
		fmt.Fprintf(&header, "%s=%c,%s,N,%s,-,-,-:", c.Name, c.Type, count, c.Name)
	}
	header.WriteString(";")

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, int32(header.Len()))
	buf.WriteString(header.String())

	type span struct{ pos, length uint32 }
	spans := make([]span, 0, len(t.Rows))

	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d values, want %d", i+1, len(row), len(t.Columns))
		}
		start := buf.Len()
		for j, c := range t.Columns {
			if err := writeValue(&buf, c, row[j]); err != nil {
				return fmt.Errorf("row %d column %s: %w", i+1, c.Name, err)
			}
		}
		spans = append(spans, span{uint32(start), uint32(buf.Len() - start)})
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return err
	}
	if !t.Variable() {
		return nil
	}

	var idx bytes.Buffer
	binary.Write(&idx, binary.LittleEndian, int32(len(spans)))
	binary.Write(&idx, binary.LittleEndian, int32(header.Len()+4))
	for _, s := range spans {
		binary.Write(&idx, binary.LittleEndian, s.pos)
		binary.Write(&idx, binary.LittleEndian, s.length)
	}
	return os.WriteFile(indexPath(path), idx.Bytes(), 0644)
}

func indexPath(path string) string {
	b := []byte(path)
	if b[len(b)-1] == '.' {
		b[len(b)-2] = 'x'
	} else {
		b[len(b)-1] = 'x'
	}
	return string(b)
}

func writeValue(buf *bytes.Buffer, c Column, v any) error {
	le := binary.LittleEndian

	switch c.Type {
	case 'T', 'D':
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("want string, got %T", v)
		}
		if c.Type == 'D' {
			s = fmt.Sprintf("%-20s", s)
		}
		if c.Count < 0 {
			n := len(s)
			if c.Type == 'D' {
				n = 1
				s = s[:20]
			}
			binary.Write(buf, le, int32(n))
			buf.WriteString(s)
			return nil
		}
		width := c.Count
		if c.Type == 'D' {
			width = 20 * c.Count
		}
		if len(s) > width {
			s = s[:width]
		}
		buf.WriteString(s + strings.Repeat(" ", width-len(s)))
	case 'I', 'S':
		n, ok := v.(int)
		if !ok {
			return fmt.Errorf("want int, got %T", v)
		}
		if c.Count < 0 {
			binary.Write(buf, le, int32(1))
		}
		if c.Type == 'I' {
			binary.Write(buf, le, int32(n))
		} else {
			binary.Write(buf, le, int16(n))
		}
	case 'F', 'R':
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("want float64, got %T", v)
		}
		if c.Count < 0 {
			binary.Write(buf, le, int32(1))
		}
		if c.Type == 'F' {
			binary.Write(buf, le, math.Float32bits(float32(f)))
		} else {
			binary.Write(buf, le, math.Float64bits(f))
		}
	case 'K':
		k, ok := v.(Key)
		if !ok {
			return fmt.Errorf("want Key, got %T", v)
		}
		var tag byte
		parts := []int{k.ID, k.TileID, k.ExtID}
		for i, p := range parts {
			if p != 0 {
				tag |= 3 << (6 - 2*uint(i))
			}
		}
		buf.WriteByte(tag)
		for _, p := range parts {
			if p != 0 {
				binary.Write(buf, le, int32(p))
			}
		}
	case 'C', 'Z', 'B', 'Y':
		pts, ok := v.([]orb.Point)
		if !ok {
			return fmt.Errorf("want []orb.Point, got %T", v)
		}
		if c.Count < 0 {
			binary.Write(buf, le, int32(len(pts)))
		} else if len(pts) != c.Count {
			return fmt.Errorf("want %d points, got %d", c.Count, len(pts))
		}
		for _, p := range pts {
			coords := []float64{p[0], p[1]}
			if c.Type == 'Z' || c.Type == 'Y' {
				coords = append(coords, 0)
			}
			for _, f := range coords {
				if c.Type == 'C' || c.Type == 'Z' {
					binary.Write(buf, le, math.Float32bits(float32(f)))
				} else {
					binary.Write(buf, le, math.Float64bits(f))
				}
			}
		}
	case 'X':
	default:
		return fmt.Errorf("unsupported type %q", c.Type)
	}
	return nil
}
