package vpf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/edsrzf/mmap-go"
)

// ErrRowOutOfRange is returned when a row number is outside [1, NumRows]
var ErrRowOutOfRange = errors.New("row out of range")

// TableError describes a malformed or unreadable table
type TableError struct {
	Path   string
	Reason string
	Err    error
}

func (e *TableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vpf table %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("vpf table %s: %s", e.Path, e.Reason)
}

func (e *TableError) Unwrap() error {
	return e.Err
}

// Column describes one field of a table header
type Column struct {
	Name        string
	Type        byte // T, I, S, F, R, D, K, X, C, Z, B or Y
	Count       int  // -1 for variable length
	KeyType     byte
	Description string
}

// Variable reports whether the column has a per-row element count
func (c Column) Variable() bool {
	return c.Count < 0
}

// Table is a read-only, memory-mapped VPF table
type Table struct {
	path    string
	file    *os.File
	data    mmap.MMap
	order   binary.ByteOrder
	columns []Column
	byName  map[string]int

	Description string
	Narrative   string

	dataStart int
	recLen    int // -1 for variable-length rows
	nrows     int
	index     []indexEntry
}

type indexEntry struct {
	pos    uint32
	length uint32
}

// OpenTable maps a table file and parses its header. Variable-length tables
// also load their row index.
func OpenTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &TableError{Path: path, Reason: "open", Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &TableError{Path: path, Reason: "stat", Err: err}
	}
	if info.Size() < 5 {
		f.Close()
		return nil, &TableError{Path: path, Reason: "file too short for header"}
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, &TableError{Path: path, Reason: "mmap", Err: err}
	}

	t := &Table{
		path:   path,
		file:   f,
		data:   data,
		byName: make(map[string]int),
	}

	if err := t.parseHeader(); err != nil {
		t.Close()
		return nil, err
	}

	if t.recLen > 0 {
		t.nrows = (len(t.data) - t.dataStart) / t.recLen
	} else {
		if err := t.loadIndex(); err != nil {
			t.Close()
			return nil, err
		}
	}

	return t, nil
}

// Close unmaps the table
func (t *Table) Close() error {
	var err error
	if t.data != nil {
		err = t.data.Unmap()
		t.data = nil
	}
	if t.file != nil {
		if cerr := t.file.Close(); err == nil {
			err = cerr
		}
		t.file = nil
	}
	return err
}

// Path returns the table's file path
func (t *Table) Path() string {
	return t.path
}

// NumRows returns the number of rows
func (t *Table) NumRows() int {
	return t.nrows
}

// Columns returns the table's column definitions
func (t *Table) Columns() []Column {
	return t.columns
}

// ColumnPosition returns the zero-based index of a column, or -1
func (t *Table) ColumnPosition(name string) int {
	if i, ok := t.byName[strings.ToLower(name)]; ok {
		return i
	}
	return -1
}

// parseHeader decodes the data definition:
//
//	int32 length, ['L'|'M'], [;] description ; narrative ;
//	name=T,count,keytype,description,vdt,tdx,doc: ... ;
func (t *Table) parseHeader() error {
	t.order = binary.LittleEndian
	switch t.data[4] {
	case 'M', 'm':
		t.order = binary.BigEndian
	}

	ddlen := int(int32(t.order.Uint32(t.data[:4])))
	if ddlen <= 0 || 4+ddlen > len(t.data) {
		return &TableError{Path: t.path, Reason: fmt.Sprintf("invalid header length %d", ddlen)}
	}
	t.dataStart = 4 + ddlen

	def := string(t.data[4:t.dataStart])
	if len(def) > 0 && (def[0] == 'L' || def[0] == 'l' || def[0] == 'M' || def[0] == 'm') {
		def = def[1:]
	}
	def = strings.TrimPrefix(def, ";")

	parts := strings.SplitN(def, ";", 3)
	if len(parts) < 3 {
		return &TableError{Path: t.path, Reason: "header missing description or narrative"}
	}
	t.Description = strings.TrimSpace(parts[0])
	t.Narrative = strings.TrimSpace(parts[1])

	recLen := 0
	for _, field := range strings.Split(parts[2], ":") {
		field = strings.TrimSpace(field)
		if field == "" || field == ";" {
			continue
		}
		col, err := parseColumn(field)
		if err != nil {
			return &TableError{Path: t.path, Reason: "column definition", Err: err}
		}
		if len(t.columns) == 0 && !strings.EqualFold(col.Name, "id") {
			return &TableError{Path: t.path, Reason: fmt.Sprintf("first column is %q, want id", col.Name)}
		}

		if col.Variable() || col.Type == 'K' {
			recLen = -1
		}
		if recLen >= 0 {
			recLen += elementSize(col.Type) * col.Count
		}

		t.byName[strings.ToLower(col.Name)] = len(t.columns)
		t.columns = append(t.columns, col)
	}

	if len(t.columns) == 0 {
		return &TableError{Path: t.path, Reason: "no columns"}
	}
	t.recLen = recLen
	return nil
}

func parseColumn(field string) (Column, error) {
	eq := strings.IndexByte(field, '=')
	if eq <= 0 || eq+1 >= len(field) {
		return Column{}, fmt.Errorf("malformed field %q", field)
	}

	col := Column{
		Name: strings.TrimSpace(field[:eq]),
		Type: upper(field[eq+1]),
	}
	if elementSize(col.Type) < 0 {
		return Column{}, fmt.Errorf("field %s: unknown type %q", col.Name, col.Type)
	}

	attrs := strings.Split(field[eq+2:], ",")
	// attrs[0] is the empty string before the first comma
	if len(attrs) < 2 {
		return Column{}, fmt.Errorf("field %s: missing count", col.Name)
	}
	count := strings.TrimSpace(attrs[1])
	if count == "*" {
		col.Count = -1
	} else {
		n, err := strconv.Atoi(count)
		if err != nil {
			return Column{}, fmt.Errorf("field %s: invalid count %q", col.Name, count)
		}
		col.Count = n
	}
	if len(attrs) > 2 && len(attrs[2]) > 0 {
		col.KeyType = attrs[2][0]
	}
	if len(attrs) > 3 {
		col.Description = strings.TrimSpace(attrs[3])
	}
	return col, nil
}

// elementSize returns the on-disk size of one element, 0 for types without a
// fixed size, and -1 for unknown types.
func elementSize(typ byte) int {
	switch typ {
	case 'T':
		return 1
	case 'S':
		return 2
	case 'I', 'F':
		return 4
	case 'R':
		return 8
	case 'D':
		return 20
	case 'C':
		return 8
	case 'Z':
		return 12
	case 'B':
		return 16
	case 'Y':
		return 24
	case 'K', 'X':
		return 0
	}
	return -1
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// IndexPath returns the variable-length index file name for a table path:
// the last character is replaced by 'x', or the second to last when the
// name ends in '.'.
func IndexPath(tablePath string) string {
	b := []byte(tablePath)
	if len(b) == 0 {
		return tablePath
	}
	if b[len(b)-1] == '.' && len(b) > 1 {
		b[len(b)-2] = 'x'
	} else {
		b[len(b)-1] = 'x'
	}
	return string(b)
}

func (t *Table) loadIndex() error {
	idxPath := IndexPath(t.path)
	raw, err := os.ReadFile(idxPath)
	if os.IsNotExist(err) {
		alt := []byte(idxPath)
		for i := len(alt) - 1; i >= 0; i-- {
			if alt[i] == 'x' {
				alt[i] = 'X'
				break
			}
		}
		raw, err = os.ReadFile(string(alt))
	}
	if err != nil {
		return &TableError{Path: t.path, Reason: "read row index", Err: err}
	}
	if len(raw) < 8 {
		return &TableError{Path: t.path, Reason: "row index too short"}
	}

	nrows := int(int32(t.order.Uint32(raw[0:4])))
	if nrows < 0 || 8+nrows*8 > len(raw) {
		return &TableError{Path: t.path, Reason: fmt.Sprintf("row index declares %d rows", nrows)}
	}

	t.index = make([]indexEntry, nrows)
	for i := range t.index {
		off := 8 + i*8
		t.index[i] = indexEntry{
			pos:    t.order.Uint32(raw[off:]),
			length: t.order.Uint32(raw[off+4:]),
		}
	}
	t.nrows = nrows
	return nil
}

// ReadRow decodes a row by its one-based number
func (t *Table) ReadRow(n int) (Row, error) {
	if n < 1 || n > t.nrows {
		return nil, fmt.Errorf("%s row %d of %d: %w", t.path, n, t.nrows, ErrRowOutOfRange)
	}

	var start, end int
	if t.recLen > 0 {
		start = t.dataStart + (n-1)*t.recLen
		end = start + t.recLen
	} else {
		e := t.index[n-1]
		start = int(e.pos)
		end = start + int(e.length)
	}
	if start < t.dataStart || end > len(t.data) || start > end {
		return nil, &TableError{Path: t.path, Reason: fmt.Sprintf("row %d extends beyond file", n)}
	}

	r := &reader{buf: t.data[start:end], order: t.order}
	row := make(Row, len(t.columns))
	for i, col := range t.columns {
		v, err := r.value(col)
		if err != nil {
			return nil, &TableError{Path: t.path, Reason: fmt.Sprintf("row %d column %s", n, col.Name), Err: err}
		}
		row[i] = v
	}
	return row, nil
}

// ColumnValues returns every row's value of a column as text
func (t *Table) ColumnValues(name string) ([]string, error) {
	pos := t.ColumnPosition(name)
	if pos < 0 {
		return nil, &TableError{Path: t.path, Reason: fmt.Sprintf("no column %q", name)}
	}

	values := make([]string, 0, t.nrows)
	for n := 1; n <= t.nrows; n++ {
		row, err := t.ReadRow(n)
		if err != nil {
			return nil, err
		}
		values = append(values, row.String(pos))
	}
	return values, nil
}
