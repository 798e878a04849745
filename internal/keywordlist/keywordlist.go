package keywordlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// List is an ordered set of keyword/value pairs.
//
// Format:
//
//	# comment line
//	elevation.enabled=true
//	elevation_source0.filename: /data/dted
//
// Both '=' and ':' are accepted as separators when parsing; Write always uses '='.
type List struct {
	values map[string]string
	order  []string
}

// New returns an empty keyword list
func New() *List {
	return &List{values: make(map[string]string)}
}

// Parse reads a keyword list
func Parse(r io.Reader) (*List, error) {
	kwl := New()
	scanner := bufio.NewScanner(r)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}

		sep := strings.IndexAny(line, "=:")
		if sep <= 0 {
			return nil, fmt.Errorf("line %d: missing separator in %q", lineNo, line)
		}

		key := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])
		kwl.Add(key, value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading keyword list: %w", err)
	}

	return kwl, nil
}

// ParseFile reads and parses a keyword list from disk
func ParseFile(filename string) (*List, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Add sets key to value, replacing any existing value
func (l *List) Add(key, value string) {
	if _, ok := l.values[key]; !ok {
		l.order = append(l.order, key)
	}
	l.values[key] = value
}

// AddBool sets key to "true" or "false"
func (l *List) AddBool(key string, value bool) {
	l.Add(key, strconv.FormatBool(value))
}

// Find returns prefix+key's value
func (l *List) Find(prefix, key string) (string, bool) {
	v, ok := l.values[prefix+key]
	return v, ok
}

// FindBool returns prefix+key interpreted as a boolean. Accepts true/false,
// yes/no, on/off, enabled/disabled and 1/0.
func (l *List) FindBool(prefix, key string) (value, ok bool) {
	v, found := l.Find(prefix, key)
	if !found {
		return false, false
	}
	return ParseBool(v), true
}

// ParseBool converts a keyword value to a boolean, defaulting to false
func ParseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "y", "on", "enabled", "1":
		return true
	}
	return false
}

// Len returns the number of keywords
func (l *List) Len() int {
	return len(l.order)
}

// Keys returns every keyword in insertion order
func (l *List) Keys() []string {
	keys := make([]string, len(l.order))
	copy(keys, l.order)
	return keys
}

// NumberedPrefixes returns the sorted indices N for which a keyword of the
// form prefix+base+N+suffix exists, e.g. base "elevation_source" and suffix
// ".filename" match "elevation_source3.filename".
func (l *List) NumberedPrefixes(prefix, base, suffix string) []int {
	re := regexp.MustCompile("^" + regexp.QuoteMeta(prefix+base) + `(\d+)` + regexp.QuoteMeta(suffix) + "$")
	seen := make(map[int]bool)
	var nums []int
	for _, key := range l.order {
		m := re.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Write writes the keyword list, one key=value per line
func (l *List) Write(w io.Writer) error {
	for _, key := range l.order {
		if _, err := fmt.Fprintf(w, "%s=%s\n", key, l.values[key]); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes the keyword list to a file
func (l *List) WriteFile(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := l.Write(f); err != nil {
		return err
	}
	return f.Close()
}
