package keywordlist

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]string
		wantErr bool
	}{
		{
			name: "equals separator",
			input: `# elevation state
elevation.enabled=true
default_elevation_path=/data/elevation`,
			want: map[string]string{
				"elevation.enabled":      "true",
				"default_elevation_path": "/data/elevation",
			},
		},
		{
			name: "colon separator with whitespace",
			input: `  elevation_source0.filename:  /data/dted
  elevation_source0.type: dted_directory  `,
			want: map[string]string{
				"elevation_source0.filename": "/data/dted",
				"elevation_source0.type":     "dted_directory",
			},
		},
		{
			name:  "value keeps later separators",
			input: `elevation_source1.filename: C:/data/srtm`,
			want: map[string]string{
				"elevation_source1.filename": "C:/data/srtm",
			},
		},
		{
			name:    "missing separator",
			input:   "elevation.enabled",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kwl, err := Parse(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got := make(map[string]string)
			for _, k := range kwl.Keys() {
				v, _ := kwl.Find("", k)
				got[k] = v
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"true", true},
		{"TRUE", true},
		{"yes", true},
		{"1", true},
		{"on", true},
		{"enabled", true},
		{"false", false},
		{"no", false},
		{"0", false},
		{"", false},
		{"bogus", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseBool(tt.in); got != tt.want {
				t.Errorf("ParseBool(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNumberedPrefixes(t *testing.T) {
	kwl := New()
	kwl.Add("elevation_source10.filename", "/c")
	kwl.Add("elevation_source2.filename", "/b")
	kwl.Add("elevation_source2.type", "srtm_directory")
	kwl.Add("elevation_source0.filename", "/a")
	kwl.Add("elevation_sourceX.filename", "/ignored")
	kwl.Add("other_source1.filename", "/ignored")

	got := kwl.NumberedPrefixes("", "elevation_source", ".filename")
	want := []int{0, 2, 10}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NumberedPrefixes() mismatch (-want +got):\n%s", diff)
	}

	legacy := New()
	legacy.Add("elev.dted_cell3", "/x/n32.dt2")
	legacy.Add("elev.dted_cell1", "/x/n31.dt2")
	got = legacy.NumberedPrefixes("elev.", "dted_cell", "")
	if diff := cmp.Diff([]int{1, 3}, got); diff != "" {
		t.Errorf("NumberedPrefixes() legacy mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	kwl := New()
	kwl.AddBool("elevation.enabled", true)
	kwl.Add("elevation_source0.filename", "/data/dted")
	kwl.Add("elevation_source0.type", "dted_directory")
	kwl.Add("elevation.enabled", "false")

	var buf bytes.Buffer
	if err := kwl.Write(&buf); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	want := "elevation.enabled=false\nelevation_source0.filename=/data/dted\nelevation_source0.type=dted_directory\n"
	if buf.String() != want {
		t.Errorf("Write() = %q, want %q", buf.String(), want)
	}

	parsed, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if parsed.Len() != 3 {
		t.Errorf("Len() = %d, want 3", parsed.Len())
	}
	if v, ok := parsed.FindBool("elevation.", "enabled"); !ok || v {
		t.Errorf("FindBool(enabled) = %v, %v, want false, true", v, ok)
	}
}
