package style

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds annotation styles for the feature classes of a coverage
type Config struct {
	// Default applies to classes without an entry in Classes
	Default *ClassStyle `yaml:"default,omitempty"`
	// Classes is keyed by feature class name, case-insensitively
	Classes map[string]*ClassStyle `yaml:"classes,omitempty"`
}

// ClassStyle controls whether and how a feature class is built
type ClassStyle struct {
	Description string `yaml:"description,omitempty"`
	// Enabled defaults to true. Disabled classes resolve their feature type
	// but produce no features.
	Enabled     *bool         `yaml:"enabled,omitempty"`
	FillEnabled bool          `yaml:"fill_enabled,omitempty"`
	Thickness   int           `yaml:"thickness,omitempty"`
	PointRadius [2]float64    `yaml:"point_radius,omitempty"`
	PenColor    Color         `yaml:"pen_color,omitempty"`
	BrushColor  Color         `yaml:"brush_color,omitempty"`
	FeatureType string        `yaml:"feature_type,omitempty"`
	Filter      *FilterConfig `yaml:"filter,omitempty"`
}

// IsEnabled reports whether the class should produce features
func (s *ClassStyle) IsEnabled() bool {
	return s == nil || s.Enabled == nil || *s.Enabled
}

// Color is an RGB triple written as "R G B"
type Color struct {
	R, G, B uint8
}

// ParseColor parses "R G B" with components in 0..255
func ParseColor(s string) (Color, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return Color{}, fmt.Errorf("color %q: want \"R G B\"", s)
	}
	var rgb [3]uint8
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 8)
		if err != nil {
			return Color{}, fmt.Errorf("color %q: %w", s, err)
		}
		rgb[i] = uint8(v)
	}
	return Color{R: rgb[0], G: rgb[1], B: rgb[2]}, nil
}

func (c Color) String() string {
	return fmt.Sprintf("%d %d %d", c.R, c.G, c.B)
}

func (c *Color) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseColor(node.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Color) MarshalYAML() (any, error) {
	return c.String(), nil
}

// FilterConfig selects features of a class by attribute
type FilterConfig struct {
	// Include specifies which attribute names/values to include
	// If empty, all features are included (no filtering)
	Include map[string][]string `yaml:"include,omitempty"`
	// Exclude specifies which attribute names/values to exclude
	// Applied after include rules
	Exclude map[string][]string `yaml:"exclude,omitempty"`
	// RequireAny specifies that at least one of these attributes must be
	// present and non-empty
	RequireAny []string `yaml:"require_any,omitempty"`
}

// LoadConfig loads a style configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse style YAML: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration that enables every class
func DefaultConfig() *Config {
	return &Config{}
}

// ForClass returns the style for a feature class, falling back to Default
func (c *Config) ForClass(name string) *ClassStyle {
	if c == nil {
		return nil
	}
	for k, s := range c.Classes {
		if strings.EqualFold(k, name) {
			return s
		}
	}
	return c.Default
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode style YAML: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Filter checks if attributes match the filter configuration
type Filter struct {
	cfg *FilterConfig
}

// NewFilter creates a filter from configuration
func NewFilter(cfg *FilterConfig) *Filter {
	if cfg == nil {
		return &Filter{cfg: &FilterConfig{}}
	}
	return &Filter{cfg: cfg}
}

// Match checks if the given attributes match the filter rules
// Returns true if the feature should be included
func (f *Filter) Match(attrs map[string]string) bool {
	if f.cfg == nil {
		return true
	}

	if len(f.cfg.RequireAny) > 0 {
		found := false
		for _, key := range f.cfg.RequireAny {
			if v, ok := attrs[key]; ok && v != "" {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.cfg.Include) > 0 && !matchAny(f.cfg.Include, attrs) {
		return false
	}
	if len(f.cfg.Exclude) > 0 && matchAny(f.cfg.Exclude, attrs) {
		return false
	}
	return true
}

// matchAny reports whether any rule matches. A rule with no values matches
// any value of its attribute.
func matchAny(rules map[string][]string, attrs map[string]string) bool {
	for key, values := range rules {
		v, ok := attrs[key]
		if !ok {
			continue
		}
		if len(values) == 0 {
			return true
		}
		for _, want := range values {
			if want == v || want == "*" {
				return true
			}
		}
	}
	return false
}

// HasFilter returns true if filtering is enabled
func (f *Filter) HasFilter() bool {
	if f.cfg == nil {
		return false
	}
	return len(f.cfg.Include) > 0 || len(f.cfg.Exclude) > 0 || len(f.cfg.RequireAny) > 0
}
