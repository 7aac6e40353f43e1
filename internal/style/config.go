package style

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wegman-software/osm2scs-go/internal/geom"
)

// Config is the YAML style file: per-class feature filters and road
// appearance overrides
type Config struct {
	Buildings *FilterConfig `yaml:"buildings,omitempty"`
	Highways  *FilterConfig `yaml:"highways,omitempty"`
	Railways  *FilterConfig `yaml:"railways,omitempty"`
	// RoadAppearances maps a highway value to the unit and look it is drawn with.
	// Entries replace or extend the built-in table.
	RoadAppearances map[string]Appearance `yaml:"road_appearances,omitempty"`
}

// Appearance is the visual unit and look of a road
type Appearance struct {
	Unit string `yaml:"unit"`
	Look string `yaml:"look"`
}

// FilterConfig defines filtering rules for one feature class
type FilterConfig struct {
	// Include lists tag keys/values of which at least one must match.
	// An empty value list matches any value of the key.
	Include map[string][]string `yaml:"include,omitempty"`
	// Exclude is applied after Include
	Exclude map[string][]string `yaml:"exclude,omitempty"`
	// RequireAny lists keys of which at least one must be present
	RequireAny []string `yaml:"require_any,omitempty"`
}

// LoadConfig loads a style file. Classes the file leaves out keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse style YAML: %w", err)
	}

	for key, a := range cfg.RoadAppearances {
		if a.Unit == "" || a.Look == "" {
			return nil, fmt.Errorf("road appearance %q needs both unit and look", key)
		}
	}
	return cfg, nil
}

// DefaultConfig keeps every building and railway and drops proposed highways
func DefaultConfig() *Config {
	return &Config{
		Highways: &FilterConfig{
			Exclude: map[string][]string{"highway": {"proposed"}},
		},
	}
}

// RoadStyles converts the appearance overrides for the curve styler
func (c *Config) RoadStyles() map[string]geom.Style {
	if len(c.RoadAppearances) == 0 {
		return nil
	}
	out := make(map[string]geom.Style, len(c.RoadAppearances))
	for k, a := range c.RoadAppearances {
		out[k] = geom.Style{Unit: a.Unit, Look: a.Look}
	}
	return out
}

// Filters returns one filter per feature class
func (c *Config) Filters() *Filters {
	return &Filters{
		byClass: map[geom.Class]*Filter{
			geom.ClassBuilding: NewFilter(c.Buildings),
			geom.ClassHighway:  NewFilter(c.Highways),
			geom.ClassRailway:  NewFilter(c.Railways),
		},
	}
}

// Filters selects the filter matching a feature's class
type Filters struct {
	byClass map[geom.Class]*Filter
}

// Keep reports whether the feature passes the filter of its class
func (fs *Filters) Keep(f *geom.Feature) bool {
	flt, ok := fs.byClass[f.Class]
	if !ok {
		return true
	}
	return flt.Match(f.Tags)
}

// Filter checks tags against one filter configuration
type Filter struct {
	cfg *FilterConfig
}

// NewFilter creates a filter; a nil configuration matches everything
func NewFilter(cfg *FilterConfig) *Filter {
	if cfg == nil {
		return &Filter{cfg: &FilterConfig{}}
	}
	return &Filter{cfg: cfg}
}

// Match returns true if a feature with these tags should be kept
func (f *Filter) Match(tags map[string]string) bool {
	if len(f.cfg.RequireAny) > 0 {
		found := false
		for _, key := range f.cfg.RequireAny {
			if _, ok := tags[key]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.cfg.Include) > 0 {
		matched := false
		for key, values := range f.cfg.Include {
			if tagValue, ok := tags[key]; ok && valueMatches(values, tagValue) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for key, values := range f.cfg.Exclude {
		if tagValue, ok := tags[key]; ok && valueMatches(values, tagValue) {
			return false
		}
	}

	return true
}

// valueMatches treats an empty list and "*" as wildcards
func valueMatches(values []string, v string) bool {
	if len(values) == 0 {
		return true
	}
	for _, want := range values {
		if want == v || want == "*" {
			return true
		}
	}
	return false
}

// HasFilter returns true if any rule is configured
func (f *Filter) HasFilter() bool {
	return len(f.cfg.Include) > 0 || len(f.cfg.Exclude) > 0 || len(f.cfg.RequireAny) > 0
}
