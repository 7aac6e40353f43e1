package extrude

import (
	"math"
	"strconv"
	"strings"
)

// HeightConfig holds the fallbacks used when a building has no usable height tag
type HeightConfig struct {
	Default      float64
	StoreyHeight float64
}

// DefaultHeightConfig returns the stock fallbacks: 8 units, 3 units per storey
func DefaultHeightConfig() HeightConfig {
	return HeightConfig{
		Default:      8.0,
		StoreyHeight: 3.0,
	}
}

// Height derives the extrusion height of a building from its tags:
// height, then building:levels times the storey height, then the default.
// Values that do not parse or are not positive fall through to the next rule.
func Height(tags map[string]string, cfg HeightConfig) float64 {
	if h, ok := parsePositive(tags["height"]); ok {
		return h
	}
	if levels, ok := parsePositive(tags["building:levels"]); ok {
		return levels * cfg.StoreyHeight
	}
	return cfg.Default
}

// parsePositive parses values like "12", "12.5", "12 m" and "12m"
func parsePositive(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.TrimSpace(strings.TrimSuffix(s, "m"))
	s = strings.Replace(s, ",", ".", 1)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, false
	}
	return v, true
}
