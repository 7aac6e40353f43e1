package curve

import (
	"github.com/wegman-software/osm2scs-go/internal/geom"
)

// Visual units for generated roads and railways
const (
	UnitRoad10m = "osm_hw_10m"
	UnitRoad5m  = "osm_hw_5m"
	UnitPath    = "osm_hw_path"
	UnitRail    = "osm_rail"
)

// Railway looks
const (
	LookDefault = "default"
	LookSiding  = "siding"
)

// FallbackRoadStyle is used for highway values the table does not know
var FallbackRoadStyle = geom.Style{Unit: UnitRoad5m, Look: "unclassified"}

var roadStyles = map[string]geom.Style{
	"motorway":       {Unit: UnitRoad10m, Look: "motorway"},
	"motorway_link":  {Unit: UnitRoad10m, Look: "motorway"},
	"trunk":          {Unit: UnitRoad10m, Look: "motorway"},
	"trunk_link":     {Unit: UnitRoad10m, Look: "motorway"},
	"service":        {Unit: UnitRoad5m, Look: "service"},
	"primary":        {Unit: UnitRoad10m, Look: "primary"},
	"primary_link":   {Unit: UnitRoad10m, Look: "primary"},
	"secondary":      {Unit: UnitRoad10m, Look: "secondary"},
	"secondary_link": {Unit: UnitRoad10m, Look: "secondary"},
	"tertiary":       {Unit: UnitRoad10m, Look: "tertiary"},
	"tertiary_link":  {Unit: UnitRoad10m, Look: "tertiary"},
	"residential":    {Unit: UnitRoad5m, Look: "residential"},
	"living_street":  {Unit: UnitRoad5m, Look: "residential"},
	"pedestrian":     {Unit: UnitRoad5m, Look: "pedestrian"},
	"platform":       {Unit: UnitRoad5m, Look: "platform"},
	"unclassified":   {Unit: UnitRoad10m, Look: "unclassified"},
	"track":          {Unit: UnitPath, Look: "track"},
	"path":           {Unit: UnitPath, Look: "path"},
	"cycleway":       {Unit: UnitPath, Look: "cycleway"},
	"footway":        {Unit: UnitPath, Look: "footway"},
	"steps":          {Unit: UnitPath, Look: "footway"},
}

// RailwayStyle returns the rail appearance; sidings and yards get their own look
func RailwayStyle(tags map[string]string) geom.Style {
	switch tags["service"] {
	case "siding", "yard":
		return geom.Style{Unit: UnitRail, Look: LookSiding}
	}
	return geom.Style{Unit: UnitRail, Look: LookDefault}
}

// Excluded reports whether a linear feature describes something that is not built
func Excluded(f *geom.Feature) bool {
	return f.Class == geom.ClassHighway && f.Tags["highway"] == "proposed"
}

// Styler decides the visual unit and look of a linear feature
type Styler interface {
	Style(f *geom.Feature) geom.Style
}

// TableStyler styles features from the built-in table plus overrides
type TableStyler struct {
	roads map[string]geom.Style
}

// NewTableStyler returns a styler whose road table is the built-in one
// with overrides applied on top
func NewTableStyler(overrides map[string]geom.Style) *TableStyler {
	roads := make(map[string]geom.Style, len(roadStyles)+len(overrides))
	for k, v := range roadStyles {
		roads[k] = v
	}
	for k, v := range overrides {
		roads[k] = v
	}
	return &TableStyler{roads: roads}
}

// Style implements Styler
func (s *TableStyler) Style(f *geom.Feature) geom.Style {
	if f.Class == geom.ClassRailway {
		return RailwayStyle(f.Tags)
	}
	if st, ok := s.roads[f.Tags["highway"]]; ok {
		return st
	}
	return FallbackRoadStyle
}
