package flex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wegman-software/osm2scs-go/internal/curve"
	"github.com/wegman-software/osm2scs-go/internal/geom"
)

const testStyle = `
function road_appearance(tags)
	if tags.highway == "bridleway" then
		return osm2scs.units.path, "path"
	end
	if tags.highway == "broken" then
		return 42
	end
	return nil
end

function railway_look(tags)
	if tags.usage == "tourism" then
		return "heritage"
	end
end

function building_height(tags)
	if tags["roof:height"] then
		return parse_height(tags.height or "")
	end
	if tags.building == "church" then
		return 25
	end
end
`

func newRuntime(t *testing.T, code string) *Runtime {
	t.Helper()
	rt := NewRuntime()
	t.Cleanup(rt.Close)
	if err := rt.LoadString(code); err != nil {
		t.Fatalf("failed to load script: %v", err)
	}
	return rt
}

func TestRuntimeWithoutHooks(t *testing.T) {
	rt := newRuntime(t, `x = 1`)

	if rt.HasRoadAppearance() || rt.HasRailwayLook() || rt.HasBuildingHeight() {
		t.Error("no hooks should be reported")
	}
	if _, _, ok, err := rt.RoadAppearance(map[string]string{"highway": "primary"}); ok || err != nil {
		t.Errorf("missing hook: ok=%v err=%v", ok, err)
	}
}

func TestRuntimeHooks(t *testing.T) {
	rt := newRuntime(t, testStyle)

	unit, look, ok, err := rt.RoadAppearance(map[string]string{"highway": "bridleway"})
	if err != nil || !ok || unit != "osm_hw_path" || look != "path" {
		t.Errorf("RoadAppearance = %q, %q, %v, %v", unit, look, ok, err)
	}

	if _, _, ok, err := rt.RoadAppearance(map[string]string{"highway": "primary"}); ok || err != nil {
		t.Errorf("nil result: ok=%v err=%v", ok, err)
	}

	if _, _, _, err := rt.RoadAppearance(map[string]string{"highway": "broken"}); err == nil {
		t.Error("expected error for non-string result")
	}

	look, ok, err = rt.RailwayLook(map[string]string{"usage": "tourism"})
	if err != nil || !ok || look != "heritage" {
		t.Errorf("RailwayLook = %q, %v, %v", look, ok, err)
	}

	h, ok, err := rt.BuildingHeight(map[string]string{"building": "church"})
	if err != nil || !ok || h != 25 {
		t.Errorf("BuildingHeight = %f, %v, %v", h, ok, err)
	}
	h, ok, err = rt.BuildingHeight(map[string]string{"roof:height": "3", "height": "14 m"})
	if err != nil || !ok || h != 14 {
		t.Errorf("BuildingHeight with parse_height = %f, %v, %v", h, ok, err)
	}
	if _, ok, err := rt.BuildingHeight(map[string]string{"building": "yes"}); ok || err != nil {
		t.Errorf("nil height: ok=%v err=%v", ok, err)
	}
}

func TestRuntimeNonFiniteHeight(t *testing.T) {
	rt := newRuntime(t, `function building_height(tags)
	if tags.kind == "nan" then return 0/0 end
	return 1/0
end`)

	for _, kind := range []string{"nan", "inf"} {
		if h, ok, err := rt.BuildingHeight(map[string]string{"kind": kind}); ok || err != nil {
			t.Errorf("%s: BuildingHeight = %f, %v, %v", kind, h, ok, err)
		}
	}
}

func TestRuntimeScriptError(t *testing.T) {
	rt := newRuntime(t, `function building_height(tags) error("boom") end`)
	if _, _, err := rt.BuildingHeight(map[string]string{}); err == nil {
		t.Error("expected error from failing hook")
	}

	bad := NewRuntime()
	defer bad.Close()
	if err := bad.LoadString(`this is not lua`); err == nil {
		t.Error("expected syntax error")
	}
}

func TestRuntimeLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "style.lua")
	if err := os.WriteFile(path, []byte(testStyle), 0644); err != nil {
		t.Fatal(err)
	}

	rt := NewRuntime()
	defer rt.Close()
	if err := rt.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if !rt.HasRoadAppearance() || !rt.HasRailwayLook() || !rt.HasBuildingHeight() {
		t.Error("all hooks should be found")
	}
}

func TestStyler(t *testing.T) {
	rt := newRuntime(t, testStyle)
	s := NewStyler(rt, curve.NewTableStyler(nil))

	tests := []struct {
		name string
		f    *geom.Feature
		want geom.Style
	}{
		{
			"hook overrides road",
			&geom.Feature{Class: geom.ClassHighway, Tags: map[string]string{"highway": "bridleway"}},
			geom.Style{Unit: "osm_hw_path", Look: "path"},
		},
		{
			"table when hook returns nil",
			&geom.Feature{Class: geom.ClassHighway, Tags: map[string]string{"highway": "primary"}},
			geom.Style{Unit: "osm_hw_10m", Look: "primary"},
		},
		{
			"table when hook fails",
			&geom.Feature{Class: geom.ClassHighway, Tags: map[string]string{"highway": "broken"}},
			curve.FallbackRoadStyle,
		},
		{
			"railway look override keeps unit",
			&geom.Feature{Class: geom.ClassRailway, Tags: map[string]string{"railway": "rail", "usage": "tourism"}},
			geom.Style{Unit: "osm_rail", Look: "heritage"},
		},
		{
			"railway siding from table",
			&geom.Feature{Class: geom.ClassRailway, Tags: map[string]string{"railway": "rail", "service": "yard"}},
			geom.Style{Unit: "osm_rail", Look: "siding"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Style(tt.f); got != tt.want {
				t.Errorf("Style = %+v, want %+v", got, tt.want)
			}
		})
	}

	if s.Errors() != 1 {
		t.Errorf("Errors = %d, want 1", s.Errors())
	}

	if h, ok := s.BuildingHeight(map[string]string{"building": "church"}); !ok || h != 25 {
		t.Errorf("BuildingHeight = %f, %v", h, ok)
	}
}
