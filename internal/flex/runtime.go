// Package flex runs optional Lua style scripts that override how roads,
// railways and buildings are styled.
//
// A script may define any of these globals:
//
//	function road_appearance(tags) return unit, look end
//	function railway_look(tags) return look end
//	function building_height(tags) return meters end
//
// Returning nil (or not defining the function) keeps the built-in rule.
package flex

import (
	"fmt"
	"math"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wegman-software/osm2scs-go/internal/logger"
)

// Version is exposed to scripts as osm2scs.version
const Version = "1.0.0"

// Runtime owns one Lua state. Calls are serialized.
type Runtime struct {
	L  *lua.LState
	mu sync.Mutex

	roadAppearance lua.LValue
	railwayLook    lua.LValue
	buildingHeight lua.LValue
}

// NewRuntime creates a Lua runtime with the osm2scs API registered
func NewRuntime() *Runtime {
	r := &Runtime{L: lua.NewState()}
	r.registerAPI()
	return r
}

// Close releases Lua resources
func (r *Runtime) Close() {
	r.L.Close()
}

func (r *Runtime) registerAPI() {
	api := r.L.NewTable()
	api.RawSetString("version", lua.LString(Version))

	units := r.L.NewTable()
	for name, unit := range map[string]string{
		"road_10m": "osm_hw_10m",
		"road_5m":  "osm_hw_5m",
		"path":     "osm_hw_path",
		"rail":     "osm_rail",
	} {
		units.RawSetString(name, lua.LString(unit))
	}
	api.RawSetString("units", units)

	r.L.SetGlobal("osm2scs", api)
	RegisterTransforms(r.L)
	r.L.SetGlobal("print", r.L.NewFunction(r.luaPrint))
}

// LoadFile executes a style script
func (r *Runtime) LoadFile(path string) error {
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to load Lua file: %w", err)
	}
	r.extractHooks()
	return nil
}

// LoadString executes style code from a string
func (r *Runtime) LoadString(code string) error {
	if err := r.L.DoString(code); err != nil {
		return fmt.Errorf("failed to load Lua code: %w", err)
	}
	r.extractHooks()
	return nil
}

func (r *Runtime) extractHooks() {
	r.roadAppearance = r.L.GetGlobal("road_appearance")
	r.railwayLook = r.L.GetGlobal("railway_look")
	r.buildingHeight = r.L.GetGlobal("building_height")
}

func isFunc(v lua.LValue) bool {
	return v != nil && v.Type() == lua.LTFunction
}

// HasRoadAppearance reports whether the script defines road_appearance
func (r *Runtime) HasRoadAppearance() bool { return isFunc(r.roadAppearance) }

// HasRailwayLook reports whether the script defines railway_look
func (r *Runtime) HasRailwayLook() bool { return isFunc(r.railwayLook) }

// HasBuildingHeight reports whether the script defines building_height
func (r *Runtime) HasBuildingHeight() bool { return isFunc(r.buildingHeight) }

// RoadAppearance asks the script for a road's unit and look.
// ok is false when the hook is missing or returned nil.
func (r *Runtime) RoadAppearance(tags map[string]string) (unit, look string, ok bool, err error) {
	if !r.HasRoadAppearance() {
		return "", "", false, nil
	}
	ret, err := r.call(r.roadAppearance, 2, tags)
	if err != nil {
		return "", "", false, err
	}
	if ret[0] == lua.LNil {
		return "", "", false, nil
	}
	if ret[0].Type() != lua.LTString || ret[1].Type() != lua.LTString {
		return "", "", false, fmt.Errorf("road_appearance must return two strings, got %s and %s",
			ret[0].Type(), ret[1].Type())
	}
	return ret[0].String(), ret[1].String(), true, nil
}

// RailwayLook asks the script for a railway's look
func (r *Runtime) RailwayLook(tags map[string]string) (string, bool, error) {
	if !r.HasRailwayLook() {
		return "", false, nil
	}
	ret, err := r.call(r.railwayLook, 1, tags)
	if err != nil {
		return "", false, err
	}
	if ret[0] == lua.LNil {
		return "", false, nil
	}
	if ret[0].Type() != lua.LTString {
		return "", false, fmt.Errorf("railway_look must return a string, got %s", ret[0].Type())
	}
	return ret[0].String(), true, nil
}

// BuildingHeight asks the script for a building's height in meters
func (r *Runtime) BuildingHeight(tags map[string]string) (float64, bool, error) {
	if !r.HasBuildingHeight() {
		return 0, false, nil
	}
	ret, err := r.call(r.buildingHeight, 1, tags)
	if err != nil {
		return 0, false, err
	}
	n, isNum := ret[0].(lua.LNumber)
	if !isNum {
		if ret[0] == lua.LNil {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("building_height must return a number, got %s", ret[0].Type())
	}
	if h := float64(n); math.IsNaN(h) || math.IsInf(h, 0) || h <= 0 {
		return 0, false, nil
	}
	return float64(n), true, nil
}

// call invokes fn(tags) and returns exactly nret values
func (r *Runtime) call(fn lua.LValue, nret int, tags map[string]string) ([]lua.LValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tbl := r.L.NewTable()
	for k, v := range tags {
		tbl.RawSetString(k, lua.LString(v))
	}

	if err := r.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    nret,
		Protect: true,
	}, tbl); err != nil {
		return nil, fmt.Errorf("lua hook error: %w", err)
	}

	ret := make([]lua.LValue, nret)
	for i := nret - 1; i >= 0; i-- {
		ret[i] = r.L.Get(-1)
		r.L.Pop(1)
	}
	return ret, nil
}

// luaPrint routes script output to the debug log
func (r *Runtime) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	logger.Get().Debug("lua", zap.String("message", strings.Join(parts, "\t")))
	return 0
}
