package flex

import (
	"regexp"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Tag helpers available to style scripts

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	// Leading number of a measurement such as "12.5 m" or "40'"
	measureRegex = regexp.MustCompile(`^\s*(-?\d+(?:[.,]\d+)?)\s*(m|ft|')?\s*$`)
)

const feetToMeters = 0.3048

// RegisterTransforms installs the helpers as osm2scs.transforms and, for the
// common ones, as globals
func RegisterTransforms(L *lua.LState) {
	transforms := L.NewTable()

	L.SetField(transforms, "trim", L.NewFunction(luaTrim))
	L.SetField(transforms, "lower", L.NewFunction(luaLower))
	L.SetField(transforms, "upper", L.NewFunction(luaUpper))
	L.SetField(transforms, "clean_spaces", L.NewFunction(luaCleanSpaces))

	L.SetField(transforms, "parse_int", L.NewFunction(luaParseInt))
	L.SetField(transforms, "parse_float", L.NewFunction(luaParseFloat))
	L.SetField(transforms, "parse_bool", L.NewFunction(luaParseBool))
	L.SetField(transforms, "parse_height", L.NewFunction(luaParseHeight))
	L.SetField(transforms, "parse_layer", L.NewFunction(luaParseLayer))

	L.SetField(transforms, "is_link", L.NewFunction(luaIsLink))
	L.SetField(transforms, "has_any", L.NewFunction(luaHasAny))

	root := L.GetGlobal("osm2scs")
	if root == lua.LNil {
		root = L.NewTable()
		L.SetGlobal("osm2scs", root)
	}
	L.SetField(root.(*lua.LTable), "transforms", transforms)

	L.SetGlobal("trim", L.NewFunction(luaTrim))
	L.SetGlobal("parse_int", L.NewFunction(luaParseInt))
	L.SetGlobal("parse_float", L.NewFunction(luaParseFloat))
	L.SetGlobal("parse_bool", L.NewFunction(luaParseBool))
	L.SetGlobal("parse_height", L.NewFunction(luaParseHeight))
}

func luaTrim(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.TrimSpace(s)))
	return 1
}

func luaLower(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.ToLower(s)))
	return 1
}

func luaUpper(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.ToUpper(s)))
	return 1
}

// luaCleanSpaces collapses runs of whitespace and trims
func luaCleanSpaces(L *lua.LState) int {
	s := L.CheckString(1)
	cleaned := whitespaceRegex.ReplaceAllString(s, " ")
	L.Push(lua.LString(strings.TrimSpace(cleaned)))
	return 1
}

// luaParseInt parses an integer, truncating decimals; optional default
func luaParseInt(L *lua.LState) int {
	s := strings.TrimSpace(L.OptString(1, ""))
	def := L.OptInt64(2, 0)

	if val, err := strconv.ParseInt(s, 10, 64); err == nil {
		L.Push(lua.LNumber(val))
	} else if fval, err := strconv.ParseFloat(s, 64); err == nil {
		L.Push(lua.LNumber(int64(fval)))
	} else {
		L.Push(lua.LNumber(def))
	}
	return 1
}

// luaParseFloat parses a decimal number; optional default
func luaParseFloat(L *lua.LState) int {
	s := strings.TrimSpace(L.OptString(1, ""))
	def := float64(L.OptNumber(2, 0))

	if val, err := strconv.ParseFloat(s, 64); err == nil {
		L.Push(lua.LNumber(val))
	} else {
		L.Push(lua.LNumber(def))
	}
	return 1
}

func luaParseBool(L *lua.LState) int {
	s := strings.ToLower(strings.TrimSpace(L.OptString(1, "")))

	switch s {
	case "no", "false", "0", "off", "":
		L.Push(lua.LFalse)
	default:
		L.Push(lua.LTrue)
	}
	return 1
}

// luaParseHeight parses a length in meters ("12", "12.5 m", "40 ft").
// Returns nil when the value is not a positive length.
func luaParseHeight(L *lua.LState) int {
	if h, ok := ParseHeight(L.OptString(1, "")); ok {
		L.Push(lua.LNumber(h))
	} else {
		L.Push(lua.LNil)
	}
	return 1
}

// ParseHeight parses a height tag value into meters
func ParseHeight(s string) (float64, bool) {
	m := measureRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	if m[2] == "ft" || m[2] == "'" {
		v *= feetToMeters
	}
	return v, true
}

// luaParseLayer parses the layer tag, clamped to [-5, 5]
func luaParseLayer(L *lua.LState) int {
	layer, err := strconv.Atoi(strings.TrimSpace(L.OptString(1, "")))
	if err != nil {
		layer = 0
	}
	if layer < -5 {
		layer = -5
	} else if layer > 5 {
		layer = 5
	}
	L.Push(lua.LNumber(layer))
	return 1
}

// luaIsLink reports whether a highway value is a *_link ramp
func luaIsLink(L *lua.LState) int {
	L.Push(lua.LBool(strings.HasSuffix(L.OptString(1, ""), "_link")))
	return 1
}

// luaHasAny reports whether the tags table has any of the given keys
// Usage: has_any(tags, {"bridge", "tunnel"})
func luaHasAny(L *lua.LState) int {
	tags := L.CheckTable(1)
	keys := L.CheckTable(2)

	found := false
	keys.ForEach(func(_, k lua.LValue) {
		if found {
			return
		}
		if v := tags.RawGetString(lua.LVAsString(k)); v != lua.LNil {
			found = true
		}
	})
	L.Push(lua.LBool(found))
	return 1
}
