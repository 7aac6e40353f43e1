package flex

import (
	"math"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func newState(t *testing.T) *lua.LState {
	t.Helper()
	L := lua.NewState()
	t.Cleanup(L.Close)
	RegisterTransforms(L)
	return L
}

func TestTransformTrim(t *testing.T) {
	L := newState(t)

	tests := map[string]string{
		`"  hello  "`: "hello",
		`"hello"`:     "hello",
		`""`:          "",
	}
	for in, want := range tests {
		if err := L.DoString(`result = trim(` + in + `)`); err != nil {
			t.Fatalf("failed to call trim: %v", err)
		}
		if got := L.GetGlobal("result").String(); got != want {
			t.Errorf("trim(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestTransformParseInt(t *testing.T) {
	L := newState(t)

	tests := []struct {
		input    string
		expected int64
	}{
		{"123", 123},
		{"-456", -456},
		{"  789  ", 789},
		{"3.14", 3},
		{"abc", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if err := L.DoString(`result = parse_int("` + tt.input + `")`); err != nil {
			t.Fatalf("failed to call parse_int: %v", err)
		}
		result := int64(L.GetGlobal("result").(lua.LNumber))
		if result != tt.expected {
			t.Errorf("parse_int(%q) = %d, want %d", tt.input, result, tt.expected)
		}
	}

	if err := L.DoString(`result = osm2scs.transforms.parse_int("invalid", 42)`); err != nil {
		t.Fatalf("failed to call parse_int with default: %v", err)
	}
	if result := int64(L.GetGlobal("result").(lua.LNumber)); result != 42 {
		t.Errorf("parse_int with default = %d, want 42", result)
	}
}

func TestTransformParseFloat(t *testing.T) {
	L := newState(t)

	if err := L.DoString(`a = parse_float("2.5"); b = parse_float("x", 1.5); c = parse_float(nil)`); err != nil {
		t.Fatalf("failed to call parse_float: %v", err)
	}
	if v := float64(L.GetGlobal("a").(lua.LNumber)); v != 2.5 {
		t.Errorf("parse_float(2.5) = %f", v)
	}
	if v := float64(L.GetGlobal("b").(lua.LNumber)); v != 1.5 {
		t.Errorf("parse_float default = %f, want 1.5", v)
	}
	if v := float64(L.GetGlobal("c").(lua.LNumber)); v != 0 {
		t.Errorf("parse_float(nil) = %f, want 0", v)
	}
}

func TestTransformParseBool(t *testing.T) {
	L := newState(t)

	tests := map[string]bool{
		"yes": true, "true": true, "1": true, "designated": true,
		"no": false, "false": false, "0": false, "off": false, "": false,
	}
	for in, want := range tests {
		if err := L.DoString(`result = parse_bool("` + in + `")`); err != nil {
			t.Fatalf("failed to call parse_bool: %v", err)
		}
		if got := L.GetGlobal("result") == lua.LTrue; got != want {
			t.Errorf("parse_bool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseHeight(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12", 12, true},
		{"12.5 m", 12.5, true},
		{"7,5m", 7.5, true},
		{"10 ft", 3.048, true},
		{"10'", 3.048, true},
		{"-2", 0, false},
		{"0", 0, false},
		{"tall", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseHeight(tt.in)
		if ok != tt.ok || math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseHeight(%q) = %f, %v; want %f, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}

	L := newState(t)
	if err := L.DoString(`a = parse_height("4 m"); b = parse_height("n/a")`); err != nil {
		t.Fatalf("failed to call parse_height: %v", err)
	}
	if v, ok := L.GetGlobal("a").(lua.LNumber); !ok || float64(v) != 4 {
		t.Errorf("parse_height(4 m) = %v", L.GetGlobal("a"))
	}
	if L.GetGlobal("b") != lua.LNil {
		t.Errorf("parse_height(n/a) = %v, want nil", L.GetGlobal("b"))
	}
}

func TestTransformParseLayer(t *testing.T) {
	L := newState(t)

	tests := map[string]int{"1": 1, "-2": -2, "12": 5, "-9": -5, "x": 0}
	for in, want := range tests {
		if err := L.DoString(`result = osm2scs.transforms.parse_layer("` + in + `")`); err != nil {
			t.Fatalf("failed to call parse_layer: %v", err)
		}
		if got := int(L.GetGlobal("result").(lua.LNumber)); got != want {
			t.Errorf("parse_layer(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestTransformHelpers(t *testing.T) {
	L := newState(t)

	code := `
		local tr = osm2scs.transforms
		link = tr.is_link("primary_link")
		notlink = tr.is_link("primary")
		spaced = tr.clean_spaces("  a   b  ")
		upper = tr.upper("abc")
		lower = tr.lower("ABC")
		any = tr.has_any({bridge = "yes"}, {"tunnel", "bridge"})
		none = tr.has_any({highway = "primary"}, {"tunnel", "bridge"})
	`
	if err := L.DoString(code); err != nil {
		t.Fatalf("helpers failed: %v", err)
	}

	if L.GetGlobal("link") != lua.LTrue || L.GetGlobal("notlink") != lua.LFalse {
		t.Error("is_link returned wrong results")
	}
	if got := L.GetGlobal("spaced").String(); got != "a b" {
		t.Errorf("clean_spaces = %q, want %q", got, "a b")
	}
	if L.GetGlobal("upper").String() != "ABC" || L.GetGlobal("lower").String() != "abc" {
		t.Error("upper/lower returned wrong results")
	}
	if L.GetGlobal("any") != lua.LTrue || L.GetGlobal("none") != lua.LFalse {
		t.Error("has_any returned wrong results")
	}
}
