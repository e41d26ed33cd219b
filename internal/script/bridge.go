package script

import (
	"encoding/json"
	"math"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Bridge converts Lua values into Go values for the protocol layer.
type Bridge struct{}

// NewBridge creates a Bridge.
func NewBridge() *Bridge {
	return &Bridge{}
}

// ToGoValue converts a Lua value to a JSON-friendly Go value.
// Integral numbers become int64. Sequences become slices, other tables
// become maps keyed by the string form of the key. Functions and userdata
// are represented by their string form. Cycles are cut with nil.
func (b *Bridge) ToGoValue(lv lua.LValue) any {
	return b.toGo(lv, make(map[*lua.LTable]bool))
}

func (b *Bridge) toGo(lv lua.LValue, visiting map[*lua.LTable]bool) any {
	if lv == nil {
		return nil
	}

	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return v.String()
		}
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visiting[v] {
			return nil
		}
		visiting[v] = true
		defer delete(visiting, v)
		return b.tableToGo(v, visiting)
	default:
		return lv.String()
	}
}

func (b *Bridge) tableToGo(t *lua.LTable, visiting map[*lua.LTable]bool) any {
	isArray := true
	maxN, count := 0, 0
	t.ForEach(func(k, _ lua.LValue) {
		count++
		if kn, ok := k.(lua.LNumber); ok {
			n := int(kn)
			if float64(n) == float64(kn) && n > 0 {
				if n > maxN {
					maxN = n
				}
				return
			}
		}
		isArray = false
	})

	if isArray && maxN > 0 && count == maxN {
		arr := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = b.toGo(t.RawGetInt(i), visiting)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[k.String()] = b.toGo(v, visiting)
	})
	return m
}

// JSON encodes a Go value produced by ToGoValue.
func (b *Bridge) JSON(v any) string {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// Format renders a Lua value for variable listings.
// Strings are shown raw and tables as JSON.
func (b *Bridge) Format(lv lua.LValue) string {
	switch v := lv.(type) {
	case lua.LString:
		return string(v)
	case *lua.LTable:
		return b.JSON(b.ToGoValue(v))
	default:
		return lv.String()
	}
}

// TypeName returns the Lua type name of a value.
func (b *Bridge) TypeName(lv lua.LValue) string {
	return lv.Type().String()
}
