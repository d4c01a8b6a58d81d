package interpreter

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/arijanluiken/tradescript/internal/ast"
)

// ValueKind identifies the dynamic type of a Value
type ValueKind int

const (
	NumberKind ValueKind = iota
	StringKind
	BooleanKind
	NullKind
	SeriesKind
	CallableKind
	ArrayKind
	MapKind
)

var kindNames = [...]string{
	NumberKind:   "number",
	StringKind:   "string",
	BooleanKind:  "boolean",
	NullKind:     "null",
	SeriesKind:   "series",
	CallableKind: "function",
	ArrayKind:    "array",
	MapKind:      "map",
}

func (k ValueKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

// Value is a runtime value. The set of implementations is closed.
type Value interface {
	Kind() ValueKind
	String() string
	value()
}

// Number is a float64 script number
type Number float64

// String is an immutable script string
type String string

// Boolean is true or false
type Boolean bool

// NullValue is the type of Null
type NullValue struct{}

// Null is the single null value
var Null Value = NullValue{}

func (Number) Kind() ValueKind    { return NumberKind }
func (String) Kind() ValueKind    { return StringKind }
func (Boolean) Kind() ValueKind   { return BooleanKind }
func (NullValue) Kind() ValueKind { return NullKind }

func (n Number) String() string  { return formatNumber(float64(n)) }
func (s String) String() string  { return string(s) }
func (b Boolean) String() string { return strconv.FormatBool(bool(b)) }
func (NullValue) String() string { return "null" }

func (Number) value()    {}
func (String) value()    {}
func (Boolean) value()   {}
func (NullValue) value() {}

func formatNumber(f float64) string {
	abs := math.Abs(f)
	if f == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Series is an append-only numeric history. Values are stored oldest first;
// scripts index it by bars back, so s[0] is the newest value.
type Series struct {
	values []float64
}

// NewSeries creates a series from values ordered oldest to newest
func NewSeries(values []float64) *Series {
	s := &Series{values: make([]float64, len(values))}
	copy(s.values, values)
	return s
}

// Len returns the number of bars in the series
func (s *Series) Len() int { return len(s.values) }

// At returns the value offset bars back. Offsets past the available history
// and NaN warmup values read as Null.
func (s *Series) At(offset int) Value {
	i := len(s.values) - 1 - offset
	if offset < 0 || i < 0 {
		return Null
	}
	if math.IsNaN(s.values[i]) {
		return Null
	}
	return Number(s.values[i])
}

// Push appends the value for a new bar
func (s *Series) Push(v float64) {
	s.values = append(s.values, v)
}

// Values returns a copy of the history, oldest first
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

func (*Series) Kind() ValueKind { return SeriesKind }
func (*Series) value()          {}

func (s *Series) String() string {
	return fmt.Sprintf("series(len=%d, current=%s)", len(s.values), s.At(0))
}

// BuiltinFunc implements a registry function. Arguments are positional.
type BuiltinFunc func(call *Call, args []Value) (Value, error)

// Callable is either a builtin reference or a closure over the Environment
// it was defined in.
type Callable struct {
	Name    string
	Params  []string
	Body    *ast.Block
	Env     *Environment
	Builtin BuiltinFunc
}

// IsBuiltin reports whether the callable dispatches to the registry
func (c *Callable) IsBuiltin() bool { return c.Builtin != nil }

func (*Callable) Kind() ValueKind { return CallableKind }
func (*Callable) value()          {}

func (c *Callable) String() string {
	name := c.Name
	if name == "" {
		name = "anonymous"
	}
	if c.IsBuiltin() {
		return "<builtin " + name + ">"
	}
	return "<fn " + name + ">"
}

// Array is an ordered, reference-shared list
type Array struct {
	Elements []Value
}

// NewArray creates an array holding elems
func NewArray(elems ...Value) *Array {
	return &Array{Elements: elems}
}

func (*Array) Kind() ValueKind { return ArrayKind }
func (*Array) value()          {}

func (a *Array) String() string {
	parts := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		parts[i] = quoted(e)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Map is a string-keyed record that keeps insertion order
type Map struct {
	keys   []string
	fields map[string]Value
}

// NewMap creates an empty map
func NewMap() *Map {
	return &Map{fields: make(map[string]Value)}
}

// Set stores v under key
func (m *Map) Set(key string, v Value) {
	if _, ok := m.fields[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.fields[key] = v
}

// Get returns the value stored under key
func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.fields[key]
	return v, ok
}

// Keys returns the keys in insertion order
func (m *Map) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of fields
func (m *Map) Len() int { return len(m.keys) }

func (*Map) Kind() ValueKind { return MapKind }
func (*Map) value()          {}

func (m *Map) String() string {
	parts := make([]string, len(m.keys))
	for i, k := range m.keys {
		parts[i] = k + ": " + quoted(m.fields[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func quoted(v Value) string {
	if s, ok := v.(String); ok {
		return strconv.Quote(string(s))
	}
	return v.String()
}

// Truthy reports whether v counts as true in a condition. Only null and
// false are falsy.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, NullValue:
		return false
	case Boolean:
		return bool(val)
	}
	return true
}

// Equal compares two values. Values of different kinds are never equal;
// series, arrays, maps and callables compare by identity.
func Equal(a, b Value) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Number:
		return x == b.(Number)
	case String:
		return x == b.(String)
	case Boolean:
		return x == b.(Boolean)
	case NullValue:
		return true
	}
	return a == b
}

// Native converts a value to plain Go data suitable for JSON encoding.
// NaN and infinities become nil.
func Native(v Value) interface{} {
	switch val := v.(type) {
	case nil, NullValue:
		return nil
	case Number:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case String:
		return string(val)
	case Boolean:
		return bool(val)
	case *Series:
		out := make([]interface{}, len(val.values))
		for i, f := range val.values {
			out[i] = Native(Number(f))
		}
		return out
	case *Array:
		out := make([]interface{}, len(val.Elements))
		for i, e := range val.Elements {
			out[i] = Native(e)
		}
		return out
	case *Map:
		out := make(map[string]interface{}, len(val.keys))
		for _, k := range val.keys {
			out[k] = Native(val.fields[k])
		}
		return out
	case *Callable:
		return val.String()
	}
	return nil
}

// FromNative converts decoded JSON/YAML data into a script value
func FromNative(x interface{}) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null, nil
	case Value:
		return v, nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(v), nil
	case int:
		return Number(v), nil
	case int64:
		return Number(v), nil
	case string:
		return String(v), nil
	case bool:
		return Boolean(v), nil
	case []float64:
		return NewSeries(v), nil
	case []interface{}:
		arr := &Array{Elements: make([]Value, len(v))}
		for i, e := range v {
			ev, err := FromNative(e)
			if err != nil {
				return nil, err
			}
			arr.Elements[i] = ev
		}
		return arr, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		m := NewMap()
		for _, k := range keys {
			ev, err := FromNative(v[k])
			if err != nil {
				return nil, err
			}
			m.Set(k, ev)
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", x)
}
