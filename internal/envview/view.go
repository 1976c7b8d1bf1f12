package envview

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownCallable is returned by Invoke for a name with no callable bound.
var ErrUnknownCallable = errors.New("unknown callable")

// View is the read-only handle on the build environment passed through every
// resolution call.
type View interface {
	Get(key string) (Value, bool)
	Has(key string) bool
	// Invoke calls the named callable. When ref.PassesEnv() the callable
	// receives the view itself; otherwise it is called with no arguments.
	Invoke(ref CallableRef) (string, error)
}

// FlagSink receives preprocessor-style definitions for the host build.
type FlagSink interface {
	AppendBuildFlag(flag string)
	BuildFlags() []string
}

// Func is a Go-side callable. env is nil unless the call site passed __env__.
type Func func(env View) (string, error)

// MapView is an in-memory View backed by a map. It also implements FlagSink.
// A MapView is immutable for the duration of a build hook apart from the
// flag sink; it is not safe for concurrent use.
type MapView struct {
	values    map[string]Value
	callables map[string]Func
	flags     []string
}

// NewMapView copies values into a new view.
func NewMapView(values map[string]Value) *MapView {
	v := &MapView{
		values:    make(map[string]Value, len(values)),
		callables: make(map[string]Func),
	}
	for k, val := range values {
		v.values[k] = val
	}
	return v
}

// Set binds key to val. Intended for construction and tests.
func (m *MapView) Set(key string, val Value) {
	m.values[key] = val
}

// SetString binds key to a literal.
func (m *MapView) SetString(key, val string) {
	m.values[key] = Literal(val)
}

// RegisterFunc binds a Go callable under name.
func (m *MapView) RegisterFunc(name string, fn Func) {
	m.callables[name] = fn
}

// Get returns the value bound to key.
func (m *MapView) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is bound, either as a value or a callable.
func (m *MapView) Has(key string) bool {
	if _, ok := m.values[key]; ok {
		return true
	}
	_, ok := m.callables[key]
	return ok
}

// Invoke runs the callable registered under ref.Name. A key bound to a
// KindCallable value that points at another name is followed once.
func (m *MapView) Invoke(ref CallableRef) (string, error) {
	fn, ok := m.callables[ref.Name]
	if !ok {
		if v, bound := m.values[ref.Name]; bound && v.Kind == KindCallable && v.Call.Name != ref.Name {
			fn, ok = m.callables[v.Call.Name]
		}
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCallable, ref.Name)
	}
	var arg View
	if ref.PassesEnv() {
		arg = m
	}
	out, err := fn(arg)
	if err != nil {
		return "", fmt.Errorf("callable %s failed: %w", ref.Name, err)
	}
	return out, nil
}

// AppendBuildFlag records a flag for the host build.
func (m *MapView) AppendBuildFlag(flag string) {
	m.flags = append(m.flags, flag)
}

// BuildFlags returns the flags appended so far, in order.
func (m *MapView) BuildFlags() []string {
	out := make([]string, len(m.flags))
	copy(out, m.flags)
	return out
}

// Keys returns the bound keys in sorted order.
func (m *MapView) Keys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetString returns the literal bound to key, or def when the key is absent
// or not a literal. Lists are joined with spaces.
func GetString(v View, key, def string) string {
	val, ok := v.Get(key)
	if !ok {
		return def
	}
	switch val.Kind {
	case KindLiteral:
		return val.Literal
	case KindList:
		parts := make([]string, 0, len(val.List))
		for _, item := range val.List {
			if item.Kind == KindLiteral {
				parts = append(parts, item.Literal)
			}
		}
		return strings.Join(parts, " ")
	default:
		return def
	}
}
