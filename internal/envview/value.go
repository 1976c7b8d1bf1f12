// Package envview exposes the host build environment as a read-only,
// string-keyed store of tagged values.
//
// The host build system is not linked in. Its construction environment is
// dumped to a JSON or YAML file by a thin extra-script and loaded here with
// Load. Values can be plain strings, lists, or references to callables that
// the dump pre-evaluated or that Go code registered by name.
package envview

import "strings"

// Kind tags the variant held by a Value.
type Kind int

const (
	// KindLiteral is a plain string.
	KindLiteral Kind = iota
	// KindList is an ordered sequence of values.
	KindList
	// KindCallable names a zero- or one-argument callable.
	KindCallable
)

func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindList:
		return "list"
	case KindCallable:
		return "callable"
	default:
		return "unknown"
	}
}

// EnvArgSentinel as the lone callable argument means "pass the environment itself".
const EnvArgSentinel = "__env__"

// CallableRef names a callable and the raw arguments written at the call site.
type CallableRef struct {
	Name string
	Args []string
}

// PassesEnv reports whether the call asks for the environment as its argument.
func (c CallableRef) PassesEnv() bool {
	return len(c.Args) == 1 && strings.TrimSpace(c.Args[0]) == EnvArgSentinel
}

// Value is one environment entry. Exactly one of Literal, List or Call is
// meaningful, selected by Kind.
type Value struct {
	Kind    Kind
	Literal string
	List    []Value
	Call    CallableRef
}

// Literal wraps a string.
func Literal(s string) Value {
	return Value{Kind: KindLiteral, Literal: s}
}

// List wraps a sequence of values.
func List(items ...Value) Value {
	return Value{Kind: KindList, List: items}
}

// Strings builds a list of literals.
func Strings(items ...string) Value {
	list := make([]Value, len(items))
	for i, s := range items {
		list[i] = Literal(s)
	}
	return List(list...)
}

// Callable references a callable by name.
func Callable(name string, args ...string) Value {
	return Value{Kind: KindCallable, Call: CallableRef{Name: name, Args: args}}
}

// String is a debugging representation; it does not resolve anything.
func (v Value) String() string {
	switch v.Kind {
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindCallable:
		return "${" + v.Call.Name + "(" + strings.Join(v.Call.Args, ",") + ")}"
	default:
		return v.Literal
	}
}
