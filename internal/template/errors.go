package template

import (
	"errors"
	"fmt"
)

// ErrReferenceCycle is returned when expansion nests deeper than the
// resolver's depth limit, which in practice means a key refers to itself.
var ErrReferenceCycle = errors.New("template reference cycle")

// UnresolvedReferenceError reports a $NAME that is not bound in the
// environment. Token holds the original text so callers can pass it through.
type UnresolvedReferenceError struct {
	Name  string
	Token string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference %q (%s)", e.Name, e.Token)
}

// UnknownFunctionError reports a ${name(...)} call with no callable bound.
type UnknownFunctionError struct {
	Name string
	Err  error
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown function %q: %v", e.Name, e.Err)
}

func (e *UnknownFunctionError) Unwrap() error {
	return e.Err
}

// IsUnresolved reports whether err is (or wraps) an UnresolvedReferenceError.
func IsUnresolved(err error) bool {
	var target *UnresolvedReferenceError
	return errors.As(err, &target)
}
