package envview

import "fmt"

// Layered looks keys up in each view in order. Post-build hooks receive the
// program environment and the project environment; keys such as BUILD_DIR
// may only be bound in the latter.
type Layered []View

// Get returns the first binding of key.
func (l Layered) Get(key string) (Value, bool) {
	for _, v := range l {
		if v == nil {
			continue
		}
		if val, ok := v.Get(key); ok {
			return val, true
		}
	}
	return Value{}, false
}

// Has reports whether any layer binds key.
func (l Layered) Has(key string) bool {
	for _, v := range l {
		if v != nil && v.Has(key) {
			return true
		}
	}
	return false
}

// Invoke calls the callable on the first layer that binds it.
func (l Layered) Invoke(ref CallableRef) (string, error) {
	for _, v := range l {
		if v != nil && v.Has(ref.Name) {
			return v.Invoke(ref)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCallable, ref.Name)
}
