package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedVersion indicates a stored version that is not three
// non-negative integers separated by dots. It needs operator correction.
var ErrMalformedVersion = errors.New("malformed firmware version")

// Version is the three-component firmware version (major, minor, patch).
type Version [3]int

// DefaultVersion is assigned to a ledger created on the first build.
var DefaultVersion = Version{1, 0, 0}

// ParseVersion parses "a.b.c". Surrounding whitespace is ignored.
func ParseVersion(s string) (Version, error) {
	var v Version
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != len(v) {
		return v, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
	}
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("%w: %q", ErrMalformedVersion, s)
		}
		v[i] = n
	}
	return v, nil
}

// String renders the version as "a.b.c".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

// Increment bumps the patch component. Patch and minor wrap at 10 and carry
// into the component on their left; major is unbounded.
func (v Version) Increment() Version {
	next := v
	next[2]++
	for i := len(next) - 1; i > 0; i-- {
		if next[i] > 9 {
			next[i] = 0
			next[i-1]++
		}
	}
	return next
}

// Number reads the tuple as a base-10 number, e.g. 1.2.7 -> 127.
func (v Version) Number() int {
	n := 0
	for _, c := range v {
		n = n*10 + c
	}
	return n
}

// MarshalJSON stores the version as its "a.b.c" string.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON accepts the "a.b.c" string form.
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedVersion, string(data))
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
