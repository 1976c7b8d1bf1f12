// Package template expands build-environment templates into literal command
// lines.
//
// Resolution is pure apart from file-existence checks: files referenced by a
// template are reported as CopyActions in the Result and only copied when the
// caller passes them to Materialize.
package template

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rescale/fwrelease/internal/envview"
)

// Default option values.
const (
	DefaultMaxDepth = 32
	sourceSentinel  = "SOURCE"
)

// DefaultDenylist holds keys that always resolve to "". The upload port is
// chosen by the technician at flash time, never baked into a release.
var DefaultDenylist = []string{"UPLOAD_PORT"}

// DefaultInterpreterMarkers identify the interpreter running the host
// build; paths containing one are never staged.
var DefaultInterpreterMarkers = []string{"python"}

// Options configures a Resolver.
type Options struct {
	// StagingDir receives referenced files. Empty disables staging.
	StagingDir string
	// Denylist keys resolve to "" regardless of the environment. They are
	// added to DefaultDenylist, which always applies.
	Denylist []string
	// InterpreterMarkers are case-insensitive substrings of paths to never stage.
	InterpreterMarkers []string
	// Strict makes an unresolved reference an error. Otherwise the original
	// $NAME text is kept and reported in Result.Unresolved.
	Strict bool
	// MaxDepth bounds recursive expansion.
	MaxDepth int
}

// CopyAction is a file the template referenced that belongs in the staging dir.
type CopyAction struct {
	Source string
	Dest   string
}

// Result is a fully expanded template and its pending side effects.
type Result struct {
	Value      string
	Copies     []CopyAction
	Unresolved []string
}

// Resolver expands values from one environment view.
type Resolver struct {
	view envview.View
	opts Options
}

// New returns a resolver over view. Zero-valued options get defaults.
func New(view envview.View, opts Options) *Resolver {
	opts.Denylist = withDefaultDenylist(opts.Denylist)
	if opts.InterpreterMarkers == nil {
		opts.InterpreterMarkers = DefaultInterpreterMarkers
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Resolver{view: view, opts: opts}
}

func withDefaultDenylist(extra []string) []string {
	out := make([]string, 0, len(DefaultDenylist)+len(extra))
	seen := make(map[string]bool)
	for _, key := range append(append([]string{}, DefaultDenylist...), extra...) {
		if key = strings.TrimSpace(key); key != "" && !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out
}

// WithStagingDir returns a copy of r that stages into dir.
func (r *Resolver) WithStagingDir(dir string) *Resolver {
	c := *r
	c.opts.StagingDir = dir
	return &c
}

// state accumulates side effects for one Resolve call.
type state struct {
	copies     []CopyAction
	seen       map[string]bool
	unresolved []string
}

func (s *state) addCopy(c CopyAction) {
	if s.seen[c.Dest] {
		return
	}
	s.seen[c.Dest] = true
	s.copies = append(s.copies, c)
}

// Resolve expands v into a literal string.
func (r *Resolver) Resolve(v envview.Value) (Result, error) {
	st := &state{seen: make(map[string]bool)}
	out, err := r.resolveValue(st, v, 0)
	if err != nil {
		return Result{}, err
	}
	return Result{Value: out, Copies: st.copies, Unresolved: st.unresolved}, nil
}

// ResolveString expands a raw template string.
func (r *Resolver) ResolveString(s string) (Result, error) {
	return r.Resolve(envview.Literal(s))
}

// ResolveKey expands the value bound to key.
func (r *Resolver) ResolveKey(key string) (Result, error) {
	v, ok := r.view.Get(key)
	if !ok {
		return Result{}, &UnresolvedReferenceError{Name: key, Token: "$" + key}
	}
	return r.Resolve(v)
}

func (r *Resolver) resolveValue(st *state, v envview.Value, depth int) (string, error) {
	if depth > r.opts.MaxDepth {
		return "", fmt.Errorf("%w: exceeded depth %d at %s", ErrReferenceCycle, r.opts.MaxDepth, v.String())
	}
	switch v.Kind {
	case envview.KindList:
		parts := make([]string, 0, len(v.List))
		for _, item := range v.List {
			if item.Kind == envview.KindLiteral {
				item = envview.Literal(stripQuotes(item.Literal))
			}
			s, err := r.resolveValue(st, item, depth+1)
			if err != nil {
				return "", err
			}
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " "), nil
	case envview.KindCallable:
		return r.invoke(v.Call.Name, v.Call.Args)
	default:
		return r.resolveString(st, v.Literal, depth)
	}
}

func (r *Resolver) resolveString(st *state, s string, depth int) (string, error) {
	if depth > r.opts.MaxDepth {
		return "", fmt.Errorf("%w: exceeded depth %d at %q", ErrReferenceCycle, r.opts.MaxDepth, s)
	}

	if words := splitWords(s); len(words) > 1 {
		parts := make([]string, 0, len(words))
		for _, w := range words {
			out, err := r.resolveString(st, trimQuotes(w), depth+1)
			if err != nil {
				return "", err
			}
			if out = strings.TrimSpace(out); out != "" {
				parts = append(parts, out)
			}
		}
		return strings.Join(parts, " "), nil
	}

	unquoted := stripQuotes(s)
	tokens := scan(unquoted)
	if countRefs(tokens) == 0 {
		if text := literalText(tokens); text != unquoted {
			return r.terminal(st, text), nil
		}
		return r.terminal(st, s), nil
	}

	if len(tokens) == 1 {
		return r.resolveToken(st, tokens[0], depth)
	}

	var b strings.Builder
	for _, tok := range tokens {
		if tok.kind == tokLiteral {
			b.WriteString(tok.raw)
			continue
		}
		out, err := r.resolveToken(st, tok, depth)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}
	return r.terminal(st, b.String()), nil
}

func (r *Resolver) resolveToken(st *state, tok token, depth int) (string, error) {
	switch tok.kind {
	case tokCall:
		return r.invoke(tok.name, tok.args)
	case tokVar:
		return r.resolveRef(st, tok, depth)
	default:
		return tok.raw, nil
	}
}

func (r *Resolver) resolveRef(st *state, tok token, depth int) (string, error) {
	name := tok.name
	for _, denied := range r.opts.Denylist {
		if name == denied {
			return "", nil
		}
	}
	if strings.EqualFold(name, sourceSentinel) {
		path, err := r.defaultFirmwarePath(depth + 1)
		if err != nil {
			return "", err
		}
		return r.resolveString(st, path, depth+1)
	}
	if v, ok := r.view.Get(name); ok {
		return r.resolveValue(st, v, depth+1)
	}

	unresolved := &UnresolvedReferenceError{Name: name, Token: tok.raw}
	if r.opts.Strict {
		return "", unresolved
	}
	st.unresolved = append(st.unresolved, tok.raw)
	return tok.raw, nil
}

func (r *Resolver) invoke(name string, args []string) (string, error) {
	ref := envview.CallableRef{Name: name}
	if len(args) == 1 && strings.TrimSpace(args[0]) == envview.EnvArgSentinel {
		ref.Args = []string{envview.EnvArgSentinel}
	}
	out, err := r.view.Invoke(ref)
	if err != nil {
		if errors.Is(err, envview.ErrUnknownCallable) {
			return "", &UnknownFunctionError{Name: name, Err: err}
		}
		return "", err
	}
	return out, nil
}

// terminal handles a fully literal value: an existing file is reported for
// staging and replaced with its base name.
func (r *Resolver) terminal(st *state, s string) string {
	path := stripQuotes(s)
	if path == "" || r.opts.StagingDir == "" || r.isInterpreter(path) {
		return s
	}
	src, ok := existingFile(path)
	if !ok {
		return s
	}
	base := baseName(path)
	st.addCopy(CopyAction{Source: src, Dest: filepath.Join(r.opts.StagingDir, base)})
	return base
}

func (r *Resolver) isInterpreter(path string) bool {
	lower := strings.ToLower(path)
	for _, marker := range r.opts.InterpreterMarkers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// DefaultFirmwarePath is the build-output image: PROG_PATH with its
// extension swapped to .bin when that file exists.
func (r *Resolver) DefaultFirmwarePath() (string, error) {
	return r.defaultFirmwarePath(0)
}

func (r *Resolver) defaultFirmwarePath(depth int) (string, error) {
	v, ok := r.view.Get("PROG_PATH")
	if !ok {
		return "", &UnresolvedReferenceError{Name: "PROG_PATH", Token: "$SOURCE"}
	}
	plain := r.WithStagingDir("")
	prog, err := plain.resolveValue(&state{seen: make(map[string]bool)}, v, depth+1)
	if err != nil {
		return "", err
	}
	prog = stripQuotes(prog)
	if ext := filepath.Ext(prog); ext != "" {
		bin := strings.TrimSuffix(prog, ext) + ".bin"
		if _, ok := existingFile(bin); ok {
			return bin, nil
		}
	}
	return prog, nil
}

// existingFile reports whether path names a regular file, trying the
// forward-slash form of Windows-style paths as well.
func existingFile(path string) (string, bool) {
	for _, candidate := range []string{path, strings.ReplaceAll(path, `\`, "/")} {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}

// baseName splits on either slash style so Windows paths work everywhere.
func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}
