package template

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokLiteral tokenKind = iota
	tokVar
	tokCall
)

// token is one piece of a template string. raw is the exact source text.
type token struct {
	kind   tokenKind
	raw    string
	name   string
	args   []string
	braced bool
}

func isIdentByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return true
}

// scan splits s into literal text, $NAME / ${NAME} references and
// ${name(args)} calls. A "$" that does not start a reference is kept as
// literal text, so "$$A" is a dollar followed by $A.
func scan(s string) []token {
	var tokens []token
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, token{kind: tokLiteral, raw: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); {
		if s[i] != '$' {
			lit.WriteByte(s[i])
			i++
			continue
		}
		if i+1 < len(s) && s[i+1] == '{' {
			end := closingBrace(s, i+2)
			if end < 0 {
				lit.WriteByte('$')
				i++
				continue
			}
			raw := s[i : end+1]
			if tok, ok := parseBraced(raw, s[i+2:end]); ok {
				flush()
				tokens = append(tokens, tok)
			} else {
				lit.WriteString(raw)
			}
			i = end + 1
			continue
		}
		j := i + 1
		for j < len(s) && isIdentByte(s[j]) {
			j++
		}
		if j == i+1 {
			lit.WriteByte('$')
			i++
			continue
		}
		flush()
		tokens = append(tokens, token{kind: tokVar, raw: s[i:j], name: s[i+1 : j]})
		i = j
	}
	flush()
	return tokens
}

// closingBrace returns the index of the "}" closing a "${" whose body starts
// at from, skipping over a parenthesised argument list.
func closingBrace(s string, from int) int {
	depth := 0
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case '}':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseBraced(raw, body string) (token, bool) {
	body = strings.TrimSpace(body)
	if open := strings.IndexByte(body, '('); open > 0 && strings.HasSuffix(body, ")") {
		name := strings.TrimSpace(body[:open])
		if !isIdent(name) {
			return token{}, false
		}
		var args []string
		inner := strings.TrimSpace(body[open+1 : len(body)-1])
		if inner != "" {
			for _, a := range strings.Split(inner, ",") {
				args = append(args, strings.TrimSpace(a))
			}
		}
		return token{kind: tokCall, raw: raw, name: name, args: args, braced: true}, true
	}
	if isIdent(body) {
		return token{kind: tokVar, raw: raw, name: body, braced: true}, true
	}
	return token{}, false
}

// splitWords splits on whitespace but keeps "${...}" groups intact.
func splitWords(s string) []string {
	var words []string
	var cur strings.Builder
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '$' && i+1 < len(s) && s[i+1] == '{':
			depth++
			cur.WriteString("${")
			i++
			continue
		case c == '}' && depth > 0:
			depth--
		case depth == 0 && unicode.IsSpace(rune(c)):
			if cur.Len() > 0 {
				words = append(words, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteByte(c)
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return words
}

// stripQuotes removes matching outer quote pairs: `'"x"'` -> `x`.
func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first != '"' && first != '\'') || first != last {
			break
		}
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// trimQuotes drops quote characters from both ends of a word, paired or not,
// since splitting a command line on spaces can separate a quote from its mate.
func trimQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}

func literalText(tokens []token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.raw)
	}
	return b.String()
}

func countRefs(tokens []token) int {
	n := 0
	for _, t := range tokens {
		if t.kind != tokLiteral {
			n++
		}
	}
	return n
}
