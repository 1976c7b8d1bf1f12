// Package cmdquote rewrites flattened command lines so they survive being
// pasted into a launcher script.
//
// Flags are only recognised at the start of the command or after a space, and
// an option's value runs until the next " -" or the end of the command. That is
// the same shape the upload tools print, so no general shell parser is needed.
package cmdquote

import (
	"regexp"
	"strings"
)

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	invisibles = strings.NewReplacer(
		"\u200B", "",
		"\u200C", "",
		"\u200D", "",
		"\uFEFF", "",
		"\u00AD", "",
		"\u2060", "",
	)
)

// QuoteOption wraps the value following every occurrence of short or long in
// double quotes. Values that are already quoted and flags with no value are
// left alone, so applying it twice gives the same result as applying it once.
//
//	QuoteOption(`-f firstfile -s /some/dir -x`, "-f", "--file")
//	  -> `-f "firstfile" -s /some/dir -x`
func QuoteOption(cmd, short, long string) string {
	var b strings.Builder
	b.Grow(len(cmd) + 8)

	i := 0
	for i < len(cmd) {
		flagLen := flagAt(cmd, i, short, long)
		if flagLen == 0 {
			b.WriteByte(cmd[i])
			i++
			continue
		}

		start := i + flagLen + 1
		b.WriteString(cmd[i:start])
		i = start
		for i < len(cmd) && cmd[i] == ' ' {
			b.WriteByte(' ')
			i++
		}
		if i >= len(cmd) {
			break
		}

		switch cmd[i] {
		case '"':
			// Already quoted; copy through the closing quote.
			end := strings.IndexByte(cmd[i+1:], '"')
			if end < 0 {
				b.WriteString(cmd[i:])
				return b.String()
			}
			end += i + 2
			b.WriteString(cmd[i:end])
			i = end
			continue
		case '-':
			// Flag without a value.
			continue
		}

		end := strings.Index(cmd[i:], " -")
		if end < 0 {
			end = len(cmd)
		} else {
			end += i
		}
		value := strings.TrimRight(cmd[i:end], " ")
		b.WriteByte('"')
		b.WriteString(value)
		b.WriteByte('"')
		i += len(value)
	}
	return b.String()
}

// flagAt returns the length of the flag starting at cmd[i] when it is short or
// long, delimited by start-of-string or a space before and a space after.
func flagAt(cmd string, i int, short, long string) int {
	if i > 0 && cmd[i-1] != ' ' {
		return 0
	}
	for _, flag := range []string{long, short} {
		if flag == "" {
			continue
		}
		if strings.HasPrefix(cmd[i:], flag+" ") {
			return len(flag)
		}
	}
	return 0
}

// QuoteOptions applies QuoteOption for each short/long pair in turn.
func QuoteOptions(cmd string, pairs ...[2]string) string {
	for _, p := range pairs {
		cmd = QuoteOption(cmd, p[0], p[1])
	}
	return cmd
}

// Normalize removes invisible characters and collapses runs of spaces and
// tabs, which show up once denied arguments have been dropped from a command.
func Normalize(cmd string) string {
	if cmd == "" {
		return cmd
	}
	cmd = strings.ReplaceAll(cmd, "\r\n", " ")
	cmd = strings.ReplaceAll(cmd, "\r", " ")
	cmd = strings.ReplaceAll(cmd, "\n", " ")
	cmd = invisibles.Replace(cmd)
	cmd = spaceRun.ReplaceAllString(cmd, " ")
	return strings.TrimSpace(cmd)
}

// RemoveArg deletes every standalone occurrence of arg, along with the space
// before it.
func RemoveArg(cmd, arg string) string {
	if arg == "" {
		return cmd
	}
	fields := strings.Split(cmd, " ")
	out := fields[:0]
	for _, f := range fields {
		if f == arg {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}
