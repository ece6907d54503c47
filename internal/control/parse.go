package control

import (
	"fmt"
	"strconv"
	"strings"
)

// tokenize splits a command line into tokens. Single or double quotes group
// words and a backslash escapes the next byte:
//
//	rename 2 "Fire Dragon"
func tokenize(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out    []string
		buf    strings.Builder
		inQ    bool
		qChar  byte
		esc    bool
		quoted bool
	)
	flush := func() {
		if buf.Len() > 0 || quoted {
			out = append(out, buf.String())
			buf.Reset()
		}
		quoted = false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if esc {
			buf.WriteByte(ch)
			esc = false
			continue
		}
		if ch == '\\' {
			esc = true
			continue
		}
		if inQ {
			if ch == qChar {
				inQ = false
				continue
			}
			buf.WriteByte(ch)
			continue
		}
		switch ch {
		case '"', '\'':
			inQ, qChar, quoted = true, ch, true
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}

// commandName normalizes the first token: "/List@boss_bot" -> "list".
func commandName(tok string) string {
	tok = strings.TrimPrefix(tok, "/")
	if i := strings.IndexByte(tok, '@'); i >= 0 {
		tok = tok[:i]
	}
	return strings.ToLower(tok)
}

func intArg(args []string, i int, what string) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing %s", ErrUsage, what)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", ErrUsage, what, args[i])
	}
	return n, nil
}

func optIntArg(args []string, i int, what string, def int) (int, error) {
	if i >= len(args) {
		return def, nil
	}
	return intArg(args, i, what)
}
