package adapter

import "strings"

const textLimit = 4000

// splitText cuts s into chunks of at most limit runes. It prefers newline
// boundaries and, for HTML, avoids cutting inside a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	var out []string
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			open, closed := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					open = i
				case '>':
					closed = i
				}
			}
			if open > closed && open > start+1 {
				end = open
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
