package plan

import (
	"regexp"
	"strings"
)

// paramOpen finds the start of a param emitted as a string wrapping an
// object, e.g. "param":"{"x":1}". The object itself is delimited by
// [closingBrace] so any nesting depth is handled.
var paramOpen = regexp.MustCompile(`"param"\s*:\s*"\{`)

// repair escapes the raw quotes inside string-wrapped params so the response
// becomes valid JSON. Quotes that were already escaped are normalised first
// so they are not escaped twice. A wrapped object whose braces do not
// balance, or that is not followed by the closing quote, is left alone.
func repair(text string) string {
	var b strings.Builder
	rest := text
	for {
		loc := paramOpen.FindStringIndex(rest)
		if loc == nil {
			break
		}
		open := loc[1] - 1
		end := closingBrace(rest, open)
		if end < 0 || end+1 >= len(rest) || rest[end+1] != '"' {
			b.WriteString(rest[:loc[1]])
			rest = rest[loc[1]:]
			continue
		}
		inner := strings.ReplaceAll(rest[open:end+1], `\"`, `"`)
		b.WriteString(rest[:open])
		b.WriteString(strings.ReplaceAll(inner, `"`, `\"`))
		b.WriteByte('"')
		rest = rest[end+2:]
	}
	b.WriteString(rest)
	return b.String()
}

// closingBrace returns the index of the brace closing the one at open, or -1.
func closingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// sanitize trims the response, strips a surrounding code fence and slices it
// to the outermost brackets. It returns "" when no bracketed span exists.
func sanitize(raw string) string {
	text := strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(text, "```"); ok {
		text = strings.TrimLeftFunc(rest, isLangTagRune)
	}
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))

	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func isLangTagRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
}
