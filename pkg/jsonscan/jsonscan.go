// Package jsonscan reads fields out of JSON-like text without building a tree.
//
// It is the lenient path used when a catalog document does not decode into the
// typed manifests: every lookup either returns a value or reports "not found",
// malformed input never panics or errors.
package jsonscan

import (
	"strings"
	"unicode"
)

// NotFound is returned by MatchClosing when no matching delimiter exists.
const NotFound = -1

// MatchClosing returns the position of the delimiter closing the one at pos.
// pos must point at '{' or '['. Characters inside quoted strings are skipped,
// a quote preceded by a backslash does not toggle the quoted state.
func MatchClosing(doc string, pos int) int {
	if pos < 0 || pos >= len(doc) {
		return NotFound
	}
	open := doc[pos]
	var closing byte
	switch open {
	case '{':
		closing = '}'
	case '[':
		closing = ']'
	default:
		return NotFound
	}

	depth := 0
	quoted := false
	for i := pos; i < len(doc); i++ {
		c := doc[i]
		if c == '"' && (i == 0 || doc[i-1] != '\\') {
			quoted = !quoted
		}
		if quoted {
			continue
		}
		switch c {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return NotFound
}

// FindString returns the string value of the first occurrence of key.
func FindString(doc, key string) (string, bool) {
	i := strings.Index(doc, `"`+key+`"`)
	if i == -1 {
		return "", false
	}
	colon := strings.IndexByte(doc[i:], ':')
	if colon == -1 {
		return "", false
	}

	start := -1
	for x := i + colon + 1; x < len(doc); x++ {
		c := rune(doc[x])
		if c == '"' {
			start = x + 1
			break
		}
		if !unicode.IsSpace(c) {
			break
		}
	}
	if start == -1 {
		return "", false
	}

	for e := start; e < len(doc); e++ {
		if doc[e] == '"' && doc[e-1] != '\\' {
			return doc[start:e], true
		}
	}
	return "", false
}

// FindInt returns the integer value of the first occurrence of key. Both
// quoted ("17") and bare (17) numbers are accepted.
func FindInt(doc, key string) (int, bool) {
	if s, ok := FindString(doc, key); ok {
		return atoi(s)
	}
	i := strings.Index(doc, `"`+key+`"`)
	if i == -1 {
		return 0, false
	}
	colon := strings.IndexByte(doc[i:], ':')
	if colon == -1 {
		return 0, false
	}
	rest := strings.TrimLeftFunc(doc[i+colon+1:], unicode.IsSpace)
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	return atoi(rest[:end])
}

// FindObject returns the text of the object following the first occurrence of
// key, delimiters included.
func FindObject(doc, key string) (string, bool) {
	return findDelimited(doc, key, '{')
}

// FindArray returns the text of the array following the first occurrence of
// key, delimiters included.
func FindArray(doc, key string) (string, bool) {
	return findDelimited(doc, key, '[')
}

func findDelimited(doc, key string, open byte) (string, bool) {
	i := strings.Index(doc, `"`+key+`"`)
	if i == -1 {
		return "", false
	}
	s := strings.IndexByte(doc[i:], open)
	if s == -1 {
		return "", false
	}
	s += i
	e := MatchClosing(doc, s)
	if e == NotFound {
		return "", false
	}
	return doc[s : e+1], true
}

// ObjectsWithKey returns, in document order, every object that directly
// encloses an occurrence of key. Scanning stops at the first object that is
// not closed.
func ObjectsWithKey(doc, key string) []string {
	needle := `"` + key + `"`
	var out []string
	pos := 0
	for pos < len(doc) {
		i := strings.Index(doc[pos:], needle)
		if i == -1 {
			break
		}
		i += pos
		s := enclosingOpen(doc, i)
		e := MatchClosing(doc, s)
		if e == NotFound {
			break
		}
		if e < i {
			pos = i + len(needle)
			continue
		}
		out = append(out, doc[s:e+1])
		pos = e + 1
	}
	return out
}

// enclosingOpen returns the position of the '{' whose object contains pos,
// stepping over objects that close before it.
func enclosingOpen(doc string, pos int) int {
	depth := 0
	for x := pos - 1; x >= 0; x-- {
		switch doc[x] {
		case '}':
			depth++
		case '{':
			if depth == 0 {
				return x
			}
			depth--
		}
	}
	return NotFound
}

// FindAllStrings returns every string value stored under key, in document order.
func FindAllStrings(doc, key string) []string {
	needle := `"` + key + `"`
	var out []string
	pos := 0
	for pos < len(doc) {
		i := strings.Index(doc[pos:], needle)
		if i == -1 {
			break
		}
		i += pos
		if v, ok := FindString(doc[i:], key); ok {
			out = append(out, v)
		}
		pos = i + len(needle)
	}
	return out
}

func atoi(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
