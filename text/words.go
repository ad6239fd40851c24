package text

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SentencePunctuation disables whole-word matching when present in a phrase.
const SentencePunctuation = ".,!?"

// MinCorrectableWordLen is the shortest word sent for autocorrection.
const MinCorrectableWordLen = 3

// IsWordChar reports whether r is part of a word.
func IsWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// IsSingleWord reports whether s should be matched on word boundaries rather
// than as a raw substring.
func IsSingleWord(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsFunc(s, unicode.IsSpace) && !strings.ContainsAny(s, SentencePunctuation)
}

// Match is a half-open rune range.
type Match struct {
	Start int
	End   int
}

// Overlaps reports whether two ranges share at least one rune.
func (m Match) Overlaps(o Match) bool {
	return m.Start < o.End && o.Start < m.End
}

// FindAll returns the non-overlapping occurrences of needle in haystack as
// rune ranges, scanning left to right. With wholeWord set, an occurrence must
// not be adjacent to a word character on either side.
func FindAll(haystack, needle string, wholeWord bool) []Match {
	if needle == "" {
		return nil
	}
	hay := []rune(haystack)
	ndl := []rune(needle)
	var out []Match
	for i := 0; i+len(ndl) <= len(hay); {
		if !equalRunes(hay[i:i+len(ndl)], ndl) {
			i++
			continue
		}
		end := i + len(ndl)
		if wholeWord && !atBoundary(hay, i, end) {
			i++
			continue
		}
		out = append(out, Match{Start: i, End: end})
		i = end
	}
	return out
}

func atBoundary(hay []rune, start, end int) bool {
	if start > 0 && IsWordChar(hay[start-1]) {
		return false
	}
	if end < len(hay) && IsWordChar(hay[end]) {
		return false
	}
	return true
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// LastWord returns the last whitespace-delimited word of s, ignoring trailing
// whitespace.
func LastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// HeadRunes returns at most n runes from the start of s.
func HeadRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
