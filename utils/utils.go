package utils

import (
	"strings"
	"unicode"
)

// Token estimation constants
const (
	AvgCharsPerToken = 4 // Rough estimate for English prose
)

// EstimateCharsFromTokens estimates the number of characters for a given token count
func EstimateCharsFromTokens(tokens int) int {
	return tokens * AvgCharsPerToken
}

// TrimContextAroundCaret trims the text before and after the caret to fit
// within maxTokens. Half the budget goes to each side, and whatever one side
// leaves unused is given to the other. Cuts fall on whitespace so no partial
// word is sent. Returns the trimmed texts and whether trimming occurred.
func TrimContextAroundCaret(before, after string, maxTokens int) (string, string, bool) {
	if maxTokens <= 0 {
		return before, after, false
	}

	maxChars := EstimateCharsFromTokens(maxTokens)
	beforeRunes := []rune(before)
	afterRunes := []rune(after)

	// If content is already within limits, return as-is
	if len(beforeRunes)+len(afterRunes) <= maxChars {
		return before, after, false
	}

	halfBudget := maxChars / 2

	// The text right before the caret matters most, so it is sized first
	budgetBefore := halfBudget
	if unusedAfter := halfBudget - len(afterRunes); unusedAfter > 0 {
		budgetBefore += unusedAfter
	}
	keptBefore := min(len(beforeRunes), budgetBefore)

	budgetAfter := maxChars - keptBefore
	keptAfter := min(len(afterRunes), budgetAfter)

	trimmedBefore := tailAtWordBoundary(beforeRunes, keptBefore)
	trimmedAfter := headAtWordBoundary(afterRunes, keptAfter)
	return trimmedBefore, trimmedAfter, true
}

// tailAtWordBoundary returns at most n trailing runes of r, dropping a leading
// partial word.
func tailAtWordBoundary(r []rune, n int) string {
	if n >= len(r) {
		return string(r)
	}
	start := len(r) - n
	if start > 0 && !unicode.IsSpace(r[start-1]) {
		for start < len(r) && !unicode.IsSpace(r[start]) {
			start++
		}
	}
	return strings.TrimLeftFunc(string(r[start:]), unicode.IsSpace)
}

// headAtWordBoundary returns at most n leading runes of r, dropping a trailing
// partial word.
func headAtWordBoundary(r []rune, n int) string {
	if n >= len(r) {
		return string(r)
	}
	end := n
	if end < len(r) && !unicode.IsSpace(r[end]) {
		for end > 0 && !unicode.IsSpace(r[end-1]) {
			end--
		}
	}
	return strings.TrimRightFunc(string(r[:end]), unicode.IsSpace)
}
