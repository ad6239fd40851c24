package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"scribe/types"
)

// jsonPattern finds the first JSON object or array in a model response, which
// is often wrapped in prose or a code fence.
var jsonPattern = regexp.MustCompile(`(\{[\s\S]*\})|(\[[\s\S]*\])`)

// ErrNoJSON is wrapped in a ParseError when a response holds no JSON at all
var ErrNoJSON = errors.New("no JSON object or array found")

// ParseError reports a model response that could not be read as a suggestion
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse suggestion: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseSuggestion extracts a suggestion from a model response. A bare array is
// read as the replacement list. An object is read as a full suggestion with a
// continuation and replacements.
func ParseSuggestion(raw string) (*types.Suggestion, error) {
	match := jsonPattern.FindString(raw)
	if match == "" {
		return nil, &ParseError{Raw: raw, Err: ErrNoJSON}
	}

	if strings.HasPrefix(match, "[") {
		var reps []types.Replacement
		if err := json.Unmarshal([]byte(match), &reps); err != nil {
			return nil, &ParseError{Raw: raw, Err: err}
		}
		return &types.Suggestion{Replacements: reps}, nil
	}

	var s types.Suggestion
	if err := json.Unmarshal([]byte(match), &s); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	return &s, nil
}

// FilterReplacements drops replacements that would change nothing
func FilterReplacements(reps []types.Replacement) []types.Replacement {
	out := make([]types.Replacement, 0, len(reps))
	for _, r := range reps {
		if !r.IsNoOp() {
			out = append(out, r)
		}
	}
	return out
}

// IsNoChanges reports whether a response is the "no changes needed" sentinel
func IsNoChanges(s string) bool {
	t := strings.Trim(strings.TrimSpace(s), `"'.`)
	return strings.EqualFold(t, NoChangesSentinel)
}
