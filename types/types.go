package types

import "encoding/json"

// Replacement is a suggested substitution of Original by Fixed
type Replacement struct {
	Original string `json:"original"`
	Fixed    string `json:"fixed"`
}

// UnmarshalJSON accepts "replacement" as an alias of "fixed", which is what
// the combined suggestion prompt asks the model for.
func (r *Replacement) UnmarshalJSON(data []byte) error {
	var raw struct {
		Original    string `json:"original"`
		Fixed       string `json:"fixed"`
		Replacement string `json:"replacement"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Original = raw.Original
	r.Fixed = raw.Fixed
	if r.Fixed == "" {
		r.Fixed = raw.Replacement
	}
	return nil
}

// IsNoOp reports whether applying the replacement would change nothing
func (r Replacement) IsNoOp() bool {
	return r.Original == "" || r.Fixed == "" || r.Original == r.Fixed
}

// Suggestion is one generation of continuation and replacement suggestions
type Suggestion struct {
	Continuation string        `json:"continuation"`
	Replacements []Replacement `json:"replacements"`
}

// IsEmpty reports whether the suggestion carries nothing to render
func (s *Suggestion) IsEmpty() bool {
	return s == nil || (s.Continuation == "" && len(s.Replacements) == 0)
}

// SuggestionRequest contains the text captured around the caret when the
// debounce window fires
type SuggestionRequest struct {
	// Context is the text immediately before the caret, possibly extended
	// into the previous paragraph
	Context string
	// After is the text following the caret plus the head of the next paragraph
	After string
}

// ActionType names an AI text action run on a selection
type ActionType string

const (
	ActionSummarize ActionType = "summarize"
	ActionGrammar   ActionType = "grammar"
	ActionRephrase  ActionType = "rephrase"
)

// ProviderConfig holds configuration for the completion provider
type ProviderConfig struct {
	Endpoint          string // Completion service URL
	APIKey            string // Optional bearer token
	Model             string // Model name forwarded with every prompt
	Compression       string // "br" to brotli-compress request bodies
	CompletionTimeout int    // Timeout for completion requests in milliseconds
	MaxContextTokens  int    // Max tokens of context sent per prompt (0 = no limit)
}
