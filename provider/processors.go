package provider

import (
	"errors"
	"fmt"
	"strings"

	"scribe/logger"
	"scribe/types"
	"scribe/utils"
)

// Preprocessor processes the context before prompt building.
// Return ErrSkipCompletion to skip without error, or another error to fail.
type Preprocessor func(p *Provider, ctx *Context) error

// PromptBuilder builds the prompt sent to the completion service
type PromptBuilder func(p *Provider, ctx *Context) string

// Postprocessor processes the model response.
// Returns (output, done) - if done is true, the output is returned immediately.
type Postprocessor func(p *Provider, ctx *Context) (*Output, bool)

// ErrSkipCompletion is a sentinel error that preprocessors return to skip
// completion without treating it as an error.
var ErrSkipCompletion = errors.New("skip completion")

// ErrUnknownAction is returned for an action with no prompt template
var ErrUnknownAction = errors.New("unknown action")

// --- Preprocessors ---

// TrimContext returns a preprocessor that trims the text around the caret to
// the configured token budget
func TrimContext() Preprocessor {
	return func(p *Provider, ctx *Context) error {
		if ctx.Request == nil {
			return ErrSkipCompletion
		}
		before, after, didTrim := utils.TrimContextAroundCaret(
			ctx.Request.Context,
			ctx.Request.After,
			p.Config.MaxContextTokens,
		)
		if didTrim {
			logger.Debug("%s: trimmed context to %d+%d chars", p.Name, len(before), len(after))
		}
		ctx.Before = before
		ctx.After = after
		return nil
	}
}

// SkipIfBlank returns a preprocessor that skips when there is no input text
func SkipIfBlank() Preprocessor {
	return func(p *Provider, ctx *Context) error {
		var input string
		switch ctx.Kind {
		case KindContinuation, KindReplacements:
			input = ctx.Before
		case KindCorrection:
			input = ctx.Word
		case KindAction:
			input = ctx.Text
		}
		if strings.TrimSpace(input) == "" {
			logger.Debug("%s: skipping %s, no input text", p.Name, ctx.Kind)
			return ErrSkipCompletion
		}
		return nil
	}
}

// ValidateAction returns a preprocessor that fails on actions without a prompt
func ValidateAction() Preprocessor {
	return func(p *Provider, ctx *Context) error {
		if _, ok := actionTemplates[ctx.Action]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAction, ctx.Action)
		}
		return nil
	}
}

// --- Postprocessors ---

// RejectEmpty returns a postprocessor that rejects empty responses
func RejectEmpty() Postprocessor {
	return func(p *Provider, ctx *Context) (*Output, bool) {
		if strings.TrimSpace(ctx.Result) == "" {
			logger.Debug("%s: rejected, empty or whitespace-only", p.Name)
			return &Output{}, true
		}
		return nil, false
	}
}

// RejectUnchanged returns a postprocessor that rejects the "no changes needed"
// sentinel and responses equal to the input
func RejectUnchanged() Postprocessor {
	return func(p *Provider, ctx *Context) (*Output, bool) {
		if IsNoChanges(ctx.Result) {
			logger.Debug("%s: rejected, no changes needed", p.Name)
			return &Output{}, true
		}
		cleaned := cleanText(ctx.Result)
		if (ctx.Kind == KindCorrection && cleaned == ctx.Word) ||
			(ctx.Kind == KindAction && cleaned == strings.TrimSpace(ctx.Text)) {
			logger.Debug("%s: rejected, unchanged", p.Name)
			return &Output{}, true
		}
		return nil, false
	}
}

// KeepContinuation returns a postprocessor that uses the response as the
// continuation. Leading whitespace is kept since it separates the
// continuation from the text before the caret.
func KeepContinuation() Postprocessor {
	return func(p *Provider, ctx *Context) (*Output, bool) {
		continuation := strings.TrimRight(ctx.Result, " \t\r\n")
		return &Output{Suggestion: types.Suggestion{Continuation: continuation}}, true
	}
}

// ParseReplacements returns a postprocessor that reads the replacement list.
// A response that cannot be parsed yields no replacements.
func ParseReplacements() Postprocessor {
	return func(p *Provider, ctx *Context) (*Output, bool) {
		s, err := ParseSuggestion(ctx.Result)
		if err != nil {
			logger.Warn("%s: %v", p.Name, err)
			return &Output{}, true
		}
		reps := FilterReplacements(s.Replacements)
		return &Output{Suggestion: types.Suggestion{Replacements: reps}}, true
	}
}

// KeepText returns a postprocessor that uses the cleaned response as text
func KeepText() Postprocessor {
	return func(p *Provider, ctx *Context) (*Output, bool) {
		return &Output{Text: cleanText(ctx.Result)}, true
	}
}

// cleanText trims whitespace and a pair of wrapping quotes
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}
