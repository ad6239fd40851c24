package provider

import (
	"context"
	"errors"
	"fmt"

	"scribe/logger"
	"scribe/types"
)

// Client interface for API calls (enables mocking in tests)
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Kind names one of the provider pipelines
type Kind string

const (
	KindContinuation Kind = "continuation"
	KindReplacements Kind = "replacements"
	KindCorrection   Kind = "correction"
	KindAction       Kind = "action"
)

// Context carries data through a pipeline
type Context struct {
	Kind    Kind
	Request *types.SuggestionRequest
	Before  string // context before the caret, after trimming
	After   string // text after the caret, after trimming
	Word    string // word to correct
	Action  types.ActionType
	Text    string // selection an action runs on
	Result  string // raw model response
}

// Output is what a pipeline produces
type Output struct {
	Suggestion types.Suggestion
	Text       string
}

// Pipeline describes how one kind of request is prepared, sent and read back
type Pipeline struct {
	Preprocessors  []Preprocessor
	PromptBuilder  PromptBuilder
	Postprocessors []Postprocessor
}

// Provider runs suggestion, correction and action requests against the
// completion service
type Provider struct {
	Name      string
	Config    *types.ProviderConfig
	Client    Client
	Pipelines map[Kind]*Pipeline
}

// NewProvider creates a provider with the default pipelines
func NewProvider(config *types.ProviderConfig, client Client) *Provider {
	return &Provider{
		Name:   "scribe",
		Config: config,
		Client: client,
		Pipelines: map[Kind]*Pipeline{
			KindContinuation: {
				Preprocessors: []Preprocessor{
					TrimContext(),
					SkipIfBlank(),
				},
				PromptBuilder: buildContinuationPrompt,
				Postprocessors: []Postprocessor{
					RejectEmpty(),
					KeepContinuation(),
				},
			},
			KindReplacements: {
				Preprocessors: []Preprocessor{
					TrimContext(),
					SkipIfBlank(),
				},
				PromptBuilder: buildReplacementsPrompt,
				Postprocessors: []Postprocessor{
					RejectEmpty(),
					ParseReplacements(),
				},
			},
			KindCorrection: {
				Preprocessors: []Preprocessor{
					SkipIfBlank(),
				},
				PromptBuilder: buildCorrectionPrompt,
				Postprocessors: []Postprocessor{
					RejectEmpty(),
					RejectUnchanged(),
					KeepText(),
				},
			},
			KindAction: {
				Preprocessors: []Preprocessor{
					ValidateAction(),
					SkipIfBlank(),
				},
				PromptBuilder: buildActionPrompt,
				Postprocessors: []Postprocessor{
					RejectEmpty(),
					RejectUnchanged(),
					KeepText(),
				},
			},
		},
	}
}

// FetchContinuation asks for a short continuation of the text before the caret
func (p *Provider) FetchContinuation(ctx context.Context, req *types.SuggestionRequest) (string, error) {
	out, err := p.run(ctx, &Context{Kind: KindContinuation, Request: req})
	if err != nil {
		return "", err
	}
	return out.Suggestion.Continuation, nil
}

// FetchReplacements asks for word and phrase fixes in the text before the caret
func (p *Provider) FetchReplacements(ctx context.Context, req *types.SuggestionRequest) ([]types.Replacement, error) {
	out, err := p.run(ctx, &Context{Kind: KindReplacements, Request: req})
	if err != nil {
		return nil, err
	}
	return out.Suggestion.Replacements, nil
}

// CorrectWord asks for the corrected form of a single word. It returns word
// itself when no correction is needed.
func (p *Provider) CorrectWord(ctx context.Context, word string) (string, error) {
	out, err := p.run(ctx, &Context{Kind: KindCorrection, Word: word})
	if err != nil {
		return "", err
	}
	if out.Text == "" {
		return word, nil
	}
	return out.Text, nil
}

// RunAction runs an AI text action on text. It returns text itself when the
// model reports no changes.
func (p *Provider) RunAction(ctx context.Context, action types.ActionType, text string) (string, error) {
	out, err := p.run(ctx, &Context{Kind: KindAction, Action: action, Text: text})
	if err != nil {
		return "", err
	}
	if out.Text == "" {
		return text, nil
	}
	return out.Text, nil
}

func (p *Provider) run(ctx context.Context, pctx *Context) (*Output, error) {
	defer logger.Trace("provider." + string(pctx.Kind))()

	pipeline, ok := p.Pipelines[pctx.Kind]
	if !ok {
		return nil, fmt.Errorf("%s: no pipeline for %s", p.Name, pctx.Kind)
	}

	for _, pre := range pipeline.Preprocessors {
		if err := pre(p, pctx); err != nil {
			if errors.Is(err, ErrSkipCompletion) {
				return &Output{}, nil
			}
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
	}

	prompt := pipeline.PromptBuilder(p, pctx)
	p.logRequest(pctx.Kind, prompt)

	result, err := p.Client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	pctx.Result = result
	p.logResponse(pctx.Kind, result)

	for _, post := range pipeline.Postprocessors {
		if out, done := post(p, pctx); done {
			return out, nil
		}
	}
	return &Output{}, nil
}

func (p *Provider) logRequest(kind Kind, prompt string) {
	logger.Debug("%s provider request:\n  Kind: %s\n  Model: %s\n  Prompt length: %d chars\n  Prompt:\n%s",
		p.Name,
		kind,
		p.Config.Model,
		len(prompt),
		prompt)
}

func (p *Provider) logResponse(kind Kind, result string) {
	logger.Debug("%s provider response:\n  Kind: %s\n  Text length: %d chars\n  Text: %q",
		p.Name,
		kind,
		len(result),
		result)
}
