package provider

import (
	"strings"

	"scribe/types"
)

const continuationTemplate = `Help me in writing out the continuation of the given text

Guidelines:
- The continuation should be a sentence that is a continuation of the given text.
- The continuation should make sense to the Whole_text so check if there comes text after Continuation_from_here.
- If the Whole_text and Continuation_from_here matches just ignore the Whole_text and continue with the continuation on Continuation_from_here
- The continuation should not be too long, max 5 words
- Check on whitespace on the last word of the Continuation_from_here if there is a whitespace or a punctuation mark.

Whole_text:
{{WHOLE_TEXT}}

Continuation_from_here:
{{TEXT}}

Respond me with the continuation of the text:
`

const replacementsTemplate = `Help me in fixing a text and check the given text for potential grammar mistakes.
 Don't provide fixes that exceed 3 words break it down into smaller fixes. If there are no mistakes just return an empty array.

## Given text:
{{TEXT}}

Respond me with this format:
[
    {
      "original": "{{ORIGINAL}}", // The original text that should be fixed
      "fixed": "{{FIXED}}" // The fixed text for the original text
    }
    ...
]

# Example:

## Given text:
Im goin to the store The weather is nie today.

## Respond:
[
    {
      "original": "Im goin",
      "fixed": "I'm going"
    },
    {
      "original": "nie",
      "fixed": "nice"
    }
]
`

const correctionTemplate = `Correct the grammar of the following word:

Word:
{{WORD}}

Respond me with the corrected word or the word unchanged with no further explanation.
`

const summaryTemplate = `You are a helpful assistant that helps me write a summary of the given text.

Text:
{{TEXT}}

Respond me with the summary of the text:`

const grammarTemplate = `Fix the grammar of the following text:

Text:
{{TEXT}}

Respond me with the fixed text or "No changes needed":
`

const rephraseTemplate = `Rephrase the following text:

Text:
{{TEXT}}

Respond me with the rephrased text or "No changes needed":
`

// NoChangesSentinel is what the model answers when a text needs no edit
const NoChangesSentinel = "No changes needed"

var actionTemplates = map[types.ActionType]string{
	types.ActionSummarize: summaryTemplate,
	types.ActionGrammar:   grammarTemplate,
	types.ActionRephrase:  rephraseTemplate,
}

// --- Prompt builders ---

func buildContinuationPrompt(p *Provider, ctx *Context) string {
	whole := ctx.Before + " " + ctx.After
	return strings.NewReplacer(
		"{{WHOLE_TEXT}}", whole,
		"{{TEXT}}", ctx.Before,
	).Replace(continuationTemplate)
}

func buildReplacementsPrompt(p *Provider, ctx *Context) string {
	return strings.Replace(replacementsTemplate, "{{TEXT}}", ctx.Before, 1)
}

func buildCorrectionPrompt(p *Provider, ctx *Context) string {
	return strings.Replace(correctionTemplate, "{{WORD}}", ctx.Word, 1)
}

func buildActionPrompt(p *Provider, ctx *Context) string {
	return strings.Replace(actionTemplates[ctx.Action], "{{TEXT}}", ctx.Text, 1)
}
