package engine

import (
	"strings"

	"scribe/text"
	"scribe/types"
)

// captureRequest reads the text around a collapsed caret. The context is the
// paragraph text before the caret, prefixed by the previous paragraph when
// short. The after text is the rest of the paragraph plus the head of the
// next one. It returns nil when there is no context to send.
func (e *Engine) captureRequest() *types.SuggestionRequest {
	pos, collapsed := e.buf.Caret()
	if !collapsed || !e.buf.Valid(pos) {
		return nil
	}
	blk := e.buf.BlockOf(pos.Node)
	if blk == nil {
		return nil
	}

	line := []rune(e.buf.BlockText(blk))
	off := min(max(e.buf.OffsetInBlock(pos), 0), len(line))
	before := string(line[:off])
	after := string(line[off:])

	if text.RuneLen(before) < e.config.MinContextChars {
		if prev := e.buf.PrevBlock(blk); prev != nil {
			before = e.buf.BlockText(prev) + " " + before
		}
	}
	if next := e.buf.NextBlock(blk); next != nil {
		after += " " + text.HeadRunes(e.buf.BlockText(next), e.config.NextParagraphChars)
	}

	if strings.TrimSpace(before) == "" {
		return nil
	}
	return &types.SuggestionRequest{
		Context: before,
		After:   strings.TrimSpace(after),
	}
}

// textBeforeCaret returns the committed document text before the caret and
// the caret's offset in the whole committed text.
func (e *Engine) textBeforeCaret() (string, int, bool) {
	pos, collapsed := e.buf.Caret()
	if !collapsed || !e.buf.Valid(pos) {
		return "", 0, false
	}
	off := e.buf.OffsetOf(pos)
	if off < 0 {
		return "", 0, false
	}
	full := []rune(e.buf.Text())
	off = min(off, len(full))
	return string(full[:off]), off, true
}

// selectedText returns the committed text under a non-collapsed selection
func (e *Engine) selectedText() (string, bool) {
	sel := e.buf.Selection()
	if sel.Collapsed() || !e.buf.Valid(sel.Start) || !e.buf.Valid(sel.End) {
		return "", false
	}
	start, end := e.buf.OffsetOf(sel.Start), e.buf.OffsetOf(sel.End)
	if start > end {
		start, end = end, start
	}
	full := []rune(e.buf.Text())
	if start < 0 || end > len(full) {
		return "", false
	}
	return string(full[start:end]), true
}
