package engine

import (
	"context"
	"errors"

	"scribe/logger"
	"scribe/text"
)

type correctionResult struct {
	id        uint64
	ctx       context.Context
	word      string
	corrected string
	distance  int
	err       error
}

// triggerAutocorrect starts a correction of the last word before the caret.
// At most one correction is in flight; a word is never corrected twice in a
// row.
func (e *Engine) triggerAutocorrect() {
	if !e.config.UseAutocorrecting || e.correcting || !e.running() {
		return
	}
	before, caretOffset, ok := e.textBeforeCaret()
	if !ok || before == "" {
		return
	}
	word := text.LastWord(before)
	if word == e.lastWord || text.RuneLen(word) < text.MinCorrectableWordLen {
		return
	}
	e.lastWord = word

	// The caret is restored relative to the end of the text, since the
	// correction may change the word's length.
	distance := text.RuneLen(e.buf.Text()) - caretOffset

	e.correctionSeq++
	id := e.correctionSeq
	ctx, cancel := context.WithCancel(e.mainCtx)
	e.correctionCancel = cancel
	e.setCorrecting(true)
	logger.Debug("autocorrect: checking %q", word)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		corrected, err := e.provider.CorrectWord(ctx, word)
		ev := Event{Type: EventCorrectionReady}
		if err != nil {
			ev.Type = EventCorrectionError
		}
		ev.Data = &correctionResult{id: id, ctx: ctx, word: word, corrected: corrected, distance: distance, err: err}
		e.post(ev)
	}()
}

func (e *Engine) handleCorrection(res *correctionResult) {
	if res.id != e.correctionSeq {
		return
	}
	stale := res.ctx.Err() != nil
	if e.correctionCancel != nil {
		e.correctionCancel()
		e.correctionCancel = nil
	}
	e.setCorrecting(false)

	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			logger.Debug("autocorrect canceled: %v", res.err)
		} else {
			logger.Error("autocorrect failed: %v", res.err)
		}
		return
	}
	if stale || res.corrected == "" || res.corrected == res.word {
		return
	}
	e.applyCorrection(res)
}

// applyCorrection swaps the last occurrence of the word and puts the caret
// back at the same distance from the end of the text.
func (e *Engine) applyCorrection(res *correctionResult) {
	if !e.guard.TryAcquire() {
		logger.Debug("autocorrect: mutation in progress, dropping %q", res.corrected)
		return
	}
	replaced := e.buf.ReplaceLast(res.word, res.corrected)
	if replaced {
		pos := max(0, text.RuneLen(e.buf.Text())-res.distance)
		e.buf.SetCaret(e.buf.PositionAt(pos))
	}
	e.guard.Release()

	if !replaced {
		logger.Debug("autocorrect: %q no longer in buffer", res.word)
		return
	}
	logger.Info("autocorrect: %q -> %q", res.word, res.corrected)
	e.notifyContentChanged()
	e.processEvent(Event{Type: EventTextChanged})
}
