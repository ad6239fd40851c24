package engine

import (
	"context"
	"errors"
	"fmt"

	"scribe/buffer"
	"scribe/logger"
	"scribe/types"
)

var (
	// ErrNoSelection is returned when an action runs without selected text
	ErrNoSelection = errors.New("engine: no text selected")
	// ErrSelectionChanged is returned when the buffer changed while the action
	// was running
	ErrSelectionChanged = errors.New("engine: selection changed while the action ran")
)

// RunAction rewrites the selected text with an AI text action and returns the
// new text. The engine lock is released while the completion service runs.
func (e *Engine) RunAction(ctx context.Context, action types.ActionType) (string, error) {
	return e.runAction(ctx, action, nil)
}

// RunActionRange selects the committed text between the rune offsets start
// and end and rewrites it like RunAction. Caret moves while the service runs
// do not abort it; edits to the text do.
func (e *Engine) RunActionRange(ctx context.Context, action types.ActionType, start, end int) (string, error) {
	if start > end {
		start, end = end, start
	}
	return e.runAction(ctx, action, func(b *buffer.Buffer) {
		b.SetSelection(buffer.Selection{Start: b.PositionAt(start), End: b.PositionAt(end)})
	})
}

func (e *Engine) runAction(ctx context.Context, action types.ActionType, selectRange func(*buffer.Buffer)) (string, error) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return "", context.Canceled
	}
	if selectRange != nil {
		selectRange(e.buf)
	}
	selected, ok := e.selectedText()
	sel := e.buf.Selection()
	generation := e.buf.Generation()
	e.mu.Unlock()
	if !ok || selected == "" {
		return "", ErrNoSelection
	}

	result, err := e.provider.RunAction(ctx, action, selected)
	if err != nil {
		return "", fmt.Errorf("failed to run %s: %w", action, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return "", context.Canceled
	}
	if e.buf.Generation() != generation || (selectRange == nil && e.buf.Selection() != sel) {
		return "", ErrSelectionChanged
	}
	if result == selected {
		return result, nil
	}

	e.replaceSelection(sel, result)
	logger.Info("action %s: replaced %d chars", action, len([]rune(selected)))
	e.notifyContentChanged()
	e.processEvent(Event{Type: EventTextChanged})
	return result, nil
}

func (e *Engine) replaceSelection(sel buffer.Selection, s string) {
	if !e.guard.TryAcquire() {
		return
	}
	defer e.guard.Release()
	e.buf.SetSelection(sel)
	e.buf.InsertText(s)
}
