package engine

import (
	"scribe/buffer"
	"scribe/logger"
	"scribe/metrics"
	"scribe/text"
)

// doAccept commits the active overlay and moves on to the overlay that takes
// its place in navigation order.
func (e *Engine) doAccept(event Event) {
	n, ok := e.activeOverlay()
	if !ok {
		e.finishNavigation()
		return
	}
	m := e.suggestionMetrics(n, n.Generation)
	if !e.renderer.Accept(n) {
		logger.Debug("accept refused, mutation in progress")
		return
	}
	e.metrics.TrackAccepted(m)
	e.notifyContentChanged()

	index := e.activeIndex
	e.overlays = e.renderer.Navigable()
	if index >= len(e.overlays) {
		e.finishNavigation()
		return
	}
	e.activate(index)
	e.moveCaretTo(e.overlays[index])
}

// doReject reverts the active overlay. The overlay now at the same index
// becomes active, else the first one.
func (e *Engine) doReject(event Event) {
	n, ok := e.activeOverlay()
	if !ok {
		e.finishNavigation()
		return
	}
	m := e.suggestionMetrics(n, n.Generation)
	if !e.renderer.Reject(n) {
		logger.Debug("reject refused, mutation in progress")
		return
	}
	e.metrics.TrackRejected(m)

	index := e.activeIndex
	e.overlays = e.renderer.Navigable()
	switch {
	case index < len(e.overlays):
		e.activate(index)
	case len(e.overlays) > 0:
		e.activate(0)
	default:
		e.finishNavigation()
	}
}

func (e *Engine) activeOverlay() (*buffer.Node, bool) {
	if e.activeIndex < 0 || e.activeIndex >= len(e.overlays) {
		return nil, false
	}
	n := e.overlays[e.activeIndex]
	if !e.buf.Contains(n) || n.Kind != buffer.KindOverlay {
		return nil, false
	}
	return n, true
}

func (e *Engine) activate(index int) {
	e.activeIndex = index
	e.renderer.SetActive(e.overlays[index])
	e.notifyNavigation()
}

// finishNavigation clears whatever is left and returns to Idle
func (e *Engine) finishNavigation() {
	e.renderer.Clear()
	e.resetNavigation()
	e.state = stateIdle
	e.notifyNavigation()
}

func (e *Engine) resetNavigation() {
	e.overlays = nil
	e.activeIndex = -1
}

// moveCaretTo places the caret at the start of n
func (e *Engine) moveCaretTo(n *buffer.Node) {
	if !e.guard.TryAcquire() {
		return
	}
	defer e.guard.Release()
	e.buf.SetCaret(buffer.Position{Node: n, Offset: 0})
}

func (e *Engine) suggestionMetrics(n *buffer.Node, generation string) *metrics.SuggestionMetrics {
	m := &metrics.SuggestionMetrics{
		GenerationID: generation,
		Type:         metrics.SuggestionContinuation,
		Additions:    text.RuneLen(n.Text),
		ShownAt:      e.shownAt,
	}
	if n.IsReplacement() {
		m.Type = metrics.SuggestionReplacement
		m.Deletions = text.RuneLen(n.Original)
	}
	return m
}
