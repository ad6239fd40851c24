package caret

import (
	"errors"
	"sync/atomic"

	"scribe/buffer"
	"scribe/logger"
	"scribe/text"
)

// ErrPositionUnresolved is reported when no restore strategy could place the
// caret.
var ErrPositionUnresolved = errors.New("caret: position could not be resolved")

// ErrGuardHeld is returned by RestoreWith while another mutation holds the
// guard.
var ErrGuardHeld = errors.New("caret: another mutation is in progress")

// Guard is a re-entrancy flag shared by everything that mutates the buffer on
// the engine's behalf. While it is held, saves are skipped and edit
// notifications are ignored.
type Guard struct {
	held atomic.Bool
}

// TryAcquire takes the guard if it is free.
func (g *Guard) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

func (g *Guard) Release() {
	g.held.Store(false)
}

func (g *Guard) Held() bool {
	return g.held.Load()
}

// State is a saved selection. Direct references are tried first; paths and
// the plain-text snapshot are fallbacks when the tree has been restructured.
type State struct {
	StartRef    *buffer.Node
	StartOffset int
	EndRef      *buffer.Node
	EndOffset   int
	StartPath   []int
	EndPath     []int
	Collapsed   bool

	Snapshot      string
	Text          string
	TextOffset    int
	EndTextOffset int
	Scroll        int
	Generation    uint64
}

// Strategy names the restore step that succeeded.
type Strategy string

const (
	StrategyNone     Strategy = ""
	StrategyDirect   Strategy = "direct"
	StrategyPath     Strategy = "path"
	StrategySnapshot Strategy = "snapshot"
	StrategyEnd      Strategy = "end"
)

// Tracker saves and restores the caret across structural rewrites of a buffer.
type Tracker struct {
	buf   *buffer.Buffer
	guard *Guard
}

// NewTracker creates a tracker for buf. The guard is shared with the overlay
// renderer and the engine.
func NewTracker(buf *buffer.Buffer, guard *Guard) *Tracker {
	return &Tracker{buf: buf, guard: guard}
}

func (t *Tracker) Guard() *Guard { return t.guard }

// Save captures the current selection. It is a no-op while the guard is held.
func (t *Tracker) Save() (State, bool) {
	if t.guard.Held() {
		return State{}, false
	}
	sel := t.buf.Selection()
	if sel.IsZero() {
		return State{}, false
	}
	s := State{
		StartRef:    sel.Start.Node,
		StartOffset: sel.Start.Offset,
		EndRef:      sel.End.Node,
		EndOffset:   sel.End.Offset,
		StartPath:   t.buf.PathOf(sel.Start.Node),
		EndPath:     t.buf.PathOf(sel.End.Node),
		Collapsed:   sel.Collapsed(),
		Snapshot:    t.buf.Serialize(),
		Text:        t.buf.Text(),
		TextOffset:  t.buf.OffsetOf(sel.Start),
		Scroll:      t.buf.Scroll(),
		Generation:  t.buf.Generation(),
	}
	s.EndTextOffset = t.buf.OffsetOf(sel.End)
	return s, true
}

// Restore places the selection described by s. It tries, in order, the saved
// node references, the saved paths, the snapshot text offset remapped onto the
// current text, and finally the end of the last leaf. It never panics and
// returns false when the buffer has no leaf at all or another mutation holds
// the guard.
func (t *Tracker) Restore(s State) bool {
	_, err := t.RestoreWith(s)
	return err == nil
}

// RestoreWith is Restore reporting the strategy that succeeded. It refuses to
// run while the guard is held by someone else.
func (t *Tracker) RestoreWith(s State) (Strategy, error) {
	if !t.guard.TryAcquire() {
		return StrategyNone, ErrGuardHeld
	}
	defer t.guard.Release()
	return t.restore(s)
}

// RestoreHeld restores s for a caller that already holds the guard, such as
// the overlay renderer in the middle of a rewrite. It returns false when the
// guard is not held.
func (t *Tracker) RestoreHeld(s State) bool {
	if !t.guard.Held() {
		logger.Warn("caret restore: guard not held by caller")
		return false
	}
	_, err := t.restore(s)
	return err == nil
}

func (t *Tracker) restore(s State) (strategy Strategy, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("caret restore panic: %v", r)
			strategy, err = StrategyNone, ErrPositionUnresolved
		}
	}()

	start, end, strategy, err := t.resolve(s)
	if err != nil {
		logger.Warn("caret restore: %v", err)
		return strategy, err
	}
	t.buf.SetSelection(buffer.Selection{Start: start, End: end})
	t.buf.SetScroll(s.Scroll)
	logger.Debug("caret restored via %s", strategy)
	return strategy, nil
}

func (t *Tracker) resolve(s State) (buffer.Position, buffer.Position, Strategy, error) {
	start := buffer.Position{Node: s.StartRef, Offset: s.StartOffset}
	end := buffer.Position{Node: s.EndRef, Offset: s.EndOffset}
	if t.buf.Valid(start) && t.buf.Valid(end) {
		return start, end, StrategyDirect, nil
	}

	start = buffer.Position{Node: t.buf.NodeAt(s.StartPath), Offset: s.StartOffset}
	end = buffer.Position{Node: t.buf.NodeAt(s.EndPath), Offset: s.EndOffset}
	if t.buf.Valid(start) && t.buf.Valid(end) {
		return start, end, StrategyPath, nil
	}

	if s.Text != "" || s.TextOffset > 0 {
		current := t.buf.Text()
		startOff := text.MapOffset(s.Text, current, s.TextOffset)
		start = t.buf.PositionAt(startOff)
		end = start
		if !s.Collapsed {
			end = t.buf.PositionAt(text.MapOffset(s.Text, current, s.EndTextOffset))
		}
		if t.buf.Valid(start) && t.buf.Valid(end) {
			return start, end, StrategySnapshot, nil
		}
	}

	last := t.buf.LastLeaf()
	if last == nil {
		return buffer.Position{}, buffer.Position{}, StrategyNone, ErrPositionUnresolved
	}
	pos := buffer.Position{Node: last, Offset: last.Len()}
	return pos, pos, StrategyEnd, nil
}
