package caret

import (
	"testing"

	"scribe/buffer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTracker(paragraphs ...string) (*buffer.Buffer, *Tracker) {
	buf := buffer.New(paragraphs...)
	return buf, NewTracker(buf, &Guard{})
}

func TestSave_CapturesSelection(t *testing.T) {
	buf, tr := newTracker("hello world")
	run := buf.TextRuns()[0]
	buf.SetScroll(12)
	buf.SetCaret(buffer.Position{Node: run, Offset: 5})

	s, ok := tr.Save()

	require.True(t, ok)
	assert.Same(t, run, s.StartRef, "start ref")
	assert.Equal(t, 5, s.StartOffset, "start offset")
	assert.Equal(t, []int{0, 0}, s.StartPath, "start path")
	assert.True(t, s.Collapsed, "collapsed")
	assert.Equal(t, 5, s.TextOffset, "text offset")
	assert.Equal(t, 12, s.Scroll, "scroll")
	assert.Equal(t, "<p>hello world</p>", s.Snapshot, "snapshot")
}

func TestSave_NoOpWhileGuardHeld(t *testing.T) {
	_, tr := newTracker("hello")
	require.True(t, tr.Guard().TryAcquire())
	defer tr.Guard().Release()

	_, ok := tr.Save()

	assert.False(t, ok, "save should be skipped while guarded")
}

func TestRestore_Direct(t *testing.T) {
	buf, tr := newTracker("hello world")
	run := buf.TextRuns()[0]
	buf.SetCaret(buffer.Position{Node: run, Offset: 3})
	s, _ := tr.Save()
	buf.SetCaret(buffer.Position{Node: run, Offset: 0})

	strategy, err := tr.RestoreWith(s)

	require.NoError(t, err)
	assert.Equal(t, StrategyDirect, strategy, "strategy")
	assert.Equal(t, 3, buf.Selection().Start.Offset, "offset")
}

func TestRestore_PathAfterNodeReplaced(t *testing.T) {
	buf, tr := newTracker("hello world")
	run := buf.TextRuns()[0]
	buf.SetCaret(buffer.Position{Node: run, Offset: 4})
	s, _ := tr.Save()

	fresh := buffer.NewText("hello world")
	buf.Replace(run, fresh)

	strategy, err := tr.RestoreWith(s)

	require.NoError(t, err)
	assert.Equal(t, StrategyPath, strategy, "strategy")
	assert.Same(t, fresh, buf.Selection().Start.Node, "resolved by path")
	assert.Equal(t, 4, buf.Selection().Start.Offset, "offset")
}

func TestRestore_SnapshotAfterRestructure(t *testing.T) {
	buf, tr := newTracker("Im goin home")
	run := buf.TextRuns()[0]
	buf.SetCaret(buffer.Position{Node: run, Offset: 10})
	s, _ := tr.Save()

	// Rebuild the block so neither the reference nor the path survive.
	blk := buf.Blocks()[0]
	buf.Replace(blk, buffer.NewBlock("p",
		buffer.NewSpan("b", buffer.NewText("I'm")),
		buffer.NewText(" going home"),
	))

	strategy, err := tr.RestoreWith(s)

	require.NoError(t, err)
	assert.Equal(t, StrategySnapshot, strategy, "strategy")
	assert.Equal(t, 12, buf.OffsetOf(buf.Selection().Start), "caret mapped through the edit")
}

func TestRestore_FallsBackToEnd(t *testing.T) {
	buf, tr := newTracker("abc")
	s := State{StartRef: buffer.NewText("detached"), EndRef: buffer.NewText("detached")}

	strategy, err := tr.RestoreWith(s)

	require.NoError(t, err)
	assert.Equal(t, StrategyEnd, strategy, "strategy")
	assert.Equal(t, 3, buf.Selection().Start.Offset, "caret at end of last leaf")
}

func TestRestore_HoldsGuardForListeners(t *testing.T) {
	buf, tr := newTracker("abc")
	var heldDuringChange bool
	buf.OnSelectionChange(func(buffer.Selection) {
		heldDuringChange = tr.Guard().Held()
	})
	s, _ := tr.Save()

	tr.Restore(s)

	assert.True(t, heldDuringChange, "guard should be held while restoring")
	assert.False(t, tr.Guard().Held(), "guard released after restore")
}

func TestRestore_RefusedWhileGuardHeld(t *testing.T) {
	buf, tr := newTracker("hello world")
	run := buf.TextRuns()[0]
	buf.SetCaret(buffer.Position{Node: run, Offset: 3})
	s, ok := tr.Save()
	require.True(t, ok)
	buf.SetCaret(buffer.Position{Node: run, Offset: 8})

	require.True(t, tr.Guard().TryAcquire())
	strategy, err := tr.RestoreWith(s)

	assert.ErrorIs(t, err, ErrGuardHeld)
	assert.Equal(t, StrategyNone, strategy, "no strategy ran")
	assert.Equal(t, 8, buf.Selection().Start.Offset, "caret untouched")
	assert.True(t, tr.Guard().Held(), "outer guard still held")
	tr.Guard().Release()
}

func TestRestoreHeld_KeepsOuterGuard(t *testing.T) {
	buf, tr := newTracker("abc")
	run := buf.TextRuns()[0]
	buf.SetCaret(buffer.Position{Node: run, Offset: 1})
	s, _ := tr.Save()
	buf.SetCaret(buffer.Position{Node: run, Offset: 3})
	require.True(t, tr.Guard().TryAcquire())

	assert.True(t, tr.RestoreHeld(s), "restore works inside a guarded section")
	assert.Equal(t, 1, buf.Selection().Start.Offset, "restored offset")
	assert.True(t, tr.Guard().Held(), "outer guard still held")
	tr.Guard().Release()
}

func TestRestoreHeld_RequiresGuard(t *testing.T) {
	_, tr := newTracker("abc")
	s, _ := tr.Save()

	assert.False(t, tr.RestoreHeld(s), "caller without the guard")
	assert.False(t, tr.Guard().Held(), "guard not taken")
}
