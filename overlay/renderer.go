package overlay

import (
	"scribe/buffer"
	"scribe/caret"
	"scribe/logger"
	"scribe/types"

	"github.com/google/uuid"
)

// Result lists the overlays created by one Apply call.
type Result struct {
	Generation   string
	Continuation *buffer.Node
	Replacements []*buffer.Node
}

// Count returns the number of overlays created.
func (r Result) Count() int {
	n := len(r.Replacements)
	if r.Continuation != nil {
		n++
	}
	return n
}

// Renderer inserts, promotes and removes suggestion overlays in a buffer.
// Every mutation runs under the shared guard so edit and selection listeners
// ignore it.
type Renderer struct {
	buf        *buffer.Buffer
	tracker    *caret.Tracker
	guard      *caret.Guard
	generation string
}

func NewRenderer(buf *buffer.Buffer, tracker *caret.Tracker) *Renderer {
	return &Renderer{
		buf:     buf,
		tracker: tracker,
		guard:   tracker.Guard(),
	}
}

// Generation returns the id of the overlays currently in the buffer, or ""
// when there are none.
func (r *Renderer) Generation() string {
	return r.generation
}

// Apply clears any previous generation and renders s as a new one: the
// continuation at the caret first, then replacements across all text runs.
// It does nothing while another mutation holds the guard.
func (r *Renderer) Apply(s *types.Suggestion) (Result, bool) {
	if s.IsEmpty() || r.guard.Held() {
		return Result{}, false
	}
	if !r.Clear() {
		return Result{}, false
	}

	gen := uuid.NewString()
	res := Result{Generation: gen}
	if s.Continuation != "" {
		res.Continuation = r.ApplyContinuation(s.Continuation, gen)
	}
	if len(s.Replacements) > 0 {
		res.Replacements = r.ApplyReplacements(s.Replacements, gen)
	}
	if res.Count() > 0 {
		r.generation = gen
	}
	logger.Debug("overlay generation %s: continuation=%v replacements=%d",
		gen, res.Continuation != nil, len(res.Replacements))
	return res, true
}

// ApplyContinuation inserts an inline suggestion overlay at a collapsed caret
// inside a plain text run and leaves the caret before it. It returns nil when
// the caret is elsewhere.
func (r *Renderer) ApplyContinuation(continuation, gen string) *buffer.Node {
	pos, collapsed := r.buf.Caret()
	if !collapsed || !r.buf.Valid(pos) || pos.Node.Kind != buffer.KindText {
		return nil
	}
	if !r.guard.TryAcquire() {
		return nil
	}
	defer r.guard.Release()

	node := buffer.NewOverlay(buffer.OverlayInlineSuggestion, continuation, "", gen)
	if right := r.buf.SplitText(pos.Node, pos.Offset); right != nil {
		r.buf.InsertBefore(right, node)
	} else {
		r.buf.InsertAfter(pos.Node, node)
	}
	r.buf.SetCaret(pos)
	return node
}

// ApplyReplacements wraps every match of every replacement in a replacement
// overlay. Each text run is rewritten at most once. The caret is restored
// through the tracker, or placed at the end of the last overlay when its node
// did not survive.
func (r *Renderer) ApplyReplacements(reps []types.Replacement, gen string) []*buffer.Node {
	if len(reps) == 0 {
		return nil
	}
	state, saved := r.tracker.Save()
	if !r.guard.TryAcquire() {
		return nil
	}
	defer r.guard.Release()

	var inserted []*buffer.Node
	for _, run := range r.buf.TextRuns() {
		hits := collectMatches(run.Text, reps)
		if len(hits) == 0 {
			continue
		}
		segs := buildSegments(run.Text, hits, gen)
		for i := range segs {
			if segs[i].node.Kind == buffer.KindText {
				segs[i].node.Style = run.Style
			}
		}
		if segs[0].node.Kind == buffer.KindText {
			segs[0].node = run
		}

		if saved && state.StartRef == run {
			state.StartRef, state.StartOffset = locate(segs, state.StartOffset)
		}
		if saved && state.EndRef == run {
			state.EndRef, state.EndOffset = locate(segs, state.EndOffset)
		}
		inserted = append(inserted, r.replaceRun(run, segs)...)
	}

	if saved {
		direct := buffer.Position{Node: state.StartRef, Offset: state.StartOffset}
		switch {
		case r.buf.Valid(direct):
			r.tracker.RestoreHeld(state)
		case len(inserted) > 0:
			last := inserted[len(inserted)-1]
			r.buf.SetCaret(buffer.Position{Node: last, Offset: last.Len()})
		default:
			r.tracker.RestoreHeld(state)
		}
	}
	return inserted
}

// replaceRun swaps run for the fragment described by segs. A leading plain
// segment reuses run so references to it stay valid.
func (r *Renderer) replaceRun(run *buffer.Node, segs []segment) []*buffer.Node {
	nodes := make([]*buffer.Node, 0, len(segs))
	var overlays []*buffer.Node
	for _, s := range segs {
		nodes = append(nodes, s.node)
		if s.node.Kind == buffer.KindOverlay {
			overlays = append(overlays, s.node)
		}
	}
	if nodes[0] == run {
		r.buf.SetText(run, segs[0].text)
		r.buf.InsertAfter(run, nodes[1:]...)
	} else {
		r.buf.Replace(run, nodes...)
	}
	return overlays
}

// Clear reverts every overlay: replacements go back to their original text and
// inline suggestions are removed. It is idempotent and returns false only when
// another mutation holds the guard.
func (r *Renderer) Clear() bool {
	overlays := r.buf.Overlays()
	if len(overlays) == 0 {
		r.generation = ""
		return true
	}
	state, saved := r.tracker.Save()
	if !r.guard.TryAcquire() {
		return false
	}
	defer r.guard.Release()

	for _, n := range overlays {
		r.revert(n)
	}
	r.generation = ""
	if saved && !r.buf.Valid(r.buf.Selection().Start) {
		r.tracker.RestoreHeld(state)
	}
	return true
}

// Accept promotes an overlay to committed text. An accepted continuation moves
// the caret just after it.
func (r *Renderer) Accept(n *buffer.Node) bool {
	if n == nil || n.Kind != buffer.KindOverlay || !r.buf.Contains(n) {
		return false
	}
	if !r.guard.TryAcquire() {
		return false
	}
	defer r.guard.Release()

	if n.IsContinuation() {
		r.buf.Promote(n, buffer.StyleAppliedSuggestion)
		r.buf.SetCaret(buffer.Position{Node: n, Offset: n.Len()})
	} else {
		r.buf.Promote(n, buffer.StyleAppliedReplacement)
	}
	r.resetGeneration()
	return true
}

// Reject reverts a single overlay.
func (r *Renderer) Reject(n *buffer.Node) bool {
	if n == nil || n.Kind != buffer.KindOverlay || !r.buf.Contains(n) {
		return false
	}
	if !r.guard.TryAcquire() {
		return false
	}
	defer r.guard.Release()

	r.revert(n)
	r.resetGeneration()
	return true
}

func (r *Renderer) revert(n *buffer.Node) {
	if n.IsReplacement() {
		run := buffer.NewText(n.Original)
		r.buf.Replace(n, run)
		r.buf.MergeAdjacent(run)
		return
	}
	parent := n.Parent()
	idx := indexOf(parent.Children(), n)
	r.buf.Remove(n)
	if idx > 0 && idx-1 < len(parent.Children()) {
		r.buf.MergeAdjacent(parent.Children()[idx-1])
	}
}

func (r *Renderer) resetGeneration() {
	if len(r.buf.Overlays()) == 0 {
		r.generation = ""
	}
}

// Navigable returns the overlays in navigation order: replacements left to
// right, then the continuation.
func (r *Renderer) Navigable() []*buffer.Node {
	var reps, conts []*buffer.Node
	for _, n := range r.buf.Overlays() {
		if n.IsReplacement() {
			reps = append(reps, n)
		} else {
			conts = append(conts, n)
		}
	}
	return append(reps, conts...)
}

// SetActive marks n as the active overlay and clears the flag elsewhere.
func (r *Renderer) SetActive(n *buffer.Node) {
	for _, o := range r.buf.Overlays() {
		o.Active = o == n
	}
}

func indexOf(nodes []*buffer.Node, n *buffer.Node) int {
	for i, c := range nodes {
		if c == n {
			return i
		}
	}
	return -1
}
