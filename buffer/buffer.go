package buffer

import (
	"strings"
)

// Position addresses a rune offset inside a leaf node.
type Position struct {
	Node   *Node
	Offset int
}

// Selection is the live selection of a buffer.
type Selection struct {
	Start Position
	End   Position
}

// Collapsed reports whether the selection is a caret.
func (s Selection) Collapsed() bool {
	return s.Start.Node == s.End.Node && s.Start.Offset == s.End.Offset
}

// IsZero reports whether no selection is set.
func (s Selection) IsZero() bool {
	return s.Start.Node == nil && s.End.Node == nil
}

// Buffer is a mutable document tree with a live selection. It is not safe for
// concurrent use; callers serialize access.
type Buffer struct {
	root       *Node
	sel        Selection
	scroll     int
	generation uint64
	listeners  []func(Selection)
}

// New creates a buffer with one paragraph block per argument. The caret is
// placed at the end of the document.
func New(paragraphs ...string) *Buffer {
	b := &Buffer{root: &Node{Kind: KindRoot}}
	if len(paragraphs) == 0 {
		paragraphs = []string{""}
	}
	for _, p := range paragraphs {
		blk := NewBlock("p", NewText(p))
		blk.parent = b.root
		b.root.children = append(b.root.children, blk)
	}
	last := b.LastLeaf()
	b.sel = Selection{Start: Position{last, last.Len()}, End: Position{last, last.Len()}}
	return b
}

// FromBlocks creates a buffer from pre-built block nodes.
func FromBlocks(blocks ...*Node) *Buffer {
	b := &Buffer{root: &Node{Kind: KindRoot}}
	for _, blk := range blocks {
		blk.parent = b.root
		b.root.children = append(b.root.children, blk)
	}
	if len(b.root.children) == 0 {
		blk := NewBlock("p")
		blk.parent = b.root
		b.root.children = append(b.root.children, blk)
	}
	last := b.LastLeaf()
	b.sel = Selection{Start: Position{last, last.Len()}, End: Position{last, last.Len()}}
	return b
}

func (b *Buffer) Root() *Node { return b.root }

// Blocks returns the top-level blocks.
func (b *Buffer) Blocks() []*Node { return b.root.children }

// Generation is bumped on every structural or text mutation.
func (b *Buffer) Generation() uint64 { return b.generation }

func (b *Buffer) Scroll() int { return b.scroll }

func (b *Buffer) SetScroll(offset int) { b.scroll = offset }

func (b *Buffer) Selection() Selection { return b.sel }

// OnSelectionChange registers fn to be called after every selection change.
func (b *Buffer) OnSelectionChange(fn func(Selection)) {
	b.listeners = append(b.listeners, fn)
}

// SetSelection replaces the selection and notifies listeners.
func (b *Buffer) SetSelection(sel Selection) {
	b.sel = sel
	for _, fn := range b.listeners {
		fn(sel)
	}
}

// SetCaret collapses the selection at pos.
func (b *Buffer) SetCaret(pos Position) {
	b.SetSelection(Selection{Start: pos, End: pos})
}

// Caret returns the selection start and whether the selection is collapsed.
func (b *Buffer) Caret() (Position, bool) {
	return b.sel.Start, b.sel.Collapsed()
}

// Contains reports whether n is attached to this buffer's tree.
func (b *Buffer) Contains(n *Node) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur == b.root {
			return true
		}
	}
	return false
}

// Valid reports whether pos addresses an attached leaf within bounds.
func (b *Buffer) Valid(pos Position) bool {
	return pos.Node != nil && pos.Node.IsLeaf() && b.Contains(pos.Node) &&
		pos.Offset >= 0 && pos.Offset <= pos.Node.Len()
}

// PathOf returns the child indices leading from the root to n, or nil if n is
// not attached.
func (b *Buffer) PathOf(n *Node) []int {
	if !b.Contains(n) {
		return nil
	}
	var path []int
	for cur := n; cur != b.root; cur = cur.parent {
		path = append(path, cur.indexInParent())
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// NodeAt resolves a path produced by PathOf. It returns nil when the path no
// longer exists.
func (b *Buffer) NodeAt(path []int) *Node {
	if path == nil {
		return nil
	}
	cur := b.root
	for _, idx := range path {
		if idx < 0 || idx >= len(cur.children) {
			return nil
		}
		cur = cur.children[idx]
	}
	return cur
}

// Leaves returns every text run and overlay in document order.
func (b *Buffer) Leaves() []*Node {
	var out []*Node
	walkLeaves(b.root, func(n *Node) bool {
		out = append(out, n)
		return true
	})
	return out
}

// TextRuns returns the plain text runs in document order.
func (b *Buffer) TextRuns() []*Node {
	var out []*Node
	walkLeaves(b.root, func(n *Node) bool {
		if n.Kind == KindText {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Overlays returns overlay nodes in document order.
func (b *Buffer) Overlays() []*Node {
	var out []*Node
	walkLeaves(b.root, func(n *Node) bool {
		if n.Kind == KindOverlay {
			out = append(out, n)
		}
		return true
	})
	return out
}

// LastLeaf returns the final leaf of the document.
func (b *Buffer) LastLeaf() *Node {
	var last *Node
	walkLeaves(b.root, func(n *Node) bool {
		last = n
		return true
	})
	return last
}

// InsertBefore inserts nodes as siblings immediately before ref.
func (b *Buffer) InsertBefore(ref *Node, nodes ...*Node) {
	parent := ref.parent
	b.insertAt(parent, ref.indexInParent(), nodes...)
}

// InsertAfter inserts nodes as siblings immediately after ref.
func (b *Buffer) InsertAfter(ref *Node, nodes ...*Node) {
	parent := ref.parent
	b.insertAt(parent, ref.indexInParent()+1, nodes...)
}

// Append adds nodes as the last children of parent.
func (b *Buffer) Append(parent *Node, nodes ...*Node) {
	b.insertAt(parent, len(parent.children), nodes...)
}

func (b *Buffer) insertAt(parent *Node, idx int, nodes ...*Node) {
	if parent == nil || idx < 0 {
		return
	}
	for _, n := range nodes {
		n.parent = parent
	}
	tail := append([]*Node{}, parent.children[idx:]...)
	parent.children = append(append(parent.children[:idx], nodes...), tail...)
	b.generation++
}

// Replace swaps old for nodes atomically. Selection endpoints inside old are
// relocated by their text offset.
func (b *Buffer) Replace(old *Node, nodes ...*Node) {
	parent := old.parent
	if parent == nil {
		return
	}
	startOff, endOff := b.selectionOffsets()
	idx := old.indexInParent()
	for _, n := range nodes {
		n.parent = parent
	}
	tail := append([]*Node{}, parent.children[idx+1:]...)
	parent.children = append(append(parent.children[:idx], nodes...), tail...)
	old.parent = nil
	b.generation++
	b.ensureNonEmpty(parent)
	b.repairSelection(startOff, endOff)
}

// Remove detaches n from the tree.
func (b *Buffer) Remove(n *Node) {
	parent := n.parent
	if parent == nil {
		return
	}
	startOff, endOff := b.selectionOffsets()
	idx := n.indexInParent()
	parent.children = append(parent.children[:idx], parent.children[idx+1:]...)
	n.parent = nil
	b.generation++
	b.ensureNonEmpty(parent)
	b.repairSelection(startOff, endOff)
}

// SetText replaces a leaf's text. Selection offsets inside the leaf are clamped.
func (b *Buffer) SetText(n *Node, s string) {
	n.Text = s
	b.generation++
	sel := b.sel
	changed := false
	if sel.Start.Node == n && sel.Start.Offset > n.Len() {
		sel.Start.Offset = n.Len()
		changed = true
	}
	if sel.End.Node == n && sel.End.Offset > n.Len() {
		sel.End.Offset = n.Len()
		changed = true
	}
	if changed {
		b.SetSelection(sel)
	}
}

// SplitText splits text run n at offset. n keeps the left part and the right
// part is inserted after it as a new run, which is returned. It returns nil
// when offset is at or past the end of the run.
func (b *Buffer) SplitText(n *Node, offset int) *Node {
	if n.Kind != KindText || offset >= n.Len() {
		return nil
	}
	offset = max(offset, 0)
	right := &Node{Kind: KindText, Text: sliceRunes(n.Text, offset, n.Len()), Style: n.Style}
	n.Text = sliceRunes(n.Text, 0, offset)
	b.InsertAfter(n, right)

	sel := b.sel
	moved := false
	if sel.Start.Node == n && sel.Start.Offset > offset {
		sel.Start = Position{right, sel.Start.Offset - offset}
		moved = true
	}
	if sel.End.Node == n && sel.End.Offset > offset {
		sel.End = Position{right, sel.End.Offset - offset}
		moved = true
	}
	if moved {
		b.SetSelection(sel)
	}
	return right
}

// ensureNonEmpty keeps every block holding at least one leaf.
func (b *Buffer) ensureNonEmpty(parent *Node) {
	if parent.Kind != KindBlock || len(parent.children) > 0 {
		return
	}
	t := NewText("")
	t.parent = parent
	parent.children = append(parent.children, t)
}

func (b *Buffer) selectionOffsets() (int, int) {
	start, end := -1, -1
	if b.Valid(b.sel.Start) {
		start = b.OffsetOf(b.sel.Start)
	}
	if b.Valid(b.sel.End) {
		end = b.OffsetOf(b.sel.End)
	}
	return start, end
}

// repairSelection moves detached selection endpoints to their previous text
// offset in the mutated tree.
func (b *Buffer) repairSelection(startOff, endOff int) {
	sel := b.sel
	changed := false
	if sel.Start.Node != nil && !b.Contains(sel.Start.Node) && startOff >= 0 {
		sel.Start = b.PositionAt(startOff)
		changed = true
	}
	if sel.End.Node != nil && !b.Contains(sel.End.Node) && endOff >= 0 {
		sel.End = b.PositionAt(endOff)
		changed = true
	}
	if changed {
		b.SetSelection(sel)
	}
}

// BlockOf returns the top-level block containing n.
func (b *Buffer) BlockOf(n *Node) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.Kind == KindBlock && cur.parent == b.root {
			return cur
		}
	}
	return nil
}

// PrevBlock returns the block before blk, or nil.
func (b *Buffer) PrevBlock(blk *Node) *Node {
	idx := blk.indexInParent()
	if idx <= 0 {
		return nil
	}
	return b.root.children[idx-1]
}

// NextBlock returns the block after blk, or nil.
func (b *Buffer) NextBlock(blk *Node) *Node {
	idx := blk.indexInParent()
	if idx < 0 || idx+1 >= len(b.root.children) {
		return nil
	}
	return b.root.children[idx+1]
}

// BlockText returns the committed text of a block. Pending continuations are
// skipped and replacements contribute their original text.
func (b *Buffer) BlockText(blk *Node) string {
	var sb strings.Builder
	walkLeaves(blk, func(n *Node) bool {
		sb.WriteString(n.committedText())
		return true
	})
	return sb.String()
}

// Lines returns the committed text of every block.
func (b *Buffer) Lines() []string {
	lines := make([]string, 0, len(b.root.children))
	for _, blk := range b.root.children {
		lines = append(lines, b.BlockText(blk))
	}
	return lines
}

// Text returns the committed document text with blocks joined by newlines.
func (b *Buffer) Text() string {
	return strings.Join(b.Lines(), "\n")
}

// VisibleText returns the document text as displayed, overlays included.
func (b *Buffer) VisibleText() string {
	lines := make([]string, 0, len(b.root.children))
	for _, blk := range b.root.children {
		var sb strings.Builder
		walkLeaves(blk, func(n *Node) bool {
			sb.WriteString(n.Text)
			return true
		})
		lines = append(lines, sb.String())
	}
	return strings.Join(lines, "\n")
}

// OffsetInBlock returns the committed rune offset of pos within its block.
func (b *Buffer) OffsetInBlock(pos Position) int {
	blk := b.BlockOf(pos.Node)
	if blk == nil {
		return -1
	}
	off := 0
	walkLeaves(blk, func(n *Node) bool {
		if n == pos.Node {
			off += leafOffset(n, pos.Offset)
			return false
		}
		off += n.committedLen()
		return true
	})
	return off
}

// OffsetOf returns the committed rune offset of pos within Text(), or -1 when
// the node is not attached.
func (b *Buffer) OffsetOf(pos Position) int {
	blk := b.BlockOf(pos.Node)
	if blk == nil {
		return -1
	}
	off := 0
	for _, cur := range b.root.children {
		if cur == blk {
			return off + b.OffsetInBlock(pos)
		}
		off += len([]rune(b.BlockText(cur))) + 1
	}
	return -1
}

func leafOffset(n *Node, offset int) int {
	switch {
	case n.Kind == KindText:
		return clamp(offset, 0, n.Len())
	case n.IsReplacement():
		return clamp(offset, 0, n.committedLen())
	default:
		return 0
	}
}

// PositionAt maps a committed text offset back to a leaf position. Boundaries
// prefer plain text runs over overlays. Offsets past the end resolve to the
// end of the last leaf.
func (b *Buffer) PositionAt(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	for _, blk := range b.root.children {
		bl := len([]rune(b.BlockText(blk)))
		if offset <= bl {
			if pos, ok := positionInBlock(blk, offset); ok {
				return pos
			}
		}
		offset -= bl + 1
		if offset < 0 {
			break
		}
	}
	last := b.LastLeaf()
	return Position{last, last.Len()}
}

func positionInBlock(blk *Node, offset int) (Position, bool) {
	var found Position
	var lastText *Node
	ok := false
	walkLeaves(blk, func(n *Node) bool {
		l := n.committedLen()
		if n.Kind == KindText {
			lastText = n
			if offset <= l {
				found, ok = Position{n, offset}, true
				return false
			}
		} else if n.IsReplacement() && offset < l {
			found, ok = Position{n, offset}, true
			return false
		}
		offset -= l
		return true
	})
	if ok {
		return found, true
	}
	if lastText != nil {
		return Position{lastText, lastText.Len()}, true
	}
	return Position{}, false
}
