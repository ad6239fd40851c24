package buffer

import (
	"html"
	"strings"
)

// InsertText types s at the caret, replacing any selected range first. A
// newline splits the current block. Typing inside an overlay goes into a new
// text run placed before it, or after it when the caret sits at its end.
func (b *Buffer) InsertText(s string) {
	if !b.sel.Collapsed() {
		b.DeleteSelection()
	}
	pos := b.sel.Start
	if !b.Valid(pos) {
		last := b.LastLeaf()
		pos = Position{last, last.Len()}
	}
	if pos.Node.Kind != KindText {
		run := NewText("")
		if pos.Offset > 0 && pos.Offset >= pos.Node.Len() {
			b.InsertAfter(pos.Node, run)
		} else {
			b.InsertBefore(pos.Node, run)
		}
		pos = Position{run, 0}
	}

	parts := strings.Split(s, "\n")
	for i, part := range parts {
		if i > 0 {
			pos = b.splitBlockAt(pos)
		}
		if part == "" {
			continue
		}
		r := []rune(pos.Node.Text)
		off := clamp(pos.Offset, 0, len(r))
		pos.Node.Text = string(r[:off]) + part + string(r[off:])
		pos.Offset = off + len([]rune(part))
		b.generation++
	}
	b.SetCaret(pos)
}

// DeleteBackward removes n runes before the caret within its text run and
// preceding runs of the same block.
func (b *Buffer) DeleteBackward(n int) {
	pos := b.sel.Start
	if !b.Valid(pos) || pos.Node.Kind != KindText {
		return
	}
	for n > 0 && pos.Node != nil {
		take := min(n, pos.Offset)
		r := []rune(pos.Node.Text)
		pos.Node.Text = string(r[:pos.Offset-take]) + string(r[pos.Offset:])
		pos.Offset -= take
		n -= take
		b.generation++
		if n == 0 {
			break
		}
		prev := b.prevTextRun(pos.Node)
		if prev == nil {
			break
		}
		pos = Position{prev, prev.Len()}
	}
	b.SetCaret(pos)
}

func (b *Buffer) prevTextRun(n *Node) *Node {
	blk := b.BlockOf(n)
	var prev *Node
	found := false
	walkLeaves(blk, func(cur *Node) bool {
		if cur == n {
			found = true
			return false
		}
		if cur.Kind == KindText {
			prev = cur
		}
		return true
	})
	if !found {
		return nil
	}
	return prev
}

// DeleteSelection removes the selected range and collapses the caret at its
// start. Blocks spanned by the range are merged.
func (b *Buffer) DeleteSelection() {
	sel := b.sel
	if sel.Collapsed() || !b.Valid(sel.Start) || !b.Valid(sel.End) {
		return
	}
	start, end := sel.Start, sel.End
	if b.OffsetOf(start) > b.OffsetOf(end) {
		start, end = end, start
	}
	if start.Node == end.Node {
		r := []rune(start.Node.Text)
		start.Node.Text = string(r[:start.Offset]) + string(r[end.Offset:])
		b.generation++
		b.SetCaret(start)
		return
	}

	leaves := b.Leaves()
	si, ei := indexOf(leaves, start.Node), indexOf(leaves, end.Node)
	start.Node.Text = sliceRunes(start.Node.Text, 0, start.Offset)
	end.Node.Text = sliceRunes(end.Node.Text, end.Offset, end.Node.Len())
	b.generation++
	for _, n := range leaves[si+1 : ei] {
		b.detach(n)
	}

	startBlk, endBlk := b.BlockOf(start.Node), b.BlockOf(end.Node)
	if startBlk != endBlk {
		for cur := b.NextBlock(startBlk); cur != nil && cur != endBlk; cur = b.NextBlock(startBlk) {
			b.detach(cur)
		}
		for _, c := range endBlk.children {
			c.parent = startBlk
			startBlk.children = append(startBlk.children, c)
		}
		endBlk.children = nil
		b.detach(endBlk)
	}
	b.SetCaret(start)
}

// detach removes n without selection repair; callers set the selection.
func (b *Buffer) detach(n *Node) {
	parent := n.parent
	if parent == nil {
		return
	}
	idx := n.indexInParent()
	parent.children = append(parent.children[:idx], parent.children[idx+1:]...)
	n.parent = nil
	b.generation++
	if parent.Kind == KindSpan && len(parent.children) == 0 {
		b.detach(parent)
		return
	}
	b.ensureNonEmpty(parent)
}

// splitBlockAt splits the block containing pos and returns the start of the
// new block.
func (b *Buffer) splitBlockAt(pos Position) Position {
	n := pos.Node
	right := b.SplitText(n, pos.Offset)
	if right == nil {
		right = NewText("")
		b.InsertAfter(n, right)
	}

	cur := right
	for cur.parent.Kind != KindBlock {
		parent := cur.parent
		idx := cur.indexInParent()
		clone := &Node{Kind: parent.Kind, Tag: parent.Tag, Style: parent.Style}
		moved := append([]*Node{}, parent.children[idx:]...)
		parent.children = parent.children[:idx]
		for _, m := range moved {
			m.parent = clone
		}
		clone.children = moved
		b.InsertAfter(parent, clone)
		cur = clone
	}

	blk := cur.parent
	idx := cur.indexInParent()
	newBlk := &Node{Kind: KindBlock, Tag: blk.Tag}
	moved := append([]*Node{}, blk.children[idx:]...)
	blk.children = blk.children[:idx]
	for _, m := range moved {
		m.parent = newBlk
	}
	newBlk.children = moved
	b.ensureNonEmpty(blk)
	b.InsertAfter(blk, newBlk)
	return Position{right, 0}
}

// Promote turns an overlay into a plain text run with the given style. The
// node keeps its identity so selection endpoints inside it stay valid.
func (b *Buffer) Promote(n *Node, style string) {
	if n.Kind != KindOverlay {
		return
	}
	n.Kind = KindText
	n.Style = style
	n.Overlay = OverlayNone
	n.Original = ""
	n.Active = false
	b.generation++
}

// MergeAdjacent folds plain text runs around n that share its style into a
// single run. The leftmost run keeps its identity. It returns the merged run.
func (b *Buffer) MergeAdjacent(n *Node) *Node {
	if n == nil || n.Kind != KindText || n.parent == nil {
		return n
	}
	parent := n.parent
	idx := n.indexInParent()
	first := idx
	for first > 0 && mergeable(parent.children[first-1], n) {
		first--
	}
	last := idx
	for last+1 < len(parent.children) && mergeable(parent.children[last+1], n) {
		last++
	}
	if first == last {
		return n
	}

	keep := parent.children[first]
	sel := b.sel
	moved := false
	offset := keep.Len()
	for _, c := range parent.children[first+1 : last+1] {
		if sel.Start.Node == c {
			sel.Start = Position{keep, offset + sel.Start.Offset}
			moved = true
		}
		if sel.End.Node == c {
			sel.End = Position{keep, offset + sel.End.Offset}
			moved = true
		}
		keep.Text += c.Text
		offset += c.Len()
		c.parent = nil
	}
	parent.children = append(parent.children[:first+1], parent.children[last+1:]...)
	b.generation++
	if moved {
		b.SetSelection(sel)
	}
	return keep
}

func mergeable(a, b *Node) bool {
	return a.Kind == KindText && b.Kind == KindText && a.Style == b.Style
}

// ReplaceLast substitutes the last occurrence of old inside a single text run
// with repl, searching runs from the end of the document. It returns false
// when no run contains old.
func (b *Buffer) ReplaceLast(old, repl string) bool {
	if old == "" {
		return false
	}
	runs := b.TextRuns()
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		idx := strings.LastIndex(run.Text, old)
		if idx < 0 {
			continue
		}
		b.SetText(run, run.Text[:idx]+repl+run.Text[idx+len(old):])
		return true
	}
	return false
}

// SyncLines makes the committed block texts equal lines. Blocks whose text
// already matches are kept untouched. Overlays in changed blocks are dropped.
func (b *Buffer) SyncLines(lines []string) bool {
	startOff, endOff := b.selectionOffsets()
	changed := false
	for i, line := range lines {
		if i < len(b.root.children) {
			blk := b.root.children[i]
			if b.BlockText(blk) == line {
				continue
			}
			for _, c := range blk.children {
				c.parent = nil
			}
			run := NewText(line)
			run.parent = blk
			blk.children = []*Node{run}
		} else {
			blk := NewBlock("p", NewText(line))
			blk.parent = b.root
			b.root.children = append(b.root.children, blk)
		}
		changed = true
	}
	if len(lines) > 0 && len(b.root.children) > len(lines) {
		for _, blk := range b.root.children[len(lines):] {
			blk.parent = nil
		}
		b.root.children = b.root.children[:len(lines)]
		changed = true
	}
	if changed {
		b.generation++
		b.repairSelection(startOff, endOff)
	}
	return changed
}

// Serialize renders the tree as markup. It is used as a structural snapshot.
func (b *Buffer) Serialize() string {
	var sb strings.Builder
	serializeNode(&sb, b.root)
	return sb.String()
}

func serializeNode(sb *strings.Builder, n *Node) {
	switch n.Kind {
	case KindRoot:
		for _, c := range n.children {
			serializeNode(sb, c)
		}
	case KindText:
		sb.WriteString(html.EscapeString(n.Text))
	case KindOverlay:
		sb.WriteString(`<span class="`)
		sb.WriteString(n.Overlay.String())
		sb.WriteString(`"`)
		if n.IsReplacement() {
			sb.WriteString(` data-original="`)
			sb.WriteString(html.EscapeString(n.Original))
			sb.WriteString(`"`)
		}
		sb.WriteString(`>`)
		sb.WriteString(html.EscapeString(n.Text))
		sb.WriteString(`</span>`)
	default:
		tag := n.Tag
		if tag == "" {
			tag = "span"
		}
		sb.WriteString("<" + tag + ">")
		for _, c := range n.children {
			serializeNode(sb, c)
		}
		sb.WriteString("</" + tag + ">")
	}
}

func indexOf(nodes []*Node, n *Node) int {
	for i, c := range nodes {
		if c == n {
			return i
		}
	}
	return -1
}
