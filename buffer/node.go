package buffer

import "unicode/utf8"

// Kind identifies the role of a node in the document tree.
type Kind int

const (
	KindRoot Kind = iota
	KindBlock
	KindText
	KindSpan
	KindOverlay
)

// String returns a human-readable name for the kind
func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindBlock:
		return "block"
	case KindText:
		return "text"
	case KindSpan:
		return "span"
	case KindOverlay:
		return "overlay"
	default:
		return "unknown"
	}
}

// OverlayKind distinguishes the two suggestion overlays.
type OverlayKind int

const (
	OverlayNone OverlayKind = iota
	OverlayInlineSuggestion
	OverlayReplacement
)

// String returns the class name used when serializing the overlay
func (o OverlayKind) String() string {
	switch o {
	case OverlayInlineSuggestion:
		return "inline-suggestion"
	case OverlayReplacement:
		return "replacement"
	default:
		return ""
	}
}

// Overlay styles.
const (
	StylePending            = "pending"
	StyleAppliedSuggestion  = "applied-suggestion"
	StyleAppliedReplacement = "applied-replacement"
)

// Node is a single element of the document tree. Text runs and overlays are
// leaves and carry Text; blocks and spans are containers.
type Node struct {
	Kind  Kind
	Tag   string
	Text  string
	Style string

	// Overlay fields, only meaningful when Kind == KindOverlay.
	Overlay    OverlayKind
	Original   string
	Generation string
	Active     bool

	parent   *Node
	children []*Node
}

// NewText creates a detached text run.
func NewText(s string) *Node {
	return &Node{Kind: KindText, Text: s}
}

// NewSpan creates a detached formatting span holding the given inline children.
func NewSpan(tag string, children ...*Node) *Node {
	n := &Node{Kind: KindSpan, Tag: tag}
	for _, c := range children {
		c.parent = n
		n.children = append(n.children, c)
	}
	return n
}

// NewBlock creates a detached paragraph-like block.
func NewBlock(tag string, children ...*Node) *Node {
	n := &Node{Kind: KindBlock, Tag: tag}
	for _, c := range children {
		c.parent = n
		n.children = append(n.children, c)
	}
	if len(n.children) == 0 {
		t := NewText("")
		t.parent = n
		n.children = append(n.children, t)
	}
	return n
}

// NewOverlay creates a detached overlay leaf in the pending style.
func NewOverlay(kind OverlayKind, text, original, generation string) *Node {
	return &Node{
		Kind:       KindOverlay,
		Text:       text,
		Style:      StylePending,
		Overlay:    kind,
		Original:   original,
		Generation: generation,
	}
}

// Parent returns the parent node, nil for the root or detached nodes.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child slice. Callers must not modify it.
func (n *Node) Children() []*Node { return n.children }

// IsLeaf reports whether the node carries text.
func (n *Node) IsLeaf() bool {
	return n.Kind == KindText || n.Kind == KindOverlay
}

// Len returns the rune length of a leaf's text.
func (n *Node) Len() int {
	return utf8.RuneCountInString(n.Text)
}

// IsContinuation reports whether n is an inline suggestion overlay.
func (n *Node) IsContinuation() bool {
	return n != nil && n.Kind == KindOverlay && n.Overlay == OverlayInlineSuggestion
}

// IsReplacement reports whether n is a replacement overlay.
func (n *Node) IsReplacement() bool {
	return n != nil && n.Kind == KindOverlay && n.Overlay == OverlayReplacement
}

// committedText returns the text a leaf contributes to the document when
// pending overlays are ignored.
func (n *Node) committedText() string {
	switch {
	case n.Kind == KindText:
		return n.Text
	case n.IsReplacement():
		return n.Original
	default:
		return ""
	}
}

// committedLen is the rune length of committedText.
func (n *Node) committedLen() int {
	return utf8.RuneCountInString(n.committedText())
}

func (n *Node) indexInParent() int {
	if n.parent == nil {
		return -1
	}
	for i, c := range n.parent.children {
		if c == n {
			return i
		}
	}
	return -1
}

// walkLeaves visits leaves under n in document order until fn returns false.
func walkLeaves(n *Node, fn func(*Node) bool) bool {
	if n.IsLeaf() {
		return fn(n)
	}
	for _, c := range n.children {
		if !walkLeaves(c, fn) {
			return false
		}
	}
	return true
}

// sliceRunes returns s[from:to] in rune offsets, clamped to the string.
func sliceRunes(s string, from, to int) string {
	r := []rune(s)
	from = clamp(from, 0, len(r))
	to = clamp(to, from, len(r))
	return string(r[from:to])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
