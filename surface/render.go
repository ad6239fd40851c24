package surface

import (
	"unicode/utf8"

	"scribe/buffer"
	"scribe/text"
)

// Item is one overlay as the editor draws it. Line is 0-based; Col and EndCol
// are byte columns in the committed line. EndCol equals Col for continuations.
type Item struct {
	Line     int    `msgpack:"line"`
	Col      int    `msgpack:"col"`
	EndCol   int    `msgpack:"end_col"`
	Kind     string `msgpack:"kind"`
	Text     string `msgpack:"text"`
	Original string `msgpack:"original"`
	Active   bool   `msgpack:"active"`
}

// collectItems lists every overlay of b in document order
func collectItems(b *buffer.Buffer) []Item {
	overlays := b.Overlays()
	if len(overlays) == 0 {
		return []Item{}
	}

	index := make(map[*buffer.Node]int, len(b.Blocks()))
	for i, blk := range b.Blocks() {
		index[blk] = i
	}
	lines := b.Lines()

	items := make([]Item, 0, len(overlays))
	for _, n := range overlays {
		li, ok := index[b.BlockOf(n)]
		if !ok {
			continue
		}
		col := b.OffsetInBlock(buffer.Position{Node: n, Offset: 0})
		item := Item{
			Line:     li,
			Col:      byteCol(lines[li], col),
			Kind:     n.Overlay.String(),
			Text:     n.Text,
			Original: n.Original,
			Active:   n.Active,
		}
		item.EndCol = item.Col
		if n.IsReplacement() {
			item.EndCol = byteCol(lines[li], col+text.RuneLen(n.Original))
		}
		items = append(items, item)
	}
	return items
}

// byteCol converts a rune offset within line into a byte column
func byteCol(line string, runes int) int {
	col := 0
	for i := 0; i < runes && col < len(line); i++ {
		_, size := utf8.DecodeRuneInString(line[col:])
		col += size
	}
	return col
}

// runeCol converts a byte column within line into a rune offset. Columns in
// the middle of a rune count that rune as passed.
func runeCol(line string, col int) int {
	col = min(max(col, 0), len(line))
	return utf8.RuneCountInString(line[:col])
}

// cursorOffset maps an editor cursor (1-based row, byte column) onto a rune
// offset in the text formed by joining lines with newlines.
func cursorOffset(lines []string, row, col int) int {
	if len(lines) == 0 {
		return 0
	}
	row = min(max(row, 1), len(lines))
	off := 0
	for _, line := range lines[:row-1] {
		off += utf8.RuneCountInString(line) + 1
	}
	return off + runeCol(lines[row-1], col)
}

// rangeOffsets maps an editor range onto rune offsets in the joined lines
func rangeOffsets(lines []string, start, end [2]int) (int, int) {
	return cursorOffset(lines, start[0], start[1]), cursorOffset(lines, end[0], end[1])
}

// cursorPosition is the inverse of cursorOffset
func cursorPosition(lines []string, offset int) (int, int) {
	if len(lines) == 0 {
		return 1, 0
	}
	offset = max(offset, 0)
	for i, line := range lines {
		n := utf8.RuneCountInString(line)
		if offset <= n {
			return i + 1, byteCol(line, offset)
		}
		offset -= n + 1
	}
	last := len(lines) - 1
	return last + 1, len(lines[last])
}

// toBytes converts lines into the form the buffer API expects
func toBytes(lines []string) [][]byte {
	out := make([][]byte, len(lines))
	for i, line := range lines {
		out[i] = []byte(line)
	}
	return out
}

func toStrings(lines [][]byte) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = string(line)
	}
	return out
}
