package text

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// MapOffset maps a rune offset in oldText to the matching offset in newText
// using a character diff. Offsets inside deleted text map to the start of the
// deletion.
func MapOffset(oldText, newText string, offset int) int {
	if offset < 0 {
		return 0
	}
	if oldText == newText {
		return min(offset, utf8.RuneCountInString(newText))
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)

	oldPos, newPos := 0, 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			if offset <= oldPos+n {
				return newPos + (offset - oldPos)
			}
			oldPos += n
			newPos += n
		case diffmatchpatch.DiffDelete:
			if offset <= oldPos+n {
				return newPos
			}
			oldPos += n
		case diffmatchpatch.DiffInsert:
			newPos += n
		}
	}
	return newPos
}
