package overlay

import (
	"cmp"
	"slices"

	"scribe/buffer"
	"scribe/text"
	"scribe/types"
)

type hit struct {
	text.Match
	rep types.Replacement
}

// collectMatches finds every occurrence of every replacement in s. Single
// words match on word boundaries, phrases as raw substrings. Overlapping
// matches resolve to the longest one, then the leftmost.
func collectMatches(s string, reps []types.Replacement) []hit {
	var hits []hit
	for _, rep := range reps {
		if rep.IsNoOp() {
			continue
		}
		for _, m := range text.FindAll(s, rep.Original, text.IsSingleWord(rep.Original)) {
			hits = append(hits, hit{Match: m, rep: rep})
		}
	}
	if len(hits) == 0 {
		return nil
	}

	slices.SortStableFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.End-b.Start, a.End-a.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.Start, b.Start)
	})
	chosen := make([]hit, 0, len(hits))
	for _, h := range hits {
		if !slices.ContainsFunc(chosen, func(c hit) bool { return c.Overlaps(h.Match) }) {
			chosen = append(chosen, h)
		}
	}
	slices.SortFunc(chosen, func(a, b hit) int { return cmp.Compare(a.Start, b.Start) })
	return chosen
}

// segment is one node of the fragment that replaces a text run, with its
// rune range in the original run text.
type segment struct {
	node       *buffer.Node
	text       string
	start, end int
}

// buildSegments splits s around hits into plain text and overlay segments.
func buildSegments(s string, hits []hit, gen string) []segment {
	runes := []rune(s)
	var segs []segment
	cursor := 0
	for _, h := range hits {
		if h.Start > cursor {
			segs = append(segs, plainSegment(runes, cursor, h.Start))
		}
		segs = append(segs, segment{
			node:  buffer.NewOverlay(buffer.OverlayReplacement, h.rep.Fixed, h.rep.Original, gen),
			text:  h.rep.Fixed,
			start: h.Start,
			end:   h.End,
		})
		cursor = h.End
	}
	if cursor < len(runes) {
		segs = append(segs, plainSegment(runes, cursor, len(runes)))
	}
	return segs
}

func plainSegment(runes []rune, start, end int) segment {
	t := string(runes[start:end])
	return segment{node: buffer.NewText(t), text: t, start: start, end: end}
}

// locate maps a rune offset in the original run onto the fragment.
// Boundaries prefer plain text.
func locate(segs []segment, offset int) (*buffer.Node, int) {
	for _, s := range segs {
		if s.node.Kind == buffer.KindText && offset >= s.start && offset <= s.end {
			return s.node, offset - s.start
		}
	}
	for _, s := range segs {
		if offset > s.start && offset < s.end {
			return s.node, min(offset-s.start, s.node.Len())
		}
	}
	last := segs[len(segs)-1]
	return last.node, last.node.Len()
}
