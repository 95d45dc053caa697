package tundra

import "strings"

// Segment is a classified substring of resolved template content.
type Segment struct {
	Kind   TagKind
	Text   string // exact source text, delimiters included
	Body   string // trimmed tag body; the literal text for KindLiteral
	Offset int    // byte offset of Text in the resolved content
}

// Tokenize splits fully resolved content into segments in source order.
// Text between tags becomes KindLiteral segments; empty segments are dropped.
func Tokenize(g *Grammar, src string) []Segment {
	segs := make([]Segment, 0, 16)
	pos, litStart := 0, 0

	for pos < len(src) {
		idx, def := g.nextOpener(src, pos)
		if idx < 0 {
			break
		}
		bodyStart := idx + len(def.Open)
		end := closeIndex(src[bodyStart:], def)
		if end < 0 {
			// unterminated, the opener stays literal
			pos = bodyStart
			continue
		}
		if idx > litStart {
			segs = append(segs, literalSegment(src[litStart:idx], litStart))
		}
		stop := bodyStart + end + len(def.Close)
		segs = append(segs, classify(def.Kind, src[idx:stop], src[bodyStart:bodyStart+end], idx))
		pos, litStart = stop, stop
	}

	if litStart < len(src) {
		segs = append(segs, literalSegment(src[litStart:], litStart))
	}
	return segs
}

func literalSegment(text string, offset int) Segment {
	return Segment{Kind: KindLiteral, Text: text, Body: text, Offset: offset}
}

// nextOpener returns the offset and definition of the earliest non-escaped
// opener at or after pos. Ties go to the kind listed first in scanOrder.
func (g *Grammar) nextOpener(src string, pos int) (int, TagDefinition) {
	best := -1
	var bestDef TagDefinition
	marker := g.EscapeMarker()
	for _, def := range g.scan {
		from := pos
		for from < len(src) {
			i := strings.Index(src[from:], def.Open)
			if i < 0 {
				break
			}
			abs := from + i
			if marker != "" && strings.HasSuffix(src[:abs], marker) {
				from = abs + len(def.Open)
				continue
			}
			if best < 0 || abs < best {
				best, bestDef = abs, def
			}
			break
		}
	}
	return best, bestDef
}

// closeIndex finds the closing delimiter in rest. Only comments may span lines.
func closeIndex(rest string, def TagDefinition) int {
	if def.Kind != KindComment {
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[:nl]
		}
	}
	return strings.Index(rest, def.Close)
}

func classify(kind TagKind, text, body string, offset int) Segment {
	seg := Segment{Kind: kind, Text: text, Body: strings.TrimSpace(body), Offset: offset}
	if kind != KindCode {
		return seg
	}
	switch {
	case seg.Body == "end":
		seg.Kind = KindCodeEnd
	case strings.HasSuffix(seg.Body, ":"):
		seg.Kind = KindCodeBegin
		seg.Body = strings.TrimSpace(strings.TrimSuffix(seg.Body, ":"))
	}
	return seg
}
