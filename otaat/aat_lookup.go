package otaat

import "github.com/typeforge/opentype/ot"

// AATLookup is a decoded AAT Lookup Table (the generic glyph->value mapping
// used by morx noncontextual subtables, and by several other AAT tables).
//
// Formats 2, 4 and 10 (segment-based and per-glyph-array-of-arrays) are not
// decoded; Lookup simply reports "not found" for glyphs only reachable
// through them, consistent with the conservative-but-honest stance on
// unsupported binary formats documented in doc.go.
type AATLookup struct {
	byGlyph map[ot.GlyphIndex]ot.GlyphIndex
}

func parseAATLookup(b []byte) *AATLookup {
	if len(b) < 2 {
		return nil
	}
	format := u16(b, 0)
	lk := &AATLookup{byGlyph: make(map[ot.GlyphIndex]ot.GlyphIndex)}
	switch format {
	case 0:
		parseAATLookupFormat0(b[2:], lk.byGlyph)
	case 6:
		parseAATLookupFormat6(b[2:], lk.byGlyph)
	case 8:
		parseAATLookupFormat8(b[2:], lk.byGlyph)
	default:
		return lk
	}
	return lk
}

func parseAATLookupFormat0(b []byte, out map[ot.GlyphIndex]ot.GlyphIndex) {
	for gid := 0; (gid+1)*2 <= len(b); gid++ {
		if v := u16(b, gid*2); v != 0 {
			out[ot.GlyphIndex(gid)] = ot.GlyphIndex(v)
		}
	}
}

func parseAATLookupFormat6(b []byte, out map[ot.GlyphIndex]ot.GlyphIndex) {
	if len(b) < 8 {
		return
	}
	nUnits := int(u16(b, 2))
	const hdr = 10
	for i := 0; i < nUnits; i++ {
		off := hdr + i*4
		if off+4 > len(b) {
			break
		}
		glyph := u16(b, off)
		value := u16(b, off+2)
		if glyph == 0xFFFF {
			continue
		}
		out[ot.GlyphIndex(glyph)] = ot.GlyphIndex(value)
	}
}

func parseAATLookupFormat8(b []byte, out map[ot.GlyphIndex]ot.GlyphIndex) {
	if len(b) < 4 {
		return
	}
	firstGlyph := u16(b, 0)
	glyphCount := int(u16(b, 2))
	const hdr = 4
	for i := 0; i < glyphCount; i++ {
		off := hdr + i*2
		if off+2 > len(b) {
			break
		}
		if v := u16(b, off); v != 0 {
			out[ot.GlyphIndex(firstGlyph)+ot.GlyphIndex(i)] = ot.GlyphIndex(v)
		}
	}
}

// Lookup returns the mapped glyph for g, if any.
func (l *AATLookup) Lookup(g ot.GlyphIndex) (ot.GlyphIndex, bool) {
	if l == nil {
		return 0, false
	}
	v, ok := l.byGlyph[g]
	return v, ok
}
