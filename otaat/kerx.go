package otaat

import "github.com/typeforge/opentype/ot"

const (
	kerxCoverageVertical     = 0x80000000
	kerxCoverageCrossStream  = 0x40000000
	kerxCoverageVariation    = 0x20000000
	kerxSubtableFormatMask   = 0x000000FF
	kerxSubtableHeaderLength = 12 // length(u32) coverage(u32) tupleCount(u32)
)

// KerxTable mirrors KernTable but is sourced from the 32-bit 'kerx' format,
// restricted to horizontal, non-cross-stream format-0 subtables (the ordered
// glyph-pair list, structurally identical to kern format 0 but with 32-bit
// subtable framing). Other kerx formats (1 state table, 2 simple array, 4
// control-point, 6 simple array by class) are walked for length only, so
// later subtables stay correctly aligned, but contribute no pairs.
type KerxTable struct {
	Pairs map[[2]ot.GlyphIndex]int32
}

// ParseKerx reads the horizontal format-0 subtables of a 'kerx' table.
func ParseKerx(font *ot.Font) *KerxTable {
	b := tableBytes(font, tagKerx)
	if len(b) < 8 {
		return nil
	}
	version := u16(b, 0)
	if version != 2 && version != 3 && version != 4 {
		return &KerxTable{Pairs: map[[2]ot.GlyphIndex]int32{}}
	}
	nTables := int(u32(b, 4))
	out := &KerxTable{Pairs: make(map[[2]ot.GlyphIndex]int32, 16)}
	off := 8
	for i := 0; i < nTables && off+kerxSubtableHeaderLength <= len(b); i++ {
		length := int(u32(b, off))
		coverage := u32(b, off+4)
		format := coverage & kerxSubtableFormatMask
		subEnd := off + length
		if length <= 0 || subEnd > len(b) {
			break
		}
		horizontal := coverage&kerxCoverageVertical == 0
		crossStream := coverage&kerxCoverageCrossStream != 0
		if format == 0 && horizontal && !crossStream {
			parseKerxFormat0(b[off+kerxSubtableHeaderLength:subEnd], out.Pairs)
		}
		off = subEnd
	}
	return out
}

func parseKerxFormat0(b []byte, pairs map[[2]ot.GlyphIndex]int32) {
	if len(b) < 16 {
		return
	}
	nPairs := int(u32(b, 0))
	const hdr = 16
	for i := 0; i < nPairs; i++ {
		off := hdr + i*6
		if off+6 > len(b) {
			break
		}
		left := ot.GlyphIndex(u16(b, off))
		right := ot.GlyphIndex(u16(b, off+2))
		value := int32(i16(b, off+4))
		pairs[[2]ot.GlyphIndex{left, right}] = value
	}
}

// Lookup returns the kerning adjustment for a glyph pair, if any.
func (k *KerxTable) Lookup(left, right ot.GlyphIndex) (int32, bool) {
	if k == nil || k.Pairs == nil {
		return 0, false
	}
	v, ok := k.Pairs[[2]ot.GlyphIndex{left, right}]
	return v, ok
}
