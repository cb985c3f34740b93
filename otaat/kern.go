package otaat

import "github.com/typeforge/opentype/ot"

// KernPair is one entry of a kern/kerx format-0 ordered pair list.
type KernPair struct {
	Left, Right ot.GlyphIndex
	Value       int32 // in font design units, horizontal advance adjustment
}

// KernTable is the subset of a legacy 'kern' table otaat understands: the
// format-0 ordered-list subtables, merged across all horizontal subtables in
// declaration order (later subtables override earlier ones for the same pair,
// per the "override" coverage bit; otherwise values accumulate).
type KernTable struct {
	Pairs map[[2]ot.GlyphIndex]int32
}

const (
	kernCoverageHorizontal = 0x0001
	kernCoverageOverride   = 0x0008
)

// ParseKern reads the legacy 'kern' table's format-0 subtables.
//
// Only the classic Microsoft/Apple "old style" kern layout is supported
// (uint16 version/nTables header). The newer Apple-only kern version 1
// layout (used only on very old Mac fonts) is not recognized and yields an
// empty table, matching the conservative "detected but not applied" stance
// documented in doc.go for formats beyond format 0.
func ParseKern(font *ot.Font) *KernTable {
	b := tableBytes(font, tagKern)
	if len(b) < 4 {
		return nil
	}
	version := u16(b, 0)
	if version != 0 {
		return &KernTable{Pairs: map[[2]ot.GlyphIndex]int32{}}
	}
	nTables := int(u16(b, 2))
	out := &KernTable{Pairs: make(map[[2]ot.GlyphIndex]int32, 16)}
	off := 4
	for i := 0; i < nTables && off+6 <= len(b); i++ {
		length := int(u16(b, off+2))
		coverage := u16(b, off+4)
		format := coverage >> 8
		subEnd := off + length
		if length <= 0 || subEnd > len(b) {
			break
		}
		if format == 0 && coverage&kernCoverageHorizontal != 0 {
			parseKernFormat0(b[off+6:subEnd], coverage, out.Pairs)
		}
		off = subEnd
	}
	return out
}

func parseKernFormat0(b []byte, coverage uint16, pairs map[[2]ot.GlyphIndex]int32) {
	if len(b) < 8 {
		return
	}
	nPairs := int(u16(b, 0))
	const hdr = 8
	for i := 0; i < nPairs; i++ {
		off := hdr + i*6
		if off+6 > len(b) {
			break
		}
		left := ot.GlyphIndex(u16(b, off))
		right := ot.GlyphIndex(u16(b, off+2))
		value := int32(i16(b, off+4))
		key := [2]ot.GlyphIndex{left, right}
		if coverage&kernCoverageOverride != 0 {
			pairs[key] = value
		} else {
			pairs[key] += value
		}
	}
}

// HasMachineKerning reports whether the 'kern' table carries state-machine
// (format 1) subtables. State-machine kerning cannot be queried pair-by-pair,
// so mark zeroing must stay out of its way.
func HasMachineKerning(font *ot.Font) bool {
	return kernSubtableScan(font, func(format uint16, crossStream bool) bool {
		return format == 1
	})
}

// HasCrossKerning reports whether the 'kern' table carries cross-stream
// subtables, which kern perpendicular to the text flow.
func HasCrossKerning(font *ot.Font) bool {
	return kernSubtableScan(font, func(format uint16, crossStream bool) bool {
		return crossStream
	})
}

// kernSubtableScan walks the kern subtable headers of either table layout
// (Apple uint32-version or Microsoft uint16-version) and reports whether any
// subtable matches.
func kernSubtableScan(font *ot.Font, match func(format uint16, crossStream bool) bool) bool {
	b := tableBytes(font, tagKern)
	if len(b) < 4 {
		return false
	}
	if u32(b, 0) == 0x00010000 { // Apple TTF layout
		n := int(u32(b, 4))
		off := 8
		for i := 0; i < n && off+8 <= len(b); i++ {
			length := int(u32(b, off))
			coverage := u16(b, off+4)
			if match(coverage&0x00FF, coverage&0x4000 != 0) {
				return true
			}
			if length <= 0 || off+length > len(b) {
				break
			}
			off += length
		}
		return false
	}
	n := int(u16(b, 2)) // Microsoft/OpenType layout
	off := 4
	for i := 0; i < n && off+6 <= len(b); i++ {
		length := int(u16(b, off+2))
		coverage := u16(b, off+4)
		if match(coverage>>8, coverage&0x0004 != 0) {
			return true
		}
		if length <= 0 || off+length > len(b) {
			break
		}
		off += length
	}
	return false
}

// Lookup returns the kerning adjustment for a glyph pair, if any.
func (k *KernTable) Lookup(left, right ot.GlyphIndex) (int32, bool) {
	if k == nil || k.Pairs == nil {
		return 0, false
	}
	v, ok := k.Pairs[[2]ot.GlyphIndex{left, right}]
	return v, ok
}
