package otaat

import (
	"encoding/binary"

	"github.com/typeforge/opentype/ot"
)

var (
	tagMorx = ot.T("morx")
	tagKerx = ot.T("kerx")
	tagKern = ot.T("kern")
	tagTrak = ot.T("trak")
	tagGSUB = ot.T("GSUB")
	tagGPOS = ot.T("GPOS")
)

func tableBytes(font *ot.Font, tag ot.Tag) []byte {
	if font == nil {
		return nil
	}
	t := font.Table(tag)
	if t == nil {
		return nil
	}
	return t.Binary()
}

// HasSubstitution reports whether the font carries a morx table.
func HasSubstitution(font *ot.Font) bool {
	return len(tableBytes(font, tagMorx)) > 0
}

// HasPositioning reports whether the font carries a kerx table.
func HasPositioning(font *ot.Font) bool {
	return len(tableBytes(font, tagKerx)) > 0
}

// HasKerning reports whether the font carries a (legacy) kern table.
func HasKerning(font *ot.Font) bool {
	return len(tableBytes(font, tagKern)) > 0
}

// HasTracking reports whether the font carries a trak table.
func HasTracking(font *ot.Font) bool {
	return len(tableBytes(font, tagTrak)) > 0
}

func otHasSubstitution(font *ot.Font) bool {
	return len(tableBytes(font, tagGSUB)) > 0
}

// ShouldApplyMorx implements should_apply_morx: morx drives substitution for
// horizontal text whenever present, and for vertical text only when the font
// has no GSUB table to fall back to.
func ShouldApplyMorx(font *ot.Font, horizontal bool) bool {
	if !HasSubstitution(font) {
		return false
	}
	return horizontal || !otHasSubstitution(font)
}

// u16/u32/i16 read big-endian scalars, matching the sfnt/AAT byte order.
func u16(b []byte, off int) uint16 {
	if off < 0 || off+2 > len(b) {
		return 0
	}
	return binary.BigEndian.Uint16(b[off:])
}

func u32(b []byte, off int) uint32 {
	if off < 0 || off+4 > len(b) {
		return 0
	}
	return binary.BigEndian.Uint32(b[off:])
}

func i16(b []byte, off int) int16 {
	return int16(u16(b, off))
}
