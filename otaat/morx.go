package otaat

import "github.com/typeforge/opentype/ot"

const (
	morxSubtableNonContextual = 4  // the only subtable type otaat applies
	morxHeaderLength          = 8  // version(u16) unused(u16) nChains(u32)
	morxChainHeaderLength     = 16 // defaultFlags chainLength nFeatureEntries nSubtables (u32 each)
	morxFeatureEntryLength    = 12
)

// MorxChain is one metamorphosis chain: its default feature flags and the
// subtables it contains. Only noncontextual (type 4) subtables carry a
// populated Lookup; others are reported for coverage bookkeeping with a nil
// Lookup, per the state-machine boundary documented in doc.go.
type MorxChain struct {
	DefaultFlags uint32
	Subtables    []MorxSubtable
}

// MorxSubtable describes one subtable of a chain.
type MorxSubtable struct {
	Type            uint8
	Coverage        uint32
	SubFeatureFlags uint32
	Lookup          *AATLookup // non-nil only for Type == morxSubtableNonContextual
}

// ParseMorx reads chain and subtable headers from a 'morx' table, decoding
// the noncontextual (type 4) glyph lookups; ApplyNonContextual applies them.
func ParseMorx(font *ot.Font) []MorxChain {
	b := tableBytes(font, tagMorx)
	if len(b) < morxHeaderLength {
		return nil
	}
	nChains := int(u32(b, 4))
	off := morxHeaderLength
	chains := make([]MorxChain, 0, nChains)
	for i := 0; i < nChains && off+morxChainHeaderLength <= len(b); i++ {
		defaultFlags := u32(b, off)
		chainLength := int(u32(b, off+4))
		nFeatureEntries := int(u32(b, off+8))
		nSubtables := int(u32(b, off+12))
		chainEnd := off + chainLength
		if chainLength <= 0 || chainEnd > len(b) {
			break
		}
		chain := MorxChain{DefaultFlags: defaultFlags}
		subOff := off + morxChainHeaderLength + nFeatureEntries*morxFeatureEntryLength
		for s := 0; s < nSubtables && subOff+12 <= chainEnd; s++ {
			subLength := int(u32(b, subOff))
			coverage := u32(b, subOff+4)
			subFeatureFlags := u32(b, subOff+8)
			subEnd := subOff + subLength
			if subLength <= 0 || subEnd > chainEnd {
				break
			}
			typ := uint8(coverage & 0xFF)
			sub := MorxSubtable{Type: typ, Coverage: coverage, SubFeatureFlags: subFeatureFlags}
			if typ == morxSubtableNonContextual {
				sub.Lookup = parseAATLookup(b[subOff+12 : subEnd])
			}
			chain.Subtables = append(chain.Subtables, sub)
			subOff = subEnd
		}
		chains = append(chains, chain)
		off = chainEnd
	}
	return chains
}

// ApplyNonContextual runs every noncontextual subtable of every chain over
// buf in place, left to right, skipping glyphs with no lookup entry.
func ApplyNonContextual(chains []MorxChain, buf otaatBuffer) {
	for _, chain := range chains {
		for _, sub := range chain.Subtables {
			if sub.Lookup == nil {
				continue
			}
			for i := 0; i < buf.Len(); i++ {
				if g, ok := sub.Lookup.Lookup(buf.At(i)); ok {
					buf.Set(i, g)
				}
			}
		}
	}
}

// otaatBuffer is the minimal glyph-buffer contract ApplyNonContextual needs;
// otlayout.GlyphBuffer already satisfies it structurally.
type otaatBuffer interface {
	Len() int
	At(i int) ot.GlyphIndex
	Set(i int, g ot.GlyphIndex)
}
