package otshape

import (
	"github.com/typeforge/opentype/ot"
	"github.com/typeforge/opentype/otquery"
	"golang.org/x/text/unicode/bidi"
)

// mirrorPairs lists Bidi_Mirroring_Glyph pairs (UCD BidiMirroring.txt) for
// the paired punctuation and the mathematical operators that have a mirrored
// counterpart codepoint. Each entry mirrors both ways.
var mirrorPairs = [][2]rune{
	{0x0028, 0x0029}, // ( )
	{0x003C, 0x003E}, // < >
	{0x005B, 0x005D}, // [ ]
	{0x007B, 0x007D}, // { }
	{0x00AB, 0x00BB}, // « »
	{0x0F3A, 0x0F3B}, // Tibetan gug rtags gyon/gyas
	{0x0F3C, 0x0F3D}, // Tibetan ang khang gyon/gyas
	{0x169B, 0x169C}, // ogham feather marks
	{0x2039, 0x203A}, // ‹ ›
	{0x2045, 0x2046}, // ⁅ ⁆
	{0x207D, 0x207E}, // superscript parentheses
	{0x208D, 0x208E}, // subscript parentheses
	{0x2208, 0x220B}, // ∈ ∋
	{0x2209, 0x220C}, // ∉ ∌
	{0x220A, 0x220D}, // ∊ ∍
	{0x2215, 0x29F5}, // ∕ ⧵
	{0x2220, 0x29A3}, // ∠ ⦣
	{0x2264, 0x2265}, // ≤ ≥
	{0x2266, 0x2267}, // ≦ ≧
	{0x2268, 0x2269}, // ≨ ≩
	{0x226A, 0x226B}, // ≪ ≫
	{0x226E, 0x226F}, // ≮ ≯
	{0x2270, 0x2271}, // ≰ ≱
	{0x2272, 0x2273}, // ≲ ≳
	{0x2276, 0x2277}, // ≶ ≷
	{0x227A, 0x227B}, // ≺ ≻
	{0x227C, 0x227D}, // ≼ ≽
	{0x2282, 0x2283}, // ⊂ ⊃
	{0x2284, 0x2285}, // ⊄ ⊅
	{0x2286, 0x2287}, // ⊆ ⊇
	{0x2288, 0x2289}, // ⊈ ⊉
	{0x22A2, 0x22A3}, // ⊢ ⊣
	{0x22B0, 0x22B1}, // ⊰ ⊱
	{0x22D6, 0x22D7}, // ⋖ ⋗
	{0x2308, 0x2309}, // ⌈ ⌉
	{0x230A, 0x230B}, // ⌊ ⌋
	{0x2329, 0x232A}, // 〈 〉
	{0x2768, 0x2769}, // medium parenthesis ornaments
	{0x276A, 0x276B}, // medium flattened parenthesis ornaments
	{0x276C, 0x276D}, // medium angle bracket ornaments
	{0x276E, 0x276F}, // heavy angle quotation ornaments
	{0x2770, 0x2771}, // heavy angle bracket ornaments
	{0x2772, 0x2773}, // light tortoise shell bracket ornaments
	{0x2774, 0x2775}, // medium curly bracket ornaments
	{0x27E6, 0x27E7}, // ⟦ ⟧
	{0x27E8, 0x27E9}, // ⟨ ⟩
	{0x27EA, 0x27EB}, // ⟪ ⟫
	{0x27EC, 0x27ED}, // ⟬ ⟭
	{0x27EE, 0x27EF}, // ⟮ ⟯
	{0x2983, 0x2984}, // ⦃ ⦄
	{0x2985, 0x2986}, // ⦅ ⦆
	{0x2987, 0x2988}, // ⦇ ⦈
	{0x2989, 0x298A}, // ⦉ ⦊
	{0x298B, 0x298C}, // ⦋ ⦌
	{0x298D, 0x2990}, // ⦍ ⦐
	{0x298F, 0x298E}, // ⦏ ⦎
	{0x2991, 0x2992}, // ⦑ ⦒
	{0x2993, 0x2994}, // ⦓ ⦔
	{0x2995, 0x2996}, // ⦕ ⦖
	{0x2997, 0x2998}, // ⦗ ⦘
	{0x29FC, 0x29FD}, // ⧼ ⧽
	{0x2E02, 0x2E03}, // left/right substitution brackets
	{0x2E04, 0x2E05}, // dotted substitution brackets
	{0x2E09, 0x2E0A}, // transposition brackets
	{0x2E0C, 0x2E0D}, // raised omission brackets
	{0x2E1C, 0x2E1D}, // low paraphrase brackets
	{0x2E20, 0x2E21}, // vertical bar with quills
	{0x2E22, 0x2E23}, // top half brackets
	{0x2E24, 0x2E25}, // bottom half brackets
	{0x2E26, 0x2E27}, // sideways U brackets
	{0x2E28, 0x2E29}, // double parentheses
	{0x3008, 0x3009}, // 〈 〉 CJK
	{0x300A, 0x300B}, // 《 》
	{0x300C, 0x300D}, // 「 」
	{0x300E, 0x300F}, // 『 』
	{0x3010, 0x3011}, // 【 】
	{0x3014, 0x3015}, // 〔 〕
	{0x3016, 0x3017}, // 〖 〗
	{0x3018, 0x3019}, // 〘 〙
	{0x301A, 0x301B}, // 〚 〛
	{0xFE59, 0xFE5A}, // small parentheses
	{0xFE5B, 0xFE5C}, // small curly brackets
	{0xFE5D, 0xFE5E}, // small tortoise shell brackets
	{0xFF08, 0xFF09}, // fullwidth parentheses
	{0xFF1C, 0xFF1E}, // fullwidth less/greater
	{0xFF3B, 0xFF3D}, // fullwidth square brackets
	{0xFF5B, 0xFF5D}, // fullwidth curly brackets
	{0xFF5F, 0xFF60}, // fullwidth white parentheses
	{0xFF62, 0xFF63}, // halfwidth corner brackets
}

var mirrorMap map[rune]rune

func init() {
	mirrorMap = make(map[rune]rune, 2*len(mirrorPairs))
	for _, p := range mirrorPairs {
		mirrorMap[p[0]] = p[1]
		mirrorMap[p[1]] = p[0]
	}
}

// bidiMirror returns the mirrored counterpart of cp, or cp itself when the
// codepoint has no mirror.
func bidiMirror(cp rune) rune {
	if m, ok := mirrorMap[cp]; ok {
		return m
	}
	return cp
}

// rotateChars mirrors paired characters in right-to-left runs. When the font
// carries a glyph for the mirrored codepoint, the glyph is swapped outright;
// otherwise the glyph keeps its shape and gets the 'rtlm' mask bit so the
// font's right-to-left mirrored-forms lookups can substitute it instead.
func (e *planExecutor) rotateChars(pl *plan) {
	if e == nil || e.run == nil || pl == nil {
		return
	}
	if pl.Props.Direction != bidi.RightToLeft {
		return
	}
	run := e.run
	n := run.Len()
	if n == 0 || len(run.Codepoints) != n {
		return
	}
	rtlmSpec, _ := pl.maskForFeature(ot.T("rtlm"))
	hasCMap := pl.font != nil && pl.font.CMap != nil
	for i := 0; i < n; i++ {
		cp := run.Codepoints[i]
		m := bidiMirror(cp)
		if m == cp {
			continue
		}
		if hasCMap {
			if gid := otquery.GlyphIndex(pl.font, m); gid != NOTDEF {
				run.Codepoints[i] = m
				run.Glyphs[i] = gid
				continue
			}
		}
		if rtlmSpec.Mask != 0 && len(run.Masks) == n {
			run.Masks[i] |= rtlmSpec.Mask
		}
	}
}
