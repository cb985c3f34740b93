package otshape

import (
	"unicode/utf8"

	"github.com/typeforge/opentype/ot"
	"golang.org/x/text/unicode/norm"
)

// normalizeContext is the internal adapter implementing exported NormalizeContext.
//
// Unicode pair composition is delegated to the x/text NFC tables; an engine's
// ShapingEngineComposeHook sees this context and may compose pairs Unicode
// would not (or veto pairs it would).
type normalizeContext struct {
	font        *ot.Font
	selection   SelectionContext
	hasGposMark bool
}

func newNormalizeContext(font *ot.Font, selection SelectionContext, hasGposMark bool) normalizeContext {
	return normalizeContext{
		font:        font,
		selection:   selection,
		hasGposMark: hasGposMark,
	}
}

func (nc normalizeContext) Font() *ot.Font {
	return nc.font
}

func (nc normalizeContext) Selection() SelectionContext {
	return nc.selection
}

func (nc normalizeContext) HasGposMark() bool {
	return nc.hasGposMark
}

// ComposeUnicode composes a canonical pair a+b into one rune, when Unicode
// defines such a composition and the pair composes to exactly one rune.
func (nc normalizeContext) ComposeUnicode(a, b rune) (rune, bool) {
	composed := norm.NFC.String(string([]rune{a, b}))
	first, n := utf8.DecodeRuneInString(composed)
	if first == utf8.RuneError && n == 1 {
		return 0, false
	}
	if n != len(composed) {
		return 0, false
	}
	return first, true
}
