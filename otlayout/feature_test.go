package otlayout

import (
	"testing"

	"github.com/typeforge/opentype/ot"
)

type testGlyphRange struct {
	glyph ot.GlyphIndex
}

func (t testGlyphRange) Match(g ot.GlyphIndex) (int, bool) {
	if g == t.glyph {
		return 0, true
	}
	return 0, false
}

func (t testGlyphRange) ByteSize() int {
	return 0
}

func TestDispatchGSubLookupSingleFmt1Routing(t *testing.T) {
	lksub := ot.LookupSubtable{
		LookupType: ot.GSubLookupTypeSingle,
		Format:     1,
		Coverage: ot.Coverage{
			GlyphRange: testGlyphRange{glyph: 10},
		},
		Support: ot.GlyphIndex(2),
	}
	node := &ot.LookupNode{
		LookupType: ot.GSubLookupTypeSingle,
		Format:     1,
		Coverage:   lksub.Coverage,
	}
	st := NewBufferState(GlyphBuffer{10}, nil)
	ctx := applyCtx{
		buf:   st,
		pos:   0,
		lksub: &lksub,
	}

	pos, ok, buf, _, edit := dispatchGSubLookup(&ctx, node)
	if !ok {
		t.Fatalf("expected lookup to apply")
	}
	if pos != 1 {
		t.Fatalf("expected pos to advance to 1, got %d", pos)
	}
	if edit == nil || edit.From != 0 || edit.To != 1 || edit.Len != 1 {
		t.Fatalf("unexpected edit span: %+v", edit)
	}
	if buf.Len() != 1 || buf.At(0) != 12 {
		t.Fatalf("expected substituted glyph 12, got %v", buf)
	}
}
