package otshape

import (
	"testing"

	"github.com/typeforge/opentype/ot"
	"github.com/typeforge/opentype/otlayout"
	"golang.org/x/text/unicode/bidi"
)

func fractionPlan(dir bidi.Direction) *plan {
	return &plan{
		Props: segmentProps{Direction: dir},
		Masks: maskLayout{
			GlobalMask: 0x1,
			ByFeature: map[ot.Tag]maskSpec{
				ot.T("numr"): {Mask: 0x2, Shift: 1},
				ot.T("frac"): {Mask: 0x4, Shift: 2},
				ot.T("dnom"): {Mask: 0x8, Shift: 3},
			},
		},
		Hooks: newPlanHookSet(),
	}
}

func TestSetupFractionMasksMarksSpanAndUnsafeFlags(t *testing.T) {
	run := newRunBuffer(0)
	run.Glyphs = append(run.Glyphs, 10, 11, 12, 13, 14)
	run.Codepoints = []rune{'x', '1', fractionSlash, '2', 'y'}
	exec := &planExecutor{}
	exec.acquireBuffer(run)
	defer exec.releaseBuffer()

	pl := fractionPlan(bidi.LeftToRight)
	exec.initializeRunMasks(pl)
	exec.setupFractionMasks(pl)

	want := []uint32{
		0x1,             // 'x' outside the span
		0x1 | 0x2 | 0x4, // '1' numerator: numr|frac
		0x1 | 0x4,       // fraction slash: frac
		0x1 | 0x4 | 0x8, // '2' denominator: frac|dnom
		0x1,             // 'y' outside the span
	}
	for i, w := range want {
		if run.Masks[i] != w {
			t.Fatalf("mask[%d] = %#x, want %#x", i, run.Masks[i], w)
		}
	}
	if len(run.UnsafeFlags) != 5 {
		t.Fatalf("unsafe flags not allocated")
	}
	for i := 1; i <= 3; i++ {
		if run.UnsafeFlags[i]&unsafeCutMask != unsafeCutMask {
			t.Fatalf("unsafe[%d] = %#x, want span flagged unsafe", i, run.UnsafeFlags[i])
		}
	}
	if run.UnsafeFlags[0] != 0 || run.UnsafeFlags[4] != 0 {
		t.Fatalf("unsafe flags leaked outside the fraction span: %v", run.UnsafeFlags)
	}
}

func TestSetupFractionMasksSwapsPrePostForRTL(t *testing.T) {
	run := newRunBuffer(0)
	run.Glyphs = append(run.Glyphs, 10, 11, 12)
	run.Codepoints = []rune{'1', fractionSlash, '2'}
	exec := &planExecutor{}
	exec.acquireBuffer(run)
	defer exec.releaseBuffer()

	pl := fractionPlan(bidi.RightToLeft)
	exec.initializeRunMasks(pl)
	exec.setupFractionMasks(pl)

	if got := run.Masks[0]; got != 0x1|0x4|0x8 {
		t.Fatalf("RTL pre mask = %#x, want frac|dnom", got)
	}
	if got := run.Masks[2]; got != 0x1|0x2|0x4 {
		t.Fatalf("RTL post mask = %#x, want numr|frac", got)
	}
}

func TestSetupFractionMasksSkipsAllASCIIRun(t *testing.T) {
	run := newRunBuffer(0)
	run.Glyphs = append(run.Glyphs, 10, 11, 12)
	run.Codepoints = []rune{'1', '/', '2'} // plain solidus, all ASCII
	exec := &planExecutor{}
	exec.acquireBuffer(run)
	defer exec.releaseBuffer()

	pl := fractionPlan(bidi.LeftToRight)
	exec.initializeRunMasks(pl)
	exec.setupFractionMasks(pl)

	for i, m := range run.Masks {
		if m != 0x1 {
			t.Fatalf("mask[%d] = %#x, want untouched global mask", i, m)
		}
	}
	if run.UnsafeFlags != nil {
		t.Fatalf("unsafe flags allocated for a run without fraction slash")
	}
}

func TestSetupFractionMasksNoOpWithoutFractionFeatures(t *testing.T) {
	run := newRunBuffer(0)
	run.Glyphs = append(run.Glyphs, 10, 11, 12)
	run.Codepoints = []rune{'1', fractionSlash, '2'}
	exec := &planExecutor{}
	exec.acquireBuffer(run)
	defer exec.releaseBuffer()

	pl := &plan{
		Props: segmentProps{Direction: bidi.LeftToRight},
		Masks: maskLayout{GlobalMask: 0x1, ByFeature: map[ot.Tag]maskSpec{}},
		Hooks: newPlanHookSet(),
	}
	exec.initializeRunMasks(pl)
	exec.setupFractionMasks(pl)

	for i, m := range run.Masks {
		if m != 0x1 {
			t.Fatalf("mask[%d] = %#x, want untouched global mask", i, m)
		}
	}
}

func TestRotateCharsSetsRtlmMaskWhenMirrorGlyphMissing(t *testing.T) {
	run := newRunBuffer(0)
	run.Glyphs = append(run.Glyphs, 21, 22)
	run.Codepoints = []rune{'(', 'a'}
	exec := &planExecutor{}
	exec.acquireBuffer(run)
	defer exec.releaseBuffer()

	pl := &plan{
		Props: segmentProps{Direction: bidi.RightToLeft},
		Masks: maskLayout{
			GlobalMask: 0x1,
			ByFeature: map[ot.Tag]maskSpec{
				ot.T("rtlm"): {Mask: 0x10, Shift: 4},
			},
		},
		Hooks: newPlanHookSet(),
	}
	exec.initializeRunMasks(pl)
	exec.rotateChars(pl)

	if run.Codepoints[0] != '(' || run.Glyphs[0] != 21 {
		t.Fatalf("glyph rewritten although no font glyph exists for the mirror")
	}
	if run.Masks[0] != 0x1|0x10 {
		t.Fatalf("mask[0] = %#x, want rtlm bit raised", run.Masks[0])
	}
	if run.Masks[1] != 0x1 {
		t.Fatalf("mask[1] = %#x, want untouched for unmirrored codepoint", run.Masks[1])
	}
}

func TestRotateCharsIgnoresForwardRuns(t *testing.T) {
	run := newRunBuffer(0)
	run.Glyphs = append(run.Glyphs, 21)
	run.Codepoints = []rune{'('}
	exec := &planExecutor{}
	exec.acquireBuffer(run)
	defer exec.releaseBuffer()

	pl := &plan{
		Props: segmentProps{Direction: bidi.LeftToRight},
		Masks: maskLayout{
			GlobalMask: 0x1,
			ByFeature: map[ot.Tag]maskSpec{
				ot.T("rtlm"): {Mask: 0x10, Shift: 4},
			},
		},
		Hooks: newPlanHookSet(),
	}
	exec.initializeRunMasks(pl)
	exec.rotateChars(pl)

	if run.Masks[0] != 0x1 {
		t.Fatalf("mask[0] = %#x, mirroring must not touch forward runs", run.Masks[0])
	}
}

func TestBidiMirrorPairsAreSymmetric(t *testing.T) {
	for _, p := range mirrorPairs {
		if got := bidiMirror(p[0]); got != p[1] {
			t.Fatalf("mirror(%U) = %U, want %U", p[0], got, p[1])
		}
		if got := bidiMirror(p[1]); got != p[0] {
			t.Fatalf("mirror(%U) = %U, want %U", p[1], got, p[0])
		}
	}
	if got := bidiMirror('a'); got != 'a' {
		t.Fatalf("mirror('a') = %U, want identity", got)
	}
}

// Runtime-gated features ('rtlm', fraction tags) are activated through a
// range-on toggle with an allocated mask bit, never through the global mask:
// their lookups bind with mask gating, so they fire only where the executor
// raised the bit.
func TestCompileTableProgramActivatesRuntimeGatedFeature(t *testing.T) {
	features := []otlayout.Feature{
		nil, // no required feature
		fakeFeature{tag: ot.T("rtlm"), typ: otlayout.GSubFeatureType, lookups: []int{3}},
		fakeFeature{tag: ot.T("zzxx"), typ: otlayout.GSubFeatureType, lookups: []int{4}},
	}
	masks := maskLayout{
		ByFeature: map[ot.Tag]maskSpec{
			ot.T("rtlm"): {Mask: 0x10, Shift: 4},
		},
	}
	toggles := map[ot.Tag]userFeatureToggle{
		ot.T("rtlm"): {hasRange: true, hasRangeOn: true},
	}
	prog, _, err := compileTableProgram(
		features,
		planGSUB,
		nil,
		toggles,
		map[ot.Tag]FeatureFlags{},
		masks,
		planPolicy{},
	)
	if err != nil {
		t.Fatalf("compileTableProgram failed: %v", err)
	}
	if !containsFeatureBind(prog.FeatureBinds, ot.T("rtlm")) {
		t.Fatalf("rtlm feature not bound despite range-on toggle")
	}
	if containsFeatureBind(prog.FeatureBinds, ot.T("zzxx")) {
		t.Fatalf("untoggled feature must stay inactive")
	}
	for _, op := range prog.Lookups {
		if op.FeatureTag == ot.T("rtlm") && op.Mask != 0x10 {
			t.Fatalf("rtlm lookup mask = %#x, want gated %#x", op.Mask, 0x10)
		}
	}
}

func TestAllocRuntimeMaskBitsExtendsLayout(t *testing.T) {
	layout := maskLayout{
		GlobalMask: 0x3,
		ByFeature: map[ot.Tag]maskSpec{
			ot.T("liga"): {Mask: 0x3, Shift: 0},
		},
	}
	err := allocRuntimeMaskBits(&layout, []ot.Tag{ot.T("frac"), ot.T("numr"), ot.T("dnom")})
	if err != nil {
		t.Fatalf("allocRuntimeMaskBits failed: %v", err)
	}
	seen := map[uint32]bool{}
	for _, tag := range []ot.Tag{ot.T("frac"), ot.T("numr"), ot.T("dnom")} {
		ms, ok := layout.ByFeature[tag]
		if !ok || ms.Mask == 0 {
			t.Fatalf("no mask allocated for %s", tag)
		}
		if ms.Mask&0x3 != 0 {
			t.Fatalf("mask for %s overlaps pre-existing bits: %#x", tag, ms.Mask)
		}
		if seen[ms.Mask] {
			t.Fatalf("mask %#x allocated twice", ms.Mask)
		}
		seen[ms.Mask] = true
		if layout.GlobalMask&ms.Mask != 0 {
			t.Fatalf("runtime mask %#x must not join the global mask", ms.Mask)
		}
	}
}
