package otaat

import "github.com/typeforge/opentype/ot"

// Plan holds the AAT backend decisions that belong on a shaping plan, named
// to match the decision matrix: ApplyMorx picks morx over GSUB, ApplyKerx/
// ApplyKern pick the AAT positioning backend and ApplyTrak enables tracking
// (the GPOS decision is held by the caller); RequestedKerning/RequestedTracking
// record whether the compiled feature masks asked for kerning/tracking at
// all, independent of whether a backend is actually available to honor them.
type Plan struct {
	ApplyMorx bool
	ApplyKerx bool
	ApplyKern bool
	ApplyTrak bool

	RequestedKerning  bool
	RequestedTracking bool

	morx []MorxChain
	kerx *KerxTable
	kern *KernTable
	trak *TrakTable
}

// Compile runs the backend-election steps of the decision matrix (morx vs
// GSUB, kerx/gpos/kern/fallback priority for positioning, trak gating) given
// what the caller has already decided about GPOS: disableGPOS mirrors
// "gpos_tag != none && gpos_tag != chosen_script", hasGposKern mirrors the
// GPOS map already carrying a kern feature index.
//
// Invariants (see doc.go for the morx/kerx format boundary). Plan has no
// GPOS flag, so the GPOS/GSUB side of (I1) is applied by the caller:
//
//	(I1) ApplyMorx is set only when morx should replace GSUB; the caller
//	     then drops its GSUB program and GPOS stage.
//	(I2) at most one of ApplyKerx and ApplyKern is set, honoring
//	     kerx > gpos > kern priority: kern is not elected while an enabled
//	     GPOS kern feature is present.
//	(I3) ApplyTrak implies RequestedTracking.
func Compile(font *ot.Font, horizontal bool, disableGPOS, hasGposKern, requestedKerning, requestedTracking bool) Plan {
	p := Plan{
		ApplyMorx:         ShouldApplyMorx(font, horizontal),
		RequestedKerning:  requestedKerning,
		RequestedTracking: requestedTracking,
	}

	// Positioning priority: kerx (Apple-native, or Apple-style fallback) >
	// gpos (decided by the caller, which owns the compiled OT map) > kern >
	// no backend (caller falls back to synthesized kerning).
	gposKernActive := hasGposKern && !disableGPOS
	if HasPositioning(font) {
		p.ApplyKerx = true
	} else if !gposKernActive {
		if HasKerning(font) {
			p.ApplyKern = true
		}
	}
	p.ApplyTrak = p.RequestedTracking && HasTracking(font)

	if p.ApplyMorx {
		p.morx = ParseMorx(font)
	}
	if p.ApplyKerx {
		p.kerx = ParseKerx(font)
	}
	if p.ApplyKern {
		p.kern = ParseKern(font)
	}
	if p.ApplyTrak {
		p.trak = ParseTrak(font)
	}
	return p
}

// ApplySubstitution runs the morx backend over buf, when elected.
func (p *Plan) ApplySubstitution(buf otaatBuffer) {
	if p == nil || !p.ApplyMorx {
		return
	}
	ApplyNonContextual(p.morx, buf)
}

// Kerning returns the horizontal kerning adjustment for a glyph pair from
// whichever backend was elected (kerx takes priority over kern), and whether
// one was found.
func (p *Plan) Kerning(left, right ot.GlyphIndex) (int32, bool) {
	if p == nil {
		return 0, false
	}
	if p.ApplyKerx {
		return p.kerx.Lookup(left, right)
	}
	if p.ApplyKern {
		return p.kern.Lookup(left, right)
	}
	return 0, false
}

// Tracking returns the tracking adjustment for the requested track amount and
// point size, when the trak backend was elected.
func (p *Plan) Tracking(requestedTrack, ptSize float64) (float64, bool) {
	if p == nil || !p.ApplyTrak {
		return 0, false
	}
	return p.trak.Value(requestedTrack, ptSize)
}
