package otshape

import (
	"github.com/typeforge/opentype/ot"
	"github.com/typeforge/opentype/otlayout"
)

// runBuffer is the internal mutable shaping state (SoA-by-concern).
//
// Slice alignment rule:
// If a side-array is non-nil, its length must equal len(Glyphs).
type runBuffer struct {
	owner  any // only one mutating owner allowed at any time
	front  int // index of the first glyph in the buffer
	end    int // index pointing just behind the last glyph in the buffer
	Glyphs otlayout.GlyphBuffer
	Pos    otlayout.PosBuffer // optional until positioning becomes necessary

	Codepoints  []rune   // optional codepoint alignment for normalization/reorder hooks
	Clusters    []uint32 // optional rune->glyph mapping
	PlanIDs     []uint16 // optional per-glyph plan ids for event-mode spans
	Masks       []uint32 // optional feature/shaping flags
	UnsafeFlags []uint16 // optional line-break/concat safety flags
	Syllables   []uint16 // optional pre-segmented syllable ids (contiguous runs)
	Joiners     []uint8  // optional joiner classes aligned to glyph indices
}

const (
	joinerClassNone uint8 = 0
	joinerClassZWNJ uint8 = 1 << 0
	joinerClassZWJ  uint8 = 1 << 1
)

// newRunBuffer creates an empty run buffer with optional reserved capacity.
func newRunBuffer(capacity int) *runBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &runBuffer{
		Glyphs: make(otlayout.GlyphBuffer, 0, capacity),
	}
}

// Len returns the glyph length of the run.
func (rb *runBuffer) Len() int {
	if rb == nil {
		return 0
	}
	return rb.Glyphs.Len()
}

// Reset clears the run while retaining allocated capacity.
func (rb *runBuffer) Reset() {
	if rb == nil {
		return
	}
	rb.Glyphs = rb.Glyphs[:0]
	if rb.Pos != nil {
		rb.Pos = rb.Pos[:0]
	}
	if rb.Codepoints != nil {
		rb.Codepoints = rb.Codepoints[:0]
	}
	if rb.Clusters != nil {
		rb.Clusters = rb.Clusters[:0]
	}
	if rb.PlanIDs != nil {
		rb.PlanIDs = rb.PlanIDs[:0]
	}
	if rb.Masks != nil {
		rb.Masks = rb.Masks[:0]
	}
	if rb.UnsafeFlags != nil {
		rb.UnsafeFlags = rb.UnsafeFlags[:0]
	}
	if rb.Syllables != nil {
		rb.Syllables = rb.Syllables[:0]
	}
	if rb.Joiners != nil {
		rb.Joiners = rb.Joiners[:0]
	}
}

// EnsurePos allocates/aligns position storage.
func (rb *runBuffer) EnsurePos() {
	if rb == nil {
		return
	}
	if rb.Pos == nil {
		rb.Pos = otlayout.NewPosBuffer(rb.Len())
		return
	}
	if len(rb.Pos) != rb.Len() {
		rb.Pos = rb.Pos.ResizeLike(rb.Glyphs)
	}
}

// EnsureCodepoints allocates/aligns codepoint storage.
func (rb *runBuffer) EnsureCodepoints() {
	if rb == nil {
		return
	}
	if rb.Codepoints == nil {
		rb.Codepoints = make([]rune, rb.Len())
		return
	}
	if len(rb.Codepoints) != rb.Len() {
		rb.Codepoints = resizeRunes(rb.Codepoints, rb.Len())
	}
}

// EnsureClusters allocates/aligns cluster storage.
func (rb *runBuffer) EnsureClusters() {
	if rb == nil {
		return
	}
	if rb.Clusters == nil {
		rb.Clusters = make([]uint32, rb.Len())
		return
	}
	if len(rb.Clusters) != rb.Len() {
		rb.Clusters = resizeUint32(rb.Clusters, rb.Len())
	}
}

// EnsureMasks allocates/aligns glyph mask storage.
func (rb *runBuffer) EnsureMasks() {
	if rb == nil {
		return
	}
	if rb.Masks == nil {
		rb.Masks = make([]uint32, rb.Len())
		return
	}
	if len(rb.Masks) != rb.Len() {
		rb.Masks = resizeUint32(rb.Masks, rb.Len())
	}
}

// EnsureUnsafeFlags allocates/aligns unsafe flag storage.
func (rb *runBuffer) EnsureUnsafeFlags() {
	if rb == nil {
		return
	}
	if rb.UnsafeFlags == nil {
		rb.UnsafeFlags = make([]uint16, rb.Len())
		return
	}
	if len(rb.UnsafeFlags) != rb.Len() {
		rb.UnsafeFlags = resizeUint16(rb.UnsafeFlags, rb.Len())
	}
}

// EnsureSyllables allocates/aligns syllable ids.
func (rb *runBuffer) EnsureSyllables() {
	if rb == nil {
		return
	}
	if rb.Syllables == nil {
		rb.Syllables = make([]uint16, rb.Len())
		return
	}
	if len(rb.Syllables) != rb.Len() {
		rb.Syllables = resizeUint16(rb.Syllables, rb.Len())
	}
}

// EnsureJoiners allocates/aligns joiner markers.
func (rb *runBuffer) EnsureJoiners() {
	if rb == nil {
		return
	}
	if rb.Joiners == nil {
		rb.Joiners = make([]uint8, rb.Len())
		return
	}
	if len(rb.Joiners) != rb.Len() {
		rb.Joiners = resizeUint8(rb.Joiners, rb.Len())
	}
}

// EnsurePlanIDs allocates/aligns plan-id storage.
func (rb *runBuffer) EnsurePlanIDs() {
	if rb == nil {
		return
	}
	if rb.PlanIDs == nil {
		rb.PlanIDs = make([]uint16, rb.Len())
		return
	}
	if len(rb.PlanIDs) != rb.Len() {
		rb.PlanIDs = resizeUint16(rb.PlanIDs, rb.Len())
	}
}

// Use* switch a side array on for the lifetime of this buffer. They are the
// explicit opt-in form of the Ensure* methods, used when a caller knows up
// front which concerns a run will need.

func (rb *runBuffer) UsePos()         { rb.EnsurePos() }
func (rb *runBuffer) UseCodepoints()  { rb.EnsureCodepoints() }
func (rb *runBuffer) UseClusters()    { rb.EnsureClusters() }
func (rb *runBuffer) UsePlanIDs()     { rb.EnsurePlanIDs() }
func (rb *runBuffer) UseMasks()       { rb.EnsureMasks() }
func (rb *runBuffer) UseUnsafeFlags() { rb.EnsureUnsafeFlags() }
func (rb *runBuffer) UseSyllables()   { rb.EnsureSyllables() }
func (rb *runBuffer) UseJoiners()     { rb.EnsureJoiners() }

// ReserveGlyphs grows glyph capacity so n more glyphs append without realloc.
func (rb *runBuffer) ReserveGlyphs(n int) {
	if rb == nil || n <= 0 {
		return
	}
	need := rb.Len() + n
	if cap(rb.Glyphs) >= need {
		return
	}
	grown := make(otlayout.GlyphBuffer, rb.Len(), need)
	copy(grown, rb.Glyphs)
	rb.Glyphs = grown
}

// AppendGlyph appends one glyph, extending active side arrays with defaults.
func (rb *runBuffer) AppendGlyph(gid ot.GlyphIndex) {
	if rb == nil {
		return
	}
	rb.Glyphs = append(rb.Glyphs, gid)
	if rb.Pos != nil {
		rb.Pos = append(rb.Pos, otlayout.PosItem{AttachTo: -1})
	}
	if rb.Codepoints != nil {
		rb.Codepoints = append(rb.Codepoints, 0)
	}
	if rb.Clusters != nil {
		rb.Clusters = append(rb.Clusters, 0)
	}
	if rb.PlanIDs != nil {
		rb.PlanIDs = append(rb.PlanIDs, 0)
	}
	if rb.Masks != nil {
		rb.Masks = append(rb.Masks, 0)
	}
	if rb.UnsafeFlags != nil {
		rb.UnsafeFlags = append(rb.UnsafeFlags, 0)
	}
	if rb.Syllables != nil {
		rb.Syllables = append(rb.Syllables, 0)
	}
	if rb.Joiners != nil {
		rb.Joiners = append(rb.Joiners, 0)
	}
}

// AppendMappedGlyph appends one cmap-mapped glyph with its source rune and
// cluster. The plan id is recorded only when withPlanID is set and the
// plan-id array is active.
func (rb *runBuffer) AppendMappedGlyph(gid ot.GlyphIndex, r rune, cluster uint32, planID uint16, withPlanID bool) {
	if rb == nil {
		return
	}
	rb.AppendGlyph(gid)
	last := rb.Len() - 1
	if rb.Codepoints != nil {
		rb.Codepoints[last] = r
	}
	if rb.Clusters != nil {
		rb.Clusters[last] = cluster
	}
	if withPlanID && rb.PlanIDs != nil {
		rb.PlanIDs[last] = planID
	}
}

// AppendRun appends all of src's glyphs. Side arrays active on either buffer
// become active on the destination: pre-existing destination records are
// backfilled with defaults, source records carry their values over.
func (rb *runBuffer) AppendRun(src *runBuffer) {
	if rb == nil || src == nil || src.Len() == 0 {
		return
	}
	n := rb.Len()
	m := src.Len()
	if src.Pos != nil || rb.Pos != nil {
		rb.EnsurePos()
	}
	if src.Codepoints != nil || rb.Codepoints != nil {
		rb.EnsureCodepoints()
	}
	if src.Clusters != nil || rb.Clusters != nil {
		rb.EnsureClusters()
	}
	if src.PlanIDs != nil || rb.PlanIDs != nil {
		rb.EnsurePlanIDs()
	}
	if src.Masks != nil || rb.Masks != nil {
		rb.EnsureMasks()
	}
	if src.UnsafeFlags != nil || rb.UnsafeFlags != nil {
		rb.EnsureUnsafeFlags()
	}
	if src.Syllables != nil || rb.Syllables != nil {
		rb.EnsureSyllables()
	}
	if src.Joiners != nil || rb.Joiners != nil {
		rb.EnsureJoiners()
	}
	rb.Glyphs = append(rb.Glyphs, src.Glyphs...)
	if rb.Pos != nil {
		if len(src.Pos) == m {
			rb.Pos = append(rb.Pos, src.Pos...)
		} else {
			rb.Pos = rb.Pos.ResizeLike(rb.Glyphs)
		}
	}
	if rb.Codepoints != nil {
		if len(src.Codepoints) == m {
			rb.Codepoints = append(rb.Codepoints, src.Codepoints...)
		} else {
			rb.Codepoints = resizeRunes(rb.Codepoints, n+m)
		}
	}
	if rb.Clusters != nil {
		if len(src.Clusters) == m {
			rb.Clusters = append(rb.Clusters, src.Clusters...)
		} else {
			rb.Clusters = resizeUint32(rb.Clusters, n+m)
		}
	}
	if rb.PlanIDs != nil {
		if len(src.PlanIDs) == m {
			rb.PlanIDs = append(rb.PlanIDs, src.PlanIDs...)
		} else {
			rb.PlanIDs = resizeUint16(rb.PlanIDs, n+m)
		}
	}
	if rb.Masks != nil {
		if len(src.Masks) == m {
			rb.Masks = append(rb.Masks, src.Masks...)
		} else {
			rb.Masks = resizeUint32(rb.Masks, n+m)
		}
	}
	if rb.UnsafeFlags != nil {
		if len(src.UnsafeFlags) == m {
			rb.UnsafeFlags = append(rb.UnsafeFlags, src.UnsafeFlags...)
		} else {
			rb.UnsafeFlags = resizeUint16(rb.UnsafeFlags, n+m)
		}
	}
	if rb.Syllables != nil {
		if len(src.Syllables) == m {
			rb.Syllables = append(rb.Syllables, src.Syllables...)
		} else {
			rb.Syllables = resizeUint16(rb.Syllables, n+m)
		}
	}
	if rb.Joiners != nil {
		if len(src.Joiners) == m {
			rb.Joiners = append(rb.Joiners, src.Joiners...)
		} else {
			rb.Joiners = resizeUint8(rb.Joiners, n+m)
		}
	}
}

// PrepareForMappedRun resets the buffer for a fresh rune-to-glyph mapping
// pass: length drops to zero, shaping-time side arrays are switched off (the
// executor re-enables what the plan needs), and the mapping-time arrays
// (codepoints, clusters, optionally plan ids) are switched on. Glyph capacity
// is reserved for n entries.
func (rb *runBuffer) PrepareForMappedRun(withPlanIDs bool, n int) {
	if rb == nil {
		return
	}
	rb.Glyphs = rb.Glyphs[:0]
	rb.Pos = nil
	rb.Masks = nil
	rb.UnsafeFlags = nil
	rb.Syllables = nil
	rb.Joiners = nil
	if rb.Codepoints == nil {
		rb.Codepoints = []rune{}
	} else {
		rb.Codepoints = rb.Codepoints[:0]
	}
	if rb.Clusters == nil {
		rb.Clusters = []uint32{}
	} else {
		rb.Clusters = rb.Clusters[:0]
	}
	if withPlanIDs {
		if rb.PlanIDs == nil {
			rb.PlanIDs = []uint16{}
		} else {
			rb.PlanIDs = rb.PlanIDs[:0]
		}
	} else {
		rb.PlanIDs = nil
	}
	rb.ReserveGlyphs(n)
}

// Reverse flips the run into the opposite visual order, keeping every active
// side array aligned with its glyph.
func (rb *runBuffer) Reverse() {
	if rb == nil {
		return
	}
	n := rb.Len()
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		rb.swapRecords(i, j)
	}
}

func (rb *runBuffer) swapRecords(i, j int) {
	n := rb.Len()
	if rb == nil || i < 0 || j < 0 || i >= n || j >= n || i == j {
		return
	}
	rb.Glyphs[i], rb.Glyphs[j] = rb.Glyphs[j], rb.Glyphs[i]
	if len(rb.Pos) == n {
		rb.Pos[i], rb.Pos[j] = rb.Pos[j], rb.Pos[i]
	}
	if len(rb.Codepoints) == n {
		rb.Codepoints[i], rb.Codepoints[j] = rb.Codepoints[j], rb.Codepoints[i]
	}
	if len(rb.Clusters) == n {
		rb.Clusters[i], rb.Clusters[j] = rb.Clusters[j], rb.Clusters[i]
	}
	if len(rb.PlanIDs) == n {
		rb.PlanIDs[i], rb.PlanIDs[j] = rb.PlanIDs[j], rb.PlanIDs[i]
	}
	if len(rb.Masks) == n {
		rb.Masks[i], rb.Masks[j] = rb.Masks[j], rb.Masks[i]
	}
	if len(rb.UnsafeFlags) == n {
		rb.UnsafeFlags[i], rb.UnsafeFlags[j] = rb.UnsafeFlags[j], rb.UnsafeFlags[i]
	}
	if len(rb.Syllables) == n {
		rb.Syllables[i], rb.Syllables[j] = rb.Syllables[j], rb.Syllables[i]
	}
	if len(rb.Joiners) == n {
		rb.Joiners[i], rb.Joiners[j] = rb.Joiners[j], rb.Joiners[i]
	}
}

// ApplyEdit mirrors a GSUB edit over all active aligned side arrays.
func (rb *runBuffer) ApplyEdit(edit *otlayout.EditSpan) {
	if rb == nil || edit == nil {
		return
	}
	if edit.From < 0 || edit.To < edit.From || edit.To > rb.Len() || edit.Len < 0 {
		panic("RunBuffer.ApplyEdit: invalid edit span")
	}
	repl := make([]ot.GlyphIndex, edit.Len)
	rb.Glyphs = rb.Glyphs.Replace(edit.From, edit.To, repl)
	if rb.Pos != nil {
		rb.Pos = rb.Pos.ApplyEdit(edit)
	}
	if rb.Codepoints != nil {
		rb.Codepoints = applyEditRunes(rb.Codepoints, edit)
	}
	if rb.Clusters != nil {
		rb.Clusters = applyEditUint32(rb.Clusters, edit)
	}
	if rb.PlanIDs != nil {
		rb.PlanIDs = applyEditUint16(rb.PlanIDs, edit)
	}
	if rb.Masks != nil {
		rb.Masks = applyEditUint32(rb.Masks, edit)
	}
	if rb.UnsafeFlags != nil {
		rb.UnsafeFlags = applyEditUint16(rb.UnsafeFlags, edit)
	}
	if rb.Syllables != nil {
		rb.Syllables = applyEditUint16(rb.Syllables, edit)
	}
	if rb.Joiners != nil {
		rb.Joiners = applyEditUint8(rb.Joiners, edit)
	}
}

// InsertGlyphs inserts glyphs at index and keeps all active side arrays aligned.
// Inserted side-array slots are initialized to defaults (or inherited cluster id).
func (rb *runBuffer) InsertGlyphs(index int, glyphs []ot.GlyphIndex) (int, int) {
	if rb == nil || len(glyphs) == 0 {
		return 0, 0
	}
	n := rb.Len()
	if index < 0 {
		index = 0
	}
	if index > n {
		index = n
	}
	insertLen := len(glyphs)

	clusterSeed := uint32(0)
	if len(rb.Clusters) == n {
		switch {
		case index > 0:
			clusterSeed = rb.Clusters[index-1]
		case n > 0:
			clusterSeed = rb.Clusters[0]
		}
	}

	edit := &otlayout.EditSpan{From: index, To: index, Len: insertLen}
	rb.ApplyEdit(edit)
	copy(rb.Glyphs[index:index+insertLen], glyphs)

	if len(rb.Clusters) == rb.Len() {
		for i := index; i < index+insertLen; i++ {
			rb.Clusters[i] = clusterSeed
		}
	}
	return index, index + insertLen
}

// InsertGlyphCopies inserts `count` copies of a source index at `index`.
// All active side arrays are copied from the source record for inserted slots.
func (rb *runBuffer) InsertGlyphCopies(index int, source int, count int) (int, int) {
	if rb == nil || count <= 0 {
		return 0, 0
	}
	n := rb.Len()
	if source < 0 || source >= n {
		return 0, 0
	}
	if index < 0 {
		index = 0
	}
	if index > n {
		index = n
	}

	gid := rb.Glyphs[source]
	insertGlyphs := make([]ot.GlyphIndex, count)
	for i := range insertGlyphs {
		insertGlyphs[i] = gid
	}

	hasPos := len(rb.Pos) == n
	var pos otlayout.PosItem
	if hasPos {
		pos = rb.Pos[source]
	}
	hasCodepoints := len(rb.Codepoints) == n
	var cp rune
	if hasCodepoints {
		cp = rb.Codepoints[source]
	}
	hasClusters := len(rb.Clusters) == n
	var cluster uint32
	if hasClusters {
		cluster = rb.Clusters[source]
	}
	hasPlanIDs := len(rb.PlanIDs) == n
	var planID uint16
	if hasPlanIDs {
		planID = rb.PlanIDs[source]
	}
	hasMasks := len(rb.Masks) == n
	var mask uint32
	if hasMasks {
		mask = rb.Masks[source]
	}
	hasUnsafe := len(rb.UnsafeFlags) == n
	var unsafe uint16
	if hasUnsafe {
		unsafe = rb.UnsafeFlags[source]
	}
	hasSyllables := len(rb.Syllables) == n
	var syllable uint16
	if hasSyllables {
		syllable = rb.Syllables[source]
	}
	hasJoiners := len(rb.Joiners) == n
	var joiner uint8
	if hasJoiners {
		joiner = rb.Joiners[source]
	}

	start, end := rb.InsertGlyphs(index, insertGlyphs)
	for i := start; i < end; i++ {
		if hasPos {
			rb.Pos[i] = pos
		}
		if hasCodepoints {
			rb.Codepoints[i] = cp
		}
		if hasClusters {
			rb.Clusters[i] = cluster
		}
		if hasPlanIDs {
			rb.PlanIDs[i] = planID
		}
		if hasMasks {
			rb.Masks[i] = mask
		}
		if hasUnsafe {
			rb.UnsafeFlags[i] = unsafe
		}
		if hasSyllables {
			rb.Syllables[i] = syllable
		}
		if hasJoiners {
			rb.Joiners[i] = joiner
		}
	}
	return start, end
}

func applyEditUint32(s []uint32, edit *otlayout.EditSpan) []uint32 {
	repl := make([]uint32, edit.Len)
	out := append(s[:edit.From:edit.From], repl...)
	out = append(out, s[edit.To:]...)
	return out
}

func applyEditUint16(s []uint16, edit *otlayout.EditSpan) []uint16 {
	repl := make([]uint16, edit.Len)
	out := append(s[:edit.From:edit.From], repl...)
	out = append(out, s[edit.To:]...)
	return out
}

func applyEditUint8(s []uint8, edit *otlayout.EditSpan) []uint8 {
	repl := make([]uint8, edit.Len)
	out := append(s[:edit.From:edit.From], repl...)
	out = append(out, s[edit.To:]...)
	return out
}

func applyEditRunes(s []rune, edit *otlayout.EditSpan) []rune {
	repl := make([]rune, edit.Len)
	out := append(s[:edit.From:edit.From], repl...)
	out = append(out, s[edit.To:]...)
	return out
}

func resizeUint32(s []uint32, n int) []uint32 {
	if n <= len(s) {
		return s[:n]
	}
	out := make([]uint32, n)
	copy(out, s)
	return out
}

func resizeUint16(s []uint16, n int) []uint16 {
	if n <= len(s) {
		return s[:n]
	}
	out := make([]uint16, n)
	copy(out, s)
	return out
}

func resizeUint8(s []uint8, n int) []uint8 {
	if n <= len(s) {
		return s[:n]
	}
	out := make([]uint8, n)
	copy(out, s)
	return out
}

func resizeRunes(s []rune, n int) []rune {
	if n <= len(s) {
		return s[:n]
	}
	out := make([]rune, n)
	copy(out, s)
	return out
}
