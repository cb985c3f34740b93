package otaat

import "github.com/typeforge/opentype/ot"

// TrakTable is a parsed 'trak' table restricted to the horizontal track data,
// which is all text shaping needs (vertical tracking affects line layout, not
// glyph advances within a run).
type TrakTable struct {
	sizes  []fixed16_16 // ascending point sizes the track entries are sampled at
	tracks []trakEntry
}

type trakEntry struct {
	track  fixed16_16 // requested tracking amount this entry was authored for
	values []int16    // per-size adjustment, parallel to sizes
}

type fixed16_16 float64

func readFixed(b []byte, off int) fixed16_16 {
	return fixed16_16(int32(u32(b, off))) / 65536
}

// ParseTrak reads the horizontal TrackData of a 'trak' table.
func ParseTrak(font *ot.Font) *TrakTable {
	b := tableBytes(font, tagTrak)
	if len(b) < 12 {
		return nil
	}
	horizOffset := int(u16(b, 6))
	if horizOffset <= 0 || horizOffset >= len(b) {
		return &TrakTable{}
	}
	data := b[horizOffset:]
	if len(data) < 8 {
		return &TrakTable{}
	}
	nTracks := int(u16(data, 0))
	nSizes := int(u16(data, 2))
	sizeTableOffset := int(u32(data, 4))
	if sizeTableOffset <= 0 || sizeTableOffset+nSizes*4 > len(b) {
		return &TrakTable{}
	}
	sizes := make([]fixed16_16, nSizes)
	for i := 0; i < nSizes; i++ {
		sizes[i] = readFixed(b, sizeTableOffset+i*4)
	}
	const trackEntrySize = 4 + 2 + 2 // Fixed track, uint16 nameIndex, uint16 offset
	tracks := make([]trakEntry, 0, nTracks)
	const trackTableStart = 8
	for i := 0; i < nTracks; i++ {
		off := trackTableStart + i*trackEntrySize
		if off+trackEntrySize > len(data) {
			break
		}
		track := readFixed(data, off)
		perSizeOffset := int(u16(data, off+6))
		if perSizeOffset <= 0 || perSizeOffset+nSizes*2 > len(b) {
			continue
		}
		values := make([]int16, nSizes)
		for s := 0; s < nSizes; s++ {
			values[s] = i16(b, perSizeOffset+s*2)
		}
		tracks = append(tracks, trakEntry{track: track, values: values})
	}
	return &TrakTable{sizes: sizes, tracks: tracks}
}

// Value returns the per-em tracking adjustment (in design units, to be scaled
// by the caller against the requested track amount and point size) for the
// entry closest to requestedTrack, interpolated across the two nearest
// sampled sizes. Returns 0, false if the table has no usable track entries.
func (t *TrakTable) Value(requestedTrack float64, ptSize float64) (float64, bool) {
	if t == nil || len(t.tracks) == 0 || len(t.sizes) == 0 {
		return 0, false
	}
	best := t.tracks[0]
	bestDist := trakDist(float64(best.track), requestedTrack)
	for _, e := range t.tracks[1:] {
		d := trakDist(float64(e.track), requestedTrack)
		if d < bestDist {
			best, bestDist = e, d
		}
	}
	lo := 0
	for lo < len(t.sizes)-1 && float64(t.sizes[lo+1]) <= ptSize {
		lo++
	}
	if lo >= len(best.values) {
		lo = len(best.values) - 1
	}
	v := float64(best.values[lo])
	if hi := lo + 1; hi < len(t.sizes) && hi < len(best.values) {
		s0, s1 := float64(t.sizes[lo]), float64(t.sizes[hi])
		if ptSize > s0 && s1 > s0 {
			v += (ptSize - s0) / (s1 - s0) * (float64(best.values[hi]) - v)
		}
	}
	return v, true
}

func trakDist(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
