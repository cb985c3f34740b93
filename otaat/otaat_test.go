package otaat

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/typeforge/opentype/ot"
)

func loadLocalFont(t *testing.T, fontFileName string) *ot.Font {
	t.Helper()
	path := filepath.Join("..", "testdata", fontFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Skipf("test font %s not available: %s", fontFileName, err)
	}
	otf, err := ot.Parse(data)
	if err != nil {
		t.Fatalf("cannot decode test font %s: %s", fontFileName, err)
	}
	return otf
}

func be16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func TestParseKernFormat0OrderedPairs(t *testing.T) {
	// header: version=0, nTables=1
	buf := append([]byte{}, be16(0)...)
	buf = append(buf, be16(1)...)
	// subtable header: version, length, coverage (format 0, horizontal)
	sub := append([]byte{}, be16(0)...) // subtable version
	sub = append(sub, be16(0)...)       // length placeholder, patched below
	sub = append(sub, be16(kernCoverageHorizontal)...)
	// format 0 body: nPairs, searchRange, entrySelector, rangeShift
	body := append([]byte{}, be16(2)...)
	body = append(body, be16(0)...)
	body = append(body, be16(0)...)
	body = append(body, be16(0)...)
	body = append(body, be16(3)...)  // left
	body = append(body, be16(5)...)  // right
	negVal := int16(-20)
	body = append(body, be16(uint16(negVal))...) // value
	body = append(body, be16(7)...)
	body = append(body, be16(9)...)
	body = append(body, be16(15)...)
	sub = append(sub, body...)
	binary.BigEndian.PutUint16(sub[2:4], uint16(len(sub)))
	buf = append(buf, sub...)

	kt := parseKernFromBytes(buf)
	v, ok := kt.Lookup(3, 5)
	if !ok || v != -20 {
		t.Fatalf("Lookup(3,5) = %d, %v, want -20, true", v, ok)
	}
	v, ok = kt.Lookup(7, 9)
	if !ok || v != 15 {
		t.Fatalf("Lookup(7,9) = %d, %v, want 15, true", v, ok)
	}
	if _, ok := kt.Lookup(1, 2); ok {
		t.Fatalf("Lookup(1,2) should not be found")
	}
}

// parseKernFromBytes exercises parseKernFormat0 directly without needing a
// real font, by handing it a synthetic legacy-kern byte stream.
func parseKernFromBytes(b []byte) *KernTable {
	nTables := int(binary.BigEndian.Uint16(b[2:4]))
	out := &KernTable{Pairs: make(map[[2]ot.GlyphIndex]int32)}
	off := 4
	for i := 0; i < nTables; i++ {
		length := int(binary.BigEndian.Uint16(b[off+2 : off+4]))
		coverage := binary.BigEndian.Uint16(b[off+4 : off+6])
		format := coverage >> 8
		subEnd := off + length
		if format == 0 && coverage&kernCoverageHorizontal != 0 {
			parseKernFormat0(b[off+6:subEnd], coverage, out.Pairs)
		}
		off = subEnd
	}
	return out
}

func TestAATLookupFormat6BinarySearchTable(t *testing.T) {
	// format(6), unitSize(4), nUnits(2), searchRange, entrySelector, rangeShift
	buf := append([]byte{}, be16(6)...)
	buf = append(buf, be16(4)...)
	buf = append(buf, be16(2)...)
	buf = append(buf, be16(0)...)
	buf = append(buf, be16(0)...)
	buf = append(buf, be16(0)...)
	buf = append(buf, be16(10)...)
	buf = append(buf, be16(100)...)
	buf = append(buf, be16(20)...)
	buf = append(buf, be16(200)...)

	lk := parseAATLookup(buf)
	v, ok := lk.Lookup(10)
	if !ok || v != 100 {
		t.Fatalf("Lookup(10) = %d, %v, want 100, true", v, ok)
	}
	v, ok = lk.Lookup(20)
	if !ok || v != 200 {
		t.Fatalf("Lookup(20) = %d, %v, want 200, true", v, ok)
	}
	if _, ok := lk.Lookup(30); ok {
		t.Fatalf("Lookup(30) should not be found")
	}
}

func TestAATLookupFormat8TrimmedArray(t *testing.T) {
	// format(8), firstGlyph(50), glyphCount(3), values...
	buf := append([]byte{}, be16(8)...)
	buf = append(buf, be16(50)...)
	buf = append(buf, be16(3)...)
	buf = append(buf, be16(0)...)   // glyph 50: no mapping
	buf = append(buf, be16(500)...) // glyph 51
	buf = append(buf, be16(501)...) // glyph 52

	lk := parseAATLookup(buf)
	if _, ok := lk.Lookup(50); ok {
		t.Fatalf("Lookup(50) should be absent (zero entry)")
	}
	v, ok := lk.Lookup(51)
	if !ok || v != 500 {
		t.Fatalf("Lookup(51) = %d, %v, want 500, true", v, ok)
	}
}

type fakeBuffer []ot.GlyphIndex

func (b fakeBuffer) Len() int                 { return len(b) }
func (b fakeBuffer) At(i int) ot.GlyphIndex   { return b[i] }
func (b fakeBuffer) Set(i int, g ot.GlyphIndex) { b[i] = g }

func TestApplyNonContextualSubstitutesMappedGlyphs(t *testing.T) {
	lk := &AATLookup{byGlyph: map[ot.GlyphIndex]ot.GlyphIndex{5: 6}}
	chains := []MorxChain{{
		Subtables: []MorxSubtable{{Type: morxSubtableNonContextual, Lookup: lk}},
	}}
	buf := fakeBuffer{4, 5, 5, 7}
	ApplyNonContextual(chains, buf)
	want := fakeBuffer{4, 6, 6, 7}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("buf[%d] = %d, want %d", i, buf[i], want[i])
		}
	}
}

func TestShouldApplyMorxFalseWithoutMorxTable(t *testing.T) {
	otf := loadLocalFont(t, "Calibri.ttf")
	// Calibri ships GSUB but no morx; ShouldApplyMorx must be false regardless
	// of direction since HasSubstitution(otf) is false.
	if ShouldApplyMorx(otf, true) {
		t.Fatalf("ShouldApplyMorx(horizontal) = true for a font without morx")
	}
	if ShouldApplyMorx(otf, false) {
		t.Fatalf("ShouldApplyMorx(vertical) = true for a font without morx")
	}
}

func TestTrakValueInterpolatesNearestTrackEntry(t *testing.T) {
	tr := &TrakTable{
		sizes: []fixed16_16{9, 18},
		tracks: []trakEntry{
			{track: 0, values: []int16{10, 20}},
			{track: -1, values: []int16{30, 40}},
		},
	}
	v, ok := tr.Value(-1, 9)
	if !ok || v != 30 {
		t.Fatalf("Value(-1, 9) = %v, %v, want 30, true", v, ok)
	}
	v, ok = tr.Value(0, 18)
	if !ok || v != 20 {
		t.Fatalf("Value(0, 18) = %v, %v, want 20, true", v, ok)
	}
}
