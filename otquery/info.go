package otquery

import (
	"github.com/typeforge/opentype/ot"
	"golang.org/x/image/font/sfnt"
)

// FontType returns the font type, encoded in the font header, as a string.
func FontType(otf *ot.Font) string {
	if otf == nil || otf.Header == nil {
		return "<empty>"
	}
	typ := otf.Header.FontType
	switch typ {
	case 0x4f54544f: // OTTO
		return "OpenType (outlines)"
	case 0x00010000: // TrueType
		return "TrueType"
	case 0x74727565: // true
		return "TrueType (Mac legacy)"
	}
	return "<unknown>"
}

// NameInfo returns a map with selected fields from OpenType table `name`.
// Will include (if available in the font) "family", "subfamily", "version".
//
// Parameter `lang` is currently unused.
func NameInfo(otf *ot.Font, lang ot.Tag) map[string]string {
	names := make(map[string]string)
	for nameID, value := range NamesRange(otf) {
		if value == "" {
			continue
		}
		switch nameID {
		case sfnt.NameIDFamily:
			putNameOnce(names, "family", value)
		case sfnt.NameIDSubfamily:
			putNameOnce(names, "subfamily", value)
		case sfnt.NameIDVersion:
			putNameOnce(names, "version", value)
		}
	}
	return names
}

func putNameOnce(names map[string]string, field, value string) {
	if _, ok := names[field]; !ok {
		names[field] = value
	}
}

// LayoutTables returns a list of tag strings, one for each layout-table a font includes.
//
// From the spec:
// OpenType Layout makes use of five tables: GSUB, GPOS, BASE, JSTF, and GDEF.
func LayoutTables(otf *ot.Font) []string {
	var lt []string
	tags := otf.TableTags()
	for _, tag := range tags {
		switch tag.String() {
		case "GSUB", "GPOS", "BASE", "JSTF", "GDEF":
			lt = append(lt, tag.String())
		}
	}
	return lt
}

// GlyphClass is a glyph's class number from the GDEF GlyphClassDef table
// (1 = base, 2 = ligature, 3 = mark, 4 = component).
type GlyphClass int

// GlyphClassInfo collects glyph class information for a glyph index.
type GlyphClassInfo struct {
	Class           GlyphClass
	MarkAttachClass int
	MarkGlyphSet    int
}

// ClassesForGlyph retrieves glyph class information for a given glyph index.
func ClassesForGlyph(otf *ot.Font, gid ot.GlyphIndex) GlyphClassInfo {
	if otf == nil {
		return GlyphClassInfo{}
	}
	gdef := otf.Layout.GDef
	if gdef == nil {
		return GlyphClassInfo{}
	}
	clz := GlyphClassInfo{
		Class:           GlyphClass(gdef.GlyphClassDef.Lookup(gid)),
		MarkAttachClass: gdef.MarkAttachmentClassDef.Lookup(gid),
	}
	for n, set := range gdef.MarkGlyphSets {
		if set == nil {
			continue
		}
		if _, ok := set.Match(gid); ok {
			clz.MarkGlyphSet = n
		}
	}
	return clz
}
