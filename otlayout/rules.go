package otlayout

import (
	"errors"

	"github.com/typeforge/opentype/ot"
)

// lookupGlyph is a small helper which looks up an index for a glyph (previously
// returned from a coverage table), checks for errors, and returns the resulting
// glyph.
func lookupGlyph(index ot.VarArray, ginx int, deep bool) ot.GlyphIndex {
	if index == nil {
		return 0
	}
	outglyph, err := index.Get(ginx, deep)
	if err != nil {
		return 0
	}
	return ot.GlyphIndex(outglyph.U16(0))
}

// lookupGlyphs is a small helper which looks up an index for a glyph (previously
// returned from a coverage table), checks for errors, and returns the resulting
// glyphs.
func lookupGlyphs(index ot.VarArray, ginx int, deep bool) []ot.GlyphIndex {
	if index == nil {
		return nil
	}
	outglyphs, err := index.Get(ginx, deep)
	if err != nil {
		return nil
	}
	return outglyphs.Glyphs()
}

var errNoRuleSet = errors.New("otlayout: chained context subtable has no rule sets")

// parseChainedSequenceRules returns the chained sequence rules for coverage
// index inx. The concrete payload is preferred; without one, the rule set is
// decoded from the legacy subtable's index var-array.
func parseChainedSequenceRules(lksub *ot.LookupSubtable, subnode *ot.LookupNode, inx int) ([]ot.GSubChainedSequenceRule, error) {
	if subnode != nil {
		if p := subnode.GSubPayload(); p != nil && p.ChainingContextFmt1 != nil {
			if inx >= 0 && inx < len(p.ChainingContextFmt1.RuleSets) {
				return p.ChainingContextFmt1.RuleSets[inx], nil
			}
			return nil, nil
		}
	}
	if lksub == nil || lksub.Index == nil {
		return nil, errNoRuleSet
	}
	loc, err := lksub.Index.Get(inx, false)
	if err != nil {
		return nil, err
	}
	return decodeChainedSequenceRuleSet(loc.Bytes())
}

// parseChainedClassSequenceRules is the class-based (format 2) counterpart of
// parseChainedSequenceRules.
func parseChainedClassSequenceRules(lksub *ot.LookupSubtable, subnode *ot.LookupNode, inx int) ([]ot.GSubChainedClassRule, error) {
	if subnode != nil {
		if p := subnode.GSubPayload(); p != nil && p.ChainingContextFmt2 != nil {
			if inx >= 0 && inx < len(p.ChainingContextFmt2.RuleSets) {
				return p.ChainingContextFmt2.RuleSets[inx], nil
			}
			return nil, nil
		}
	}
	if lksub == nil || lksub.Index == nil {
		return nil, errNoRuleSet
	}
	loc, err := lksub.Index.Get(inx, false)
	if err != nil {
		return nil, err
	}
	return decodeChainedClassSequenceRuleSet(loc.Bytes())
}

// decodeChainedSequenceRuleSet decodes a binary ChainedSequenceRuleSet table:
// a count plus offsets to ChainedSequenceRule tables.
func decodeChainedSequenceRuleSet(b []byte) ([]ot.GSubChainedSequenceRule, error) {
	offsets, err := ruleSetOffsets(b)
	if err != nil {
		return nil, err
	}
	rules := make([]ot.GSubChainedSequenceRule, 0, len(offsets))
	for _, off := range offsets {
		rule, at := ot.GSubChainedSequenceRule{}, int(off)
		rule.Backtrack, at, err = glyphListAt(b, at)
		if err != nil {
			return rules, err
		}
		rule.Input, at, err = inputGlyphListAt(b, at)
		if err != nil {
			return rules, err
		}
		rule.Lookahead, at, err = glyphListAt(b, at)
		if err != nil {
			return rules, err
		}
		rule.Records, err = sequenceLookupRecordsAt(b, at)
		if err != nil {
			return rules, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// decodeChainedClassSequenceRuleSet decodes a binary
// ChainedClassSequenceRuleSet table into class-based rules.
func decodeChainedClassSequenceRuleSet(b []byte) ([]ot.GSubChainedClassRule, error) {
	offsets, err := ruleSetOffsets(b)
	if err != nil {
		return nil, err
	}
	rules := make([]ot.GSubChainedClassRule, 0, len(offsets))
	for _, off := range offsets {
		rule, at := ot.GSubChainedClassRule{}, int(off)
		rule.Backtrack, at, err = classListAt(b, at)
		if err != nil {
			return rules, err
		}
		rule.Input, at, err = inputClassListAt(b, at)
		if err != nil {
			return rules, err
		}
		rule.Lookahead, at, err = classListAt(b, at)
		if err != nil {
			return rules, err
		}
		rule.Records, err = sequenceLookupRecordsAt(b, at)
		if err != nil {
			return rules, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

var errRuleBounds = errors.New("otlayout: chained rule record out of bounds")

func ruleSetOffsets(b []byte) ([]uint16, error) {
	if len(b) < 2 {
		return nil, errRuleBounds
	}
	count := int(beU16(b, 0))
	if 2+count*2 > len(b) {
		return nil, errRuleBounds
	}
	offsets := make([]uint16, 0, count)
	for i := 0; i < count; i++ {
		if off := beU16(b, 2+i*2); off != 0 && int(off) < len(b) {
			offsets = append(offsets, off)
		}
	}
	return offsets, nil
}

func glyphListAt(b []byte, at int) ([]ot.GlyphIndex, int, error) {
	if at+2 > len(b) {
		return nil, at, errRuleBounds
	}
	count := int(beU16(b, at))
	at += 2
	if at+count*2 > len(b) {
		return nil, at, errRuleBounds
	}
	out := make([]ot.GlyphIndex, count)
	for i := range out {
		out[i] = ot.GlyphIndex(beU16(b, at+i*2))
	}
	return out, at + count*2, nil
}

// inputGlyphListAt reads an input sequence whose count includes the covered
// first glyph, which is not part of the stored array.
func inputGlyphListAt(b []byte, at int) ([]ot.GlyphIndex, int, error) {
	if at+2 > len(b) {
		return nil, at, errRuleBounds
	}
	count := int(beU16(b, at)) - 1 // first input glyph is the covered one
	at += 2
	if count < 0 || at+count*2 > len(b) {
		return nil, at, errRuleBounds
	}
	out := make([]ot.GlyphIndex, count)
	for i := range out {
		out[i] = ot.GlyphIndex(beU16(b, at+i*2))
	}
	return out, at + count*2, nil
}

func classListAt(b []byte, at int) ([]uint16, int, error) {
	if at+2 > len(b) {
		return nil, at, errRuleBounds
	}
	count := int(beU16(b, at))
	at += 2
	if at+count*2 > len(b) {
		return nil, at, errRuleBounds
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = beU16(b, at+i*2)
	}
	return out, at + count*2, nil
}

func inputClassListAt(b []byte, at int) ([]uint16, int, error) {
	if at+2 > len(b) {
		return nil, at, errRuleBounds
	}
	count := int(beU16(b, at)) - 1 // first input position is the covered glyph
	at += 2
	if count < 0 || at+count*2 > len(b) {
		return nil, at, errRuleBounds
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = beU16(b, at+i*2)
	}
	return out, at + count*2, nil
}

func sequenceLookupRecordsAt(b []byte, at int) ([]ot.SequenceLookupRecord, error) {
	if at+2 > len(b) {
		return nil, errRuleBounds
	}
	count := int(beU16(b, at))
	at += 2
	if at+count*4 > len(b) {
		return nil, errRuleBounds
	}
	records := make([]ot.SequenceLookupRecord, count)
	for i := range records {
		records[i] = ot.SequenceLookupRecord{
			SequenceIndex:   beU16(b, at+i*4),
			LookupListIndex: beU16(b, at+i*4+2),
		}
	}
	return records, nil
}

func beU16(b []byte, at int) uint16 {
	if at < 0 || at+2 > len(b) {
		return 0
	}
	return uint16(b[at])<<8 | uint16(b[at+1])
}
