package ot

// This file builds the semantic script/feature graphs (refactor.go) from the
// binary ScriptList and FeatureList sections. The lookup graph counterpart
// lives in parse_refactor_lookup.go.

// parseConcreteScriptList builds the semantic script graph from a binary
// ScriptList section (b positioned at the section start).
func parseConcreteScriptList(b binarySegm) *ScriptList {
	sl := &ScriptList{
		offsetByTag: map[Tag]uint16{},
		scriptByTag: map[Tag]*Script{},
		raw:         b,
	}
	if len(b) < 2 {
		sl.err = errFontFormat("script list too small")
		return sl
	}
	count := int(b.U16(0))
	for i := 0; i < count; i++ {
		off := 2 + i*6
		if off+6 > len(b) {
			sl.err = errFontFormat("script record out of bounds")
			break
		}
		tag := MakeTag(b[off : off+4])
		scrOff := b.U16(off + 4)
		if scrOff == 0 || int(scrOff) >= len(b) {
			continue
		}
		sl.scriptOrder = append(sl.scriptOrder, tag)
		sl.offsetByTag[tag] = scrOff
		sl.scriptByTag[tag] = parseConcreteScript(b[scrOff:])
	}
	return sl
}

// parseConcreteScript builds one Script table (b positioned at the script
// table start).
func parseConcreteScript(b binarySegm) *Script {
	s := &Script{
		langOffsetsByTag: map[Tag]uint16{},
		langByTag:        map[Tag]*LangSys{},
		raw:              b,
	}
	if len(b) < 4 {
		s.err = errFontFormat("script table too small")
		return s
	}
	s.defaultLangSysOffset = b.U16(0)
	if s.defaultLangSysOffset != 0 && int(s.defaultLangSysOffset) < len(b) {
		s.defaultLangSys = parseConcreteLangSys(b[s.defaultLangSysOffset:])
	}
	count := int(b.U16(2))
	for i := 0; i < count; i++ {
		off := 4 + i*6
		if off+6 > len(b) {
			s.err = errFontFormat("langsys record out of bounds")
			break
		}
		tag := MakeTag(b[off : off+4])
		lsOff := b.U16(off + 4)
		if lsOff == 0 || int(lsOff) >= len(b) {
			continue
		}
		s.langOrder = append(s.langOrder, tag)
		s.langOffsetsByTag[tag] = lsOff
		s.langByTag[tag] = parseConcreteLangSys(b[lsOff:])
	}
	return s
}

// parseConcreteLangSys builds one LangSys table (b positioned at the table
// start). Feature links stay unresolved until linkLangSysFeatures runs.
func parseConcreteLangSys(b binarySegm) *LangSys {
	ls := &LangSys{}
	if len(b) < 6 {
		ls.err = errFontFormat("langsys table too small")
		return ls
	}
	ls.lookupOrderOffset = b.U16(0)
	ls.requiredFeatureIndex = b.U16(2)
	count := int(b.U16(4))
	for i := 0; i < count; i++ {
		off := 6 + i*2
		if off+2 > len(b) {
			ls.err = errFontFormat("langsys feature index out of bounds")
			break
		}
		ls.featureIndices = append(ls.featureIndices, b.U16(off))
	}
	return ls
}

// parseConcreteFeatureList builds the semantic feature graph from a binary
// FeatureList section (b positioned at the section start). Duplicate feature
// tags are preserved.
func parseConcreteFeatureList(b binarySegm) *FeatureList {
	fl := &FeatureList{
		indicesByTag: map[Tag][]int{},
		raw:          b,
	}
	if len(b) < 2 {
		fl.err = errFontFormat("feature list too small")
		return fl
	}
	count := int(b.U16(0))
	for i := 0; i < count; i++ {
		off := 2 + i*6
		if off+6 > len(b) {
			fl.err = errFontFormat("feature record out of bounds")
			break
		}
		tag := MakeTag(b[off : off+4])
		featOff := b.U16(off + 4)
		var feat *Feature
		if featOff != 0 && int(featOff) < len(b) {
			feat = parseConcreteFeature(b[featOff:])
		}
		inx := len(fl.featuresByIndex)
		fl.featureOrder = append(fl.featureOrder, tag)
		fl.featuresByIndex = append(fl.featuresByIndex, feat)
		fl.indicesByTag[tag] = append(fl.indicesByTag[tag], inx)
	}
	return fl
}

// parseConcreteFeature builds one Feature table (b positioned at the table
// start).
func parseConcreteFeature(b binarySegm) *Feature {
	f := &Feature{raw: b}
	if len(b) < 4 {
		f.err = errFontFormat("feature table too small")
		return f
	}
	f.featureParamsOffset = b.U16(0)
	count := int(b.U16(2))
	for i := 0; i < count; i++ {
		off := 4 + i*2
		if off+2 > len(b) {
			f.err = errFontFormat("feature lookup index out of bounds")
			break
		}
		f.lookupListIndices = append(f.lookupListIndices, b.U16(off))
	}
	return f
}

// linkLangSysFeatures resolves every LangSys's feature-index links against the
// feature graph, so LangSys.Features()/FeatureAt() return concrete features.
func linkLangSysFeatures(sl *ScriptList, fl *FeatureList) {
	if sl == nil || fl == nil {
		return
	}
	resolve := func(ls *LangSys) {
		if ls == nil || len(ls.features) == len(ls.featureIndices) && len(ls.features) > 0 {
			return
		}
		ls.features = make([]*Feature, 0, len(ls.featureIndices))
		for _, inx := range ls.featureIndices {
			if int(inx) < len(fl.featuresByIndex) {
				ls.features = append(ls.features, fl.featuresByIndex[inx])
			} else {
				ls.features = append(ls.features, nil)
			}
		}
	}
	for _, scr := range sl.scriptByTag {
		if scr == nil {
			continue
		}
		resolve(scr.defaultLangSys)
		for _, ls := range scr.langByTag {
			resolve(ls)
		}
	}
}
