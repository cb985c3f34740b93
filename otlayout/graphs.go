package otlayout

import (
	"errors"

	"github.com/typeforge/opentype/ot"
)

var (
	// ErrVoid flags a nil/void argument to a graph helper.
	ErrVoid = errors.New("otlayout: void argument")
	// ErrNoLookupGraph flags a missing concrete lookup graph.
	ErrNoLookupGraph = errors.New("otlayout: layout table has no concrete lookup graph")
	// ErrFeatureHasNoRefs flags a feature without lookup references.
	ErrFeatureHasNoRefs = errors.New("otlayout: feature references no lookups")
)

// GetScriptGraph returns the concrete script graph of a GSUB or GPOS table.
func GetScriptGraph(table ot.Table) (*ot.ScriptList, error) {
	lyt, err := GetLayoutTable(table)
	if err != nil {
		return nil, err
	}
	sg := lyt.ScriptGraph()
	if sg == nil {
		return nil, errors.New("otlayout: layout table has no concrete script graph")
	}
	return sg, nil
}

// GetFeatureGraph returns the concrete feature graph of a GSUB or GPOS table.
func GetFeatureGraph(table ot.Table) (*ot.FeatureList, error) {
	lyt, err := GetLayoutTable(table)
	if err != nil {
		return nil, err
	}
	fg := lyt.FeatureGraph()
	if fg == nil {
		return nil, errors.New("otlayout: layout table has no concrete feature graph")
	}
	return fg, nil
}

// GetLookupGraph returns the concrete lookup graph of a GSUB or GPOS table.
func GetLookupGraph(table ot.Table) (*ot.LookupListGraph, error) {
	lyt, err := GetLayoutTable(table)
	if err != nil {
		return nil, err
	}
	lg := lyt.LookupGraph()
	if lg == nil {
		return nil, ErrNoLookupGraph
	}
	return lg, nil
}

// ScriptTags collects the script tags of a script graph in declaration order.
func ScriptTags(sl *ot.ScriptList) []ot.Tag {
	if sl == nil || sl.Len() == 0 {
		return nil
	}
	tags := make([]ot.Tag, 0, sl.Len())
	for tag := range sl.Range() {
		tags = append(tags, tag)
	}
	return tags
}

// FeatureTags collects the feature tags of a feature graph in declaration
// order, preserving duplicates.
func FeatureTags(fl *ot.FeatureList) []ot.Tag {
	if fl == nil || fl.Len() == 0 {
		return nil
	}
	tags := make([]ot.Tag, 0, fl.Len())
	for tag := range fl.Range() {
		tags = append(tags, tag)
	}
	return tags
}

// FeaturesForLangSys returns the resolved features a language system links to,
// in link order.
func FeaturesForLangSys(lsys *ot.LangSys) ([]*ot.Feature, error) {
	if lsys == nil {
		return nil, ErrVoid
	}
	return lsys.Features(), nil
}

// LookupsForFeature resolves a feature's lookup references against the
// concrete lookup graph.
func LookupsForFeature(f *ot.Feature, lg *ot.LookupListGraph) ([]*ot.LookupTable, error) {
	if f == nil {
		return nil, ErrVoid
	}
	if lg == nil {
		return nil, ErrNoLookupGraph
	}
	if f.LookupCount() == 0 {
		return nil, ErrFeatureHasNoRefs
	}
	lookups := make([]*ot.LookupTable, 0, f.LookupCount())
	for i := 0; i < f.LookupCount(); i++ {
		if lookup := lg.Lookup(f.LookupIndex(i)); lookup != nil {
			lookups = append(lookups, lookup)
		}
	}
	if len(lookups) == 0 {
		return nil, ErrFeatureHasNoRefs
	}
	return lookups, nil
}
