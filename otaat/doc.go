// Package otaat implements the Apple Advanced Typography backend: presence
// predicates and binary readers for the morx (extended glyph metamorphosis),
// kerx (extended kerning), kern (legacy kerning) and trak (tracking) tables,
// plus the plan-time decisions that choose between this backend, GPOS and
// fallback positioning.
//
// None of these four tables are interpreted by the ot package, so otaat reads
// them directly off Table.Binary() using the documented Apple/OpenType binary
// layouts. Table ids are sniffed from the raw directory the same way ot.Font
// already distinguishes a known table from a generic one: presence is
// "font has a table with this tag", nothing more is assumed.
//
// morx substitution is a state-machine format (rearrangement, contextual,
// ligature, insertion chains) except for subtable type 4, "noncontextual
// glyph substitution", which is a plain AAT lookup table. otaat applies type
// 4 chains directly; state-machine chains are recognized (for should_apply_morx
// and chain bookkeeping) but left unapplied, since interpreting Apple state
// tables correctly needs substantially more machinery than a single pass can
// responsibly fake. Kern/kerx format 0 (ordered glyph-pair list) is the
// common case in shipping fonts and is fully applied; higher kerx formats
// (state-table contextual kerning, control-point kerning) are detected for
// presence/coverage purposes only.
package otaat
