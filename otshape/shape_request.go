package otshape

// BufferOptions is the buffering/flush view of [ShapeOptions].
//
// [Shaper.Shape] and [Shaper.ShapeEvents] take their watermark and flush
// configuration through this type; the embedded [Params] half is ignored
// there because shaping parameters are passed explicitly.
type BufferOptions = ShapeOptions

// ShapeRequest bundles all inputs of one package-level [Shape] call.
type ShapeRequest struct {
	Options ShapeOptions     // Options carries shaping parameters and flush behavior.
	Source  RuneSource       // Source is read incrementally until EOF.
	Sink    GlyphSink        // Sink receives shaped glyph records in output order.
	Shapers []ShapingEngine  // Shapers are the candidate engines; the best match wins.
}

// Shape shapes req.Source into req.Sink, selecting an engine from req.Shapers.
//
// It is the one-call convenience form of [NewShaper] plus [Shaper.Shape].
func Shape(req ShapeRequest) error {
	s := NewShaper(req.Shapers...)
	return s.Shape(req.Options.Params, req.Source, req.Sink, req.Options)
}
