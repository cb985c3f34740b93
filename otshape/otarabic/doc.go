/*
Package otarabic provides the Arabic/Syriac shaping engine for package otshape.

It implements Arabic feature staging, joining-form mask setup, mark reordering,
and postprocessing steps used by the shared otshape pipeline.
*/
package otarabic
