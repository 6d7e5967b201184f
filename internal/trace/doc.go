// Package trace records what the collection engine does.
//
// Every admitted collection opens a "collect" span whose end event carries
// the generation, collected, uncollectable and promoted counts. Each scanned
// generation gets a child span, and each collectable or uncollectable
// object a point event.
//
// Scopes nest from coarse to fine (engine, collect, generation, object) and
// a Level admits every scope up to a cut-off:
//
//	phase   engine + collect
//	detail  + generation
//	debug   + object
//
// The gengc CLI builds a tracer from flags:
//
//	gengc replay --trace=- --trace-level=detail scenario.toml
//
// Library users pass one through gc.Config:
//
//	t, err := trace.New(trace.Config{Level: trace.LevelDetail, Mode: trace.ModeRing})
//	...
//	c, err := gc.New(gc.Config{Tracer: t})
package trace
