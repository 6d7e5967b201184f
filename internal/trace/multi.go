package trace

import "errors"

// MultiTracer fans events out to several tracers, typically a stream for
// the operator and a ring for post-mortem dumps.
type MultiTracer struct {
	targets []Tracer
	level   Level
}

// NewMultiTracer returns a tracer that forwards to every target.
func NewMultiTracer(level Level, targets ...Tracer) *MultiTracer {
	return &MultiTracer{targets: targets, level: level}
}

// Emit hands each target its own copy, since targets stamp sequence numbers.
func (t *MultiTracer) Emit(ev *Event) {
	for _, target := range t.targets {
		cp := *ev
		target.Emit(&cp)
	}
}

// Flush flushes every target and joins their errors.
func (t *MultiTracer) Flush() error {
	var errs []error
	for _, target := range t.targets {
		errs = append(errs, target.Flush())
	}
	return errors.Join(errs...)
}

// Close closes every target and joins their errors.
func (t *MultiTracer) Close() error {
	var errs []error
	for _, target := range t.targets {
		errs = append(errs, target.Close())
	}
	return errors.Join(errs...)
}

// Ring returns the first ring target, or nil.
func (t *MultiTracer) Ring() *RingTracer {
	for _, target := range t.targets {
		if r, ok := target.(*RingTracer); ok {
			return r
		}
	}
	return nil
}

func (t *MultiTracer) Level() Level  { return t.level }
func (t *MultiTracer) Enabled() bool { return t.level > LevelOff }
