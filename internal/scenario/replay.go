package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"fortio.org/safecast"
	"golang.org/x/sync/errgroup"

	"gengc/internal/gc"
	"gengc/internal/trace"
)

// Result summarises one finished replay.
type Result struct {
	Name      string
	Steps     int
	Collected int
	Stats     gc.Stats
	Report    gc.CollectReport // last collection, zero if none ran
	Snapshot  *gc.Snapshot     // final registry
	Elapsed   time.Duration
}

// StepError reports the step a replay stopped at.
type StepError struct {
	Scenario string
	Step     int // 1-based
	Op       Op
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %d (%s): %v", e.Scenario, e.Step, e.Op, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ErrExpectation marks a step whose outcome differs from its expect table.
var ErrExpectation = errors.New("expectation failed")

// Replay runs s against a new collector. The tracer in ctx, if any, receives
// engine events; debug-flag output is discarded. Replay stops at the first
// failing step and returns a *StepError.
func Replay(ctx context.Context, s *Scenario, sink Sink) (*Result, error) {
	if sink == nil {
		sink = nopSink{}
	}
	cfg, err := s.Config.collectorConfig()
	if err != nil {
		return nil, fmt.Errorf("%s: [config]: %w", s.Name, err)
	}
	tracer := trace.FromContext(ctx)
	cfg.Tracer = tracer
	cfg.DebugOutput = io.Discard
	c, err := gc.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name, err)
	}

	start := time.Now()
	total := len(s.Steps)
	span := trace.Begin(tracer, trace.ScopeEngine, "replay", trace.CurrentSpan(ctx).SpanID)
	span.WithExtra("scenario", s.Name).WithInt("steps", total)

	res := &Result{Name: s.Name}
	fail := func(i int, op Op, err error) (*Result, error) {
		serr := &StepError{Scenario: s.Name, Step: i + 1, Op: op, Err: err}
		sink.OnEvent(Event{Scenario: s.Name, Step: i + 1, Total: total, Op: op, Status: StatusError, Err: serr, Elapsed: time.Since(start)})
		span.End("error")
		return res, serr
	}

	for i := range s.Steps {
		step := &s.Steps[i]
		if err := ctx.Err(); err != nil {
			return fail(i, step.Op, err)
		}
		sink.OnEvent(Event{Scenario: s.Name, Step: i + 1, Total: total, Op: step.Op, Status: StatusWorking, Elapsed: time.Since(start)})

		collected, err := apply(c, step)
		res.Collected += collected
		if err := check(c, step, collected, err); err != nil {
			return fail(i, step.Op, err)
		}
		res.Steps++
	}

	res.Stats = c.Stats()
	res.Report, _ = c.LastReport()
	if res.Snapshot, err = c.Snapshot(); err != nil {
		return fail(total-1, s.Steps[total-1].Op, err)
	}
	res.Elapsed = time.Since(start)
	span.WithInt("collected", res.Collected).End("")
	sink.OnEvent(Event{Scenario: s.Name, Total: total, Status: StatusDone, Elapsed: res.Elapsed})
	return res, nil
}

// apply runs one step and returns what a collect step collected.
func apply(c *gc.Collector, st *Step) (int, error) {
	id, err := identity(st.ID)
	if err != nil {
		return 0, err
	}
	switch st.Op {
	case OpTrack:
		size, err := safecast.Conv[int](st.Size)
		if err != nil {
			return 0, fmt.Errorf("size %d: %w", st.Size, err)
		}
		return 0, c.Track(id, st.Type, size)
	case OpUntrack:
		return 0, c.Untrack(id)
	case OpSetRefcount:
		return 0, c.SetRefcount(id, st.Refcount)
	case OpSetFinalizer:
		return 0, c.SetFinalizer(id, st.Finalizer)
	case OpAddReference, OpRemoveReference:
		to, err := identity(st.To)
		if err != nil {
			return 0, err
		}
		if st.Op == OpAddReference {
			return 0, c.AddReference(id, to)
		}
		return 0, c.RemoveReference(id, to)
	case OpCollect:
		return c.Collect()
	case OpCollectGen:
		return c.CollectGeneration(st.Generation)
	case OpCollectIfNeeded:
		return c.CollectIfNeeded()
	case OpSetThreshold:
		return 0, c.SetThreshold(st.Generation, st.Value)
	case OpEnable:
		c.Enable()
	case OpDisable:
		c.Disable()
	case OpClearGarbage:
		c.ClearGarbage()
	default:
		return 0, fmt.Errorf("unknown op %q", st.Op)
	}
	return 0, nil
}

func identity(raw uint64) (gc.ID, error) {
	v, err := safecast.Conv[uintptr](raw)
	if err != nil {
		return 0, fmt.Errorf("id %d: %w", raw, err)
	}
	return gc.ID(v), nil
}

// check compares the outcome of a step with its expect table. Without an
// expected error, any error fails the step.
func check(c *gc.Collector, st *Step, collected int, opErr error) error {
	want := st.Expect
	if want == nil || want.Error == "" {
		if opErr != nil {
			return opErr
		}
	} else {
		if opErr == nil {
			return fmt.Errorf("%w: want error %s, got success", ErrExpectation, want.Error)
		}
		if got := gc.CodeOf(opErr).String(); got != want.Error {
			return fmt.Errorf("%w: want error %s, got %s (%v)", ErrExpectation, want.Error, got, opErr)
		}
	}
	if want == nil {
		return nil
	}
	stats := c.Stats()
	if want.Collected != nil && collected != *want.Collected {
		return fmt.Errorf("%w: collected %d, want %d", ErrExpectation, collected, *want.Collected)
	}
	if want.Uncollectable != nil && stats.Uncollectable != *want.Uncollectable {
		return fmt.Errorf("%w: uncollectable %d, want %d", ErrExpectation, stats.Uncollectable, *want.Uncollectable)
	}
	if want.Tracked != nil && stats.TotalTracked != *want.Tracked {
		return fmt.Errorf("%w: tracked %d, want %d", ErrExpectation, stats.TotalTracked, *want.Tracked)
	}
	if len(want.Generations) != 0 && !slices.Equal(want.Generations, stats.GenerationCounts[:]) {
		return fmt.Errorf("%w: generations %v, want %v", ErrExpectation, stats.GenerationCounts, want.Generations)
	}
	return nil
}

// ReplayAll replays every scenario concurrently, each against its own
// collector, with at most jobs replays in flight (jobs <= 0 means one per
// scenario). Results keep the input order; the first failure cancels the
// replays that have not started yet.
func ReplayAll(ctx context.Context, scenarios []*Scenario, jobs int, sink Sink) ([]*Result, error) {
	if sink == nil {
		sink = nopSink{}
	}
	if len(scenarios) == 0 {
		return nil, nil
	}
	if jobs <= 0 || jobs > len(scenarios) {
		jobs = len(scenarios)
	}
	for _, s := range scenarios {
		sink.OnEvent(Event{Scenario: s.Name, Total: len(s.Steps), Status: StatusQueued})
	}

	results := make([]*Result, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, s := range scenarios {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			res, err := Replay(gctx, s, sink)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}
