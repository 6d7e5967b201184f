package gc

import (
	"fmt"
	"strconv"
	"time"

	"gengc/internal/observ"
	"gengc/internal/trace"
)

// CollectReport summarises the most recent collection pass.
type CollectReport struct {
	Generation    int                 `msgpack:"generation"`
	Scanned       int                 `msgpack:"scanned"`
	Collected     int                 `msgpack:"collected"`
	Uncollectable int                 `msgpack:"uncollectable"`
	Promoted      [NumGenerations]int `msgpack:"promoted"` // objects moved into each generation
	Timings       observ.Report       `msgpack:"timings"`
}

// TotalPromoted sums Promoted.
func (r CollectReport) TotalPromoted() int {
	return r.Promoted[0] + r.Promoted[1] + r.Promoted[2]
}

// Collect collects every generation and returns the number of objects
// removed from the registry.
func (c *Collector) Collect() (int, error) {
	return c.CollectGeneration(NumGenerations - 1)
}

// CollectGeneration collects gen together with every younger generation.
// It fails fast with ErrCollectionInProgress when another collection is
// admitted. Objects moved to the garbage set are not counted.
func (c *Collector) CollectGeneration(gen int) (int, error) {
	if !validGeneration(gen) {
		return 0, genError("collect", gen)
	}
	if !c.collecting.CompareAndSwap(false, true) {
		return 0, opError(ErrCollectionInProgress, "collect", 0)
	}
	defer c.collecting.Store(false)
	return c.collectAdmitted(gen)
}

// CollectIfNeeded collects the youngest generation whose counter reached its
// threshold, then keeps going upward while the next older generation has
// become due. It does nothing while the collector is disabled.
func (c *Collector) CollectIfNeeded() (int, error) {
	c.mu.RLock()
	enabled := c.enabled
	gen, due := c.thr.lowestDue()
	c.mu.RUnlock()
	if !enabled || !due {
		return 0, nil
	}

	if !c.collecting.CompareAndSwap(false, true) {
		return 0, opError(ErrCollectionInProgress, "collect if needed", 0)
	}
	defer c.collecting.Store(false)

	total := 0
	for {
		n, err := c.collectAdmitted(gen)
		total += n
		if err != nil || gen == NumGenerations-1 {
			return total, err
		}
		c.mu.RLock()
		next := c.thr.due(gen + 1)
		c.mu.RUnlock()
		if !next {
			return total, nil
		}
		gen++
	}
}

// collectAdmitted runs one pass. The caller owns the collecting flag.
func (c *Collector) collectAdmitted(gen int) (int, error) {
	c.mu.Lock()
	if err := c.markScope(gen); err != nil {
		c.unmarkScope(gen)
		c.mu.Unlock()
		return 0, err
	}
	callbacks := c.callbackList()
	c.mu.Unlock()

	runCallbacks(callbacks, PhaseStart, CollectInfo{Generation: gen})

	c.mu.Lock()
	report, err := c.runPass(gen)
	lines := c.takePending()
	out := c.debugOut
	c.mu.Unlock()

	writeLines(out, lines)

	runCallbacks(callbacks, PhaseStop, CollectInfo{
		Generation:    gen,
		Collected:     report.Collected,
		Uncollectable: report.Uncollectable,
		Promoted:      report.TotalPromoted(),
	})
	return report.Collected, err
}

// markScope flags every non-garbage header of generations 0..gen as under
// scan and notes the allocation count the pass settles against. Callers
// hold c.mu.
func (c *Collector) markScope(gen int) error {
	c.thr.mark()
	for g := 0; g <= gen; g++ {
		for _, id := range c.gens[g].ids() {
			h, ok := c.headers[id]
			if !ok {
				return internalError("collect", "generation %d lists %s without a header", g, id)
			}
			if h.generation != g {
				return internalError("collect", "%s is listed in generation %d but its header says %d", id, g, h.generation)
			}
			if !h.inGarbage {
				h.scanning = true
			}
		}
	}
	return nil
}

func (c *Collector) unmarkScope(gen int) {
	for g := 0; g <= gen; g++ {
		for _, id := range c.gens[g].ids() {
			if h, ok := c.headers[id]; ok {
				h.scanning = false
			}
		}
	}
}

// scanSet snapshots the headers under scan. Callers hold c.mu.
func (c *Collector) scanSet(gen int) (*ScanSet, error) {
	s := &ScanSet{
		Refcounts: make(map[ID]int),
		Finalizer: make(map[ID]bool),
	}
	for g := 0; g <= gen; g++ {
		for _, id := range c.gens[g].ids() {
			h, ok := c.headers[id]
			if !ok {
				return nil, internalError("collect", "header of %s vanished during collection", id)
			}
			if !h.scanning {
				continue
			}
			s.IDs = append(s.IDs, id)
			s.Refcounts[id] = h.refcount
			s.Finalizer[id] = h.finalizer
		}
	}
	s.Edges = c.edges.restrict(func(id ID) bool {
		_, ok := s.Refcounts[id]
		return ok
	})
	return s, nil
}

// runPass performs steps snapshot → classify → reclaim → promote → settle
// for generations 0..gen. Callers hold c.mu and have marked the scope.
func (c *Collector) runPass(gen int) (CollectReport, error) {
	start := time.Now()
	report := CollectReport{Generation: gen}
	timer := observ.NewTimer()
	span := trace.Begin(c.tracer, trace.ScopeCollect, "collect", 0)
	span.WithInt("generation", gen)

	flags := c.debug.effective()
	if flags&FlagStats != 0 {
		c.debugf("gc: collecting generation %d...", gen)
		c.debugf("gc: objects in each generation: %d %d %d",
			c.gens[0].len(), c.gens[1].len(), c.gens[2].len())
	}

	idx := timer.Begin("snapshot")
	scan, err := c.scanSet(gen)
	if err != nil {
		timer.End(idx, "failed")
		c.unmarkScope(gen)
		span.End("error")
		return report, err
	}
	report.Scanned = len(scan.IDs)
	timer.End(idx, fmt.Sprintf("%d headers", len(scan.IDs)))

	for g := 0; g <= gen; g++ {
		gs := trace.Begin(c.tracer, trace.ScopeGeneration, "gen"+strconv.Itoa(g), span.ID())
		gs.WithInt("objects", c.gens[g].len()).End("")
	}

	idx = timer.Begin("reachability")
	verdict := c.reach.Classify(scan)
	timer.End(idx, fmt.Sprintf("%s: %d unreachable", c.reach.Name(), len(verdict.Unreachable)))

	idx = timer.Begin("reclaim")
	saveAll := flags&FlagSaveAll != 0
	for _, id := range verdict.Unreachable {
		h, ok := c.headers[id]
		if !ok {
			timer.End(idx, "failed")
			c.unmarkScope(gen)
			span.End("error")
			return report, internalError("collect", "unreachable %s has no header", id)
		}
		if verdict.Legacy[id] || saveAll {
			h.inGarbage = true
			h.scanning = false
			c.garbage.add(id)
			report.Uncollectable++
			if flags&FlagUncollectable != 0 {
				c.debugf("gc: uncollectable <%s %s>", h.typeTag, id)
			}
			trace.Point(c.tracer, trace.ScopeObject, "uncollectable", h.typeTag+" "+id.String(), span.ID())
			continue
		}
		if flags&FlagCollectable != 0 {
			c.debugf("gc: collectable <%s %s>", h.typeTag, id)
		}
		trace.Point(c.tracer, trace.ScopeObject, "collectable", h.typeTag+" "+id.String(), span.ID())
		c.forget(id, h)
		report.Collected++
	}
	timer.End(idx, fmt.Sprintf("%d collected, %d uncollectable", report.Collected, report.Uncollectable))

	idx = timer.Begin("promote")
	// Oldest first, so an object promoted out of g is not promoted again
	// out of g+1 in the same pass.
	for g := min(gen, NumGenerations-2); g >= 0; g-- {
		for _, id := range c.gens[g].ids() {
			h := c.headers[id]
			if h == nil || !h.scanning {
				continue
			}
			c.gens[g].remove(id)
			c.gens[g+1].add(id)
			h.generation = g + 1
			report.Promoted[g+1]++
		}
	}
	timer.End(idx, fmt.Sprintf("%d promoted", report.TotalPromoted()))

	c.unmarkScope(gen)
	c.thr.settle(gen, report.Promoted)
	c.collections[gen]++
	c.collected += report.Collected
	report.Timings = timer.Report()
	c.last = report

	if flags&FlagStats != 0 {
		c.debugf("gc: done, %d unreachable, %d uncollectable, %.4fs elapsed",
			len(verdict.Unreachable), report.Uncollectable, time.Since(start).Seconds())
	}
	span.WithInt("collected", report.Collected).
		WithInt("uncollectable", report.Uncollectable).
		WithInt("promoted", report.TotalPromoted()).
		End("")
	return report, nil
}

// callbackList copies the registered callbacks in registration order.
// Callers hold c.mu.
func (c *Collector) callbackList() []CollectCallback {
	if len(c.callbacks) == 0 {
		return nil
	}
	out := make([]CollectCallback, 0, len(c.callbacks))
	for id := 1; id <= c.callbackID; id++ {
		if cb, ok := c.callbacks[id]; ok {
			out = append(out, cb)
		}
	}
	return out
}

func runCallbacks(cbs []CollectCallback, phase Phase, info CollectInfo) {
	for _, cb := range cbs {
		cb(phase, info)
	}
}
