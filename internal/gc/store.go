package gc

import (
	"maps"
	"slices"
	"strconv"

	"gengc/internal/trace"
)

// Track registers id in generation 0 with refcount 0 and no finalizer, and
// advances the generation-0 counter. Tracking an identity twice fails with
// ErrAlreadyTracked and leaves the existing header untouched.
func (c *Collector) Track(id ID, typeTag string, size int) error {
	if id == 0 {
		return opError(ErrNullID, "track", id)
	}
	if size < 0 {
		return opError(ErrInvalidSize, "track", id)
	}
	typeTag = normalizeTypeTag(typeTag)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.headers[id]; ok {
		return opError(ErrAlreadyTracked, "track", id)
	}
	c.seq++
	c.headers[id] = &header{
		typeTag:  typeTag,
		size:     size,
		trackSeq: c.seq,
	}
	c.gens[0].add(id)
	c.thr.count[0]++
	trace.Point(c.tracer, trace.ScopeObject, "track", typeTag+" "+id.String(), 0)
	return nil
}

// Untrack forgets id: its header, generation membership, garbage-set
// membership and recorded references all go. No finalization is deferred.
func (c *Collector) Untrack(id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.mutable("untrack", id)
	if err != nil {
		return err
	}
	c.forget(id, h)
	trace.Point(c.tracer, trace.ScopeObject, "untrack", h.typeTag+" "+id.String(), 0)
	return nil
}

// forget removes every trace of id. Callers hold c.mu.
func (c *Collector) forget(id ID, h *header) {
	c.gens[h.generation].remove(id)
	if h.inGarbage {
		c.garbage.remove(id)
	}
	c.edges.drop(id)
	delete(c.headers, id)
}

// mutable looks up a header a mutator may change. Callers hold c.mu.
func (c *Collector) mutable(op string, id ID) (*header, error) {
	h, ok := c.headers[id]
	if !ok {
		return nil, opError(ErrNotTracked, op, id)
	}
	if h.scanning {
		return nil, opError(ErrCollectionInProgress, op, id)
	}
	return h, nil
}

func (c *Collector) lookup(op string, id ID) (*header, error) {
	h, ok := c.headers[id]
	if !ok {
		return nil, opError(ErrNotTracked, op, id)
	}
	return h, nil
}

// IsTracked reports whether id is registered.
func (c *Collector) IsTracked(id ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.headers[id]
	return ok
}

// SetRefcount stores the host's current reference count for id.
func (c *Collector) SetRefcount(id ID, n int) error {
	if n < 0 {
		return opError(ErrNegativeRefcount, "set refcount", id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.mutable("set refcount", id)
	if err != nil {
		return err
	}
	h.refcount = n
	return nil
}

// Refcount returns the mirrored reference count of id.
func (c *Collector) Refcount(id ID) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, err := c.lookup("get refcount", id)
	if err != nil {
		return 0, err
	}
	return h.refcount, nil
}

// SetFinalizer records whether id carries a legacy finalizer.
func (c *Collector) SetFinalizer(id ID, has bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.mutable("set finalizer", id)
	if err != nil {
		return err
	}
	h.finalizer = has
	return nil
}

// HasFinalizer reports whether id carries a finalizer; unknown ids answer
// false.
func (c *Collector) HasFinalizer(id ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.headers[id]
	return ok && h.finalizer
}

// Size returns the approximate size the host reported for id.
func (c *Collector) Size(id ID) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, err := c.lookup("get size", id)
	if err != nil {
		return 0, err
	}
	return h.size, nil
}

// TypeName returns the type tag of id.
func (c *Collector) TypeName(id ID) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, err := c.lookup("get type", id)
	if err != nil {
		return "", err
	}
	return h.typeTag, nil
}

// Info returns a copy of the metadata of id.
func (c *Collector) Info(id ID) (Info, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, err := c.lookup("get info", id)
	if err != nil {
		return Info{}, err
	}
	return h.info(id), nil
}

// AddReference records that from holds a reference to to. Only the
// ReachabilityEdges strategy consults recorded references.
func (c *Collector) AddReference(from, to ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.mutable("add reference", from); err != nil {
		return err
	}
	if _, err := c.mutable("add reference", to); err != nil {
		return err
	}
	c.edges.add(from, to)
	return nil
}

// RemoveReference drops one recorded reference from from to to. Removing a
// reference that was never recorded is not an error.
func (c *Collector) RemoveReference(from, to ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.mutable("remove reference", from); err != nil {
		return err
	}
	if _, err := c.mutable("remove reference", to); err != nil {
		return err
	}
	c.edges.remove(from, to)
	return nil
}

// References returns the number of recorded references.
func (c *Collector) References() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.edges.count()
}

// Referents returns the distinct objects id holds a recorded reference to,
// in ascending identity order.
func (c *Collector) Referents(id ID) ([]ID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, err := c.lookup("referents", id); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(c.edges.out[id])), nil
}

// Referrers returns the distinct objects holding a recorded reference to id,
// in ascending identity order.
func (c *Collector) Referrers(id ID) ([]ID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, err := c.lookup("referrers", id); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(c.edges.in[id])), nil
}

// Objects returns the identities in gen in insertion order; gen -1 returns
// every tracked identity, youngest generation first.
func (c *Collector) Objects(gen int) ([]ID, error) {
	if gen != -1 && !validGeneration(gen) {
		return nil, genError("objects", gen)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if gen >= 0 {
		return c.gens[gen].ids(), nil
	}
	out := make([]ID, 0, len(c.headers))
	for g := range c.gens {
		out = append(out, c.gens[g].ids()...)
	}
	return out, nil
}

// Garbage returns the garbage set in the order objects entered it.
func (c *Collector) Garbage() []ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.garbage.ids()
}

// IsUncollectable reports whether id sits in the garbage set.
func (c *Collector) IsUncollectable(id ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.garbage.contains(id)
}

// MarkUncollectable moves id into the garbage set as if a pass had found it
// unreachable with a finalizer. It stays tracked and is skipped by later
// passes until unmarked or cleared. Marking twice is a no-op.
func (c *Collector) MarkUncollectable(id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.mutable("mark uncollectable", id)
	if err != nil {
		return err
	}
	if !h.inGarbage {
		h.inGarbage = true
		c.garbage.add(id)
	}
	return nil
}

// UnmarkUncollectable takes id out of the garbage set so later passes
// consider it again. Unmarking an object outside the set is a no-op.
func (c *Collector) UnmarkUncollectable(id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.mutable("unmark uncollectable", id)
	if err != nil {
		return err
	}
	if h.inGarbage {
		h.inGarbage = false
		c.garbage.remove(id)
	}
	return nil
}

// ClearGarbage empties the garbage set. Its members stay tracked and take
// part in later collections again. It returns how many were released.
func (c *Collector) ClearGarbage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.garbage.ids()
	for _, id := range ids {
		if h, ok := c.headers[id]; ok {
			h.inGarbage = false
		}
	}
	c.garbage.reset()
	trace.Point(c.tracer, trace.ScopeEngine, "clear-garbage", strconv.Itoa(len(ids)), 0)
	return len(ids)
}
