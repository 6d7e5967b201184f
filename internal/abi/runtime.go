package abi

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"fortio.org/safecast"

	"gengc/internal/gc"
	"gengc/internal/trace"
)

// ConfigEnv names the environment variable holding the path of a TOML
// configuration file read by Init.
const ConfigEnv = "GENGC_CONFIG"

// Runtime owns at most one collector. The zero value is an uninitialised
// runtime.
type Runtime struct {
	mu       sync.RWMutex
	c        *gc.Collector
	tracer   trace.Tracer
	debugOut io.Writer

	lastCollected atomic.Int32
}

// Default is the instance behind the exported C functions.
var Default = &Runtime{}

// collector returns the live collector or nil.
func (r *Runtime) collector() *gc.Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.c
}

// Init creates the collector, replacing any previous one. The configuration
// file named by GENGC_CONFIG, if set, is applied; if it cannot be loaded the
// previous state is kept and StatusInternal is returned.
func (r *Runtime) Init() Status {
	cfg := gc.DefaultConfig()
	if path := os.Getenv(ConfigEnv); path != "" {
		loaded, err := gc.LoadConfig(path)
		if err != nil {
			return StatusInternal
		}
		cfg = loaded
	}
	return r.Start(cfg)
}

// Start is Init with an explicit configuration. The runtime takes ownership
// of cfg.Tracer: it is closed on failure, on Cleanup, or when a later Start
// replaces it.
func (r *Runtime) Start(cfg gc.Config) Status {
	c, err := gc.New(cfg)
	if err != nil {
		if cfg.Tracer != nil {
			_ = cfg.Tracer.Close()
		}
		return StatusInternal
	}
	debugOut := cfg.DebugOutput
	if debugOut == nil {
		debugOut = os.Stderr
	}

	r.mu.Lock()
	old := r.tracer
	r.c, r.tracer, r.debugOut = c, cfg.Tracer, debugOut
	r.mu.Unlock()
	r.lastCollected.Store(0)
	if old != nil && old != cfg.Tracer {
		_ = old.Close()
	}
	return StatusSuccess
}

// Cleanup drops the collector. It is a no-op when not initialised.
func (r *Runtime) Cleanup() Status {
	r.mu.Lock()
	tr := r.tracer
	r.c, r.tracer, r.debugOut = nil, nil, nil
	r.mu.Unlock()
	r.lastCollected.Store(0)
	if tr != nil {
		_ = tr.Close()
	}
	return StatusSuccess
}

// IsInitialized reports whether Init has run since the last Cleanup.
func (r *Runtime) IsInitialized() bool {
	return r.collector() != nil
}

func (r *Runtime) Enable() Status {
	c := r.collector()
	if c == nil {
		return StatusInternal
	}
	c.Enable()
	return StatusSuccess
}

func (r *Runtime) Disable() Status {
	c := r.collector()
	if c == nil {
		return StatusInternal
	}
	c.Disable()
	return StatusSuccess
}

func (r *Runtime) IsEnabled() bool {
	c := r.collector()
	return c != nil && c.Enabled()
}

// Track registers id with the default type tag and size 0.
func (r *Runtime) Track(id uintptr) Status {
	return r.TrackTyped(id, "", 0)
}

// TrackTyped registers id with a type name and an approximate size.
func (r *Runtime) TrackTyped(id uintptr, typeName string, size uint64) Status {
	c := r.collector()
	if c == nil || id == 0 {
		return StatusInternal
	}
	n, err := safecast.Conv[int](size)
	if err != nil {
		return StatusInternal
	}
	return StatusOf(c.Track(gc.ID(id), typeName, n))
}

func (r *Runtime) Untrack(id uintptr) Status {
	c := r.collector()
	if c == nil || id == 0 {
		return StatusInternal
	}
	return StatusOf(c.Untrack(gc.ID(id)))
}

func (r *Runtime) IsTracked(id uintptr) bool {
	c := r.collector()
	return c != nil && id != 0 && c.IsTracked(gc.ID(id))
}

// ObjectSize returns the size given at track time. It is 0 for an unknown
// id as well as for an object tracked with size 0; size_t has no room for a
// status, so callers that need to tell them apart check IsTracked.
func (r *Runtime) ObjectSize(id uintptr) uint64 {
	c := r.collector()
	if c == nil || id == 0 {
		return 0
	}
	n, err := c.Size(gc.ID(id))
	if err != nil {
		return 0
	}
	size, err := safecast.Conv[uint64](n)
	if err != nil {
		return 0
	}
	return size
}

// ObjectTypeName writes the type tag of id into buf.
func (r *Runtime) ObjectTypeName(id uintptr, buf []byte) Status {
	c := r.collector()
	if c == nil || id == 0 {
		fill(buf, "")
		return StatusInternal
	}
	name, err := c.TypeName(gc.ID(id))
	if err != nil {
		fill(buf, "")
		return StatusOf(err)
	}
	return fill(buf, name)
}

// TrackedInfo writes the one-line description of id into buf.
func (r *Runtime) TrackedInfo(id uintptr, buf []byte) Status {
	c := r.collector()
	if c == nil || id == 0 {
		fill(buf, "")
		return StatusInternal
	}
	info, err := c.Info(gc.ID(id))
	if err != nil {
		fill(buf, "")
		return StatusOf(err)
	}
	return fill(buf, info.String())
}

func (r *Runtime) SetFinalizer(id uintptr, has bool) Status {
	c := r.collector()
	if c == nil || id == 0 {
		return StatusInternal
	}
	return StatusOf(c.SetFinalizer(gc.ID(id), has))
}

func (r *Runtime) HasFinalizer(id uintptr) bool {
	c := r.collector()
	return c != nil && id != 0 && c.HasFinalizer(gc.ID(id))
}

func (r *Runtime) SetRefcount(id uintptr, n int64) Status {
	c := r.collector()
	if c == nil || id == 0 {
		return StatusInternal
	}
	v, err := safecast.Conv[int](n)
	if err != nil {
		return StatusInternal
	}
	return StatusOf(c.SetRefcount(gc.ID(id), v))
}

// Refcount returns the mirrored count of id. Counts are never negative, so
// failures come back as the negative status: NOT_TRACKED for an unknown id,
// INTERNAL when uninitialised or for a null id.
func (r *Runtime) Refcount(id uintptr) int64 {
	c := r.collector()
	if c == nil || id == 0 {
		return int64(StatusInternal)
	}
	n, err := c.Refcount(gc.ID(id))
	if err != nil {
		return int64(StatusOf(err))
	}
	return int64(n)
}

// RefcountChanged stores the new count and, once it reaches zero on an
// enabled collector, runs a threshold-driven collection. A collection that
// is already running is not an error here: the count was stored.
func (r *Runtime) RefcountChanged(id uintptr, n int64) Status {
	if st := r.SetRefcount(id, n); st != StatusSuccess {
		return st
	}
	c := r.collector()
	if n != 0 || c == nil || !c.Enabled() {
		return StatusSuccess
	}
	collected, err := c.CollectIfNeeded()
	if StatusOf(err) == StatusCollectionInProgress {
		return StatusSuccess
	}
	if err == nil {
		r.lastCollected.Store(count32(collected))
	}
	return StatusOf(err)
}

func (r *Runtime) AddReference(from, to uintptr) Status {
	c := r.collector()
	if c == nil || from == 0 || to == 0 {
		return StatusInternal
	}
	return StatusOf(c.AddReference(gc.ID(from), gc.ID(to)))
}

func (r *Runtime) RemoveReference(from, to uintptr) Status {
	c := r.collector()
	if c == nil || from == 0 || to == 0 {
		return StatusInternal
	}
	return StatusOf(c.RemoveReference(gc.ID(from), gc.ID(to)))
}

func (r *Runtime) SetThreshold(gen, value int32) Status {
	c := r.collector()
	if c == nil {
		return StatusInternal
	}
	return StatusOf(c.SetThreshold(int(gen), int(value)))
}

// Threshold returns the threshold of gen, or -1.
func (r *Runtime) Threshold(gen int32) int32 {
	c := r.collector()
	if c == nil {
		return -1
	}
	v, err := c.Threshold(int(gen))
	if err != nil {
		return -1
	}
	return count32(v)
}

func (r *Runtime) Collect() Status {
	return r.CollectGeneration(gc.NumGenerations - 1)
}

func (r *Runtime) CollectGeneration(gen int32) Status {
	c := r.collector()
	if c == nil {
		return StatusInternal
	}
	n, err := c.CollectGeneration(int(gen))
	if err == nil {
		r.lastCollected.Store(count32(n))
	}
	return StatusOf(err)
}

func (r *Runtime) CollectIfNeeded() Status {
	c := r.collector()
	if c == nil {
		return StatusInternal
	}
	n, err := c.CollectIfNeeded()
	if err == nil {
		r.lastCollected.Store(count32(n))
	}
	return StatusOf(err)
}

func (r *Runtime) NeedsCollection() bool {
	c := r.collector()
	return c != nil && c.NeedsCollection()
}

// LastCollected returns how many objects the most recent successful
// collection call removed, or -1 when not initialised.
func (r *Runtime) LastCollected() int32 {
	if !r.IsInitialized() {
		return -1
	}
	return r.lastCollected.Load()
}

// Stats fills out. out is left untouched on failure.
func (r *Runtime) Stats(out *Stats) Status {
	c := r.collector()
	if c == nil || out == nil {
		return StatusInternal
	}
	s, err := toStats(c.Stats())
	if err != nil {
		return StatusInternal
	}
	*out = s
	return StatusSuccess
}

// Count returns the number of tracked objects, or -1.
func (r *Runtime) Count() int32 {
	c := r.collector()
	if c == nil {
		return -1
	}
	return count32(c.Count())
}

// GenerationCount returns the size of gen, or -1.
func (r *Runtime) GenerationCount(gen int32) int32 {
	c := r.collector()
	if c == nil {
		return -1
	}
	n, err := c.GenerationCount(int(gen))
	if err != nil {
		return -1
	}
	return count32(n)
}

// UncollectableCount returns the size of the garbage set, or -1.
func (r *Runtime) UncollectableCount() int32 {
	c := r.collector()
	if c == nil {
		return -1
	}
	return count32(c.Stats().Uncollectable)
}

func (r *Runtime) IsUncollectable(id uintptr) bool {
	c := r.collector()
	return c != nil && id != 0 && c.IsUncollectable(gc.ID(id))
}

func (r *Runtime) MarkUncollectable(id uintptr) Status {
	c := r.collector()
	if c == nil || id == 0 {
		return StatusInternal
	}
	return StatusOf(c.MarkUncollectable(gc.ID(id)))
}

func (r *Runtime) UnmarkUncollectable(id uintptr) Status {
	c := r.collector()
	if c == nil || id == 0 {
		return StatusInternal
	}
	return StatusOf(c.UnmarkUncollectable(gc.ID(id)))
}

func (r *Runtime) ClearUncollectable() Status {
	c := r.collector()
	if c == nil {
		return StatusInternal
	}
	c.ClearGarbage()
	return StatusSuccess
}

// CollectionCount returns how many passes targeted gen, or -1.
func (r *Runtime) CollectionCount(gen int32) int32 {
	c := r.collector()
	if c == nil || gen < 0 || int(gen) >= gc.NumGenerations {
		return -1
	}
	return count32(c.CollectionCounts()[gen])
}

// StateString writes the one-line state summary into buf.
func (r *Runtime) StateString(buf []byte) Status {
	c := r.collector()
	if c == nil {
		fill(buf, "")
		return StatusInternal
	}
	return fill(buf, c.StateString())
}

// DebugState writes the verbose dump to the configured debug output.
func (r *Runtime) DebugState() Status {
	r.mu.RLock()
	c, w := r.c, r.debugOut
	r.mu.RUnlock()
	if c == nil {
		return StatusInternal
	}
	if err := c.DebugState(w); err != nil {
		return StatusInternal
	}
	return StatusSuccess
}

// SetDebugFlags replaces the debug flags; negative values are rejected.
func (r *Runtime) SetDebugFlags(flags int32) Status {
	c := r.collector()
	if c == nil {
		return StatusInternal
	}
	f, err := safecast.Conv[uint32](flags)
	if err != nil {
		return StatusInternal
	}
	c.SetDebugFlags(gc.Flags(f))
	return StatusSuccess
}

// DebugFlags returns the debug flags, or -1.
func (r *Runtime) DebugFlags() int32 {
	c := r.collector()
	if c == nil {
		return -1
	}
	f, err := safecast.Conv[int32](uint32(c.DebugFlags()))
	if err != nil {
		return -1
	}
	return f
}

// SaveSnapshot writes a msgpack snapshot of the registry to path.
func (r *Runtime) SaveSnapshot(path string) Status {
	c := r.collector()
	if c == nil || path == "" {
		return StatusInternal
	}
	snap, err := c.Snapshot()
	if err != nil {
		return StatusOf(err)
	}
	if err := gc.WriteSnapshot(path, snap); err != nil {
		return StatusInternal
	}
	return StatusSuccess
}

// LoadSnapshot replaces the registry with the snapshot stored at path.
// Callbacks, the debug writer and the tracer are kept. A file that cannot
// be read or that fails validation leaves the current state untouched.
func (r *Runtime) LoadSnapshot(path string) Status {
	c := r.collector()
	if c == nil || path == "" {
		return StatusInternal
	}
	snap, err := gc.ReadSnapshot(path)
	if err != nil {
		return StatusInternal
	}
	if err := c.Restore(snap); err != nil {
		return StatusOf(err)
	}
	r.lastCollected.Store(0)
	return StatusSuccess
}

// GetObjects writes the identities of gen into out; gen -1 lists every
// tracked object, youngest generation first. The count is always reported.
func (r *Runtime) GetObjects(gen int32, out []uintptr) (int, Status) {
	c := r.collector()
	if c == nil {
		return 0, StatusInternal
	}
	ids, err := c.Objects(int(gen))
	if err != nil {
		return 0, StatusOf(err)
	}
	return fillIDs(out, ids)
}

// GetGarbage writes the garbage set, in the order objects entered it.
func (r *Runtime) GetGarbage(out []uintptr) (int, Status) {
	c := r.collector()
	if c == nil {
		return 0, StatusInternal
	}
	return fillIDs(out, c.Garbage())
}

// GetReferents writes the objects id holds a recorded reference to.
func (r *Runtime) GetReferents(id uintptr, out []uintptr) (int, Status) {
	return r.neighbours(id, out, (*gc.Collector).Referents)
}

// GetReferrers writes the objects holding a recorded reference to id.
func (r *Runtime) GetReferrers(id uintptr, out []uintptr) (int, Status) {
	return r.neighbours(id, out, (*gc.Collector).Referrers)
}

func (r *Runtime) neighbours(id uintptr, out []uintptr, list func(*gc.Collector, gc.ID) ([]gc.ID, error)) (int, Status) {
	c := r.collector()
	if c == nil || id == 0 {
		return 0, StatusInternal
	}
	ids, err := list(c, gc.ID(id))
	if err != nil {
		return 0, StatusOf(err)
	}
	return fillIDs(out, ids)
}
