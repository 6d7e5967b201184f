package gc

import (
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"gengc/internal/trace"
)

// Config configures a Collector.
type Config struct {
	Thresholds   [NumGenerations]int
	Debug        Flags
	Disabled     bool      // start with automatic collection off
	Reachability string    // ReachabilityMirrored (default) or ReachabilityEdges
	DebugOutput  io.Writer // where debug-flag output goes; os.Stderr if nil
	Tracer       trace.Tracer
}

// DefaultConfig returns the configuration a fresh process starts with.
func DefaultConfig() Config {
	return Config{
		Thresholds:   DefaultThresholds,
		Reachability: ReachabilityMirrored,
	}
}

// Phase tells a CollectCallback which side of a pass it is called on.
type Phase uint8

const (
	PhaseStart Phase = iota + 1
	PhaseStop
)

// String returns "start" or "stop".
func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseStop:
		return "stop"
	default:
		return "unknown"
	}
}

// CollectInfo describes the pass a callback is called for. Collected,
// Uncollectable and Promoted are zero at PhaseStart.
type CollectInfo struct {
	Generation    int
	Collected     int
	Uncollectable int
	Promoted      int
}

// CollectCallback observes collections. It runs on the collecting goroutine
// without the collector lock held, so it may call back into the Collector;
// a nested Collect fails with ErrCollectionInProgress and mutations of
// objects under scan are refused.
type CollectCallback func(Phase, CollectInfo)

// Collector is the engine handle. The zero value is not usable; use New.
type Collector struct {
	mu         sync.RWMutex
	collecting atomic.Bool

	headers map[ID]*header
	gens    [NumGenerations]idList
	garbage idList
	edges   edgeIndex
	thr     thresholdTable
	reach   Reachability
	seq     uint64

	enabled  bool
	debug    Flags
	debugOut io.Writer
	pending  []string // debug lines produced under the lock, written after it
	tracer   trace.Tracer

	callbacks  map[int]CollectCallback
	callbackID int

	collections [NumGenerations]int
	collected   int
	last        CollectReport
}

// New creates a Collector from cfg.
func New(cfg Config) (*Collector, error) {
	for gen, v := range cfg.Thresholds {
		if v < 0 {
			e := opError(ErrInvalidThreshold, "new", 0)
			e.Gen = gen
			return nil, e
		}
	}
	reach, err := NewReachability(cfg.Reachability)
	if err != nil {
		return nil, err
	}
	c := &Collector{
		headers:   make(map[ID]*header),
		garbage:   newIDList(),
		edges:     newEdgeIndex(),
		thr:       thresholdTable{limit: cfg.Thresholds},
		reach:     reach,
		enabled:   !cfg.Disabled,
		debug:     cfg.Debug,
		debugOut:  cfg.DebugOutput,
		tracer:    cfg.Tracer,
		callbacks: make(map[int]CollectCallback),
	}
	for gen := range c.gens {
		c.gens[gen] = newIDList()
	}
	if c.debugOut == nil {
		c.debugOut = os.Stderr
	}
	if c.tracer == nil {
		c.tracer = trace.Nop
	}
	span := trace.Begin(c.tracer, trace.ScopeEngine, "init", 0)
	span.WithExtra("reachability", reach.Name()).
		WithExtra("thresholds", thresholdString(c.thr.limit)).
		End("")
	return c, nil
}

// Enable turns automatic collection on.
func (c *Collector) Enable() {
	c.mu.Lock()
	c.enabled = true
	c.mu.Unlock()
}

// Disable turns automatic collection off. Explicit Collect calls still run.
func (c *Collector) Disable() {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
}

// Enabled reports whether automatic collection is on.
func (c *Collector) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Collecting reports whether a collection is currently admitted.
func (c *Collector) Collecting() bool {
	return c.collecting.Load()
}

// SetDebugFlags replaces the debug flag set.
func (c *Collector) SetDebugFlags(f Flags) {
	c.mu.Lock()
	c.debug = f
	c.mu.Unlock()
}

// DebugFlags returns the current debug flag set.
func (c *Collector) DebugFlags() Flags {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.debug
}

// SetDebugOutput redirects debug-flag output; nil restores os.Stderr.
func (c *Collector) SetDebugOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	c.mu.Lock()
	c.debugOut = w
	c.mu.Unlock()
}

// ReachabilityName returns the name of the active strategy.
func (c *Collector) ReachabilityName() string {
	return c.reach.Name()
}

// OnCollect registers cb for every subsequent pass and returns a function
// that unregisters it.
func (c *Collector) OnCollect(cb CollectCallback) (remove func()) {
	c.mu.Lock()
	c.callbackID++
	id := c.callbackID
	c.callbacks[id] = cb
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.callbacks, id)
		c.mu.Unlock()
	}
}

// SetThreshold sets the collection threshold of gen. Zero means the
// generation is always due.
func (c *Collector) SetThreshold(gen, value int) error {
	if !validGeneration(gen) {
		return genError("set threshold", gen)
	}
	if value < 0 {
		e := opError(ErrInvalidThreshold, "set threshold", 0)
		e.Gen = gen
		return e
	}
	c.mu.Lock()
	c.thr.limit[gen] = value
	c.mu.Unlock()
	return nil
}

// Threshold returns the collection threshold of gen.
func (c *Collector) Threshold(gen int) (int, error) {
	if !validGeneration(gen) {
		return 0, genError("get threshold", gen)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.thr.limit[gen], nil
}

// Thresholds returns all three thresholds.
func (c *Collector) Thresholds() [NumGenerations]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.thr.limit
}

// Counters returns the running per-generation counters.
func (c *Collector) Counters() [NumGenerations]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.thr.count
}

// NeedsCollection reports whether any generation's counter has reached its
// threshold.
func (c *Collector) NeedsCollection() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, due := c.thr.lowestDue()
	return due
}

func thresholdString(t [NumGenerations]int) string {
	return strconv.Itoa(t[0]) + "/" + strconv.Itoa(t[1]) + "/" + strconv.Itoa(t[2])
}
