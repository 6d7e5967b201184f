package gc

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// snapshotSchema is bumped whenever the Snapshot layout changes.
const snapshotSchema uint16 = 1

// ErrSnapshotSchema is returned when a snapshot was written by an
// incompatible version.
var ErrSnapshotSchema = errors.New("unsupported snapshot schema")

// Snapshot is a serialisable copy of a collector's registry.
type Snapshot struct {
	Schema       uint16              `msgpack:"schema"`
	Enabled      bool                `msgpack:"enabled"`
	Debug        Flags               `msgpack:"debug"`
	Reachability string              `msgpack:"reachability"`
	Thresholds   [NumGenerations]int `msgpack:"thresholds"`
	Counters     [NumGenerations]int `msgpack:"counters"`
	Collections  [NumGenerations]int `msgpack:"collections"`
	Collected    int                 `msgpack:"collected"`

	// Objects are listed generation by generation in scan order.
	Objects    []SnapshotObject `msgpack:"objects"`
	Garbage    []uint64         `msgpack:"garbage"`
	References []SnapshotEdge   `msgpack:"references"`
	Last       *CollectReport   `msgpack:"last,omitempty"`
}

// SnapshotObject is one tracked header.
type SnapshotObject struct {
	ID         uint64 `msgpack:"id"`
	Type       string `msgpack:"type"`
	Generation int    `msgpack:"gen"`
	Refcount   int    `msgpack:"refs"`
	Size       int    `msgpack:"size"`
	Finalizer  bool   `msgpack:"finalizer,omitempty"`
	InGarbage  bool   `msgpack:"garbage,omitempty"`
}

// SnapshotEdge is a recorded reference with its multiplicity.
type SnapshotEdge struct {
	From  uint64 `msgpack:"from"`
	To    uint64 `msgpack:"to"`
	Count int    `msgpack:"n"`
}

// Stats derives the registry summary of s.
func (s *Snapshot) Stats() Stats {
	st := Stats{TotalTracked: len(s.Objects), Uncollectable: len(s.Garbage)}
	for _, o := range s.Objects {
		if validGeneration(o.Generation) {
			st.GenerationCounts[o.Generation]++
		}
	}
	return st
}

// Snapshot copies the registry. It fails while a collection is admitted,
// since the copy would observe a half-finished pass.
func (c *Collector) Snapshot() (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.collecting.Load() {
		return nil, opError(ErrCollectionInProgress, "snapshot", 0)
	}
	s := &Snapshot{
		Schema:       snapshotSchema,
		Enabled:      c.enabled,
		Debug:        c.debug,
		Reachability: c.reach.Name(),
		Thresholds:   c.thr.limit,
		Counters:     c.thr.count,
		Collections:  c.collections,
		Collected:    c.collected,
		Objects:      make([]SnapshotObject, 0, len(c.headers)),
	}
	for g := range c.gens {
		for _, id := range c.gens[g].ids() {
			h := c.headers[id]
			s.Objects = append(s.Objects, SnapshotObject{
				ID:         uint64(id),
				Type:       h.typeTag,
				Generation: h.generation,
				Refcount:   h.refcount,
				Size:       h.size,
				Finalizer:  h.finalizer,
				InGarbage:  h.inGarbage,
			})
		}
	}
	for _, id := range c.garbage.ids() {
		s.Garbage = append(s.Garbage, uint64(id))
	}
	s.References = c.edges.list()
	if c.collections != [NumGenerations]int{} {
		last := c.last
		s.Last = &last
	}
	return s, nil
}

// Restore replaces the registry with s. Callbacks, the debug writer and the
// tracer are kept. s is validated first; on error nothing changes.
func (c *Collector) Restore(s *Snapshot) error {
	if s.Schema != snapshotSchema {
		return fmt.Errorf("restore: %w %d (want %d)", ErrSnapshotSchema, s.Schema, snapshotSchema)
	}
	reach, err := NewReachability(s.Reachability)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	for g := range NumGenerations {
		switch {
		case s.Thresholds[g] < 0:
			return internalError("restore", "generation %d has threshold %d", g, s.Thresholds[g])
		case s.Counters[g] < 0:
			return internalError("restore", "generation %d has counter %d", g, s.Counters[g])
		case s.Collections[g] < 0:
			return internalError("restore", "generation %d has collection count %d", g, s.Collections[g])
		}
	}
	if s.Collected < 0 {
		return internalError("restore", "collected total %d is negative", s.Collected)
	}
	headers := make(map[ID]*header, len(s.Objects))
	var gens [NumGenerations]idList
	for g := range gens {
		gens[g] = newIDList()
	}
	for i, o := range s.Objects {
		id := ID(o.ID)
		switch {
		case id == 0:
			return internalError("restore", "object %d has a null identity", i)
		case !validGeneration(o.Generation):
			return internalError("restore", "%s has generation %d", id, o.Generation)
		case o.Refcount < 0 || o.Size < 0:
			return internalError("restore", "%s has a negative count or size", id)
		}
		if _, dup := headers[id]; dup {
			return internalError("restore", "%s is listed twice", id)
		}
		headers[id] = &header{
			generation: o.Generation,
			refcount:   o.Refcount,
			finalizer:  o.Finalizer,
			inGarbage:  o.InGarbage,
			size:       o.Size,
			typeTag:    normalizeTypeTag(o.Type),
			trackSeq:   uint64(i + 1),
		}
		gens[o.Generation].add(id)
	}
	garbage := newIDList()
	for _, raw := range s.Garbage {
		id := ID(raw)
		h, ok := headers[id]
		if !ok || !h.inGarbage {
			return internalError("restore", "garbage entry %s is not a tracked garbage object", id)
		}
		garbage.add(id)
	}
	if garbage.len() != countGarbage(headers) {
		return internalError("restore", "garbage flags and garbage list disagree")
	}
	edges := newEdgeIndex()
	for _, e := range s.References {
		from, to := ID(e.From), ID(e.To)
		if headers[from] == nil || headers[to] == nil {
			return internalError("restore", "reference %s -> %s names an untracked object", from, to)
		}
		if e.Count <= 0 {
			return internalError("restore", "reference %s -> %s has multiplicity %d", from, to, e.Count)
		}
		for range e.Count {
			edges.add(from, to)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collecting.Load() {
		return opError(ErrCollectionInProgress, "restore", 0)
	}
	c.headers = headers
	c.gens = gens
	c.garbage = garbage
	c.edges = edges
	c.reach = reach
	c.thr = thresholdTable{limit: s.Thresholds, count: s.Counters}
	c.enabled = s.Enabled
	c.debug = s.Debug
	c.seq = uint64(len(s.Objects))
	c.collections = s.Collections
	c.collected = s.Collected
	c.last = CollectReport{}
	if s.Last != nil {
		c.last = *s.Last
	}
	return nil
}

func countGarbage(headers map[ID]*header) int {
	n := 0
	for _, h := range headers {
		if h.inGarbage {
			n++
		}
	}
	return n
}

// list returns every recorded reference sorted by (from, to).
func (e *edgeIndex) list() []SnapshotEdge {
	var out []SnapshotEdge
	for from, targets := range e.out {
		for to, n := range targets {
			out = append(out, SnapshotEdge{From: uint64(from), To: uint64(to), Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// EncodeSnapshot serialises s with msgpack.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot parses data written by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Schema != snapshotSchema {
		return nil, fmt.Errorf("decode snapshot: %w %d (want %d)", ErrSnapshotSchema, s.Schema, snapshotSchema)
	}
	return &s, nil
}

// WriteSnapshot encodes s to path. The file is written next to path and
// renamed into place, so readers never see a partial snapshot.
func WriteSnapshot(path string, s *Snapshot) error {
	data, err := EncodeSnapshot(s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".gengc-snapshot-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
