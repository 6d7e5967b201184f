// Package testkit checks structural invariants of a collector registry.
package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"gengc/internal/gc"
)

// CheckRegistryInvariants verifies a snapshot of a quiescent collector:
//  1. every object has a non-null identity that fits a host pointer, sits in
//     exactly one generation and has no negative counts;
//  2. the garbage list names exactly the objects flagged as garbage;
//  3. every recorded reference joins two tracked objects with a positive
//     multiplicity;
//  4. counters and collection counts are non-negative.
func CheckRegistryInvariants(s *gc.Snapshot) error {
	if s == nil {
		return fmt.Errorf("nil snapshot")
	}
	tracked := make(map[uint64]gc.SnapshotObject, len(s.Objects))
	flagged := 0
	for _, o := range s.Objects {
		if o.ID == 0 {
			return fmt.Errorf("object with null identity")
		}
		if _, err := safecast.Conv[uintptr](o.ID); err != nil {
			return fmt.Errorf("object %#x: identity overflow: %w", o.ID, err)
		}
		if _, dup := tracked[o.ID]; dup {
			return fmt.Errorf("object %#x listed twice", o.ID)
		}
		if o.Generation < 0 || o.Generation >= gc.NumGenerations {
			return fmt.Errorf("object %#x: generation %d out of range", o.ID, o.Generation)
		}
		if o.Refcount < 0 || o.Size < 0 {
			return fmt.Errorf("object %#x: negative refcount or size", o.ID)
		}
		if o.InGarbage {
			flagged++
		}
		tracked[o.ID] = o
	}

	seen := make(map[uint64]bool, len(s.Garbage))
	for _, id := range s.Garbage {
		o, ok := tracked[id]
		if !ok {
			return fmt.Errorf("garbage %#x is not tracked", id)
		}
		if !o.InGarbage {
			return fmt.Errorf("garbage %#x is not flagged", id)
		}
		if seen[id] {
			return fmt.Errorf("garbage %#x listed twice", id)
		}
		seen[id] = true
	}
	if len(seen) != flagged {
		return fmt.Errorf("garbage list has %d entries, %d objects flagged", len(seen), flagged)
	}

	for _, e := range s.References {
		if _, ok := tracked[e.From]; !ok {
			return fmt.Errorf("reference %#x -> %#x: source not tracked", e.From, e.To)
		}
		if _, ok := tracked[e.To]; !ok {
			return fmt.Errorf("reference %#x -> %#x: target not tracked", e.From, e.To)
		}
		if e.Count <= 0 {
			return fmt.Errorf("reference %#x -> %#x: multiplicity %d", e.From, e.To, e.Count)
		}
	}

	for g := 0; g < gc.NumGenerations; g++ {
		if s.Counters[g] < 0 || s.Collections[g] < 0 {
			return fmt.Errorf("generation %d: negative counter or collection count", g)
		}
	}
	if s.Collected < 0 {
		return fmt.Errorf("negative collected total %d", s.Collected)
	}
	return nil
}
