package gc

import "fmt"

// Reachability names understood by Config.Reachability.
const (
	ReachabilityMirrored = "mirrored"
	ReachabilityEdges    = "edges"
)

// ScanSet is what one collection pass hands to a Reachability strategy.
// All maps are keyed by the identities in IDs and are read-only.
type ScanSet struct {
	IDs       []ID        // in generation order, youngest first
	Refcounts map[ID]int  // mirrored counts snapshotted at pass start
	Finalizer map[ID]bool // finalizer flags
	Edges     map[ID][]ID // recorded references between members, with multiplicity
}

// Verdict is a strategy's answer for one ScanSet.
type Verdict struct {
	// Unreachable lists members not reachable from outside the set, in
	// ScanSet order.
	Unreachable []ID
	// Legacy marks unreachable members that must be kept in the garbage set
	// instead of being collected.
	Legacy map[ID]bool
}

// Reachability decides which members of a ScanSet are unreachable. It is the
// only place the engine reasons about liveness, so a strategy with real
// transitive closure can replace the refcount-based default without touching
// the rest of the collector.
type Reachability interface {
	Name() string
	Classify(s *ScanSet) Verdict
}

// NewReachability returns the strategy registered under name.
func NewReachability(name string) (Reachability, error) {
	switch name {
	case "", ReachabilityMirrored:
		return MirroredCounts{}, nil
	case ReachabilityEdges:
		return EdgeGraph{}, nil
	default:
		return nil, fmt.Errorf("unknown reachability strategy %q (expected %s|%s)", name, ReachabilityMirrored, ReachabilityEdges)
	}
}

// MirroredCounts trusts the host-reported count as already net of internal
// references: a member is unreachable exactly when its count is zero. Since
// it cannot see which unreachable objects hang off a finalizer, only the
// finalizer-bearing ones are kept.
type MirroredCounts struct{}

// Name implements Reachability.
func (MirroredCounts) Name() string { return ReachabilityMirrored }

// Classify implements Reachability.
func (MirroredCounts) Classify(s *ScanSet) Verdict {
	v := Verdict{Legacy: make(map[ID]bool)}
	for _, id := range s.IDs {
		if s.Refcounts[id] > 0 {
			continue
		}
		v.Unreachable = append(v.Unreachable, id)
		if s.Finalizer[id] {
			v.Legacy[id] = true
		}
	}
	return v
}

// EdgeGraph runs trial deletion over references the host recorded with
// AddReference: each member's count is reduced by its in-set referrers, the
// members left with a positive count are roots, and everything reachable from
// a root survives. Unreachable members reachable from an unreachable
// finalizer-bearing member are kept along with it.
type EdgeGraph struct{}

// Name implements Reachability.
func (EdgeGraph) Name() string { return ReachabilityEdges }

// Classify implements Reachability.
func (EdgeGraph) Classify(s *ScanSet) Verdict {
	working := make(map[ID]int, len(s.IDs))
	for _, id := range s.IDs {
		working[id] = s.Refcounts[id]
	}
	for _, from := range s.IDs {
		for _, to := range s.Edges[from] {
			if n, ok := working[to]; ok && n > 0 {
				working[to] = n - 1
			}
		}
	}

	reachable := make(map[ID]bool, len(s.IDs))
	var queue []ID
	for _, id := range s.IDs {
		if working[id] > 0 {
			reachable[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range s.Edges[cur] {
			if _, member := working[next]; !member || reachable[next] {
				continue
			}
			reachable[next] = true
			queue = append(queue, next)
		}
	}

	v := Verdict{Legacy: make(map[ID]bool)}
	for _, id := range s.IDs {
		if !reachable[id] {
			v.Unreachable = append(v.Unreachable, id)
		}
	}
	for _, id := range v.Unreachable {
		if !s.Finalizer[id] || v.Legacy[id] {
			continue
		}
		stack := []ID{id}
		v.Legacy[id] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, next := range s.Edges[cur] {
				if reachable[next] || v.Legacy[next] {
					continue
				}
				if _, member := working[next]; !member {
					continue
				}
				v.Legacy[next] = true
				stack = append(stack, next)
			}
		}
	}
	return v
}

// edgeIndex records host-declared references between tracked objects.
// Multiplicity matters: a container holding the same item twice contributes
// two internal references.
type edgeIndex struct {
	out map[ID]map[ID]int
	in  map[ID]map[ID]int
}

func newEdgeIndex() edgeIndex {
	return edgeIndex{out: make(map[ID]map[ID]int), in: make(map[ID]map[ID]int)}
}

func (e *edgeIndex) add(from, to ID) {
	if e.out[from] == nil {
		e.out[from] = make(map[ID]int)
	}
	if e.in[to] == nil {
		e.in[to] = make(map[ID]int)
	}
	e.out[from][to]++
	e.in[to][from]++
}

func (e *edgeIndex) remove(from, to ID) bool {
	n := e.out[from][to]
	if n == 0 {
		return false
	}
	if n == 1 {
		delete(e.out[from], to)
		delete(e.in[to], from)
		if len(e.out[from]) == 0 {
			delete(e.out, from)
		}
		if len(e.in[to]) == 0 {
			delete(e.in, to)
		}
		return true
	}
	e.out[from][to] = n - 1
	e.in[to][from] = n - 1
	return true
}

// drop forgets every reference from or to id.
func (e *edgeIndex) drop(id ID) {
	for to := range e.out[id] {
		delete(e.in[to], id)
		if len(e.in[to]) == 0 {
			delete(e.in, to)
		}
	}
	delete(e.out, id)
	for from := range e.in[id] {
		delete(e.out[from], id)
		if len(e.out[from]) == 0 {
			delete(e.out, from)
		}
	}
	delete(e.in, id)
}

func (e *edgeIndex) count() int {
	n := 0
	for _, targets := range e.out {
		for _, m := range targets {
			n += m
		}
	}
	return n
}

// restrict returns the edges whose both ends satisfy member, expanded by
// multiplicity.
func (e *edgeIndex) restrict(member func(ID) bool) map[ID][]ID {
	if len(e.out) == 0 {
		return nil
	}
	res := make(map[ID][]ID)
	for from, targets := range e.out {
		if !member(from) {
			continue
		}
		for to, m := range targets {
			if !member(to) {
				continue
			}
			for i := 0; i < m; i++ {
				res[from] = append(res[from], to)
			}
		}
	}
	return res
}
