package gc

// DefaultThresholds are the per-generation thresholds a collector starts with.
var DefaultThresholds = [NumGenerations]int{700, 10, 10}

// thresholdTable holds the configured limits and the running counters.
// count[0] advances on Track; count[1] and count[2] advance by the number
// of objects promoted into that generation since it was last collected.
type thresholdTable struct {
	limit [NumGenerations]int
	count [NumGenerations]int

	// seen is count[0] as it stood when the running pass marked its scope.
	seen int
}

// mark remembers how many allocations the pass about to run accounts for.
func (t *thresholdTable) mark() {
	t.seen = t.count[0]
}

func (t *thresholdTable) due(gen int) bool {
	return t.count[gen] >= t.limit[gen]
}

// lowestDue returns the youngest generation whose counter reached its limit.
func (t *thresholdTable) lowestDue() (int, bool) {
	for gen := 0; gen < NumGenerations; gen++ {
		if t.due(gen) {
			return gen, true
		}
	}
	return 0, false
}

// settle discounts the allocations seen at mark time, resets the counters
// of generations 1..gen and credits promotions into the first generation
// outside the collected range. Tracks made while the pass ran stay counted.
func (t *thresholdTable) settle(gen int, promoted [NumGenerations]int) {
	t.count[0] = max(t.count[0]-t.seen, 0)
	t.seen = 0
	for g := 1; g <= gen; g++ {
		t.count[g] = 0
	}
	if next := gen + 1; next < NumGenerations {
		t.count[next] += promoted[next]
	}
}
