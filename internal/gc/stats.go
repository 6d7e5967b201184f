package gc

import "fmt"

// Stats is the summary hosts read through gengc_get_stats.
type Stats struct {
	TotalTracked     int                 `msgpack:"total_tracked"`
	GenerationCounts [NumGenerations]int `msgpack:"generation_counts"`
	Uncollectable    int                 `msgpack:"uncollectable"`
}

// Stats returns a consistent snapshot of the registry sizes.
func (c *Collector) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statsLocked()
}

func (c *Collector) statsLocked() Stats {
	s := Stats{
		TotalTracked:  len(c.headers),
		Uncollectable: c.garbage.len(),
	}
	for g := range c.gens {
		s.GenerationCounts[g] = c.gens[g].len()
	}
	return s
}

// StateString returns the one-line state summary.
func (c *Collector) StateString() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.statsLocked()
	return fmt.Sprintf("gc: enabled=%t collecting=%t tracked=%d gen0=%d gen1=%d gen2=%d uncollectable=%d thresholds=%s",
		c.enabled, c.collecting.Load(), s.TotalTracked,
		s.GenerationCounts[0], s.GenerationCounts[1], s.GenerationCounts[2],
		s.Uncollectable, thresholdString(c.thr.limit))
}

// Count returns the number of tracked objects.
func (c *Collector) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.headers)
}

// GenerationCount returns the number of objects in gen.
func (c *Collector) GenerationCount(gen int) (int, error) {
	if !validGeneration(gen) {
		return 0, genError("generation count", gen)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[gen].len(), nil
}

// CollectionCounts returns how many passes targeted each generation.
func (c *Collector) CollectionCounts() [NumGenerations]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collections
}

// TotalCollected returns the number of objects removed by every pass so far.
func (c *Collector) TotalCollected() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.collected
}

// LastReport returns the report of the most recent pass; ok is false before
// the first one.
func (c *Collector) LastReport() (CollectReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	done := c.collections[0]+c.collections[1]+c.collections[2] > 0
	return c.last, done
}
