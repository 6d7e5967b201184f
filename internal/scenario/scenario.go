// Package scenario loads scripted sequences of engine operations from TOML
// files and replays them against a fresh collector, checking the
// expectations written next to each step.
package scenario

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"gengc/internal/gc"
)

// Op names a step operation.
type Op string

const (
	OpTrack           Op = "track"
	OpUntrack         Op = "untrack"
	OpSetRefcount     Op = "set_refcount"
	OpSetFinalizer    Op = "set_finalizer"
	OpAddReference    Op = "add_reference"
	OpRemoveReference Op = "remove_reference"
	OpCollect         Op = "collect"
	OpCollectGen      Op = "collect_generation"
	OpCollectIfNeeded Op = "collect_if_needed"
	OpSetThreshold    Op = "set_threshold"
	OpEnable          Op = "enable"
	OpDisable         Op = "disable"
	OpClearGarbage    Op = "clear_garbage"
)

var knownOps = map[Op]bool{
	OpTrack: true, OpUntrack: true, OpSetRefcount: true, OpSetFinalizer: true,
	OpAddReference: true, OpRemoveReference: true, OpCollect: true, OpCollectGen: true,
	OpCollectIfNeeded: true, OpSetThreshold: true, OpEnable: true, OpDisable: true,
	OpClearGarbage: true,
}

// Scenario is one parsed scenario file.
type Scenario struct {
	Name   string `toml:"name"`
	Config Config `toml:"config"`
	Steps  []Step `toml:"step"`
	Path   string `toml:"-"`
}

// Config seeds the collector a scenario runs against.
type Config struct {
	Enabled      *bool  `toml:"enabled"`
	Thresholds   []int  `toml:"thresholds"`
	Reachability string `toml:"reachability"`
	Debug        string `toml:"debug"`
}

// Step is one operation plus what must hold after it.
type Step struct {
	Op         Op      `toml:"op"`
	ID         uint64  `toml:"id"`
	To         uint64  `toml:"to"`
	Type       string  `toml:"type"`
	Size       int64   `toml:"size"`
	Refcount   int     `toml:"refcount"`
	Finalizer  bool    `toml:"finalizer"`
	Generation int     `toml:"generation"`
	Value      int     `toml:"value"`
	Expect     *Expect `toml:"expect"`
}

// Expect lists the checks applied after a step. Absent fields are not
// checked.
type Expect struct {
	Collected     *int   `toml:"collected"`     // return value of a collect step
	Uncollectable *int   `toml:"uncollectable"` // garbage-set size
	Tracked       *int   `toml:"tracked"`       // registry size
	Generations   []int  `toml:"generations"`   // per-generation sizes
	Error         string `toml:"error"`         // expected error code, e.g. "not-tracked"
}

// Load reads and validates a scenario file. A scenario without a name is
// named after its file.
func Load(path string) (*Scenario, error) {
	var s Scenario
	meta, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if err := s.check(meta); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.Path = path
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &s, nil
}

// Parse is Load for an in-memory document.
func Parse(name, data string) (*Scenario, error) {
	var s Scenario
	meta, err := toml.Decode(data, &s)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", name, err)
	}
	if err := s.check(meta); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if s.Name == "" {
		s.Name = name
	}
	return &s, nil
}

func (s *Scenario) check(meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if len(s.Config.Thresholds) != 0 && len(s.Config.Thresholds) != gc.NumGenerations {
		return fmt.Errorf("[config].thresholds needs %d values, got %d", gc.NumGenerations, len(s.Config.Thresholds))
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("no [[step]] entries")
	}
	for i, st := range s.Steps {
		if !knownOps[st.Op] {
			return fmt.Errorf("step %d: unknown op %q", i+1, st.Op)
		}
		if st.Expect != nil && len(st.Expect.Generations) != 0 && len(st.Expect.Generations) != gc.NumGenerations {
			return fmt.Errorf("step %d: expect.generations needs %d values", i+1, gc.NumGenerations)
		}
	}
	return nil
}

// collectorConfig turns the [config] table into a gc.Config.
func (c Config) collectorConfig() (gc.Config, error) {
	cfg := gc.DefaultConfig()
	if c.Enabled != nil {
		cfg.Disabled = !*c.Enabled
	}
	if len(c.Thresholds) == gc.NumGenerations {
		copy(cfg.Thresholds[:], c.Thresholds)
	}
	if c.Reachability != "" {
		cfg.Reachability = c.Reachability
	}
	flags, err := gc.ParseFlags(c.Debug)
	if err != nil {
		return gc.Config{}, err
	}
	cfg.Debug = flags
	return cfg, nil
}
