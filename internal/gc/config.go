package gc

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"gengc/internal/trace"
)

// fileConfig mirrors the TOML configuration file:
//
//	enabled = true
//	reachability = "mirrored"
//
//	[thresholds]
//	gen0 = 700
//	gen1 = 10
//	gen2 = 10
//
//	[debug]
//	flags = "stats|uncollectable"
//	output = "stderr"
//
//	[trace]
//	level = "phase"
//	mode = "stream"
//	format = "ndjson"
//	output = "gc.ndjson"
type fileConfig struct {
	Enabled      *bool            `toml:"enabled"`
	Reachability string           `toml:"reachability"`
	Thresholds   thresholdsConfig `toml:"thresholds"`
	Debug        debugConfig      `toml:"debug"`
	Trace        traceConfig      `toml:"trace"`
}

type thresholdsConfig struct {
	Gen0 int `toml:"gen0"`
	Gen1 int `toml:"gen1"`
	Gen2 int `toml:"gen2"`
}

type debugConfig struct {
	Flags  string `toml:"flags"`
	Output string `toml:"output"`
}

type traceConfig struct {
	Level    string `toml:"level"`
	Mode     string `toml:"mode"`
	Format   string `toml:"format"`
	Output   string `toml:"output"`
	RingSize int    `toml:"ring_size"`
}

// LoadConfig reads a TOML configuration file. Keys that are absent keep
// their DefaultConfig values; unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	var fc fileConfig
	meta, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	cfg, err := fc.resolve(meta)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig is LoadConfig for an in-memory document.
func ParseConfig(data string) (Config, error) {
	var fc fileConfig
	meta, err := toml.Decode(data, &fc)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return fc.resolve(meta)
}

func (fc *fileConfig) resolve(meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}

	cfg := DefaultConfig()
	if fc.Enabled != nil {
		cfg.Disabled = !*fc.Enabled
	}
	if meta.IsDefined("reachability") {
		if _, err := NewReachability(fc.Reachability); err != nil {
			return Config{}, err
		}
		cfg.Reachability = fc.Reachability
	}

	for gen, key := range []string{"gen0", "gen1", "gen2"} {
		if !meta.IsDefined("thresholds", key) {
			continue
		}
		v := [...]int{fc.Thresholds.Gen0, fc.Thresholds.Gen1, fc.Thresholds.Gen2}[gen]
		if v < 0 {
			return Config{}, fmt.Errorf("[thresholds].%s must not be negative, got %d", key, v)
		}
		cfg.Thresholds[gen] = v
	}

	flags, err := ParseFlags(fc.Debug.Flags)
	if err != nil {
		return Config{}, fmt.Errorf("[debug].flags: %w", err)
	}
	cfg.Debug = flags
	if cfg.DebugOutput, err = debugWriter(fc.Debug.Output); err != nil {
		return Config{}, err
	}

	if meta.IsDefined("trace") {
		tracer, err := fc.Trace.build()
		if err != nil {
			return Config{}, fmt.Errorf("[trace]: %w", err)
		}
		cfg.Tracer = tracer
	}
	return cfg, nil
}

func debugWriter(name string) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	case "discard", "none":
		return io.Discard, nil
	default:
		return nil, fmt.Errorf("[debug].output must be stderr|stdout|discard, got %q", name)
	}
}

func (tc traceConfig) build() (trace.Tracer, error) {
	tcfg := trace.Config{
		Level:      trace.LevelOff,
		Mode:       trace.ModeStream,
		OutputPath: tc.Output,
		RingSize:   tc.RingSize,
	}
	var err error
	if tc.Level != "" {
		if tcfg.Level, err = trace.ParseLevel(tc.Level); err != nil {
			return nil, err
		}
	}
	if tc.Mode != "" {
		if tcfg.Mode, err = trace.ParseMode(tc.Mode); err != nil {
			return nil, err
		}
	}
	if tc.Format != "" {
		if tcfg.Format, err = trace.ParseFormat(tc.Format); err != nil {
			return nil, err
		}
	}
	return trace.New(tcfg)
}
