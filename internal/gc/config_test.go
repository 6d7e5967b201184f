package gc_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gengc/internal/gc"
	"gengc/internal/trace"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := gc.ParseConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Thresholds != gc.DefaultThresholds || cfg.Disabled || cfg.Debug != 0 {
		t.Fatalf("empty document changed defaults: %+v", cfg)
	}
	if cfg.Reachability != gc.ReachabilityMirrored {
		t.Fatalf("reachability = %q", cfg.Reachability)
	}
}

func TestParseConfigSections(t *testing.T) {
	doc := `
enabled = false
reachability = "edges"

[thresholds]
gen0 = 50
gen2 = 3

[debug]
flags = "stats|leak"
output = "discard"

[trace]
level = "detail"
mode = "ring"
`
	cfg, err := gc.ParseConfig(doc)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Thresholds != [3]int{50, 10, 3} {
		t.Fatalf("thresholds = %v", cfg.Thresholds)
	}
	if !cfg.Disabled || cfg.Reachability != gc.ReachabilityEdges {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Debug != gc.FlagStats|gc.FlagLeak {
		t.Fatalf("debug = %s", cfg.Debug)
	}
	if cfg.DebugOutput != io.Discard {
		t.Fatal("debug output not discarded")
	}
	if _, ok := cfg.Tracer.(*trace.RingTracer); !ok || cfg.Tracer.Level() != trace.LevelDetail {
		t.Fatalf("tracer = %T", cfg.Tracer)
	}

	c, err := gc.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if c.Enabled() || c.DebugFlags() != gc.FlagStats|gc.FlagLeak {
		t.Fatalf("collector ignored config: %s", c.StateString())
	}
}

func TestParseConfigRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":        "[thresholds]\ngen3 = 1\n",
		"negative threshold": "[thresholds]\ngen1 = -1\n",
		"bad flag":           "[debug]\nflags = \"loud\"\n",
		"bad output":         "[debug]\noutput = \"/tmp/x\"\n",
		"bad reachability":   "reachability = \"psychic\"\n",
		"bad trace level":    "[trace]\nlevel = \"verbose\"\n",
		"not toml":           "thresholds = [",
	}
	for name, doc := range cases {
		if _, err := gc.ParseConfig(doc); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestLoadConfigNamesTheFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gengc.toml")
	if err := os.WriteFile(path, []byte("[thresholds]\ngen0 = \"many\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := gc.LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("err = %v", err)
	}

	if err := os.WriteFile(path, []byte("[thresholds]\ngen0 = 5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := gc.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Thresholds[0] != 5 {
		t.Fatalf("gen0 = %d", cfg.Thresholds[0])
	}
}
