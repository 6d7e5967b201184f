package scenario_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"gengc/internal/gc"
	"gengc/internal/scenario"
	"gengc/internal/testkit"
	"gengc/internal/trace"
)

func load(t *testing.T, name string) *scenario.Scenario {
	t.Helper()
	s, err := scenario.Load(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return s
}

type recorder struct {
	mu     sync.Mutex
	events []scenario.Event
}

func (r *recorder) OnEvent(ev scenario.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func TestReplayTestdata(t *testing.T) {
	cases := []struct {
		file      string
		collected int
		stats     gc.Stats
	}{
		{"promote.toml", 0, gc.Stats{TotalTracked: 3, GenerationCounts: [3]int{0, 3, 0}}},
		{"finalizer.toml", 1, gc.Stats{TotalTracked: 1, GenerationCounts: [3]int{1, 0, 0}}},
		{"cycle.toml", 2, gc.Stats{}},
	}
	for _, tc := range cases {
		t.Run(tc.file, func(t *testing.T) {
			s := load(t, tc.file)
			var rec recorder
			res, err := scenario.Replay(context.Background(), s, &rec)
			if err != nil {
				t.Fatal(err)
			}
			if res.Collected != tc.collected || res.Stats != tc.stats {
				t.Fatalf("result = %+v", res)
			}
			if res.Steps != len(s.Steps) || res.Snapshot == nil {
				t.Fatalf("steps=%d snapshot=%v", res.Steps, res.Snapshot)
			}
			if err := testkit.CheckRegistryInvariants(res.Snapshot); err != nil {
				t.Fatalf("registry invariant: %v", err)
			}
			last := rec.events[len(rec.events)-1]
			if last.Status != scenario.StatusDone || len(rec.events) != len(s.Steps)+1 {
				t.Fatalf("events = %+v", rec.events)
			}
		})
	}
}

func TestReplayReportsFailingStep(t *testing.T) {
	s, err := scenario.Parse("broken", `
[[step]]
op = "track"
id = 5

[[step]]
op = "collect"
expect = { collected = 3 }
`)
	if err != nil {
		t.Fatal(err)
	}
	var rec recorder
	_, err = scenario.Replay(context.Background(), s, &rec)
	var serr *scenario.StepError
	if !errors.As(err, &serr) || serr.Step != 2 || serr.Op != scenario.OpCollect {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, scenario.ErrExpectation) {
		t.Fatalf("not an expectation failure: %v", err)
	}
	if last := rec.events[len(rec.events)-1]; last.Status != scenario.StatusError {
		t.Fatalf("last event = %+v", last)
	}
}

func TestReplayUnexpectedError(t *testing.T) {
	s, err := scenario.Parse("untrack", "[[step]]\nop = \"untrack\"\nid = 9\n")
	if err != nil {
		t.Fatal(err)
	}
	_, err = scenario.Replay(context.Background(), s, nil)
	if !errors.Is(err, gc.ErrNotTracked) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"no steps":         `name = "x"`,
		"unknown op":       "[[step]]\nop = \"explode\"\n",
		"unknown key":      "[[step]]\nop = \"collect\"\ncolour = 1\n",
		"short thresholds": "[config]\nthresholds = [1]\n[[step]]\nop = \"collect\"\n",
	}
	for name, doc := range cases {
		if _, err := scenario.Parse(name, doc); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestLoadNamesScenarioAfterFile(t *testing.T) {
	s, err := scenario.Parse("fallback", "[[step]]\nop = \"collect\"\n")
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "fallback" {
		t.Fatalf("name = %q", s.Name)
	}
}

func TestReplayAllKeepsOrderAndTraces(t *testing.T) {
	files := []string{"promote.toml", "finalizer.toml", "cycle.toml"}
	var all []*scenario.Scenario
	for _, f := range files {
		all = append(all, load(t, f))
	}
	ring := trace.NewRingTracer(1024, trace.LevelPhase)
	ctx := trace.WithTracer(context.Background(), ring)

	var rec recorder
	results, err := scenario.ReplayAll(ctx, all, 2, &rec)
	if err != nil {
		t.Fatal(err)
	}
	for i, res := range results {
		if res.Name != all[i].Name {
			t.Fatalf("results[%d] = %s, want %s", i, res.Name, all[i].Name)
		}
	}
	replays := 0
	for _, ev := range ring.Snapshot() {
		if ev.Kind == trace.KindSpanEnd && ev.Name == "replay" {
			replays++
		}
	}
	if replays != len(files) {
		t.Fatalf("replay spans = %d", replays)
	}
	queued := 0
	for _, ev := range rec.events {
		if ev.Status == scenario.StatusQueued {
			queued++
		}
	}
	if queued != len(files) {
		t.Fatalf("queued events = %d", queued)
	}
}

func TestReplayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := scenario.Replay(ctx, load(t, "promote.toml"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
