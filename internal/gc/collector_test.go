package gc_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"gengc/internal/gc"
)

func newCollector(t *testing.T) *gc.Collector {
	t.Helper()
	c, err := gc.New(gc.DefaultConfig())
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	return c
}

func mustTrack(t *testing.T, c *gc.Collector, id gc.ID, refs int) {
	t.Helper()
	if err := c.Track(id, "", 0); err != nil {
		t.Fatalf("track %s: %v", id, err)
	}
	if refs != 0 {
		if err := c.SetRefcount(id, refs); err != nil {
			t.Fatalf("set refcount %s: %v", id, err)
		}
	}
}

func mustCollect(t *testing.T, c *gc.Collector, gen int) int {
	t.Helper()
	n, err := c.CollectGeneration(gen)
	if err != nil {
		t.Fatalf("collect generation %d: %v", gen, err)
	}
	return n
}

func TestTrackUntrackNetEffect(t *testing.T) {
	c := newCollector(t)
	ops := []struct {
		track bool
		id    gc.ID
		want  error
	}{
		{true, 1, nil},
		{true, 2, nil},
		{true, 1, gc.ErrAlreadyTracked},
		{false, 1, nil},
		{false, 1, gc.ErrNotTracked},
		{true, 1, nil},
		{false, 3, gc.ErrNotTracked},
	}
	live := map[gc.ID]bool{}
	for i, op := range ops {
		var err error
		if op.track {
			err = c.Track(op.id, "node", 8)
		} else {
			err = c.Untrack(op.id)
		}
		if !errors.Is(err, op.want) || (op.want == nil && err != nil) {
			t.Fatalf("step %d: got %v, want %v", i, err, op.want)
		}
		if err == nil {
			live[op.id] = op.track
		}
		for _, id := range []gc.ID{1, 2, 3} {
			if got := c.IsTracked(id); got != live[id] {
				t.Fatalf("step %d: IsTracked(%s)=%v, want %v", i, id, got, live[id])
			}
		}
	}
	if got := c.Count(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
}

func TestTrackTwiceKeepsGeneration(t *testing.T) {
	c := newCollector(t)
	mustTrack(t, c, 7, 1)
	mustCollect(t, c, 0)

	err := c.Track(7, "other", 99)
	if !errors.Is(err, gc.ErrAlreadyTracked) {
		t.Fatalf("second track: %v", err)
	}
	if gc.CodeOf(err) != gc.CodeAlreadyTracked {
		t.Fatalf("code = %v", gc.CodeOf(err))
	}
	info, err := c.Info(7)
	if err != nil {
		t.Fatal(err)
	}
	if info.Generation != 1 || info.Refcount != 1 || info.TypeTag != gc.DefaultTypeTag {
		t.Fatalf("header changed by failed track: %+v", info)
	}
}

func TestFreshHeader(t *testing.T) {
	c := newCollector(t)
	if err := c.Track(0x2a, "list", 64); err != nil {
		t.Fatal(err)
	}
	info, err := c.Info(0x2a)
	if err != nil {
		t.Fatal(err)
	}
	if info.Generation != 0 || info.Refcount != 0 || info.Finalizer || info.InGarbage {
		t.Fatalf("unexpected fresh header: %+v", info)
	}
	if c.HasFinalizer(0x2a) {
		t.Fatal("fresh header has a finalizer")
	}
	want := "Object: list (ID: 0x2a, Gen: 0, Refs: 0, Size: 64, Finalizer: false, Garbage: false)"
	if got := info.String(); got != want {
		t.Fatalf("info string:\n got %q\nwant %q", got, want)
	}
	if size, _ := c.Size(0x2a); size != 64 {
		t.Fatalf("size = %d", size)
	}
}

func TestTypeTagNormalisation(t *testing.T) {
	c := newCollector(t)
	if err := c.Track(1, "  cafe\u0301 ", 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Track(2, "   ", 0); err != nil {
		t.Fatal(err)
	}
	if name, _ := c.TypeName(1); name != "caf\u00e9" {
		t.Fatalf("type name = %q", name)
	}
	if name, _ := c.TypeName(2); name != gc.DefaultTypeTag {
		t.Fatalf("blank type name = %q", name)
	}
}

func TestInvalidArguments(t *testing.T) {
	c := newCollector(t)
	mustTrack(t, c, 1, 0)

	cases := []struct {
		name string
		err  error
		want error
		code gc.Code
	}{
		{"null id", c.Track(0, "", 0), gc.ErrNullID, gc.CodeInternal},
		{"negative size", c.Track(2, "", -1), gc.ErrInvalidSize, gc.CodeInternal},
		{"negative refcount", c.SetRefcount(1, -1), gc.ErrNegativeRefcount, gc.CodeInternal},
		{"negative threshold", c.SetThreshold(0, -5), gc.ErrInvalidThreshold, gc.CodeInternal},
		{"unknown refcount", c.SetRefcount(9, 1), gc.ErrNotTracked, gc.CodeNotTracked},
		{"unknown finalizer", c.SetFinalizer(9, true), gc.ErrNotTracked, gc.CodeNotTracked},
	}
	for _, tc := range cases {
		if !errors.Is(tc.err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, tc.err, tc.want)
		}
		if got := gc.CodeOf(tc.err); got != tc.code {
			t.Errorf("%s: code %v, want %v", tc.name, got, tc.code)
		}
	}
	if errors.Is(c.Track(0, "", 0), gc.ErrNegativeRefcount) {
		t.Fatal("distinct internal sentinels must not match each other")
	}
	if rc, _ := c.Refcount(1); rc != 0 {
		t.Fatalf("failed SetRefcount changed the count to %d", rc)
	}
}

func TestThresholdRoundTrip(t *testing.T) {
	c := newCollector(t)
	for gen, def := range gc.DefaultThresholds {
		got, err := c.Threshold(gen)
		if err != nil || got != def {
			t.Fatalf("default threshold %d = %d, %v", gen, got, err)
		}
		if err := c.SetThreshold(gen, 42+gen); err != nil {
			t.Fatal(err)
		}
		if got, _ := c.Threshold(gen); got != 42+gen {
			t.Fatalf("threshold %d = %d after set", gen, got)
		}
	}
	for _, gen := range []int{-1, 3} {
		if err := c.SetThreshold(gen, 1); !errors.Is(err, gc.ErrInvalidGeneration) {
			t.Fatalf("SetThreshold(%d): %v", gen, err)
		}
		if _, err := c.Threshold(gen); !errors.Is(err, gc.ErrInvalidGeneration) {
			t.Fatalf("Threshold(%d): %v", gen, err)
		}
		if _, err := c.CollectGeneration(gen); gc.CodeOf(err) != gc.CodeInvalidGeneration {
			t.Fatalf("CollectGeneration(%d): %v", gen, err)
		}
	}
}

func TestZeroThresholdIsDueAfterOneTrack(t *testing.T) {
	c := newCollector(t)
	mustTrack(t, c, 1, 0)
	if c.NeedsCollection() {
		t.Fatal("default thresholds due after one track")
	}
	if err := c.SetThreshold(0, 0); err != nil {
		t.Fatal(err)
	}
	mustTrack(t, c, 2, 0)
	if !c.NeedsCollection() {
		t.Fatal("threshold 0 not due after track")
	}
}

func TestStateString(t *testing.T) {
	c := newCollector(t)
	mustTrack(t, c, 1, 1)
	want := "gc: enabled=true collecting=false tracked=1 gen0=1 gen1=0 gen2=0 uncollectable=0 thresholds=700/10/10"
	if got := c.StateString(); got != want {
		t.Fatalf("state:\n got %q\nwant %q", got, want)
	}
	c.Disable()
	if !strings.Contains(c.StateString(), "enabled=false") {
		t.Fatalf("state after disable: %q", c.StateString())
	}
}

func TestObjectsKeepInsertionOrder(t *testing.T) {
	c := newCollector(t)
	for _, id := range []gc.ID{5, 3, 9, 1} {
		mustTrack(t, c, id, 1)
	}
	if err := c.Untrack(3); err != nil {
		t.Fatal(err)
	}
	got, err := c.Objects(0)
	if err != nil {
		t.Fatal(err)
	}
	want := []gc.ID{5, 9, 1}
	if len(got) != len(want) {
		t.Fatalf("objects = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("objects = %v, want %v", got, want)
		}
	}
	if _, err := c.Objects(3); !errors.Is(err, gc.ErrInvalidGeneration) {
		t.Fatalf("Objects(3): %v", err)
	}
}

func TestReferentsAndReferrers(t *testing.T) {
	c := newCollector(t)
	for _, id := range []gc.ID{4, 2, 7} {
		mustTrack(t, c, id, 1)
	}
	for _, e := range [][2]gc.ID{{4, 7}, {4, 2}, {4, 7}, {7, 2}} {
		if err := c.AddReference(e[0], e[1]); err != nil {
			t.Fatalf("add %v: %v", e, err)
		}
	}

	cases := []struct {
		name string
		fn   func(gc.ID) ([]gc.ID, error)
		id   gc.ID
		want []gc.ID
	}{
		{"referents of 4", c.Referents, 4, []gc.ID{2, 7}},
		{"referents of 2", c.Referents, 2, nil},
		{"referrers of 2", c.Referrers, 2, []gc.ID{4, 7}},
		{"referrers of 7", c.Referrers, 7, []gc.ID{4}},
	}
	for _, tc := range cases {
		got, err := tc.fn(tc.id)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !slices.Equal(got, tc.want) {
			t.Fatalf("%s = %v, want %v", tc.name, got, tc.want)
		}
	}

	if err := c.Untrack(7); err != nil {
		t.Fatal(err)
	}
	if got, _ := c.Referrers(2); !slices.Equal(got, []gc.ID{4}) {
		t.Fatalf("referrers after untrack = %v", got)
	}
	if _, err := c.Referents(7); !errors.Is(err, gc.ErrNotTracked) {
		t.Fatalf("referents of untracked: %v", err)
	}
	if _, err := c.Referrers(99); !errors.Is(err, gc.ErrNotTracked) {
		t.Fatalf("referrers of unknown: %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := gc.DefaultConfig()
	cfg.Thresholds[1] = -1
	if _, err := gc.New(cfg); !errors.Is(err, gc.ErrInvalidThreshold) {
		t.Fatalf("negative threshold: %v", err)
	}
	cfg = gc.DefaultConfig()
	cfg.Reachability = "magic"
	if _, err := gc.New(cfg); err == nil {
		t.Fatal("unknown reachability accepted")
	}
}
