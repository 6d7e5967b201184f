package gc_test

import (
	"strings"
	"testing"

	"github.com/fatih/color"

	"gengc/internal/gc"
)

func TestFlagsStringAndParse(t *testing.T) {
	cases := []struct {
		in   string
		want gc.Flags
		str  string
	}{
		{"", 0, "none"},
		{"stats", gc.FlagStats, "stats"},
		{"stats|uncollectable", gc.FlagStats | gc.FlagUncollectable, "stats|uncollectable"},
		{"LEAK, saveall", gc.FlagLeak | gc.FlagSaveAll, "saveall|leak"},
		{"34", gc.FlagCollectable | gc.FlagSaveAll, "collectable|saveall"},
	}
	for _, tc := range cases {
		got, err := gc.ParseFlags(tc.in)
		if err != nil {
			t.Fatalf("ParseFlags(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseFlags(%q) = %d, want %d", tc.in, got, tc.want)
		}
		if got.String() != tc.str {
			t.Fatalf("String() = %q, want %q", got.String(), tc.str)
		}
	}
	if _, err := gc.ParseFlags("stats|shout"); err == nil {
		t.Fatal("unknown flag accepted")
	}
	if got := gc.Flags(1 << 10).String(); got != "0x400" {
		t.Fatalf("unknown bit = %q", got)
	}
}

func TestFlagBitValues(t *testing.T) {
	want := []gc.Flags{1, 2, 4, 8, 16, 32, 64}
	got := []gc.Flags{gc.FlagStats, gc.FlagCollectable, gc.FlagUncollectable,
		gc.FlagInstances, gc.FlagObjects, gc.FlagSaveAll, gc.FlagLeak}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("flag %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDebugStateSections(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	c := newCollector(t)
	if err := c.Track(0x10, "dict", 240); err != nil {
		t.Fatal(err)
	}
	if err := c.Track(0x20, "sock", 8); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFinalizer(0x20, true); err != nil {
		t.Fatal(err)
	}
	if err := c.SetRefcount(0x10, 1); err != nil {
		t.Fatal(err)
	}
	mustCollect(t, c, 0)

	plain := c.RenderDebugState()
	if !strings.HasPrefix(plain, "== gc state ==\n") {
		t.Fatalf("missing header:\n%s", plain)
	}
	if strings.Contains(plain, "== objects ==") || strings.Contains(plain, "== garbage ==") {
		t.Fatalf("tables shown without flags:\n%s", plain)
	}
	if !strings.Contains(plain, "  uncollectable  1\n") {
		t.Fatalf("keys not aligned:\n%s", plain)
	}

	c.SetDebugFlags(gc.FlagObjects | gc.FlagUncollectable)
	var sb strings.Builder
	if err := c.DebugState(&sb); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	for _, want := range []string{"== objects ==", "== garbage ==", "dict", "sock", "finalizer,garbage"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump lacks %q:\n%s", want, out)
		}
	}
}
