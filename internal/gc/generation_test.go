package gc

import "testing"

func TestIDListCompactsTombstones(t *testing.T) {
	l := newIDList()
	for id := ID(1); id <= 100; id++ {
		l.add(id)
	}
	for id := ID(1); id <= 90; id++ {
		if !l.remove(id) {
			t.Fatalf("remove %s failed", id)
		}
	}
	if l.len() != 10 {
		t.Fatalf("len = %d", l.len())
	}
	if len(l.order) >= 100 {
		t.Fatalf("tombstones never compacted: %d slots", len(l.order))
	}
	ids := l.ids()
	for i, id := range ids {
		if id != ID(91+i) {
			t.Fatalf("order broken after compaction: %v", ids)
		}
	}
	if l.add(95) {
		t.Fatal("duplicate add accepted")
	}
	if l.remove(5) {
		t.Fatal("removed an absent id")
	}
	l.add(5)
	if got := l.ids(); got[len(got)-1] != 5 {
		t.Fatalf("re-added id not appended: %v", got)
	}
}

func TestThresholdSettle(t *testing.T) {
	tt := thresholdTable{limit: DefaultThresholds, count: [NumGenerations]int{700, 3, 9}}
	if gen, ok := tt.lowestDue(); !ok || gen != 0 {
		t.Fatalf("lowestDue = %d, %v", gen, ok)
	}
	tt.settle(0, [NumGenerations]int{0, 5, 0})
	if tt.count != [NumGenerations]int{0, 8, 9} {
		t.Fatalf("after gen0 = %v", tt.count)
	}
	tt.settle(1, [NumGenerations]int{0, 0, 8})
	if tt.count != [NumGenerations]int{0, 0, 17} {
		t.Fatalf("after gen1 = %v", tt.count)
	}
	if gen, ok := tt.lowestDue(); !ok || gen != 2 {
		t.Fatalf("lowestDue = %d, %v", gen, ok)
	}
	tt.settle(2, [NumGenerations]int{})
	if _, ok := tt.lowestDue(); ok {
		t.Fatal("still due after a full pass")
	}
}

func TestEdgeIndexRestrict(t *testing.T) {
	e := newEdgeIndex()
	e.add(1, 2)
	e.add(1, 2)
	e.add(2, 3)
	e.add(3, 1)
	got := e.restrict(func(id ID) bool { return id != 3 })
	if len(got) != 1 || len(got[1]) != 2 {
		t.Fatalf("restrict = %v", got)
	}
	e.drop(2)
	if e.count() != 1 {
		t.Fatalf("count after drop = %d", e.count())
	}
	if len(e.in[2]) != 0 || len(e.out[1]) != 0 {
		t.Fatalf("drop left dangling entries: out=%v in=%v", e.out, e.in)
	}
}
