package banana

import "testing"

func TestOutboundVocabScheduleAddDedup(t *testing.T) {
	v := newOutboundVocab()
	if !v.ScheduleAdd("hello") {
		t.Fatalf("first ScheduleAdd should report true")
	}
	if v.ScheduleAdd("hello") {
		t.Fatalf("second ScheduleAdd for the same pending string should dedup to false")
	}
	v.CommitAdd(v.AllocateEntry("hello"), "hello")
	if v.ScheduleAdd("hello") {
		t.Fatalf("ScheduleAdd for an already-installed string should report false")
	}
}

func TestOutboundVocabReplaceClearsTable(t *testing.T) {
	v := newOutboundVocab()
	v.CommitAdd(v.AllocateEntry("a"), "a")
	v.BeginReplace()
	if _, ok := v.Lookup("a"); ok {
		t.Fatalf("BeginReplace should clear the table immediately")
	}
	v.CommitReplace(map[string]uint64{"x": 0, "y": 1})
	idx, ok := v.Lookup("y")
	if !ok || idx != 1 {
		t.Fatalf("Lookup(y) = %d, %v; want 1, true", idx, ok)
	}
	if v.nextIndex != 2 {
		t.Fatalf("nextIndex = %d, want 2", v.nextIndex)
	}
}

func TestOutboundVocabAllocateEntryIncrements(t *testing.T) {
	v := newOutboundVocab()
	i0 := v.AllocateEntry("a")
	i1 := v.AllocateEntry("b")
	if i0 != 0 || i1 != 1 {
		t.Fatalf("got %d, %d; want 0, 1", i0, i1)
	}
}

func TestInboundVocabApplyAddAndReplace(t *testing.T) {
	v := newInboundVocab()
	v.ApplyAdd(0, "a")
	if s, ok := v.Lookup(0); !ok || s != "a" {
		t.Fatalf("Lookup(0) = %q, %v; want a, true", s, ok)
	}
	v.ApplyReplace(map[uint64]string{5: "z"})
	if _, ok := v.Lookup(0); ok {
		t.Fatalf("ApplyReplace should discard the previous generation entirely")
	}
	if s, ok := v.Lookup(5); !ok || s != "z" {
		t.Fatalf("Lookup(5) = %q, %v; want z, true", s, ok)
	}
}
