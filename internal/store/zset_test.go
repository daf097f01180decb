package store

import "testing"

func TestZAddAndScore(t *testing.T) {
	k := New()
	added, err := k.ZAdd("lb", []ZMember{{Member: "alice", Score: 100}})
	if err != nil || added != 1 {
		t.Fatalf("expected 1 new member, got %d err %v", added, err)
	}
	score, ok, err := k.ZScore("lb", "alice")
	if err != nil || !ok || score != 100 {
		t.Fatalf("expected score 100, got %v ok=%v err=%v", score, ok, err)
	}
	added, err = k.ZAdd("lb", []ZMember{{Member: "alice", Score: 100}})
	if err != nil || added != 0 {
		t.Fatalf("re-adding same (member,score) should report 0 new members, got %d", added)
	}
}

func TestZRangeWithScoresAndRank(t *testing.T) {
	k := New()
	k.ZAdd("lb", []ZMember{
		{Member: "alice", Score: 100},
		{Member: "bob", Score: 200},
		{Member: "charlie", Score: 150},
	})
	got, err := k.ZRange("lb", 0, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantOrder := []string{"alice", "charlie", "bob"}
	for i, w := range wantOrder {
		if got[i].Member != w {
			t.Fatalf("index %d: got %s want %s", i, got[i].Member, w)
		}
	}
	rank, ok, err := k.ZRank("lb", "charlie")
	if err != nil || !ok || rank != 1 {
		t.Fatalf("expected rank 1, got %d ok=%v err=%v", rank, ok, err)
	}
}

func TestZScoreTieBreaksByMember(t *testing.T) {
	k := New()
	k.ZAdd("z", []ZMember{
		{Member: "b", Score: 1},
		{Member: "a", Score: 1},
		{Member: "c", Score: 1},
	})
	got, _ := k.ZRange("z", 0, -1)
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if got[i].Member != w {
			t.Fatalf("tie-break order wrong at %d: got %s want %s", i, got[i].Member, w)
		}
	}
}

func TestZRemDeletesEmptyKey(t *testing.T) {
	k := New()
	k.ZAdd("z", []ZMember{{Member: "a", Score: 1}})
	removed, err := k.ZRem("z", []string{"a"})
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 removed, got %d err %v", removed, err)
	}
	if k.Exists("z") {
		t.Fatalf("expected key removed once sorted set is empty")
	}
}
