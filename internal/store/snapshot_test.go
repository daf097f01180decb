package store

import (
	"testing"
	"time"
)

func TestDumpLoadRoundTrip(t *testing.T) {
	k := New()
	k.Set("s", []byte("hello"), zeroTime)
	k.LPush("l", []byte("b"), []byte("a"))
	k.ZAdd("z", []ZMember{{Member: "x", Score: 1}, {Member: "y", Score: 2}})
	k.XAdd("st", "*", []StreamField{{Field: []byte("f"), Value: []byte("v")}}, 1000)

	snaps := k.Dump()
	if len(snaps) != 4 {
		t.Fatalf("expected 4 snapshot entries, got %d", len(snaps))
	}

	k2 := New()
	k2.Load(snaps)

	if v, err := k2.Get("s"); err != nil || string(v) != "hello" {
		t.Fatalf("string not restored: %v %v", v, err)
	}
	if got := k2.Type("l"); got != TypeList {
		t.Fatalf("expected list type, got %v", got)
	}
	members, err := k2.ZRange("z", 0, -1)
	if err != nil || len(members) != 2 {
		t.Fatalf("zset not restored: %v %v", members, err)
	}
	if k2.XLastID("st").IsZero() {
		t.Fatal("stream not restored")
	}
}

func TestDumpSkipsExpiredKeys(t *testing.T) {
	k := New()
	k.Set("gone", []byte("v"), zeroTime)
	k.Expire("gone", time.Unix(0, 0))
	snaps := k.Dump()
	for _, s := range snaps {
		if s.Key == "gone" {
			t.Fatal("expired key should not be dumped")
		}
	}
}
