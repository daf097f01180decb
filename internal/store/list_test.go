package store

import (
	"bytes"
	"testing"
)

func TestListPushPopRoundTrip(t *testing.T) {
	k := New()
	n, err := k.RPush("k", []byte("v"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected length 1, got %d", n)
	}
	v, err := k.LPop("k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(v, []byte("v")) {
		t.Fatalf("expected v, got %q", v)
	}
	if k.Exists("k") {
		t.Fatalf("expected key to be deleted once list is empty")
	}
}

func TestListRangeNegativeIndices(t *testing.T) {
	k := New()
	k.RPush("k", []byte("a"), []byte("b"), []byte("c"), []byte("d"))
	got := k.mustRange(t, "k", 0, -1)
	want := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	assertSlicesEqual(t, got, want)

	got = k.mustRange(t, "k", -2, -1)
	want = [][]byte{[]byte("c"), []byte("d")}
	assertSlicesEqual(t, got, want)
}

func TestListSegmentBoundaryCrossing(t *testing.T) {
	k := New()
	values := make([][]byte, 0, listChunkCap*3)
	for i := 0; i < listChunkCap*3; i++ {
		values = append(values, []byte{byte(i)})
	}
	if _, err := k.RPush("k", values...); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := k.LLen("k")
	if err != nil || n != len(values) {
		t.Fatalf("expected len %d, got %d err %v", len(values), n, err)
	}
	got, err := k.LRange("k", 0, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSlicesEqual(t, got, values)
}

func TestListWrongType(t *testing.T) {
	k := New()
	k.Set("k", []byte("v"), zeroTime)
	if _, err := k.RPush("k", []byte("x")); err == nil {
		t.Fatalf("expected WRONGTYPE error")
	}
}

func (k *Keyspace) mustRange(t *testing.T, key string, start, end int) [][]byte {
	t.Helper()
	got, err := k.LRange(key, start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return got
}

func assertSlicesEqual(t *testing.T, got, want [][]byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d (%q vs %q)", len(got), len(want), got, want)
	}
	for i := range got {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("index %d: got %q want %q", i, got[i], want[i])
		}
	}
}
