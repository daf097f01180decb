package store

import (
	"bytes"
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	k := New()
	k.Set("foo", []byte("bar"), zeroTime)
	v, err := k.Get("foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(v, []byte("bar")) {
		t.Fatalf("got %q", v)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	k := New()
	v, err := k.Get("missing")
	if err != nil || v != nil {
		t.Fatalf("expected nil,nil got %q %v", v, err)
	}
}

func TestIncrDecrSemantics(t *testing.T) {
	k := New()
	n, err := k.IncrBy("counter", 1)
	if err != nil || n != 1 {
		t.Fatalf("missing key should incr from 0, got %d err %v", n, err)
	}
	n, err = k.IncrBy("counter", -1)
	if err != nil || n != 0 {
		t.Fatalf("got %d err %v", n, err)
	}

	k.Set("notint", []byte(" not a number "), zeroTime)
	if _, err := k.IncrBy("notint", 1); err == nil {
		t.Fatalf("expected NotAnInteger error")
	}

	k.Set("big", []byte("9223372036854775807"), zeroTime)
	if _, err := k.IncrBy("big", 1); err == nil {
		t.Fatalf("expected overflow error")
	}
}

func TestTypeMismatchLeavesKeyspaceUnchanged(t *testing.T) {
	k := New()
	k.Set("s", []byte("v"), zeroTime)
	if _, err := k.LPush("s", []byte("x")); err == nil {
		t.Fatalf("expected WRONGTYPE")
	}
	v, err := k.Get("s")
	if err != nil || !bytes.Equal(v, []byte("v")) {
		t.Fatalf("failed mutation must not have touched the key: got %q err %v", v, err)
	}
}

func TestExpiryLazyEviction(t *testing.T) {
	k := New()
	fixedNow := time.Now()
	k.nowFn = func() time.Time { return fixedNow }
	k.Set("k", []byte("v"), fixedNow.Add(-time.Second))
	if k.Exists("k") {
		t.Fatalf("expected key with past expiry to be evicted on access")
	}
}

func TestFlushAll(t *testing.T) {
	k := New()
	k.Set("a", []byte("1"), zeroTime)
	k.Set("b", []byte("2"), zeroTime)
	k.FlushAll()
	if k.DBSize() != 0 {
		t.Fatalf("expected empty keyspace after FLUSHALL")
	}
}

type recordingObserver struct {
	added, removed, modified []string
	cleared                  bool
}

func (r *recordingObserver) DataAdded(key string)   { r.added = append(r.added, key) }
func (r *recordingObserver) DataRemoved(key string) { r.removed = append(r.removed, key) }
func (r *recordingObserver) KeyModified(key string) { r.modified = append(r.modified, key) }
func (r *recordingObserver) StoreCleared()          { r.cleared = true }
func (r *recordingObserver) ExpiredKeysRemoved(keys []string) {}

func TestObserverEvents(t *testing.T) {
	k := New()
	obs := &recordingObserver{}
	k.AddObserver(obs)
	k.Set("a", []byte("1"), zeroTime)
	if len(obs.added) != 1 || obs.added[0] != "a" {
		t.Fatalf("expected dataAdded(a), got %v", obs.added)
	}
	k.Delete("a")
	if len(obs.removed) != 1 || obs.removed[0] != "a" {
		t.Fatalf("expected dataRemoved(a), got %v", obs.removed)
	}
	k.FlushAll()
	if !obs.cleared {
		t.Fatalf("expected storeCleared")
	}
}
