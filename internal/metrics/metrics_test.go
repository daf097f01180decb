package metrics

import (
	"testing"
	"time"

	"github.com/nishisan-dev/redlet/internal/store"
)

func TestCollectorObservesKeyspaceMutations(t *testing.T) {
	c := New()
	var obs store.Observer = c

	obs.DataAdded("k")
	obs.DataAdded("k2")
	obs.DataRemoved("k")
	obs.KeyModified("k2")
	obs.ExpiredKeysRemoved([]string{"a", "b"})
	obs.StoreCleared()

	mfs, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gathering metrics: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected at least one metric family")
	}
}

func TestCollectorSatisfiesObserverInterface(t *testing.T) {
	ks := store.New()
	ks.AddObserver(New())
	ks.Set("k", []byte("v"), time.Time{})
	if !ks.Exists("k") {
		t.Fatalf("expected key to exist after Set")
	}
}
