package txn

import "testing"

func TestWatchInvalidationOnWrite(t *testing.T) {
	m := New()
	if err := m.Watch(1, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Multi(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.Queue(1, "SET", [][]byte{[]byte("k"), []byte("1")})

	// Another connection writes the watched key before EXEC.
	m.KeyModified("k")

	res, err := m.Exec(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Invalidated {
		t.Fatalf("expected EXEC to report invalidated")
	}
}

func TestExecWithoutInvalidationRunsQueue(t *testing.T) {
	m := New()
	m.Multi(1)
	m.Queue(1, "SET", [][]byte{[]byte("k"), []byte("1")})
	m.Queue(1, "GET", [][]byte{[]byte("k")})
	res, err := m.Exec(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Invalidated {
		t.Fatalf("expected no invalidation")
	}
	if len(res.Queue) != 2 {
		t.Fatalf("expected 2 queued commands, got %d", len(res.Queue))
	}
}

func TestEmptyExecReturnsEmptyQueue(t *testing.T) {
	m := New()
	m.Multi(1)
	res, err := m.Exec(1)
	if err != nil || len(res.Queue) != 0 || res.Invalidated {
		t.Fatalf("expected empty, non-invalidated queue, got %+v err %v", res, err)
	}
}

func TestDiscardClearsQueueAndWatches(t *testing.T) {
	m := New()
	m.Watch(1, "k")
	m.Multi(1)
	m.Queue(1, "SET", [][]byte{[]byte("k"), []byte("1")})
	if err := m.Discard(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.State(1) != Normal {
		t.Fatalf("expected Normal state after DISCARD")
	}
	// A subsequent write to the previously watched key should not
	// invalidate anything, since DISCARD cleared the watch set.
	m.KeyModified("k")
	m.Multi(1)
	res, _ := m.Exec(1)
	if res.Invalidated {
		t.Fatalf("expected watches cleared by DISCARD")
	}
}

func TestStoreClearedInvalidatesWatchers(t *testing.T) {
	m := New()
	m.Watch(1, "k")
	m.Multi(1)
	m.StoreCleared()
	res, _ := m.Exec(1)
	if !res.Invalidated {
		t.Fatalf("expected FLUSHALL to invalidate all watchers")
	}
}

func TestUnknownCommandAbortsExec(t *testing.T) {
	m := New()
	m.Multi(1)
	m.MarkQueueError(1, errUnknown)
	res, err := m.Exec(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Aborted || res.AbortErr != errUnknown {
		t.Fatalf("expected abort with recorded error, got %+v", res)
	}
}

var errUnknown = &testErr{"unknown command"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }
