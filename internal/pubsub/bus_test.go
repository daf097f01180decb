package pubsub

import "testing"

type delivery struct {
	connID  uint64
	kind    string
	pattern string
	channel string
	payload string
}

func TestPublishDeliversToExactAndPatternSubscribers(t *testing.T) {
	var got []delivery
	b := New(func(connID uint64, kind, pattern, channel string, payload []byte) {
		got = append(got, delivery{connID, kind, pattern, channel, string(payload)})
	})
	b.Subscribe(1, "news")
	b.PSubscribe(2, "n*")

	n := b.Publish("news", []byte("hello"))
	if n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	foundExact, foundPattern := false, false
	for _, d := range got {
		if d.connID == 1 && d.kind == "message" {
			foundExact = true
		}
		if d.connID == 2 && d.kind == "pmessage" && d.pattern == "n*" {
			foundPattern = true
		}
	}
	if !foundExact || !foundPattern {
		t.Fatalf("expected both exact and pattern delivery, got %+v", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	delivered := 0
	b := New(func(uint64, string, string, string, []byte) { delivered++ })
	b.Subscribe(1, "news")
	b.Unsubscribe(1, "news")
	b.Publish("news", []byte("x"))
	if delivered != 0 {
		t.Fatalf("expected no delivery after unsubscribe")
	}
}

func TestRemoveConnectionClearsAllSubscriptions(t *testing.T) {
	delivered := 0
	b := New(func(uint64, string, string, string, []byte) { delivered++ })
	b.Subscribe(1, "news")
	b.PSubscribe(1, "n*")
	b.RemoveConnection(1)
	b.Publish("news", []byte("x"))
	if delivered != 0 {
		t.Fatalf("expected no delivery after connection removal")
	}
	if b.IsSubscribed(1) {
		t.Fatalf("expected no subscriptions left")
	}
}

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"*", "anything", true},
		{"news.*", "news.sports", true},
		{"news.*", "news", false},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"h[ae]llo", "hallo", true},
		{"h[ae]llo", "hillo", false},
		{"h[^ae]llo", "hillo", true},
		{"a/*/c", "a/b/c", true},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.name); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}
