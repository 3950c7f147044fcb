package ledger

import (
	"testing"
	"time"
)

func TestRecordOrdersTimestamps(t *testing.T) {
	l := New(time.Minute)
	cur := time.Unix(1000, 0)
	l.now = func() time.Time { return cur }

	l.Record("alpha")
	cur = cur.Add(time.Second)
	l.Record("alpha")

	if l.Previous("alpha").IsZero() {
		t.Fatal("expected a previous timestamp after two records")
	}
	if !l.Last("alpha").Equal(cur) {
		t.Fatalf("last = %v, want %v", l.Last("alpha"), cur)
	}
	if !l.Previous("alpha").Before(l.Last("alpha")) {
		t.Fatal("ledger must be monotonic non-decreasing per key")
	}
}

func TestWithinSince(t *testing.T) {
	l := New(time.Minute)
	cur := time.Unix(2000, 0)
	l.now = func() time.Time { return cur }

	if l.WithinSince("beta", 3*time.Second) {
		t.Fatal("no recorded action should never be within a window")
	}

	l.Record("beta")
	if !l.WithinSince("beta", 3*time.Second) {
		t.Fatal("just-recorded action should be within the window")
	}

	cur = cur.Add(5 * time.Second)
	if l.WithinSince("beta", 3*time.Second) {
		t.Fatal("action older than the window should not match")
	}
}

func TestPurgeAfterIdleWindow(t *testing.T) {
	l := New(10 * time.Second)
	cur := time.Unix(3000, 0)
	l.now = func() time.Time { return cur }

	l.Record("gamma")
	cur = cur.Add(20 * time.Second)
	l.Record("delta")

	// gamma should have been purged by the idle-window sweep triggered
	// when delta was recorded.
	if !l.Last("gamma").IsZero() {
		t.Fatal("expected gamma to be purged after idle window")
	}
	if l.Last("delta").IsZero() {
		t.Fatal("expected delta to survive its own record")
	}
}
