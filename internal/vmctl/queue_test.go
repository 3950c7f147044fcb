package vmctl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sio/guestsyncd/internal/ledger"
)

type fakeActuator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeActuator) Start(ctx context.Context, name string) error {
	f.record("start:" + name)
	return nil
}

func (f *fakeActuator) Stop(ctx context.Context, name string) error {
	f.record("stop:" + name)
	return nil
}

func (f *fakeActuator) Restart(ctx context.Context, name string) error {
	f.record("restart:" + name)
	return nil
}

func (f *fakeActuator) ActionDeadline() time.Duration { return time.Second }

func (f *fakeActuator) record(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeActuator) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func TestQueueCoalescesRapidDuplicates(t *testing.T) {
	fa := &fakeActuator{}
	l := ledger.New(time.Minute)
	q := newQueue(fa, l, 1, time.Hour) // huge coalesce window forces the second request to drop
	q.Start()
	defer q.Stop()

	q.StartDomain("alpha")
	q.StartDomain("alpha")

	deadline := time.Now().Add(2 * time.Second)
	for len(fa.snapshot()) < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	// Give the second (coalesced) request a chance to be dropped rather
	// than processed, without racing a fixed sleep against the worker.
	time.Sleep(50 * time.Millisecond)

	calls := fa.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one dispatched call, got %v", calls)
	}
}

func TestQueueDispatchesDistinctDomains(t *testing.T) {
	fa := &fakeActuator{}
	l := ledger.New(time.Minute)
	q := newQueue(fa, l, 2, time.Millisecond)
	q.Start()
	defer q.Stop()

	q.StartDomain("alpha")
	q.StopDomain("beta")

	deadline := time.Now().Add(2 * time.Second)
	for len(fa.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	calls := fa.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected both domains dispatched, got %v", calls)
	}
}
