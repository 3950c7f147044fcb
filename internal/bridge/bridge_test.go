package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/sio/guestsyncd/internal/domainstore"
	"github.com/sio/guestsyncd/internal/ledger"
	"github.com/sio/guestsyncd/internal/unitctl"
	"github.com/sio/guestsyncd/internal/vmctl"
)

type fakeUnitActuator struct {
	started  []string
	stopped  []string
	restarts []string
}

func (f *fakeUnitActuator) Start(ctx context.Context, unitName string) error {
	f.started = append(f.started, unitName)
	return nil
}
func (f *fakeUnitActuator) Stop(ctx context.Context, unitName string) error {
	f.stopped = append(f.stopped, unitName)
	return nil
}
func (f *fakeUnitActuator) Restart(ctx context.Context, unitName string) error {
	f.restarts = append(f.restarts, unitName)
	return nil
}
func (f *fakeUnitActuator) ActiveState(ctx context.Context, unitName string) (string, error) {
	return unitctl.StateActive, nil
}
func (f *fakeUnitActuator) Enumerate(ctx context.Context, prefix string) (map[string]string, error) {
	return nil, nil
}
func (f *fakeUnitActuator) Close() error { return nil }

func TestHandleLifecycleUpdatesStoreAndCallsUnit(t *testing.T) {
	store := domainstore.New()
	l := ledger.New(time.Minute)
	unit := &fakeUnitActuator{}
	b := New(store, l, unit, nil, "libvirt-guest", "service")

	b.HandleLifecycle(context.Background(), vmctl.LifecycleEvent{Domain: "alpha", Active: true})

	active, ok := store.Get("alpha")
	if !ok || !active {
		t.Fatalf("store not updated: (%v, %v)", active, ok)
	}
	if len(unit.started) != 1 || unit.started[0] != "libvirt-guest@alpha.service" {
		t.Fatalf("expected unit start for alpha, got %v", unit.started)
	}
	if l.Last("alpha").IsZero() {
		t.Fatal("expected ledger to record the domain action")
	}
}

func TestHandleUnitPropertyChangeSuppressesEcho(t *testing.T) {
	store := domainstore.New()
	store.Update("alpha", true)
	l := ledger.New(time.Minute)
	b := New(store, l, &fakeUnitActuator{}, nil, "libvirt-guest", "service")

	// Projection already matches the store: must be dropped, i.e. no panic
	// from a nil domain queue.
	b.HandleUnitPropertyChange(unitctl.PropertyChange{
		UnitName:    "libvirt-guest@alpha.service",
		ActiveState: unitctl.StateActive,
	})
}

func TestHandleUnitPropertyChangeIgnoresOtherStates(t *testing.T) {
	store := domainstore.New()
	l := ledger.New(time.Minute)
	b := New(store, l, &fakeUnitActuator{}, nil, "libvirt-guest", "service")

	// "failed" falls in the ignored/logged row; must not touch the store
	// or dereference the nil domain queue.
	b.HandleUnitPropertyChange(unitctl.PropertyChange{
		UnitName:    "libvirt-guest@alpha.service",
		ActiveState: unitctl.StateFailed,
	})

	if _, ok := store.Get("alpha"); ok {
		t.Fatal("ignored state must not populate the store")
	}
}
