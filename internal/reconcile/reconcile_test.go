package reconcile

import (
	"context"
	"testing"

	"github.com/sio/guestsyncd/internal/domainstore"
	"github.com/sio/guestsyncd/internal/unitctl"
)

type fakeUnit struct {
	states   map[string]string
	started  []string
	stopped  []string
	restarts []string
}

func (f *fakeUnit) Start(ctx context.Context, unitName string) error {
	f.started = append(f.started, unitName)
	f.states[unitName] = unitctl.StateActive
	return nil
}
func (f *fakeUnit) Stop(ctx context.Context, unitName string) error {
	f.stopped = append(f.stopped, unitName)
	f.states[unitName] = unitctl.StateInactive
	return nil
}
func (f *fakeUnit) Restart(ctx context.Context, unitName string) error {
	f.restarts = append(f.restarts, unitName)
	return nil
}
func (f *fakeUnit) ActiveState(ctx context.Context, unitName string) (string, error) {
	return f.states[unitName], nil
}
func (f *fakeUnit) Enumerate(ctx context.Context, prefix string) (map[string]string, error) {
	out := make(map[string]string, len(f.states))
	for k, v := range f.states {
		out[k] = v
	}
	return out, nil
}
func (f *fakeUnit) Close() error { return nil }

func TestRunStopsUnitForInactiveDomain(t *testing.T) {
	store := domainstore.New()
	unit := &fakeUnit{states: map[string]string{
		"libvirt-guest@alpha.service": unitctl.StateActive,
	}}

	enumerate := func() (map[string]bool, error) {
		return map[string]bool{"alpha": false}, nil
	}

	if err := Run(context.Background(), store, enumerate, unit, "libvirt-guest", "service"); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(unit.stopped) != 1 || unit.stopped[0] != "libvirt-guest@alpha.service" {
		t.Fatalf("expected stop for alpha's unit, got %v", unit.stopped)
	}
}

func TestRunStopsOrphanedUnit(t *testing.T) {
	store := domainstore.New()
	unit := &fakeUnit{states: map[string]string{
		"libvirt-guest@ghost.service": unitctl.StateActive,
	}}
	enumerate := func() (map[string]bool, error) { return map[string]bool{}, nil }

	if err := Run(context.Background(), store, enumerate, unit, "libvirt-guest", "service"); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(unit.stopped) != 1 || unit.stopped[0] != "libvirt-guest@ghost.service" {
		t.Fatalf("expected orphaned unit stopped, got %v", unit.stopped)
	}
}

func TestRunSkipsAlreadyConvergedPairs(t *testing.T) {
	store := domainstore.New()
	unit := &fakeUnit{states: map[string]string{
		"libvirt-guest@alpha.service": unitctl.StateActive,
	}}
	enumerate := func() (map[string]bool, error) { return map[string]bool{"alpha": true}, nil }

	if err := Run(context.Background(), store, enumerate, unit, "libvirt-guest", "service"); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(unit.started) != 0 || len(unit.stopped) != 0 {
		t.Fatalf("expected no actions for already-converged pair, got started=%v stopped=%v", unit.started, unit.stopped)
	}
}
