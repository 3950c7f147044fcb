// Package reconcile implements the bootstrap reconciliation pass: the
// minimum set of actuator calls needed to bring every domain and its
// paired unit into agreement before the daemon starts accepting live
// events.
package reconcile

import (
	"context"
	"fmt"

	"github.com/sio/guestsyncd/internal/domainstore"
	"github.com/sio/guestsyncd/internal/logging"
	"github.com/sio/guestsyncd/internal/metrics"
	"github.com/sio/guestsyncd/internal/nameunit"
	"github.com/sio/guestsyncd/internal/unitctl"
)

// Run builds store from a full domain enumeration, then reconciles every
// domain against its paired unit and every matching unit against its
// paired domain. Errors on any single pair are logged and do not abort
// the pass. A failure to enumerate domains or units is returned instead.
func Run(ctx context.Context, store *domainstore.Store, enumerateDomains domainstore.Enumerator, unit unitctl.Actuator, templatePrefix, templateSuffix string) error {
	if err := store.Reload(enumerateDomains); err != nil {
		return fmt.Errorf("reconcile: enumerate domains: %w", err)
	}

	units, err := unit.Enumerate(ctx, templatePrefix)
	if err != nil {
		return fmt.Errorf("reconcile: enumerate units: %w", err)
	}

	snapshot := store.Snapshot()
	mismatches := 0
	reconciled := make(map[string]bool, len(snapshot))

	for domain, desired := range snapshot {
		reconciled[domain] = true
		unitName := nameunit.Build(templatePrefix, domain, templateSuffix)

		rawState, present := units[unitName]
		var current bool
		ok := true
		if present {
			current, ok = unitctl.Project(rawState)
		} else {
			current = false // unit template never instantiated: treat as inactive
		}
		if !ok || current == desired {
			continue
		}
		mismatches++
		if err := applyUnitAction(ctx, unit, unitName, desired); err != nil {
			logging.Op().Error("reconcile: unit action failed", "unit", unitName, "domain", domain, "error", err)
		}
	}

	for unitName := range units {
		_, instance, _, err := nameunit.Parse(unitName)
		if err != nil || instance == "" {
			continue
		}
		if reconciled[instance] {
			continue // already handled by the domain-driven pass above
		}
		mismatches++
		if err := unit.Stop(ctx, unitName); err != nil {
			logging.Op().Error("reconcile: stop orphaned unit failed", "unit", unitName, "error", err)
		}
	}

	logging.Op().Info("bootstrap reconciliation complete", "mismatches", mismatches)
	metrics.Global().RecordReconcile(mismatches)
	return nil
}

func applyUnitAction(ctx context.Context, unit unitctl.Actuator, unitName string, desiredActive bool) error {
	if desiredActive {
		return unit.Start(ctx, unitName)
	}
	return unit.Stop(ctx, unitName)
}
