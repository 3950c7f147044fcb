// Package bridge translates domain lifecycle/reboot events and unit
// PropertiesChanged signals into actions on the opposite side, breaking
// the cycle between the two subsystems with idempotent actuators and the
// action-history ledger rather than a transactional handshake.
package bridge

import (
	"context"

	"github.com/sio/guestsyncd/internal/domainstore"
	"github.com/sio/guestsyncd/internal/ledger"
	"github.com/sio/guestsyncd/internal/logging"
	"github.com/sio/guestsyncd/internal/metrics"
	"github.com/sio/guestsyncd/internal/nameunit"
	"github.com/sio/guestsyncd/internal/observability"
	"github.com/sio/guestsyncd/internal/unitctl"
	"github.com/sio/guestsyncd/internal/vmctl"
)

// Bridge wires the two event sources to the two actuators.
type Bridge struct {
	store  *domainstore.Store
	ledger *ledger.Ledger

	unit   unitctl.Actuator
	domain *vmctl.Queue

	templatePrefix string
	templateSuffix string
}

// New constructs a Bridge. domainQueue is the asynchronous domain
// actuator front door; unit is the typed unit actuator used directly
// (its own Start/Stop/Restart block briefly for job completion; the
// domain-side handlers call it inline from the RunDomainEvents goroutine,
// not from the unit signal loop).
func New(store *domainstore.Store, l *ledger.Ledger, unit unitctl.Actuator, domainQueue *vmctl.Queue, templatePrefix, templateSuffix string) *Bridge {
	return &Bridge{
		store:          store,
		ledger:         l,
		unit:           unit,
		domain:         domainQueue,
		templatePrefix: templatePrefix,
		templateSuffix: templateSuffix,
	}
}

// unitNameFor builds the unit name paired with domain under this bridge's
// configured template.
func (b *Bridge) unitNameFor(domain string) string {
	return nameunit.Build(b.templatePrefix, domain, b.templateSuffix)
}

// HandleUnitPropertyChange is the unit-side inbound handler (spec. unit
// PropertiesChanged). change has already been filtered by the watcher to
// ActiveState changes on units matching the template prefix.
func (b *Bridge) HandleUnitPropertyChange(change unitctl.PropertyChange) {
	_, domainName, _, err := nameunit.Parse(change.UnitName)
	if err != nil || domainName == "" {
		logging.Op().Error("bridge: cannot parse domain from unit name", "unit", change.UnitName, "error", err)
		return
	}

	active, ok := unitctl.Project(change.ActiveState)
	if !ok {
		logging.Op().Warn("bridge: ignoring unit state outside the active/inactive projection",
			"unit", change.UnitName, "state", change.ActiveState)
		return
	}

	if current, known := b.store.Get(domainName); known && current == active {
		// Echo suppression: the store already reflects this projection,
		// so either nothing changed or this is the daemon's own action
		// completing on the domain side.
		metrics.Global().RecordLedgerSuppression()
		return
	}

	if active {
		b.domain.StartDomain(domainName)
	} else {
		b.domain.StopDomain(domainName)
	}
}

// HandleLifecycle is the domain-side inbound handler for started/stopped
// transitions.
func (b *Bridge) HandleLifecycle(ctx context.Context, event vmctl.LifecycleEvent) {
	ctx, span := observability.StartSpan(ctx, "bridge.lifecycle",
		observability.AttrDomainName.String(event.Domain),
		observability.AttrSide.String("domain"),
	)
	defer span.End()

	b.store.Update(event.Domain, event.Active)
	b.ledger.Record(event.Domain)

	unitName := b.unitNameFor(event.Domain)
	var err error
	if event.Active {
		err = b.unit.Start(ctx, unitName)
	} else {
		err = b.unit.Stop(ctx, unitName)
	}
	if err != nil {
		observability.SetSpanError(span, err)
		logging.FromContext(ctx).Warn("bridge: unit actuator call failed", "unit", unitName, "domain", event.Domain, "error", err)
		return
	}
	observability.SetSpanOK(span)
}

// HandleReboot is the domain-side inbound handler for the reboot event
// class: the paired unit is restarted rather than toggled.
func (b *Bridge) HandleReboot(ctx context.Context, event vmctl.RebootEvent) {
	ctx, span := observability.StartSpan(ctx, "bridge.reboot",
		observability.AttrDomainName.String(event.Domain),
		observability.AttrSide.String("domain"),
	)
	defer span.End()

	b.ledger.Record(event.Domain)

	unitName := b.unitNameFor(event.Domain)
	if err := b.unit.Restart(ctx, unitName); err != nil {
		observability.SetSpanError(span, err)
		logging.FromContext(ctx).Warn("bridge: unit restart failed", "unit", unitName, "domain", event.Domain, "error", err)
		return
	}
	observability.SetSpanOK(span)
}
