// Package unitctl is a thin, typed façade over the host service manager
// (systemd) for the units paired one-to-one with virtualization domains.
//
// # Typed surface, not dynamic dispatch
//
// start/stop/restart/ActiveState/Enumerate are distinct methods rather
// than a single generic "call this bus method by name" helper. The bus
// method names stay behind this interface.
package unitctl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdbus "github.com/coreos/go-systemd/v22/dbus"

	"github.com/sio/guestsyncd/internal/metrics"
	"github.com/sio/guestsyncd/internal/observability"
)

// States a unit's ActiveState property can report.
const (
	StateActive       = "active"
	StateActivating   = "activating"
	StateInactive     = "inactive"
	StateDeactivating = "deactivating"
	StateFailed       = "failed"
	StateReloading    = "reloading"
)

// ErrUnknownUnit is returned when the named unit's template has never
// been instantiated. Callers treat this as "already inactive".
var ErrUnknownUnit = errors.New("unitctl: unknown unit")

// Actuator is the typed surface this package exposes to the event bridge
// and the bootstrap reconciler.
type Actuator interface {
	Start(ctx context.Context, unitName string) error
	Stop(ctx context.Context, unitName string) error
	Restart(ctx context.Context, unitName string) error
	ActiveState(ctx context.Context, unitName string) (string, error)
	Enumerate(ctx context.Context, prefix string) (map[string]string, error)
	Close() error
}

// jobMode is always "fail": the manager rejects the call outright when a
// conflicting job is already queued, rather than replacing it.
const jobMode = "fail"

// dbusActuator implements Actuator over github.com/coreos/go-systemd/v22/dbus.
type dbusActuator struct {
	conn *sdbus.Conn
}

// New dials the system service manager bus.
func New(ctx context.Context) (Actuator, error) {
	conn, err := sdbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("unitctl: connect to systemd bus: %w", err)
	}
	return &dbusActuator{conn: conn}, nil
}

func (a *dbusActuator) Close() error {
	a.conn.Close()
	return nil
}

// Start issues a start job unless the unit is already active or activating.
func (a *dbusActuator) Start(ctx context.Context, unitName string) (err error) {
	ctx, span := observability.StartSpan(ctx, "unitctl.start",
		observability.AttrAction.String("start"),
		observability.AttrUnitName.String(unitName),
		observability.AttrSide.String("unit"),
	)
	defer func() { observability.EndSpan(span, err) }()

	state, err := a.ActiveState(ctx, unitName)
	if err != nil && !errors.Is(err, ErrUnknownUnit) {
		return err
	}
	if state == StateActive || state == StateActivating {
		return nil
	}
	ch := make(chan string, 1)
	if _, err := a.conn.StartUnitContext(ctx, unitName, jobMode, ch); err != nil {
		metrics.Global().RecordUnitAction("start", false)
		return fmt.Errorf("unitctl: start %s: %w", unitName, err)
	}
	result := <-ch
	ok := result == "done"
	metrics.Global().RecordUnitAction("start", ok)
	if !ok {
		return fmt.Errorf("unitctl: start %s: job result %q", unitName, result)
	}
	return nil
}

// Stop issues a stop job unless the unit is already inactive.
func (a *dbusActuator) Stop(ctx context.Context, unitName string) (err error) {
	ctx, span := observability.StartSpan(ctx, "unitctl.stop",
		observability.AttrAction.String("stop"),
		observability.AttrUnitName.String(unitName),
		observability.AttrSide.String("unit"),
	)
	defer func() { observability.EndSpan(span, err) }()

	state, err := a.ActiveState(ctx, unitName)
	if err != nil {
		if errors.Is(err, ErrUnknownUnit) {
			return nil
		}
		return err
	}
	if state == StateInactive {
		return nil
	}
	ch := make(chan string, 1)
	if _, err := a.conn.StopUnitContext(ctx, unitName, jobMode, ch); err != nil {
		metrics.Global().RecordUnitAction("stop", false)
		return fmt.Errorf("unitctl: stop %s: %w", unitName, err)
	}
	result := <-ch
	ok := result == "done"
	metrics.Global().RecordUnitAction("stop", ok)
	if !ok {
		return fmt.Errorf("unitctl: stop %s: job result %q", unitName, result)
	}
	return nil
}

// Restart always issues a restart job; it is not gated on current state
// because the caller (a REBOOT event) means "cycle this unit".
func (a *dbusActuator) Restart(ctx context.Context, unitName string) (err error) {
	ctx, span := observability.StartSpan(ctx, "unitctl.restart",
		observability.AttrAction.String("restart"),
		observability.AttrUnitName.String(unitName),
		observability.AttrSide.String("unit"),
	)
	defer func() { observability.EndSpan(span, err) }()

	ch := make(chan string, 1)
	if _, err := a.conn.RestartUnitContext(ctx, unitName, jobMode, ch); err != nil {
		metrics.Global().RecordUnitAction("restart", false)
		return fmt.Errorf("unitctl: restart %s: %w", unitName, err)
	}
	result := <-ch
	ok := result == "done"
	metrics.Global().RecordUnitAction("restart", ok)
	if !ok {
		return fmt.Errorf("unitctl: restart %s: job result %q", unitName, result)
	}
	return nil
}

// ActiveState reads the unit's ActiveState property.
func (a *dbusActuator) ActiveState(ctx context.Context, unitName string) (string, error) {
	prop, err := a.conn.GetUnitPropertyContext(ctx, unitName, "ActiveState")
	if err != nil {
		if isUnknownUnit(err) {
			return StateInactive, ErrUnknownUnit
		}
		return "", fmt.Errorf("unitctl: active state %s: %w", unitName, err)
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		return "", fmt.Errorf("unitctl: active state %s: unexpected property type", unitName)
	}
	return state, nil
}

// Enumerate lists all loaded units whose name starts with prefix+"@",
// returning unit name -> ActiveState.
func (a *dbusActuator) Enumerate(ctx context.Context, prefix string) (map[string]string, error) {
	units, err := a.conn.ListUnitsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("unitctl: enumerate: %w", err)
	}
	want := prefix + "@"
	out := make(map[string]string)
	for _, u := range units {
		if strings.HasPrefix(u.Name, want) {
			out[u.Name] = u.ActiveState
		}
	}
	return out, nil
}

// isUnknownUnit reports whether err indicates the unit template was never
// instantiated (systemd reports this as an org.freedesktop.systemd1.NoSuchUnit
// D-Bus error, or as LoadState "not-found" surfaced via GetUnitProperty).
func isUnknownUnit(err error) bool {
	return strings.Contains(err.Error(), "NoSuchUnit") || strings.Contains(err.Error(), "not-found")
}

// Project collapses a raw ActiveState into the two-valued domain
// projection used for cross-subsystem comparison. ok is false for states
// in the "other" row (ignored, logged by the caller).
func Project(state string) (active bool, ok bool) {
	switch state {
	case StateActive, StateActivating:
		return true, true
	case StateInactive:
		return false, true
	default:
		// StateFailed, StateDeactivating, StateReloading and anything
		// unrecognized fall into "other": ignored, logged by the caller.
		return false, false
	}
}
