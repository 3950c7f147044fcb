// Package vmctl drives the virtualization host's domains: a synchronous,
// idempotent convergence actuator and the lifecycle/reboot event
// subscriptions the bridge consumes.
//
// # Convergence, not command-and-forget
//
// start/stop issue the native action once, then poll the domain state until it
// converges or TIMEOUT elapses. stop re-issues shutdown on every poll tick
// because a guest's ACPI handler may not have been ready for the first
// signal.
package vmctl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/sio/guestsyncd/internal/logging"
	"github.com/sio/guestsyncd/internal/metrics"
	"github.com/sio/guestsyncd/internal/observability"
)

// ErrNoSuchDomain is returned when the named domain is not known to the
// virtualization host.
var ErrNoSuchDomain = errors.New("vmctl: no such domain")

// ErrConvergenceTimeout is returned when a domain does not reach its
// target state within the configured timeout.
type ErrConvergenceTimeout struct {
	Action  string
	Domain  string
	Elapsed time.Duration
}

func (e *ErrConvergenceTimeout) Error() string {
	return fmt.Sprintf("vmctl: %s %s: timed out after %s", e.Action, e.Domain, e.Elapsed)
}

// Config tunes the synchronous convergence actuator.
type Config struct {
	CheckDelay time.Duration
	Timeout    time.Duration
}

// DefaultConfig matches the original action tunables: 1s poll delay, 120s timeout.
func DefaultConfig() Config {
	return Config{CheckDelay: time.Second, Timeout: 120 * time.Second}
}

// Actuator is the synchronous, idempotent domain driver. It is also
// exposed standalone by cmd/guestsync-action.
type Actuator struct {
	virt *libvirt.Libvirt
	cfg  Config
}

// Dial connects to the virtualization host over the given unix socket
// (the standard libvirtd socket path when empty).
func Dial(ctx context.Context, socketPath string, cfg Config) (*Actuator, error) {
	if socketPath == "" {
		socketPath = "/var/run/libvirt/libvirt-sock"
	}
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("vmctl: dial libvirt: %w", err)
	}
	virt := libvirt.New(conn)
	if err := virt.ConnectToURI(libvirt.QEMUSystem); err != nil {
		return nil, fmt.Errorf("vmctl: connect: %w", err)
	}
	if cfg.CheckDelay <= 0 || cfg.Timeout <= 0 {
		cfg = DefaultConfig()
	}
	return &Actuator{virt: virt, cfg: cfg}, nil
}

// Close releases the virtualization connection.
func (a *Actuator) Close() error {
	return a.virt.Disconnect()
}

// Raw exposes the underlying long-lived libvirt connection.
func (a *Actuator) Raw() *libvirt.Libvirt {
	return a.virt
}

// Active reports whether name is currently active, translating
// "no such domain" into (false, ErrNoSuchDomain) rather than a bare error.
func (a *Actuator) Active(name string) (bool, error) {
	dom, err := a.virt.DomainLookupByName(name)
	if err != nil {
		return false, ErrNoSuchDomain
	}
	state, _, err := a.virt.DomainGetState(dom, 0)
	if err != nil {
		return false, fmt.Errorf("vmctl: get state %s: %w", name, err)
	}
	return isActiveState(state), nil
}

// isActiveState maps a raw libvirt domain state to the active/inactive
// projection. Shutoff, crashed, and nostate are inactive; every other
// state (running, blocked, paused, in-shutdown, pmsuspended) is active.
func isActiveState(state int32) bool {
	switch libvirt.DomainState(state) {
	case libvirt.DomainShutoff, libvirt.DomainCrashed, libvirt.DomainNostate:
		return false
	default:
		return true
	}
}

// Enumerate returns every domain known to the host mapped to its active
// projection. It is supplied to domainstore.Reload as the Enumerator.
func (a *Actuator) Enumerate() (map[string]bool, error) {
	domains, _, err := a.virt.ConnectListAllDomains(-1, 0)
	if err != nil {
		return nil, fmt.Errorf("vmctl: enumerate domains: %w", err)
	}
	out := make(map[string]bool, len(domains))
	for _, d := range domains {
		state, _, err := a.virt.DomainGetState(d, 0)
		if err != nil {
			logging.Op().Warn("vmctl: get state during enumerate failed", "domain", d.Name, "error", err)
			continue
		}
		out[d.Name] = isActiveState(state)
	}
	return out, nil
}

// Start converges name to active. It is idempotent: already-active is a
// no-op after the initial state check.
func (a *Actuator) Start(ctx context.Context, name string) error {
	return a.converge(ctx, "start", name, true, func(dom libvirt.Domain) error {
		return a.virt.DomainCreate(dom)
	})
}

// Stop converges name to inactive, re-issuing shutdown on every poll tick.
func (a *Actuator) Stop(ctx context.Context, name string) error {
	return a.converge(ctx, "stop", name, false, func(dom libvirt.Domain) error {
		return a.virt.DomainShutdown(dom)
	})
}

// Restart composes stop then start, each under its own timeout budget.
func (a *Actuator) Restart(ctx context.Context, name string) error {
	if err := a.Stop(ctx, name); err != nil {
		return fmt.Errorf("vmctl: restart %s: stop phase: %w", name, err)
	}
	if err := a.Start(ctx, name); err != nil {
		return fmt.Errorf("vmctl: restart %s: start phase: %w", name, err)
	}
	return nil
}

// converge runs the common algorithm shared by Start and Stop:
// refresh, check idempotence, issue the native action once, then poll
// until the target state is reached or the timeout elapses. For stop,
// the native action is re-issued on every poll tick per act.
func (a *Actuator) converge(ctx context.Context, action, name string, targetActive bool, issue func(libvirt.Domain) error) (err error) {
	ctx, span := observability.StartSpan(ctx, "vmctl.converge",
		observability.AttrAction.String(action),
		observability.AttrDomainName.String(name),
		observability.AttrSide.String("domain"),
	)
	started := time.Now()
	defer func() {
		span.SetAttributes(observability.AttrDurationMs.Int64(time.Since(started).Milliseconds()))
		observability.EndSpan(span, err)
	}()

	dom, err := a.virt.DomainLookupByName(name)
	if err != nil {
		if targetActive {
			return fmt.Errorf("%w: %s %s", ErrNoSuchDomain, action, name)
		}
		// Stopping a domain that no longer exists is already the target state.
		return nil
	}

	active, err := a.Active(name)
	if err != nil && !errors.Is(err, ErrNoSuchDomain) {
		return fmt.Errorf("vmctl: %s %s: refresh: %w", action, name, err)
	}
	if active == targetActive {
		metrics.Global().RecordDomainAction(action, true)
		return nil
	}

	if err := issue(dom); err != nil {
		metrics.Global().RecordDomainAction(action, false)
		return fmt.Errorf("vmctl: %s %s: %w", action, name, err)
	}

	ticker := time.NewTicker(a.cfg.CheckDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !targetActive {
				// The guest may not have processed the first ACPI request.
				_ = issue(dom)
			}
			active, err := a.Active(name)
			if err != nil {
				if errors.Is(err, ErrNoSuchDomain) && !targetActive {
					metrics.Global().RecordDomainAction(action, true)
					metrics.Global().RecordConvergence("domain", time.Since(started).Milliseconds())
					return nil
				}
			} else if active == targetActive {
				metrics.Global().RecordDomainAction(action, true)
				metrics.Global().RecordConvergence("domain", time.Since(started).Milliseconds())
				return nil
			}
			if elapsed := time.Since(started); elapsed > a.cfg.Timeout {
				metrics.Global().RecordDomainAction(action, false)
				return &ErrConvergenceTimeout{Action: action, Domain: name, Elapsed: elapsed}
			}
		}
	}
}
