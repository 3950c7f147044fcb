package vmctl

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
)

// LifecycleEvent reports a domain transitioning to active or inactive.
// Only DomainEventStarted and DomainEventStopped are translated; other
// lifecycle details (defined, undefined, suspended, ...) are not part of
// the two-valued projection the bridge acts on.
type LifecycleEvent struct {
	Domain string
	Active bool
}

// RebootEvent reports a guest-initiated reboot, a distinct event class
// from lifecycle started/stopped: the paired unit is restarted rather
// than having its active state toggled.
type RebootEvent struct {
	Domain string
}

// SubscribeLifecycle subscribes to domain lifecycle events and returns a
// channel carrying only the started/stopped transitions that matter to
// the bridge.
func (a *Actuator) SubscribeLifecycle(ctx context.Context) (<-chan LifecycleEvent, error) {
	raw, err := a.virt.SubscribeEvents(ctx, libvirt.DomainEventIDLifecycle, libvirt.OptDomain{})
	if err != nil {
		return nil, fmt.Errorf("vmctl: subscribe lifecycle events: %w", err)
	}
	out := make(chan LifecycleEvent, 32)
	go func() {
		defer close(out)
		for msg := range raw {
			cb, ok := msg.(*libvirt.DomainEventCallbackLifecycleMsg)
			if !ok {
				continue
			}
			switch cb.Msg.Event {
			case int32(libvirt.DomainEventStarted):
				out <- LifecycleEvent{Domain: cb.Msg.Dom.Name, Active: true}
			case int32(libvirt.DomainEventStopped):
				out <- LifecycleEvent{Domain: cb.Msg.Dom.Name, Active: false}
			}
		}
	}()
	return out, nil
}

// SubscribeReboot subscribes to the reboot event class.
func (a *Actuator) SubscribeReboot(ctx context.Context) (<-chan RebootEvent, error) {
	raw, err := a.virt.SubscribeEvents(ctx, libvirt.DomainEventIDReboot, libvirt.OptDomain{})
	if err != nil {
		return nil, fmt.Errorf("vmctl: subscribe reboot events: %w", err)
	}
	out := make(chan RebootEvent, 32)
	go func() {
		defer close(out)
		for msg := range raw {
			cb, ok := msg.(*libvirt.DomainEventCallbackRebootMsg)
			if !ok {
				continue
			}
			out <- RebootEvent{Domain: cb.Dom.Name}
		}
	}()
	return out, nil
}

// Disconnected returns the channel the underlying connection closes when
// the virtualization host connection is lost, for the event-loop host to
// observe.
func (a *Actuator) Disconnected() <-chan error {
	return a.virt.Disconnected()
}
