package bridge

import (
	"context"
	"errors"

	"github.com/sio/guestsyncd/internal/logging"
	"github.com/sio/guestsyncd/internal/unitctl"
	"github.com/sio/guestsyncd/internal/vmctl"
)

// RunDomainEvents drains lifecycle and reboot channels until ctx is done
// or both channels close. Each event is handled inline: the unit actuator
// calls it makes block only for a single D-Bus job, never for a
// convergence wait.
func (b *Bridge) RunDomainEvents(ctx context.Context, lifecycle <-chan vmctl.LifecycleEvent, reboot <-chan vmctl.RebootEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-lifecycle:
			if !ok {
				lifecycle = nil
				continue
			}
			b.HandleLifecycle(ctx, event)
		case event, ok := <-reboot:
			if !ok {
				reboot = nil
				continue
			}
			b.HandleReboot(ctx, event)
		}
		if lifecycle == nil && reboot == nil {
			return
		}
	}
}

// RunUnitEvents polls watcher for PropertiesChanged signals matching
// templatePrefix until ctx is done or the watcher's connection closes.
func (b *Bridge) RunUnitEvents(ctx context.Context, watcher *unitctl.Watcher) {
	for {
		change, ok, err := watcher.Next(ctx, b.templatePrefix)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			logging.Op().Error("bridge: unit watcher error", "error", err)
			return
		}
		if !ok {
			continue
		}
		b.HandleUnitPropertyChange(change)
	}
}
