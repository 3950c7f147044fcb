// Package loophost runs the daemon's two event sources concurrently: the
// virtualization library's event delivery and the service-manager bus
// signal loop. The process runs until the main loop exits; the
// virtualization-side worker is detached and terminates with the process.
package loophost

import (
	"context"

	"github.com/sio/guestsyncd/internal/bridge"
	"github.com/sio/guestsyncd/internal/logging"
	"github.com/sio/guestsyncd/internal/unitctl"
	"github.com/sio/guestsyncd/internal/vmctl"
)

// Host owns the two event-loop goroutines.
type Host struct {
	bridge  *bridge.Bridge
	domain  *vmctl.Actuator
	watcher *unitctl.Watcher

	lifecycle <-chan vmctl.LifecycleEvent
	reboot    <-chan vmctl.RebootEvent
}

// New builds a Host from already-opened subscriptions.
func New(b *bridge.Bridge, domain *vmctl.Actuator, watcher *unitctl.Watcher, lifecycle <-chan vmctl.LifecycleEvent, reboot <-chan vmctl.RebootEvent) *Host {
	return &Host{
		bridge:    b,
		domain:    domain,
		watcher:   watcher,
		lifecycle: lifecycle,
		reboot:    reboot,
	}
}

// Run starts the virtualization event pump as a detached background
// worker, then drives the service-manager signal loop on the calling
// goroutine until ctx is canceled. It returns when the main loop exits;
// the background worker is not waited on, matching a daemonic thread.
func (h *Host) Run(ctx context.Context) {
	go h.bridge.RunDomainEvents(ctx, h.lifecycle, h.reboot)
	go h.watchDisconnect(ctx)

	logging.Op().Info("event-loop host started")
	h.bridge.RunUnitEvents(ctx, h.watcher)
	logging.Op().Info("event-loop host stopped")
}

// watchDisconnect logs loss of the virtualization connection. It neither
// reconnects nor stops the daemon; the process keeps running after the
// error is logged.
func (h *Host) watchDisconnect(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case err, ok := <-h.domain.Disconnected():
		if !ok {
			return
		}
		logging.Op().Error("virtualization connection lost", "error", err)
	}
}
