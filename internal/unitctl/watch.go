package unitctl

import (
	"context"
	"errors"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/sio/guestsyncd/internal/nameunit"
)

// ErrWatcherClosed is returned by Next once the underlying bus connection's
// signal channel has been closed.
var ErrWatcherClosed = errors.New("unitctl: watcher closed")

// propertiesChangedInterface is the standard D-Bus interface on which
// systemd emits ActiveState (and other) property change notifications.
const propertiesChangedInterface = "org.freedesktop.DBus.Properties"

// unitInterface is the systemd unit interface carried in a
// PropertiesChanged signal's first argument when the change originates
// from a unit object.
const unitInterface = "org.freedesktop.systemd1.Unit"

// PropertyChange is a unit PropertiesChanged signal, already filtered down
// to ActiveState changes on unit objects and parsed into a unit name.
type PropertyChange struct {
	UnitName    string
	ActiveState string
}

// Watcher subscribes to raw PropertiesChanged signals on the system bus.
// go-systemd's typed surface does not expose this signal directly, so the
// subscription is done with the lower-level godbus/dbus/v5 client that
// shares the same bus the Actuator already holds a session on.
type Watcher struct {
	conn *dbus.Conn
	ch   chan *dbus.Signal
}

// NewWatcher opens a dedicated connection for signal delivery, matching
// only PropertiesChanged so the daemon is not woken for unrelated traffic.
func NewWatcher(ctx context.Context) (*Watcher, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propertiesChangedInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		conn.Close()
		return nil, err
	}
	ch := make(chan *dbus.Signal, 64)
	conn.Signal(ch)
	return &Watcher{conn: conn, ch: ch}, nil
}

// Close releases the watcher's bus connection.
func (w *Watcher) Close() error {
	return w.conn.Close()
}

// Next blocks until a PropertiesChanged signal arrives that concerns a
// unit object's ActiveState whose parsed unit name carries prefix, or
// until ctx is done. It returns ok=false (with no error) for signals that
// don't pass the filter, so callers should loop on Next rather than
// treating a single false as fatal.
func (w *Watcher) Next(ctx context.Context, prefix string) (change PropertyChange, ok bool, err error) {
	select {
	case <-ctx.Done():
		return PropertyChange{}, false, ctx.Err()
	case sig, open := <-w.ch:
		if !open {
			return PropertyChange{}, false, ErrWatcherClosed
		}
		return parsePropertiesChanged(sig, prefix)
	}
}

func parsePropertiesChanged(sig *dbus.Signal, prefix string) (PropertyChange, bool, error) {
	if len(sig.Body) < 2 {
		return PropertyChange{}, false, nil
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != unitInterface {
		return PropertyChange{}, false, nil
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return PropertyChange{}, false, nil
	}
	variant, ok := changed["ActiveState"]
	if !ok {
		return PropertyChange{}, false, nil
	}
	state, ok := variant.Value().(string)
	if !ok {
		return PropertyChange{}, false, nil
	}

	unitName, matched := unitNameFromPath(string(sig.Path), prefix)
	if !matched {
		return PropertyChange{}, false, nil
	}
	return PropertyChange{UnitName: unitName, ActiveState: state}, true, nil
}

// unitNameFromPath turns a systemd object path such as
// /org/freedesktop/systemd1/unit/libvirt_2dguest_40alpha_2eservice into
// a unit name, and reports whether its template prefix matches.
func unitNameFromPath(path, prefix string) (string, bool) {
	const objPrefix = "/org/freedesktop/systemd1/unit/"
	if !strings.HasPrefix(path, objPrefix) {
		return "", false
	}
	encoded := strings.TrimPrefix(path, objPrefix)
	decoded, err := nameunit.Unescape(encoded)
	if err != nil {
		return "", false
	}
	unitPrefix, _, _, err := nameunit.Parse(decoded)
	if err != nil || unitPrefix != prefix {
		return "", false
	}
	return decoded, true
}
