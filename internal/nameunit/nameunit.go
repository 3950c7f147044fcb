// Package nameunit implements the systemd unit-name escaping convention
// and the prefix/instance/suffix split used to pair a templated unit
// with a virtualization domain. Escape/Unescape and Parse/Build are
// separate concerns: escaping only matters at the D-Bus object-path
// boundary, while the unit name everywhere else (ListUnits, StartUnit,
// systemctl) is the literal, unescaped form Parse and Build work with.
//
// The codec is pure: it holds no state and talks to no external system.
package nameunit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrDanglingEscape is returned by Unescape when the input ends with an
// incomplete "_xx" escape sequence.
var ErrDanglingEscape = errors.New("nameunit: dangling escape sequence")

// isUnitAllowed reports whether b may appear unescaped in a unit name.
func isUnitAllowed(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z':
		return true
	case b >= 'A' && b <= 'Z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == ':' || b == '-' || b == '_' || b == '.' || b == '\\':
		return true
	}
	return false
}

// Escape applies the systemd escaping rules: any byte not in the
// identifier alphabet is replaced by "_xx", its hex pair.
func Escape(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		// '-' is itself the separator systemd uses for '/'; the literal
		// byte still needs escaping to avoid ambiguity, matching the
		// upstream convention of escaping every '-' as well. '_' is the
		// escape character itself, so it is escaped too.
		if c == '-' || c == '_' || !isUnitAllowed(c) {
			fmt.Fprintf(&b, "_%02x", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Unescape reverses Escape. It returns ErrDanglingEscape when the input
// contains a trailing "_" escape with no following hex pair.
func Unescape(encoded string) (string, error) {
	var b strings.Builder
	b.Grow(len(encoded))
	for i := 0; i < len(encoded); i++ {
		c := encoded[i]
		if c != '_' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(encoded) {
			return "", fmt.Errorf("%w: %q", ErrDanglingEscape, encoded)
		}
		v, err := strconv.ParseUint(encoded[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrDanglingEscape, encoded, err)
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}

// Parse splits a full unit name into prefix, instance, and suffix. The
// suffix is everything after the last '.'; the instance is whatever
// lies between the last '@' and the suffix. If no '@' is present,
// instance is empty and prefix is the whole base name.
//
// Parse is a pure split: it performs no unescaping. Callers that read
// unit names off a D-Bus object path must Unescape the path segment
// first, then Parse the result; everywhere else (ListUnits results,
// systemctl, unit names this package built with Build) the name is
// already literal.
func Parse(full string) (prefix, instance, suffix string, err error) {
	base := full
	if idx := strings.LastIndexByte(full, '.'); idx >= 0 {
		base = full[:idx]
		suffix = full[idx+1:]
	}
	at := strings.LastIndexByte(base, '@')
	if at < 0 {
		return base, "", suffix, nil
	}
	prefix = base[:at]
	instance = base[at+1:]
	return prefix, instance, suffix, nil
}

// Build composes a full unit name from its parts. instance is carried
// literally, matching the name systemd itself reports from ListUnits
// and expects from StartUnit/StopUnit/systemctl; Escape only applies
// at the separate D-Bus object-path boundary.
func Build(prefix, instance, suffix string) string {
	if instance == "" {
		return fmt.Sprintf("%s.%s", prefix, suffix)
	}
	return fmt.Sprintf("%s@%s.%s", prefix, instance, suffix)
}
