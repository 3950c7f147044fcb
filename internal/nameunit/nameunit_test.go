package nameunit

import (
	"errors"
	"testing"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"alpha",
		"three.vm",
		"guest with spaces",
		"weird/name@host",
	}
	for _, name := range cases {
		encoded := Escape(name)
		decoded, err := Unescape(encoded)
		if err != nil {
			t.Fatalf("Unescape(%q) error: %v", encoded, err)
		}
		if decoded != name {
			t.Fatalf("round trip mismatch: %q -> %q -> %q", name, encoded, decoded)
		}
	}
}

func TestUnescapeDanglingEscape(t *testing.T) {
	_, err := Unescape("libvirt_2dguest_4")
	if !errors.Is(err, ErrDanglingEscape) {
		t.Fatalf("expected ErrDanglingEscape, got %v", err)
	}
}

func TestParseWithInstance(t *testing.T) {
	prefix, instance, suffix, err := Parse("libvirt_2dguest@three.service")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if prefix != "libvirt_2dguest" {
		t.Fatalf("prefix = %q", prefix)
	}
	if instance != "three" {
		t.Fatalf("instance = %q", instance)
	}
	if suffix != "service" {
		t.Fatalf("suffix = %q", suffix)
	}
}

func TestParseWithoutInstance(t *testing.T) {
	prefix, instance, suffix, err := Parse("libvirt-guest.service")
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if prefix != "libvirt-guest" || instance != "" || suffix != "service" {
		t.Fatalf("got (%q, %q, %q)", prefix, instance, suffix)
	}
}

func TestParseInstanceWithDot(t *testing.T) {
	// The instance carries a literal dot; Build does not escape it and
	// Parse's last-'.'-then-last-'@' split still recovers it intact.
	full := Build("libvirt-guest", "my.vm", "service")
	prefix, instance, suffix, err := Parse(full)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if prefix != "libvirt-guest" || instance != "my.vm" || suffix != "service" {
		t.Fatalf("got (%q, %q, %q) from %q", prefix, instance, suffix, full)
	}
}

func TestBuildNoInstance(t *testing.T) {
	got := Build("libvirt-guest", "", "service")
	if got != "libvirt-guest.service" {
		t.Fatalf("got %q", got)
	}
}
