package unitctl

import "testing"

func TestProject(t *testing.T) {
	cases := []struct {
		state      string
		wantActive bool
		wantOK     bool
	}{
		{StateActive, true, true},
		{StateActivating, true, true},
		{StateInactive, false, true},
		{StateFailed, false, false},
		{StateDeactivating, false, false},
		{StateReloading, false, false},
		{"bogus", false, false},
	}
	for _, c := range cases {
		active, ok := Project(c.state)
		if active != c.wantActive || ok != c.wantOK {
			t.Fatalf("Project(%q) = (%v, %v), want (%v, %v)", c.state, active, ok, c.wantActive, c.wantOK)
		}
	}
}

func TestUnitNameFromPath(t *testing.T) {
	name, ok := unitNameFromPath("/org/freedesktop/systemd1/unit/libvirt_2dguest_40alpha_2eservice", "libvirt-guest")
	if !ok {
		t.Fatal("expected match")
	}
	if name != "libvirt-guest@alpha.service" {
		t.Fatalf("got %q", name)
	}

	if _, ok := unitNameFromPath("/org/freedesktop/systemd1/unit/libvirt_2dguest_40alpha_2eservice", "other-prefix"); ok {
		t.Fatal("expected prefix mismatch to be rejected")
	}

	if _, ok := unitNameFromPath("/some/other/path", "libvirt-guest"); ok {
		t.Fatal("expected non-unit path to be rejected")
	}
}
