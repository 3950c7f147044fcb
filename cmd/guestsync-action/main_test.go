package main

import (
	"testing"
	"time"
)

func TestParseFlagsOverridesDefaults(t *testing.T) {
	timeout, delay := parseFlags([]string{"--timeout", "30", "--delay", "2"}, 120*time.Second, time.Second)
	if timeout != 30*time.Second {
		t.Fatalf("timeout = %v, want 30s", timeout)
	}
	if delay != 2*time.Second {
		t.Fatalf("delay = %v, want 2s", delay)
	}
}

func TestParseFlagsIgnoresMalformedValue(t *testing.T) {
	timeout, delay := parseFlags([]string{"--timeout", "nope"}, 120*time.Second, time.Second)
	if timeout != 120*time.Second || delay != time.Second {
		t.Fatalf("expected defaults preserved on malformed flag, got %v %v", timeout, delay)
	}
}

func TestRunRejectsUnknownAction(t *testing.T) {
	if code := run([]string{"reboot", "alpha"}); code != 2 {
		t.Fatalf("expected exit code 2 for unknown action, got %d", code)
	}
}

func TestRunRequiresDomainArgument(t *testing.T) {
	if code := run([]string{"start"}); code != 2 {
		t.Fatalf("expected exit code 2 for missing domain argument, got %d", code)
	}
}
