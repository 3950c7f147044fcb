// Command guestsync-action converges a single domain's active state
// synchronously, for use as a systemd unit's ExecStart/ExecStop.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sio/guestsyncd/internal/vmctl"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: guestsync-action {start|stop} <domain-name> [--timeout SECONDS] [--delay SECONDS]")
		return 2
	}

	action := args[0]
	domain := args[1]
	if action != "start" && action != "stop" {
		fmt.Fprintf(os.Stderr, "guestsync-action: unknown action %q, want start or stop\n", action)
		return 2
	}

	timeout := envSeconds("WAIT_ACTION_SECONDS", 120*time.Second)
	delay := envSeconds("WAIT_CHECK_DELAY", time.Second)
	timeout, delay = parseFlags(args[2:], timeout, delay)

	socketPath := os.Getenv("GUESTSYNCD_VIRT_SOCKET")

	ctx, cancel := context.WithTimeout(context.Background(), timeout+10*time.Second)
	defer cancel()

	actuator, err := vmctl.Dial(ctx, socketPath, vmctl.Config{CheckDelay: delay, Timeout: timeout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "guestsync-action: %s %s: cannot connect to virtualization host: %v\n", action, domain, err)
		return 1
	}
	defer actuator.Close()

	if action == "start" {
		err = actuator.Start(ctx, domain)
	} else {
		err = actuator.Stop(ctx, domain)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "guestsync-action: %s %s: %v\n", action, domain, err)
		return 1
	}
	return 0
}

func envSeconds(name string, def time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Second
}

func parseFlags(args []string, timeout, delay time.Duration) (time.Duration, time.Duration) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--timeout":
			if i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					timeout = time.Duration(n) * time.Second
				}
				i++
			}
		case "--delay":
			if i+1 < len(args) {
				if n, err := strconv.Atoi(args[i+1]); err == nil {
					delay = time.Duration(n) * time.Second
				}
				i++
			}
		}
	}
	return timeout, delay
}
