package scheduler

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Constraint is an environmental precondition for starting a run. An unmet
// constraint defers the run; it never fails it.
type Constraint interface {
	Name() string
	Satisfied(ctx context.Context) (bool, error)
}

// NetworkReachable is satisfied when a TCP connection to the server can be opened
type NetworkReachable struct {
	Address string
	Timeout time.Duration
}

// NewNetworkReachable builds the constraint for a server base URL
func NewNetworkReachable(serverURL string, timeout time.Duration) (*NetworkReachable, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q", serverURL)
	}

	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NetworkReachable{Address: net.JoinHostPort(u.Hostname(), port), Timeout: timeout}, nil
}

// Name implements Constraint
func (n *NetworkReachable) Name() string { return "network" }

// Satisfied implements Constraint
func (n *NetworkReachable) Satisfied(ctx context.Context) (bool, error) {
	d := net.Dialer{Timeout: n.Timeout}
	conn, err := d.DialContext(ctx, "tcp", n.Address)
	if err != nil {
		return false, nil
	}
	conn.Close()
	return true, nil
}

// BatteryNotLow is satisfied when the device runs on mains power, has no
// battery, or the battery is at or above Threshold percent
type BatteryNotLow struct {
	Threshold int
	Dir       string // power supply class directory
}

// NewBatteryNotLow creates the constraint reading /sys/class/power_supply
func NewBatteryNotLow(threshold int) *BatteryNotLow {
	return &BatteryNotLow{Threshold: threshold, Dir: "/sys/class/power_supply"}
}

// Name implements Constraint
func (b *BatteryNotLow) Name() string { return "battery" }

// Satisfied implements Constraint
func (b *BatteryNotLow) Satisfied(context.Context) (bool, error) {
	batteries, err := filepath.Glob(filepath.Join(b.Dir, "BAT*"))
	if err != nil {
		return false, err
	}
	if len(batteries) == 0 {
		return true, nil
	}

	for _, dir := range batteries {
		status, _ := readTrimmed(filepath.Join(dir, "status"))
		if status == "Charging" || status == "Full" {
			return true, nil
		}

		raw, err := readTrimmed(filepath.Join(dir, "capacity"))
		if err != nil {
			return false, err
		}
		capacity, err := strconv.Atoi(raw)
		if err != nil {
			return false, fmt.Errorf("parsing battery capacity %q: %w", raw, err)
		}
		if capacity >= b.Threshold {
			return true, nil
		}
	}
	return false, nil
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
