// Package wifi samples received signal strength from the local radio.
package wifi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// NoSignalDBm is reported when the locked network is not visible.
const NoSignalDBm = -100

var (
	// ErrNoInterface is returned when no wireless interface can scan.
	ErrNoInterface = errors.New("wifi: no wireless interface")

	// ErrScanFailed wraps a failed scan invocation.
	ErrScanFailed = errors.New("wifi: scan failed")
)

// Network is one access point seen in a scan.
type Network struct {
	SSID      string `json:"ssid"`
	BSSID     string `json:"bssid"`
	SignalDBm int    `json:"signal_dbm"`
	Channel   int    `json:"channel"`
}

// Hidden reports whether the network does not broadcast its SSID.
func (n Network) Hidden() bool {
	return n.SSID == ""
}

// Scanner lists visible networks.
type Scanner interface {
	Scan(ctx context.Context) ([]Network, error)
}

// CommandRunner executes a command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// NMCLIScanner scans through NetworkManager's nmcli.
type NMCLIScanner struct {
	Interface string // empty scans every wireless device
	Rescan    bool   // force a fresh radio scan instead of the cached list

	run CommandRunner
}

// NewNMCLIScanner creates a scanner for iface.
func NewNMCLIScanner(iface string) *NMCLIScanner {
	return &NMCLIScanner{Interface: iface, Rescan: true, run: execCommand}
}

// Scan runs nmcli and parses its terse output.
func (s *NMCLIScanner) Scan(ctx context.Context) ([]Network, error) {
	args := []string{"-t", "-f", "SSID,BSSID,CHAN,SIGNAL", "dev", "wifi", "list"}
	if s.Rescan {
		args = append(args, "--rescan", "yes")
	} else {
		args = append(args, "--rescan", "no")
	}
	if s.Interface != "" {
		args = append(args, "ifname", s.Interface)
	}

	run := s.run
	if run == nil {
		run = execCommand
	}
	out, err := run(ctx, "nmcli", args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: nmcli not installed", ErrNoInterface)
		}
		return nil, fmt.Errorf("%w: %v", ErrScanFailed, err)
	}
	return ParseNMCLI(out)
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			if strings.Contains(msg, "No Wi-Fi device") || strings.Contains(msg, "not found") {
				return nil, fmt.Errorf("%w: %s", ErrNoInterface, msg)
			}
			return nil, fmt.Errorf("%s: %w", msg, err)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// ParseNMCLI parses `nmcli -t -f SSID,BSSID,CHAN,SIGNAL` output. Colons inside
// fields are escaped as "\:". SIGNAL is a 0-100 quality converted to dBm.
func ParseNMCLI(out []byte) ([]Network, error) {
	var nets []Network
	for i, line := range strings.Split(string(out), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := splitTerse(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("wifi: nmcli line %d: want 4 fields, got %d", i+1, len(fields))
		}

		quality, err := strconv.Atoi(strings.TrimSpace(fields[3]))
		if err != nil {
			return nil, fmt.Errorf("wifi: nmcli line %d: signal %q: %w", i+1, fields[3], err)
		}
		channel, _ := strconv.Atoi(strings.TrimSpace(fields[2]))

		nets = append(nets, Network{
			SSID:      fields[0],
			BSSID:     fields[1],
			Channel:   channel,
			SignalDBm: QualityToDBm(quality),
		})
	}
	return nets, nil
}

// QualityToDBm maps NetworkManager's 0-100 quality onto -100..-50 dBm.
func QualityToDBm(quality int) int {
	quality = max(0, min(100, quality))
	return quality/2 - 100
}

// splitTerse splits on unescaped colons and removes the escapes.
func splitTerse(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false

	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}
