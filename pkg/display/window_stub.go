//go:build !cgo

package display

import "context"

// Run reports ErrNoDisplay; run the binary with -headless instead.
func Run(_ context.Context, _ Controller, _ Config) error {
	return ErrNoDisplay
}
