//go:build !linux

package main

import "errors"

// mountCold has no implementation outside linux; callers must proceed
// without a cold mount, per §4.6 step 3's architecture-mismatch allowance.
func mountCold(e *env) error {
	return errors.New("cold mount not supported on this platform")
}

func unmountCold(e *env) error {
	return nil
}
