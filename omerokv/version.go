package omerokv

import (
	"fmt"

	"github.com/blang/semver"
)

const (
	// APIVersion is the version of the store HTTP API served by the emulator.
	APIVersion = "1.1.0"

	// MinAPIVersion is the oldest server API a client will talk to.
	MinAPIVersion = "1.0.0"
)

// CheckAPIVersion returns ErrIncompatibleServer if the server version is older than
// MinAPIVersion or of a different major version.
func CheckAPIVersion(serverVersion string) error {
	v, err := semver.ParseTolerant(serverVersion)
	if err != nil {
		return fmt.Errorf("bad server version %q: %v", serverVersion, err)
	}
	min := semver.MustParse(MinAPIVersion)
	if v.Major != min.Major || v.LT(min) {
		return fmt.Errorf("%w: server API %s, need >= %s and < %d.0.0", ErrIncompatibleServer, v, min, min.Major+1)
	}
	return nil
}
