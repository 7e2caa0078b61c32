// Package community resolves which community a request acts in. Locks,
// applications and verifications are all scoped to one community.
package community

import "os"

// Mode controls how the community is resolved.
type Mode string

const (
	// ModeSingle uses the "default" community for all requests.
	ModeSingle Mode = "single"
	// ModeMulti requires a community id on every request.
	ModeMulti Mode = "multi"
)

// DefaultID is the community used in single mode.
const DefaultID = "default"

// ModeFromEnv reads GATING_COMMUNITY_MODE; anything but "multi" is single.
func ModeFromEnv() Mode {
	if os.Getenv("GATING_COMMUNITY_MODE") == string(ModeMulti) {
		return ModeMulti
	}
	return ModeSingle
}
