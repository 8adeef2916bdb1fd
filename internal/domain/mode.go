package domain

import "fmt"

// Mode selects which node a request is executed against
type Mode string

const (
	// ModeLive targets the operator's configured, persistent RPC endpoint
	ModeLive Mode = "live"
	// ModeLocal targets the ephemeral forked test network
	ModeLocal Mode = "local"
)

// ParseMode parses a mode name, accepting "fork" as an alias for local
func ParseMode(s string) (Mode, error) {
	switch s {
	case "live", "":
		return ModeLive, nil
	case "local", "fork":
		return ModeLocal, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected live or local)", s)
	}
}

func (m Mode) String() string {
	return string(m)
}

// IsLocal returns true for the forked test network mode
func (m Mode) IsLocal() bool {
	return m == ModeLocal
}
