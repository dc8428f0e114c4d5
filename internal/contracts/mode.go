package contracts

import "fmt"

// Mode selects the prediction source for a run.
// LOCAL performs on-box inference with real weights; CI reads pre-computed predictions
// and must never see the weights credential.
type Mode int

const (
	ModeLocal Mode = iota + 1
	ModeCI
)

// String returns the wire name of the mode
func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "LOCAL"
	case ModeCI:
		return "CI"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	if m != ModeLocal && m != ModeCI {
		return nil, fmt.Errorf("invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode parses LOCAL|CI
func ParseMode(s string) (Mode, error) {
	switch s {
	case "LOCAL", "local":
		return ModeLocal, nil
	case "CI", "ci":
		return ModeCI, nil
	default:
		return 0, fmt.Errorf("invalid mode %q (use LOCAL or CI)", s)
	}
}
