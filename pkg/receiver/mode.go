package receiver

import (
	"fmt"
	"strings"
)

// Mode is the demodulation mode.
type Mode int

// The zero Mode is invalid and means "unset".
const (
	ModeRaw Mode = iota + 1
	ModeFMNarrow
	ModeFMWide
	ModeAM
	ModeUSB
	ModeLSB
	ModeAPRS
	ModeADSB
)

// DefaultMode is used at startup.
const DefaultMode = ModeFMNarrow

var modeNames = [...]string{
	ModeRaw:      "RAW",
	ModeFMNarrow: "FM-NFM",
	ModeFMWide:   "FM-WFM",
	ModeAM:       "AM",
	ModeUSB:      "USB",
	ModeLSB:      "LSB",
	ModeAPRS:     "APRS",
	ModeADSB:     "ADS-B",
}

var modeAliases = map[string]Mode{
	"NFM":       ModeFMNarrow,
	"FM":        ModeFMNarrow,
	"FM-NARROW": ModeFMNarrow,
	"WFM":       ModeFMWide,
	"FM-WIDE":   ModeFMWide,
	"ADSB":      ModeADSB,
}

// Modes lists every mode in display order.
func Modes() []Mode {
	out := make([]Mode, 0, ModeADSB)
	for m := ModeRaw; m <= ModeADSB; m++ {
		out = append(out, m)
	}
	return out
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m >= ModeRaw && m <= ModeADSB }

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// Audible reports whether the mode produces audio. APRS and ADS-B show
// the spectrum only.
func (m Mode) Audible() bool {
	switch m {
	case ModeFMNarrow, ModeFMWide, ModeAM, ModeUSB, ModeLSB:
		return true
	}
	return false
}

// ParseMode accepts display names and a few common aliases, ignoring case.
func ParseMode(s string) (Mode, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	for _, m := range Modes() {
		if u == modeNames[m] {
			return m, nil
		}
	}
	if m, ok := modeAliases[u]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
