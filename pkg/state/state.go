// Package state defines the coordinator-wide state word: the time-of-day
// phase, the power mode and the aggregated weather, block-on-priority and
// device error masks, packed into disjoint bit-fields of one integer.
package state

import (
	"fmt"
	"strings"
)

// Word is the global state value broadcast to every session.
type Word uint32

// Bit-field layout.
const (
	PhaseMask       Word = 0x0000000f
	PowerMask       Word = 0x00000030
	DeviceErrorMask Word = 0x00ff0000
	BopMask         Word = 0x0f000000
	WeatherMask     Word = 0x80000000

	// BadWeather is set when the system is not safe to observe.
	BadWeather Word = WeatherMask
)

// Block-on-priority bits reported by devices.
const (
	BopExposure   Word = 0x01000000
	BopReadout    Word = 0x02000000
	BopTelMove    Word = 0x04000000
	BopWillExpose Word = 0x08000000
)

// Phase is the astronomical time-of-day segment.
type Phase uint8

const (
	Day Phase = iota
	Evening
	Dusk
	Night
	Dawn
	Morning
)

var phaseNames = [...]string{"day", "evening", "dusk", "night", "dawn", "morning"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// ParsePhase converts a phase name back to a Phase.
func ParsePhase(s string) (Phase, error) {
	for i, n := range phaseNames {
		if strings.EqualFold(s, n) {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// PowerMode is the commanded operating mode of the observatory.
type PowerMode uint8

const (
	On PowerMode = iota
	Standby
	SoftOff
	HardOff
)

var powerNames = [...]string{"on", "standby", "soft_off", "hard_off"}

func (m PowerMode) String() string {
	if int(m) < len(powerNames) {
		return powerNames[m]
	}
	return fmt.Sprintf("power(%d)", uint8(m))
}

// Off reports whether the mode is one of the off modes.
func (m PowerMode) Off() bool {
	return m == SoftOff || m == HardOff
}

// ParsePowerMode converts a power mode name back to a PowerMode.
func ParsePowerMode(s string) (PowerMode, error) {
	for i, n := range powerNames {
		if strings.EqualFold(s, n) {
			return PowerMode(i), nil
		}
	}
	if strings.EqualFold(s, "off") {
		return HardOff, nil
	}
	return 0, fmt.Errorf("unknown power mode %q", s)
}

// PhaseWord returns the bits encoding p.
func PhaseWord(p Phase) Word {
	return Word(p) & PhaseMask
}

// PowerWord returns the bits encoding m.
func PowerWord(m PowerMode) Word {
	return (Word(m) << 4) & PowerMask
}

// Phase extracts the phase field.
func (w Word) Phase() Phase {
	return Phase(w & PhaseMask)
}

// Power extracts the power mode field.
func (w Word) Power() PowerMode {
	return PowerMode((w & PowerMask) >> 4)
}

// GoodWeather reports whether the bad-weather bit is clear.
func (w Word) GoodWeather() bool {
	return w&WeatherMask == 0
}

// Bop returns the block-on-priority bits.
func (w Word) Bop() Word {
	return w & BopMask
}

// DeviceErrors returns the device error bits.
func (w Word) DeviceErrors() Word {
	return w & DeviceErrorMask
}

// Masked replaces the bits of w selected by mask with the corresponding
// bits of value. Bits outside mask are preserved.
func (w Word) Masked(mask, value Word) Word {
	return (w &^ mask) | (value & mask)
}

// String renders the word for humans, e.g. "night on" or
// "day hard_off bad_weather bop=0x01000000".
func (w Word) String() string {
	var b strings.Builder
	b.WriteString(w.Phase().String())
	b.WriteByte(' ')
	b.WriteString(w.Power().String())
	if !w.GoodWeather() {
		b.WriteString(" bad_weather")
	}
	if bop := w.Bop(); bop != 0 {
		fmt.Fprintf(&b, " bop=0x%08x", uint32(bop))
	}
	if e := w.DeviceErrors(); e != 0 {
		fmt.Fprintf(&b, " errors=0x%08x", uint32(e))
	}
	return b.String()
}

// Transition describes the change from old to w in words, mentioning only
// the fields that differ.
func (w Word) Transition(old Word) string {
	var parts []string
	if old.Phase() != w.Phase() {
		parts = append(parts, fmt.Sprintf("phase %s -> %s", old.Phase(), w.Phase()))
	}
	if old.Power() != w.Power() {
		parts = append(parts, fmt.Sprintf("power %s -> %s", old.Power(), w.Power()))
	}
	if old.GoodWeather() != w.GoodWeather() {
		if w.GoodWeather() {
			parts = append(parts, "weather good")
		} else {
			parts = append(parts, "weather bad")
		}
	}
	if old.Bop() != w.Bop() {
		parts = append(parts, fmt.Sprintf("bop 0x%08x -> 0x%08x", uint32(old.Bop()), uint32(w.Bop())))
	}
	if old.DeviceErrors() != w.DeviceErrors() {
		parts = append(parts, fmt.Sprintf("errors 0x%08x -> 0x%08x", uint32(old.DeviceErrors()), uint32(w.DeviceErrors())))
	}
	if len(parts) == 0 {
		return "unchanged"
	}
	return strings.Join(parts, ", ")
}
