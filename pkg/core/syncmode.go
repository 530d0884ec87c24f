package core

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// SyncMode selects which axes of a vector channel are synchronized.
type SyncMode uint8

const (
	SyncXYZ SyncMode = iota
	SyncXY
	SyncXZ
	SyncYZ
	SyncX
	SyncY
	SyncZ
	SyncNone
)

var syncModeNames = [...]string{"xyz", "xy", "xz", "yz", "x", "y", "z", "none"}

func (m SyncMode) String() string {
	if int(m) < len(syncModeNames) {
		return syncModeNames[m]
	}
	return fmt.Sprintf("SyncMode(%d)", m)
}

// ParseSyncMode accepts the lower or upper case axis names, e.g. "xz" or "NONE".
func ParseSyncMode(s string) (SyncMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range syncModeNames {
		if s == name {
			return SyncMode(i), nil
		}
	}
	return SyncNone, fmt.Errorf("unknown sync mode %q", s)
}

// Enabled reports whether at least one axis is synchronized.
func (m SyncMode) Enabled() bool { return m != SyncNone && int(m) < len(syncModeNames) }

// SyncsX reports whether the X axis is synchronized.
func (m SyncMode) SyncsX() bool {
	return m == SyncXYZ || m == SyncXY || m == SyncXZ || m == SyncX
}

// SyncsY reports whether the Y axis is synchronized.
func (m SyncMode) SyncsY() bool {
	return m == SyncXYZ || m == SyncXY || m == SyncYZ || m == SyncY
}

// SyncsZ reports whether the Z axis is synchronized.
func (m SyncMode) SyncsZ() bool {
	return m == SyncXYZ || m == SyncXZ || m == SyncYZ || m == SyncZ
}

// Axes returns the per-axis enable mask in X, Y, Z order.
func (m SyncMode) Axes() [3]bool {
	return [3]bool{m.SyncsX(), m.SyncsY(), m.SyncsZ()}
}

// AxisCount is the number of synchronized axes.
func (m SyncMode) AxisCount() int {
	n := 0
	for _, on := range m.Axes() {
		if on {
			n++
		}
	}
	return n
}

// Mask takes the synchronized axes from target and keeps the remaining axes
// of live.
func (m SyncMode) Mask(live, target mgl64.Vec3) mgl64.Vec3 {
	out := live
	for i, on := range m.Axes() {
		if on {
			out[i] = target[i]
		}
	}
	return out
}

// ExtrapolationMode bounds how far a receiver may dead-reckon past its newest
// state.
type ExtrapolationMode uint8

const (
	ExtrapolateLimited ExtrapolationMode = iota
	ExtrapolateUnlimited
	ExtrapolateNone
)

func (m ExtrapolationMode) String() string {
	switch m {
	case ExtrapolateLimited:
		return "limited"
	case ExtrapolateUnlimited:
		return "unlimited"
	case ExtrapolateNone:
		return "none"
	}
	return fmt.Sprintf("ExtrapolationMode(%d)", m)
}

// ParseExtrapolationMode parses "limited", "unlimited" or "none".
func ParseExtrapolationMode(s string) (ExtrapolationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "limited":
		return ExtrapolateLimited, nil
	case "unlimited":
		return ExtrapolateUnlimited, nil
	case "none":
		return ExtrapolateNone, nil
	}
	return ExtrapolateNone, fmt.Errorf("unknown extrapolation mode %q", s)
}

// RestState tracks whether a channel has been stationary long enough to stop
// sending it.
type RestState uint8

const (
	Moving RestState = iota
	AtRest
	JustStartedMoving
)

func (r RestState) String() string {
	switch r {
	case Moving:
		return "moving"
	case AtRest:
		return "at_rest"
	case JustStartedMoving:
		return "just_started_moving"
	}
	return fmt.Sprintf("RestState(%d)", r)
}
