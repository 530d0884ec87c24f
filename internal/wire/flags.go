package wire

import "strings"

// Flags is the leading byte of a state update. Each bit marks an optional
// field present in the payload. Bit positions are part of the wire format.
type Flags uint8

const (
	FlagPosition Flags = 1 << iota
	FlagRotation
	FlagScale
	FlagVelocity
	FlagAngularVelocity
	FlagMotionMode
	FlagAtPositionalRest
	FlagAtRotationalRest
)

var flagNames = [8]string{
	"position",
	"rotation",
	"scale",
	"velocity",
	"angularVelocity",
	"motionMode",
	"atPositionalRest",
	"atRotationalRest",
}

// Has reports whether every bit of b is set.
func (f Flags) Has(b Flags) bool { return b != 0 && f&b == b }

// With returns f with b set.
func (f Flags) With(b Flags) Flags { return f | b }

// Without returns f with b cleared.
func (f Flags) Without(b Flags) Flags { return f &^ b }

// Set returns f with b set when on is true.
func (f Flags) Set(b Flags, on bool) Flags {
	if on {
		return f | b
	}
	return f &^ b
}

// Names lists the set bits in bit order.
func (f Flags) Names() []string {
	names := make([]string, 0, 8)
	for i, n := range flagNames {
		if f&(1<<i) != 0 {
			names = append(names, n)
		}
	}
	return names
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), "|")
}
