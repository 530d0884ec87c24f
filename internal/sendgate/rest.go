package sendgate

import (
	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// RestDetector decides when a channel has stopped moving. A value that stays
// within the threshold of its anchor for the configured number of seconds
// puts the channel at rest; leaving that range wakes it up again.
type RestDetector[T comparable] struct {
	same     func(a, b T) bool
	required float64

	state   core.RestState
	elapsed float64
	anchor  T
	primed  bool
}

// NewPositionDetector detects rest on positions using a per-axis threshold.
func NewPositionDetector(threshold, seconds float64) *RestDetector[mgl64.Vec3] {
	return &RestDetector[mgl64.Vec3]{
		same: func(a, b mgl64.Vec3) bool {
			return core.WithinThreshold(a, b, threshold)
		},
		required: seconds,
	}
}

// NewRotationDetector detects rest on rotations using a per-axis threshold in
// degrees.
func NewRotationDetector(threshold, seconds float64) *RestDetector[mgl64.Quat] {
	return &RestDetector[mgl64.Quat]{
		same: func(a, b mgl64.Quat) bool {
			return sameRotation(a, b, threshold)
		},
		required: seconds,
	}
}

func sameRotation(a, b mgl64.Quat, threshold float64) bool {
	if a == b {
		return true
	}
	return core.WithinThreshold(core.DeltaEuler(a, b), mgl64.Vec3{}, threshold)
}

// State returns the current rest state.
func (d *RestDetector[T]) State() core.RestState { return d.state }

// Anchor returns the value the channel is compared against.
func (d *RestDetector[T]) Anchor() T { return d.anchor }

// Observe compares current with the anchor after dt seconds and reports
// whether the transition it made requires an immediate send. Waking up at
// the position the object was teleported to does not count as moving.
func (d *RestDetector[T]) Observe(current T, dt float64, teleportedTo T, teleported bool) bool {
	if !d.primed {
		d.anchor = current
		d.primed = true
	}

	if d.same(d.anchor, current) {
		if d.state == core.AtRest {
			return false
		}
		d.elapsed += dt
		if d.elapsed >= d.required {
			d.elapsed = 0
			d.state = core.AtRest
			return true
		}
		return false
	}

	switch {
	case d.state == core.AtRest && !(teleported && current == teleportedTo):
		d.state = core.JustStartedMoving
		return true
	case d.state == core.JustStartedMoving:
		d.state = core.Moving
	default:
		d.elapsed = 0
	}
	return false
}

// Settle moves the anchor to current unless the channel is at rest or is
// accumulating stillness.
func (d *RestDetector[T]) Settle(current T) {
	if d.elapsed == 0 && d.state != core.AtRest {
		d.anchor = current
		d.primed = true
	}
}

// Reset returns the detector to a moving channel with no anchor.
func (d *RestDetector[T]) Reset() {
	var zero T
	d.state = core.Moving
	d.elapsed = 0
	d.anchor = zero
	d.primed = false
}
