// Package core holds the value types shared by every part of the sync engine:
// the per-instant SyncState snapshot, per-channel sync modes and the immutable
// Settings a SyncEngine is built from.
package core

import (
	"github.com/go-gl/mathgl/mgl64"
)

// SyncState is a snapshot of an object's transform at a sender timestamp.
// Once stored in a history buffer a SyncState is never mutated; updates
// produce a new value.
type SyncState struct {
	Timestamp       float64    `json:"timestamp"`
	Position        mgl64.Vec3 `json:"position"`
	Rotation        mgl64.Quat `json:"rotation"`
	Scale           mgl64.Vec3 `json:"scale"`
	Velocity        mgl64.Vec3 `json:"velocity"`
	AngularVelocity mgl64.Vec3 `json:"angularVelocity"`
	MotionMode      uint8      `json:"motionMode"`

	Teleport         bool `json:"teleport"`
	AtPositionalRest bool `json:"atPositionalRest"`
	AtRotationalRest bool `json:"atRotationalRest"`
}

// NewSyncState returns a zero state with an identity rotation and unit scale.
func NewSyncState() SyncState {
	return SyncState{
		Rotation: mgl64.QuatIdent(),
		Scale:    mgl64.Vec3{1, 1, 1},
	}
}

// AtRest reports whether the sender flagged both position and rotation as
// stationary.
func (s SyncState) AtRest() bool {
	return s.AtPositionalRest && s.AtRotationalRest
}

// Lerp blends every continuous channel of start and end by t. The discrete
// fields (motion mode, teleport, rest flags) are taken from start.
func Lerp(start, end SyncState, t float64) SyncState {
	out := start
	out.Timestamp = LerpFloat(start.Timestamp, end.Timestamp, t)
	out.Position = LerpVec3(start.Position, end.Position, t)
	out.Rotation = BlendQuat(start.Rotation, end.Rotation, t)
	out.Scale = LerpVec3(start.Scale, end.Scale, t)
	out.Velocity = LerpVec3(start.Velocity, end.Velocity, t)
	out.AngularVelocity = LerpVec3(start.AngularVelocity, end.AngularVelocity, t)
	out.Teleport = false
	return out
}

// LerpFloat blends a and b by t.
func LerpFloat(a, b, t float64) float64 {
	return a + (b-a)*t
}

// LerpVec3 blends a and b component-wise by t. t=1 returns b exactly.
func LerpVec3(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	if t == 1 {
		return b
	}
	return mgl64.Vec3{
		LerpFloat(a[0], b[0], t),
		LerpFloat(a[1], b[1], t),
		LerpFloat(a[2], b[2], t),
	}
}

// BlendQuat is a normalized linear quaternion blend along the shortest arc.
// The endpoints are returned unchanged for t=0 and t=1.
func BlendQuat(a, b mgl64.Quat, t float64) mgl64.Quat {
	switch t {
	case 0:
		return a
	case 1:
		return b
	}
	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}
	q := mgl64.QuatLerp(a, b, t)
	if q.Len() == 0 {
		return a
	}
	return q.Normalize()
}

// DistanceVec3 is the Euclidean distance between a and b.
func DistanceVec3(a, b mgl64.Vec3) float64 {
	return a.Sub(b).Len()
}

// WithinThreshold reports whether every axis of a and b differs by at most
// threshold.
func WithinThreshold(a, b mgl64.Vec3, threshold float64) bool {
	for i := 0; i < 3; i++ {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		if d > threshold {
			return false
		}
	}
	return true
}
