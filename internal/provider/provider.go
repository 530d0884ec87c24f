// Package provider gives the sync engine read and write access to the object
// it synchronizes. Each movement backend implements TransformProvider and
// advertises what it supports through Capabilities.
package provider

import (
	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// Capabilities describes what a backend can report and accept.
type Capabilities struct {
	// LinearVelocity is set when the backend tracks a linear velocity.
	LinearVelocity bool
	// AngularVelocity is set when the backend tracks an angular velocity.
	AngularVelocity bool
	// MotionMode is set when the backend exposes a discrete motion mode.
	MotionMode bool
	// Simulated is set when the host integrates velocities itself, so the
	// engine hands it velocities instead of positions while extrapolating.
	Simulated bool

	LinearDamping  float64
	AngularDamping float64
}

// TransformProvider is the object being synchronized.
type TransformProvider interface {
	Position() mgl64.Vec3
	SetPosition(mgl64.Vec3)
	Rotation() mgl64.Quat
	SetRotation(mgl64.Quat)
	Scale() mgl64.Vec3
	SetScale(mgl64.Vec3)
	LinearVelocity() mgl64.Vec3
	SetLinearVelocity(mgl64.Vec3)
	// AngularVelocity is in degrees per second about each axis.
	AngularVelocity() mgl64.Vec3
	SetAngularVelocity(mgl64.Vec3)
	MotionMode() uint8
	SetMotionMode(uint8)

	IsAuthoritative() bool
	Capabilities() Capabilities
}

// Sample reads the live transform of p into a state stamped ts.
func Sample(p TransformProvider, ts float64) core.SyncState {
	s := core.SyncState{
		Timestamp: ts,
		Position:  p.Position(),
		Rotation:  p.Rotation(),
		Scale:     p.Scale(),
	}
	caps := p.Capabilities()
	if caps.LinearVelocity {
		s.Velocity = p.LinearVelocity()
	}
	if caps.AngularVelocity {
		s.AngularVelocity = p.AngularVelocity()
	}
	if caps.MotionMode {
		s.MotionMode = p.MotionMode()
	}
	return s
}
