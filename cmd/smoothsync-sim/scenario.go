package main

import (
	"github.com/OCAP2/smoothsync/internal/provider"
	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// Leg is one scripted segment of the owner's motion.
type Leg struct {
	Duration        float64
	Velocity        mgl64.Vec3
	AngularVelocity mgl64.Vec3
	MotionMode      uint8
	// TeleportTo moves the object before the leg starts.
	TeleportTo *mgl64.Vec3
}

// Scenario plays a list of legs on an owner transform, looping at the end.
type Scenario struct {
	legs    []Leg
	current int
	elapsed float64
	started bool
}

// DefaultScenario drives, turns, rests, teleports and drives again.
func DefaultScenario() *Scenario {
	far := mgl64.Vec3{100, 0, 100}
	return NewScenario([]Leg{
		{Duration: 3, Velocity: mgl64.Vec3{4, 0, 0}},
		{Duration: 2, Velocity: mgl64.Vec3{2, 0, 2}, AngularVelocity: mgl64.Vec3{0, 45, 0}, MotionMode: 1},
		{Duration: 2},
		{Duration: 2, Velocity: mgl64.Vec3{0, 0, -3}, TeleportTo: &far},
		{Duration: 1, Velocity: mgl64.Vec3{0, 6, 0}, MotionMode: 2},
		{Duration: 2},
	})
}

// NewScenario creates a scenario from legs.
func NewScenario(legs []Leg) *Scenario {
	return &Scenario{legs: legs}
}

// Advance applies the scenario to p for dt seconds and reports whether a
// teleport happened. Simulated hosts only get velocities; their physics step
// moves them.
func (s *Scenario) Advance(p provider.TransformProvider, dt float64) bool {
	if len(s.legs) == 0 {
		return false
	}

	teleported := false
	if !s.started || s.elapsed >= s.legs[s.current].Duration {
		if s.started {
			s.current = (s.current + 1) % len(s.legs)
		}
		s.started = true
		s.elapsed = 0

		if leg := s.legs[s.current]; leg.TeleportTo != nil {
			p.SetPosition(*leg.TeleportTo)
			teleported = true
		}
	}

	leg := s.legs[s.current]
	p.SetLinearVelocity(leg.Velocity)
	p.SetAngularVelocity(leg.AngularVelocity)
	p.SetMotionMode(leg.MotionMode)
	if !p.Capabilities().Simulated {
		p.SetPosition(p.Position().Add(leg.Velocity.Mul(dt)))
		p.SetRotation(p.Rotation().Mul(core.QuatFromEuler(leg.AngularVelocity.Mul(dt))).Normalize())
	}
	s.elapsed += dt
	return teleported
}

// Leg returns the index of the leg being played.
func (s *Scenario) Leg() int { return s.current }
