// Package sendgate decides, once per tick on the authoritative peer, which
// channels of the object's transform are worth sending.
package sendgate

import (
	"github.com/OCAP2/smoothsync/internal/provider"
	"github.com/OCAP2/smoothsync/internal/wire"
	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// Decision is the immutable outcome of one tick's send evaluation.
type Decision struct {
	Position        bool
	Rotation        bool
	Scale           bool
	Velocity        bool
	AngularVelocity bool
	MotionMode      bool

	AtPositionalRest bool
	AtRotationalRest bool
	Forced           bool
}

// Any reports whether at least one channel is sent.
func (d Decision) Any() bool {
	return d.Position || d.Rotation || d.Scale || d.Velocity || d.AngularVelocity || d.MotionMode
}

// Flags converts the decision to the message flag byte.
func (d Decision) Flags() wire.Flags {
	var f wire.Flags
	f = f.Set(wire.FlagPosition, d.Position)
	f = f.Set(wire.FlagRotation, d.Rotation)
	f = f.Set(wire.FlagScale, d.Scale)
	f = f.Set(wire.FlagVelocity, d.Velocity)
	f = f.Set(wire.FlagAngularVelocity, d.AngularVelocity)
	f = f.Set(wire.FlagMotionMode, d.MotionMode)
	f = f.Set(wire.FlagAtPositionalRest, d.AtPositionalRest)
	f = f.Set(wire.FlagAtRotationalRest, d.AtRotationalRest)
	return f
}

// Gate holds the sender-side state: what was last sent, when, and the rest
// detectors for position and rotation.
type Gate struct {
	cfg core.Settings

	pos *RestDetector[mgl64.Vec3]
	rot *RestDetector[mgl64.Quat]

	lastSent     core.SyncState
	lastSentMode uint8
	lastSendTime float64
	sentOnce     bool
	force        bool

	teleported  bool
	teleportPos mgl64.Vec3
	teleportRot mgl64.Quat
}

// New creates a gate for the given settings.
func New(cfg core.Settings) *Gate {
	return &Gate{
		cfg:      cfg,
		pos:      NewPositionDetector(cfg.AtRestPositionThreshold, cfg.AtRestThresholdCount),
		rot:      NewRotationDetector(cfg.AtRestRotationThreshold, cfg.AtRestThresholdCount),
		lastSent: core.NewSyncState(),
	}
}

// ForceSend makes the next evaluation send every enabled channel regardless
// of thresholds and the send interval.
func (g *Gate) ForceSend() { g.force = true }

// MarkTeleport records the transform the object was just teleported to, so
// resting there is not mistaken for starting to move.
func (g *Gate) MarkTeleport(position mgl64.Vec3, rotation mgl64.Quat) {
	g.teleported = true
	g.teleportPos = position
	g.teleportRot = rotation
}

// RestStates returns the current position and rotation rest states.
func (g *Gate) RestStates() (core.RestState, core.RestState) {
	return g.pos.State(), g.rot.State()
}

// Reset forgets everything sent so far; the next evaluation sends a full
// state.
func (g *Gate) Reset() {
	g.pos.Reset()
	g.rot.Reset()
	g.lastSent = core.NewSyncState()
	g.lastSentMode = 0
	g.lastSendTime = 0
	g.sentOnce = false
	g.force = false
	g.teleported = false
}

// Evaluate runs the rest detectors against the live transform and decides
// what to send at local time now, dt seconds after the previous tick. The
// returned state is only meaningful when the decision sends something.
func (g *Gate) Evaluate(live core.SyncState, caps provider.Capabilities, now, dt float64) (Decision, core.SyncState) {
	defer g.settle(live)

	force := g.force || !g.sentOnce
	if g.cfg.ExtrapolationMode != core.ExtrapolateNone {
		if g.cfg.Position.Mode.Enabled() && g.pos.Observe(live.Position, dt, g.teleportPos, g.teleported) {
			force = true
		}
		if g.cfg.Rotation.Mode.Enabled() && g.rot.Observe(live.Rotation, dt, g.teleportRot, g.teleported) {
			force = true
		}
	}

	modeChannel := caps.MotionMode && g.cfg.SyncMotionMode
	modeChanged := modeChannel && live.MotionMode != g.lastSentMode
	if modeChanged {
		force = true
	}

	if !force && now-g.lastSendTime < g.cfg.SendInterval() {
		return Decision{}, core.SyncState{}
	}

	posRest, rotRest := g.pos.State(), g.rot.State()
	d := Decision{
		Position:        g.shouldSendPosition(live, force, posRest),
		Rotation:        g.shouldSendRotation(live, force, rotRest),
		Scale:           g.shouldSendScale(live, force),
		Velocity:        caps.LinearVelocity && g.shouldSendVector(g.cfg.Velocity, live.Velocity, g.lastSent.Velocity, force, posRest),
		AngularVelocity: caps.AngularVelocity && g.shouldSendVector(g.cfg.AngularVelocity, live.AngularVelocity, g.lastSent.AngularVelocity, force, rotRest),
		MotionMode:      modeChanged || (modeChannel && !g.sentOnce),
		Forced:          force,
	}
	if !d.Any() {
		return Decision{}, core.SyncState{}
	}
	d.AtPositionalRest = posRest == core.AtRest
	d.AtRotationalRest = rotRest == core.AtRest

	out := live
	out.Timestamp = now
	out.AtPositionalRest = d.AtPositionalRest
	out.AtRotationalRest = d.AtRotationalRest
	if posRest == core.JustStartedMoving || rotRest == core.JustStartedMoving {
		out.Timestamp = now - dt
		out.Position = g.pos.Anchor()
		out.Rotation = g.rot.Anchor()
		if posRest == core.JustStartedMoving {
			out.Position = g.lastSent.Position
		}
		if rotRest == core.JustStartedMoving {
			out.Rotation = g.lastSent.Rotation
		}
	}

	g.record(d, out, now)
	return d, out
}

func (g *Gate) shouldSendPosition(live core.SyncState, force bool, rest core.RestState) bool {
	if !g.cfg.Position.Mode.Enabled() {
		return false
	}
	return force || (!core.WithinThreshold(live.Position, g.lastSent.Position, g.cfg.Position.SendThresh) && rest != core.AtRest)
}

func (g *Gate) shouldSendRotation(live core.SyncState, force bool, rest core.RestState) bool {
	if !g.cfg.Rotation.Mode.Enabled() {
		return false
	}
	return force || (!sameRotation(live.Rotation, g.lastSent.Rotation, g.cfg.Rotation.SendThresh) && rest != core.AtRest)
}

func (g *Gate) shouldSendScale(live core.SyncState, force bool) bool {
	if !g.cfg.Scale.Mode.Enabled() {
		return false
	}
	if force {
		return true
	}
	thr := g.cfg.Scale.SendThresh
	return !core.WithinThreshold(live.Scale, g.lastSent.Scale, thr) &&
		(thr == 0 || core.DistanceVec3(live.Scale, g.lastSent.Scale) > thr)
}

func (g *Gate) shouldSendVector(ch core.ChannelSettings, live, last mgl64.Vec3, force bool, rest core.RestState) bool {
	if !ch.Mode.Enabled() {
		return false
	}
	return force || (!core.WithinThreshold(live, last, ch.SendThresh) && rest != core.AtRest)
}

func (g *Gate) record(d Decision, sent core.SyncState, now float64) {
	if d.Position {
		g.lastSent.Position = sent.Position
	}
	if d.Rotation {
		g.lastSent.Rotation = sent.Rotation
	}
	if d.Scale {
		g.lastSent.Scale = sent.Scale
	}
	if d.Velocity {
		g.lastSent.Velocity = sent.Velocity
	}
	if d.AngularVelocity {
		g.lastSent.AngularVelocity = sent.AngularVelocity
	}
	if d.MotionMode {
		g.lastSentMode = sent.MotionMode
	}
	g.lastSendTime = now
	g.sentOnce = true
}

func (g *Gate) settle(live core.SyncState) {
	g.pos.Settle(live.Position)
	g.rot.Settle(live.Rotation)
	g.force = false
}
