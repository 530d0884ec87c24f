package reconstruct

import (
	"github.com/OCAP2/smoothsync/internal/provider"
	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// Apply writes a reconstruction to p. Interpolated and resting targets blend
// channel by channel with the configured lerp speeds, snapping past the snap
// thresholds. Extrapolated targets go to the host physics as velocities when
// it simulates them, otherwise straight to the transform. A stopped
// extrapolation zeroes velocities and leaves the transform where it is.
func (r *Reconstructor) Apply(p provider.TransformProvider, res Result) {
	caps := p.Capabilities()

	switch res.Mode {
	case Idle:
		return
	case ExtrapolationStopped:
		p.SetLinearVelocity(mgl64.Vec3{})
		p.SetAngularVelocity(mgl64.Vec3{})
		return
	case Extrapolating:
		r.applyExtrapolated(p, caps, res.Target)
		return
	}

	posSpeed, rotSpeed, scaleSpeed := r.cfg.PositionLerpSpeed, r.cfg.RotationLerpSpeed, r.cfg.ScaleLerpSpeed
	if res.Snap {
		posSpeed, rotSpeed, scaleSpeed = 1, 1, 1
	}

	r.applyPosition(p, res.Target.Position, posSpeed)
	r.applyRotation(p, res.Target.Rotation, rotSpeed)
	r.applyScale(p, res.Target.Scale, scaleSpeed)

	if caps.Simulated {
		p.SetLinearVelocity(mgl64.Vec3{})
		p.SetAngularVelocity(mgl64.Vec3{})
	}
	if caps.MotionMode {
		p.SetLinearVelocity(res.Target.Velocity)
		p.SetMotionMode(res.Target.MotionMode)
	}
}

func (r *Reconstructor) applyExtrapolated(p provider.TransformProvider, caps provider.Capabilities, target core.SyncState) {
	if caps.Simulated {
		p.SetLinearVelocity(r.cfg.Velocity.Mode.Mask(p.LinearVelocity(), target.Velocity))
		p.SetAngularVelocity(r.cfg.AngularVelocity.Mode.Mask(p.AngularVelocity(), target.AngularVelocity))
		return
	}
	if r.cfg.Position.Mode.Enabled() {
		p.SetPosition(r.cfg.Position.Mode.Mask(p.Position(), target.Position))
	}
	if r.cfg.Rotation.Mode.Enabled() {
		p.SetRotation(r.maskRotation(p.Rotation(), target.Rotation))
	}
	if caps.MotionMode {
		p.SetLinearVelocity(target.Velocity)
		p.SetMotionMode(target.MotionMode)
	}
}

func (r *Reconstructor) applyPosition(p provider.TransformProvider, target mgl64.Vec3, speed float64) {
	mode := r.cfg.Position.Mode
	if !mode.Enabled() {
		return
	}
	cur := p.Position()
	target = mode.Mask(cur, target)
	dist := core.DistanceVec3(cur, target)
	if r.cfg.ReceivedPositionThreshold != 0 && dist <= r.cfg.ReceivedPositionThreshold {
		return
	}
	if dist > r.cfg.PositionSnapThreshold {
		speed = 1
	}
	p.SetPosition(core.LerpVec3(cur, target, speed))
}

func (r *Reconstructor) applyRotation(p provider.TransformProvider, target mgl64.Quat, speed float64) {
	if !r.cfg.Rotation.Mode.Enabled() {
		return
	}
	cur := p.Rotation()
	target = r.maskRotation(cur, target)
	angle := core.AngleBetween(cur, target)
	if r.cfg.ReceivedRotationThreshold != 0 && angle <= r.cfg.ReceivedRotationThreshold {
		return
	}
	if angle > r.cfg.RotationSnapThreshold {
		speed = 1
	}
	p.SetRotation(core.BlendQuat(cur, target, speed))
}

func (r *Reconstructor) applyScale(p provider.TransformProvider, target mgl64.Vec3, speed float64) {
	mode := r.cfg.Scale.Mode
	if !mode.Enabled() {
		return
	}
	cur := p.Scale()
	target = mode.Mask(cur, target)
	if cur == target {
		return
	}
	if core.DistanceVec3(cur, target) > r.cfg.ScaleSnapThreshold {
		speed = 1
	}
	p.SetScale(core.LerpVec3(cur, target, speed))
}

// maskRotation keeps the live Euler angles of axes that are not synchronized.
func (r *Reconstructor) maskRotation(live, target mgl64.Quat) mgl64.Quat {
	mode := r.cfg.Rotation.Mode
	if mode == core.SyncXYZ {
		return target
	}
	return core.QuatFromEuler(mode.Mask(core.EulerFromQuat(live), core.EulerFromQuat(target)))
}
