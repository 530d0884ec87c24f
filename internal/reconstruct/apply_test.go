package reconstruct

import (
	"testing"

	"github.com/OCAP2/smoothsync/internal/provider"
	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

func target(pos mgl64.Vec3) core.SyncState {
	s := core.NewSyncState()
	s.Position = pos
	return s
}

func TestApply_LerpsTowardTarget(t *testing.T) {
	r := New(core.DefaultSettings())
	p := provider.NewStatic(false)

	r.Apply(p, Result{Mode: Interpolating, Target: target(mgl64.Vec3{10, 0, 0})})
	assert.InDelta(t, 8.5, p.Position().X(), 1e-12)
}

func TestApply_SnapThreshold(t *testing.T) {
	cfg := core.DefaultSettings()
	cfg.PositionSnapThreshold = 5
	r := New(cfg)
	p := provider.NewStatic(false)

	r.Apply(p, Result{Mode: Interpolating, Target: target(mgl64.Vec3{10, 0, 0})})
	assert.Equal(t, mgl64.Vec3{10, 0, 0}, p.Position())
}

func TestApply_SnapResult(t *testing.T) {
	r := New(core.DefaultSettings())
	p := provider.NewStatic(false)

	tgt := target(mgl64.Vec3{3, 0, 0})
	tgt.Rotation = core.QuatFromEuler(mgl64.Vec3{0, 0, 30})
	tgt.Scale = mgl64.Vec3{2, 2, 2}
	r.Apply(p, Result{Mode: Interpolating, Target: tgt, Snap: true})

	assert.Equal(t, tgt.Position, p.Position())
	assert.Equal(t, tgt.Rotation, p.Rotation())
	assert.Equal(t, tgt.Scale, p.Scale())
}

func TestApply_ReceivedThreshold(t *testing.T) {
	cfg := core.DefaultSettings()
	cfg.ReceivedPositionThreshold = 1
	r := New(cfg)
	p := provider.NewStatic(false)

	r.Apply(p, Result{Mode: Interpolating, Target: target(mgl64.Vec3{0.5, 0, 0})})
	assert.Equal(t, mgl64.Vec3{}, p.Position())

	r.Apply(p, Result{Mode: Interpolating, Target: target(mgl64.Vec3{2, 0, 0})})
	assert.InDelta(t, 1.7, p.Position().X(), 1e-12)
}

func TestApply_UnsyncedAxesKeepLiveValue(t *testing.T) {
	cfg := core.DefaultSettings()
	cfg.Position.Mode = core.SyncXZ
	cfg.PositionLerpSpeed = 1
	cfg.Scale.Mode = core.SyncNone
	r := New(cfg)
	p := provider.NewStatic(false)
	p.SetPosition(mgl64.Vec3{1, 2, 3})

	tgt := target(mgl64.Vec3{10, 20, 30})
	tgt.Scale = mgl64.Vec3{5, 5, 5}
	r.Apply(p, Result{Mode: Interpolating, Target: tgt})

	assert.Equal(t, mgl64.Vec3{10, 2, 30}, p.Position())
	assert.Equal(t, mgl64.Vec3{1, 1, 1}, p.Scale())
}

func TestApply_RotationYawOnly(t *testing.T) {
	cfg := core.DefaultSettings()
	cfg.Rotation.Mode = core.SyncZ
	cfg.RotationLerpSpeed = 1
	r := New(cfg)
	p := provider.NewStatic(false)
	p.SetRotation(core.QuatFromEuler(mgl64.Vec3{10, 0, 0}))

	tgt := target(mgl64.Vec3{})
	tgt.Rotation = core.QuatFromEuler(mgl64.Vec3{0, 20, 45})
	r.Apply(p, Result{Mode: HoldingAtRest, Target: tgt})

	e := core.EulerFromQuat(p.Rotation())
	assert.InDelta(t, 10.0, e.X(), 1e-6)
	assert.InDelta(t, 0.0, e.Y(), 1e-6)
	assert.InDelta(t, 45.0, e.Z(), 1e-6)
}

func TestApply_ScaleSnaps(t *testing.T) {
	r := New(core.DefaultSettings())
	p := provider.NewStatic(false)

	tgt := target(mgl64.Vec3{})
	tgt.Scale = mgl64.Vec3{10, 1, 1}
	r.Apply(p, Result{Mode: Interpolating, Target: tgt})
	assert.Equal(t, mgl64.Vec3{10, 1, 1}, p.Scale())
}

func TestApply_SimulatedBody(t *testing.T) {
	r := New(core.DefaultSettings())
	b := provider.NewBody(false, 0, 0)
	b.SetLinearVelocity(mgl64.Vec3{9, 9, 9})

	r.Apply(b, Result{Mode: Interpolating, Target: target(mgl64.Vec3{1, 0, 0})})
	assert.Equal(t, mgl64.Vec3{}, b.LinearVelocity(), "interpolation owns the body")

	tgt := target(mgl64.Vec3{50, 0, 0})
	tgt.Velocity = mgl64.Vec3{1, 2, 3}
	tgt.AngularVelocity = mgl64.Vec3{0, 0, 90}
	before := b.Position()
	r.Apply(b, Result{Mode: Extrapolating, Target: tgt})
	assert.Equal(t, tgt.Velocity, b.LinearVelocity())
	assert.Equal(t, tgt.AngularVelocity, b.AngularVelocity())
	assert.Equal(t, before, b.Position(), "physics moves the body while extrapolating")

	r.Apply(b, Result{Mode: ExtrapolationStopped, Target: tgt})
	assert.Equal(t, mgl64.Vec3{}, b.LinearVelocity())
	assert.Equal(t, mgl64.Vec3{}, b.AngularVelocity())
}

func TestApply_ExtrapolatedKinematic(t *testing.T) {
	r := New(core.DefaultSettings())
	p := provider.NewStatic(false)

	r.Apply(p, Result{Mode: Extrapolating, Target: target(mgl64.Vec3{4, 0, 0})})
	assert.Equal(t, mgl64.Vec3{4, 0, 0}, p.Position())
}

func TestApply_CharacterMotionMode(t *testing.T) {
	r := New(core.DefaultSettings())
	c := provider.NewCharacter(false)

	tgt := target(mgl64.Vec3{})
	tgt.Velocity = mgl64.Vec3{0, 3, 0}
	tgt.MotionMode = 5
	r.Apply(c, Result{Mode: Interpolating, Target: tgt})

	assert.Equal(t, uint8(5), c.MotionMode())
	assert.Equal(t, mgl64.Vec3{0, 3, 0}, c.LinearVelocity())
}

func TestApply_IdleDoesNothing(t *testing.T) {
	r := New(core.DefaultSettings())
	p := provider.NewStatic(false)
	p.SetPosition(mgl64.Vec3{1, 1, 1})

	r.Apply(p, Result{Mode: Idle, Target: target(mgl64.Vec3{9, 9, 9})})
	assert.Equal(t, mgl64.Vec3{1, 1, 1}, p.Position())
}
