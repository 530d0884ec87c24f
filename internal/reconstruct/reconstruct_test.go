package reconstruct

import (
	"testing"

	"github.com/OCAP2/smoothsync/internal/history"
	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func st(ts float64, pos mgl64.Vec3) core.SyncState {
	s := core.NewSyncState()
	s.Timestamp = ts
	s.Position = pos
	return s
}

func moving(ts float64, x float64, vx float64) core.SyncState {
	s := st(ts, mgl64.Vec3{x, 0, 0})
	s.Velocity = mgl64.Vec3{vx, 0, 0}
	return s
}

func build(t *testing.T, states ...core.SyncState) *history.History {
	t.Helper()
	h := history.New(30)
	for _, s := range states {
		if s.Teleport {
			h.AddTeleport(s)
			continue
		}
		require.NoError(t, h.Add(s))
	}
	return h
}

func teleport(ts float64, pos mgl64.Vec3) core.SyncState {
	s := st(ts, pos)
	s.Teleport = true
	return s
}

func TestCompute_EmptyIsIdle(t *testing.T) {
	r := New(core.DefaultSettings())
	res := r.Compute(history.New(30), 1, 0.1)
	assert.Equal(t, Idle, res.Mode)
}

func TestCompute_InterpolatesMidpoint(t *testing.T) {
	r := New(core.DefaultSettings())
	h := build(t, st(0, mgl64.Vec3{0, 0, 0}), st(1, mgl64.Vec3{10, 0, 0}))

	res := r.Compute(h, 0.5, 0.1)
	require.Equal(t, Interpolating, res.Mode)
	assert.False(t, res.Snap)
	assert.InDelta(t, 5.0, res.Target.Position.X(), 1e-12)
	assert.InDelta(t, 0.0, res.Target.Position.Y(), 1e-12)
}

func TestCompute_PicksBracket(t *testing.T) {
	r := New(core.DefaultSettings())
	h := build(t,
		st(0, mgl64.Vec3{0, 0, 0}),
		st(1, mgl64.Vec3{10, 0, 0}),
		st(2, mgl64.Vec3{10, 20, 0}),
		st(3, mgl64.Vec3{0, 0, 0}),
	)

	res := r.Compute(h, 1.25, 0.1)
	assert.InDelta(t, 10.0, res.Target.Position.X(), 1e-12)
	assert.InDelta(t, 5.0, res.Target.Position.Y(), 1e-12)

	res = r.Compute(h, 1, 0.1)
	assert.Equal(t, mgl64.Vec3{10, 0, 0}, res.Target.Position, "t=0 gives start")
}

func TestCompute_PlaybackBeforeOldestClampsToStart(t *testing.T) {
	r := New(core.DefaultSettings())
	h := build(t, st(5, mgl64.Vec3{1, 0, 0}), st(6, mgl64.Vec3{2, 0, 0}))

	res := r.Compute(h, 0, 0.1)
	require.Equal(t, Interpolating, res.Mode)
	assert.Equal(t, mgl64.Vec3{1, 0, 0}, res.Target.Position)
}

func TestCompute_FirstTeleportSnaps(t *testing.T) {
	r := New(core.DefaultSettings())
	h := history.New(30)
	h.AddTeleport(st(4, mgl64.Vec3{7, 7, 7}))

	res := r.Compute(h, 3.9, 0.1)
	require.Equal(t, Interpolating, res.Mode)
	assert.True(t, res.Snap)
	assert.Equal(t, mgl64.Vec3{7, 7, 7}, res.Target.Position)
}

func TestCompute_TeleportEndSnaps(t *testing.T) {
	r := New(core.DefaultSettings())
	h := build(t, st(0, mgl64.Vec3{}), teleport(1, mgl64.Vec3{100, 0, 0}))

	res := r.Compute(h, 0.2, 0.1)
	assert.True(t, res.Snap)
	assert.Equal(t, mgl64.Vec3{100, 0, 0}, res.Target.Position)
}

func TestCompute_SkippedTeleportSnaps(t *testing.T) {
	r := New(core.DefaultSettings())
	h := build(t,
		st(0, mgl64.Vec3{0, 0, 0}),
		st(1, mgl64.Vec3{1, 0, 0}),
		st(3, mgl64.Vec3{50, 0, 0}),
		st(4, mgl64.Vec3{51, 0, 0}),
	)
	h.AddTeleport(st(2, mgl64.Vec3{49, 0, 0}))

	res := r.Compute(h, 0.5, 0.1)
	require.False(t, res.Snap)

	res = r.Compute(h, 3.5, 0.1)
	assert.True(t, res.Snap)
	assert.Equal(t, mgl64.Vec3{51, 0, 0}, res.Target.Position)
}

func TestCompute_NoSnapWithoutTeleport(t *testing.T) {
	r := New(core.DefaultSettings())
	h := build(t,
		st(0, mgl64.Vec3{0, 0, 0}),
		st(1, mgl64.Vec3{1, 0, 0}),
		st(2, mgl64.Vec3{2, 0, 0}),
		st(3, mgl64.Vec3{3, 0, 0}),
	)
	r.Compute(h, 0.5, 0.1)
	res := r.Compute(h, 2.5, 0.1)
	assert.False(t, res.Snap)
	assert.InDelta(t, 2.5, res.Target.Position.X(), 1e-12)
}

func TestCompute_HoldsAtRest(t *testing.T) {
	r := New(core.DefaultSettings())
	rest := moving(1, 3, 1)
	rest.AtPositionalRest = true
	rest.AtRotationalRest = true
	h := build(t, moving(0, 2, 1), rest)

	res := r.Compute(h, 5, 0.1)
	assert.Equal(t, HoldingAtRest, res.Mode)
	assert.Equal(t, rest, res.Target)
}

func TestCompute_ExtrapolationTimeLimit(t *testing.T) {
	r := New(core.DefaultSettings())
	h := build(t, moving(0, 0, 1), moving(1, 1, 1))

	const dt = 0.1
	stoppedAt := -1
	var res Result
	for i := 1; i <= 20; i++ {
		res = r.Compute(h, 1+float64(i)*dt, dt)
		if res.Mode == ExtrapolationStopped {
			stoppedAt = i
			break
		}
		require.Equal(t, Extrapolating, res.Mode)
		assert.InDelta(t, 1+float64(i)*dt, res.Target.Position.X(), 1e-9)
	}

	require.Greater(t, stoppedAt, 0, "extrapolation must stop within two seconds")
	assert.ErrorIs(t, res.Stopped, ErrExtrapolationLimit)
	assert.Greater(t, r.ExtrapolatedFor(), 1.0)
	assert.LessOrEqual(t, r.ExtrapolatedFor(), 1.0+dt+1e-9)
	assert.Equal(t, mgl64.Vec3{}, res.Target.Velocity)
	assert.Equal(t, mgl64.Vec3{}, res.Target.AngularVelocity)

	again := r.Compute(h, 3, dt)
	assert.Equal(t, ExtrapolationStopped, again.Mode, "stays stopped until new data arrives")
	assert.Equal(t, res.Target.Position, again.Target.Position)
}

func TestCompute_UnlimitedKeepsGoing(t *testing.T) {
	cfg := core.DefaultSettings()
	cfg.ExtrapolationMode = core.ExtrapolateUnlimited
	r := New(cfg)
	h := build(t, moving(0, 0, 1), moving(1, 1, 1))

	for i := 1; i <= 50; i++ {
		res := r.Compute(h, 1+float64(i)*0.1, 0.1)
		require.Equal(t, Extrapolating, res.Mode)
	}
	assert.InDelta(t, 5.0, r.ExtrapolatedFor(), 1e-9)
}

func TestCompute_ExtrapolationDistanceLimit(t *testing.T) {
	cfg := core.DefaultSettings()
	cfg.UseExtrapolationTime = false
	cfg.UseExtrapolationDist = true
	cfg.ExtrapolationDistLimit = 0.5
	r := New(cfg)
	h := build(t, moving(0, 0, 1), moving(1, 1, 1))

	var res Result
	for i := 1; i <= 20; i++ {
		res = r.Compute(h, 1+float64(i)*0.1, 0.1)
		if res.Mode == ExtrapolationStopped {
			break
		}
	}
	require.Equal(t, ExtrapolationStopped, res.Mode)
	assert.Less(t, res.Target.Position.X()-1, 0.5, "the step that crossed the limit is not applied")
	assert.Equal(t, mgl64.Vec3{}, res.Target.Velocity)
}

func TestCompute_NoVelocityStops(t *testing.T) {
	r := New(core.DefaultSettings())
	h := build(t, moving(0, 1, 0.001), moving(1, 1, 0.001))

	res := r.Compute(h, 1.5, 0.1)
	assert.Equal(t, ExtrapolationStopped, res.Mode)
	assert.Equal(t, mgl64.Vec3{1, 0, 0}, res.Target.Position)
}

func TestCompute_ExtrapolationDisabled(t *testing.T) {
	cfg := core.DefaultSettings()
	cfg.ExtrapolationMode = core.ExtrapolateNone
	r := New(cfg)
	h := build(t, moving(0, 0, 1), moving(1, 1, 1))

	res := r.Compute(h, 1.5, 0.1)
	assert.Equal(t, ExtrapolationStopped, res.Mode)
}

func TestCompute_InfersVelocityWhenNotSynced(t *testing.T) {
	cfg := core.DefaultSettings()
	cfg.Velocity.Mode = core.SyncNone
	cfg.AngularVelocity.Mode = core.SyncNone
	r := New(cfg)

	a := st(0, mgl64.Vec3{0, 0, 0})
	b := st(1, mgl64.Vec3{2, 0, 0})
	b.Rotation = core.QuatFromEuler(mgl64.Vec3{0, 0, 10})
	h := build(t, a, b)

	res := r.Compute(h, 1.5, 0.1)
	require.Equal(t, Extrapolating, res.Mode)
	assert.InDelta(t, 3.0, res.Target.Position.X(), 1e-9)
	assert.InDelta(t, 10.0, res.Target.AngularVelocity.Z(), 1e-6)
	assert.InDelta(t, 15.0, core.EulerFromQuat(res.Target.Rotation).Z(), 1e-6)
}

func TestCompute_InferredSpinFollowsLocalAxes(t *testing.T) {
	cfg := core.DefaultSettings()
	cfg.AngularVelocity.Mode = core.SyncNone
	r := New(cfg)

	yawed := core.QuatFromEuler(mgl64.Vec3{0, 0, 90})
	a := st(0, mgl64.Vec3{})
	a.Rotation = yawed
	b := st(1, mgl64.Vec3{})
	b.Rotation = core.QuatFromEuler(mgl64.Vec3{10, 0, 0}).Mul(yawed)
	h := build(t, a, b)

	res := r.Compute(h, 1.5, 0.1)
	require.Equal(t, Extrapolating, res.Mode)
	assert.InDelta(t, -10.0, res.Target.AngularVelocity.Y(), 1e-6)
	assert.InDelta(t, 0.0, res.Target.AngularVelocity.X(), 1e-6)

	want := core.QuatFromEuler(mgl64.Vec3{15, 0, 0}).Mul(yawed)
	assert.Less(t, core.AngleBetween(res.Target.Rotation, want), 0.01)
	e := core.EulerFromQuat(res.Target.Rotation)
	assert.InDelta(t, 0.0, e.X(), 1e-6)
	assert.InDelta(t, -15.0, e.Y(), 1e-6)
	assert.InDelta(t, 90.0, e.Z(), 1e-6)
}

func TestCompute_Damping(t *testing.T) {
	r := New(core.DefaultSettings())
	r.SetDamping(Damping{Linear: 1})
	h := build(t, moving(0, 0, 2), moving(1, 2, 2))

	res := r.Compute(h, 1.25, 0.25)
	require.Equal(t, Extrapolating, res.Mode)
	assert.InDelta(t, 2.5, res.Target.Position.X(), 1e-9)
	assert.InDelta(t, 1.5, res.Target.Velocity.X(), 1e-9)
}

func TestCompute_NewStateRestartsExtrapolation(t *testing.T) {
	r := New(core.DefaultSettings())
	h := build(t, moving(0, 0, 1), moving(1, 1, 1))
	for i := 1; i <= 15; i++ {
		r.Compute(h, 1+float64(i)*0.1, 0.1)
	}

	require.NoError(t, h.Add(moving(2.4, 5, 1)))
	res := r.Compute(h, 2.6, 0.1)
	require.Equal(t, Extrapolating, res.Mode)
	assert.InDelta(t, 5.2, res.Target.Position.X(), 1e-9)
	assert.InDelta(t, 0.2, r.ExtrapolatedFor(), 1e-9)
}

func TestReset(t *testing.T) {
	r := New(core.DefaultSettings())
	h := build(t, moving(0, 0, 1), moving(1, 1, 1))
	r.Compute(h, 1.5, 0.1)
	r.Reset()
	assert.Equal(t, 0.0, r.ExtrapolatedFor())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "interpolating", Interpolating.String())
	assert.Equal(t, "stopped", ExtrapolationStopped.String())
}
