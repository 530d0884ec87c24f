// Package reconstruct turns a receiver's state history into the transform to
// show this tick: interpolating inside the history, holding a resting
// object, or dead reckoning past the newest state within configured limits.
package reconstruct

import (
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/smoothsync/internal/history"
	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// ErrExtrapolationLimit describes why extrapolation stopped. It is reported
// in Result.Stopped and is a designed terminal state, not a failure.
var ErrExtrapolationLimit = errors.New("extrapolation limit reached")

// minVelocity is the smallest velocity component worth extrapolating.
const minVelocity = 0.01

// Mode is what the reconstructor did this tick.
type Mode uint8

const (
	Idle Mode = iota
	Interpolating
	HoldingAtRest
	Extrapolating
	ExtrapolationStopped
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Interpolating:
		return "interpolating"
	case HoldingAtRest:
		return "holding"
	case Extrapolating:
		return "extrapolating"
	case ExtrapolationStopped:
		return "stopped"
	}
	return fmt.Sprintf("Mode(%d)", m)
}

// Result is one tick's reconstruction.
type Result struct {
	Mode   Mode
	Target core.SyncState
	// Snap is set when a teleport was crossed; the target is applied without
	// blending.
	Snap bool
	// Stopped explains an ExtrapolationStopped result.
	Stopped error
}

// Damping slows extrapolated velocities by the given fraction per second.
type Damping struct {
	Linear  float64
	Angular float64
}

// Reconstructor keeps the state that must survive between ticks: the
// extrapolation target and the last interpolation endpoint.
type Reconstructor struct {
	cfg     core.Settings
	damping Damping

	target          core.SyncState
	extrapolating   bool
	extrapolatedFor float64

	lastEnd    uint64
	hasLastEnd bool
}

// New creates a reconstructor.
func New(cfg core.Settings) *Reconstructor {
	return &Reconstructor{cfg: cfg, target: core.NewSyncState()}
}

// SetDamping sets the damping applied while extrapolating.
func (r *Reconstructor) SetDamping(d Damping) { r.damping = d }

// Reset forgets extrapolation progress and the last endpoint.
func (r *Reconstructor) Reset() {
	r.target = core.NewSyncState()
	r.extrapolating = false
	r.extrapolatedFor = 0
	r.hasLastEnd = false
}

// ExtrapolatedFor is the sender time covered by the current extrapolation.
func (r *Reconstructor) ExtrapolatedFor() float64 { return r.extrapolatedFor }

// Compute reconstructs the state at sender time playback, dt seconds after
// the previous call.
func (r *Reconstructor) Compute(h *history.History, playback, dt float64) Result {
	newest, ok := h.Newest()
	if !ok {
		r.extrapolating = false
		return Result{Mode: Idle}
	}

	if h.Len() > 1 && newest.Timestamp > playback {
		r.extrapolating = false
		target, snap := r.interpolate(h, playback)
		return Result{Mode: Interpolating, Target: target, Snap: snap}
	}

	if newest.AtRest() {
		r.extrapolating = false
		return Result{Mode: HoldingAtRest, Target: newest.SyncState}
	}

	if err := r.extrapolate(h, playback, dt); err != nil {
		return Result{Mode: ExtrapolationStopped, Target: r.target, Stopped: err}
	}
	return Result{Mode: Extrapolating, Target: r.target}
}

func (r *Reconstructor) interpolate(h *history.History, playback float64) (core.SyncState, bool) {
	n := h.Len()
	i := 0
	for i < n && h.At(i).Timestamp > playback {
		i++
	}
	if i == n {
		i = n - 1
	}
	startIdx := i
	start := h.At(startIdx)
	end := h.At(max(i-1, 0))

	snap := false
	if start.Timestamp > playback && start.Teleport && n == 2 {
		snap = true
	}
	if r.crossedTeleport(h, start, end, startIdx) {
		snap = true
	}
	if end.Teleport {
		snap = true
	}
	r.lastEnd, r.hasLastEnd = end.Seq, true

	t := 1.0
	if span := end.Timestamp - start.Timestamp; span > 0 {
		t = (playback - start.Timestamp) / span
	}
	t = math.Max(0, math.Min(1, t))
	if snap {
		t = 1
	}

	out := core.Lerp(start.SyncState, end.SyncState, t)
	out.MotionMode = start.MotionMode
	return out, snap
}

// crossedTeleport reports whether a teleport lies between the endpoint used
// on the previous tick and the current start, which happens when a slow tick
// jumps over the teleport entirely.
func (r *Reconstructor) crossedTeleport(h *history.History, start, end history.Entry, startIdx int) bool {
	if !r.hasLastEnd || r.lastEnd == start.Seq || r.lastEnd == end.Seq {
		return false
	}
	prev, ok := h.IndexOf(r.lastEnd)
	if !ok || prev <= startIdx {
		return false
	}
	for j := prev - 1; j >= startIdx; j-- {
		if h.At(j).Teleport {
			return true
		}
	}
	return false
}

func (r *Reconstructor) extrapolate(h *history.History, playback, dt float64) error {
	newest, _ := h.Newest()
	if !r.extrapolating || r.target.Timestamp < newest.Timestamp {
		r.target = newest.SyncState
		r.target.Teleport = false
		r.extrapolatedFor = 0
		r.inferVelocities(h)
	}
	r.extrapolating = true

	if r.cfg.ExtrapolationMode == core.ExtrapolateNone {
		return r.stop(fmt.Errorf("%w: extrapolation disabled", ErrExtrapolationLimit))
	}
	if r.cfg.TimeLimited() && r.extrapolatedFor > r.cfg.ExtrapolationTimeLimit {
		return r.stop(fmt.Errorf("%w: %.3fs exceeds %.3fs", ErrExtrapolationLimit, r.extrapolatedFor, r.cfg.ExtrapolationTimeLimit))
	}

	hasVelocity := significant(r.target.Velocity)
	hasAngular := significant(r.target.AngularVelocity)
	if !hasVelocity && !hasAngular {
		return r.stop(fmt.Errorf("%w: no velocity to extrapolate", ErrExtrapolationLimit))
	}

	step := dt
	if r.extrapolatedFor == 0 {
		step = playback - r.target.Timestamp
	}
	if step < 0 {
		step = 0
	}
	r.extrapolatedFor += step

	held := r.target
	damping := r.damping
	if hasVelocity {
		r.target.Position = r.target.Position.Add(r.target.Velocity.Mul(step))
		r.target.Velocity = r.target.Velocity.Sub(r.target.Velocity.Mul(step * damping.Linear))
	}
	if hasAngular {
		r.target.Rotation = r.target.Rotation.Mul(core.QuatFromEuler(r.target.AngularVelocity.Mul(step))).Normalize()
		r.target.AngularVelocity = r.target.AngularVelocity.Sub(r.target.AngularVelocity.Mul(step * damping.Angular))
	}

	if r.cfg.DistanceLimited() && core.DistanceVec3(newest.Position, r.target.Position) >= r.cfg.ExtrapolationDistLimit {
		r.target = held
		return r.stop(fmt.Errorf("%w: distance limit %.2f", ErrExtrapolationLimit, r.cfg.ExtrapolationDistLimit))
	}
	return nil
}

// inferVelocities derives velocities from the two newest states for channels
// whose velocity is not synchronized.
func (r *Reconstructor) inferVelocities(h *history.History) {
	if h.Len() < 2 {
		return
	}
	a, b := h.At(0), h.At(1)
	span := a.Timestamp - b.Timestamp
	if span <= 0 {
		return
	}
	if !r.cfg.Velocity.Mode.Enabled() && !a.AtPositionalRest {
		r.target.Velocity = a.Position.Sub(b.Position).Mul(1 / span)
	}
	if !r.cfg.AngularVelocity.Mode.Enabled() && !a.AtRotationalRest {
		r.target.AngularVelocity = core.BodyDeltaEuler(b.Rotation, a.Rotation).Mul(1 / span)
	}
}

func (r *Reconstructor) stop(err error) error {
	r.target.Velocity = mgl64.Vec3{}
	r.target.AngularVelocity = mgl64.Vec3{}
	return err
}

func significant(v mgl64.Vec3) bool {
	return math.Abs(v[0]) >= minVelocity || math.Abs(v[1]) >= minVelocity || math.Abs(v[2]) >= minVelocity
}
