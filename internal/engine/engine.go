// Package engine ties the sync pipeline together for one object. An owner
// samples its transform every tick and sends the channels the send gate lets
// through; every other peer decodes those updates into a history buffer,
// steers its estimate of the owner's clock and applies the reconstructed
// state back to its transform.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/smoothsync/internal/clock"
	"github.com/OCAP2/smoothsync/internal/dispatcher"
	"github.com/OCAP2/smoothsync/internal/history"
	"github.com/OCAP2/smoothsync/internal/provider"
	"github.com/OCAP2/smoothsync/internal/queue"
	"github.com/OCAP2/smoothsync/internal/reconstruct"
	"github.com/OCAP2/smoothsync/internal/sendgate"
	"github.com/OCAP2/smoothsync/internal/storage"
	"github.com/OCAP2/smoothsync/internal/transport"
	"github.com/OCAP2/smoothsync/internal/wire"
	"github.com/OCAP2/smoothsync/pkg/core"
)

var (
	// ErrMissingTarget is returned by Tick while no transform is attached.
	ErrMissingTarget = errors.New("no transform attached")
	// ErrNotAuthoritative is returned when a peer that does not own the
	// object tries an owner-only operation.
	ErrNotAuthoritative = errors.New("not authoritative")
	// ErrDisabled is returned for inbound state while syncing is off.
	ErrDisabled = errors.New("sync disabled")
)

// missingTargetInterval rate-limits the missing transform warning.
const missingTargetInterval = 1.0

// Stats is a snapshot of an engine's counters.
type Stats struct {
	Sent                  uint64
	BytesSent             uint64
	Teleports             uint64
	Received              uint64
	Stale                 uint64
	Malformed             uint64
	Ignored               uint64
	ExtrapolationFailures uint64
	InboxDropped          uint64
	HistoryDepth          int
	Mode                  reconstruct.Mode
}

// Engine synchronizes one object's transform over a transport.
type Engine struct {
	mu sync.Mutex

	cfg       core.Settings
	provider  provider.TransformProvider
	caps      provider.Capabilities
	transport transport.Transport

	clock     clock.Source
	logger    Logger
	storage   storage.Backend
	objectID  string
	inboxSize int

	codec      *wire.Codec
	gate       *sendgate.Gate
	history    *history.History
	estimator  *clock.Estimator
	recon      *reconstruct.Reconstructor
	dispatcher *dispatcher.Dispatcher
	inbox      *queue.Queue[dispatcher.Event]
	metrics    *instruments

	enabled bool
	// lastReceived supplies the velocity channels when a state arrives with
	// an empty history.
	lastReceived    core.SyncState
	hasReceived     bool
	mode            reconstruct.Mode
	lastMissingWarn float64
	warnedMissing   bool

	stats Stats
}

// New creates an engine for settings. p may be nil and attached later with
// SetProvider; until then Tick returns ErrMissingTarget.
func New(settings core.Settings, p provider.TransformProvider, t transport.Transport, opts ...Option) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if t == nil {
		return nil, errors.New("transport is required")
	}

	e := &Engine{
		cfg:          settings,
		transport:    t,
		logger:       nopLogger{},
		storage:      storage.Nop{},
		objectID:     "object",
		inboxSize:    DefaultInboxSize,
		enabled:      true,
		lastReceived: core.NewSyncState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.clock == nil {
		e.clock = clock.NewReal()
	}

	e.gate = sendgate.New(settings)
	e.history = history.New(settings.HistoryCapacity())
	e.estimator = clock.NewEstimator(clock.ConfigFrom(settings))
	e.recon = reconstruct.New(settings)
	e.inbox = queue.NewBounded[dispatcher.Event](e.inboxSize)
	e.attach(p)

	var err error
	e.dispatcher, err = dispatcher.New(e.logger)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	e.dispatcher.Register(transport.KindState, e.handleState)
	e.dispatcher.Register(transport.KindTeleport, e.handleTeleport, dispatcher.Logged())
	e.dispatcher.Register(transport.KindEnable, e.handleEnable, dispatcher.Logged())

	e.metrics, err = newInstruments(e.objectID)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// attach binds p and rebuilds what depends on its capabilities.
func (e *Engine) attach(p provider.TransformProvider) {
	e.provider = p
	e.caps = provider.Capabilities{}
	if p != nil {
		e.caps = p.Capabilities()
	}
	e.codec = wire.NewCodec(wire.LayoutFor(e.cfg, e.caps.MotionMode))
	e.recon.SetDamping(reconstruct.Damping{
		Linear:  e.caps.LinearDamping,
		Angular: e.caps.AngularDamping,
	})
	e.warnedMissing = false
}

// SetProvider attaches, replaces or (with nil) detaches the transform.
func (e *Engine) SetProvider(p provider.TransformProvider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attach(p)
	e.gate.ForceSend()
}

// Close releases the engine's metric registration. The transport and the
// storage backend belong to the caller.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics.close()
}

// Deliver queues msg for the next tick. It is safe to call from any
// goroutine.
func (e *Engine) Deliver(msg transport.Message) {
	if n := e.inbox.Push(dispatcher.Event{Message: msg, Received: time.Now()}); n > 0 {
		e.logger.Debug("inbox full, dropped oldest message", "object", e.objectID, "dropped", n)
	}
}

// HandleMessage processes msg immediately instead of waiting for Tick.
func (e *Engine) HandleMessage(msg transport.Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatcher.Dispatch(dispatcher.Event{Message: msg, Received: time.Now()})
}

// Tick advances the engine by dt seconds: pending messages are handled, then
// the owner sends or the receiver applies.
func (e *Engine) Tick(dt float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.pump()
	e.drain()

	if e.provider == nil {
		if !e.warnedMissing || now-e.lastMissingWarn >= missingTargetInterval {
			e.logger.Warn("no transform attached, skipping tick", "object", e.objectID)
			e.lastMissingWarn = now
			e.warnedMissing = true
		}
		return ErrMissingTarget
	}
	if !e.enabled {
		return nil
	}

	if e.provider.IsAuthoritative() {
		return e.tickOwner(now, dt)
	}
	e.tickReceiver(now, dt)
	return nil
}

// pump moves everything the transport has buffered into the inbox without
// blocking.
func (e *Engine) pump() {
	in := e.transport.Receive()
	for {
		select {
		case msg, ok := <-in:
			if !ok {
				return
			}
			e.Deliver(msg)
		default:
			return
		}
	}
}

func (e *Engine) drain() {
	for _, ev := range e.inbox.Drain() {
		// Handler errors are counted and logged where they happen.
		_ = e.dispatcher.Dispatch(ev)
	}
}

func (e *Engine) tickOwner(now, dt float64) error {
	live := provider.Sample(e.provider, now)
	decision, out := e.gate.Evaluate(live, e.caps, now, dt)
	if !decision.Any() {
		return nil
	}

	flags := decision.Flags()
	payload := e.codec.Encode(out, flags)
	if err := e.transport.Send(transport.StateMessage(payload)); err != nil {
		return fmt.Errorf("sending state: %w", err)
	}

	e.stats.Sent++
	e.stats.BytesSent += uint64(len(payload))
	e.metrics.add(e.metrics.sent, 1)
	e.metrics.add(e.metrics.bytesSent, int64(len(payload)))

	if err := e.storage.RecordSent(&core.SentRecord{
		ObjectID:  e.objectID,
		LocalTime: now,
		State:     out,
		Flags:     flags.Names(),
		Bytes:     len(payload),
	}); err != nil {
		e.logger.Debug("recording sent state failed", "object", e.objectID, "error", err)
	}
	return nil
}

func (e *Engine) tickReceiver(now, dt float64) {
	newest, ok := e.history.Newest()
	e.estimator.Adjust(newest.SyncState, ok, now, dt)

	senderTime := e.estimator.Estimate(now)
	playback := senderTime - e.cfg.InterpolationBackTime
	res := e.recon.Compute(e.history, playback, dt)

	if res.Mode == reconstruct.ExtrapolationStopped && e.mode != reconstruct.ExtrapolationStopped {
		e.stats.ExtrapolationFailures++
		e.metrics.add(e.metrics.failures, 1)
		e.logger.Debug("extrapolation stopped", "object", e.objectID, "reason", res.Stopped,
			"extrapolatedFor", e.recon.ExtrapolatedFor())
	}
	e.mode = res.Mode

	e.recon.Apply(e.provider, res)
	if res.Mode == reconstruct.Idle {
		return
	}

	if err := e.storage.RecordApplied(&core.AppliedRecord{
		ObjectID:        e.objectID,
		LocalTime:       now,
		SenderTime:      senderTime,
		PlaybackTime:    playback,
		Mode:            res.Mode.String(),
		Snapped:         res.Snap,
		Position:        e.provider.Position(),
		Rotation:        e.provider.Rotation(),
		HistoryDepth:    e.history.Len(),
		ExtrapolatedFor: e.recon.ExtrapolatedFor(),
	}); err != nil {
		e.logger.Debug("recording applied state failed", "object", e.objectID, "error", err)
	}
}

// Teleport moves the object discontinuously to its current transform:
// receivers snap instead of blending across the jump.
func (e *Engine) Teleport() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.provider == nil:
		return ErrMissingTarget
	case !e.provider.IsAuthoritative():
		return ErrNotAuthoritative
	case !e.enabled:
		return ErrDisabled
	}

	now := e.clock.Now()
	pos, rot, scale := e.provider.Position(), e.provider.Rotation(), e.provider.Scale()
	e.gate.MarkTeleport(pos, rot)

	msg := transport.TeleportMessage(transport.Teleport{
		Position:      pos,
		RotationEuler: core.EulerFromQuat(rot),
		Scale:         scale,
		Timestamp:     now,
	})
	if err := e.transport.Send(msg); err != nil {
		return fmt.Errorf("sending teleport: %w", err)
	}
	e.stats.Teleports++
	e.logger.Info("teleport sent", "object", e.objectID, "position", pos, "time", now)

	state := provider.Sample(e.provider, now)
	state.Teleport = true
	if err := e.storage.RecordSent(&core.SentRecord{
		ObjectID:  e.objectID,
		LocalTime: now,
		State:     state,
		Flags:     []string{"teleport"},
		Bytes:     len(msg.Payload),
	}); err != nil {
		e.logger.Debug("recording teleport failed", "object", e.objectID, "error", err)
	}
	return nil
}

// SetEnabled turns syncing on or off locally and on every peer.
func (e *Engine) SetEnabled(enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setEnabled(enabled)
	if err := e.transport.Send(transport.EnableMessage(enabled)); err != nil {
		return fmt.Errorf("sending enable: %w", err)
	}
	return nil
}

// Enabled reports whether syncing is on.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

func (e *Engine) setEnabled(enabled bool) {
	if e.enabled == enabled {
		return
	}
	e.enabled = enabled
	if !enabled {
		e.clear()
		e.estimator.Reset()
		e.gate.Reset()
		e.mode = reconstruct.Idle
		return
	}
	e.gate.ForceSend()
}

// ForceSend makes the next owner tick send every synced channel.
func (e *Engine) ForceSend() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate.ForceSend()
}

// ClearHistory drops every received state. The next update starts a fresh
// reconstruction.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clear()
}

func (e *Engine) clear() {
	e.history.Clear()
	e.recon.Reset()
	e.hasReceived = false
	e.lastReceived = core.NewSyncState()
	e.metrics.depth.Store(0)
}

// History returns the received states, newest first.
func (e *Engine) History() []core.SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.States()
}

// EstimatedSenderTime is the receiver's current estimate of the owner's
// clock.
func (e *Engine) EstimatedSenderTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.estimator.Estimate(e.clock.Now())
}

// Stats returns a snapshot of the engine's counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.InboxDropped = e.inbox.Dropped()
	s.HistoryDepth = e.history.Len()
	s.Mode = e.mode
	return s
}

// ObjectID is the name the engine logs and records under.
func (e *Engine) ObjectID() string { return e.objectID }
