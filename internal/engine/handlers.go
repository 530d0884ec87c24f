package engine

import (
	"errors"
	"fmt"

	"github.com/OCAP2/smoothsync/internal/dispatcher"
	"github.com/OCAP2/smoothsync/internal/history"
	"github.com/OCAP2/smoothsync/internal/provider"
	"github.com/OCAP2/smoothsync/internal/transport"
	"github.com/OCAP2/smoothsync/pkg/core"
)

// accepting reports whether inbound state should be taken. Owners never
// follow someone else's updates.
func (e *Engine) accepting() (bool, error) {
	switch {
	case !e.enabled:
		return false, ErrDisabled
	case e.provider == nil:
		return false, ErrMissingTarget
	case e.provider.IsAuthoritative():
		e.stats.Ignored++
		return false, nil
	}
	return true, nil
}

func (e *Engine) malformed(kind transport.Kind, size int, err error) error {
	e.stats.Malformed++
	e.metrics.add(e.metrics.malformed, 1)
	e.logger.Warn("dropping malformed message", "object", e.objectID, "kind", kind, "size", size, "error", err)
	return fmt.Errorf("decoding %s: %w", kind, err)
}

// fallback is the state that fills channels a message leaves out: the newest
// history entry, or the live transform with the last received velocities.
func (e *Engine) fallback() core.SyncState {
	if newest, ok := e.history.Newest(); ok {
		return newest.SyncState
	}
	s := provider.Sample(e.provider, 0)
	if e.hasReceived {
		s.Velocity = e.lastReceived.Velocity
		s.AngularVelocity = e.lastReceived.AngularVelocity
		s.MotionMode = e.lastReceived.MotionMode
	}
	return s
}

func (e *Engine) handleState(ev dispatcher.Event) error {
	ok, err := e.accepting()
	if !ok {
		return err
	}

	payload := ev.Message.Payload
	frame, err := e.codec.Decode(payload)
	if err != nil {
		return e.malformed(ev.Message.Kind, len(payload), err)
	}

	state := e.codec.Resolve(frame, e.fallback())
	if err := e.history.Add(state); err != nil {
		if errors.Is(err, history.ErrStale) {
			e.stats.Stale++
			e.metrics.add(e.metrics.stale, 1)
			e.logger.Debug("dropping stale state", "object", e.objectID, "timestamp", state.Timestamp)
		}
		return err
	}
	e.accepted(state, frame.Flags.Names())
	return nil
}

func (e *Engine) handleTeleport(ev dispatcher.Event) error {
	ok, err := e.accepting()
	if !ok {
		return err
	}

	t, err := transport.DecodeTeleport(ev.Message.Payload)
	if err != nil {
		return e.malformed(ev.Message.Kind, len(ev.Message.Payload), err)
	}

	state := provider.Sample(e.provider, t.Timestamp)
	state.Position = t.Position
	state.Rotation = core.QuatFromEuler(t.RotationEuler)
	state.Scale = t.Scale
	state.Teleport = true
	e.history.AddTeleport(state)

	e.logger.Info("teleport received", "object", e.objectID, "position", t.Position, "timestamp", t.Timestamp)
	e.accepted(state, []string{"teleport"})
	return nil
}

func (e *Engine) accepted(state core.SyncState, flags []string) {
	now := e.clock.Now()
	e.estimator.ObserveReceipt(state.Timestamp, now)
	e.lastReceived = state
	e.hasReceived = true

	e.stats.Received++
	e.metrics.add(e.metrics.received, 1)
	e.metrics.depth.Store(int64(e.history.Len()))

	if err := e.storage.RecordReceived(&core.ReceivedRecord{
		ObjectID:  e.objectID,
		LocalTime: now,
		State:     state,
		Flags:     flags,
	}); err != nil {
		e.logger.Debug("recording received state failed", "object", e.objectID, "error", err)
	}
}

func (e *Engine) handleEnable(ev dispatcher.Event) error {
	enabled, err := transport.DecodeEnable(ev.Message.Payload)
	if err != nil {
		return e.malformed(ev.Message.Kind, len(ev.Message.Payload), err)
	}
	e.setEnabled(enabled)
	return nil
}
