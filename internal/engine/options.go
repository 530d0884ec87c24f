package engine

import (
	"github.com/OCAP2/smoothsync/internal/clock"
	"github.com/OCAP2/smoothsync/internal/dispatcher"
	"github.com/OCAP2/smoothsync/internal/storage"
)

// DefaultInboxSize bounds the number of messages waiting for the next tick.
const DefaultInboxSize = 256

// Logger is the logging surface the engine writes to.
type Logger = dispatcher.Logger

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the local time source. The default is a real clock started
// when the engine is created.
func WithClock(c clock.Source) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithStorage records every sent, received and applied state to b. The
// caller owns b's lifecycle.
func WithStorage(b storage.Backend) Option {
	return func(e *Engine) {
		if b != nil {
			e.storage = b
		}
	}
}

// WithObjectID names the synced object in logs and trace records.
func WithObjectID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.objectID = id
		}
	}
}

// WithInboxSize bounds the inbound queue. When full the oldest message is
// dropped.
func WithInboxSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.inboxSize = n
		}
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
