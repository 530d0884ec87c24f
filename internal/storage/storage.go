// Package storage defines where sent, received and applied transform states
// are recorded for later analysis.
package storage

import (
	"errors"

	"github.com/OCAP2/smoothsync/pkg/core"
)

// Backend is the interface all trace stores must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// State recording
	RecordSent(r *core.SentRecord) error
	RecordReceived(r *core.ReceivedRecord) error
	RecordApplied(r *core.AppliedRecord) error
}

// Exportable is an optional interface for stores that write a file on Close.
type Exportable interface {
	ExportedFilePath() string
}

// Multi fans every record out to several backends.
type Multi []Backend

// Init initializes every backend, closing the ones already started if one
// fails.
func (m Multi) Init() error {
	for i, b := range m {
		if err := b.Init(); err != nil {
			for _, started := range m[:i] {
				_ = started.Close()
			}
			return err
		}
	}
	return nil
}

// Close closes every backend and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, b := range m {
		errs = append(errs, b.Close())
	}
	return errors.Join(errs...)
}

// RecordSent forwards to every backend.
func (m Multi) RecordSent(r *core.SentRecord) error {
	var errs []error
	for _, b := range m {
		errs = append(errs, b.RecordSent(r))
	}
	return errors.Join(errs...)
}

// RecordReceived forwards to every backend.
func (m Multi) RecordReceived(r *core.ReceivedRecord) error {
	var errs []error
	for _, b := range m {
		errs = append(errs, b.RecordReceived(r))
	}
	return errors.Join(errs...)
}

// RecordApplied forwards to every backend.
func (m Multi) RecordApplied(r *core.AppliedRecord) error {
	var errs []error
	for _, b := range m {
		errs = append(errs, b.RecordApplied(r))
	}
	return errors.Join(errs...)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Init() error                               { return nil }
func (Nop) Close() error                              { return nil }
func (Nop) RecordSent(*core.SentRecord) error         { return nil }
func (Nop) RecordReceived(*core.ReceivedRecord) error { return nil }
func (Nop) RecordApplied(*core.AppliedRecord) error   { return nil }
