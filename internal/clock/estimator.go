// Package clock estimates the authoritative sender's clock on a receiver.
package clock

import (
	"math"

	"github.com/OCAP2/smoothsync/pkg/core"
)

// receiptWindow is how far back receipts count towards the recent rate.
const receiptWindow = 1.0

// Config holds the estimator's tuning knobs.
type Config struct {
	SendRate                 float64
	TimeCorrectionSpeed      float64
	SnapTimeThreshold        float64
	ReceiveSnapTimeThreshold float64
}

// ConfigFrom extracts the estimator settings.
func ConfigFrom(s core.Settings) Config {
	return Config{
		SendRate:                 s.SendRate,
		TimeCorrectionSpeed:      s.TimeCorrectionSpeed,
		SnapTimeThreshold:        s.SnapTimeThreshold,
		ReceiveSnapTimeThreshold: s.ReceiveSnapTimeThreshold,
	}
}

// Estimator tracks the sender's clock as a base value set at a local time.
// Between adjustments the estimate advances with the local clock.
type Estimator struct {
	cfg Config

	base        float64
	setAt       float64
	initialized bool

	lastReceipt float64
	received    bool

	receipts []float64
	next     int
}

// NewEstimator creates an estimator with no reference yet.
func NewEstimator(cfg Config) *Estimator {
	n := int(math.Ceil(cfg.SendRate))
	if n < 1 {
		n = 1
	}
	return &Estimator{cfg: cfg, receipts: make([]float64, 0, n)}
}

// Estimate returns the estimated sender time at local time now.
func (e *Estimator) Estimate(now float64) float64 {
	if !e.initialized {
		return 0
	}
	return e.base + (now - e.setAt)
}

// Initialized reports whether the estimator has a reference point.
func (e *Estimator) Initialized() bool { return e.initialized }

// Snap sets the estimate to senderTime at local time now.
func (e *Estimator) Snap(senderTime, now float64) {
	e.base = senderTime
	e.setAt = now
	e.initialized = true
}

// ObserveReceipt records that a state stamped ts arrived at local time now.
// After a long silence the estimate jumps straight to ts. It reports whether
// it snapped.
func (e *Estimator) ObserveReceipt(ts, now float64) bool {
	snapped := false
	if !e.received || now-e.lastReceipt > 5*e.cfg.ReceiveSnapTimeThreshold {
		e.Snap(ts, now)
		e.receipts = e.receipts[:0]
		e.next = 0
		snapped = true
	}
	e.lastReceipt = now
	e.received = true

	if len(e.receipts) < cap(e.receipts) {
		e.receipts = append(e.receipts, now)
	} else {
		e.receipts[e.next] = now
		e.next = (e.next + 1) % len(e.receipts)
	}
	return snapped
}

// RecentReceipts counts the receipts in the last second before now.
func (e *Estimator) RecentReceipts(now float64) int {
	n := 0
	for _, t := range e.receipts {
		if now-t <= receiptWindow {
			n++
		}
	}
	return n
}

// Adjust steers the estimate towards the newest state's timestamp plus the
// time since it arrived. It does nothing without a state or while the sender
// reports full rest. Far off, converged or sparse estimates snap; otherwise
// the estimate moves at most (TimeCorrectionSpeed+1)*dt per call.
func (e *Estimator) Adjust(newest core.SyncState, hasState bool, now, dt float64) {
	if !hasState || newest.AtRest() {
		return
	}
	if !e.initialized {
		e.Snap(newest.Timestamp, now)
	}

	candidate := newest.Timestamp + (now - e.lastReceipt)
	current := e.Estimate(now)
	maxStep := (e.cfg.TimeCorrectionSpeed + 1) * dt
	delta := math.Abs(current - candidate)

	if float64(e.RecentReceipts(now)) < 0.7*e.cfg.SendRate ||
		delta < maxStep ||
		delta > e.cfg.SnapTimeThreshold {
		e.Snap(candidate, now)
		return
	}

	if current < candidate {
		current += maxStep
	} else {
		current -= maxStep
	}
	e.Snap(current, now)
}

// Reset forgets the reference point and every receipt.
func (e *Estimator) Reset() {
	cfg := e.cfg
	*e = *NewEstimator(cfg)
}
