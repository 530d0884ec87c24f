package core

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSettings is returned by Settings.Validate.
var ErrInvalidSettings = errors.New("invalid settings")

// ChannelSettings groups the per-channel knobs of a vector channel.
type ChannelSettings struct {
	Mode       SyncMode
	Compress   bool
	SendThresh float64
}

// Settings is the immutable configuration a SyncEngine is built from. All
// times are in seconds, angles in degrees and distances in world units.
type Settings struct {
	SendRate              float64
	InterpolationBackTime float64

	ExtrapolationMode      ExtrapolationMode
	UseExtrapolationTime   bool
	ExtrapolationTimeLimit float64
	UseExtrapolationDist   bool
	ExtrapolationDistLimit float64

	Position        ChannelSettings
	Rotation        ChannelSettings
	Scale           ChannelSettings
	Velocity        ChannelSettings
	AngularVelocity ChannelSettings
	SyncMotionMode  bool

	ReceivedPositionThreshold float64
	ReceivedRotationThreshold float64
	PositionSnapThreshold     float64
	RotationSnapThreshold     float64
	ScaleSnapThreshold        float64

	PositionLerpSpeed float64
	RotationLerpSpeed float64
	ScaleLerpSpeed    float64

	AtRestPositionThreshold float64
	AtRestRotationThreshold float64
	AtRestThresholdCount    float64

	TimeCorrectionSpeed      float64
	SnapTimeThreshold        float64
	ReceiveSnapTimeThreshold float64
}

// DefaultSettings mirrors the stock component configuration.
func DefaultSettings() Settings {
	return Settings{
		SendRate:              30,
		InterpolationBackTime: 0.1,

		ExtrapolationMode:      ExtrapolateLimited,
		UseExtrapolationTime:   true,
		ExtrapolationTimeLimit: 1,
		UseExtrapolationDist:   false,
		ExtrapolationDistLimit: 100,

		Position:        ChannelSettings{Mode: SyncXYZ},
		Rotation:        ChannelSettings{Mode: SyncXYZ},
		Scale:           ChannelSettings{Mode: SyncXYZ},
		Velocity:        ChannelSettings{Mode: SyncXYZ},
		AngularVelocity: ChannelSettings{Mode: SyncXYZ},
		SyncMotionMode:  true,

		PositionSnapThreshold: 500,
		RotationSnapThreshold: 100,
		ScaleSnapThreshold:    3,

		PositionLerpSpeed: 0.85,
		RotationLerpSpeed: 0.85,
		ScaleLerpSpeed:    0.85,

		AtRestPositionThreshold: 0.05,
		AtRestRotationThreshold: 0.1,
		AtRestThresholdCount:    0.5,

		TimeCorrectionSpeed:      0.1,
		SnapTimeThreshold:        1,
		ReceiveSnapTimeThreshold: 10,
	}
}

// HistoryCapacity is the number of states a receiver keeps: twice the states
// expected inside the interpolation window, and never fewer than 30.
func (s Settings) HistoryCapacity() int {
	n := (int(s.SendRate*s.InterpolationBackTime) + 1) * 2
	if n < 30 {
		n = 30
	}
	return n
}

// SendInterval is the minimum time between two unforced sends.
func (s Settings) SendInterval() float64 {
	return 1 / s.SendRate
}

// TimeLimited reports whether the extrapolation time limit applies.
func (s Settings) TimeLimited() bool {
	return s.ExtrapolationMode == ExtrapolateLimited && s.UseExtrapolationTime
}

// DistanceLimited reports whether the extrapolation distance limit applies.
func (s Settings) DistanceLimited() bool {
	return s.ExtrapolationMode == ExtrapolateLimited && s.UseExtrapolationDist
}

// Validate checks ranges that would otherwise break the engine at runtime.
func (s Settings) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(s.SendRate > 0 && !math.IsInf(s.SendRate, 0), "sendRate must be positive, got %v", s.SendRate)
	check(s.InterpolationBackTime >= 0, "interpolationBackTime must not be negative, got %v", s.InterpolationBackTime)
	check(s.ExtrapolationTimeLimit >= 0, "extrapolation time limit must not be negative")
	check(s.ExtrapolationDistLimit >= 0, "extrapolation distance limit must not be negative")
	for name, v := range map[string]float64{
		"position": s.PositionLerpSpeed,
		"rotation": s.RotationLerpSpeed,
		"scale":    s.ScaleLerpSpeed,
	} {
		check(v >= 0 && v <= 1, "%s lerp speed must be within [0,1], got %v", name, v)
	}
	check(s.TimeCorrectionSpeed >= 0 && s.TimeCorrectionSpeed <= 5,
		"timeCorrectionSpeed must be within [0,5], got %v", s.TimeCorrectionSpeed)
	check(s.AtRestThresholdCount >= 0, "atRestThresholdCount must not be negative")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}
	return nil
}
