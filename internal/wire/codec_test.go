package wire

import (
	"math"
	"testing"

	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const allChannels = FlagPosition | FlagRotation | FlagScale | FlagVelocity | FlagAngularVelocity

func fullLayout(compressed bool, motion bool) Layout {
	ch := Channel{Mode: core.SyncXYZ, Compressed: compressed}
	return Layout{Position: ch, Rotation: ch, Scale: ch, Velocity: ch, AngularVelocity: ch, MotionMode: motion}
}

func sampleState() core.SyncState {
	s := core.NewSyncState()
	s.Timestamp = 12.5
	s.Position = mgl64.Vec3{1.5, -2.25, 100.125}
	s.Rotation = core.QuatFromEuler(mgl64.Vec3{10, 20, 30})
	s.Scale = mgl64.Vec3{1, 2, 0.5}
	s.Velocity = mgl64.Vec3{3.75, 0, -1}
	s.AngularVelocity = mgl64.Vec3{0.5, 45, -90}
	s.MotionMode = 4
	return s
}

func TestRoundTrip_FullPrecision(t *testing.T) {
	c := NewCodec(fullLayout(false, true))
	in := sampleState()
	flags := allChannels | FlagMotionMode

	data := c.Encode(in, flags)
	require.Len(t, data, c.Size(flags))

	f, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, flags, f.Flags)
	assert.Equal(t, in.Timestamp, f.Timestamp)
	assert.Equal(t, in.Position, f.Position)
	assert.Equal(t, in.Scale, f.Scale)
	assert.Equal(t, in.Velocity, f.Velocity)
	assert.Equal(t, in.AngularVelocity, f.AngularVelocity)
	assert.Equal(t, in.MotionMode, f.MotionMode)

	out := c.Resolve(f, core.NewSyncState())
	assert.InDelta(t, 0, core.AngleBetween(in.Rotation, out.Rotation), 1e-3)
}

func TestRoundTrip_Compressed(t *testing.T) {
	c := NewCodec(fullLayout(true, false))
	in := sampleState()
	in.Position = mgl64.Vec3{1234.5, -87.3, 3.2}

	f, err := c.Decode(c.Encode(in, allChannels))
	require.NoError(t, err)

	halfErr := func(v, scale float64) float64 {
		return math.Max(math.Abs(v)*math.Pow(2, -10), math.Pow(2, -14)*scale)
	}
	for i := 0; i < 3; i++ {
		assert.InDelta(t, in.Position[i], f.Position[i], halfErr(in.Position[i], 100), "position axis %d", i)
		assert.InDelta(t, in.Scale[i], f.Scale[i], halfErr(in.Scale[i], 1), "scale axis %d", i)
		assert.InDelta(t, in.Velocity[i], f.Velocity[i], halfErr(in.Velocity[i], 1), "velocity axis %d", i)
		assert.InDelta(t, in.AngularVelocity[i], f.AngularVelocity[i], halfErr(in.AngularVelocity[i], 1), "angular axis %d", i)
	}
	out := c.Resolve(f, core.NewSyncState())
	assert.InDelta(t, 0, core.AngleBetween(in.Rotation, out.Rotation), 0.1)
}

func TestSize(t *testing.T) {
	c := NewCodec(fullLayout(false, false))
	assert.Equal(t, HeaderSize, c.Size(0))
	assert.Equal(t, HeaderSize+12, c.Size(FlagPosition))
	assert.Equal(t, HeaderSize+60, c.Size(allChannels))

	compressed := NewCodec(fullLayout(true, true))
	assert.Equal(t, HeaderSize+1, compressed.Size(0))
	assert.Equal(t, HeaderSize+2+6, compressed.Size(FlagPosition|FlagMotionMode))

	partial := NewCodec(Layout{Position: Channel{Mode: core.SyncXZ}, Rotation: Channel{Mode: core.SyncZ, Compressed: true}})
	assert.Equal(t, HeaderSize+8+2, partial.Size(FlagPosition|FlagRotation))
}

func TestEncode_OnlyEnabledAxes(t *testing.T) {
	c := NewCodec(Layout{Position: Channel{Mode: core.SyncXZ}})
	in := sampleState()

	data := c.Encode(in, FlagPosition)
	require.Len(t, data, HeaderSize+8)

	f, err := c.Decode(data)
	require.NoError(t, err)

	fallback := core.NewSyncState()
	fallback.Position = mgl64.Vec3{7, 8, 9}
	out := c.Resolve(f, fallback)
	assert.Equal(t, mgl64.Vec3{1.5, 8, 100.125}, out.Position)
}

func TestEncode_DropsMotionModeWithoutChannel(t *testing.T) {
	c := NewCodec(fullLayout(false, false))
	data := c.Encode(sampleState(), FlagMotionMode|FlagPosition)
	assert.Equal(t, byte(FlagPosition), data[0])

	_, err := c.Decode(data)
	assert.NoError(t, err)
}

func TestResolve_FallbackForAbsentChannels(t *testing.T) {
	c := NewCodec(fullLayout(false, true))
	in := sampleState()

	f, err := c.Decode(c.Encode(in, FlagRotation|FlagAtPositionalRest))
	require.NoError(t, err)

	prev := core.NewSyncState()
	prev.Timestamp = 3
	prev.Position = mgl64.Vec3{4, 5, 6}
	prev.Scale = mgl64.Vec3{2, 2, 2}
	prev.Velocity = mgl64.Vec3{1, 1, 1}
	prev.AngularVelocity = mgl64.Vec3{0, 0, 9}
	prev.MotionMode = 2

	out := c.Resolve(f, prev)
	assert.Equal(t, in.Timestamp, out.Timestamp)
	assert.Equal(t, prev.Position, out.Position)
	assert.Equal(t, prev.Scale, out.Scale)
	assert.Equal(t, prev.Velocity, out.Velocity)
	assert.Equal(t, prev.AngularVelocity, out.AngularVelocity)
	assert.Equal(t, prev.MotionMode, out.MotionMode)
	assert.True(t, out.AtPositionalRest)
	assert.False(t, out.AtRotationalRest)
	assert.InDelta(t, 0, core.AngleBetween(in.Rotation, out.Rotation), 1e-3)
}

func TestDecode_Truncated(t *testing.T) {
	c := NewCodec(fullLayout(false, true))
	data := c.Encode(sampleState(), allChannels|FlagMotionMode)

	for n := 0; n < len(data); n++ {
		_, err := c.Decode(data[:n])
		assert.ErrorIs(t, err, ErrMalformedMessage, "prefix of %d bytes", n)
	}
}

func TestDecode_Malformed(t *testing.T) {
	withMotion := NewCodec(fullLayout(false, true))
	noMotion := NewCodec(fullLayout(false, false))
	ts := []byte{0, 0, 0x80, 0x3f}

	tests := []struct {
		name  string
		codec *Codec
		data  []byte
	}{
		{"trailing bytes", noMotion, append([]byte{0}, append(ts, 0xff)...)},
		{"motion flag without channel", noMotion, append([]byte{byte(FlagMotionMode)}, ts...)},
		{"motion marker without flag", withMotion, append(append([]byte{0}, ts...), 1, 3)},
		{"motion flag without marker", withMotion, append(append([]byte{byte(FlagMotionMode)}, ts...), 0)},
		{"bad marker", withMotion, append(append([]byte{0}, ts...), 7)},
		{"nan timestamp", noMotion, []byte{0, 0, 0, 0xc0, 0x7f}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.Decode(tt.data)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestLayoutFor(t *testing.T) {
	s := core.DefaultSettings()
	s.Position.Compress = true
	s.Velocity.Mode = core.SyncNone

	l := LayoutFor(s, true)
	assert.True(t, l.Position.Compressed)
	assert.Equal(t, core.SyncNone, l.Velocity.Mode)
	assert.True(t, l.MotionMode)

	s.SyncMotionMode = false
	assert.False(t, LayoutFor(s, true).MotionMode)
	assert.False(t, LayoutFor(core.DefaultSettings(), false).MotionMode)
}
