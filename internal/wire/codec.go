// Package wire encodes and decodes state update messages.
//
// A message is one flag byte, a little-endian float32 sender timestamp, an
// optional motion-mode block, then every flagged vector channel in the order
// position, rotation (Euler degrees), scale, velocity, angular velocity.
// Only the axes enabled by the channel's sync mode are written, each as a
// float32 or, when the channel is compressed, as an IEEE 754 half float.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/x448/float16"
)

// ErrMalformedMessage is returned when a payload cannot be consumed
// consistently with its flag byte.
var ErrMalformedMessage = errors.New("malformed state message")

// positionScale keeps compressed positions inside the useful half-float range.
const positionScale = 100

// HeaderSize is the flag byte plus the timestamp.
const HeaderSize = 5

// Channel describes how one vector channel is laid out on the wire.
type Channel struct {
	Mode       core.SyncMode
	Compressed bool
}

func (c Channel) size() int {
	per := 4
	if c.Compressed {
		per = 2
	}
	return per * c.Mode.AxisCount()
}

// Layout is the static shape shared by sender and receiver. Both ends must be
// built from the same Layout.
type Layout struct {
	Position        Channel
	Rotation        Channel
	Scale           Channel
	Velocity        Channel
	AngularVelocity Channel
	// MotionMode is set when the host exposes a discrete motion mode.
	MotionMode bool
}

// LayoutFor derives the wire layout from engine settings.
func LayoutFor(s core.Settings, hasMotionMode bool) Layout {
	ch := func(c core.ChannelSettings) Channel {
		return Channel{Mode: c.Mode, Compressed: c.Compress}
	}
	return Layout{
		Position:        ch(s.Position),
		Rotation:        ch(s.Rotation),
		Scale:           ch(s.Scale),
		Velocity:        ch(s.Velocity),
		AngularVelocity: ch(s.AngularVelocity),
		MotionMode:      hasMotionMode && s.SyncMotionMode,
	}
}

// Codec encodes and decodes messages for a fixed Layout.
type Codec struct {
	layout Layout
}

// NewCodec creates a codec for the given layout.
func NewCodec(l Layout) *Codec {
	return &Codec{layout: l}
}

// Layout returns the codec's layout.
func (c *Codec) Layout() Layout { return c.layout }

// Size returns the encoded length of a message carrying flags.
func (c *Codec) Size(flags Flags) int {
	n := HeaderSize
	if c.layout.MotionMode {
		n++
		if flags.Has(FlagMotionMode) {
			n++
		}
	}
	for _, f := range c.fields() {
		if flags.Has(f.flag) {
			n += f.ch.size()
		}
	}
	return n
}

type field struct {
	flag Flags
	ch   Channel
}

func (c *Codec) fields() [5]field {
	return [5]field{
		{FlagPosition, c.layout.Position},
		{FlagRotation, c.layout.Rotation},
		{FlagScale, c.layout.Scale},
		{FlagVelocity, c.layout.Velocity},
		{FlagAngularVelocity, c.layout.AngularVelocity},
	}
}

// Encode serializes the channels of s selected by flags. The motion-mode bit
// is dropped when the layout has no motion-mode channel.
func (c *Codec) Encode(s core.SyncState, flags Flags) []byte {
	if !c.layout.MotionMode {
		flags = flags.Without(FlagMotionMode)
	}
	buf := make([]byte, 0, c.Size(flags))
	buf = append(buf, byte(flags))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(s.Timestamp)))

	if c.layout.MotionMode {
		if flags.Has(FlagMotionMode) {
			buf = append(buf, 1, s.MotionMode)
		} else {
			buf = append(buf, 0)
		}
	}

	values := [5]mgl64.Vec3{
		s.Position,
		core.EulerFromQuat(s.Rotation),
		s.Scale,
		s.Velocity,
		s.AngularVelocity,
	}
	for i, f := range c.fields() {
		if !flags.Has(f.flag) {
			continue
		}
		v := values[i]
		if f.flag == FlagPosition && f.ch.Compressed {
			v = v.Mul(1.0 / positionScale)
		}
		buf = appendVec(buf, v, f.ch)
	}
	return buf
}

func appendVec(buf []byte, v mgl64.Vec3, ch Channel) []byte {
	for i, on := range ch.Mode.Axes() {
		if !on {
			continue
		}
		if ch.Compressed {
			buf = binary.LittleEndian.AppendUint16(buf, float16.Fromfloat32(float32(v[i])).Bits())
		} else {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v[i])))
		}
	}
	return buf
}

// Frame is a decoded message. Vector channels hold meaningful values only
// for the axes their sync mode enables and only when their flag is set.
type Frame struct {
	Flags      Flags
	Timestamp  float64
	MotionMode uint8

	Position        mgl64.Vec3
	RotationEuler   mgl64.Vec3
	Scale           mgl64.Vec3
	Velocity        mgl64.Vec3
	AngularVelocity mgl64.Vec3
}

// Decode parses a message produced by a codec with the same layout.
func (c *Codec) Decode(data []byte) (Frame, error) {
	var f Frame
	r := reader{data: data}

	f.Flags = Flags(r.byte())
	f.Timestamp = float64(math.Float32frombits(r.uint32()))
	if r.err != nil {
		return Frame{}, r.err
	}
	if math.IsNaN(f.Timestamp) || math.IsInf(f.Timestamp, 0) {
		return Frame{}, fmt.Errorf("%w: non-finite timestamp", ErrMalformedMessage)
	}

	if c.layout.MotionMode {
		switch changed := r.byte(); changed {
		case 0:
			if f.Flags.Has(FlagMotionMode) {
				return Frame{}, fmt.Errorf("%w: motion mode flagged but not carried", ErrMalformedMessage)
			}
		case 1:
			if !f.Flags.Has(FlagMotionMode) {
				return Frame{}, fmt.Errorf("%w: motion mode carried but not flagged", ErrMalformedMessage)
			}
			f.MotionMode = r.byte()
		default:
			return Frame{}, fmt.Errorf("%w: invalid motion mode marker %d", ErrMalformedMessage, changed)
		}
	} else if f.Flags.Has(FlagMotionMode) {
		return Frame{}, fmt.Errorf("%w: motion mode flagged without a motion mode channel", ErrMalformedMessage)
	}

	targets := [5]*mgl64.Vec3{&f.Position, &f.RotationEuler, &f.Scale, &f.Velocity, &f.AngularVelocity}
	for i, fd := range c.fields() {
		if !f.Flags.Has(fd.flag) {
			continue
		}
		*targets[i] = r.vec(fd.ch)
		if fd.flag == FlagPosition && fd.ch.Compressed {
			*targets[i] = targets[i].Mul(positionScale)
		}
	}

	if r.err != nil {
		return Frame{}, r.err
	}
	if r.off != len(data) {
		return Frame{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedMessage, len(data)-r.off)
	}
	return f, nil
}

// Resolve builds a complete state from f. Channels absent from the message
// and axes excluded by the sync mode take their values from fallback.
func (c *Codec) Resolve(f Frame, fallback core.SyncState) core.SyncState {
	s := fallback
	s.Timestamp = f.Timestamp
	s.Teleport = false
	s.AtPositionalRest = f.Flags.Has(FlagAtPositionalRest)
	s.AtRotationalRest = f.Flags.Has(FlagAtRotationalRest)

	if f.Flags.Has(FlagPosition) {
		s.Position = c.layout.Position.Mode.Mask(fallback.Position, f.Position)
	}
	if f.Flags.Has(FlagRotation) {
		euler := c.layout.Rotation.Mode.Mask(core.EulerFromQuat(fallback.Rotation), f.RotationEuler)
		s.Rotation = core.QuatFromEuler(euler)
	}
	if f.Flags.Has(FlagScale) {
		s.Scale = c.layout.Scale.Mode.Mask(fallback.Scale, f.Scale)
	}
	if f.Flags.Has(FlagVelocity) {
		s.Velocity = c.layout.Velocity.Mode.Mask(fallback.Velocity, f.Velocity)
	}
	if f.Flags.Has(FlagAngularVelocity) {
		s.AngularVelocity = c.layout.AngularVelocity.Mode.Mask(fallback.AngularVelocity, f.AngularVelocity)
	}
	if f.Flags.Has(FlagMotionMode) {
		s.MotionMode = f.MotionMode
	}
	return s
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if len(r.data)-r.off < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformedMessage, n, r.off, len(r.data)-r.off)
		return false
	}
	return true
}

func (r *reader) byte() byte {
	if !r.need(1) {
		return 0
	}
	b := r.data[r.off]
	r.off++
	return b
}

func (r *reader) uint16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) uint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) vec(ch Channel) mgl64.Vec3 {
	var v mgl64.Vec3
	for i, on := range ch.Mode.Axes() {
		if !on {
			continue
		}
		if ch.Compressed {
			v[i] = float64(float16.Frombits(r.uint16()).Float32())
		} else {
			v[i] = float64(math.Float32frombits(r.uint32()))
		}
	}
	return v
}
