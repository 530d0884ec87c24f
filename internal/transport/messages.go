// Package transport carries engine messages between peers. A frame is one
// kind byte, one reliability byte and the kind-specific payload.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/OCAP2/smoothsync/internal/wire"
	"github.com/go-gl/mathgl/mgl64"
)

var (
	// ErrClosed is returned when sending on a closed transport.
	ErrClosed = errors.New("transport closed")
	// ErrUnknownKind is returned for frames with an unrecognised kind byte.
	ErrUnknownKind = errors.New("unknown message kind")
)

// Kind identifies what a message carries.
type Kind uint8

const (
	// KindState is an unreliable state update encoded by the wire codec.
	KindState Kind = iota + 1
	// KindTeleport is a reliable teleport notice.
	KindTeleport
	// KindEnable toggles synchronization on every peer.
	KindEnable
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindTeleport:
		return "teleport"
	case KindEnable:
		return "enable"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= KindState && k <= KindEnable
}

const frameHeader = 2

// Message is one engine message.
type Message struct {
	Kind     Kind
	Payload  []byte
	Reliable bool
}

// StateMessage wraps an encoded state update.
func StateMessage(payload []byte) Message {
	return Message{Kind: KindState, Payload: payload}
}

// MarshalBinary frames m for a byte-stream or datagram transport.
func (m Message) MarshalBinary() ([]byte, error) {
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, m.Kind)
	}
	out := make([]byte, frameHeader+len(m.Payload))
	out[0] = byte(m.Kind)
	if m.Reliable {
		out[1] = 1
	}
	copy(out[frameHeader:], m.Payload)
	return out, nil
}

// UnmarshalBinary parses a frame produced by MarshalBinary.
func (m *Message) UnmarshalBinary(data []byte) error {
	if len(data) < frameHeader {
		return fmt.Errorf("%w: frame of %d bytes", wire.ErrMalformedMessage, len(data))
	}
	k := Kind(data[0])
	if !k.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKind, data[0])
	}
	m.Kind = k
	m.Reliable = data[1] == 1
	m.Payload = append([]byte(nil), data[frameHeader:]...)
	return nil
}

// Teleport is the payload of a KindTeleport message.
type Teleport struct {
	Position      mgl64.Vec3
	RotationEuler mgl64.Vec3
	Scale         mgl64.Vec3
	Timestamp     float64
}

const teleportSize = 10 * 4

// TeleportMessage encodes t as a reliable message.
func TeleportMessage(t Teleport) Message {
	buf := make([]byte, 0, teleportSize)
	for _, v := range []mgl64.Vec3{t.Position, t.RotationEuler, t.Scale} {
		for _, c := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(c)))
		}
	}
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(t.Timestamp)))
	return Message{Kind: KindTeleport, Payload: buf, Reliable: true}
}

// DecodeTeleport parses a KindTeleport payload.
func DecodeTeleport(payload []byte) (Teleport, error) {
	if len(payload) != teleportSize {
		return Teleport{}, fmt.Errorf("%w: teleport payload of %d bytes", wire.ErrMalformedMessage, len(payload))
	}
	f := func(i int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:])))
	}
	var t Teleport
	for i := range 3 {
		t.Position[i] = f(i)
		t.RotationEuler[i] = f(3 + i)
		t.Scale[i] = f(6 + i)
	}
	t.Timestamp = f(9)
	if math.IsNaN(t.Timestamp) || math.IsInf(t.Timestamp, 0) {
		return Teleport{}, fmt.Errorf("%w: non-finite teleport timestamp", wire.ErrMalformedMessage)
	}
	return t, nil
}

// EnableMessage encodes an enable toggle as a reliable message.
func EnableMessage(enabled bool) Message {
	b := byte(0)
	if enabled {
		b = 1
	}
	return Message{Kind: KindEnable, Payload: []byte{b}, Reliable: true}
}

// DecodeEnable parses a KindEnable payload.
func DecodeEnable(payload []byte) (bool, error) {
	if len(payload) != 1 || payload[0] > 1 {
		return false, fmt.Errorf("%w: enable payload %v", wire.ErrMalformedMessage, payload)
	}
	return payload[0] == 1, nil
}
