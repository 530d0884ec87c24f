package model

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/smoothsync/pkg/core"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"SentState", &SentState{}, "sent_states"},
		{"ReceivedState", &ReceivedState{}, "received_states"},
		{"AppliedSample", &AppliedSample{}, "applied_samples"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestLocation_ValueScan(t *testing.T) {
	loc := NewLocation(mgl64.Vec3{1.5, -2, 3})
	v, err := loc.Value()
	require.NoError(t, err)

	var back Location
	require.NoError(t, back.Scan(v))
	assert.Equal(t, mgl64.Vec3{1.5, -2, 3}, back.Vec3())
}

func TestFromSent(t *testing.T) {
	s := core.NewSyncState()
	s.Timestamp = 2.5
	s.Position = mgl64.Vec3{1, 2, 3}

	row, err := FromSent(&core.SentRecord{ObjectID: "crate", LocalTime: 3, State: s, Flags: []string{"position", "rotation"}, Bytes: 17})
	require.NoError(t, err)
	assert.Equal(t, "crate", row.ObjectID)
	assert.Equal(t, 2.5, row.Timestamp)
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, row.Position.Vec3())
	assert.Equal(t, s, row.State.Data())

	names, err := FlagNames(row.Flags)
	require.NoError(t, err)
	assert.Equal(t, []string{"position", "rotation"}, names)
}

func TestFromReceived_NilFlags(t *testing.T) {
	s := core.NewSyncState()
	s.Teleport = true
	row, err := FromReceived(&core.ReceivedRecord{State: s})
	require.NoError(t, err)
	assert.True(t, row.Teleport)
	assert.JSONEq(t, `[]`, string(row.Flags))
}

func TestAppliedRoundTrip(t *testing.T) {
	in := core.AppliedRecord{
		ObjectID:        "crate",
		LocalTime:       10,
		SenderTime:      9.5,
		PlaybackTime:    9.4,
		Mode:            "interpolating",
		Position:        mgl64.Vec3{4, 5, 6},
		Rotation:        mgl64.QuatIdent(),
		HistoryDepth:    7,
		ExtrapolatedFor: 0,
	}
	assert.Equal(t, in, FromApplied(&in).Core())
}
