package history

import (
	"math/rand/v2"
	"testing"

	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func state(ts float64) core.SyncState {
	s := core.NewSyncState()
	s.Timestamp = ts
	s.Position = mgl64.Vec3{ts, 0, 0}
	return s
}

func timestamps(h *History) []float64 {
	out := make([]float64, h.Len())
	for i := range out {
		out[i] = h.At(i).Timestamp
	}
	return out
}

func TestAdd_NewestFirst(t *testing.T) {
	h := New(5)
	for _, ts := range []float64{1, 2, 3} {
		require.NoError(t, h.Add(state(ts)))
	}
	assert.Equal(t, []float64{3, 2, 1}, timestamps(h))

	newest, ok := h.Newest()
	require.True(t, ok)
	assert.Equal(t, 3.0, newest.Timestamp)
}

func TestAdd_EvictsOldest(t *testing.T) {
	h := New(3)
	for ts := 1; ts <= 7; ts++ {
		require.NoError(t, h.Add(state(float64(ts))))
	}
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []float64{7, 6, 5}, timestamps(h))
}

func TestAdd_RejectsStale(t *testing.T) {
	h := New(5)
	require.NoError(t, h.Add(state(1)))
	require.NoError(t, h.Add(state(2)))

	for _, ts := range []float64{2, 1.5, 0} {
		err := h.Add(state(ts))
		assert.ErrorIs(t, err, ErrStale)
		assert.Equal(t, 2, h.Len())
		newest, _ := h.Newest()
		assert.Equal(t, 2.0, newest.Timestamp)
	}
}

func TestAdd_SecondStateMayShareTimestamp(t *testing.T) {
	h := New(5)
	require.NoError(t, h.Add(state(1)))
	require.NoError(t, h.Add(state(1)))
	assert.Equal(t, 2, h.Len())

	assert.ErrorIs(t, h.Add(state(0.5)), ErrStale)
}

func TestAdd_OrderingInvariantUnderRandomArrival(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	h := New(30)
	for i := 0; i < 2000; i++ {
		_ = h.Add(state(r.Float64() * 100))
		ts := timestamps(h)
		for j := 0; j+1 < len(ts); j++ {
			require.GreaterOrEqual(t, ts[j], ts[j+1])
		}
	}
}

func TestAddTeleport_EmptyDuplicates(t *testing.T) {
	h := New(30)
	tp := state(4)
	h.AddTeleport(tp)

	require.Equal(t, 2, h.Len())
	first, second := h.At(0), h.At(1)
	assert.Equal(t, first.SyncState, second.SyncState)
	assert.True(t, first.Teleport)
	assert.Equal(t, tp.Position, first.Position)
	assert.NotEqual(t, first.Seq, second.Seq)
}

func TestAddTeleport_Newest(t *testing.T) {
	h := New(30)
	require.NoError(t, h.Add(state(1)))
	h.AddTeleport(state(2))

	assert.Equal(t, []float64{2, 1}, timestamps(h))
	assert.True(t, h.At(0).Teleport)
	assert.False(t, h.At(1).Teleport)
}

func TestAddTeleport_SplicesInOrder(t *testing.T) {
	h := New(30)
	for _, ts := range []float64{1, 2, 3, 4} {
		require.NoError(t, h.Add(state(ts)))
	}
	h.AddTeleport(state(2.5))

	assert.Equal(t, []float64{4, 3, 2.5, 2, 1}, timestamps(h))
	assert.True(t, h.At(2).Teleport)
	for _, i := range []int{0, 1, 3, 4} {
		assert.False(t, h.At(i).Teleport)
	}
}

func TestAddTeleport_SpliceWhenFullEvictsOldest(t *testing.T) {
	h := New(4)
	for _, ts := range []float64{1, 2, 3, 4} {
		require.NoError(t, h.Add(state(ts)))
	}
	h.AddTeleport(state(3.5))
	assert.Equal(t, []float64{4, 3.5, 3, 2}, timestamps(h))

	h.AddTeleport(state(0.5))
	assert.Equal(t, []float64{4, 3.5, 3, 2}, timestamps(h), "older than everything in a full buffer is dropped")
}

func TestAddTeleport_OlderThanAllWithRoom(t *testing.T) {
	h := New(5)
	require.NoError(t, h.Add(state(2)))
	require.NoError(t, h.Add(state(3)))
	h.AddTeleport(state(1))
	assert.Equal(t, []float64{3, 2, 1}, timestamps(h))
	assert.True(t, h.At(2).Teleport)
}

func TestIndexOf(t *testing.T) {
	h := New(3)
	require.NoError(t, h.Add(state(1)))
	seq := h.At(0).Seq
	require.NoError(t, h.Add(state(2)))

	i, ok := h.IndexOf(seq)
	require.True(t, ok)
	assert.Equal(t, 1, i)

	require.NoError(t, h.Add(state(3)))
	require.NoError(t, h.Add(state(4)))
	_, ok = h.IndexOf(seq)
	assert.False(t, ok, "evicted entries are not found")
}

func TestClearAndStates(t *testing.T) {
	h := New(3)
	require.NoError(t, h.Add(state(1)))
	require.NoError(t, h.Add(state(2)))

	states := h.States()
	require.Len(t, states, 2)
	assert.Equal(t, 2.0, states[0].Timestamp)

	h.Clear()
	assert.Equal(t, 0, h.Len())
	_, ok := h.Newest()
	assert.False(t, ok)
	assert.Empty(t, h.States())
	assert.Panics(t, func() { h.At(0) })
}
