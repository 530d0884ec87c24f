package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/smoothsync/internal/engine"
	"github.com/OCAP2/smoothsync/internal/logging"
	"github.com/OCAP2/smoothsync/internal/reconstruct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	id    string
	stats engine.Stats
}

func (f fakeSource) ObjectID() string    { return f.id }
func (f fakeSource) Stats() engine.Stats { return f.stats }

func sources() []Source {
	return []Source{
		fakeSource{id: "crate", stats: engine.Stats{Sent: 40, BytesSent: 1200}},
		fakeSource{id: "crate-remote", stats: engine.Stats{
			Received:     30,
			Stale:        10,
			HistoryDepth: 12,
			Mode:         reconstruct.Interpolating,
		}},
	}
}

func TestGetStatus(t *testing.T) {
	s := NewService(Dependencies{Sources: sources(), LogManager: logging.NewSlogManager()})

	st := s.GetStatus()

	require.Len(t, st.Objects, 2)
	assert.Equal(t, "crate", st.Objects[0].ObjectID)
	assert.Equal(t, uint64(1200), st.Objects[0].BytesSent)
	assert.Zero(t, st.Objects[0].StaleRatio)

	remote := st.Objects[1]
	assert.Equal(t, "interpolating", remote.Mode)
	assert.Equal(t, 12, remote.HistoryDepth)
	assert.InDelta(t, 0.25, remote.StaleRatio, 1e-9)
}

func TestWriteStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{Sources: sources(), LogManager: logging.NewSlogManager(), StatusPath: path})

	require.NoError(t, s.WriteStatus())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Len(t, st.Objects, 2)
	assert.Equal(t, uint64(30), st.Objects[1].Received)
	assert.NoFileExists(t, path+".tmp")
}

func TestWriteStatus_NoPath(t *testing.T) {
	s := NewService(Dependencies{Sources: sources(), LogManager: logging.NewSlogManager()})
	assert.NoError(t, s.WriteStatus())
}

func TestStartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	s := NewService(Dependencies{
		Sources:    sources(),
		LogManager: logging.NewSlogManager(),
		StatusPath: path,
		Interval:   10 * time.Millisecond,
	})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
	assert.FileExists(t, path)
}
