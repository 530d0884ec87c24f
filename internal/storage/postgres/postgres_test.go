package postgres

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/smoothsync/internal/config"
	"github.com/OCAP2/smoothsync/pkg/core"
)

func unreachable() config.PostgresConfig {
	return config.PostgresConfig{
		Host:     "127.0.0.1",
		Port:     "1",
		Username: "postgres",
		Password: "postgres",
		Database: "smoothsync",
	}
}

func TestNew_QueuesBeforeInit(t *testing.T) {
	b := New(unreachable(), zerolog.Nop())
	require.NotNil(t, b)

	require.NoError(t, b.RecordSent(&core.SentRecord{ObjectID: "a"}))
	assert.Equal(t, 1, b.Pending())
	assert.NoError(t, b.Close())
}

func TestInit_Unreachable(t *testing.T) {
	b := New(unreachable(), zerolog.Nop())
	err := b.Init()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to postgres")
}
