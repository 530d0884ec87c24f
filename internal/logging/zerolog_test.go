package logging

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseZerologLevel("debug"))
	assert.Equal(t, zerolog.TraceLevel, ParseZerologLevel("TRACE"))
	assert.Equal(t, zerolog.WarnLevel, ParseZerologLevel("warn"))
	assert.Equal(t, zerolog.ErrorLevel, ParseZerologLevel("Error"))
	assert.Equal(t, zerolog.InfoLevel, ParseZerologLevel("bogus"))
}

func TestNewZerolog_FileAndGraylog(t *testing.T) {
	var file, graylog bytes.Buffer
	log := NewZerolog(Options{
		File:    &file,
		Graylog: &graylog,
		Level:   "info",
		Context: func() []slog.Attr { return []slog.Attr{slog.String("object", "crate")} },
	})

	log.Debug().Msg("filtered")
	log.Info().Int("rows", 3).Msg("Rows written")

	assert.NotContains(t, file.String(), "filtered")
	assert.Contains(t, file.String(), "Rows written")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(graylog.Bytes(), &entry))
	assert.Equal(t, "Rows written", entry["message"])
	assert.Equal(t, float64(3), entry["rows"])
	assert.Equal(t, "crate", entry["object"])
}

func TestSampled_ThrottlesBursts(t *testing.T) {
	var buf bytes.Buffer
	log := Sampled(zerolog.New(&buf))

	for range 20 {
		log.Warn().Msg("no target")
	}
	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	assert.Equal(t, 6, lines, "burst of five plus the first of the next hundred")
	assert.Contains(t, buf.String(), `"sampled":true`)
}

func TestDialGraylog(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	w, err := DialGraylog(conn.LocalAddr().String(), "smoothsync")
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("relay started\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	packet := make([]byte, 8192)
	n, _, err := conn.ReadFrom(packet)
	require.NoError(t, err)

	gz, err := gzip.NewReader(bytes.NewReader(packet[:n]))
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "relay started", msg["short_message"])
	assert.Equal(t, "smoothsync", msg["facility"])
}
