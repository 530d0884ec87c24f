package logging

import (
	"io"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// ParseZerologLevel converts a string log level to a zerolog level.
func ParseZerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "TRACE":
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewZerolog builds the zerolog logger the storage layer writes through. It
// shares the file, Graylog and context sinks of opts.
func NewZerolog(opts Options) zerolog.Logger {
	var writers []io.Writer
	if opts.File != nil {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        opts.File,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        osStdout,
			TimeFormat: time.RFC3339,
		})
	}
	if opts.Graylog != nil {
		writers = append(writers, opts.Graylog)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseZerologLevel(opts.Level)).
		With().Timestamp().Logger()

	if opts.Context != nil {
		provider := opts.Context
		logger = logger.Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
			for _, a := range provider() {
				e.Interface(a.Key, a.Value.Any())
			}
		}))
	}
	return logger
}

// Sampled wraps a logger so repeated entries are throttled: at most five per
// ten seconds, then one in a hundred.
func Sampled(logger zerolog.Logger) zerolog.Logger {
	return logger.With().Bool("sampled", true).Logger().Sample(&zerolog.BurstSampler{
		Burst:       5,
		Period:      10 * time.Second,
		NextSampler: &zerolog.BasicSampler{N: 100},
	})
}

// DialGraylog opens a GELF UDP writer to address.
func DialGraylog(address, facility string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, err
	}
	w.Facility = facility
	return w, nil
}
