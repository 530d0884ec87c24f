// Package config loads smoothsync.cfg.json through viper and turns it into
// the typed settings each component consumes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/OCAP2/smoothsync/pkg/core"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "smoothsync.cfg.json"

// MemoryConfig holds in-memory trace backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds settings for the in-memory SQLite trace store.
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// PostgresConfig holds the Postgres connection settings.
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// DSN renders the connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// InfluxConfig holds the InfluxDB telemetry settings.
type InfluxConfig struct {
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// URL is the server address built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// StorageConfig selects and configures the trace backends.
type StorageConfig struct {
	Types    []string
	Memory   MemoryConfig
	SQLite   SQLiteConfig
	Postgres PostgresConfig
	Influx   InfluxConfig
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	Endpoint       string
	Insecure       bool
}

// LoggingConfig holds log sink settings. SampleEngines routes engine logs
// through the sampled zerolog logger instead of slog.
type LoggingConfig struct {
	Level          string
	Dir            string
	GraylogEnabled bool
	GraylogAddress string
	SampleEngines  bool
}

// TransportConfig holds the relay and simulated-link settings.
type TransportConfig struct {
	RelayURL  string
	InboxSize int
	Loss      float64
	Reorder   float64
	Latency   time.Duration
	Jitter    time.Duration
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. A missing file is
// not an error; the defaults apply.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	d := core.DefaultSettings()

	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./smoothsynclogs")
	viper.SetDefault("logSampling", false)

	viper.SetDefault("sync.sendRate", d.SendRate)
	viper.SetDefault("sync.interpolationBackTime", d.InterpolationBackTime)
	viper.SetDefault("sync.timeCorrectionSpeed", d.TimeCorrectionSpeed)
	viper.SetDefault("sync.snapTimeThreshold", d.SnapTimeThreshold)
	viper.SetDefault("sync.receiveSnapTimeThreshold", d.ReceiveSnapTimeThreshold)

	viper.SetDefault("extrapolation.mode", "limited")
	viper.SetDefault("extrapolation.useTimeLimit", d.UseExtrapolationTime)
	viper.SetDefault("extrapolation.timeLimit", d.ExtrapolationTimeLimit)
	viper.SetDefault("extrapolation.useDistanceLimit", d.UseExtrapolationDist)
	viper.SetDefault("extrapolation.distanceLimit", d.ExtrapolationDistLimit)

	for _, ch := range channels {
		viper.SetDefault("syncMode."+ch, "xyz")
		viper.SetDefault("compression."+ch, false)
		viper.SetDefault("thresholds.send."+ch, 0.0)
	}
	viper.SetDefault("syncMode.motionMode", d.SyncMotionMode)

	viper.SetDefault("thresholds.received.position", d.ReceivedPositionThreshold)
	viper.SetDefault("thresholds.received.rotation", d.ReceivedRotationThreshold)
	viper.SetDefault("thresholds.snap.position", d.PositionSnapThreshold)
	viper.SetDefault("thresholds.snap.rotation", d.RotationSnapThreshold)
	viper.SetDefault("thresholds.snap.scale", d.ScaleSnapThreshold)

	viper.SetDefault("lerp.position", d.PositionLerpSpeed)
	viper.SetDefault("lerp.rotation", d.RotationLerpSpeed)
	viper.SetDefault("lerp.scale", d.ScaleLerpSpeed)

	viper.SetDefault("rest.positionThreshold", d.AtRestPositionThreshold)
	viper.SetDefault("rest.rotationThreshold", d.AtRestRotationThreshold)
	viper.SetDefault("rest.thresholdCount", d.AtRestThresholdCount)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./traces")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "1m")
	viper.SetDefault("storage.sqlite.dumpPath", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "smoothsync")

	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "smoothsync")
	viper.SetDefault("influx.bucket", "smoothsync_telemetry")
	viper.SetDefault("influx.backupPath", "./smoothsync_influx_backup.log.gz")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "smoothsync")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "10s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("transport.relayUrl", "")
	viper.SetDefault("transport.inboxSize", 256)
	viper.SetDefault("transport.loss", 0.05)
	viper.SetDefault("transport.reorder", 0.02)
	viper.SetDefault("transport.latency", "40ms")
	viper.SetDefault("transport.jitter", "20ms")
}

var channels = []string{"position", "rotation", "scale", "velocity", "angularVelocity"}

// GetSettings builds the engine settings from the loaded configuration.
func GetSettings() (core.Settings, error) {
	s := core.DefaultSettings()
	var errs []error

	s.SendRate = viper.GetFloat64("sync.sendRate")
	s.InterpolationBackTime = viper.GetFloat64("sync.interpolationBackTime")
	s.TimeCorrectionSpeed = viper.GetFloat64("sync.timeCorrectionSpeed")
	s.SnapTimeThreshold = viper.GetFloat64("sync.snapTimeThreshold")
	s.ReceiveSnapTimeThreshold = viper.GetFloat64("sync.receiveSnapTimeThreshold")

	mode, err := core.ParseExtrapolationMode(viper.GetString("extrapolation.mode"))
	if err != nil {
		errs = append(errs, err)
	}
	s.ExtrapolationMode = mode
	s.UseExtrapolationTime = viper.GetBool("extrapolation.useTimeLimit")
	s.ExtrapolationTimeLimit = viper.GetFloat64("extrapolation.timeLimit")
	s.UseExtrapolationDist = viper.GetBool("extrapolation.useDistanceLimit")
	s.ExtrapolationDistLimit = viper.GetFloat64("extrapolation.distanceLimit")
	if mode == core.ExtrapolateUnlimited {
		s.UseExtrapolationTime = false
		s.UseExtrapolationDist = false
	}

	targets := []*core.ChannelSettings{&s.Position, &s.Rotation, &s.Scale, &s.Velocity, &s.AngularVelocity}
	for i, ch := range channels {
		m, err := core.ParseSyncMode(viper.GetString("syncMode." + ch))
		if err != nil {
			errs = append(errs, fmt.Errorf("syncMode.%s: %w", ch, err))
		}
		*targets[i] = core.ChannelSettings{
			Mode:       m,
			Compress:   viper.GetBool("compression." + ch),
			SendThresh: viper.GetFloat64("thresholds.send." + ch),
		}
	}
	s.SyncMotionMode = viper.GetBool("syncMode.motionMode")

	s.ReceivedPositionThreshold = viper.GetFloat64("thresholds.received.position")
	s.ReceivedRotationThreshold = viper.GetFloat64("thresholds.received.rotation")
	s.PositionSnapThreshold = viper.GetFloat64("thresholds.snap.position")
	s.RotationSnapThreshold = viper.GetFloat64("thresholds.snap.rotation")
	s.ScaleSnapThreshold = viper.GetFloat64("thresholds.snap.scale")

	s.PositionLerpSpeed = viper.GetFloat64("lerp.position")
	s.RotationLerpSpeed = viper.GetFloat64("lerp.rotation")
	s.ScaleLerpSpeed = viper.GetFloat64("lerp.scale")

	s.AtRestPositionThreshold = viper.GetFloat64("rest.positionThreshold")
	s.AtRestRotationThreshold = viper.GetFloat64("rest.rotationThreshold")
	s.AtRestThresholdCount = viper.GetFloat64("rest.thresholdCount")

	if len(errs) > 0 {
		return s, fmt.Errorf("%w: %w", core.ErrInvalidSettings, errors.Join(errs...))
	}
	return s, s.Validate()
}

// GetStorageConfig returns the trace backend configuration. storage.type may
// list several backends separated by commas.
func GetStorageConfig() StorageConfig {
	var types []string
	for _, t := range strings.Split(viper.GetString("storage.type"), ",") {
		if t = strings.TrimSpace(strings.ToLower(t)); t != "" {
			types = append(types, t)
		}
	}
	return StorageConfig{
		Types: types,
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
		Influx: InfluxConfig{
			Protocol:   viper.GetString("influx.protocol"),
			Host:       viper.GetString("influx.host"),
			Port:       viper.GetString("influx.port"),
			Token:      viper.GetString("influx.token"),
			Org:        viper.GetString("influx.org"),
			Bucket:     viper.GetString("influx.bucket"),
			BackupPath: viper.GetString("influx.backupPath"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetLoggingConfig returns the log sink configuration.
func GetLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:          viper.GetString("logLevel"),
		Dir:            viper.GetString("logsDir"),
		GraylogEnabled: viper.GetBool("graylog.enabled"),
		GraylogAddress: viper.GetString("graylog.address"),
		SampleEngines:  viper.GetBool("logSampling"),
	}
}

// GetTransportConfig returns the transport configuration.
func GetTransportConfig() TransportConfig {
	return TransportConfig{
		RelayURL:  viper.GetString("transport.relayUrl"),
		InboxSize: viper.GetInt("transport.inboxSize"),
		Loss:      viper.GetFloat64("transport.loss"),
		Reorder:   viper.GetFloat64("transport.reorder"),
		Latency:   viper.GetDuration("transport.latency"),
		Jitter:    viper.GetDuration("transport.jitter"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
