package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Configuration keys, also used as flag names with underscores turned into dashes
const (
	KeyTickInterval   = "tick_interval"
	KeyCallTimeout    = "call_timeout"
	KeyEventBuffer    = "event_buffer"
	KeyCoalesceWindow = "coalesce_window"
	KeyDebounce       = "debounce"
	KeyMetricsAddr    = "metrics_addr"
	KeyDebug          = "debug"
)

const (
	appName = "playerwatch"

	defaultTickInterval = time.Second
	defaultCallTimeout  = 2 * time.Second
	defaultEventBuffer  = 64
	defaultDebounce     = 500 * time.Millisecond
)

// EnvKeyReplacer maps configuration keys to PLAYERWATCH_* variable names
var EnvKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

var defaults = map[string]any{
	KeyTickInterval:   defaultTickInterval,
	KeyCallTimeout:    defaultCallTimeout,
	KeyEventBuffer:    defaultEventBuffer,
	KeyCoalesceWindow: time.Duration(0),
	KeyDebounce:       defaultDebounce,
	KeyMetricsAddr:    "",
	KeyDebug:          false,
}

// NewViper returns a viper instance with defaults and environment bindings applied
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(appName)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	v.SetTypeByDefaultValue(true)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(appName)
	v.SetConfigType("yaml")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, appName))
	}
	return v
}

// BindFlags registers a flag per key on fs and binds it to v
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.Duration(flagName(KeyTickInterval), defaultTickInterval, "Period of position events, 0 disables them")
	fs.Duration(flagName(KeyCallTimeout), defaultCallTimeout, "Timeout of every call to a player")
	fs.Int(flagName(KeyEventBuffer), defaultEventBuffer, "Capacity of the event channel")
	fs.Duration(flagName(KeyCoalesceWindow), 0, "Merge property changes of a player within this window, 0 disables it")
	fs.Duration(flagName(KeyDebounce), defaultDebounce, "Wait this long after a change before fetching metadata")
	fs.String(flagName(KeyMetricsAddr), "", "Serve Prometheus metrics on this address (e.g. :9090)")
	fs.Bool(KeyDebug, false, "Enable development logging")

	var err error
	for key := range defaults {
		err = errors.Join(err, v.BindPFlag(key, fs.Lookup(flagName(key))))
	}
	return err
}

// ReadConfigFile loads playerwatch.yaml when present, a missing file is not an error
func ReadConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// AppConfig holds application configuration
type AppConfig struct {
	logger         *zap.Logger
	tickInterval   time.Duration
	callTimeout    time.Duration
	eventBuffer    int
	coalesceWindow time.Duration
	debounce       time.Duration
	metricsAddr    string
}

// NewAppConfig creates a new application configuration instance from resolved viper values
func NewAppConfig(logger *zap.Logger, v *viper.Viper) *AppConfig {
	cfg := &AppConfig{
		logger:         logger,
		tickInterval:   max(v.GetDuration(KeyTickInterval), 0),
		callTimeout:    v.GetDuration(KeyCallTimeout),
		eventBuffer:    v.GetInt(KeyEventBuffer),
		coalesceWindow: max(v.GetDuration(KeyCoalesceWindow), 0),
		debounce:       max(v.GetDuration(KeyDebounce), 0),
		metricsAddr:    v.GetString(KeyMetricsAddr),
	}

	if cfg.callTimeout <= 0 {
		logger.Warn("Invalid call timeout, using default",
			zap.Duration("callTimeout", cfg.callTimeout),
			zap.Duration("default", defaultCallTimeout))
		cfg.callTimeout = defaultCallTimeout
	}
	if cfg.eventBuffer <= 0 {
		logger.Warn("Invalid event buffer, using default",
			zap.Int("eventBuffer", cfg.eventBuffer),
			zap.Int("default", defaultEventBuffer))
		cfg.eventBuffer = defaultEventBuffer
	}

	logger.Info("Configuration loaded",
		zap.String("file", v.ConfigFileUsed()),
		zap.Duration("tickInterval", cfg.tickInterval),
		zap.Duration("callTimeout", cfg.callTimeout),
		zap.Int("eventBuffer", cfg.eventBuffer),
		zap.Duration("coalesceWindow", cfg.coalesceWindow),
		zap.Duration("debounce", cfg.debounce),
		zap.String("metricsAddr", cfg.metricsAddr))

	return cfg
}

// GetTickInterval returns the period of position events
func (c *AppConfig) GetTickInterval() time.Duration {
	return c.tickInterval
}

// GetCallTimeout returns the bound on every player call
func (c *AppConfig) GetCallTimeout() time.Duration {
	return c.callTimeout
}

// GetEventBuffer returns the capacity of the event channel
func (c *AppConfig) GetEventBuffer() int {
	return c.eventBuffer
}

// GetCoalesceWindow returns the properties-changed coalescing window
func (c *AppConfig) GetCoalesceWindow() time.Duration {
	return c.coalesceWindow
}

// GetDebounce returns the engine debounce delay
func (c *AppConfig) GetDebounce() time.Duration {
	return c.debounce
}

// GetMetricsAddr returns the Prometheus listen address
func (c *AppConfig) GetMetricsAddr() string {
	return c.metricsAddr
}
