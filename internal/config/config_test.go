package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	v := NewViper()
	require.NoError(t, ReadConfigFile(v))
	cfg := NewAppConfig(zap.NewNop(), v)

	assert.Equal(t, time.Second, cfg.GetTickInterval())
	assert.Equal(t, 2*time.Second, cfg.GetCallTimeout())
	assert.Equal(t, 64, cfg.GetEventBuffer())
	assert.Equal(t, time.Duration(0), cfg.GetCoalesceWindow())
	assert.Equal(t, 500*time.Millisecond, cfg.GetDebounce())
	assert.Empty(t, cfg.GetMetricsAddr())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("PLAYERWATCH_TICK_INTERVAL", "250ms")
	t.Setenv("PLAYERWATCH_EVENT_BUFFER", "8")
	t.Setenv("PLAYERWATCH_METRICS_ADDR", ":9099")

	cfg := NewAppConfig(zap.NewNop(), NewViper())

	assert.Equal(t, 250*time.Millisecond, cfg.GetTickInterval())
	assert.Equal(t, 8, cfg.GetEventBuffer())
	assert.Equal(t, ":9099", cfg.GetMetricsAddr())
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "playerwatch"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "playerwatch", "playerwatch.yaml"),
		[]byte("coalesce_window: 150ms\ncall_timeout: 3s\n"), 0o644))

	v := NewViper()
	require.NoError(t, ReadConfigFile(v))
	cfg := NewAppConfig(zap.NewNop(), v)

	assert.Equal(t, 150*time.Millisecond, cfg.GetCoalesceWindow())
	assert.Equal(t, 3*time.Second, cfg.GetCallTimeout())
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("PLAYERWATCH_CALL_TIMEOUT", "5s")

	v := NewViper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, fs))
	require.NoError(t, fs.Parse([]string{"--call-timeout=750ms", "--tick-interval=0"}))

	cfg := NewAppConfig(zap.NewNop(), v)
	assert.Equal(t, 750*time.Millisecond, cfg.GetCallTimeout())
	assert.Equal(t, time.Duration(0), cfg.GetTickInterval())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("PLAYERWATCH_CALL_TIMEOUT", "0s")
	t.Setenv("PLAYERWATCH_EVENT_BUFFER", "-1")
	t.Setenv("PLAYERWATCH_TICK_INTERVAL", "-1s")

	cfg := NewAppConfig(zap.NewNop(), NewViper())

	assert.Equal(t, defaultCallTimeout, cfg.GetCallTimeout())
	assert.Equal(t, defaultEventBuffer, cfg.GetEventBuffer())
	assert.Equal(t, time.Duration(0), cfg.GetTickInterval())
}

func TestEnvKeyReplacer(t *testing.T) {
	assert.Equal(t, "tick_interval", EnvKeyReplacer.Replace("tick-interval"))
	assert.Equal(t, "metrics_addr", EnvKeyReplacer.Replace("metrics.addr"))
}
