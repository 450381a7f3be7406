package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "wss://test.mosquitto.org:8081/mqtt", cfg.MQTT.BrokerURL)
	assert.Equal(t, 300, cfg.Dashboard.LogCapacity)
	assert.Equal(t, 6*time.Second, cfg.Dashboard.AlertTTL)
	assert.Equal(t, 30*time.Second, cfg.Simulator.Interval)
	assert.Equal(t, []string{"cocina", "jardin", "bano", "habitacion"}, cfg.Dashboard.Rooms)
	assert.Equal(t, DefaultRules(), cfg.Rules)
	assert.False(t, cfg.History.Influx.Enabled())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
mqtt:
  broker_url: tcp://localhost:1883
dashboard:
  log_capacity: 50
rules:
  power_max: 1500
simulator:
  interval: 60s
history:
  influx:
    url: http://localhost:8086
    bucket: home
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
	t.Setenv("SMARTHOME_DASHBOARD_PORT", "9999")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.BrokerURL)
	assert.Equal(t, 50, cfg.Dashboard.LogCapacity)
	assert.Equal(t, 9999, cfg.Dashboard.Port)
	assert.Equal(t, 1500.0, cfg.Rules.PowerMax)
	assert.Equal(t, 28.0, cfg.Rules.TemperatureMax)
	assert.Equal(t, time.Minute, cfg.Simulator.Interval)
	assert.True(t, cfg.History.Influx.Enabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("dashboard:\n  log_capacity: -1\n"), 0o644))

	_, err := Load(dir)
	assert.ErrorContains(t, err, "log_capacity")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("mqtt: [unclosed"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}
