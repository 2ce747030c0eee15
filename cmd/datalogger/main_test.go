package main

import (
	"testing"

	"github.com/illmade-knight/go-datalogger/pkg/config"
	"github.com/illmade-knight/go-datalogger/pkg/sensor"
	"github.com/illmade-knight/go-datalogger/pkg/status"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAcquirer(t *testing.T) {
	cfg := config.Default()

	acq, closeFn, err := newAcquirer(cfg.Sensor, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &sensor.Simulated{}, acq)

	cfg.Sensor.Kind = config.SensorSerial
	_, _, err = newAcquirer(cfg.Sensor, zerolog.Nop())
	assert.Error(t, err, "serial without a port cannot open")

	cfg.Sensor.Kind = "i2c"
	_, _, err = newAcquirer(cfg.Sensor, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewReporter_WithoutBroker(t *testing.T) {
	cfg := config.Default()

	r, closeFn := newReporter(cfg.Status, zerolog.Nop())
	defer closeFn()
	assert.IsType(t, &status.LogReporter{}, r)
}

func TestNewLogger_Level(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	newLogger(config.LogConfig{Level: "warn"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	newLogger(config.LogConfig{Level: "bogus"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
