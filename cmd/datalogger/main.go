package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-datalogger/pkg/clock"
	"github.com/illmade-knight/go-datalogger/pkg/config"
	"github.com/illmade-knight/go-datalogger/pkg/pipeline"
	"github.com/illmade-knight/go-datalogger/pkg/ringbuffer"
	"github.com/illmade-knight/go-datalogger/pkg/sensor"
	"github.com/illmade-knight/go-datalogger/pkg/status"
	"github.com/illmade-knight/go-datalogger/pkg/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configFile := flag.String("c", "datalogger.yaml", "Configuration file to use")
	logLevel := flag.String("log-level", "", "Override the configured log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", *configFile).Msg("Failed to load configuration")
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Data logger stopped with an error")
	}
	logger.Info().Msg("Data logger stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Console {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	reporter, closeReporter := newReporter(cfg.Status, logger)
	defer closeReporter()

	// --- Clock ---
	loc, err := clock.LoadLocation(cfg.Clock.Timezone)
	if err != nil {
		return err
	}
	var clk clock.Clock = clock.NewLocal(loc)
	var ntpClock *clock.NTP
	if cfg.Clock.NTPServer != "" {
		ntpClock, err = clock.NewNTP(loc, clock.NTPConfig{Server: cfg.Clock.NTPServer, Timeout: cfg.Clock.NTPTimeout}, logger)
		if err != nil {
			return err
		}
		if err := ntpClock.Sync(ctx); err != nil {
			reporter.Report(status.NoNTPData, true)
			return err
		}
		clk = ntpClock
	}

	// --- Sensor ---
	acquirer, closeSensor, err := newAcquirer(cfg.Sensor, logger)
	if err != nil {
		reporter.Report(status.ExternalADCInitFailure, true)
		return err
	}
	defer closeSensor()

	// --- Remote store ---
	client, err := store.New(ctx, cfg.Store, logger)
	if err != nil {
		reporter.Report(status.NoDatabaseConnection, true)
		return fmt.Errorf("failed to create %s store: %w", cfg.Store.Kind, err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing store")
		}
	}()

	if bl, ok := client.(store.BootLogger); ok {
		if err := bl.LogBoot(ctx, clk.NowMillis()); err != nil {
			reporter.Report(status.NoDatabaseConnection, true)
			return fmt.Errorf("failed to record boot: %w", err)
		}
	}

	// --- Pipeline ---
	buf := ringbuffer.New(cfg.Buffer.Capacity)
	sampler, err := pipeline.NewSampler(pipeline.SamplerConfig{Period: cfg.Sampler.Period}, acquirer, buf, reporter, logger)
	if err != nil {
		return err
	}
	uploader, err := pipeline.NewUploader(pipeline.UploaderConfig{
		BatchSize:     cfg.Uploader.BatchSize,
		SendInterval:  cfg.Uploader.SendInterval,
		RetryInterval: cfg.Uploader.RetryInterval,
		PushTimeout:   cfg.Uploader.PushTimeout,
	}, buf, client, clk, reporter, logger)
	if err != nil {
		return err
	}
	loop, err := pipeline.NewLoop(sampler, uploader, clk, cfg.Uploader.PollInterval, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("store", cfg.Store.Kind).
		Str("sensor", cfg.Sensor.Kind).
		Dur("period", cfg.Sampler.Period).
		Int("capacity", buf.Cap()).
		Int("batch_size", cfg.Uploader.BatchSize).
		Msg("Data logger started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	if ntpClock != nil {
		g.Go(func() error {
			return ntpClock.Run(gctx, cfg.Clock.ResyncInterval)
		})
	}
	runErr := g.Wait()

	// Push what is left before the store is closed.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := uploader.Drain(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error().Err(err).Int("pending", uploader.Pending()).Int("buffered", buf.Len()).Msg("Failed to drain pipeline on shutdown")
	}
	return runErr
}

func newReporter(cfg config.StatusConfig, logger zerolog.Logger) (status.Reporter, func()) {
	logReporter := status.NewLogReporter(status.LogReporterConfig{RestartDelay: cfg.RestartDelay}, nil, logger)
	if cfg.MQTT.BrokerURL == "" {
		return logReporter, func() {}
	}

	mqttReporter, mqttClient, err := status.NewMQTTReporter(status.MQTTReporterConfig{
		BrokerURL:           cfg.MQTT.BrokerURL,
		Topic:               cfg.MQTT.Topic,
		ClientIDPrefix:      cfg.MQTT.ClientIDPrefix,
		Username:            cfg.MQTT.Username,
		Password:            cfg.MQTT.Password,
		CACertFile:          cfg.MQTT.CACertFile,
		ClientCertFile:      cfg.MQTT.ClientCertFile,
		ClientKeyFile:       cfg.MQTT.ClientKeyFile,
		InsecureSkipVerify:  cfg.MQTT.InsecureSkipVerify,
		DiagnosticsInterval: cfg.MQTT.DiagnosticsInterval,
	}, logger)
	if err != nil {
		// Status publishing is best effort; the logger keeps running without it.
		logger.Warn().Err(err).Msg("MQTT status reporter unavailable")
		return logReporter, func() {}
	}
	// The MQTT reporter goes first so a fatal status is published before the
	// log reporter restarts the process.
	return status.Multi{mqttReporter, logReporter}, func() { mqttClient.Disconnect(250) }
}

func newAcquirer(cfg config.SensorConfig, logger zerolog.Logger) (sensor.Acquirer, func(), error) {
	switch cfg.Kind {
	case config.SensorSerial:
		s, err := sensor.OpenSerial(sensor.SerialConfig{
			Port:        cfg.Serial.Port,
			BaudRate:    cfg.Serial.BaudRate,
			ReadTimeout: cfg.Serial.ReadTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case config.SensorSimulated:
		return sensor.NewSimulated(sensor.SimulatedConfig{
			Baseline:  cfg.Simulated.Baseline,
			Amplitude: cfg.Simulated.Amplitude,
			Period:    cfg.Simulated.Period,
			ActiveFor: cfg.Simulated.ActiveFor,
			IdleFor:   cfg.Simulated.IdleFor,
		}), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown sensor kind %q", cfg.Kind)
	}
}
