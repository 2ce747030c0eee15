package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-datalogger/pkg/clock"
	"github.com/illmade-knight/go-datalogger/pkg/ringbuffer"
	"github.com/illmade-knight/go-datalogger/pkg/sensor"
	"github.com/illmade-knight/go-datalogger/pkg/status"
	"github.com/illmade-knight/go-datalogger/pkg/types"
	"github.com/rs/zerolog"
)

// SamplerConfig holds configuration for the Sampler.
type SamplerConfig struct {
	Period time.Duration
}

// Sampler acquires one reading vector per period and writes it into the ring
// buffer.
type Sampler struct {
	period   int64
	acquirer sensor.Acquirer
	buffer   *ringbuffer.RingBuffer
	reporter status.Reporter
	logger   zerolog.Logger

	lastAttempt int64
	started     bool
	clockBehind bool
}

// NewSampler creates a Sampler.
func NewSampler(
	cfg SamplerConfig,
	acquirer sensor.Acquirer,
	buffer *ringbuffer.RingBuffer,
	reporter status.Reporter,
	logger zerolog.Logger,
) (*Sampler, error) {
	if acquirer == nil {
		return nil, errors.New("acquirer cannot be nil")
	}
	if buffer == nil {
		return nil, errors.New("ring buffer cannot be nil")
	}
	if reporter == nil {
		return nil, errors.New("status reporter cannot be nil")
	}
	if cfg.Period < time.Millisecond {
		return nil, fmt.Errorf("sampling period must be at least 1ms, got %s", cfg.Period)
	}
	return &Sampler{
		period:   cfg.Period.Milliseconds(),
		acquirer: acquirer,
		buffer:   buffer,
		reporter: reporter,
		logger:   logger.With().Str("component", "Sampler").Logger(),
	}, nil
}

// Tick takes a sample when at least one period has elapsed since the last
// attempt. It reports whether a sample was written to the buffer.
//
// A failed acquisition consumes the period and is not retried. A full buffer
// is reported as fatal and ErrBufferFull is returned.
func (s *Sampler) Tick(now int64) (bool, error) {
	if s.started && now < s.lastAttempt {
		// Sampling resumes once the clock passes the last sample, so
		// timestamps never repeat.
		if !s.clockBehind {
			s.logger.Warn().
				Int64("now", now).
				Int64("last_sample", s.lastAttempt).
				Msg("Clock stepped backwards, holding samples")
			s.clockBehind = true
		}
		return false, nil
	}
	if s.started && now-s.lastAttempt < s.period {
		return false, nil
	}
	s.started = true
	s.clockBehind = false
	s.lastAttempt = now

	readings, err := s.acquirer.ReadAll()
	if err != nil {
		s.logger.Warn().Err(err).Int64("timestamp", now).Msg("Dropping sampling cycle")
		s.reporter.Report(status.SensorReadFailure, false)
		return false, fmt.Errorf("sample at %d: %w", now, err)
	}

	err = s.buffer.Push(func(slot *types.Sample) {
		slot.Timestamp = now
		slot.Readings = readings
	})
	if err != nil {
		s.logger.Error().Err(err).Int64("timestamp", now).Msg("Ring buffer full, sample dropped")
		s.traceBuffer()
		s.reporter.Report(status.BufferFull, true)
		return false, err
	}
	return true, nil
}

// traceBuffer logs every buffer slot at trace level before a restart.
func (s *Sampler) traceBuffer() {
	if s.logger.GetLevel() > zerolog.TraceLevel || zerolog.GlobalLevel() > zerolog.TraceLevel {
		return
	}
	for i, slot := range s.buffer.Dump(0, s.buffer.Cap()) {
		s.logger.Trace().
			Int("slot", i).
			Int64("timestamp", slot.Timestamp).
			Ints("readings", slot.Readings[:]).
			Msg("Buffer slot")
	}
}

// Run samples on its own goroutine until ctx is cancelled. It is the
// alternative to driving Tick from a shared poll loop; the ring buffer is safe
// for one producer and one consumer on different goroutines.
func (s *Sampler) Run(ctx context.Context, clk clock.Clock) error {
	ticker := time.NewTicker(time.Duration(s.period) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Tick(clk.NowMillis()); errors.Is(err, ringbuffer.ErrBufferFull) {
				return err
			}
		}
	}
}
