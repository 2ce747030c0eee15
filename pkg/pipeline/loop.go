package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/illmade-knight/go-datalogger/pkg/clock"
	"github.com/illmade-knight/go-datalogger/pkg/ringbuffer"
	"github.com/rs/zerolog"
)

// Loop is the single cooperative polling loop: every poll it ticks the
// Sampler, then the Uploader, with the same timestamp. The two never run
// concurrently.
type Loop struct {
	sampler  *Sampler
	uploader *Uploader
	clock    clock.Clock
	interval time.Duration
	logger   zerolog.Logger
}

// NewLoop creates a Loop polling every interval.
func NewLoop(sampler *Sampler, uploader *Uploader, clk clock.Clock, interval time.Duration, logger zerolog.Logger) (*Loop, error) {
	if sampler == nil || uploader == nil {
		return nil, errors.New("sampler and uploader are required")
	}
	if clk == nil {
		return nil, errors.New("clock cannot be nil")
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Loop{
		sampler:  sampler,
		uploader: uploader,
		clock:    clk,
		interval: interval,
		logger:   logger.With().Str("component", "Loop").Logger(),
	}, nil
}

// Poll runs one iteration at now. Only a full ring buffer is returned as an
// error; acquisition and push failures are logged and retried later.
func (l *Loop) Poll(ctx context.Context, now int64) error {
	if _, err := l.sampler.Tick(now); err != nil {
		if errors.Is(err, ringbuffer.ErrBufferFull) {
			return err
		}
		l.logger.Debug().Err(err).Msg("Sampling cycle dropped")
	}
	if err := l.uploader.Tick(ctx, now); err != nil {
		l.logger.Debug().Err(err).Msg("Upload deferred")
	}
	return nil
}

// Run polls until ctx is cancelled or the buffer overflows.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().Dur("poll_interval", l.interval).Msg("Starting poll loop")
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Poll loop stopped")
			return nil
		case <-ticker.C:
			if err := l.Poll(ctx, l.clock.NowMillis()); err != nil {
				return err
			}
		}
	}
}
