package status

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogReporterConfig holds configuration for the LogReporter.
type LogReporterConfig struct {
	// RestartDelay is how long to wait between logging a fatal condition and
	// restarting, giving other reporters and log shippers time to flush.
	RestartDelay time.Duration
}

// LogReporter surfaces status through zerolog and owns the restart on fatal
// conditions.
type LogReporter struct {
	config  LogReporterConfig
	restart Restarter
	sleep   func(time.Duration)
	logger  zerolog.Logger

	mu   sync.Mutex
	last Code
}

// NewLogReporter creates a reporter. A nil restarter means ExitRestarter.
func NewLogReporter(config LogReporterConfig, restart Restarter, logger zerolog.Logger) *LogReporter {
	if config.RestartDelay < 0 {
		config.RestartDelay = 0
	}
	if restart == nil {
		restart = ExitRestarter()
	}
	return &LogReporter{
		config:  config,
		restart: restart,
		sleep:   time.Sleep,
		logger:  logger.With().Str("component", "StatusReporter").Logger(),
	}
}

// Report logs the code. Repeated identical non-fatal codes are logged once
// until the code changes.
func (r *LogReporter) Report(code Code, fatal bool) {
	r.mu.Lock()
	changed := code != r.last
	r.last = code
	r.mu.Unlock()

	if fatal {
		r.logger.Error().
			Str("code", code.String()).
			Dur("restart_delay", r.config.RestartDelay).
			Msg("Fatal condition, restarting")
		r.sleep(r.config.RestartDelay)
		r.restart(code)
		return
	}

	if !changed {
		return
	}
	if code == None {
		r.logger.Info().Msg("Status back to normal")
		return
	}
	r.logger.Error().Str("code", code.String()).Msg("Status degraded")
}

// Diagnostics logs the pipeline state at debug level.
func (r *LogReporter) Diagnostics(d Diagnostics) {
	r.logger.Debug().
		Int("buffer_size", d.BufferSize).
		Int("buffer_capacity", d.BufferCapacity).
		Int("read_index", d.ReadIndex).
		Int("write_index", d.WriteIndex).
		Int("pending", d.Pending).
		Msg("Pipeline state")
}
