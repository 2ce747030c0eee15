package sensor

import (
	"math"
	"sync"
	"time"

	"github.com/illmade-knight/go-datalogger/pkg/types"
)

// SimulatedConfig shapes the synthetic pressure signal.
type SimulatedConfig struct {
	// Baseline is the resting ADC value of every channel.
	Baseline int
	// Amplitude of the sine wave added on top of the baseline.
	Amplitude int
	// Period of the wave.
	Period time.Duration
	// ActiveFor and IdleFor alternate: while idle every channel reads zero,
	// as the real array does when nobody is standing on the plate.
	ActiveFor time.Duration
	IdleFor   time.Duration
}

// Simulated is a deterministic stand-in for the ADC array, for bench runs.
type Simulated struct {
	cfg   SimulatedConfig
	now   func() time.Time
	start time.Time

	mu sync.Mutex
}

// NewSimulated creates a simulated array starting now.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	if cfg.Period <= 0 {
		cfg.Period = 2 * time.Second
	}
	return newSimulated(cfg, time.Now)
}

func newSimulated(cfg SimulatedConfig, now func() time.Time) *Simulated {
	return &Simulated{cfg: cfg, now: now, start: now()}
}

// ReadAll never fails.
func (s *Simulated) ReadAll() (types.Readings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := s.now().Sub(s.start)
	var r types.Readings
	if s.idle(elapsed) {
		return r, nil
	}
	phase := 2 * math.Pi * float64(elapsed) / float64(s.cfg.Period)
	for i := range r {
		// Spread the channels around the plate with a per-channel phase shift.
		shift := 2 * math.Pi * float64(i) / float64(types.SensorCount)
		r[i] = s.cfg.Baseline + int(float64(s.cfg.Amplitude)*math.Sin(phase+shift))
	}
	return r, nil
}

func (s *Simulated) idle(elapsed time.Duration) bool {
	if s.cfg.ActiveFor <= 0 || s.cfg.IdleFor <= 0 {
		return false
	}
	cycle := s.cfg.ActiveFor + s.cfg.IdleFor
	return elapsed%cycle >= s.cfg.ActiveFor
}
